package ws

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/logger"
)

var errSendBufferFull = errors.New("client send buffer full")

// Client is one authenticated real-time connection.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity *domain.Identity
}

// Deliver queues an event frame for the client. It never blocks: a
// client that cannot drain its buffer is treated as unreachable and the
// write pump will tear the connection down.
func (c *Client) Deliver(event string, data interface{}) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	select {
	case c.send <- frame:
		if c.hub.metrics != nil {
			c.hub.metrics.WSEventsTotal.WithLabelValues(event, "out").Inc()
		}
		return nil
	default:
		return errSendBufferFull
	}
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(&realtime.Envelope{Event: event, Data: raw})
}

// readPump reads and dispatches inbound frames until the connection
// drops, then triggers the hub's disconnect cleanup.
func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(constants.MaxMessageLength * 4))
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					zap.String("user_id", c.identity.UserID.String()), zap.Error(err))
			}
			break
		}

		var envelope realtime.Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.sendError("INVALID_INPUT", "Malformed event frame")
			continue
		}
		c.hub.dispatch(c, &envelope)
	}
}

// writePump flushes queued frames and keeps the connection alive with
// periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendError(code, message string) {
	// best-effort: the client may already be unreachable
	_ = c.Deliver(realtime.EventError, &realtime.ErrorPayload{Code: code, Message: message})
}
