// Package ws carries the real-time protocol over a single authenticated
// WebSocket per client: presence, conversation requests, message relay
// and call signaling all share that connection.
package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/presence"
	"carelink-backend/internal/realtime"
	"carelink-backend/internal/service/call"
	"carelink-backend/internal/service/chat"
	"carelink-backend/internal/service/conversation"
	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/jwt"
	"carelink-backend/pkg/logger"
	"carelink-backend/pkg/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced by the edge proxy
	},
}

// Hub authenticates incoming connections and routes protocol events to
// the services behind them.
type Hub struct {
	registry      *presence.Registry
	tokens        *jwt.Manager
	conversations *conversation.Service
	chat          *chat.Service
	calls         *call.Coordinator
	metrics       *metrics.Metrics
}

func NewHub(
	registry *presence.Registry,
	tokens *jwt.Manager,
	conversations *conversation.Service,
	chatService *chat.Service,
	calls *call.Coordinator,
	m *metrics.Metrics,
) *Hub {
	return &Hub{
		registry:      registry,
		tokens:        tokens,
		conversations: conversations,
		chat:          chatService,
		calls:         calls,
		metrics:       m,
	}
}

// ServeWS authenticates the handshake, upgrades the connection and
// registers the client. Authentication happens before the upgrade so a
// bad token costs a plain 401, not a socket.
func (h *Hub) ServeWS(c *gin.Context) {
	identity, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			zap.String("user_id", identity.UserID.String()), zap.Error(err))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, constants.ClientSendBuffer),
		identity: identity,
	}

	displaced := h.registry.Register(c.Request.Context(), identity, client)
	if displaced != nil {
		if old, ok := displaced.(*Client); ok {
			old.conn.Close()
		}
	}
	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
	}
	logger.Info("client connected",
		zap.String("user_id", identity.UserID.String()),
		zap.String("role", string(identity.Role)))

	go client.writePump()
	go client.readPump()

	h.broadcastRoster()
	if identity.Role == domain.RoleDoctor {
		h.sendPendingRequests(c.Request.Context(), client)
	}
}

func (h *Hub) authenticate(c *gin.Context) (*domain.Identity, error) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	return h.tokens.Resolve(token)
}

// disconnect runs once per connection when its read pump exits.
func (h *Hub) disconnect(client *Client) {
	ctx := context.Background()
	wentOffline := h.registry.Unregister(ctx, client.identity.UserID, client)
	if h.metrics != nil {
		h.metrics.WSConnections.Dec()
	}
	if !wentOffline {
		// a newer connection displaced this one; presence unchanged
		return
	}

	// a drop mid-call counts as that side hanging up
	h.calls.HandleDisconnect(ctx, client.identity.UserID)
	h.broadcastRoster()
	logger.Info("client disconnected",
		zap.String("user_id", client.identity.UserID.String()))
}

// broadcastRoster pushes the current online set to every connection.
func (h *Hub) broadcastRoster() {
	h.registry.BroadcastAll(realtime.EventUserStatus, &realtime.UserStatusPayload{
		Online: h.registry.Roster(),
	})
}

// sendPendingRequests replays open conversation requests to a doctor
// who just connected.
func (h *Hub) sendPendingRequests(ctx context.Context, client *Client) {
	requests, err := h.conversations.PendingRequests(ctx, client.identity.UserID)
	if err != nil {
		logger.Error("failed to load pending requests",
			zap.String("user_id", client.identity.UserID.String()), zap.Error(err))
		return
	}
	if len(requests) == 0 {
		return
	}
	_ = client.Deliver(realtime.EventPendingChatRequests, &realtime.PendingChatRequestsPayload{
		Requests: requests,
	})
}
