package ws

import (
	"context"
	"encoding/json"

	"carelink-backend/internal/realtime"
	"carelink-backend/internal/service/call"
	"carelink-backend/internal/service/chat"
	"carelink-backend/internal/service/conversation"
	apperrors "carelink-backend/pkg/errors"
)

// dispatch routes one inbound frame to its handler. Protocol errors go
// back to the sender as an error event; they never tear the connection
// down.
func (h *Hub) dispatch(client *Client, envelope *realtime.Envelope) {
	if h.metrics != nil {
		h.metrics.WSEventsTotal.WithLabelValues(envelope.Event, "in").Inc()
	}
	ctx := context.Background()

	var err error
	switch envelope.Event {
	case realtime.EventRegisterPeerID:
		err = h.onRegisterPeerID(client, envelope.Data)
	case realtime.EventRequestChat:
		err = h.onRequestChat(ctx, client, envelope.Data)
	case realtime.EventRespondToRequest:
		err = h.onRespondToRequest(ctx, client, envelope.Data)
	case realtime.EventSendMessage:
		err = h.onSendMessage(ctx, client, envelope.Data)
	case realtime.EventMarkAsRead:
		err = h.onMarkAsRead(ctx, client, envelope.Data)
	case realtime.EventTyping:
		err = h.onTyping(ctx, client, envelope.Data, true)
	case realtime.EventStopTyping:
		err = h.onTyping(ctx, client, envelope.Data, false)
	case realtime.EventCallUser:
		err = h.onCallUser(ctx, client, envelope.Data)
	case realtime.EventAnswerCall:
		err = h.onAnswerCall(ctx, client, envelope.Data)
	case realtime.EventRejectCall:
		err = h.onRejectCall(ctx, client, envelope.Data)
	case realtime.EventEndCall:
		err = h.onEndCall(ctx, client, envelope.Data)
	default:
		client.sendError(string(apperrors.ErrCodeInvalidInput), "Unknown event: "+envelope.Event)
		return
	}

	if err != nil {
		appErr := apperrors.GetAppError(err)
		client.sendError(string(appErr.Code), appErr.Message)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return apperrors.InvalidInputError("Missing event payload")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.InvalidInputError("Malformed event payload")
	}
	return nil
}

func (h *Hub) onRegisterPeerID(client *Client, data json.RawMessage) error {
	var payload realtime.RegisterPeerIDPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	if payload.PeerID == "" {
		return apperrors.ValidationError("peerId is required")
	}
	h.calls.RegisterPeer(client.identity.UserID, payload.PeerID)
	return nil
}

func (h *Hub) onRequestChat(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.RequestChatPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	_, err := h.conversations.RequestChat(ctx, &conversation.RequestChatInput{
		Patient:  client.identity,
		DoctorID: payload.DoctorID,
	})
	return err
}

func (h *Hub) onRespondToRequest(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.RespondToRequestPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	_, err := h.conversations.Respond(ctx, &conversation.RespondInput{
		Doctor:         client.identity,
		ConversationID: payload.ConversationID,
		Status:         payload.Status,
	})
	return err
}

func (h *Hub) onSendMessage(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.SendMessagePayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	_, err := h.chat.SendMessage(ctx, &chat.SendMessageInput{
		Sender:      client.identity,
		ReceiverID:  payload.ReceiverID,
		Content:     payload.Content,
		Attachments: payload.Attachments,
		TempID:      payload.TempID,
	})
	return err
}

func (h *Hub) onMarkAsRead(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.MarkAsReadPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.chat.MarkRead(ctx, client.identity, payload.MessageID)
}

func (h *Hub) onTyping(ctx context.Context, client *Client, data json.RawMessage, typing bool) error {
	var payload realtime.TypingPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.chat.Typing(ctx, client.identity, payload.ReceiverID, typing)
}

func (h *Hub) onCallUser(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.CallUserPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.calls.CallUser(ctx, &call.CallUserInput{
		Caller:        client.identity,
		ReceiverID:    payload.ReceiverID,
		CallType:      payload.CallType,
		AppointmentID: payload.AppointmentID,
	})
}

func (h *Hub) onAnswerCall(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.AnswerCallPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.calls.AnswerCall(ctx, client.identity, payload.CallerID, payload.PeerID)
}

func (h *Hub) onRejectCall(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.RejectCallPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.calls.RejectCall(ctx, client.identity, payload.CallerID, payload.Reason)
}

func (h *Hub) onEndCall(ctx context.Context, client *Client, data json.RawMessage) error {
	var payload realtime.EndCallPayload
	if err := decode(data, &payload); err != nil {
		return err
	}
	return h.calls.EndCall(ctx, client.identity, payload.UserID)
}
