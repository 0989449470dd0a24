// Package realtime defines the event vocabulary of the real-time
// channel. Every frame in either direction is an Envelope whose Data
// field holds one of the payload types below.
package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
)

// Event names, client→server
const (
	EventRegisterPeerID   = "registerPeerId"
	EventRequestChat      = "requestChat"
	EventRespondToRequest = "respondToRequest"
	EventSendMessage      = "sendMessage"
	EventMarkAsRead       = "markAsRead"
	EventTyping           = "typing"
	EventStopTyping       = "stopTyping"
	EventCallUser         = "callUser"
	EventAnswerCall       = "answerCall"
	EventRejectCall       = "rejectCall"
	EventEndCall          = "endCall"
)

// Event names, server→client
const (
	EventUserStatus           = "userStatus"
	EventChatRequest          = "chatRequest"
	EventPendingChatRequests  = "pendingChatRequests"
	EventRequestResponse      = "requestResponse"
	EventRequestStatusUpdate  = "requestStatusUpdate"
	EventResponseConfirmation = "responseConfirmation"
	EventNewMessage           = "newMessage"
	EventMessageSent          = "messageSent"
	EventMessageRead          = "messageRead"
	EventUserTyping           = "userTyping"
	EventIncomingCall         = "incomingCall"
	EventCallAccepted         = "callAccepted"
	EventCallRejected         = "callRejected"
	EventCallEnded            = "callEnded"
	EventError                = "error"
)

// Envelope frames every event on the wire
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client→server payloads

type RegisterPeerIDPayload struct {
	PeerID string `json:"peerId"`
}

type RequestChatPayload struct {
	DoctorID uuid.UUID `json:"doctorId"`
}

type RespondToRequestPayload struct {
	ConversationID uuid.UUID                 `json:"conversationId"`
	Status         domain.ConversationStatus `json:"status"`
}

type SendMessagePayload struct {
	ReceiverID  uuid.UUID `json:"receiverId"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	TempID      string    `json:"tempId,omitempty"`
}

type MarkAsReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

type TypingPayload struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

type CallUserPayload struct {
	ReceiverID    uuid.UUID       `json:"receiverId"`
	CallType      domain.CallType `json:"callType"`
	AppointmentID *uuid.UUID      `json:"appointmentId,omitempty"`
}

type AnswerCallPayload struct {
	CallerID uuid.UUID `json:"callerId"`
	PeerID   string    `json:"peerId,omitempty"`
}

type RejectCallPayload struct {
	CallerID uuid.UUID `json:"callerId"`
	Reason   string    `json:"reason,omitempty"`
}

type EndCallPayload struct {
	UserID uuid.UUID `json:"userId"`
}

// Server→client payloads

type UserStatusPayload struct {
	Online []uuid.UUID `json:"online"`
}

// PatientInfo identifies the requesting patient on a chat request
type PatientInfo struct {
	UserID uuid.UUID `json:"userId"`
	Name   string    `json:"name"`
}

type ChatRequestPayload struct {
	ConversationID uuid.UUID   `json:"conversationId"`
	Patient        PatientInfo `json:"patient"`
	Timestamp      time.Time   `json:"timestamp"`
}

type PendingChatRequestsPayload struct {
	Requests []ChatRequestPayload `json:"requests"`
}

type RequestResponsePayload struct {
	ConversationID uuid.UUID                 `json:"conversationId"`
	Status         domain.ConversationStatus `json:"status"`
	Message        string                    `json:"message,omitempty"`
}

type ResponseConfirmationPayload struct {
	ConversationID uuid.UUID                 `json:"conversationId"`
	Status         domain.ConversationStatus `json:"status"`
}

type NewMessagePayload struct {
	Message *domain.MessageResponse `json:"message"`
}

type MessageSentPayload struct {
	Message *domain.MessageResponse `json:"message"`
	TempID  string                  `json:"tempId,omitempty"`
}

type MessageReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	ReadAt    time.Time `json:"readAt"`
}

type UserTypingPayload struct {
	UserID uuid.UUID `json:"userId"`
	Typing bool      `json:"typing"`
}

type IncomingCallPayload struct {
	CallerID   uuid.UUID       `json:"callerId"`
	CallerName string          `json:"callerName"`
	CallType   domain.CallType `json:"callType"`
}

type CallAcceptedPayload struct {
	ReceiverID     uuid.UUID `json:"receiverId"`
	ReceiverPeerID string    `json:"receiverPeerId"`
}

type CallRejectedPayload struct {
	Reason string `json:"reason"`
}

type CallEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
