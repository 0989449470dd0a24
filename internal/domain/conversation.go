package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the state of a conversation request.
type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "pending"
	ConversationAccepted ConversationStatus = "accepted"
	ConversationRejected ConversationStatus = "rejected"
)

// Valid reports whether the status is one of the known values.
func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationPending, ConversationAccepted, ConversationRejected:
		return true
	}
	return false
}

// CanTransition reports whether a conversation may move from s to next.
// The full transition set is pending→accepted, pending→rejected and
// rejected→pending (re-request). Accepted is terminal.
func (s ConversationStatus) CanTransition(next ConversationStatus) bool {
	switch s {
	case ConversationPending:
		return next == ConversationAccepted || next == ConversationRejected
	case ConversationRejected:
		return next == ConversationPending
	}
	return false
}

// Conversation is the durable relationship record gating whether a
// patient and a doctor may exchange messages. The unordered pair
// (patient, doctor) is unique among conversations.
type Conversation struct {
	ConversationID uuid.UUID          `json:"conversation_id" db:"conversation_id"`
	PatientID      uuid.UUID          `json:"patient_id" db:"patient_id"`
	PatientName    string             `json:"patient_name" db:"patient_name"`
	DoctorID       uuid.UUID          `json:"doctor_id" db:"doctor_id"`
	InitiatorID    uuid.UUID          `json:"initiator_id" db:"initiator_id"`
	Status         ConversationStatus `json:"status" db:"status"`
	LastMessageID  *uuid.UUID         `json:"last_message_id,omitempty" db:"last_message_id"`
	UnreadCounts   map[uuid.UUID]int  `json:"unread_counts,omitempty"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.PatientID == userID || c.DoctorID == userID
}

// Counterpart returns the other participant for userID. The caller is
// expected to have verified participation first.
func (c *Conversation) Counterpart(userID uuid.UUID) uuid.UUID {
	if c.PatientID == userID {
		return c.DoctorID
	}
	return c.PatientID
}
