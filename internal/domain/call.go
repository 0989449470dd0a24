package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType distinguishes audio-only from video calls.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Valid reports whether the call type is one of the known values.
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallState is the in-flight state of a call session.
type CallState string

const (
	CallIdle      CallState = "idle"
	CallCalling   CallState = "calling"
	CallRinging   CallState = "ringing"
	CallConnected CallState = "connected"
	CallEnded     CallState = "ended"
)

// CanTransition reports whether a call session may move from s to next.
func (s CallState) CanTransition(next CallState) bool {
	switch s {
	case CallIdle:
		return next == CallCalling
	case CallCalling:
		return next == CallRinging || next == CallEnded
	case CallRinging:
		return next == CallConnected || next == CallEnded
	case CallConnected:
		return next == CallEnded
	}
	return false
}

// CallOutcome is the terminal result recorded for a call attempt.
type CallOutcome string

const (
	CallCompleted CallOutcome = "completed"
	CallMissed    CallOutcome = "missed"
	CallRejected  CallOutcome = "rejected"
	CallFailed    CallOutcome = "failed"
)

// CallRecord is the durable terminal log entry for a call. Written
// exactly once, at call end or at the moment a call cannot be
// delivered.
type CallRecord struct {
	CallID        uuid.UUID   `json:"call_id" db:"call_id"`
	CallerID      uuid.UUID   `json:"caller_id" db:"caller_id"`
	ReceiverID    uuid.UUID   `json:"receiver_id" db:"receiver_id"`
	AppointmentID *uuid.UUID  `json:"appointment_id,omitempty" db:"appointment_id"`
	CallType      CallType    `json:"call_type" db:"call_type"`
	Outcome       CallOutcome `json:"outcome" db:"outcome"`
	StartedAt     time.Time   `json:"started_at" db:"started_at"`
	EndedAt       time.Time   `json:"ended_at" db:"ended_at"`
	Duration      int         `json:"duration" db:"duration"` // seconds
}
