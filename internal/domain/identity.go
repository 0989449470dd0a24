package domain

import (
	"github.com/google/uuid"
)

// Role classifies a portal identity on the real-time layer.
type Role string

const (
	// RolePatient may initiate conversation requests and calls.
	RolePatient Role = "patient"
	// RoleDoctor may respond to conversation requests.
	RoleDoctor Role = "doctor"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// Identity is an authenticated participant on the real-time layer.
// It is resolved once at connection handshake and immutable for the
// lifetime of the session.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Role   Role      `json:"role"`
}
