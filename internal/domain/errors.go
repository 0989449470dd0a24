package domain

import "errors"

// Sentinel errors shared between repositories and services.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a guarded status update finds
	// the entity in a different state than expected (e.g. responding to
	// a conversation request that was already processed).
	ErrStatusConflict = errors.New("status conflict")
)
