// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Real-time channel constants
const (
	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout bounds a single frame write
	WebSocketWriteTimeout = 10 * time.Second

	// ClientSendBuffer is the per-connection outbound queue size
	ClientSendBuffer = 256
)

// Call signaling constants
const (
	// CallNoAnswerTimeout is how long an unanswered call rings before
	// the caller observes a terminal no-answer outcome
	CallNoAnswerTimeout = 30 * time.Second

	// TypingExpiry is the client-side auto-expiry window for a typing
	// signal with no follow-up; the server relays it unaltered
	TypingExpiry = 3 * time.Second
)

// Presence constants
const (
	// PresenceTTL bounds a stale presence mirror entry when a node dies
	// without unregistering
	PresenceTTL = 5 * time.Minute
)

// Server constants
const (
	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed message content length
	MaxMessageLength = 10000

	// MaxAttachments is the maximum number of attachment keys per message
	MaxAttachments = 10
)

// Storage constants
const (
	// PresignedURLExpiry is the validity period for presigned attachment URLs
	PresignedURLExpiry = 15 * time.Minute
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for stored push tokens
	PushTokenExpiry = 30 * 24 * time.Hour
)
