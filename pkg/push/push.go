package push

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carelink-backend/pkg/logger"
)

// Provider defines the interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal
	Sound    string            `json:"sound,omitempty"`
	Category string            `json:"category,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"
	TokenTypeAPNs TokenType = "apns"
)

// Token represents a push notification token for a user
type Token struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// TokenRepository defines the interface for storing push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*Token, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// Service sends push notifications to all registered devices of a user.
// All sends are best-effort: failure is logged, never propagated, so an
// unreachable push gateway cannot fail a protocol operation.
type Service struct {
	provider Provider
	tokens   TokenRepository
}

// NewService creates a push notification service
func NewService(provider Provider, tokens TokenRepository) *Service {
	return &Service{provider: provider, tokens: tokens}
}

// NotifyUser sends a notification to every device token of a user
func (s *Service) NotifyUser(ctx context.Context, userID uuid.UUID, notification *Notification) {
	tokens, err := s.tokens.GetByUserID(ctx, userID)
	if err != nil {
		logger.Warn("Failed to load push tokens",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}
	if len(tokens) == 0 {
		return
	}

	tokenStrs := make([]string, 0, len(tokens))
	for _, t := range tokens {
		tokenStrs = append(tokenStrs, t.Token)
	}

	result, err := s.provider.Send(ctx, notification, tokenStrs)
	if err != nil {
		logger.Warn("Push notification send failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	if result.FailureCount > 0 {
		logger.Debug("Push notification partially delivered",
			zap.String("user_id", userID.String()),
			zap.Int("success", result.SuccessCount),
			zap.Int("failure", result.FailureCount))
	}
}

// MockProvider is a no-op provider used in development and tests
type MockProvider struct{}

// Send implements Provider by reporting every token as delivered
func (m *MockProvider) Send(_ context.Context, _ *Notification, tokens []string) (*SendResult, error) {
	return &SendResult{SuccessCount: len(tokens)}, nil
}
