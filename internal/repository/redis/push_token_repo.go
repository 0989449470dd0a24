package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/push"
)

// PushTokenRepository stores push notification tokens in Redis.
// Keys: push:token:{token} holds the serialized token, and
// push:user:{userID}:tokens is the set of a user's token values.
type PushTokenRepository struct {
	client *redis.Client
}

// NewPushTokenRepository creates a new push token repository
func NewPushTokenRepository(client *redis.Client) *PushTokenRepository {
	return &PushTokenRepository{client: client}
}

// Store stores a push notification token
func (r *PushTokenRepository) Store(ctx context.Context, token *push.Token) error {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	now := time.Now().Unix()
	if token.CreatedAt == 0 {
		token.CreatedAt = now
	}
	token.UpdatedAt = now

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tokenKey := fmt.Sprintf("push:token:%s", token.Token)
	if err := r.client.Set(ctx, tokenKey, data, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}

	userTokensKey := fmt.Sprintf("push:user:%s:tokens", token.UserID)
	if err := r.client.SAdd(ctx, userTokensKey, token.Token).Err(); err != nil {
		return fmt.Errorf("failed to add token to user set: %w", err)
	}
	if err := r.client.Expire(ctx, userTokensKey, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to expire user token set: %w", err)
	}

	return nil
}

// GetByUserID retrieves all tokens registered for a user
func (r *PushTokenRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*push.Token, error) {
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	tokenStrs, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user tokens: %w", err)
	}

	tokens := make([]*push.Token, 0, len(tokenStrs))
	for _, tokenStr := range tokenStrs {
		data, err := r.client.Get(ctx, fmt.Sprintf("push:token:%s", tokenStr)).Bytes()
		if err != nil {
			// Token expired; drop it from the user set lazily
			r.client.SRem(ctx, userTokensKey, tokenStr)
			continue
		}

		var token push.Token
		if err := json.Unmarshal(data, &token); err != nil {
			continue
		}
		tokens = append(tokens, &token)
	}

	return tokens, nil
}

// DeleteByUserID removes all tokens registered for a user
func (r *PushTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	userTokensKey := fmt.Sprintf("push:user:%s:tokens", userID)
	tokenStrs, err := r.client.SMembers(ctx, userTokensKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get user tokens: %w", err)
	}

	for _, tokenStr := range tokenStrs {
		if err := r.client.Del(ctx, fmt.Sprintf("push:token:%s", tokenStr)).Err(); err != nil {
			return fmt.Errorf("failed to delete token: %w", err)
		}
	}

	if err := r.client.Del(ctx, userTokensKey).Err(); err != nil {
		return fmt.Errorf("failed to delete user token set: %w", err)
	}

	return nil
}
