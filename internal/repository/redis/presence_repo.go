package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"carelink-backend/pkg/constants"
)

// PresenceRepository mirrors the in-process presence registry into
// Redis so that roster reads survive across service replicas. The
// authoritative connection handles stay in-process; this mirror only
// answers "who is online".
type PresenceRepository struct {
	client *redis.Client
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(client *redis.Client) *PresenceRepository {
	return &PresenceRepository{client: client}
}

// SetOnline marks a user as online
func (r *PresenceRepository) SetOnline(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	// TTL bounds a stale entry when a node dies without unregistering
	if err := r.client.Set(ctx, key, "online", constants.PresenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}

	if err := r.client.SAdd(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}

	return nil
}

// SetOffline marks a user as offline
func (r *PresenceRepository) SetOffline(ctx context.Context, userID uuid.UUID) error {
	key := fmt.Sprintf("presence:%s", userID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}

	if err := r.client.SRem(ctx, "presence:online", userID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}

	return nil
}

// OnlineUsers returns the ids of all currently online users
func (r *PresenceRepository) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	idStrs, err := r.client.SMembers(ctx, "presence:online").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}

	userIDs := make([]uuid.UUID, 0, len(idStrs))
	for _, idStr := range idStrs {
		userID, err := uuid.Parse(idStr)
		if err != nil {
			continue // skip invalid entries
		}
		userIDs = append(userIDs, userID)
	}

	return userIDs, nil
}
