// Package presence tracks which users currently hold a live real-time
// connection. The registry is the authoritative in-process map; an
// optional Mirror reflects transitions into a shared store so other
// components (and other instances) can observe them.
package presence

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/logger"
)

// Conn is a live connection able to push an event to its user.
type Conn interface {
	Deliver(event string, data interface{}) error
}

// Mirror reflects presence transitions into an external store.
type Mirror interface {
	SetOnline(ctx context.Context, userID uuid.UUID) error
	SetOffline(ctx context.Context, userID uuid.UUID) error
}

// Entry is one online user.
type Entry struct {
	UserID uuid.UUID
	Role   domain.Role
	Conn   Conn
	PeerID string
}

// Registry maps user IDs to their single live connection. A user who
// connects again replaces the previous entry (last writer wins).
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
	mirror  Mirror
}

func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		entries: make(map[uuid.UUID]*Entry),
		mirror:  mirror,
	}
}

// Register puts the user online. Returns the connection it displaced,
// if any, so the caller can close it.
func (r *Registry) Register(ctx context.Context, identity *domain.Identity, conn Conn) Conn {
	r.mu.Lock()
	prev := r.entries[identity.UserID]
	r.entries[identity.UserID] = &Entry{
		UserID: identity.UserID,
		Role:   identity.Role,
		Conn:   conn,
	}
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.SetOnline(ctx, identity.UserID); err != nil {
			logger.Warn("presence mirror set online failed",
				zap.String("user_id", identity.UserID.String()), zap.Error(err))
		}
	}
	if prev != nil {
		return prev.Conn
	}
	return nil
}

// Unregister removes the user if conn is still their registered
// connection. A stale disconnect from a displaced connection is a
// no-op. Returns true if the user went offline.
func (r *Registry) Unregister(ctx context.Context, userID uuid.UUID, conn Conn) bool {
	r.mu.Lock()
	entry, ok := r.entries[userID]
	if !ok || entry.Conn != conn {
		r.mu.Unlock()
		return false
	}
	delete(r.entries, userID)
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.SetOffline(ctx, userID); err != nil {
			logger.Warn("presence mirror set offline failed",
				zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return true
}

// Lookup returns the entry for an online user.
func (r *Registry) Lookup(userID uuid.UUID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// IsOnline reports whether the user has a live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[userID]
	return ok
}

// SetPeerID records the media peer address for an online user.
// Silently ignored if the user has gone offline.
func (r *Registry) SetPeerID(userID uuid.UUID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[userID]; ok {
		entry.PeerID = peerID
	}
}

// PeerID returns the recorded media peer address, if any.
func (r *Registry) PeerID(userID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userID]
	if !ok || entry.PeerID == "" {
		return "", false
	}
	return entry.PeerID, true
}

// Roster returns the IDs of all online users.
func (r *Registry) Roster() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Deliver pushes an event to one user. Returns false if the user is
// offline or the write failed.
func (r *Registry) Deliver(userID uuid.UUID, event string, data interface{}) bool {
	r.mu.RLock()
	entry, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := entry.Conn.Deliver(event, data); err != nil {
		logger.Warn("presence deliver failed",
			zap.String("user_id", userID.String()), zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

// BroadcastAll pushes an event to every online user.
func (r *Registry) BroadcastAll(event string, data interface{}) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.entries))
	for _, entry := range r.entries {
		conns = append(conns, entry.Conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Deliver(event, data); err != nil {
			logger.Debug("broadcast delivery skipped", zap.String("event", event), zap.Error(err))
		}
	}
}
