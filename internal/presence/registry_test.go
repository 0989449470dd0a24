package presence

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

type fakeConn struct {
	mu     sync.Mutex
	events []string
	fail   bool
}

func (c *fakeConn) Deliver(event string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write failed")
	}
	c.events = append(c.events, event)
	return nil
}

type fakeMirror struct {
	mu      sync.Mutex
	online  []uuid.UUID
	offline []uuid.UUID
}

func (m *fakeMirror) SetOnline(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = append(m.online, id)
	return nil
}

func (m *fakeMirror) SetOffline(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = append(m.offline, id)
	return nil
}

func patientIdentity() *domain.Identity {
	return &domain.Identity{
		UserID: uuid.New(),
		Name:   "Alice Nguyen",
		Role:   domain.RolePatient,
	}
}

func TestRegisterAndLookup(t *testing.T) {
	mirror := &fakeMirror{}
	reg := NewRegistry(mirror)
	identity := patientIdentity()
	conn := &fakeConn{}

	displaced := reg.Register(context.Background(), identity, conn)
	assert.Nil(t, displaced)
	assert.True(t, reg.IsOnline(identity.UserID))

	entry, ok := reg.Lookup(identity.UserID)
	assert.True(t, ok)
	assert.Equal(t, identity.UserID, entry.UserID)
	assert.Equal(t, domain.RolePatient, entry.Role)
	assert.Len(t, mirror.online, 1)
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	reg := NewRegistry(nil)
	identity := patientIdentity()
	first := &fakeConn{}
	second := &fakeConn{}

	assert.Nil(t, reg.Register(context.Background(), identity, first))
	displaced := reg.Register(context.Background(), identity, second)
	assert.Equal(t, Conn(first), displaced)

	// delivery now goes to the replacement
	assert.True(t, reg.Deliver(identity.UserID, "ping", nil))
	assert.Empty(t, first.events)
	assert.Equal(t, []string{"ping"}, second.events)
}

func TestUnregisterStaleConnectionIsNoop(t *testing.T) {
	mirror := &fakeMirror{}
	reg := NewRegistry(mirror)
	identity := patientIdentity()
	first := &fakeConn{}
	second := &fakeConn{}

	reg.Register(context.Background(), identity, first)
	reg.Register(context.Background(), identity, second)

	// the displaced connection disconnecting must not take the user offline
	assert.False(t, reg.Unregister(context.Background(), identity.UserID, first))
	assert.True(t, reg.IsOnline(identity.UserID))
	assert.Empty(t, mirror.offline)

	assert.True(t, reg.Unregister(context.Background(), identity.UserID, second))
	assert.False(t, reg.IsOnline(identity.UserID))
	assert.Len(t, mirror.offline, 1)
}

func TestPeerIDLifecycle(t *testing.T) {
	reg := NewRegistry(nil)
	identity := patientIdentity()
	conn := &fakeConn{}
	reg.Register(context.Background(), identity, conn)

	_, ok := reg.PeerID(identity.UserID)
	assert.False(t, ok)

	reg.SetPeerID(identity.UserID, "peer-abc")
	peerID, ok := reg.PeerID(identity.UserID)
	assert.True(t, ok)
	assert.Equal(t, "peer-abc", peerID)

	// setting for an offline user is silently ignored
	ghost := uuid.New()
	reg.SetPeerID(ghost, "peer-xyz")
	_, ok = reg.PeerID(ghost)
	assert.False(t, ok)
}

func TestDeliverOfflineAndFailed(t *testing.T) {
	reg := NewRegistry(nil)
	assert.False(t, reg.Deliver(uuid.New(), "ping", nil))

	identity := patientIdentity()
	conn := &fakeConn{fail: true}
	reg.Register(context.Background(), identity, conn)
	assert.False(t, reg.Deliver(identity.UserID, "ping", nil))
}

func TestRosterAndBroadcast(t *testing.T) {
	reg := NewRegistry(nil)
	conns := make([]*fakeConn, 3)
	for i := range conns {
		conns[i] = &fakeConn{}
		reg.Register(context.Background(), patientIdentity(), conns[i])
	}

	assert.Len(t, reg.Roster(), 3)

	reg.BroadcastAll("userStatus", nil)
	for _, conn := range conns {
		assert.Equal(t, []string{"userStatus"}, conn.events)
	}
}
