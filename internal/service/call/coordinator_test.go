package call

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	apperrors "carelink-backend/pkg/errors"
	"carelink-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

// Fakes

type deliveredEvent struct {
	userID uuid.UUID
	event  string
	data   interface{}
}

type fakeNotifier struct {
	mu      sync.Mutex
	events  []deliveredEvent
	offline map[uuid.UUID]bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{offline: make(map[uuid.UUID]bool)}
}

func (n *fakeNotifier) Deliver(userID uuid.UUID, event string, data interface{}) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offline[userID] {
		return false
	}
	n.events = append(n.events, deliveredEvent{userID, event, data})
	return true
}

func (n *fakeNotifier) eventsFor(userID uuid.UUID) []deliveredEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []deliveredEvent
	for _, e := range n.events {
		if e.userID == userID {
			out = append(out, e)
		}
	}
	return out
}

type fakePresence struct {
	mu     sync.Mutex
	online map[uuid.UUID]bool
	peers  map[uuid.UUID]string
}

func newFakePresence() *fakePresence {
	return &fakePresence{online: make(map[uuid.UUID]bool), peers: make(map[uuid.UUID]string)}
}

func (p *fakePresence) IsOnline(userID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *fakePresence) PeerID(userID uuid.UUID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	peerID, ok := p.peers[userID]
	return peerID, ok && peerID != ""
}

func (p *fakePresence) SetPeerID(userID uuid.UUID, peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[userID] = peerID
}

type fakeRecords struct {
	mu    sync.Mutex
	saved []*domain.CallRecord
}

func (r *fakeRecords) Save(_ context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, record)
	return nil
}

func (r *fakeRecords) ListForUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, nil
}

func (r *fakeRecords) outcomes() []domain.CallOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CallOutcome, len(r.saved))
	for i, rec := range r.saved {
		out[i] = rec.Outcome
	}
	return out
}

type fixture struct {
	coordinator *Coordinator
	notifier    *fakeNotifier
	presence    *fakePresence
	records     *fakeRecords
	caller      *domain.Identity
	receiver    *domain.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	notifier := newFakeNotifier()
	presence := newFakePresence()
	records := &fakeRecords{}
	f := &fixture{
		coordinator: NewCoordinator(presence, notifier, records, nil, nil, nil),
		notifier:    notifier,
		presence:    presence,
		records:     records,
		caller:      &domain.Identity{UserID: uuid.New(), Name: "Alice Nguyen", Role: domain.RolePatient},
		receiver:    &domain.Identity{UserID: uuid.New(), Name: "Dr. Tran", Role: domain.RoleDoctor},
	}
	presence.online[f.caller.UserID] = true
	presence.online[f.receiver.UserID] = true
	return f
}

func (f *fixture) callInput() *CallUserInput {
	return &CallUserInput{
		Caller:     f.caller,
		ReceiverID: f.receiver.UserID,
		CallType:   domain.CallTypeVideo,
	}
}

func TestCallUserRingsOnlineReceiver(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.CallUser(context.Background(), f.callInput())
	require.NoError(t, err)

	events := f.notifier.eventsFor(f.receiver.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventIncomingCall, events[0].event)
	payload := events[0].data.(*realtime.IncomingCallPayload)
	assert.Equal(t, f.caller.UserID, payload.CallerID)
	assert.Equal(t, domain.CallTypeVideo, payload.CallType)
	assert.Empty(t, f.records.outcomes())
}

func TestCallUserOfflineReceiver(t *testing.T) {
	f := newFixture(t)
	f.presence.online[f.receiver.UserID] = false

	err := f.coordinator.CallUser(context.Background(), f.callInput())
	require.NoError(t, err)

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallRejected, events[0].event)
	assert.Equal(t, "offline", events[0].data.(*realtime.CallRejectedPayload).Reason)

	require.Len(t, f.records.saved, 1)
	assert.Equal(t, domain.CallMissed, f.records.saved[0].Outcome)
	assert.Equal(t, 0, f.records.saved[0].Duration)

	// attempt fully resolved, the caller is free to call again
	assert.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
}

func TestCallUserStalePresenceDegradesToOffline(t *testing.T) {
	f := newFixture(t)
	// registry still says online but the connection is gone
	f.notifier.offline[f.receiver.UserID] = true

	err := f.coordinator.CallUser(context.Background(), f.callInput())
	require.NoError(t, err)

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallRejected, events[0].event)
	assert.Equal(t, []domain.CallOutcome{domain.CallMissed}, f.records.outcomes())
}

func TestCallUserBusyReceiver(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	second := &domain.Identity{UserID: uuid.New(), Name: "Bob Okafor", Role: domain.RolePatient}
	f.presence.online[second.UserID] = true

	err := f.coordinator.CallUser(context.Background(), &CallUserInput{
		Caller:     second,
		ReceiverID: f.receiver.UserID,
		CallType:   domain.CallTypeAudio,
	})
	require.NoError(t, err)

	events := f.notifier.eventsFor(second.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallRejected, events[0].event)
	assert.Equal(t, "busy", events[0].data.(*realtime.CallRejectedPayload).Reason)
	assert.Equal(t, []domain.CallOutcome{domain.CallMissed}, f.records.outcomes())

	// the first call is untouched: receiver saw exactly one incomingCall
	assert.Len(t, f.notifier.eventsFor(f.receiver.UserID), 1)
}

func TestCallUserCallerAlreadyInCall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	other := uuid.New()
	f.presence.online[other] = true
	err := f.coordinator.CallUser(context.Background(), &CallUserInput{
		Caller:     f.caller,
		ReceiverID: other,
		CallType:   domain.CallTypeAudio,
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeCallInProgress, appErr.Code)
}

func TestAnswerCallWithInlinePeerID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	err := f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer-receiver")
	require.NoError(t, err)

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallAccepted, events[0].event)
	payload := events[0].data.(*realtime.CallAcceptedPayload)
	assert.Equal(t, f.receiver.UserID, payload.ReceiverID)
	assert.Equal(t, "peer-receiver", payload.ReceiverPeerID)
}

func TestAnswerCallWaitsForPeerRegistration(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	// signaling acceptance lands first, without a media address
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, ""))
	assert.Empty(t, f.notifier.eventsFor(f.caller.UserID))

	// the peer address arrives on the other channel
	f.coordinator.RegisterPeer(f.receiver.UserID, "peer-late")

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallAccepted, events[0].event)
	assert.Equal(t, "peer-late", events[0].data.(*realtime.CallAcceptedPayload).ReceiverPeerID)
}

func TestAnswerCallUsesPreRegisteredPeer(t *testing.T) {
	f := newFixture(t)
	f.presence.SetPeerID(f.receiver.UserID, "peer-early")
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, ""))

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, "peer-early", events[0].data.(*realtime.CallAcceptedPayload).ReceiverPeerID)
}

func TestPeerHandoffFiresOnce(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, ""))
	f.coordinator.RegisterPeer(f.receiver.UserID, "peer-once")

	// a raced duplicate completion must not re-emit callAccepted
	f.coordinator.mu.Lock()
	sess := f.coordinator.sessions[f.caller.UserID]
	f.coordinator.mu.Unlock()
	require.NotNil(t, sess)
	f.coordinator.completeHandoff(sess)

	accepted := 0
	for _, e := range f.notifier.eventsFor(f.caller.UserID) {
		if e.event == realtime.EventCallAccepted {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestAnswerCallUnknown(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer")

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeCallNotFound, appErr.Code)
}

func TestRejectCallWritesRejectedRecord(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	err := f.coordinator.RejectCall(context.Background(), f.receiver, f.caller.UserID, "busy")
	require.NoError(t, err)

	events := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCallRejected, events[0].event)
	assert.Equal(t, "busy", events[0].data.(*realtime.CallRejectedPayload).Reason)

	require.Len(t, f.records.saved, 1)
	assert.Equal(t, domain.CallRejected, f.records.saved[0].Outcome)
	assert.Equal(t, 0, f.records.saved[0].Duration)
}

func TestNoAnswerTimeout(t *testing.T) {
	f := newFixture(t)
	f.coordinator.SetNoAnswerTimeout(20 * time.Millisecond)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	assert.Eventually(t, func() bool {
		return len(f.records.outcomes()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, domain.CallMissed, f.records.saved[0].Outcome)
	callerEvents := f.notifier.eventsFor(f.caller.UserID)
	require.Len(t, callerEvents, 1)
	assert.Equal(t, realtime.EventCallEnded, callerEvents[0].event)
	assert.Equal(t, "no-answer", callerEvents[0].data.(*realtime.CallEndedPayload).Reason)

	// both sides are free again
	assert.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
}

func TestAnswerCancelsNoAnswerTimer(t *testing.T) {
	f := newFixture(t)
	f.coordinator.SetNoAnswerTimeout(20 * time.Millisecond)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer"))

	time.Sleep(60 * time.Millisecond)

	for _, e := range f.notifier.eventsFor(f.caller.UserID) {
		assert.NotEqual(t, realtime.EventCallEnded, e.event)
	}
	assert.Empty(t, f.records.outcomes())
}

func TestEndCallConnectedCompletes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer"))

	err := f.coordinator.EndCall(context.Background(), f.caller, f.receiver.UserID)
	require.NoError(t, err)

	receiverEvents := f.notifier.eventsFor(f.receiver.UserID)
	assert.Equal(t, realtime.EventCallEnded, receiverEvents[len(receiverEvents)-1].event)

	require.Len(t, f.records.saved, 1)
	record := f.records.saved[0]
	assert.Equal(t, domain.CallCompleted, record.Outcome)
	assert.GreaterOrEqual(t, record.Duration, 0)
	assert.False(t, record.EndedAt.Before(record.StartedAt))
}

func TestCompletedDurationExcludesRingTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	// ring well past a whole second before answering
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer"))
	require.NoError(t, f.coordinator.EndCall(context.Background(), f.caller, f.receiver.UserID))

	require.Len(t, f.records.saved, 1)
	record := f.records.saved[0]
	assert.Equal(t, domain.CallCompleted, record.Outcome)
	assert.Equal(t, 0, record.Duration)
	// StartedAt still marks the attempt, so the ring interval shows up
	// between StartedAt and EndedAt but not in the duration
	assert.GreaterOrEqual(t, record.EndedAt.Sub(record.StartedAt), time.Second)
}

func TestEndCallBeforeConnectIsFailed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))

	// caller gives up while still ringing
	err := f.coordinator.EndCall(context.Background(), f.caller, f.receiver.UserID)
	require.NoError(t, err)

	require.Len(t, f.records.saved, 1)
	assert.Equal(t, domain.CallFailed, f.records.saved[0].Outcome)
	assert.Equal(t, 0, f.records.saved[0].Duration)
}

func TestEndCallUnknownCounterpart(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.EndCall(context.Background(), f.caller, f.receiver.UserID)

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeCallNotFound, appErr.Code)
}

func TestHandleDisconnectEndsActiveCall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
	require.NoError(t, f.coordinator.AnswerCall(context.Background(), f.receiver, f.caller.UserID, "peer"))

	f.coordinator.HandleDisconnect(context.Background(), f.receiver.UserID)

	callerEvents := f.notifier.eventsFor(f.caller.UserID)
	assert.Equal(t, realtime.EventCallEnded, callerEvents[len(callerEvents)-1].event)
	require.Len(t, f.records.saved, 1)
	assert.Equal(t, domain.CallCompleted, f.records.saved[0].Outcome)

	// no session remains for either side
	assert.NoError(t, f.coordinator.CallUser(context.Background(), f.callInput()))
}

func TestCallUserInvalidType(t *testing.T) {
	f := newFixture(t)

	err := f.coordinator.CallUser(context.Background(), &CallUserInput{
		Caller:     f.caller,
		ReceiverID: f.receiver.UserID,
		CallType:   domain.CallType("screen"),
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}
