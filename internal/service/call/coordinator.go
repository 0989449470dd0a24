// Package call coordinates audio/video call signaling between two
// connected users: ringing, the peer-address handoff, and the terminal
// record written when a call ends.
package call

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	"carelink-backend/pkg/constants"
	apperrors "carelink-backend/pkg/errors"
	"carelink-backend/pkg/logger"
	"carelink-backend/pkg/metrics"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/push"
)

// Presence is the slice of the presence registry the coordinator needs.
type Presence interface {
	IsOnline(userID uuid.UUID) bool
	PeerID(userID uuid.UUID) (string, bool)
	SetPeerID(userID uuid.UUID, peerID string)
}

// Notifier pushes an event to a connected user.
type Notifier interface {
	Deliver(userID uuid.UUID, event string, data interface{}) bool
}

// RecordSink is the durable log of terminal call outcomes.
type RecordSink interface {
	Save(ctx context.Context, record *domain.CallRecord) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error)
}

// Pusher sends a best-effort push notification.
type Pusher interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, notification *push.Notification)
}

// Streamer publishes terminal call records for downstream consumers.
type Streamer interface {
	PublishCallRecord(ctx context.Context, record *domain.CallRecord)
}

// session is one in-flight call. Guarded by the coordinator mutex.
type session struct {
	callID        uuid.UUID
	callerID      uuid.UUID
	callerName    string
	receiverID    uuid.UUID
	callType      domain.CallType
	appointmentID *uuid.UUID
	state         domain.CallState
	startedAt     time.Time
	connectedAt   time.Time
	timer         *time.Timer

	// peer-address handoff: answerCall and registerPeerId race on
	// separate channels, so acceptance and the receiver's peer
	// address are tracked independently and callAccepted fires once
	// both are in.
	accepted       bool
	receiverPeerID string
	handoffDone    bool
}

// Coordinator owns all in-flight call sessions. Each session is
// indexed under both participants so a busy check is one map lookup.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	presence Presence
	notifier Notifier
	records  RecordSink
	pusher   Pusher
	streamer Streamer
	metrics  *metrics.Metrics

	noAnswerTimeout time.Duration
}

func NewCoordinator(
	presence Presence,
	notifier Notifier,
	records RecordSink,
	pusher Pusher,
	streamer Streamer,
	m *metrics.Metrics,
) *Coordinator {
	return &Coordinator{
		sessions:        make(map[uuid.UUID]*session),
		presence:        presence,
		notifier:        notifier,
		records:         records,
		pusher:          pusher,
		streamer:        streamer,
		metrics:         m,
		noAnswerTimeout: constants.CallNoAnswerTimeout,
	}
}

// SetNoAnswerTimeout overrides the ring timeout. Intended for tests.
func (c *Coordinator) SetNoAnswerTimeout(d time.Duration) {
	c.noAnswerTimeout = d
}

// CallUserInput contains a call attempt
type CallUserInput struct {
	Caller        *domain.Identity
	ReceiverID    uuid.UUID
	CallType      domain.CallType
	AppointmentID *uuid.UUID
}

// CallUser initiates a call. Every attempt resolves to exactly one of:
// an incomingCall delivered to the receiver, or an immediate
// callRejected to the caller with a terminal record.
func (c *Coordinator) CallUser(ctx context.Context, input *CallUserInput) error {
	if !input.CallType.Valid() {
		return apperrors.ValidationError("Call type must be audio or video")
	}
	if input.ReceiverID == uuid.Nil || input.ReceiverID == input.Caller.UserID {
		return apperrors.ValidationError("Invalid receiver id")
	}

	c.mu.Lock()
	if _, inCall := c.sessions[input.Caller.UserID]; inCall {
		c.mu.Unlock()
		return apperrors.CallInProgressError()
	}
	if _, busy := c.sessions[input.ReceiverID]; busy {
		c.mu.Unlock()
		c.rejectAttempt(ctx, input, "busy")
		return nil
	}

	sess := &session{
		callID:        uuid.New(),
		callerID:      input.Caller.UserID,
		callerName:    input.Caller.Name,
		receiverID:    input.ReceiverID,
		callType:      input.CallType,
		appointmentID: input.AppointmentID,
		state:         domain.CallCalling,
		startedAt:     time.Now(),
	}
	c.sessions[sess.callerID] = sess
	c.sessions[sess.receiverID] = sess
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallsActive.Inc()
	}

	// a registry entry can be stale between disconnect and cleanup;
	// the failed delivery below degrades to the offline path
	delivered := c.presence.IsOnline(input.ReceiverID) &&
		c.notifier.Deliver(input.ReceiverID, realtime.EventIncomingCall, &realtime.IncomingCallPayload{
			CallerID:   input.Caller.UserID,
			CallerName: input.Caller.Name,
			CallType:   input.CallType,
		})
	if !delivered {
		c.removeSession(sess)
		c.rejectAttempt(ctx, input, "offline")
		return nil
	}

	c.mu.Lock()
	if cur, ok := c.sessions[sess.callerID]; ok && cur == sess && sess.state == domain.CallCalling {
		sess.state = domain.CallRinging
		sess.timer = time.AfterFunc(c.noAnswerTimeout, func() {
			c.onNoAnswer(sess)
		})
	}
	c.mu.Unlock()

	return nil
}

// removeSession drops a session from the index if it is still current.
func (c *Coordinator) removeSession(sess *session) {
	c.mu.Lock()
	if cur, ok := c.sessions[sess.callerID]; ok && cur == sess {
		delete(c.sessions, sess.callerID)
		delete(c.sessions, sess.receiverID)
	}
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.CallsActive.Dec()
	}
}

// rejectAttempt resolves an undeliverable call attempt: callRejected to
// the caller plus a missed record.
func (c *Coordinator) rejectAttempt(ctx context.Context, input *CallUserInput, reason string) {
	c.notifier.Deliver(input.Caller.UserID, realtime.EventCallRejected, &realtime.CallRejectedPayload{
		Reason: reason,
	})
	c.writeRecord(ctx, &domain.CallRecord{
		CallID:        uuid.New(),
		CallerID:      input.Caller.UserID,
		ReceiverID:    input.ReceiverID,
		AppointmentID: input.AppointmentID,
		CallType:      input.CallType,
		Outcome:       domain.CallMissed,
		StartedAt:     time.Now(),
		EndedAt:       time.Now(),
		Duration:      0,
	})
	if reason == "offline" && c.pusher != nil {
		c.pusher.NotifyUser(ctx, input.ReceiverID, &push.Notification{
			Title: "Missed call",
			Body:  input.Caller.Name,
			Data:  map[string]string{"type": "missed_call", "caller_id": input.Caller.UserID.String()},
		})
	}
}

// onNoAnswer fires when the ring timer elapses without an answer or a
// reject. Both sides observe callEnded and a missed record is written.
func (c *Coordinator) onNoAnswer(sess *session) {
	c.mu.Lock()
	cur, ok := c.sessions[sess.callerID]
	if !ok || cur != sess || sess.state != domain.CallRinging {
		c.mu.Unlock()
		return
	}
	sess.state = domain.CallEnded
	delete(c.sessions, sess.callerID)
	delete(c.sessions, sess.receiverID)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallsActive.Dec()
	}

	ended := &realtime.CallEndedPayload{Reason: "no-answer"}
	c.notifier.Deliver(sess.callerID, realtime.EventCallEnded, ended)
	c.notifier.Deliver(sess.receiverID, realtime.EventCallEnded, ended)

	ctx := context.Background()
	c.writeRecord(ctx, c.terminalRecord(sess, domain.CallMissed, 0))
	if c.pusher != nil {
		c.pusher.NotifyUser(ctx, sess.receiverID, &push.Notification{
			Title: "Missed call",
			Body:  sess.callerName,
			Data:  map[string]string{"type": "missed_call", "caller_id": sess.callerID.String()},
		})
	}
}

// AnswerCall accepts a ringing call. The callAccepted event is held
// until the receiver's peer address is known, whichever channel it
// arrives on first.
func (c *Coordinator) AnswerCall(ctx context.Context, receiver *domain.Identity, callerID uuid.UUID, peerID string) error {
	c.mu.Lock()
	sess, ok := c.sessions[receiver.UserID]
	if !ok || sess.callerID != callerID || sess.receiverID != receiver.UserID {
		c.mu.Unlock()
		return apperrors.CallNotFoundError()
	}
	if !sess.state.CanTransition(domain.CallConnected) {
		c.mu.Unlock()
		return apperrors.CallNotFoundError()
	}
	sess.state = domain.CallConnected
	sess.connectedAt = time.Now()
	sess.accepted = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
	if peerID != "" {
		sess.receiverPeerID = peerID
	} else if known, ok := c.presence.PeerID(receiver.UserID); ok {
		sess.receiverPeerID = known
	}
	c.mu.Unlock()

	if peerID != "" {
		c.presence.SetPeerID(receiver.UserID, peerID)
	}
	c.completeHandoff(sess)
	return nil
}

// RegisterPeer attaches a media peer address to a user's presence
// entry. If that user has an answered call still waiting on its
// address, the handoff completes now.
func (c *Coordinator) RegisterPeer(userID uuid.UUID, peerID string) {
	c.presence.SetPeerID(userID, peerID)

	c.mu.Lock()
	sess, ok := c.sessions[userID]
	if ok && sess.receiverID == userID && sess.receiverPeerID == "" {
		sess.receiverPeerID = peerID
	} else {
		sess = nil
	}
	c.mu.Unlock()

	if sess != nil {
		c.completeHandoff(sess)
	}
}

// completeHandoff emits callAccepted to the caller once the session is
// both accepted and has a resolved receiver peer address.
func (c *Coordinator) completeHandoff(sess *session) {
	c.mu.Lock()
	ready := sess.accepted && sess.receiverPeerID != "" && !sess.handoffDone
	if ready {
		sess.handoffDone = true
	}
	peerID := sess.receiverPeerID
	c.mu.Unlock()
	if !ready {
		return
	}

	c.notifier.Deliver(sess.callerID, realtime.EventCallAccepted, &realtime.CallAcceptedPayload{
		ReceiverID:     sess.receiverID,
		ReceiverPeerID: peerID,
	})
}

// RejectCall declines a ringing call: callRejected to the caller, a
// rejected record, session gone.
func (c *Coordinator) RejectCall(ctx context.Context, receiver *domain.Identity, callerID uuid.UUID, reason string) error {
	c.mu.Lock()
	sess, ok := c.sessions[receiver.UserID]
	if !ok || sess.callerID != callerID || sess.receiverID != receiver.UserID {
		c.mu.Unlock()
		return apperrors.CallNotFoundError()
	}
	if sess.state != domain.CallCalling && sess.state != domain.CallRinging {
		c.mu.Unlock()
		return apperrors.CallNotFoundError()
	}
	sess.state = domain.CallEnded
	if sess.timer != nil {
		sess.timer.Stop()
	}
	delete(c.sessions, sess.callerID)
	delete(c.sessions, sess.receiverID)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallsActive.Dec()
	}
	if reason == "" {
		reason = "rejected"
	}

	c.notifier.Deliver(callerID, realtime.EventCallRejected, &realtime.CallRejectedPayload{Reason: reason})
	c.writeRecord(ctx, c.terminalRecord(sess, domain.CallRejected, 0))
	return nil
}

// EndCall terminates a call from either side. A call ended after it
// connected is completed with its real duration; ended before that, it
// is recorded as failed with duration zero.
func (c *Coordinator) EndCall(ctx context.Context, actor *domain.Identity, counterpartID uuid.UUID) error {
	c.mu.Lock()
	sess, ok := c.sessions[actor.UserID]
	if !ok || !sessionHas(sess, counterpartID) {
		c.mu.Unlock()
		return apperrors.CallNotFoundError()
	}
	wasConnected := sess.state == domain.CallConnected
	sess.state = domain.CallEnded
	if sess.timer != nil {
		sess.timer.Stop()
	}
	delete(c.sessions, sess.callerID)
	delete(c.sessions, sess.receiverID)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CallsActive.Dec()
	}

	c.notifier.Deliver(counterpartID, realtime.EventCallEnded, &realtime.CallEndedPayload{})

	// duration counts talk time only, not the ring interval
	outcome := domain.CallFailed
	duration := 0
	if wasConnected {
		outcome = domain.CallCompleted
		duration = int(time.Since(sess.connectedAt).Seconds())
	}
	c.writeRecord(ctx, c.terminalRecord(sess, outcome, duration))
	return nil
}

// HandleDisconnect ends any in-flight call the disconnecting user was
// part of, as if that side had invoked endCall.
func (c *Coordinator) HandleDisconnect(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	sess, ok := c.sessions[userID]
	c.mu.Unlock()
	if !ok {
		return
	}

	counterpart := sess.callerID
	if userID == sess.callerID {
		counterpart = sess.receiverID
	}
	identity := &domain.Identity{UserID: userID}
	if err := c.EndCall(ctx, identity, counterpart); err != nil {
		logger.Debug("disconnect cleanup found no live call",
			zap.String("user_id", userID.String()))
	}
}

// History returns the caller's terminal call records, newest first.
func (c *Coordinator) History(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.CallRecord, error) {
	records, err := c.records.ListForUser(ctx, userID, params.Limit, params.Offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return records, nil
}

func (c *Coordinator) terminalRecord(sess *session, outcome domain.CallOutcome, duration int) *domain.CallRecord {
	return &domain.CallRecord{
		CallID:        sess.callID,
		CallerID:      sess.callerID,
		ReceiverID:    sess.receiverID,
		AppointmentID: sess.appointmentID,
		CallType:      sess.callType,
		Outcome:       outcome,
		StartedAt:     sess.startedAt,
		EndedAt:       time.Now(),
		Duration:      duration,
	}
}

// writeRecord persists and streams a terminal record. The call flow
// has already resolved by the time this runs, so failures are logged
// rather than surfaced.
func (c *Coordinator) writeRecord(ctx context.Context, record *domain.CallRecord) {
	if err := c.records.Save(ctx, record); err != nil {
		logger.Error("failed to write call record",
			zap.String("call_id", record.CallID.String()),
			zap.String("outcome", string(record.Outcome)),
			zap.Error(err))
	}
	if c.streamer != nil {
		c.streamer.PublishCallRecord(ctx, record)
	}
	if c.metrics != nil {
		c.metrics.CallsTotal.WithLabelValues(string(record.Outcome)).Inc()
		if record.Outcome == domain.CallCompleted {
			c.metrics.CallDuration.Observe(float64(record.Duration))
		}
	}
}

func sessionHas(sess *session, userID uuid.UUID) bool {
	return sess.callerID == userID || sess.receiverID == userID
}
