package conversation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	apperrors "carelink-backend/pkg/errors"
	"carelink-backend/pkg/push"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockRepository) GetByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	args := m.Called(ctx, userA, userB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, conversationID uuid.UUID, from, to domain.ConversationStatus) error {
	args := m.Called(ctx, conversationID, from, to)
	return args.Error(0)
}

func (m *MockRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

func (m *MockRepository) ListPendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*domain.Conversation, error) {
	args := m.Called(ctx, doctorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Conversation), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Deliver(userID uuid.UUID, event string, data interface{}) bool {
	args := m.Called(userID, event, data)
	return args.Bool(0)
}

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) NotifyUser(ctx context.Context, userID uuid.UUID, notification *push.Notification) {
	m.Called(ctx, userID, notification)
}

func patient() *domain.Identity {
	return &domain.Identity{UserID: uuid.New(), Name: "Alice Nguyen", Role: domain.RolePatient}
}

func doctor() *domain.Identity {
	return &domain.Identity{UserID: uuid.New(), Name: "Dr. Tran", Role: domain.RoleDoctor}
}

func TestRequestChatCreatesPendingConversation(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	svc := NewService(repo, notifier, nil, nil)

	p := patient()
	doctorID := uuid.New()

	repo.On("GetByPair", mock.Anything, p.UserID, doctorID).Return(nil, domain.ErrNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(c *domain.Conversation) bool {
		return c.PatientID == p.UserID &&
			c.DoctorID == doctorID &&
			c.InitiatorID == p.UserID &&
			c.PatientName == p.Name &&
			c.Status == domain.ConversationPending
	})).Return(nil)
	notifier.On("Deliver", doctorID, realtime.EventChatRequest, mock.Anything).Return(true)

	out, err := svc.RequestChat(context.Background(), &RequestChatInput{Patient: p, DoctorID: doctorID})

	assert.NoError(t, err)
	assert.True(t, out.Delivered)
	assert.Equal(t, domain.ConversationPending, out.Conversation.Status)
	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRequestChatOfflineDoctorGetsPush(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	pusher := new(MockPusher)
	svc := NewService(repo, notifier, pusher, nil)

	p := patient()
	doctorID := uuid.New()

	repo.On("GetByPair", mock.Anything, p.UserID, doctorID).Return(nil, domain.ErrNotFound)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Deliver", doctorID, realtime.EventChatRequest, mock.Anything).Return(false)
	pusher.On("NotifyUser", mock.Anything, doctorID, mock.MatchedBy(func(n *push.Notification) bool {
		return n.Data["type"] == "chat_request"
	})).Return()

	out, err := svc.RequestChat(context.Background(), &RequestChatInput{Patient: p, DoctorID: doctorID})

	assert.NoError(t, err)
	assert.False(t, out.Delivered)
	pusher.AssertExpectations(t)
}

func TestRequestChatPendingIsIdempotent(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	svc := NewService(repo, notifier, nil, nil)

	p := patient()
	doctorID := uuid.New()
	existing := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      p.UserID,
		DoctorID:       doctorID,
		Status:         domain.ConversationPending,
	}

	repo.On("GetByPair", mock.Anything, p.UserID, doctorID).Return(existing, nil)
	notifier.On("Deliver", p.UserID, realtime.EventRequestStatusUpdate, mock.Anything).Return(true)

	out, err := svc.RequestChat(context.Background(), &RequestChatInput{Patient: p, DoctorID: doctorID})

	assert.NoError(t, err)
	assert.Equal(t, existing.ConversationID, out.Conversation.ConversationID)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestChatReopensRejectedConversation(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	svc := NewService(repo, notifier, nil, nil)

	p := patient()
	doctorID := uuid.New()
	existing := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      p.UserID,
		PatientName:    p.Name,
		DoctorID:       doctorID,
		Status:         domain.ConversationRejected,
	}

	repo.On("GetByPair", mock.Anything, p.UserID, doctorID).Return(existing, nil)
	repo.On("UpdateStatus", mock.Anything, existing.ConversationID,
		domain.ConversationRejected, domain.ConversationPending).Return(nil)
	notifier.On("Deliver", doctorID, realtime.EventChatRequest, mock.Anything).Return(true)

	out, err := svc.RequestChat(context.Background(), &RequestChatInput{Patient: p, DoctorID: doctorID})

	assert.NoError(t, err)
	assert.Equal(t, domain.ConversationPending, out.Conversation.Status)
	repo.AssertExpectations(t)
}

func TestRequestChatRejectsDoctorCaller(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockNotifier), nil, nil)

	_, err := svc.RequestChat(context.Background(), &RequestChatInput{
		Patient:  doctor(),
		DoctorID: uuid.New(),
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)
}

func TestRespondAcceptNotifiesBothSides(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	svc := NewService(repo, notifier, nil, nil)

	d := doctor()
	conversation := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       d.UserID,
		Status:         domain.ConversationPending,
	}

	repo.On("GetByID", mock.Anything, conversation.ConversationID).Return(conversation, nil)
	repo.On("UpdateStatus", mock.Anything, conversation.ConversationID,
		domain.ConversationPending, domain.ConversationAccepted).Return(nil)
	notifier.On("Deliver", conversation.PatientID, realtime.EventRequestResponse,
		mock.MatchedBy(func(p *realtime.RequestResponsePayload) bool {
			return p.Status == domain.ConversationAccepted
		})).Return(true)
	notifier.On("Deliver", d.UserID, realtime.EventResponseConfirmation, mock.Anything).Return(true)

	out, err := svc.Respond(context.Background(), &RespondInput{
		Doctor:         d,
		ConversationID: conversation.ConversationID,
		Status:         domain.ConversationAccepted,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.ConversationAccepted, out.Conversation.Status)
	notifier.AssertExpectations(t)
}

func TestRespondAlreadyProcessed(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	svc := NewService(repo, notifier, nil, nil)

	d := doctor()
	conversation := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       d.UserID,
		Status:         domain.ConversationAccepted,
	}

	repo.On("GetByID", mock.Anything, conversation.ConversationID).Return(conversation, nil)
	repo.On("UpdateStatus", mock.Anything, conversation.ConversationID,
		domain.ConversationPending, domain.ConversationRejected).Return(domain.ErrStatusConflict)

	_, err := svc.Respond(context.Background(), &RespondInput{
		Doctor:         d,
		ConversationID: conversation.ConversationID,
		Status:         domain.ConversationRejected,
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeAlreadyProcessed, appErr.Code)
	notifier.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything, mock.Anything)
}

func TestRespondWrongDoctorForbidden(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockNotifier), nil, nil)

	conversation := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      uuid.New(),
		DoctorID:       uuid.New(),
		Status:         domain.ConversationPending,
	}
	repo.On("GetByID", mock.Anything, conversation.ConversationID).Return(conversation, nil)

	_, err := svc.Respond(context.Background(), &RespondInput{
		Doctor:         doctor(), // different doctor
		ConversationID: conversation.ConversationID,
		Status:         domain.ConversationAccepted,
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRespondInvalidStatus(t *testing.T) {
	svc := NewService(new(MockRepository), new(MockNotifier), nil, nil)

	_, err := svc.Respond(context.Background(), &RespondInput{
		Doctor:         doctor(),
		ConversationID: uuid.New(),
		Status:         domain.ConversationPending,
	})

	appErr := apperrors.GetAppError(err)
	assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
}

func TestPendingRequestsBuildsWirePayloads(t *testing.T) {
	repo := new(MockRepository)
	svc := NewService(repo, new(MockNotifier), nil, nil)

	doctorID := uuid.New()
	pending := []*domain.Conversation{
		{ConversationID: uuid.New(), PatientID: uuid.New(), PatientName: "Alice Nguyen", DoctorID: doctorID},
		{ConversationID: uuid.New(), PatientID: uuid.New(), PatientName: "Bob Okafor", DoctorID: doctorID},
	}
	repo.On("ListPendingForDoctor", mock.Anything, doctorID).Return(pending, nil)

	requests, err := svc.PendingRequests(context.Background(), doctorID)

	assert.NoError(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, "Alice Nguyen", requests[0].Patient.Name)
	assert.Equal(t, pending[1].ConversationID, requests[1].ConversationID)
}
