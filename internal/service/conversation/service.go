// Package conversation implements the request workflow between
// patients and doctors: a patient opens a request, the doctor accepts
// or rejects it, and a rejected request may be re-opened. The workflow
// tracks the relationship's standing; message delivery itself is not
// conditioned on it.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	apperrors "carelink-backend/pkg/errors"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/push"
)

// Repository is the conversation store the service depends on.
type Repository interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	GetByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	UpdateStatus(ctx context.Context, conversationID uuid.UUID, from, to domain.ConversationStatus) error
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error)
	ListPendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*domain.Conversation, error)
}

// Notifier pushes an event to a connected user. Returns false when the
// user has no live connection.
type Notifier interface {
	Deliver(userID uuid.UUID, event string, data interface{}) bool
}

// Pusher sends a best-effort push notification to a user's devices.
type Pusher interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, notification *push.Notification)
}

// Streamer publishes conversation transitions for downstream consumers.
type Streamer interface {
	PublishConversationEvent(ctx context.Context, conversation *domain.Conversation)
}

// Service handles the conversation request workflow
type Service struct {
	repo     Repository
	notifier Notifier
	pusher   Pusher
	streamer Streamer
}

func NewService(repo Repository, notifier Notifier, pusher Pusher, streamer Streamer) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		pusher:   pusher,
		streamer: streamer,
	}
}

// RequestChatInput contains a patient's request to talk to a doctor
type RequestChatInput struct {
	Patient  *domain.Identity
	DoctorID uuid.UUID
}

// RequestChatOutput reports the resulting conversation state
type RequestChatOutput struct {
	Conversation *domain.Conversation
	// Delivered is true when the doctor received the request live
	Delivered bool
}

// RequestChat opens (or re-opens) a conversation request from a patient
// to a doctor. A repeated request against a pending conversation is a
// no-op; a request against a rejected conversation re-opens it; a
// request against an accepted conversation only reminds the patient the
// conversation is already active.
func (s *Service) RequestChat(ctx context.Context, input *RequestChatInput) (*RequestChatOutput, error) {
	if input.Patient.Role != domain.RolePatient {
		return nil, apperrors.ForbiddenError("Only patients can request a conversation")
	}
	if input.DoctorID == uuid.Nil || input.DoctorID == input.Patient.UserID {
		return nil, apperrors.ValidationError("Invalid doctor id")
	}

	existing, err := s.repo.GetByPair(ctx, input.Patient.UserID, input.DoctorID)
	switch {
	case err == nil:
		return s.handleExistingRequest(ctx, input, existing)
	case errors.Is(err, domain.ErrNotFound):
		// fall through to create
	default:
		return nil, apperrors.DatabaseError(err)
	}

	now := time.Now()
	conversation := &domain.Conversation{
		ConversationID: uuid.New(),
		PatientID:      input.Patient.UserID,
		PatientName:    input.Patient.Name,
		DoctorID:       input.DoctorID,
		InitiatorID:    input.Patient.UserID,
		Status:         domain.ConversationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, conversation); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if s.streamer != nil {
		s.streamer.PublishConversationEvent(ctx, conversation)
	}

	delivered := s.notifyDoctor(ctx, conversation)
	return &RequestChatOutput{Conversation: conversation, Delivered: delivered}, nil
}

func (s *Service) handleExistingRequest(ctx context.Context, input *RequestChatInput, existing *domain.Conversation) (*RequestChatOutput, error) {
	switch existing.Status {
	case domain.ConversationPending:
		// already waiting on the doctor's answer
		s.notifier.Deliver(input.Patient.UserID, realtime.EventRequestStatusUpdate, &realtime.RequestResponsePayload{
			ConversationID: existing.ConversationID,
			Status:         domain.ConversationPending,
			Message:        "Your request is still awaiting a response",
		})
		return &RequestChatOutput{Conversation: existing}, nil

	case domain.ConversationAccepted:
		s.notifier.Deliver(input.Patient.UserID, realtime.EventRequestStatusUpdate, &realtime.RequestResponsePayload{
			ConversationID: existing.ConversationID,
			Status:         domain.ConversationAccepted,
			Message:        "This conversation is already active",
		})
		return &RequestChatOutput{Conversation: existing}, nil

	case domain.ConversationRejected:
		err := s.repo.UpdateStatus(ctx, existing.ConversationID, domain.ConversationRejected, domain.ConversationPending)
		if err != nil {
			if errors.Is(err, domain.ErrStatusConflict) {
				return nil, apperrors.ConflictError("Conversation state changed, retry the request")
			}
			return nil, apperrors.DatabaseError(err)
		}
		existing.Status = domain.ConversationPending
		existing.UpdatedAt = time.Now()

		if s.streamer != nil {
			s.streamer.PublishConversationEvent(ctx, existing)
		}
		delivered := s.notifyDoctor(ctx, existing)
		return &RequestChatOutput{Conversation: existing, Delivered: delivered}, nil
	}

	return nil, apperrors.InternalError(fmt.Sprintf("unexpected conversation status %q", existing.Status))
}

// notifyDoctor delivers the request live when the doctor is connected,
// falling back to a push notification otherwise.
func (s *Service) notifyDoctor(ctx context.Context, conversation *domain.Conversation) bool {
	delivered := s.notifier.Deliver(conversation.DoctorID, realtime.EventChatRequest, &realtime.ChatRequestPayload{
		ConversationID: conversation.ConversationID,
		Patient: realtime.PatientInfo{
			UserID: conversation.PatientID,
			Name:   conversation.PatientName,
		},
		Timestamp: conversation.UpdatedAt,
	})
	if !delivered && s.pusher != nil {
		s.pusher.NotifyUser(ctx, conversation.DoctorID, &push.Notification{
			Title: "New conversation request",
			Body:  fmt.Sprintf("%s would like to start a conversation", conversation.PatientName),
			Data: map[string]string{
				"type":            "chat_request",
				"conversation_id": conversation.ConversationID.String(),
			},
		})
	}
	return delivered
}

// RespondInput contains a doctor's answer to a pending request
type RespondInput struct {
	Doctor         *domain.Identity
	ConversationID uuid.UUID
	Status         domain.ConversationStatus
}

// RespondOutput reports the updated conversation
type RespondOutput struct {
	Conversation *domain.Conversation
}

// Respond records a doctor's accept or reject of a pending request.
// Responding to a request that has already been answered (or never
// existed) fails without changing anything.
func (s *Service) Respond(ctx context.Context, input *RespondInput) (*RespondOutput, error) {
	if input.Status != domain.ConversationAccepted && input.Status != domain.ConversationRejected {
		return nil, apperrors.ValidationError("Status must be accepted or rejected")
	}

	conversation, err := s.repo.GetByID(ctx, input.ConversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.AlreadyProcessedError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	if conversation.DoctorID != input.Doctor.UserID {
		return nil, apperrors.ForbiddenError("Only the requested doctor can respond")
	}

	err = s.repo.UpdateStatus(ctx, input.ConversationID, domain.ConversationPending, input.Status)
	if err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			return nil, apperrors.AlreadyProcessedError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	conversation.Status = input.Status
	conversation.UpdatedAt = time.Now()

	if s.streamer != nil {
		s.streamer.PublishConversationEvent(ctx, conversation)
	}

	response := &realtime.RequestResponsePayload{
		ConversationID: conversation.ConversationID,
		Status:         conversation.Status,
	}
	delivered := s.notifier.Deliver(conversation.PatientID, realtime.EventRequestResponse, response)
	if !delivered && conversation.Status == domain.ConversationAccepted && s.pusher != nil {
		s.pusher.NotifyUser(ctx, conversation.PatientID, &push.Notification{
			Title: "Request accepted",
			Body:  "Your conversation request was accepted",
			Data: map[string]string{
				"type":            "request_accepted",
				"conversation_id": conversation.ConversationID.String(),
			},
		})
	}

	s.notifier.Deliver(input.Doctor.UserID, realtime.EventResponseConfirmation, &realtime.ResponseConfirmationPayload{
		ConversationID: conversation.ConversationID,
		Status:         conversation.Status,
	})

	return &RespondOutput{Conversation: conversation}, nil
}

// ListForUser retrieves the caller's conversations, most recently
// active first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, params *pagination.Params) ([]*domain.Conversation, error) {
	conversations, err := s.repo.ListForUser(ctx, userID, params.Limit, params.Offset)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return conversations, nil
}

// PendingRequests returns the open requests awaiting a doctor, in the
// wire form delivered on connect.
func (s *Service) PendingRequests(ctx context.Context, doctorID uuid.UUID) ([]realtime.ChatRequestPayload, error) {
	conversations, err := s.repo.ListPendingForDoctor(ctx, doctorID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	requests := make([]realtime.ChatRequestPayload, 0, len(conversations))
	for _, c := range conversations {
		requests = append(requests, realtime.ChatRequestPayload{
			ConversationID: c.ConversationID,
			Patient: realtime.PatientInfo{
				UserID: c.PatientID,
				Name:   c.PatientName,
			},
			Timestamp: c.UpdatedAt,
		})
	}
	return requests, nil
}
