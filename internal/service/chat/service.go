// Package chat relays messages between a patient and a doctor and
// keeps the unread accounting consistent. Sending is status-agnostic:
// a first message creates the pair's conversation on the spot.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/realtime"
	"carelink-backend/pkg/constants"
	apperrors "carelink-backend/pkg/errors"
	"carelink-backend/pkg/metrics"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/push"
	"carelink-backend/pkg/sanitize"
)

// MessageRepository is the durable message log.
type MessageRepository interface {
	Save(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error)
	MarkRead(ctx context.Context, message *domain.Message, readAt time.Time) error
}

// ConversationRepository is the slice of the conversation store the
// relay needs: lookups, creation for a first message, and unread
// accounting.
type ConversationRepository interface {
	Create(ctx context.Context, conversation *domain.Conversation) error
	GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error)
	GetByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	DecrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error
	SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
}

// Notifier pushes an event to a connected user.
type Notifier interface {
	Deliver(userID uuid.UUID, event string, data interface{}) bool
}

// Pusher sends a best-effort push notification.
type Pusher interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, notification *push.Notification)
}

// Presigner maps stored attachment keys to time-limited download URLs.
type Presigner interface {
	PresignAll(ctx context.Context, keys []string) ([]string, error)
}

// Service relays messages and tracks read state
type Service struct {
	messages      MessageRepository
	conversations ConversationRepository
	notifier      Notifier
	pusher        Pusher
	presigner     Presigner
	metrics       *metrics.Metrics
}

func NewService(
	messages MessageRepository,
	conversations ConversationRepository,
	notifier Notifier,
	pusher Pusher,
	presigner Presigner,
	m *metrics.Metrics,
) *Service {
	return &Service{
		messages:      messages,
		conversations: conversations,
		notifier:      notifier,
		pusher:        pusher,
		presigner:     presigner,
		metrics:       m,
	}
}

// SendMessageInput contains an outgoing message
type SendMessageInput struct {
	Sender      *domain.Identity
	ReceiverID  uuid.UUID
	Content     string
	Attachments []string
	// TempID is the client's provisional id, echoed back so it can
	// reconcile its optimistic UI entry.
	TempID string
}

// SendMessageOutput reports the stored message
type SendMessageOutput struct {
	Message *domain.MessageResponse
	// Delivered is true when the receiver got the message live
	Delivered bool
}

// SendMessage stores a message on the pair's conversation regardless of
// its request status, creating the conversation if this is the first
// contact, bumps the receiver's unread counter and delivers it live or
// via push.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	content := sanitize.MessageContent(input.Content)
	if content == "" && len(input.Attachments) == 0 {
		return nil, apperrors.ValidationError("Message must have content or attachments")
	}
	if !sanitize.WithinLength(content, 0, constants.MaxMessageLength) {
		return nil, apperrors.ValidationError("Message content too long")
	}
	if len(input.Attachments) > constants.MaxAttachments {
		return nil, apperrors.ValidationError("Too many attachments")
	}
	attachments := make([]string, 0, len(input.Attachments))
	for _, key := range input.Attachments {
		if cleaned := sanitize.AttachmentKey(key); cleaned != "" {
			attachments = append(attachments, cleaned)
		}
	}

	conversation, err := s.conversationForPair(ctx, input.Sender, input.ReceiverID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	message := &domain.Message{
		MessageID:      uuid.New(),
		ConversationID: conversation.ConversationID,
		Bucket:         domain.CalculateBucket(now),
		SenderID:       input.Sender.UserID,
		ReceiverID:     input.ReceiverID,
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      now,
	}
	if err := s.messages.Save(ctx, message); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	// unread accounting and conversation recency are best-effort
	// relative to the stored message; the message is the source of
	// truth either way
	if err := s.conversations.IncrementUnread(ctx, conversation.ConversationID, input.ReceiverID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if err := s.conversations.SetLastMessage(ctx, conversation.ConversationID, message.MessageID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	response := message.ToResponse()
	delivered := s.notifier.Deliver(input.ReceiverID, realtime.EventNewMessage, &realtime.NewMessagePayload{
		Message: response,
	})
	if delivered {
		s.countMessage("live")
	} else {
		s.countMessage("offline")
		if s.pusher != nil {
			s.pusher.NotifyUser(ctx, input.ReceiverID, &push.Notification{
				Title: "New message",
				Body:  input.Sender.Name,
				Data: map[string]string{
					"type":            "new_message",
					"conversation_id": conversation.ConversationID.String(),
					"message_id":      message.MessageID.String(),
				},
			})
		}
	}

	s.notifier.Deliver(input.Sender.UserID, realtime.EventMessageSent, &realtime.MessageSentPayload{
		Message: response,
		TempID:  input.TempID,
	})

	return &SendMessageOutput{Message: response, Delivered: delivered}, nil
}

// MarkRead records the receiver's read receipt for a message and tells
// the sender. Re-reading an already read message changes nothing.
func (s *Service) MarkRead(ctx context.Context, reader *domain.Identity, messageID uuid.UUID) error {
	message, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperrors.NotFoundError("Message")
		}
		return apperrors.DatabaseError(err)
	}
	if message.ReceiverID != reader.UserID {
		return apperrors.ForbiddenError("Only the receiver can mark a message read")
	}
	if message.IsRead {
		return nil
	}

	readAt := time.Now()
	if err := s.messages.MarkRead(ctx, message, readAt); err != nil {
		return apperrors.DatabaseError(err)
	}
	if err := s.conversations.DecrementUnread(ctx, message.ConversationID, reader.UserID); err != nil {
		return apperrors.DatabaseError(err)
	}

	s.notifier.Deliver(message.SenderID, realtime.EventMessageRead, &realtime.MessageReadPayload{
		MessageID: message.MessageID,
		ReadAt:    readAt,
	})
	return nil
}

// Typing relays a typing indicator to the other participant. The
// indicator is ephemeral: nothing is stored, and an offline receiver
// simply misses it.
func (s *Service) Typing(ctx context.Context, sender *domain.Identity, receiverID uuid.UUID, typing bool) error {
	if _, err := s.acceptedConversation(ctx, sender.UserID, receiverID); err != nil {
		return err
	}

	s.notifier.Deliver(receiverID, realtime.EventUserTyping, &realtime.UserTypingPayload{
		UserID: sender.UserID,
		Typing: typing,
	})
	return nil
}

// GetConversationMessages returns a page of messages for a participant
// and zeroes their unread counter, since fetching implies viewing.
func (s *Service) GetConversationMessages(ctx context.Context, caller *domain.Identity, conversationID uuid.UUID, params *pagination.Params) ([]*domain.MessageResponse, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NotFoundError("Conversation")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if !conversation.HasParticipant(caller.UserID) {
		return nil, apperrors.ForbiddenError("Not a participant of this conversation")
	}

	messages, err := s.messages.ListByConversation(ctx, conversationID, params.Limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if err := s.conversations.ResetUnread(ctx, conversationID, caller.UserID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	responses := make([]*domain.MessageResponse, 0, len(messages))
	for _, message := range messages {
		response := message.ToResponse()
		if s.presigner != nil && len(message.Attachments) > 0 {
			urls, err := s.presigner.PresignAll(ctx, message.Attachments)
			if err != nil {
				return nil, apperrors.StorageError(err)
			}
			response.AttachmentURLs = urls
		}
		responses = append(responses, response)
	}
	return responses, nil
}

// conversationForPair loads the conversation between the sender and the
// receiver, creating it in pending if no contact exists yet. The
// request workflow governs the request/respond ceremony, not delivery.
func (s *Service) conversationForPair(ctx context.Context, sender *domain.Identity, receiverID uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.conversations.GetByPair(ctx, sender.UserID, receiverID)
	if err == nil {
		return conversation, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, apperrors.DatabaseError(err)
	}

	now := time.Now()
	conversation = &domain.Conversation{
		ConversationID: uuid.New(),
		InitiatorID:    sender.UserID,
		Status:         domain.ConversationPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sender.Role == domain.RolePatient {
		conversation.PatientID = sender.UserID
		conversation.PatientName = sender.Name
		conversation.DoctorID = receiverID
	} else {
		conversation.PatientID = receiverID
		conversation.DoctorID = sender.UserID
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return conversation, nil
}

// acceptedConversation loads the conversation between two users and
// verifies it has been accepted. Used for the typing relay, which has
// no business running before the doctor agrees to talk.
func (s *Service) acceptedConversation(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	conversation, err := s.conversations.GetByPair(ctx, userA, userB)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.ForbiddenError("No conversation with this user")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if conversation.Status != domain.ConversationAccepted {
		return nil, apperrors.ForbiddenError("Conversation request has not been accepted")
	}
	return conversation, nil
}

func (s *Service) countMessage(delivery string) {
	if s.metrics != nil {
		s.metrics.MessagesTotal.WithLabelValues(delivery).Inc()
	}
}
