package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"carelink-backend/internal/domain"
)

// MessageRepository stores messages in Cassandra, bucketed per
// conversation and month so partitions stay bounded.
//
// Tables:
//
//	messages(conversation_id, bucket, created_at, message_id, sender_id,
//	         receiver_id, content, attachments, is_read, read_at,
//	         PRIMARY KEY ((conversation_id, bucket), created_at, message_id))
//	         WITH CLUSTERING ORDER BY (created_at ASC)
//	messages_by_id(message_id PRIMARY KEY, conversation_id, bucket,
//	         created_at, sender_id, receiver_id, content, attachments,
//	         is_read, read_at)
//
// The by-id table exists for the read-receipt path, which addresses a
// single message without knowing its conversation clustering keys.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a new message into both tables
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	if message.MessageID == uuid.Nil {
		message.MessageID = uuid.New()
	}
	if message.Bucket == 0 {
		message.Bucket = domain.CalculateBucket(message.CreatedAt)
	}

	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO messages (
			conversation_id, bucket, created_at, message_id, sender_id,
			receiver_id, content, attachments, is_read, read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		message.ConversationID, message.Bucket, message.CreatedAt,
		message.MessageID, message.SenderID, message.ReceiverID,
		message.Content, message.Attachments, message.IsRead, message.ReadAt,
	)
	batch.Query(`
		INSERT INTO messages_by_id (
			message_id, conversation_id, bucket, created_at, sender_id,
			receiver_id, content, attachments, is_read, read_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		message.MessageID, message.ConversationID, message.Bucket,
		message.CreatedAt, message.SenderID, message.ReceiverID,
		message.Content, message.Attachments, message.IsRead, message.ReadAt,
	)

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// GetByID retrieves a single message
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `
		SELECT message_id, conversation_id, bucket, created_at, sender_id,
		       receiver_id, content, attachments, is_read, read_at
		FROM messages_by_id
		WHERE message_id = ?
	`

	message := &domain.Message{}
	err := r.session.Query(query, messageID).WithContext(ctx).Scan(
		&message.MessageID,
		&message.ConversationID,
		&message.Bucket,
		&message.CreatedAt,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.Attachments,
		&message.IsRead,
		&message.ReadAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// ListByConversation retrieves messages of the current bucket in the
// order the relay assigned created_at.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Message, error) {
	bucket := domain.CalculateBucket(time.Now())
	query := `
		SELECT message_id, conversation_id, bucket, created_at, sender_id,
		       receiver_id, content, attachments, is_read, read_at
		FROM messages
		WHERE conversation_id = ? AND bucket = ?
		LIMIT ?
	`

	iter := r.session.Query(query, conversationID, bucket, limit).WithContext(ctx).Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.MessageID,
			&message.ConversationID,
			&message.Bucket,
			&message.CreatedAt,
			&message.SenderID,
			&message.ReceiverID,
			&message.Content,
			&message.Attachments,
			&message.IsRead,
			&message.ReadAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// MarkRead flips the read flag of a previously loaded message
func (r *MessageRepository) MarkRead(ctx context.Context, message *domain.Message, readAt time.Time) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		UPDATE messages SET is_read = true, read_at = ?
		WHERE conversation_id = ? AND bucket = ? AND created_at = ? AND message_id = ?
	`, readAt, message.ConversationID, message.Bucket, message.CreatedAt, message.MessageID)
	batch.Query(`
		UPDATE messages_by_id SET is_read = true, read_at = ?
		WHERE message_id = ?
	`, readAt, message.MessageID)

	if err := r.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}

	return nil
}
