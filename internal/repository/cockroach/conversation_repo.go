package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carelink-backend/internal/domain"
)

// ConversationRepository is the durable Conversation Store.
//
// Tables:
//
//	conversations(conversation_id PK, patient_id, patient_name, doctor_id,
//	              initiator_id, status, last_message_id, created_at,
//	              updated_at, UNIQUE (patient_id, doctor_id))
//	conversation_unreads(conversation_id, user_id, unread_count,
//	                     PRIMARY KEY (conversation_id, user_id))
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

const conversationColumns = `conversation_id, patient_id, patient_name, doctor_id,
	       initiator_id, status, last_message_id, created_at, updated_at`

// Create inserts a conversation and zeroed unread rows for both
// participants in one transaction.
func (r *ConversationRepository) Create(ctx context.Context, conversation *domain.Conversation) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (
			conversation_id, patient_id, patient_name, doctor_id,
			initiator_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		conversation.ConversationID,
		conversation.PatientID,
		conversation.PatientName,
		conversation.DoctorID,
		conversation.InitiatorID,
		conversation.Status,
		conversation.CreatedAt,
		conversation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, userID := range []uuid.UUID{conversation.PatientID, conversation.DoctorID} {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_unreads (conversation_id, user_id, unread_count)
			VALUES ($1, $2, 0)
		`, conversation.ConversationID, userID)
		if err != nil {
			return fmt.Errorf("failed to init unread counter: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit conversation: %w", err)
	}

	return nil
}

// GetByID retrieves a conversation with its unread counters
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE conversation_id = $1`

	conversation, err := r.scanOne(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, err
	}
	if err := r.loadUnreads(ctx, conversation); err != nil {
		return nil, err
	}

	return conversation, nil
}

// GetByPair retrieves the conversation for an unordered participant
// pair. At most one exists.
func (r *ConversationRepository) GetByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE (patient_id = $1 AND doctor_id = $2)
		   OR (patient_id = $2 AND doctor_id = $1)
	`

	conversation, err := r.scanOne(r.pool.QueryRow(ctx, query, userA, userB))
	if err != nil {
		return nil, err
	}
	if err := r.loadUnreads(ctx, conversation); err != nil {
		return nil, err
	}

	return conversation, nil
}

// UpdateStatus moves a conversation from one status to another. The
// update is guarded on the expected current status; when the row has
// moved on (e.g. another response landed first) it returns
// domain.ErrStatusConflict and mutates nothing.
func (r *ConversationRepository) UpdateStatus(ctx context.Context, conversationID uuid.UUID, from, to domain.ConversationStatus) error {
	query := `
		UPDATE conversations
		SET status = $3, updated_at = now()
		WHERE conversation_id = $1 AND status = $2
	`

	ct, err := r.pool.Exec(ctx, query, conversationID, from, to)
	if err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrStatusConflict
	}

	return nil
}

// ListForUser retrieves all conversations a user participates in,
// most recently updated first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE patient_id = $1 OR doctor_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations, err := r.scanAll(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range conversations {
		if err := r.loadUnreads(ctx, c); err != nil {
			return nil, err
		}
	}

	return conversations, nil
}

// ListPendingForDoctor retrieves open conversation requests awaiting a
// doctor's response, oldest first.
func (r *ConversationRepository) ListPendingForDoctor(ctx context.Context, doctorID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE doctor_id = $1 AND status = $2
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, doctorID, domain.ConversationPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	defer rows.Close()

	return r.scanAll(rows)
}

// IncrementUnread adds one to a participant's unread counter
func (r *ConversationRepository) IncrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		INSERT INTO conversation_unreads (conversation_id, user_id, unread_count)
		VALUES ($1, $2, 1)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET unread_count = conversation_unreads.unread_count + 1
	`

	if _, err := r.pool.Exec(ctx, query, conversationID, userID); err != nil {
		return fmt.Errorf("failed to increment unread counter: %w", err)
	}
	return nil
}

// DecrementUnread subtracts one from a participant's unread counter,
// floored at zero.
func (r *ConversationRepository) DecrementUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversation_unreads
		SET unread_count = GREATEST(unread_count - 1, 0)
		WHERE conversation_id = $1 AND user_id = $2
	`

	if _, err := r.pool.Exec(ctx, query, conversationID, userID); err != nil {
		return fmt.Errorf("failed to decrement unread counter: %w", err)
	}
	return nil
}

// ResetUnread zeroes a participant's unread counter
func (r *ConversationRepository) ResetUnread(ctx context.Context, conversationID, userID uuid.UUID) error {
	query := `
		UPDATE conversation_unreads
		SET unread_count = 0
		WHERE conversation_id = $1 AND user_id = $2
	`

	if _, err := r.pool.Exec(ctx, query, conversationID, userID); err != nil {
		return fmt.Errorf("failed to reset unread counter: %w", err)
	}
	return nil
}

// SetLastMessage records the most recent message of a conversation
func (r *ConversationRepository) SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET last_message_id = $2, updated_at = $3
		WHERE conversation_id = $1
	`

	if _, err := r.pool.Exec(ctx, query, conversationID, messageID, time.Now()); err != nil {
		return fmt.Errorf("failed to set last message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) scanOne(row pgx.Row) (*domain.Conversation, error) {
	conversation := &domain.Conversation{}
	err := row.Scan(
		&conversation.ConversationID,
		&conversation.PatientID,
		&conversation.PatientName,
		&conversation.DoctorID,
		&conversation.InitiatorID,
		&conversation.Status,
		&conversation.LastMessageID,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conversation, nil
}

func (r *ConversationRepository) scanAll(rows pgx.Rows) ([]*domain.Conversation, error) {
	var conversations []*domain.Conversation
	for rows.Next() {
		conversation := &domain.Conversation{}
		err := rows.Scan(
			&conversation.ConversationID,
			&conversation.PatientID,
			&conversation.PatientName,
			&conversation.DoctorID,
			&conversation.InitiatorID,
			&conversation.Status,
			&conversation.LastMessageID,
			&conversation.CreatedAt,
			&conversation.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	return conversations, rows.Err()
}

func (r *ConversationRepository) loadUnreads(ctx context.Context, conversation *domain.Conversation) error {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, unread_count
		FROM conversation_unreads
		WHERE conversation_id = $1
	`, conversation.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load unread counters: %w", err)
	}
	defer rows.Close()

	conversation.UnreadCounts = make(map[uuid.UUID]int, 2)
	for rows.Next() {
		var userID uuid.UUID
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return fmt.Errorf("failed to scan unread counter: %w", err)
		}
		conversation.UnreadCounts[userID] = count
	}
	return rows.Err()
}
