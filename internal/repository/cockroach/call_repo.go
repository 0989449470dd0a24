package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"carelink-backend/internal/domain"
)

// CallRecordRepository is the durable Call Record Sink. Records are
// terminal: written exactly once when a call ends or cannot be
// delivered, never updated.
//
// Table:
//
//	call_records(call_id PK, caller_id, receiver_id, appointment_id,
//	             call_type, outcome, started_at, ended_at, duration)
type CallRecordRepository struct {
	pool *pgxpool.Pool
}

// NewCallRecordRepository creates a new call record repository
func NewCallRecordRepository(pool *pgxpool.Pool) *CallRecordRepository {
	return &CallRecordRepository{pool: pool}
}

// Save writes a terminal call record
func (r *CallRecordRepository) Save(ctx context.Context, record *domain.CallRecord) error {
	query := `
		INSERT INTO call_records (
			call_id, caller_id, receiver_id, appointment_id,
			call_type, outcome, started_at, ended_at, duration
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		record.CallID,
		record.CallerID,
		record.ReceiverID,
		record.AppointmentID,
		record.CallType,
		record.Outcome,
		record.StartedAt,
		record.EndedAt,
		record.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to save call record: %w", err)
	}

	return nil
}

// ListForUser retrieves call history for a user as caller or receiver,
// most recent first.
func (r *CallRecordRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.CallRecord, error) {
	query := `
		SELECT call_id, caller_id, receiver_id, appointment_id,
		       call_type, outcome, started_at, ended_at, duration
		FROM call_records
		WHERE caller_id = $1 OR receiver_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	defer rows.Close()

	var records []*domain.CallRecord
	for rows.Next() {
		record := &domain.CallRecord{}
		err := rows.Scan(
			&record.CallID,
			&record.CallerID,
			&record.ReceiverID,
			&record.AppointmentID,
			&record.CallType,
			&record.Outcome,
			&record.StartedAt,
			&record.EndedAt,
			&record.Duration,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, record)
	}

	return records, rows.Err()
}
