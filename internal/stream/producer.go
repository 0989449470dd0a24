// Package stream publishes coordination events to Kafka for downstream
// consumers (analytics, billing, the audit trail). Publishing is
// best-effort: a broker outage never blocks the real-time path.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/logger"
)

const (
	TopicCallRecords        = "call-records"
	TopicConversationEvents = "conversation-events"
)

// ConversationEvent is the stream form of a conversation transition.
type ConversationEvent struct {
	ConversationID string    `json:"conversation_id"`
	PatientID      string    `json:"patient_id"`
	DoctorID       string    `json:"doctor_id"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Producer writes events to Kafka. A nil Producer is valid and drops
// everything, so callers never need to branch on whether streaming is
// configured.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(broker string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

// PublishCallRecord streams a finished call record.
func (p *Producer) PublishCallRecord(ctx context.Context, record *domain.CallRecord) {
	if p == nil {
		return
	}
	p.publish(ctx, TopicCallRecords, record.CallID.String(), record)
}

// PublishConversationEvent streams a conversation status transition.
func (p *Producer) PublishConversationEvent(ctx context.Context, conversation *domain.Conversation) {
	if p == nil {
		return
	}
	event := &ConversationEvent{
		ConversationID: conversation.ConversationID.String(),
		PatientID:      conversation.PatientID.String(),
		DoctorID:       conversation.DoctorID.String(),
		Status:         string(conversation.Status),
		OccurredAt:     time.Now(),
	}
	p.publish(ctx, TopicConversationEvents, event.ConversationID, event)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal stream event",
			zap.String("topic", topic), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Warn("failed to publish stream event",
			zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}
