package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a chat message between two participants of a conversation.
// Immutable once created except for the read flag.
// Maps to the Cassandra messages tables, bucketed per conversation.
type Message struct {
	MessageID      uuid.UUID  `json:"message_id" cql:"message_id"`
	ConversationID uuid.UUID  `json:"conversation_id" cql:"conversation_id"`
	Bucket         int        `json:"-" cql:"bucket"`
	SenderID       uuid.UUID  `json:"sender_id" cql:"sender_id"`
	ReceiverID     uuid.UUID  `json:"receiver_id" cql:"receiver_id"`
	Content        string     `json:"content" cql:"content"`
	Attachments    []string   `json:"attachments,omitempty" cql:"attachments"`
	IsRead         bool       `json:"is_read" cql:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty" cql:"read_at"`
	CreatedAt      time.Time  `json:"created_at" cql:"created_at"`
}

// MessageResponse is a message as returned to clients. Attachment keys
// are mapped to presigned download URLs on the REST fetch path.
type MessageResponse struct {
	MessageID      uuid.UUID  `json:"message_id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	SenderID       uuid.UUID  `json:"sender_id"`
	ReceiverID     uuid.UUID  `json:"receiver_id"`
	Content        string     `json:"content"`
	Attachments    []string   `json:"attachments,omitempty"`
	AttachmentURLs []string   `json:"attachment_urls,omitempty"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ToResponse converts a stored message to its client representation.
func (m *Message) ToResponse() *MessageResponse {
	return &MessageResponse{
		MessageID:      m.MessageID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Attachments:    m.Attachments,
		IsRead:         m.IsRead,
		ReadAt:         m.ReadAt,
		CreatedAt:      m.CreatedAt,
	}
}

// CalculateBucket returns the partition bucket for a message timestamp.
// One bucket per calendar month keeps Cassandra partitions bounded.
func CalculateBucket(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}
