// Package chat exposes the REST fallback for messaging: sending when
// the live channel is down, paging message history and read receipts.
package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carelink-backend/internal/middleware"
	"carelink-backend/internal/service/chat"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/response"
)

// Handler handles chat HTTP requests
type Handler struct {
	chat *chat.Service
}

func NewHandler(chatService *chat.Service) *Handler {
	return &Handler{chat: chatService}
}

// SendMessageRequest is the body of an outgoing message
type SendMessageRequest struct {
	ReceiverID  string   `json:"receiver_id" binding:"required,uuid"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
	TempID      string   `json:"temp_id"`
}

// SendMessage stores and relays a message
// POST /v1/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	receiverID, err := uuid.Parse(req.ReceiverID)
	if err != nil {
		response.ValidationError(c, "Invalid receiver_id")
		return
	}

	out, err := h.chat.SendMessage(c.Request.Context(), &chat.SendMessageInput{
		Sender:      identity,
		ReceiverID:  receiverID,
		Content:     req.Content,
		Attachments: req.Attachments,
		TempID:      req.TempID,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, out.Message)
}

// GetMessages pages through a conversation's messages. Fetching resets
// the caller's unread counter for the conversation.
// GET /v1/conversations/:id/messages?page=1&limit=20
func (h *Handler) GetMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation id")
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	messages, err := h.chat.GetConversationMessages(c.Request.Context(), identity, conversationID, params)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, messages)
}

// MarkRead records a read receipt
// POST /v1/messages/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid message id")
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.chat.MarkRead(c.Request.Context(), identity, messageID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message_id": messageID})
}
