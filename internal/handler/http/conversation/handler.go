// Package conversation exposes the REST fallback for the conversation
// request workflow: clients without a live connection can still open
// requests, respond to them and page through their conversation list.
package conversation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carelink-backend/internal/domain"
	"carelink-backend/internal/middleware"
	"carelink-backend/internal/service/conversation"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/response"
)

// Handler handles conversation HTTP requests
type Handler struct {
	conversations *conversation.Service
}

func NewHandler(conversations *conversation.Service) *Handler {
	return &Handler{conversations: conversations}
}

// RequestChatRequest is the body of a conversation request
type RequestChatRequest struct {
	DoctorID string `json:"doctor_id" binding:"required,uuid"`
}

// RequestChat opens a conversation request
// POST /v1/conversations/request
func (h *Handler) RequestChat(c *gin.Context) {
	var req RequestChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		response.ValidationError(c, "Invalid doctor_id")
		return
	}

	out, err := h.conversations.RequestChat(c.Request.Context(), &conversation.RequestChatInput{
		Patient:  identity,
		DoctorID: doctorID,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, out.Conversation)
}

// RespondRequest is the body of a doctor's response
type RespondRequest struct {
	Status string `json:"status" binding:"required,oneof=accepted rejected"`
}

// Respond answers a pending conversation request
// POST /v1/conversations/:id/respond
func (h *Handler) Respond(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation id")
		return
	}

	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	out, err := h.conversations.Respond(c.Request.Context(), &conversation.RespondInput{
		Doctor:         identity,
		ConversationID: conversationID,
		Status:         domain.ConversationStatus(req.Status),
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, out.Conversation)
}

// List retrieves the caller's conversations
// GET /v1/conversations?page=1&limit=20
func (h *Handler) List(c *gin.Context) {
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

	conversations, err := h.conversations.ListForUser(c.Request.Context(), identity.UserID, params)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, conversations)
}

// Pending retrieves the open requests awaiting the calling doctor
// GET /v1/conversations/pending
func (h *Handler) Pending(c *gin.Context) {
	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	requests, err := h.conversations.PendingRequests(c.Request.Context(), identity.UserID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, requests)
}
