// Package push exposes device token registration so offline users can
// be reached when a request, message or call arrives for them.
package push

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"carelink-backend/internal/middleware"
	"carelink-backend/pkg/push"
	"carelink-backend/pkg/response"
)

// Handler handles push token HTTP requests
type Handler struct {
	tokens push.TokenRepository
}

func NewHandler(tokens push.TokenRepository) *Handler {
	return &Handler{tokens: tokens}
}

// RegisterTokenRequest is the body of a device token registration
type RegisterTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Type     string `json:"type" binding:"required,oneof=fcm apns"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios android web"`
}

// RegisterToken stores a device push token for the caller
// POST /v1/push/tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	now := time.Now().Unix()
	token := &push.Token{
		ID:        uuid.New(),
		UserID:    identity.UserID,
		Token:     req.Token,
		Type:      push.TokenType(req.Type),
		Platform:  req.Platform,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.tokens.Store(c.Request.Context(), token); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, token)
}

// UnregisterTokens removes all of the caller's device tokens, e.g. on
// logout.
// DELETE /v1/push/tokens
func (h *Handler) UnregisterTokens(c *gin.Context) {
	identity := middleware.Identity(c)
	if identity == nil {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.tokens.DeleteByUserID(c.Request.Context(), identity.UserID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
