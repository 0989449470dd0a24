// Package call exposes the REST surface of the call coordinator: the
// terminal call history. Live signaling itself only happens on the
// real-time channel.
package call

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"carelink-backend/internal/middleware"
	"carelink-backend/internal/service/call"
	"carelink-backend/pkg/pagination"
	"carelink-backend/pkg/response"
)

// Handler handles call HTTP requests
type Handler struct {
	calls *call.Coordinator
}

func NewHandler(calls *call.Coordinator) *Handler {
	return &Handler{calls: calls}
}

// History retrieves the caller's call records, newest first
// GET /v1/calls/history?page=1&limit=20
func (h *Handler) History(c *gin.Context) {
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

	records, err := h.calls.History(c.Request.Context(), identity.UserID, params)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, records)
}
