package chat

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturehall/backend/pkg/response"
)

// Handler serves chat history; live messages go through the session gateway.
type Handler struct {
	repo *Repository
}

// NewHandler creates a chat handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByLecture handles GET /lectures/:id/messages.
func (h *Handler) ListByLecture(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	list, err := h.repo.ListByLecture(c.Request.Context(), lectureID, limit)
	if err != nil {
		response.Internal(c, "failed to list messages")
		return
	}
	response.OK(c, list)
}
