package sessionlog

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturehall/backend/pkg/response"
)

// Handler serves attendance read endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates an attendance handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByLecture handles GET /lectures/:id/attendance.
func (h *Handler) ListByLecture(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	list, err := h.repo.ListByLecture(c.Request.Context(), lectureID)
	if err != nil {
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, list)
}
