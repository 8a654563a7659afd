package subtitles

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturehall/backend/pkg/response"
)

// Handler serves subtitle read endpoints; live edits go through the session gateway.
type Handler struct {
	repo *Repository
}

// NewHandler creates a subtitle handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// ListByLecture handles GET /lectures/:id/subtitles.
func (h *Handler) ListByLecture(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	list, err := h.repo.ListByLecture(c.Request.Context(), lectureID)
	if err != nil {
		response.Internal(c, "failed to list subtitles")
		return
	}
	response.OK(c, list)
}
