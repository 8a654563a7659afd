package lectures

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturehall/backend/internal/middleware"
	"github.com/lecturehall/backend/internal/models"
	"github.com/lecturehall/backend/pkg/response"
)

// CreateRequest is the body for POST /lectures.
type CreateRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
}

// UpdateRequest is the body for PATCH /lectures/:id.
type UpdateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartsAt    *time.Time `json:"starts_at"`
}

// StatusRequest is the body for PATCH /lectures/:id/status.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler handles lecture HTTP endpoints.
type Handler struct {
	repo *Repository
}

// NewHandler creates a lecture handler.
func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// Create handles POST /lectures (instructor or admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	l := &models.Lecture{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: userID,
		Status:       models.LectureScheduled,
		StartsAt:     req.StartsAt,
	}
	if err := h.repo.Create(c.Request.Context(), l); err != nil {
		response.Internal(c, "failed to create lecture")
		return
	}
	response.Created(c, l)
}

// List handles GET /lectures.
func (h *Handler) List(c *gin.Context) {
	var instructorID *uuid.UUID
	if v := c.Query("instructor_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "invalid instructor_id")
			return
		}
		instructorID = &id
	}
	list, err := h.repo.List(c.Request.Context(), instructorID)
	if err != nil {
		response.Internal(c, "failed to list lectures")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /lectures/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	l, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "lecture not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to get lecture")
		return
	}
	response.OK(c, l)
}

// Update handles PATCH /lectures/:id (instructor of the lecture or admin).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !h.authorize(c, id) {
		return
	}
	if err := h.repo.Update(c.Request.Context(), id, req.Title, req.Description, req.StartsAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "lecture not found")
			return
		}
		response.Internal(c, "failed to update lecture")
		return
	}
	response.NoContent(c)
}

// UpdateStatus handles PATCH /lectures/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	status := models.LectureStatus(req.Status)
	if !status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	if !h.authorize(c, id) {
		return
	}
	if err := h.repo.UpdateStatus(c.Request.Context(), id, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "lecture not found")
			return
		}
		response.Internal(c, "failed to update status")
		return
	}
	response.NoContent(c)
}

// Delete handles DELETE /lectures/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	if !h.authorize(c, id) {
		return
	}
	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		response.Internal(c, "failed to delete lecture")
		return
	}
	response.NoContent(c)
}

// Participants handles GET /lectures/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	ids, err := h.repo.ListParticipants(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, gin.H{"participants": ids, "count": len(ids)})
}

// authorize checks the caller is the lecture's instructor or an admin.
// Writes the error response and returns false when not.
func (h *Handler) authorize(c *gin.Context, lectureID uuid.UUID) bool {
	userID, ok := currentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return false
	}
	roleVal, _ := c.Get(middleware.ContextUserRole)
	if role, _ := roleVal.(string); role == string(models.RoleAdmin) {
		return true
	}
	l, err := h.repo.GetByID(c.Request.Context(), lectureID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "lecture not found")
		return false
	}
	if err != nil {
		response.Internal(c, "failed to get lecture")
		return false
	}
	if l.InstructorID != userID {
		response.Forbidden(c, "not the lecture instructor")
		return false
	}
	return true
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
