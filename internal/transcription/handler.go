package transcription

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lecturehall/backend/internal/middleware"
	"github.com/lecturehall/backend/internal/models"
	"github.com/lecturehall/backend/pkg/response"
	"github.com/lecturehall/backend/pkg/storage"
)

// Handler serves transcription session reads and transcript downloads.
// Live session control goes through the session gateway.
type Handler struct {
	repo *Repository
	s3   *storage.S3
}

// NewHandler creates a transcription handler.
func NewHandler(repo *Repository, s3 *storage.S3) *Handler {
	return &Handler{repo: repo, s3: s3}
}

// GetByID handles GET /transcripts/:id.
func (h *Handler) GetByID(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, sess)
}

// DownloadURL handles GET /transcripts/:id/download-url. Returns a pre-signed
// S3 URL for the exported transcript object.
func (h *Handler) DownloadURL(c *gin.Context) {
	sess, ok := h.load(c)
	if !ok {
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "transcript storage not configured")
		return
	}
	if sess.ExportKey == "" {
		response.NotFound(c, "transcript not exported yet")
		return
	}
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.TranscriptsBucket(), sess.ExportKey, h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to generate download url")
		return
	}
	response.OK(c, gin.H{"url": url, "expires_in": int(h.s3.PresignExpire().Seconds())})
}

// load parses the session ID, fetches the record and enforces that only the
// session owner or an admin can read it.
func (h *Handler) load(c *gin.Context) (*models.TranscriptionSession, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	sess, err := h.repo.GetSessionByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			response.NotFound(c, "session not found")
		} else {
			response.Internal(c, "failed to load session")
		}
		return nil, false
	}

	roleVal, _ := c.Get(middleware.ContextUserRole)
	role, _ := roleVal.(string)
	userVal, _ := c.Get(middleware.ContextUserID)
	userID, _ := userVal.(uuid.UUID)
	if role != string(models.RoleAdmin) && sess.OwnerID != userID {
		response.Forbidden(c, "not your session")
		return nil, false
	}
	return sess, true
}
