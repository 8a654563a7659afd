package capture

import (
	"github.com/gin-gonic/gin"

	"github.com/lecturehall/backend/pkg/response"
)

// Handler serves capture source discovery.
type Handler struct {
	registry *Registry
}

// NewHandler creates a capture handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// List handles GET /capture/sources.
func (h *Handler) List(c *gin.Context) {
	response.OK(c, h.registry.List())
}
