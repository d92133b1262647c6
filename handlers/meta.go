package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/pastebin/internal/clock"
	"github.com/johnwmail/pastebin/internal/services"
	"github.com/johnwmail/pastebin/models"
)

// MetaHandler handles metadata operations
type MetaHandler struct {
	service *services.PasteService
	clock   *clock.Resolver
}

// NewMetaHandler creates a new metadata handler
func NewMetaHandler(service *services.PasteService, clk *clock.Resolver) *MetaHandler {
	return &MetaHandler{
		service: service,
		clock:   clk,
	}
}

// GetMetadata handles metadata retrieval via GET /api/v1/meta/:id. It never
// consumes a view.
func (h *MetaHandler) GetMetadata(c *gin.Context) {
	view, err := h.service.Preview(c.Request.Context(), c.Param("id"), h.clock.Now(c.Request.Header))
	if err != nil {
		status, msg := statusFor(err)
		respondError(c, status, msg)
		return
	}

	// Return metadata without content
	c.JSON(http.StatusOK, gin.H{
		"id":              view.ID,
		"created_at":      models.FormatISO(view.CreatedAt),
		"expires_at":      models.FormatISOPtr(view.ExpiresAt),
		"remaining_views": view.RemainingViews,
	})
}
