package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/catalog"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
)

// Flusher forces buffered analytics out.
type Flusher interface {
	ForceFlush() int
}

// Reloader re-reads the catalog from its source.
type Reloader interface {
	Reload(ctx context.Context) error
}

// CountsReader reads per-ad counters.
type CountsReader interface {
	Counts(ctx context.Context, adID string) (counters.Counts, error)
}

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	flusher  Flusher
	reloader Reloader
	counts   CountsReader
	logger   infralogger.Logger
}

// NewAdminHandler creates an AdminHandler. reloader may be nil when the
// catalog source cannot be reloaded.
func NewAdminHandler(flusher Flusher, reloader Reloader, counts CountsReader, log infralogger.Logger) *AdminHandler {
	return &AdminHandler{
		flusher:  flusher,
		reloader: reloader,
		counts:   counts,
		logger:   log,
	}
}

// Flush handles POST /api/v1/admin/flush.
func (h *AdminHandler) Flush(c *gin.Context) {
	flushed := h.flusher.ForceFlush()
	h.logger.Info("Forced analytics flush", infralogger.Int("events", flushed))
	c.JSON(http.StatusOK, gin.H{"flushed": flushed})
}

// ReloadCatalog handles POST /api/v1/admin/catalog/reload.
func (h *AdminHandler) ReloadCatalog(c *gin.Context) {
	if h.reloader == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "catalog source is not reloadable"})
		return
	}

	err := h.reloader.Reload(c.Request.Context())
	if errors.Is(err, catalog.ErrNotReloadable) {
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Catalog reload failed", infralogger.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// Counters handles GET /api/v1/admin/ads/:id/counters.
func (h *AdminHandler) Counters(c *gin.Context) {
	counts, err := h.counts.Counts(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to read counters",
			infralogger.String("ad_id", c.Param("id")),
			infralogger.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "counters unavailable"})
		return
	}
	c.JSON(http.StatusOK, counts)
}
