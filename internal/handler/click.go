package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/middleware"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

// Click redirect outcomes reported to metrics.
const (
	ClickRedirected = "redirected"
	ClickBot        = "bot"
	ClickInvalid    = "invalid"
	ClickForbidden  = "forbidden"
	ClickExpired    = "expired"
)

// ClickHandler verifies signed click URLs, records the click and redirects.
type ClickHandler struct {
	signer  *clickurl.Signer
	service Service
	metrics *telemetry.Metrics
	logger  infralogger.Logger
	maxAge  time.Duration
	now     func() time.Time
}

// NewClickHandler creates a ClickHandler with the given dependencies.
func NewClickHandler(
	signer *clickurl.Signer,
	service Service,
	metrics *telemetry.Metrics,
	log infralogger.Logger,
	maxAge time.Duration,
) *ClickHandler {
	return &ClickHandler{
		signer:  signer,
		service: service,
		metrics: metrics,
		logger:  log,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// HandleClick handles GET /api/v1/click.
func (h *ClickHandler) HandleClick(c *gin.Context) {
	params, sig, err := clickurl.ParseQuery(c.Request.URL.Query())
	if err != nil {
		h.metrics.Click(ClickInvalid)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.signer.Verify(params.Message(), sig) {
		h.metrics.Click(ClickForbidden)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	generated := time.Unix(params.Timestamp, 0)
	if h.now().Sub(generated) > h.maxAge {
		h.metrics.Click(ClickExpired)
		c.JSON(http.StatusGone, gin.H{"error": "click URL expired"})
		return
	}

	if middleware.IsBot(c) {
		h.metrics.Click(ClickBot)
	} else {
		event := h.service.RecordClick(c.Request.Context(), params)
		h.metrics.Click(ClickRedirected)
		h.logger.Debug("Click recorded",
			infralogger.String("ad_id", params.AdID),
			infralogger.String("event_id", event.ID),
		)
	}

	c.Redirect(http.StatusFound, params.DestinationURL)
}
