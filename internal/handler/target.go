// Package handler holds the HTTP handlers of the ad-targeting API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/pipeline"
)

// Service is the pipeline surface the public handlers need.
type Service interface {
	Target(ctx context.Context, req pipeline.TargetRequest) (pipeline.TargetResult, error)
	Track(ctx context.Context, req pipeline.EngagementRequest) (domain.AnalyticsEvent, error)
	RecordClick(ctx context.Context, params clickurl.ClickParams) domain.AnalyticsEvent
}

type targetRequest struct {
	Question string               `binding:"required" json:"question"`
	History  []domain.ChatMessage `json:"history"`
	Page     string               `json:"page"`
	UserID   string               `json:"user_id"`
	Metadata map[string]any       `json:"metadata"`
}

type targetResponse struct {
	domain.Decision

	ClickURL string `json:"click_url,omitempty"`
	Degraded bool   `json:"degraded"`
}

// TargetHandler serves targeting decisions.
type TargetHandler struct {
	service Service
}

// NewTargetHandler creates a TargetHandler. Errors are logged with the
// request-scoped logger.
func NewTargetHandler(service Service) *TargetHandler {
	return &TargetHandler{service: service}
}

// Target handles POST /api/v1/target.
func (h *TargetHandler) Target(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.service.Target(c.Request.Context(), pipeline.TargetRequest{
		Question: req.Question,
		History:  req.History,
		Page:     req.Page,
		UserID:   req.UserID,
		Metadata: req.Metadata,
	})
	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		infralogger.FromContext(c.Request.Context()).Error("Targeting failed", infralogger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "targeting failed"})
		return
	}

	c.JSON(http.StatusOK, targetResponse{
		Decision: result.Decision,
		ClickURL: result.ClickURL,
		Degraded: result.Degraded,
	})
}
