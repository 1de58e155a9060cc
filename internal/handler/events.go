package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/pipeline"
)

type eventRequest struct {
	EventType  string         `binding:"required" json:"event_type"`
	Page       string         `json:"page"`
	AdID       string         `json:"ad_id"`
	DecisionID string         `json:"decision_id"`
	UserID     string         `json:"user_id"`
	Metadata   map[string]any `json:"metadata"`
}

// EventHandler records client-reported engagement.
type EventHandler struct {
	service Service
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(service Service) *EventHandler {
	return &EventHandler{service: service}
}

// Track handles POST /api/v1/events. Delivery is asynchronous, so an
// accepted event answers 202.
func (h *EventHandler) Track(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	event, err := h.service.Track(c.Request.Context(), pipeline.EngagementRequest{
		EventType:  domain.EventType(req.EventType),
		Page:       req.Page,
		AdID:       req.AdID,
		DecisionID: req.DecisionID,
		UserID:     req.UserID,
		Metadata:   req.Metadata,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"event_id":   event.ID,
		"event_type": event.EventType,
	})
}
