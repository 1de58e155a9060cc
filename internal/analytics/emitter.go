// Package analytics builds engagement events and batches them for delivery
// to the configured sinks.
package analytics

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Metadata keys written by the emitter.
const (
	KeyAdID       = "adId"
	KeyDecisionID = "decisionId"
	KeyMode       = "mode"
	KeyConfidence = "confidence"
	KeyCategory   = "category"
	KeySponsorID  = "sponsorId"
)

// EventSink accepts events for delivery. Batcher implements it.
type EventSink interface {
	Add(event domain.AnalyticsEvent)
}

// Emitter constructs typed analytics events and hands them to a sink.
type Emitter struct {
	sink  EventSink
	now   func() time.Time
	newID func() string
}

// NewEmitter creates an Emitter writing to sink.
func NewEmitter(sink EventSink) *Emitter {
	return &Emitter{
		sink:  sink,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Build creates an event without emitting it. metadata is copied and
// normalized to JSON-shaped values.
func (e *Emitter) Build(eventType domain.EventType, page string, metadata map[string]any) domain.AnalyticsEvent {
	event := domain.AnalyticsEvent{
		ID:            e.newID(),
		EventType:     eventType,
		EventCategory: eventType.Category(),
		Context: domain.EventContext{
			Page:      page,
			Timestamp: e.now().UnixMilli(),
		},
		Metadata: domain.NormalizeMetadata(metadata),
	}
	return event
}

// Emit builds an event and passes it to the sink.
func (e *Emitter) Emit(eventType domain.EventType, page string, metadata map[string]any) domain.AnalyticsEvent {
	event := e.Build(eventType, page, metadata)
	e.sink.Add(event)
	return event
}

// EmitDecision records the impression for a decision. None decisions are
// recorded too, without an ad id, so unfilled requests are countable.
func (e *Emitter) EmitDecision(d domain.Decision, page string, extra map[string]any) domain.AnalyticsEvent {
	metadata := make(map[string]any, len(extra)+6)
	for k, v := range extra {
		metadata[k] = v
	}

	metadata[KeyDecisionID] = d.ID
	metadata[KeyMode] = string(d.Mode)
	metadata[KeyConfidence] = d.Confidence
	if d.Category != "" {
		metadata[KeyCategory] = d.Category
	}
	if d.Entry != nil {
		metadata[KeyAdID] = d.Entry.ID
		if d.Entry.SponsorID != "" {
			metadata[KeySponsorID] = d.Entry.SponsorID
		}
	}

	return e.Emit(domain.EventImpression, page, metadata)
}
