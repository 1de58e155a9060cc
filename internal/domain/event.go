package domain

import (
	"errors"
	"fmt"
	"maps"
)

// ErrAnonymizationViolation reports PII or PHI left in an event after
// anonymization.
var ErrAnonymizationViolation = errors.New("anonymization violation")

// EventType is the kind of engagement an event records.
type EventType string

const (
	EventImpression EventType = "impression"
	EventClick      EventType = "click"
	EventConversion EventType = "conversion"
	EventDismiss    EventType = "dismiss"
	EventFeedback   EventType = "feedback"
)

// EventCategory groups event types for reporting.
type EventCategory string

const (
	CategoryImpression EventCategory = "Impression"
	CategoryEngagement EventCategory = "Engagement"
	CategoryConversion EventCategory = "Conversion"
)

// ParseEventType validates a wire event type.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(s); t {
	case EventImpression, EventClick, EventConversion, EventDismiss, EventFeedback:
		return t, nil
	default:
		return "", fmt.Errorf("unknown event type %q", s)
	}
}

// Category derives the reporting category of t.
func (t EventType) Category() EventCategory {
	switch t {
	case EventImpression:
		return CategoryImpression
	case EventConversion:
		return CategoryConversion
	default:
		return CategoryEngagement
	}
}

// EventContext locates an event.
type EventContext struct {
	Page string `json:"page"`
	// Timestamp is epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// AnalyticsEvent is one engagement record. Treat it as a value: use Clone
// before changing Metadata.
type AnalyticsEvent struct {
	ID            string         `json:"id"`
	EventType     EventType      `json:"event_type"`
	EventCategory EventCategory  `json:"event_category"`
	Context       EventContext   `json:"context"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy whose metadata shares nothing with e. Containers of
// other types are copied in their normalized form.
func (e AnalyticsEvent) Clone() AnalyticsEvent {
	out := e
	out.Metadata = cloneMap(e.Metadata)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case map[string]string:
		return maps.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return NormalizeValue(v)
	}
}
