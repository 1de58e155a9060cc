package domain

import "time"

// Batch is a group of anonymized events flushed together. It is never
// modified after the flush that created it.
type Batch struct {
	ID         string           `json:"batch_id"`
	Timestamp  time.Time        `json:"timestamp"`
	EventCount int              `json:"event_count"`
	Events     []AnalyticsEvent `json:"events"`
}
