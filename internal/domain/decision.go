package domain

import "errors"

// ErrNoContentAvailable means the catalog had nothing even at fallback
// granularity. It is a legitimate outcome, reported as a None decision.
var ErrNoContentAvailable = errors.New("no content available")

// FallbackConfidence is the fixed confidence reported for fallback content.
const FallbackConfidence = 0.5

// Mode is the outcome of the decision gate.
type Mode string

const (
	ModeTargeted Mode = "targeted"
	ModeFallback Mode = "fallback"
	ModeNone     Mode = "none"
)

// Decision is the gate's output for one question.
type Decision struct {
	ID                string        `json:"decision_id"`
	Mode              Mode          `json:"mode"`
	Entry             *CatalogEntry `json:"ad,omitempty"`
	Confidence        float64       `json:"confidence"`
	Category          string        `json:"category,omitempty"`
	MatchedCategories []string      `json:"matched_categories,omitempty"`
	// Reasons lists why the gate reached its mode, for logs and the CLI.
	Reasons []string `json:"-"`
}

// HasContent reports whether the decision carries an entry to show.
func (d Decision) HasContent() bool {
	return d.Mode != ModeNone && d.Entry != nil
}

// AdID returns the selected entry's id, or "" for a None decision.
func (d Decision) AdID() string {
	if d.Entry == nil {
		return ""
	}
	return d.Entry.ID
}
