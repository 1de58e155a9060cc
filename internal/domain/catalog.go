package domain

import "time"

// DefaultPriority applies to catalog entries without a positive priority.
const DefaultPriority = 1.0

// CatalogEntry is a sponsor's targetable content unit.
type CatalogEntry struct {
	ID             string     `db:"id"              json:"id"                     yaml:"id"`
	SponsorID      string     `db:"sponsor_id"      json:"sponsor_id,omitempty"   yaml:"sponsor_id"`
	Title          string     `db:"title"           json:"title,omitempty"        yaml:"title"`
	Body           string     `db:"body"            json:"body,omitempty"         yaml:"body"`
	DestinationURL string     `db:"destination_url" json:"destination_url,omitempty" yaml:"destination_url"`
	Categories     []string   `db:"-"               json:"categories"             yaml:"categories"`
	Priority       float64    `db:"priority"        json:"priority"               yaml:"priority"`
	ActiveFrom     *time.Time `db:"active_from"     json:"active_from,omitempty"  yaml:"active_from"`
	ActiveUntil    *time.Time `db:"active_until"    json:"active_until,omitempty" yaml:"active_until"`
}

// EffectivePriority returns Priority, or DefaultPriority when it is not positive.
func (e CatalogEntry) EffectivePriority() float64 {
	if e.Priority <= 0 {
		return DefaultPriority
	}
	return e.Priority
}

// ActiveAt reports whether now falls inside the entry's active window.
// Bounds are inclusive and a nil bound is open.
func (e CatalogEntry) ActiveAt(now time.Time) bool {
	if e.ActiveFrom != nil && now.Before(*e.ActiveFrom) {
		return false
	}
	if e.ActiveUntil != nil && now.After(*e.ActiveUntil) {
		return false
	}
	return true
}

// HasCategory reports whether the entry is tagged with id.
func (e CatalogEntry) HasCategory(id string) bool {
	for _, c := range e.Categories {
		if c == id {
			return true
		}
	}
	return false
}

// ScoredMatch is a catalog entry scored against a classification.
// Score is zero exactly when MatchedCategories is empty.
type ScoredMatch struct {
	Entry             CatalogEntry
	MatchedCategories []string
	Score             float64
}
