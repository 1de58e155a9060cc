// Package targeting scores catalog entries against a question's
// classification and gates the result into a targeted, fallback or empty
// decision.
package targeting

import (
	"time"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Score matches entry against c. The score is the entry's priority times the
// summed confidence of every category both sides share.
func Score(c domain.Classification, entry domain.CatalogEntry) domain.ScoredMatch {
	match := domain.ScoredMatch{Entry: entry}

	seen := make(map[string]struct{}, len(entry.Categories))
	sum := 0.0
	for _, id := range entry.Categories {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if conf, ok := c.ConfidenceOf(id); ok {
			match.MatchedCategories = append(match.MatchedCategories, id)
			sum += conf
		}
	}

	if len(match.MatchedCategories) > 0 {
		match.Score = entry.EffectivePriority() * sum
	}
	return match
}

// Select returns the highest scoring entry active at now. Entries that share
// no category with c, or score zero, never win. Ties go to the entry that
// comes first in entries.
func Select(c domain.Classification, entries []domain.CatalogEntry, now time.Time) (domain.ScoredMatch, bool) {
	var (
		best  domain.ScoredMatch
		found bool
	)

	for _, entry := range entries {
		if !entry.ActiveAt(now) {
			continue
		}

		match := Score(c, entry)
		if len(match.MatchedCategories) == 0 || match.Score <= 0 {
			continue
		}
		if !found || match.Score > best.Score {
			best, found = match, true
		}
	}

	return best, found
}
