package targeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// DefaultThreshold is the score a match needs to be shown as targeted.
const DefaultThreshold = 0.5

// ErrInvalidThreshold is returned by NewGate for a non-positive threshold.
var ErrInvalidThreshold = errors.New("targeting threshold must be greater than 0")

// Catalog is the read side of the ad catalog the gate depends on.
type Catalog interface {
	ListActive(ctx context.Context, now time.Time) ([]domain.CatalogEntry, error)
	FindByCategory(ctx context.Context, categoryID string) ([]domain.CatalogEntry, error)
}

// Gate turns a classification into a Decision.
type Gate struct {
	catalog   Catalog
	threshold float64
}

// NewGate creates a gate that shows targeted content when its score is at
// least threshold.
func NewGate(catalog Catalog, threshold float64) (*Gate, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	return &Gate{catalog: catalog, threshold: threshold}, nil
}

// Threshold returns the configured targeting threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Decide always returns a usable decision. A non-nil error reports a catalog
// failure the caller should log; the decision already accounts for it.
// The returned decision has no ID.
func (g *Gate) Decide(ctx context.Context, c domain.Classification, now time.Time) (domain.Decision, error) {
	if c.IsEmpty() {
		return domain.Decision{
			Mode:    domain.ModeNone,
			Reasons: []string{"empty classification"},
		}, nil
	}

	var reasons []string

	entries, listErr := g.catalog.ListActive(ctx, now)
	if listErr != nil {
		listErr = fmt.Errorf("list active entries: %w", listErr)
		reasons = append(reasons, "catalog unavailable for targeted match")
	}

	if match, ok := Select(c, entries, now); ok {
		if match.Score >= g.threshold {
			entry := match.Entry
			return domain.Decision{
				Mode:              domain.ModeTargeted,
				Entry:             &entry,
				Confidence:        match.Score,
				Category:          strongest(c, match.MatchedCategories),
				MatchedCategories: match.MatchedCategories,
				Reasons:           append(reasons, fmt.Sprintf("score %.3f >= threshold %.3f", match.Score, g.threshold)),
			}, nil
		}
		reasons = append(reasons, fmt.Sprintf("best score %.3f below threshold %.3f", match.Score, g.threshold))
	} else if listErr == nil {
		reasons = append(reasons, "no matching active entry")
	}

	top, _ := c.TopCategory()
	decision, fallbackErr := g.fallback(ctx, top.CategoryID, now)
	decision.Reasons = append(reasons, decision.Reasons...)

	return decision, errors.Join(listErr, fallbackErr)
}

// fallback picks the first active entry tagged with category, ignoring
// priority.
func (g *Gate) fallback(ctx context.Context, category string, now time.Time) (domain.Decision, error) {
	entries, err := g.catalog.FindByCategory(ctx, category)
	if err != nil {
		return domain.Decision{
			Mode:     domain.ModeNone,
			Category: category,
			Reasons:  []string{"fallback lookup failed"},
		}, fmt.Errorf("find fallback for %q: %w", category, err)
	}

	for _, entry := range entries {
		if !entry.ActiveAt(now) {
			continue
		}
		return domain.Decision{
			Mode:              domain.ModeFallback,
			Entry:             &entry,
			Confidence:        domain.FallbackConfidence,
			Category:          category,
			MatchedCategories: []string{category},
			Reasons:           []string{"fallback content for top category " + category},
		}, nil
	}

	return domain.Decision{
		Mode:     domain.ModeNone,
		Category: category,
		Reasons:  []string{domain.ErrNoContentAvailable.Error() + " for " + category},
	}, nil
}

// strongest returns the matched category the classification is most
// confident about.
func strongest(c domain.Classification, matched []string) string {
	best, bestConf := "", -1.0
	for _, id := range matched {
		if conf, _ := c.ConfidenceOf(id); conf > bestConf {
			best, bestConf = id, conf
		}
	}
	return best
}
