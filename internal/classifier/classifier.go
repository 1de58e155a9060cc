// Package classifier turns a free-text question into weighted categories.
package classifier

import (
	"context"
	"sort"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Provider names accepted in configuration.
const (
	ProviderKeyword   = "keyword"
	ProviderAnthropic = "anthropic"
)

// Classifier classifies a question given prior conversation turns.
type Classifier interface {
	Classify(ctx context.Context, question string, history []domain.ChatMessage) (domain.Classification, error)
}

// normalizeCategories clamps confidences to [0,1], drops blank ids and
// duplicate ids (keeping the highest confidence), and orders by confidence.
func normalizeCategories(in []domain.CategoryScore) []domain.CategoryScore {
	best := make(map[string]int, len(in))
	out := make([]domain.CategoryScore, 0, len(in))
	for _, cs := range in {
		if cs.CategoryID == "" {
			continue
		}
		cs.Confidence = min(max(cs.Confidence, 0), 1)
		if i, ok := best[cs.CategoryID]; ok {
			out[i].Confidence = max(out[i].Confidence, cs.Confidence)
			continue
		}
		best[cs.CategoryID] = len(out)
		out = append(out, cs)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
