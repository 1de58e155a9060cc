// Package domain holds the types shared by the targeting and analytics
// pipelines.
package domain

import "errors"

// ErrClassificationUnavailable marks a classifier that timed out or failed.
// Callers substitute an empty Classification and carry on.
var ErrClassificationUnavailable = errors.New("classification unavailable")

// CategoryScore is one category's relevance to a question.
type CategoryScore struct {
	CategoryID string  `json:"category_id" yaml:"category_id"`
	Confidence float64 `json:"confidence"  yaml:"confidence"`
}

// Classification is the weighted category and keyword summary of a question.
// Confidences are independent and need not sum to 1.
type Classification struct {
	Categories []CategoryScore `json:"categories"`
	Keywords   []string        `json:"keywords"`
}

// ChatMessage is one turn of conversation history passed to a classifier.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IsEmpty reports whether the classification carries no categories.
func (c Classification) IsEmpty() bool {
	return len(c.Categories) == 0
}

// ConfidenceOf returns the highest confidence recorded for id, and whether
// the category is present at all.
func (c Classification) ConfidenceOf(id string) (float64, bool) {
	best, found := 0.0, false
	for _, cs := range c.Categories {
		if cs.CategoryID != id {
			continue
		}
		if !found || cs.Confidence > best {
			best = cs.Confidence
		}
		found = true
	}
	return best, found
}

// TopCategory returns the highest-confidence category. The first one wins a tie.
func (c Classification) TopCategory() (CategoryScore, bool) {
	if c.IsEmpty() {
		return CategoryScore{}, false
	}
	top := c.Categories[0]
	for _, cs := range c.Categories[1:] {
		if cs.Confidence > top.Confidence {
			top = cs
		}
	}
	return top, true
}
