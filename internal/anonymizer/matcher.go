package anonymizer

import (
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// substringSet reports whether text contains any of a fixed set of
// lower-case substrings, in a single pass.
type substringSet struct {
	// Matcher.Match keeps per-call state inside the automaton.
	mu      sync.Mutex
	matcher *ahocorasick.Matcher
	words   []string
}

func newSubstringSet(words []string) *substringSet {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}
	return &substringSet{
		matcher: ahocorasick.NewStringMatcher(lowered),
		words:   lowered,
	}
}

// Find returns the dictionary words present in text, case-insensitively.
func (s *substringSet) Find(text string) []string {
	if text == "" || len(s.words) == 0 {
		return nil
	}

	s.mu.Lock()
	hits := s.matcher.Match([]byte(strings.ToLower(text)))
	s.mu.Unlock()

	found := make([]string, 0, len(hits))
	for _, i := range hits {
		if i < len(s.words) {
			found = append(found, s.words[i])
		}
	}
	return found
}

// Contains reports whether any dictionary word occurs in text.
func (s *substringSet) Contains(text string) bool {
	return len(s.Find(text)) > 0
}

// normalizeKey folds a metadata key for denylist lookups:
// "User_Name", "user-name" and "username" compare equal.
func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.':
			return -1
		}
		return r
	}, strings.ToLower(key))
}
