package classifier

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"unicode"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Scoring weights: log-scaled term frequency plus keyword coverage.
const (
	tfWeight       = 0.6
	coverageWeight = 0.4
	// ln(1+5): five hits saturate the term frequency component.
	tfNormalizationFactor = 1.791759469228055
)

// Rule maps keywords to a category.
type Rule struct {
	Category      string   `yaml:"category"`
	Keywords      []string `yaml:"keywords"`
	MinConfidence float64  `yaml:"min_confidence"`
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads keyword rules from a YAML file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var f rulesFile
	if err = yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return f.Rules, nil
}

type keywordMapping struct {
	rule         int
	keywordIndex int
}

// Keyword classifies with an Aho-Corasick automaton over rule keywords, one
// pass over the text regardless of rule count.
type Keyword struct {
	mu        sync.Mutex
	matcher   *ahocorasick.Matcher
	rules     []Rule
	keywords  []string
	kwToRules map[string][]keywordMapping
	logger    infralogger.Logger
}

// NewKeyword builds a keyword classifier from rules.
func NewKeyword(rules []Rule, logger infralogger.Logger) *Keyword {
	k := &Keyword{logger: logger}
	k.rebuildLocked(rules)

	logger.Info("Keyword classifier initialized",
		infralogger.Int("rules", len(k.rules)),
		infralogger.Int("keywords", len(k.keywords)),
	)
	return k
}

// UpdateRules swaps the rule set atomically.
func (k *Keyword) UpdateRules(rules []Rule) {
	k.mu.Lock()
	k.rebuildLocked(rules)
	keywordCount := len(k.keywords)
	k.mu.Unlock()

	k.logger.Info("Keyword classifier rules updated",
		infralogger.Int("rules", len(rules)),
		infralogger.Int("keywords", keywordCount),
	)
}

// rebuildLocked must be called with k.mu held or before k is shared.
func (k *Keyword) rebuildLocked(rules []Rule) {
	k.rules = rules
	k.keywords = nil
	k.kwToRules = make(map[string][]keywordMapping)

	for ri, rule := range rules {
		if rule.Category == "" {
			continue
		}
		for idx, kw := range rule.Keywords {
			normalized := normalizeText(kw)
			if normalized == "" {
				continue
			}
			if _, seen := k.kwToRules[normalized]; !seen {
				k.keywords = append(k.keywords, normalized)
			}
			k.kwToRules[normalized] = append(k.kwToRules[normalized], keywordMapping{rule: ri, keywordIndex: idx})
		}
	}

	if len(k.keywords) > 0 {
		k.matcher = ahocorasick.NewStringMatcher(k.keywords)
	} else {
		k.matcher = nil
	}
}

type ruleAccumulator struct {
	matched   map[int]bool
	totalHits int
}

// Classify scores every rule whose keywords occur in the question or in the
// user's earlier turns.
func (k *Keyword) Classify(ctx context.Context, question string, history []domain.ChatMessage) (domain.Classification, error) {
	if err := ctx.Err(); err != nil {
		return domain.Classification{}, err
	}

	var sb strings.Builder
	sb.WriteString(question)
	for _, msg := range history {
		if msg.Role == "user" {
			sb.WriteByte(' ')
			sb.WriteString(msg.Content)
		}
	}
	// Pad so keywords only match on word boundaries.
	text := " " + normalizeText(sb.String()) + " "

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.matcher == nil {
		return domain.Classification{}, nil
	}

	accum := make(map[int]*ruleAccumulator)
	var keywords []string
	seenKeyword := make(map[string]bool)

	for _, hit := range k.matcher.Match([]byte(text)) {
		keyword := k.keywords[hit]
		if !strings.Contains(text, " "+keyword+" ") {
			continue
		}
		if !seenKeyword[keyword] {
			seenKeyword[keyword] = true
			keywords = append(keywords, keyword)
		}
		hits := strings.Count(text, " "+keyword+" ")
		for _, m := range k.kwToRules[keyword] {
			acc, ok := accum[m.rule]
			if !ok {
				acc = &ruleAccumulator{matched: make(map[int]bool)}
				accum[m.rule] = acc
			}
			acc.matched[m.keywordIndex] = true
			acc.totalHits += hits
		}
	}

	var categories []domain.CategoryScore
	for ri := range k.rules {
		acc, ok := accum[ri]
		if !ok {
			continue
		}
		rule := k.rules[ri]
		coverage := float64(len(acc.matched)) / float64(len(rule.Keywords))
		logTF := math.Min(1.0, math.Log1p(float64(acc.totalHits))/tfNormalizationFactor)
		score := (logTF * tfWeight) + (coverage * coverageWeight)
		if score < rule.MinConfidence {
			continue
		}
		categories = append(categories, domain.CategoryScore{CategoryID: rule.Category, Confidence: score})
	}

	return domain.Classification{
		Categories: normalizeCategories(categories),
		Keywords:   keywords,
	}, nil
}

// normalizeText lowercases, turns everything but letters and digits into
// spaces and collapses runs of spaces.
func normalizeText(text string) string {
	text = strings.ToLower(text)

	var result strings.Builder
	result.Grow(len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		} else {
			result.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(result.String()), " ")
}
