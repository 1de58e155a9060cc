// Package anonymizer strips personal and health identifying data from
// analytics events before they leave the process.
package anonymizer

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const (
	pseudonymPrefix = "anon_"
	pseudonymHexLen = 32
)

// ErrEmptySecret is returned when no pseudonym secret is configured.
var ErrEmptySecret = errors.New("pseudonym secret is required")

var pseudonymPattern = regexp.MustCompile(`^anon_[0-9a-f]{32}$`)

// Anonymizer applies the redaction rules. It is safe for concurrent use and
// never modifies the events it is given.
type Anonymizer struct {
	signer     *clickurl.Signer
	directKeys map[string]struct{}
	highRisk   map[string]struct{}
	fragments  *substringSet
	vocabulary *substringSet
	patterns   []ValuePattern
}

// New builds an Anonymizer whose pseudonyms are keyed by secret.
func New(secret string) (*Anonymizer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	direct := make(map[string]struct{}, len(DirectKeys))
	for _, k := range DirectKeys {
		direct[normalizeKey(k)] = struct{}{}
	}
	highRisk := make(map[string]struct{}, len(HighRiskKeys))
	for _, k := range HighRiskKeys {
		highRisk[normalizeKey(k)] = struct{}{}
	}

	return &Anonymizer{
		signer:     clickurl.NewSigner(secret),
		directKeys: direct,
		highRisk:   highRisk,
		fragments:  newSubstringSet(SensitiveKeyFragments),
		vocabulary: newSubstringSet(MedicalVocabulary),
		patterns:   ValuePatterns,
	}, nil
}

// Pseudonymize maps a user id to a stable one-way pseudonym. Values that are
// already pseudonyms are returned unchanged.
func (a *Anonymizer) Pseudonymize(userID string) string {
	if IsPseudonym(userID) {
		return userID
	}
	return pseudonymPrefix + a.signer.Digest(userID)[:pseudonymHexLen]
}

// IsPseudonym reports whether s has the form produced by Pseudonymize.
func IsPseudonym(s string) bool {
	return pseudonymPattern.MatchString(s)
}

// Anonymize returns a redacted copy of event. Applying it twice gives the
// same result as applying it once.
func (a *Anonymizer) Anonymize(event domain.AnalyticsEvent) domain.AnalyticsEvent {
	out := event
	out.Context.Page = a.redactString(event.Context.Page)

	if event.Metadata == nil {
		return out
	}

	out.Metadata = a.cleanMap(event.Metadata, true)
	if raw, ok := event.Metadata[UserIDKey]; ok && raw != nil {
		out.Metadata[UserIDKey] = a.Pseudonymize(fmt.Sprint(raw))
	}
	return out
}

// cleanMap returns a new map without sensitive keys and with sensitive
// values redacted. The top-level userId is left for the caller.
func (a *Anonymizer) cleanMap(in map[string]any, topLevel bool) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		if topLevel && key == UserIDKey {
			continue
		}
		if a.dropKey(key) {
			continue
		}
		out[key] = a.cleanValue(value)
	}
	return out
}

func (a *Anonymizer) cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return a.redactString(t)
	case map[string]any:
		return a.cleanMap(t, false)
	case map[string]string:
		generic := make(map[string]any, len(t))
		for k, s := range t {
			generic[k] = s
		}
		return a.cleanMap(generic, false)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = a.cleanValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = a.redactString(s)
		}
		return out
	default:
		switch n := domain.NormalizeValue(v).(type) {
		case string, map[string]any, []any:
			return a.cleanValue(n)
		default:
			return n
		}
	}
}

// dropKey applies the key rules: the direct denylist (including every userId
// variant below the top level), the sensitive fragments, the medical
// vocabulary, the high-risk list and the value patterns. Keys are dropped
// rather than redacted so two redacted keys cannot collide.
func (a *Anonymizer) dropKey(key string) bool {
	norm := normalizeKey(key)
	if _, ok := a.directKeys[norm]; ok {
		return true
	}
	if _, ok := a.highRisk[norm]; ok {
		return true
	}
	if strings.HasPrefix(norm, "userid") {
		return true
	}
	if a.fragments.Contains(key) || a.vocabulary.Contains(key) {
		return true
	}
	for _, p := range a.patterns {
		if p.Pattern.MatchString(key) {
			return true
		}
	}
	return false
}

// redactString replaces identifier patterns with their tokens, then replaces
// the whole value if it still mentions medical vocabulary.
func (a *Anonymizer) redactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range a.patterns {
		s = p.Pattern.ReplaceAllString(s, p.Token)
	}
	if a.vocabulary.Contains(s) {
		return TokenMedicalInfo
	}
	return s
}

// Verify lists the paths in event that break the anonymization invariant.
// An empty result means the event is safe to emit.
func (a *Anonymizer) Verify(event domain.AnalyticsEvent) []string {
	var violations []string
	if a.stringViolates(event.Context.Page) {
		violations = append(violations, "context.page")
	}

	for key, value := range event.Metadata {
		path := "metadata." + key
		if key == UserIDKey {
			if s, ok := value.(string); !ok || !IsPseudonym(s) {
				violations = append(violations, path)
			}
			continue
		}
		violations = append(violations, a.verifyEntry(path, key, value)...)
	}

	slices.Sort(violations)
	return violations
}

func (a *Anonymizer) verifyEntry(path, key string, value any) []string {
	if a.dropKey(key) {
		return []string{path}
	}
	return a.verifyValue(path, value)
}

func (a *Anonymizer) verifyValue(path string, value any) []string {
	var violations []string
	switch t := value.(type) {
	case string:
		if a.stringViolates(t) {
			violations = append(violations, path)
		}
	case map[string]any:
		for k, v := range t {
			violations = append(violations, a.verifyEntry(path+"."+k, k, v)...)
		}
	case map[string]string:
		for k, v := range t {
			violations = append(violations, a.verifyEntry(path+"."+k, k, v)...)
		}
	case []any:
		for i, item := range t {
			violations = append(violations, a.verifyValue(fmt.Sprintf("%s[%d]", path, i), item)...)
		}
	case []string:
		for i, s := range t {
			if a.stringViolates(s) {
				violations = append(violations, fmt.Sprintf("%s[%d]", path, i))
			}
		}
	default:
		if !isScalar(value) {
			violations = append(violations, path)
		}
	}
	return violations
}

// isScalar reports whether v is nil, a bool or a number. Anything else that
// reaches verifyValue is a container it cannot walk.
func isScalar(v any) bool {
	if v == nil {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func (a *Anonymizer) stringViolates(s string) bool {
	if s == TokenMedicalInfo {
		return false
	}
	for _, p := range a.patterns {
		if p.Pattern.MatchString(s) {
			return true
		}
	}
	return a.vocabulary.Contains(s)
}

// Enforce anonymizes event and removes anything Verify still objects to.
// The returned paths are the ones that had to be dropped after anonymizing,
// which should always be empty.
func (a *Anonymizer) Enforce(event domain.AnalyticsEvent) (domain.AnalyticsEvent, []string) {
	return a.strip(a.Anonymize(event))
}

// strip deletes every path Verify flags. It modifies event in place.
func (a *Anonymizer) strip(event domain.AnalyticsEvent) (domain.AnalyticsEvent, []string) {
	violations := a.Verify(event)
	if len(violations) == 0 {
		return event, nil
	}

	for _, path := range violations {
		if path == "context.page" {
			event.Context.Page = ""
			continue
		}
		removePath(event.Metadata, strings.TrimPrefix(path, "metadata."))
	}
	return event, violations
}

// removePath deletes the map entry a Verify path points at. Keys may contain
// dots, so every split point is tried. Slice elements are handled by
// removing the enclosing key.
func removePath(m map[string]any, path string) bool {
	if _, ok := m[path]; ok {
		delete(m, path)
		return true
	}
	for i := range len(path) {
		switch path[i] {
		case '.':
			if next, ok := m[path[:i]].(map[string]any); ok && removePath(next, path[i+1:]) {
				return true
			}
		case '[':
			if _, ok := m[path[:i]]; ok {
				delete(m, path[:i])
				return true
			}
		}
	}
	return false
}
