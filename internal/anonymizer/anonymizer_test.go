package anonymizer_test

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/anonymizer"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const testSecret = "pseudonym-test-secret"

func newAnonymizer(t *testing.T) *anonymizer.Anonymizer {
	t.Helper()

	a, err := anonymizer.New(testSecret)
	require.NoError(t, err)
	return a
}

func event(metadata map[string]any) domain.AnalyticsEvent {
	return domain.AnalyticsEvent{
		ID:            "evt-1",
		EventType:     domain.EventImpression,
		EventCategory: domain.CategoryImpression,
		Context:       domain.EventContext{Page: "/ask", Timestamp: 1700000000000},
		Metadata:      metadata,
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := anonymizer.New("")
	require.ErrorIs(t, err, anonymizer.ErrEmptySecret)
}

func TestAnonymize_RedactsEmailInValue(t *testing.T) {
	t.Parallel()

	out := newAnonymizer(t).Anonymize(event(map[string]any{"note": "contact jane@x.com"}))

	assert.Equal(t, "contact [REDACTED_EMAIL]", out.Metadata["note"])
}

func TestValuePatterns(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "email", input: "mail bob.smith+ads@example.co.uk now", want: "mail [REDACTED_EMAIL] now"},
		{name: "ssn", input: "ssn 123-45-6789", want: "ssn [REDACTED_SSN]"},
		{name: "dashed phone", input: "call 555-123-4567", want: "call [REDACTED_PHONE]"},
		{name: "parenthesised phone", input: "call (555) 123-4567 today", want: "call [REDACTED_PHONE] today"},
		{name: "international phone", input: "+1 555.123.4567", want: "[REDACTED_PHONE]"},
		{name: "plain text untouched", input: "cholesterol question", want: "cholesterol question"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := a.Anonymize(event(map[string]any{"comment": tt.input}))
			assert.Equal(t, tt.want, out.Metadata["comment"])
		})
	}
}

func TestAnonymize_RemovesDirectKeysRecursively(t *testing.T) {
	t.Parallel()

	out := newAnonymizer(t).Anonymize(event(map[string]any{
		"adId":       "A1",
		"email":      "x@y.com",
		"first_name": "Jane",
		"ip-address": "10.0.0.1",
		"MRN":        "123",
		"context": map[string]any{
			"deviceId": "abc",
			"variant":  "b",
			"profile": map[string]any{
				"dob":   "1980-01-01",
				"theme": "dark",
			},
		},
	}))

	assert.Equal(t, map[string]any{
		"adId": "A1",
		"context": map[string]any{
			"variant": "b",
			"profile": map[string]any{"theme": "dark"},
		},
	}, out.Metadata)
}

func TestAnonymize_PseudonymizesUserID(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)

	first := a.Anonymize(event(map[string]any{"userId": "user-42"}))
	second := a.Anonymize(event(map[string]any{"userId": "user-42"}))
	other := a.Anonymize(event(map[string]any{"userId": "user-43"}))

	pseudonym, ok := first.Metadata["userId"].(string)
	require.True(t, ok)
	assert.True(t, anonymizer.IsPseudonym(pseudonym))
	assert.NotContains(t, pseudonym, "user-42")
	assert.NotEqual(t, "24-resu", strings.TrimPrefix(pseudonym, "anon_"), "must not be a reversal")
	assert.Equal(t, pseudonym, second.Metadata["userId"], "same user maps to same pseudonym")
	assert.NotEqual(t, pseudonym, other.Metadata["userId"])

	otherKey, err := anonymizer.New("another-secret")
	require.NoError(t, err)
	assert.NotEqual(t, pseudonym, otherKey.Pseudonymize("user-42"), "pseudonyms are keyed")
}

func TestAnonymize_UserIDVariantsAreRemoved(t *testing.T) {
	t.Parallel()

	out := newAnonymizer(t).Anonymize(event(map[string]any{
		"userId":    "u1",
		"userIdRaw": "u1",
		"user_id":   "u1",
		"nested":    map[string]any{"userId": "u1", "keep": 1},
	}))

	assert.Len(t, out.Metadata, 2)
	assert.Contains(t, out.Metadata, "userId")
	assert.Equal(t, map[string]any{"keep": 1}, out.Metadata["nested"])
}

func TestAnonymize_KeyFragmentsAndMedicalVocabulary(t *testing.T) {
	t.Parallel()

	out := newAnonymizer(t).Anonymize(event(map[string]any{
		"patientRef":      "p-1",
		"homeZipArea":     "90210",
		"priorDiagnosis":  "x",
		"dosePerDay":      2,
		"questionText":    "what statin should I take",
		"condition":       "hypertension",
		"summary":         "Asked about a rare syndrome",
		"topic":           "cholesterol",
		"nested":          map[string]any{"illnessType": "x", "safe": "y"},
		"tags":            []any{"heart", "chronic disease"},
		"matchedCategory": []string{"cardiology", "kidney disorder"},
	}))

	assert.Equal(t, map[string]any{
		"summary":         anonymizer.TokenMedicalInfo,
		"topic":           "cholesterol",
		"nested":          map[string]any{"safe": "y"},
		"tags":            []any{"heart", anonymizer.TokenMedicalInfo},
		"matchedCategory": []string{"cardiology", anonymizer.TokenMedicalInfo},
	}, out.Metadata)
}

func TestAnonymize_RedactsPage(t *testing.T) {
	t.Parallel()

	e := event(nil)
	e.Context.Page = "/share?to=jane@x.com"

	out := newAnonymizer(t).Anonymize(e)
	assert.Equal(t, "/share?to=[REDACTED_EMAIL]", out.Context.Page)
}

func TestAnonymize_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := event(map[string]any{
		"userId": "user-1",
		"email":  "a@b.com",
		"nested": map[string]any{"phone": "555-123-4567", "note": "call 555-123-4567"},
	})
	snapshot := in.Clone()

	_ = newAnonymizer(t).Anonymize(in)

	assert.Equal(t, snapshot, in)
}

func TestAnonymize_ConcurrentUse(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	shared := event(map[string]any{"note": "jane@x.com has a syndrome", "userId": "u"})

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			for range 50 {
				out := a.Anonymize(shared)
				if len(a.Verify(out)) != 0 {
					t.Error("concurrent anonymize produced a violation")
				}
			}
		})
	}
	wg.Wait()
}

type visit struct {
	Theme string `json:"theme"`
	Email string `json:"email"`
}

type label string

// sampleEvents mixes identifiers, health vocabulary, nesting, typed
// containers and safe values.
func sampleEvents(n int) []domain.AnalyticsEvent {
	keys := []string{
		"adId", "userId", "user_id", "email", "Name", "note", "comment", "phoneNumber",
		"address", "zip", "birthDate", "AGE", "gender", "ipAddress", "deviceId",
		"diagnosis", "medical_history", "symptoms", "labResults", "insuranceId",
		"questionText", "condition", "variant", "rating", "patientRecord", "topic",
		"jane@x.com", "555-123-4567", "123-45-6789", "ref 555.123.4567",
	}
	values := []any{
		"jane@x.com", "555-123-4567", "123-45-6789", "chronic illness", "statins",
		"hello", "take one dose", 42, 3.14, true, nil,
		"anon_0123456789abcdef0123456789abcdef", "user-7",
		[]map[string]any{{"email": "jane@x.com", "variant": "b", "note": "a syndrome"}},
		map[string][]string{"note": {"call 555-123-4567", "ok"}},
		map[string]string{"comment": "jane@x.com", "diagnosis": "flu"},
		[]string{"statins", "rare disorder"},
		visit{Theme: "dark", Email: "x@y.com"},
		&visit{Theme: "light", Email: "x@y.com"},
		label("chronic illness"),
	}

	rng := rand.New(rand.NewPCG(7, 11))
	var build func(depth int) map[string]any
	build = func(depth int) map[string]any {
		m := make(map[string]any)
		for range 1 + rng.IntN(6) {
			key := keys[rng.IntN(len(keys))]
			switch {
			case depth < 2 && rng.IntN(5) == 0:
				m[key] = build(depth + 1)
			case rng.IntN(6) == 0:
				m[key] = []any{values[rng.IntN(len(values))], values[rng.IntN(len(values))]}
			default:
				m[key] = values[rng.IntN(len(values))]
			}
		}
		return m
	}

	events := make([]domain.AnalyticsEvent, n)
	for i := range events {
		events[i] = event(build(0))
		events[i].ID = fmt.Sprintf("evt-%d", i)
	}
	return events
}

func TestAnonymize_IsIdempotent(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	for _, e := range sampleEvents(300) {
		once := a.Anonymize(e)
		twice := a.Anonymize(once)
		require.Equal(t, once, twice, "event %s", e.ID)
	}
}

func TestAnonymize_LeavesNoPersonalOrHealthData(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	for _, e := range sampleEvents(300) {
		out := a.Anonymize(e)
		require.Empty(t, a.Verify(out), "event %s: %v", e.ID, e.Metadata)
	}
}

func TestVerify_FlagsRawEvent(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	violations := a.Verify(event(map[string]any{
		"userId": "plain-user",
		"email":  "a@b.com",
		"nested": map[string]any{"note": "call 555-123-4567"},
		"safe":   "ok",
	}))

	assert.Equal(t, []string{"metadata.email", "metadata.nested.note", "metadata.userId"}, violations)
}

func TestEnforce_CleanEventDropsNothing(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	out, dropped := a.Enforce(event(map[string]any{"note": "x@y.com", "adId": "A1"}))

	assert.Empty(t, dropped)
	assert.Equal(t, "[REDACTED_EMAIL]", out.Metadata["note"])
	assert.Equal(t, "A1", out.Metadata["adId"])
}

func TestAnonymize_DropsKeysShapedLikeIdentifiers(t *testing.T) {
	t.Parallel()

	a := newAnonymizer(t)
	out := a.Anonymize(event(map[string]any{
		"adId":         "A1",
		"jane@x.com":   "1",
		"555-123-4567": "2",
		"123-45-6789":  "3",
		"nested":       map[string]any{"(555) 123-4567": "x", "keep": "y"},
	}))

	assert.Equal(t, map[string]any{
		"adId":   "A1",
		"nested": map[string]any{"keep": "y"},
	}, out.Metadata)
	assert.Empty(t, a.Verify(out))
}

func TestAnonymize_NormalizesTypedContainers(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{{"email": "jane@x.com", "diagnosis": "diabetes", "variant": "b"}}
	headers := map[string][]string{"note": {"call 555-123-4567", "ok"}}
	in := event(map[string]any{
		"rows":    rows,
		"headers": headers,
		"visit":   &visit{Theme: "dark", Email: "x@y.com"},
		"label":   label("mail jane@x.com"),
	})

	a := newAnonymizer(t)
	out := a.Anonymize(in)

	assert.Equal(t, map[string]any{
		"rows":    []any{map[string]any{"variant": "b"}},
		"headers": map[string]any{"note": []any{"call [REDACTED_PHONE]", "ok"}},
		"visit":   map[string]any{"theme": "dark"},
		"label":   "mail [REDACTED_EMAIL]",
	}, out.Metadata)
	assert.Empty(t, a.Verify(out))

	rows[0]["variant"] = "changed"
	headers["note"][1] = "changed"
	assert.Equal(t, []any{map[string]any{"variant": "b"}}, out.Metadata["rows"], "output shares nothing with input")
	assert.Equal(t, "jane@x.com", rows[0]["email"], "input is untouched")
}

func TestVerify_FlagsIdentifierKeysAndUnwalkableValues(t *testing.T) {
	t.Parallel()

	violations := newAnonymizer(t).Verify(event(map[string]any{
		"jane@x.com": "1",
		"rows":       []map[string]any{{"theme": "dark"}},
		"label":      label("plain"),
		"count":      3,
		"safe":       "ok",
	}))

	assert.Equal(t, []string{"metadata.jane@x.com", "metadata.label", "metadata.rows"}, violations)
}

func TestEnforce_StripRemovesFlaggedPaths(t *testing.T) {
	t.Parallel()

	in := event(map[string]any{
		"adId":       "A1",
		"jane@x.com": "1",
		"nested":     map[string]any{"note": "call 555-123-4567", "keep": "y"},
		"rows":       []map[string]any{{"email": "a@b.com"}},
	})
	in.Context.Page = "/share?to=jane@x.com"

	out, dropped := newAnonymizer(t).Strip(in)

	assert.Equal(t, []string{
		"context.page",
		"metadata.jane@x.com",
		"metadata.nested.note",
		"metadata.rows[0].email",
	}, dropped)
	assert.Empty(t, out.Context.Page)
	assert.Equal(t, map[string]any{
		"adId":   "A1",
		"nested": map[string]any{"keep": "y"},
	}, out.Metadata)
	assert.Contains(t, in.Metadata, "jane@x.com", "input is untouched")
}
