// Package pipeline wires classification, decisioning, event emission and
// counter updates into the two request flows the API exposes.
package pipeline

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/analytics"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/anonymizer"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/classifier"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/targeting"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

const clickPage = "click-redirect"

var (
	// ErrEmptyQuestion is returned by Target for a blank question.
	ErrEmptyQuestion = errors.New("question is required")
	// ErrImpressionNotTrackable rejects client-reported impressions; the
	// targeting flow already records them.
	ErrImpressionNotTrackable = errors.New("impressions are recorded by the targeting flow")
)

// CounterUpdater receives fire-and-forget counter increments.
type CounterUpdater interface {
	IncrementAsync(adID string, delta counters.Delta)
}

// TargetRequest is one question to pick content for.
type TargetRequest struct {
	Question string
	History  []domain.ChatMessage
	Page     string
	// UserID is pseudonymized before any event leaves the process.
	UserID   string
	Metadata map[string]any
}

// TargetResult is the outcome of a targeting request.
type TargetResult struct {
	Decision domain.Decision
	// ClickURL is a signed redirect for decisions with a destination.
	ClickURL string
	// Degraded is set when the classifier was unavailable.
	Degraded bool
}

// EngagementRequest records a user interaction with shown content.
type EngagementRequest struct {
	EventType  domain.EventType
	Page       string
	AdID       string
	DecisionID string
	UserID     string
	Metadata   map[string]any
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Classifier    classifier.Classifier
	Gate          *targeting.Gate
	Emitter       *analytics.Emitter
	Counters      CounterUpdater
	Signer        *clickurl.Signer
	ClickEndpoint string
	Tracer        trace.Tracer
	Metrics       *telemetry.Metrics
	Logger        infralogger.Logger
}

// Service runs the targeting and engagement flows.
type Service struct {
	classifier    classifier.Classifier
	gate          *targeting.Gate
	emitter       *analytics.Emitter
	counters      CounterUpdater
	signer        *clickurl.Signer
	clickEndpoint string
	tracer        trace.Tracer
	metrics       *telemetry.Metrics
	log           infralogger.Logger
	now           func() time.Time
	newID         func() string
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	tracer := d.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("pipeline")
	}
	return &Service{
		classifier:    d.Classifier,
		gate:          d.Gate,
		emitter:       d.Emitter,
		counters:      d.Counters,
		signer:        d.Signer,
		clickEndpoint: d.ClickEndpoint,
		tracer:        tracer,
		metrics:       d.Metrics,
		log:           d.Logger,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// Target classifies the question, decides what to show, records the
// impression and schedules the counter update. Classifier and catalog
// failures degrade the decision instead of failing the request.
func (s *Service) Target(ctx context.Context, req TargetRequest) (TargetResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return TargetResult{}, ErrEmptyQuestion
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.Target")
	defer span.End()

	var result TargetResult

	classification, err := s.classifier.Classify(ctx, req.Question, req.History)
	if err != nil {
		result.Degraded = true
		classification = domain.Classification{}
		s.log.Warn("Classifier unavailable, continuing without categories",
			infralogger.Error(err),
		)
	}

	now := s.now()
	decision, err := s.gate.Decide(ctx, classification, now)
	if err != nil {
		s.log.Warn("Catalog lookup failed during decision",
			infralogger.String("mode", string(decision.Mode)),
			infralogger.Error(err),
		)
	}
	decision.ID = s.newID()

	s.emitter.EmitDecision(decision, req.Page, withUser(req.Metadata, req.UserID))
	s.metrics.Decision(string(decision.Mode), decision.Confidence)

	if decision.HasContent() {
		s.counters.IncrementAsync(decision.AdID(), counters.Delta{Impressions: 1})
		result.ClickURL = s.clickURL(decision, now)
	} else {
		s.log.Debug("No content for question",
			infralogger.String("decision_id", decision.ID),
			infralogger.Error(domain.ErrNoContentAvailable),
			infralogger.Strings("reasons", decision.Reasons),
		)
	}

	span.SetAttributes(
		attribute.String("decision.id", decision.ID),
		attribute.String("decision.mode", string(decision.Mode)),
		attribute.Float64("decision.confidence", decision.Confidence),
		attribute.Bool("classifier.degraded", result.Degraded),
	)

	result.Decision = decision
	return result, nil
}

// Track records an engagement event and bumps the matching counter.
func (s *Service) Track(ctx context.Context, req EngagementRequest) (domain.AnalyticsEvent, error) {
	if req.EventType == domain.EventImpression {
		return domain.AnalyticsEvent{}, ErrImpressionNotTrackable
	}
	if _, err := domain.ParseEventType(string(req.EventType)); err != nil {
		return domain.AnalyticsEvent{}, err
	}
	return s.record(ctx, req), nil
}

// RecordClick records a verified click-through.
func (s *Service) RecordClick(ctx context.Context, params clickurl.ClickParams) domain.AnalyticsEvent {
	return s.record(ctx, EngagementRequest{
		EventType:  domain.EventClick,
		Page:       clickPage,
		AdID:       params.AdID,
		DecisionID: params.DecisionID,
		Metadata:   map[string]any{analytics.KeyMode: params.Mode},
	})
}

func (s *Service) record(ctx context.Context, req EngagementRequest) domain.AnalyticsEvent {
	_, span := s.tracer.Start(ctx, "pipeline.Track")
	defer span.End()

	metadata := withUser(req.Metadata, req.UserID)
	if req.AdID != "" {
		metadata[analytics.KeyAdID] = req.AdID
	}
	if req.DecisionID != "" {
		metadata[analytics.KeyDecisionID] = req.DecisionID
	}

	event := s.emitter.Emit(req.EventType, req.Page, metadata)

	if delta := deltaFor(req.EventType); req.AdID != "" && !delta.IsZero() {
		s.counters.IncrementAsync(req.AdID, delta)
	}

	span.SetAttributes(
		attribute.String("event.type", string(req.EventType)),
		attribute.String("event.id", event.ID),
	)
	return event
}

func (s *Service) clickURL(d domain.Decision, now time.Time) string {
	if s.signer == nil || d.Entry.DestinationURL == "" {
		return ""
	}
	return s.signer.URL(s.clickEndpoint, clickurl.ClickParams{
		AdID:           d.Entry.ID,
		DecisionID:     d.ID,
		Mode:           string(d.Mode),
		Timestamp:      now.Unix(),
		DestinationURL: d.Entry.DestinationURL,
	})
}

func withUser(metadata map[string]any, userID string) map[string]any {
	out := make(map[string]any, len(metadata)+1)
	maps.Copy(out, metadata)
	if userID != "" {
		out[anonymizer.UserIDKey] = userID
	}
	return out
}

func deltaFor(t domain.EventType) counters.Delta {
	switch t {
	case domain.EventClick:
		return counters.Delta{Clicks: 1}
	case domain.EventConversion:
		return counters.Delta{Conversions: 1}
	default:
		return counters.Delta{}
	}
}
