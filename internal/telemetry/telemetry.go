// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the ad-targeting service.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName = "ad-targeting"
	namespace   = "ad_targeting"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Targeting
	Decisions          *prometheus.CounterVec
	DecisionConfidence prometheus.Histogram
	ClassifierCalls    *prometheus.CounterVec
	ClassifierDuration *prometheus.HistogramVec

	// Analytics pipeline
	EventsAccepted          *prometheus.CounterVec
	DiscardedEvents         prometheus.Counter
	AnonymizationViolations prometheus.Counter
	BatchesFlushed          *prometheus.CounterVec
	BatchSize               prometheus.Histogram
	BatchSends              *prometheus.CounterVec
	BatchSendDuration       *prometheus.HistogramVec
	EventsDropped           prometheus.Counter
	PendingBatchCount       prometheus.Gauge

	// Counters store
	CounterUpdates *prometheus.CounterVec

	// Click redirects
	Clicks *prometheus.CounterVec
}

// Provider wraps telemetry providers
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider registers all metrics on a fresh registry, so providers built
// in tests never collide.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  newMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func newMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initTargetingMetrics(f, m)
	initAnalyticsMetrics(f, m)
	initStorageMetrics(f, m)
	return m
}

func initTargetingMetrics(f promauto.Factory, m *Metrics) {
	m.Decisions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "decisions_total",
		Help:      "Targeting decisions by mode",
	}, []string{"mode"})

	m.DecisionConfidence = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decision_confidence",
		Help:      "Confidence reported with targeted and fallback decisions",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5},
	})

	m.ClassifierCalls = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "classifier_calls_total",
		Help:      "Classifier calls by provider and outcome",
	}, []string{"provider", "outcome"})

	m.ClassifierDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "classifier_duration_seconds",
		Help:      "Classifier latency",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"provider"})
}

func initAnalyticsMetrics(f promauto.Factory, m *Metrics) {
	m.EventsAccepted = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_events_total",
		Help:      "Anonymized events accepted into a batch",
	}, []string{"event_type"})

	m.DiscardedEvents = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_events_discarded_total",
		Help:      "Events rejected because the batcher was closed",
	})

	m.AnonymizationViolations = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anonymization_violations_total",
		Help:      "Fields dropped after anonymization still matched a sensitive pattern",
	})

	m.BatchesFlushed = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_batches_flushed_total",
		Help:      "Batches flushed by trigger",
	}, []string{"reason"})

	m.BatchSize = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analytics_batch_size",
		Help:      "Events per flushed batch",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
	})

	m.BatchSends = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_batch_sends_total",
		Help:      "Batch deliveries by transport and result",
	}, []string{"transport", "result"})

	m.BatchSendDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "analytics_batch_send_duration_seconds",
		Help:      "Time to deliver a batch, including the retry",
		Buckets:   prometheus.DefBuckets,
	}, []string{"transport"})

	m.EventsDropped = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analytics_events_dropped_total",
		Help:      "Events lost because their batch could not be delivered",
	})

	m.PendingBatchCount = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "analytics_pending_batches",
		Help:      "Batches waiting for a delivery retry",
	})
}

func initStorageMetrics(f promauto.Factory, m *Metrics) {
	m.CounterUpdates = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_updates_total",
		Help:      "Per-ad counter updates by result",
	}, []string{"result"})

	m.Clicks = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "click_redirects_total",
		Help:      "Click redirect requests by outcome",
	}, []string{"outcome"})
}

// Decision records a gate outcome.
func (m *Metrics) Decision(mode string, confidence float64) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(mode).Inc()
	if confidence > 0 {
		m.DecisionConfidence.Observe(confidence)
	}
}

// ClassifierCall records one classifier invocation.
func (m *Metrics) ClassifierCall(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierCalls.WithLabelValues(provider, outcome).Inc()
	m.ClassifierDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// EventAccepted records an event entering a batch.
func (m *Metrics) EventAccepted(eventType string) {
	if m == nil {
		return
	}
	m.EventsAccepted.WithLabelValues(eventType).Inc()
}

// EventsDiscarded records events refused by a closed batcher.
func (m *Metrics) EventsDiscarded(n int) {
	if m == nil {
		return
	}
	m.DiscardedEvents.Add(float64(n))
}

// AnonymizationViolation records fields removed by the post-anonymization guard.
func (m *Metrics) AnonymizationViolation(n int) {
	if m == nil {
		return
	}
	m.AnonymizationViolations.Add(float64(n))
}

// BatchFlushed records a flush and its size.
func (m *Metrics) BatchFlushed(reason string, size int) {
	if m == nil {
		return
	}
	m.BatchesFlushed.WithLabelValues(reason).Inc()
	m.BatchSize.Observe(float64(size))
}

// BatchSent records a delivery attempt sequence.
func (m *Metrics) BatchSent(transport string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.BatchSends.WithLabelValues(transport, result).Inc()
	m.BatchSendDuration.WithLabelValues(transport).Observe(d.Seconds())
}

// BatchDropped records events lost with an undeliverable batch.
func (m *Metrics) BatchDropped(events int) {
	if m == nil {
		return
	}
	m.EventsDropped.Add(float64(events))
}

// PendingBatches sets the pending batch gauge.
func (m *Metrics) PendingBatches(n int) {
	if m == nil {
		return
	}
	m.PendingBatchCount.Set(float64(n))
}

// CounterUpdate records a per-ad counter update result.
func (m *Metrics) CounterUpdate(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.CounterUpdates.WithLabelValues(result).Inc()
}

// Click records a click redirect outcome.
func (m *Metrics) Click(outcome string) {
	if m == nil {
		return
	}
	m.Clicks.WithLabelValues(outcome).Inc()
}
