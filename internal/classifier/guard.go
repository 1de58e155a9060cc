package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

// Guard defaults.
const (
	DefaultTimeout          = 3 * time.Second
	DefaultFailureThreshold = 5
	DefaultOpenTimeout      = 30 * time.Second
)

// Call outcomes recorded in telemetry.
const (
	outcomeSuccess     = "success"
	outcomeError       = "error"
	outcomeTimeout     = "timeout"
	outcomeCircuitOpen = "circuit_open"
)

// GuardConfig bounds a classifier call.
type GuardConfig struct {
	Timeout time.Duration
	// FailureThreshold is the run of consecutive failures that opens the
	// circuit.
	FailureThreshold uint32
	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

func (c *GuardConfig) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
}

// Guard wraps a Classifier with a timeout and a circuit breaker. It never
// fails a request: on any failure it returns an empty classification and an
// error wrapping domain.ErrClassificationUnavailable.
type Guard struct {
	inner   Classifier
	name    string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	logger  infralogger.Logger
	metrics *telemetry.Metrics
}

// NewGuard wraps inner. name labels logs, metrics and the breaker.
func NewGuard(inner Classifier, name string, cfg GuardConfig, logger infralogger.Logger, metrics *telemetry.Metrics) *Guard {
	cfg.setDefaults()
	threshold := cfg.FailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "classifier-" + name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			logger.Warn("Classifier circuit state changed",
				infralogger.String("breaker", breaker),
				infralogger.String("from", from.String()),
				infralogger.String("to", to.String()),
			)
		},
	})

	return &Guard{
		inner:   inner,
		name:    name,
		timeout: cfg.Timeout,
		cb:      cb,
		logger:  logger,
		metrics: metrics,
	}
}

type classifyResult struct {
	classification domain.Classification
	err            error
}

// Classify calls the wrapped classifier within the timeout.
func (g *Guard) Classify(ctx context.Context, question string, history []domain.ChatMessage) (domain.Classification, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.cb.Execute(func() (interface{}, error) {
		done := make(chan classifyResult, 1)
		go func() {
			c, classifyErr := g.inner.Classify(ctx, question, history)
			done <- classifyResult{classification: c, err: classifyErr}
		}()

		select {
		case r := <-done:
			return r.classification, r.err
		case <-ctx.Done():
			return nil, fmt.Errorf("classifier timed out: %w", ctx.Err())
		}
	})

	duration := time.Since(start)
	if err != nil {
		outcome := outcomeError
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = outcomeCircuitOpen
		case errors.Is(err, context.DeadlineExceeded):
			outcome = outcomeTimeout
		}
		g.metrics.ClassifierCall(g.name, outcome, duration)
		return domain.Classification{}, fmt.Errorf("%w: %w", domain.ErrClassificationUnavailable, err)
	}

	g.metrics.ClassifierCall(g.name, outcomeSuccess, duration)
	classification, _ := result.(domain.Classification)
	return classification, nil
}

// State reports the circuit breaker state, for health checks.
func (g *Guard) State() gobreaker.State {
	return g.cb.State()
}
