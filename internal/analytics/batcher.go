package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

// Flush reasons reported to logs and metrics.
const (
	ReasonSize  = "size"
	ReasonAge   = "age"
	ReasonForce = "force"
)

// sendAttempts is the initial send plus one retry before a batch is requeued.
const sendAttempts = 2

// Transport delivers a batch to an event sink.
type Transport interface {
	Name() string
	Send(ctx context.Context, batch domain.Batch) error
}

// Sanitizer anonymizes an event and reports any path it had to drop.
type Sanitizer interface {
	Enforce(event domain.AnalyticsEvent) (domain.AnalyticsEvent, []string)
}

// Batcher accumulates anonymized events and flushes them when the batch
// is full or too old. Transport runs outside the lock; failed batches are
// retried once and then kept in a bounded pending list.
type Batcher struct {
	cfg       Config
	sanitizer Sanitizer
	transport Transport
	log       logger.Logger
	metrics   *telemetry.Metrics
	now       func() time.Time

	mu        sync.Mutex
	current   []domain.AnalyticsEvent
	startedAt time.Time
	pending   []domain.Batch
	closed    bool

	inflight sync.WaitGroup
}

// Option configures a Batcher.
type Option func(*Batcher)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) { b.now = now }
}

// WithMetrics records flushes and deliveries.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(b *Batcher) { b.metrics = m }
}

// NewBatcher creates a Batcher. Zero config values take their defaults.
func NewBatcher(cfg Config, sanitizer Sanitizer, transport Transport, log logger.Logger, opts ...Option) *Batcher {
	cfg.SetDefaults()

	b := &Batcher{
		cfg:       cfg,
		sanitizer: sanitizer,
		transport: transport,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add anonymizes event and appends it to the current batch. A batch that is
// already older than MaxBatchAge is flushed before the event joins a new
// one; a batch that reaches MaxBatchSize is flushed by this call.
func (b *Batcher) Add(event domain.AnalyticsEvent) {
	clean, dropped := b.sanitizer.Enforce(event)
	if len(dropped) > 0 {
		b.log.Error("Anonymization left sensitive fields, dropping them",
			logger.String("event_id", event.ID),
			logger.Strings("paths", dropped),
		)
		b.metrics.AnonymizationViolation(len(dropped))
	}

	var flushed []domain.Batch

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Warn("Event added after batcher closed, discarding", logger.String("event_id", event.ID))
		b.metrics.EventsDiscarded(1)
		return
	}

	now := b.now()
	if len(b.current) > 0 && now.Sub(b.startedAt) >= b.cfg.MaxBatchAge {
		flushed = append(flushed, b.snapshotLocked(now, ReasonAge))
	}
	if len(b.current) == 0 {
		b.startedAt = now
	}
	b.current = append(b.current, clean)
	if len(b.current) >= b.cfg.MaxBatchSize {
		flushed = append(flushed, b.snapshotLocked(now, ReasonSize))
	}
	b.mu.Unlock()

	b.metrics.EventAccepted(string(clean.EventType))
	for _, batch := range flushed {
		b.dispatch(batch)
	}
}

// ForceFlush flushes the current batch if it has events and returns how
// many events it contained.
func (b *Batcher) ForceFlush() int {
	b.mu.Lock()
	if len(b.current) == 0 {
		b.mu.Unlock()
		return 0
	}
	batch := b.snapshotLocked(b.now(), ReasonForce)
	b.mu.Unlock()

	b.dispatch(batch)
	return batch.EventCount
}

// shouldFlushLocked reports whether the current batch is due by size or age.
func (b *Batcher) shouldFlushLocked(now time.Time) (string, bool) {
	if len(b.current) == 0 {
		return "", false
	}
	if len(b.current) >= b.cfg.MaxBatchSize {
		return ReasonSize, true
	}
	if now.Sub(b.startedAt) >= b.cfg.MaxBatchAge {
		return ReasonAge, true
	}
	return "", false
}

// snapshotLocked turns the current events into a Batch and starts a new one.
func (b *Batcher) snapshotLocked(now time.Time, reason string) domain.Batch {
	batch := domain.Batch{
		ID:         uuid.NewString(),
		Timestamp:  now,
		EventCount: len(b.current),
		Events:     b.current,
	}
	b.current = make([]domain.AnalyticsEvent, 0, b.cfg.MaxBatchSize)
	b.startedAt = now

	b.log.Debug("Flushing analytics batch",
		logger.String("batch_id", batch.ID),
		logger.Int("event_count", batch.EventCount),
		logger.String("reason", reason),
	)
	b.metrics.BatchFlushed(reason, batch.EventCount)
	return batch
}

// Pending returns the number of batches waiting for a retry.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Buffered returns the number of events in the current batch.
func (b *Batcher) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.current)
}

// Run flushes aged batches and retries pending ones every TickInterval
// until ctx is done.
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Tick()
		}
	}
}

// Tick flushes the current batch if it is due and redispatches pending
// batches.
func (b *Batcher) Tick() {
	b.mu.Lock()
	var flushed []domain.Batch
	if reason, ok := b.shouldFlushLocked(b.now()); ok {
		flushed = append(flushed, b.snapshotLocked(b.now(), reason))
	}
	flushed = append(flushed, b.pending...)
	b.pending = nil
	b.mu.Unlock()

	b.metrics.PendingBatches(0)
	for _, batch := range flushed {
		b.dispatch(batch)
	}
}

// Wait blocks until every dispatched batch has been delivered or requeued.
func (b *Batcher) Wait() {
	b.inflight.Wait()
}

// Close flushes what is left, waits for in-flight deliveries and makes a
// last attempt at pending batches. It returns an error if batches could not
// be delivered before ctx ended.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	var final []domain.Batch
	if len(b.current) > 0 {
		final = append(final, b.snapshotLocked(b.now(), ReasonForce))
	}
	b.mu.Unlock()

	for _, batch := range final {
		b.dispatch(batch)
	}

	if err := b.waitContext(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	var lost int
	for _, batch := range pending {
		if err := b.send(ctx, batch); err != nil {
			lost += batch.EventCount
			b.log.Error("Dropping undelivered analytics batch at shutdown",
				logger.String("batch_id", batch.ID),
				logger.Int("event_count", batch.EventCount),
				logger.Error(err),
			)
			b.metrics.BatchDropped(batch.EventCount)
		}
	}
	if lost > 0 {
		return fmt.Errorf("%d analytics events undelivered at shutdown", lost)
	}
	return nil
}

func (b *Batcher) waitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight batches: %w", ctx.Err())
	}
}

// dispatch delivers batch in the background and requeues it on failure.
func (b *Batcher) dispatch(batch domain.Batch) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()

		if err := b.send(context.Background(), batch); err != nil {
			b.log.Warn("Analytics batch delivery failed, requeueing",
				logger.String("batch_id", batch.ID),
				logger.String("transport", b.transport.Name()),
				logger.Error(err),
			)
			b.requeue(batch)
		}
	}()
}

// send tries the transport twice with a fixed delay between attempts.
func (b *Batcher) send(ctx context.Context, batch domain.Batch) error {
	start := b.now()
	err := retry.Do(ctx, retry.Fixed(sendAttempts, b.cfg.RetryDelay), func(ctx context.Context) error {
		sendCtx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
		defer cancel()
		return b.transport.Send(sendCtx, batch)
	})
	b.metrics.BatchSent(b.transport.Name(), err == nil, b.now().Sub(start))
	return err
}

// requeue keeps batch for a later attempt, evicting the oldest pending
// batch when the list is full.
func (b *Batcher) requeue(batch domain.Batch) {
	b.mu.Lock()
	b.pending = append(b.pending, batch)
	var evicted []domain.Batch
	if over := len(b.pending) - b.cfg.MaxPendingBatches; over > 0 {
		evicted = append(evicted, b.pending[:over]...)
		b.pending = append([]domain.Batch(nil), b.pending[over:]...)
	}
	pending := len(b.pending)
	b.mu.Unlock()

	b.metrics.PendingBatches(pending)
	for _, lost := range evicted {
		b.log.Error("Pending analytics queue full, dropping oldest batch",
			logger.String("batch_id", lost.ID),
			logger.Int("event_count", lost.EventCount),
		)
		b.metrics.BatchDropped(lost.EventCount)
	}
}
