package kvstore

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/retry"
)

// Default retry policy: three attempts, a fixed 300ms apart.
const (
	DefaultAttempts = 3
	DefaultDelay    = 300 * time.Millisecond
)

// Retrying retries every operation of the wrapped store with a fixed delay
// and reports exhaustion as a *StorageError. Increments may be applied more
// than once when a reply is lost.
type Retrying struct {
	store    Store
	attempts int
	delay    time.Duration
	log      logger.Logger
}

// NewRetrying wraps store. Non-positive attempts or delay take the defaults.
func NewRetrying(store Store, attempts int, delay time.Duration, log logger.Logger) *Retrying {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Retrying{store: store, attempts: attempts, delay: delay, log: log}
}

// Get retries the wrapped Get. ErrNotFound is returned as-is.
func (r *Retrying) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := r.do(ctx, "get", key, func(ctx context.Context) error {
		var err error
		val, err = r.store.Get(ctx, key)
		return err
	})
	return val, err
}

// Set retries the wrapped Set.
func (r *Retrying) Set(ctx context.Context, key, value string) error {
	return r.do(ctx, "set", key, func(ctx context.Context) error {
		return r.store.Set(ctx, key, value)
	})
}

// Increment retries the wrapped Increment.
func (r *Retrying) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	var val int64
	err := r.do(ctx, "increment", key, func(ctx context.Context) error {
		var err error
		val, err = r.store.Increment(ctx, key, delta)
		return err
	})
	return val, err
}

func (r *Retrying) do(ctx context.Context, op, key string, fn func(context.Context) error) error {
	cfg := retry.Fixed(r.attempts, r.delay)
	cfg.IsRetryable = func(err error) bool {
		return !errors.Is(err, ErrNotFound)
	}
	cfg.OnRetry = func(attempt int, err error) {
		r.log.Debug("Storage operation failed, retrying",
			logger.String("op", op),
			logger.String("key", key),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
	}

	err := retry.Do(ctx, cfg, fn)
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	return &StorageError{Op: op, Key: key, Attempts: r.attempts, Err: err}
}
