// Package counters maintains durable per-ad impression, click and conversion
// counters.
package counters

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/kvstore"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

// DefaultTimeout bounds one asynchronous update, retries included.
const DefaultTimeout = 5 * time.Second

// ErrEmptyAdID is returned when an update names no ad.
var ErrEmptyAdID = errors.New("ad id is required")

// Delta is an increment applied to an ad's counters. Zero fields are skipped.
type Delta struct {
	Impressions int64
	Clicks      int64
	Conversions int64
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Impressions == 0 && d.Clicks == 0 && d.Conversions == 0
}

// Counts is a snapshot of an ad's counters.
type Counts struct {
	AdID        string     `json:"ad_id"`
	Impressions int64      `json:"impressions"`
	Clicks      int64      `json:"clicks"`
	Conversions int64      `json:"conversions"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// Updater applies counter deltas to a key/value store.
type Updater struct {
	store   kvstore.Store
	log     infralogger.Logger
	metrics *telemetry.Metrics
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

// NewUpdater creates an Updater. The store is expected to carry its own
// retry policy (see kvstore.Retrying).
func NewUpdater(store kvstore.Store, log infralogger.Logger, metrics *telemetry.Metrics, timeout time.Duration) *Updater {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Updater{
		store:   store,
		log:     log,
		metrics: metrics,
		timeout: timeout,
		now:     time.Now,
	}
}

// IncrementCounters applies delta to adID's counters and stamps the last
// event time. Every field is attempted; failures are joined.
func (u *Updater) IncrementCounters(ctx context.Context, adID string, delta Delta) error {
	if adID == "" {
		return ErrEmptyAdID
	}
	if delta.IsZero() {
		return nil
	}

	var errs []error
	for _, f := range []struct {
		field string
		n     int64
	}{
		{FieldImpressions, delta.Impressions},
		{FieldClicks, delta.Clicks},
		{FieldConversions, delta.Conversions},
	} {
		if f.n == 0 {
			continue
		}
		if _, err := u.store.Increment(ctx, counterKey(adID, f.field), f.n); err != nil {
			errs = append(errs, fmt.Errorf("increment %s: %w", f.field, err))
		}
	}

	stamp := strconv.FormatInt(u.now().UnixMilli(), 10)
	if err := u.store.Set(ctx, counterKey(adID, FieldLastEvent), stamp); err != nil {
		errs = append(errs, fmt.Errorf("set %s: %w", FieldLastEvent, err))
	}

	err := errors.Join(errs...)
	u.metrics.CounterUpdate(err == nil)
	return err
}

// IncrementAsync applies delta in the background. Failures are logged and
// never reach the caller.
func (u *Updater) IncrementAsync(adID string, delta Delta) {
	if adID == "" || delta.IsZero() {
		return
	}

	u.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()

		if err := u.IncrementCounters(ctx, adID, delta); err != nil {
			u.log.Warn("Failed to update ad counters",
				infralogger.String("ad_id", adID),
				infralogger.Int64("impressions", delta.Impressions),
				infralogger.Int64("clicks", delta.Clicks),
				infralogger.Int64("conversions", delta.Conversions),
				infralogger.Error(err),
			)
		}
	})
}

// Wait blocks until every asynchronous update has finished.
func (u *Updater) Wait() {
	u.wg.Wait()
}

// Counts reads adID's counters. Missing counters read as zero.
func (u *Updater) Counts(ctx context.Context, adID string) (Counts, error) {
	if adID == "" {
		return Counts{}, ErrEmptyAdID
	}

	counts := Counts{AdID: adID}
	for field, dst := range map[string]*int64{
		FieldImpressions: &counts.Impressions,
		FieldClicks:      &counts.Clicks,
		FieldConversions: &counts.Conversions,
	} {
		n, err := u.readInt(ctx, counterKey(adID, field))
		if err != nil {
			return Counts{}, fmt.Errorf("read %s: %w", field, err)
		}
		*dst = n
	}

	ms, err := u.readInt(ctx, counterKey(adID, FieldLastEvent))
	if err != nil {
		return Counts{}, fmt.Errorf("read %s: %w", FieldLastEvent, err)
	}
	if ms > 0 {
		t := time.UnixMilli(ms).UTC()
		counts.LastEventAt = &t
	}

	return counts, nil
}

func (u *Updater) readInt(ctx context.Context, key string) (int64, error) {
	raw, err := u.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return n, nil
}
