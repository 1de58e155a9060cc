package counters_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/kvstore"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

var errDown = errors.New("store down")

// downStore fails every operation.
type downStore struct{}

func (downStore) Get(context.Context, string) (string, error) { return "", errDown }
func (downStore) Set(context.Context, string, string) error { return errDown }
func (downStore) Increment(context.Context, string, int64) (int64, error) {
	return 0, errDown
}

func TestUpdater_IncrementAndRead(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory("adt")
	u := counters.NewUpdater(store, logger.NewNop(), nil, time.Second)
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u.SetClock(func() time.Time { return stamp })

	ctx := context.Background()
	require.NoError(t, u.IncrementCounters(ctx, "A1", counters.Delta{Impressions: 1}))
	require.NoError(t, u.IncrementCounters(ctx, "A1", counters.Delta{Impressions: 2, Clicks: 1}))

	got, err := u.Counts(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Impressions)
	assert.Equal(t, int64(1), got.Clicks)
	assert.Equal(t, int64(0), got.Conversions)
	require.NotNil(t, got.LastEventAt)
	assert.True(t, stamp.Equal(*got.LastEventAt))
}

func TestUpdater_UnknownAdReadsZero(t *testing.T) {
	t.Parallel()

	u := counters.NewUpdater(kvstore.NewMemory(""), logger.NewNop(), nil, time.Second)

	got, err := u.Counts(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, counters.Counts{AdID: "nope"}, got)
}

func TestUpdater_RejectsEmptyAdID(t *testing.T) {
	t.Parallel()

	u := counters.NewUpdater(kvstore.NewMemory(""), logger.NewNop(), nil, time.Second)

	err := u.IncrementCounters(context.Background(), "", counters.Delta{Clicks: 1})
	require.ErrorIs(t, err, counters.ErrEmptyAdID)
}

func TestUpdater_StorageErrorSurfacesAfterRetries(t *testing.T) {
	t.Parallel()

	store := kvstore.NewRetrying(downStore{}, 3, time.Millisecond, logger.NewNop())
	provider := telemetry.NewProvider()
	u := counters.NewUpdater(store, logger.NewNop(), provider.Metrics, time.Second)

	err := u.IncrementCounters(context.Background(), "A1", counters.Delta{Clicks: 1})
	require.ErrorIs(t, err, kvstore.ErrStorageUnavailable)

	var storageErr *kvstore.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "increment", storageErr.Op)
	assert.InDelta(t, 1, testutil.ToFloat64(provider.Metrics.CounterUpdates.WithLabelValues("failure")), 0)
}

func TestUpdater_IncrementAsyncIsFireAndForget(t *testing.T) {
	t.Parallel()

	store := kvstore.NewMemory("")
	u := counters.NewUpdater(store, logger.NewNop(), nil, time.Second)

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			u.IncrementAsync("A1", counters.Delta{Impressions: 1})
		})
	}
	wg.Wait()
	u.Wait()

	got, err := u.Counts(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), got.Impressions)
}

func TestUpdater_IncrementAsyncSwallowsFailures(t *testing.T) {
	t.Parallel()

	u := counters.NewUpdater(downStore{}, logger.NewNop(), nil, time.Second)

	assert.NotPanics(t, func() {
		u.IncrementAsync("A1", counters.Delta{Clicks: 1})
		u.Wait()
	})
}
