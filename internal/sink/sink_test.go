package sink_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/sink"
)

func testBatch(n int) domain.Batch {
	events := make([]domain.AnalyticsEvent, 0, n)
	for i := range n {
		events = append(events, domain.AnalyticsEvent{
			ID:            "evt-" + string(rune('a'+i)),
			EventType:     domain.EventImpression,
			EventCategory: domain.CategoryImpression,
			Context:       domain.EventContext{Page: "/ask", Timestamp: 1_767_225_600_000},
			Metadata:      map[string]any{"adId": "ad-bp", "userId": "anon_0123"},
		})
	}
	return domain.Batch{ID: "batch-1", Timestamp: time.Now(), EventCount: n, Events: events}
}

func TestPostgres_Send(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	batch := testBatch(2)
	occurred := time.UnixMilli(1_767_225_600_000).UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO analytics_events (.+) VALUES \(\$1, .+\), \(\$8, .+\) ON CONFLICT \(id\) DO NOTHING`).
		WithArgs(
			"evt-a", "batch-1", "impression", "Impression", "/ask", occurred, sqlmock.AnyArg(),
			"evt-b", "batch-1", "impression", "Impression", "/ask", occurred, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, sink.NewPostgres(db).Send(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ChunksLargeBatches(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analytics_events").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO analytics_events").WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectCommit()

	require.NoError(t, sink.NewPostgres(db).Send(context.Background(), testBatch(60)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FailureRollsBack(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO analytics_events").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = sink.NewPostgres(db).Send(context.Background(), testBatch(1))
	require.ErrorIs(t, err, assert.AnError)

	var transportErr *sink.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, sink.NamePostgres, transportErr.Transport)
	assert.Equal(t, "batch-1", transportErr.BatchID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStream_Send(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := sink.NewRedisStream(client, "test:analytics", 0)
	require.NoError(t, s.Send(context.Background(), testBatch(3)))

	entries, err := client.XRange(context.Background(), "test:analytics", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "evt-a", entries[0].Values["event_id"])
	assert.Equal(t, "batch-1", entries[0].Values["batch_id"])

	var event domain.AnalyticsEvent
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["event"].(string)), &event))
	assert.Equal(t, "anon_0123", event.Metadata["userId"])
}

func TestRedisStream_Unavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := sink.NewRedisStream(client, "", 0).Send(context.Background(), testBatch(1))

	var transportErr *sink.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, sink.NameRedisStream, transportErr.Transport)
}

// fakeBulkCluster records bulk bodies and answers with the given item statuses.
func fakeBulkCluster(t *testing.T, statuses []int, bodies *[][]byte) *es.Client {
	t.Helper()

	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")

		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		*bodies = append(*bodies, body)
		mu.Unlock()

		items := make([]map[string]any, 0, len(statuses))
		hasErrors := false
		for _, status := range statuses {
			if status >= http.StatusMultipleChoices {
				hasErrors = true
			}
			items = append(items, map[string]any{"create": map[string]any{"status": status}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"took": 1, "errors": hasErrors, "items": items})
	}))
	t.Cleanup(srv.Close)

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}, DisableRetry: true})
	require.NoError(t, err)
	return client
}

func TestElasticsearch_Send(t *testing.T) {
	t.Parallel()

	var bodies [][]byte
	client := fakeBulkCluster(t, []int{http.StatusCreated, http.StatusConflict}, &bodies)

	require.NoError(t, sink.NewElasticsearch(client, "events").Send(context.Background(), testBatch(2)))
	require.Len(t, bodies, 1)

	var lines []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(bodies[0]))
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 4)

	action := lines[0]["create"].(map[string]any)
	assert.Equal(t, "events", action["_index"])
	assert.Equal(t, "evt-a", action["_id"])
	assert.Equal(t, "batch-1", lines[1]["batch_id"])
	assert.Equal(t, "2026-01-01T00:00:00.000Z", lines[1]["occurred_at"])
}

func TestElasticsearch_FailedItems(t *testing.T) {
	t.Parallel()

	var bodies [][]byte
	client := fakeBulkCluster(t, []int{http.StatusCreated, http.StatusTooManyRequests}, &bodies)

	err := sink.NewElasticsearch(client, "").Send(context.Background(), testBatch(2))

	var transportErr *sink.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, sink.NameElasticsearch, transportErr.Transport)
	assert.Contains(t, err.Error(), "1 of 2")
}

type stubTransport struct {
	name string
	err  error
	mu   sync.Mutex
	got  []string
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Send(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, batch.ID)
	return s.err
}

func TestMulti_Send(t *testing.T) {
	t.Parallel()

	ok := &stubTransport{name: "a"}
	failing := &stubTransport{name: "b", err: errors.New("b down")}
	m := sink.NewMulti(ok, failing, sink.NewLog(logger.NewNop()))

	assert.Equal(t, "multi(a,b,log)", m.Name())

	err := m.Send(context.Background(), testBatch(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b down")
	assert.Equal(t, []string{"batch-1"}, ok.got, "healthy transports still receive the batch")
	assert.Equal(t, []string{"batch-1"}, failing.got)

	require.NoError(t, sink.NewMulti(ok).Send(context.Background(), testBatch(1)))
}
