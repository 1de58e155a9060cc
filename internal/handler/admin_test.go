package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/handler"
)

type fakeFlusher struct{ flushed int }

func (f fakeFlusher) ForceFlush() int { return f.flushed }

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.calls++
	return f.err
}

type fakeCounts struct {
	counts map[string]counters.Counts
	err    error
}

func (f fakeCounts) Counts(_ context.Context, adID string) (counters.Counts, error) {
	if f.err != nil {
		return counters.Counts{}, f.err
	}
	c := f.counts[adID]
	c.AdID = adID
	return c, nil
}

func adminRouter(h *handler.AdminHandler) http.Handler {
	r := newRouter()
	r.POST("/admin/flush", h.Flush)
	r.POST("/admin/catalog/reload", h.ReloadCatalog)
	r.GET("/admin/ads/:id/counters", h.Counters)
	return r
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
	return w
}

func TestAdmin_Flush(t *testing.T) {
	t.Parallel()

	h := handler.NewAdminHandler(fakeFlusher{flushed: 7}, nil, fakeCounts{}, infralogger.NewNop())
	w := serve(adminRouter(h), http.MethodPost, "/admin/flush")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"flushed":7}`, w.Body.String())
}

func TestAdmin_ReloadCatalog(t *testing.T) {
	t.Parallel()

	t.Run("not reloadable", func(t *testing.T) {
		t.Parallel()
		h := handler.NewAdminHandler(fakeFlusher{}, nil, fakeCounts{}, infralogger.NewNop())
		w := serve(adminRouter(h), http.MethodPost, "/admin/catalog/reload")
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("reloaded", func(t *testing.T) {
		t.Parallel()
		reloader := &fakeReloader{}
		h := handler.NewAdminHandler(fakeFlusher{}, reloader, fakeCounts{}, infralogger.NewNop())
		w := serve(adminRouter(h), http.MethodPost, "/admin/catalog/reload")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, reloader.calls)
	})

	t.Run("invalid catalog", func(t *testing.T) {
		t.Parallel()
		reloader := &fakeReloader{err: errors.New(`duplicate catalog entry id "ad-1"`)}
		h := handler.NewAdminHandler(fakeFlusher{}, reloader, fakeCounts{}, infralogger.NewNop())
		w := serve(adminRouter(h), http.MethodPost, "/admin/catalog/reload")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), "duplicate")
	})
}

func TestAdmin_Counters(t *testing.T) {
	t.Parallel()

	counts := fakeCounts{counts: map[string]counters.Counts{
		"ad-bp": {Impressions: 12, Clicks: 3, Conversions: 1},
	}}
	h := handler.NewAdminHandler(fakeFlusher{}, nil, counts, infralogger.NewNop())

	w := serve(adminRouter(h), http.MethodGet, "/admin/ads/ad-bp/counters")
	require.Equal(t, http.StatusOK, w.Code)

	var got counters.Counts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "ad-bp", got.AdID)
	assert.Equal(t, int64(12), got.Impressions)
	assert.Equal(t, int64(3), got.Clicks)
	assert.Equal(t, int64(1), got.Conversions)
}

func TestAdmin_CountersUnavailable(t *testing.T) {
	t.Parallel()

	h := handler.NewAdminHandler(fakeFlusher{}, nil, fakeCounts{err: errors.New("redis down")}, infralogger.NewNop())
	w := serve(adminRouter(h), http.MethodGet, "/admin/ads/ad-bp/counters")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
