package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	infragin "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/jwt"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/api"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/handler"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/pipeline"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

const jwtSecret = "admin-secret"

type stubService struct{}

func (stubService) Target(context.Context, pipeline.TargetRequest) (pipeline.TargetResult, error) {
	return pipeline.TargetResult{Decision: domain.Decision{ID: "dec-1", Mode: domain.ModeNone}}, nil
}

func (stubService) Track(_ context.Context, req pipeline.EngagementRequest) (domain.AnalyticsEvent, error) {
	return domain.AnalyticsEvent{ID: "evt-1", EventType: req.EventType}, nil
}

func (stubService) RecordClick(context.Context, clickurl.ClickParams) domain.AnalyticsEvent {
	return domain.AnalyticsEvent{ID: "evt-2"}
}

type stubFlusher struct{}

func (stubFlusher) ForceFlush() int { return 3 }

type stubCounts struct{}

func (stubCounts) Counts(_ context.Context, adID string) (counters.Counts, error) {
	return counters.Counts{AdID: adID}, nil
}

func newRouter(t *testing.T, secret string) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	log := infralogger.NewNop()
	svc := stubService{}
	provider := telemetry.NewProvider()

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	h := api.Handlers{
		Target: handler.NewTargetHandler(svc),
		Events: handler.NewEventHandler(svc),
		Click:  handler.NewClickHandler(clickurl.NewSigner("click-secret"), svc, provider.Metrics, log, time.Hour),
		Admin:  handler.NewAdminHandler(stubFlusher{}, nil, stubCounts{}, log),
	}

	router := gin.New()
	api.SetupRoutes(router, h, api.RouteOptions{
		ServiceName: "ad-targeting",
		Version:     "test",
		HealthChecks: map[string]infragin.HealthChecker{
			"redis": infragin.PingChecker("redis", func(context.Context) error { return nil }, infragin.HealthStatusDegraded),
		},
		Metrics:           provider.Handler(),
		RequestsPerMinute: 600,
		Burst:             50,
		JWTSecret:         secret,
		Done:              done,
	})
	return router
}

func do(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_PublicEndpoints(t *testing.T) {
	t.Parallel()

	r := newRouter(t, jwtSecret)

	w := do(r, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis"`)

	w = do(r, http.MethodPost, "/api/v1/target", `{"question":"what helps with migraines?"}`, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"none"`)

	w = do(r, http.MethodPost, "/api/v1/events", `{"event_type":"dismiss"}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(r, http.MethodGet, "/api/v1/click", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "click_redirects_total")
}

func TestSetupRoutes_AdminRequiresToken(t *testing.T) {
	t.Parallel()

	r := newRouter(t, jwtSecret)

	w := do(r, http.MethodPost, "/api/v1/admin/flush", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad, err := jwt.IssueToken("wrong-secret", "ops")
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/admin/flush", "", bad)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := jwt.IssueToken(jwtSecret, "ops")
	require.NoError(t, err)

	w = do(r, http.MethodPost, "/api/v1/admin/flush", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"flushed":3}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/admin/ads/ad-bp/counters", "", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ad_id":"ad-bp"`)

	w = do(r, http.MethodPost, "/api/v1/admin/catalog/reload", "", token)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSetupRoutes_NoAdminWithoutSecret(t *testing.T) {
	t.Parallel()

	r := newRouter(t, "")

	w := do(r, http.MethodPost, "/api/v1/admin/flush", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
