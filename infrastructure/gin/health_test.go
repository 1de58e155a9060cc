package gin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	ginpkg "github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/gin"
)

func TestRegisterHealthRoutes(t *testing.T) {
	t.Parallel()
	ginpkg.SetMode(ginpkg.TestMode)

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]infragin.HealthChecker
		wantCode   int
		wantStatus infragin.HealthStatus
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: infragin.HealthStatusHealthy,
		},
		{
			name: "optional dependency down degrades",
			checks: map[string]infragin.HealthChecker{
				"database": infragin.PingChecker("database", ok, infragin.HealthStatusUnhealthy),
				"redis":    infragin.PingChecker("redis", down, infragin.HealthStatusDegraded),
			},
			wantCode:   http.StatusOK,
			wantStatus: infragin.HealthStatusDegraded,
		},
		{
			name: "required dependency down fails",
			checks: map[string]infragin.HealthChecker{
				"database": infragin.PingChecker("database", down, infragin.HealthStatusUnhealthy),
				"redis":    infragin.PingChecker("redis", down, infragin.HealthStatusDegraded),
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: infragin.HealthStatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			router := ginpkg.New()
			infragin.RegisterHealthRoutes(router, "ad-targeting", "test", tt.checks)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if w.Code != tt.wantCode {
				t.Fatalf("status code = %d, want %d", w.Code, tt.wantCode)
			}

			var resp infragin.HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Service != "ad-targeting" {
				t.Errorf("service = %q, want ad-targeting", resp.Service)
			}
		})
	}
}
