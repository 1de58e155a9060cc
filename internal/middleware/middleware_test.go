package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/middleware"
)

func botRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.BotFilter())
	r.GET("/click", func(c *gin.Context) {
		if middleware.IsBot(c) {
			c.String(http.StatusOK, "bot")
			return
		}
		c.String(http.StatusOK, "human")
	})
	return r
}

func TestBotFilter(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want string
	}{
		{name: "normal browser", ua: "Mozilla/5.0 (Windows NT 10.0; Win64; x64)", want: "human"},
		{name: "googlebot", ua: "Googlebot/2.1 (+http://www.google.com/bot.html)", want: "bot"},
		{name: "curl", ua: "curl/8.5.0", want: "bot"},
		{name: "missing user agent", ua: "", want: "bot"},
	}

	r := botRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/click", http.NoBody)
			if tt.ua != "" {
				req.Header.Set("User-Agent", tt.ua)
			}
			r.ServeHTTP(w, req)

			if w.Body.String() != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, w.Body.String())
			}
		})
	}
}

func rateRouter(t *testing.T, perMinute, burst int) *gin.Engine {
	t.Helper()

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RateLimiter(perMinute, burst, done))
	r.GET("/target", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/target", http.NoBody)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_AllowsBurstThenLimits(t *testing.T) {
	r := rateRouter(t, 1, 3)

	for i := range 3 {
		if code := doRequest(r, "10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, code)
		}
	}
	if code := doRequest(r, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
}

func TestRateLimiter_PerIP(t *testing.T) {
	r := rateRouter(t, 1, 1)

	if code := doRequest(r, "10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := doRequest(r, "10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Fatalf("expected same IP on another port to be limited, got %d", code)
	}
	if code := doRequest(r, "10.0.0.2:1234"); code != http.StatusOK {
		t.Fatalf("expected other IP to pass, got %d", code)
	}
}
