package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrajwt "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/jwt"
)

const testSecret = "admin-secret"

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/admin", infrajwt.Middleware(testSecret), func(c *gin.Context) {
		claims, ok := infrajwt.GetClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.Sub)
	})
	return router
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	valid, err := infrajwt.IssueToken(testSecret, "operator")
	require.NoError(t, err)
	foreign, err := infrajwt.IssueToken("other-secret", "operator")
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
	}{
		{name: "missing header", header: "", wantCode: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + valid, wantCode: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + foreign, wantCode: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + valid, wantCode: http.StatusOK},
	}

	router := newRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/admin", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "operator", w.Body.String())
			}
		})
	}
}
