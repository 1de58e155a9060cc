// Package api assembles the HTTP surface of the ad-targeting service.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/jwt"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/handler"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Target *handler.TargetHandler
	Events *handler.EventHandler
	Click  *handler.ClickHandler
	Admin  *handler.AdminHandler
}

// RouteOptions holds the non-handler inputs of SetupRoutes.
type RouteOptions struct {
	ServiceName string
	Version     string
	// HealthChecks are reported by /health, keyed by dependency.
	HealthChecks map[string]infragin.HealthChecker
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// RequestsPerMinute and Burst configure the per-IP limiter on public routes.
	RequestsPerMinute int
	Burst             int
	// JWTSecret protects the admin routes. Admin routes are not registered
	// without it.
	JWTSecret string
	// Done stops the rate limiter's cleanup goroutine.
	Done <-chan struct{}
}

// SetupRoutes configures all API routes.
func SetupRoutes(router *gin.Engine, h Handlers, opts RouteOptions) {
	infragin.RegisterHealthRoutes(router, opts.ServiceName, opts.Version, opts.HealthChecks)

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	v1 := router.Group("/api/v1")

	public := v1.Group("")
	public.Use(middleware.BotFilter())
	public.Use(middleware.RateLimiter(opts.RequestsPerMinute, opts.Burst, opts.Done))
	public.POST("/target", h.Target.Target)
	public.POST("/events", h.Events.Track)
	public.GET("/click", h.Click.HandleClick)

	if opts.JWTSecret == "" || h.Admin == nil {
		return
	}

	admin := v1.Group("/admin")
	admin.Use(jwt.Middleware(opts.JWTSecret))
	admin.POST("/flush", h.Admin.Flush)
	admin.POST("/catalog/reload", h.Admin.ReloadCatalog)
	admin.GET("/ads/:id/counters", h.Admin.Counters)
}
