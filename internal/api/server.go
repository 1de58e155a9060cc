package api

import (
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/gin"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/config"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, h Handlers, opts RouteOptions, log infralogger.Logger) *infragin.Server {
	serverCfg := infragin.NewConfig(cfg.Service.Name, cfg.Service.Port)
	serverCfg.Debug = cfg.Service.Debug
	serverCfg.ServiceVersion = cfg.Service.Version
	serverCfg.ReadTimeout = defaultReadTimeout
	serverCfg.WriteTimeout = defaultWriteTimeout
	serverCfg.IdleTimeout = defaultIdleTimeout

	opts.ServiceName = cfg.Service.Name
	opts.Version = cfg.Service.Version
	opts.RequestsPerMinute = cfg.RateLimit.RequestsPerMinute
	opts.Burst = cfg.RateLimit.Burst
	opts.JWTSecret = cfg.Auth.JWTSecret

	return infragin.NewServer(serverCfg, log, func(router *gin.Engine) {
		SetupRoutes(router, h, opts)
	})
}
