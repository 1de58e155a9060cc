package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/clickurl"
	infraconfig "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/config"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/analytics"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/anonymizer"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/api"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/config"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/counters"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/handler"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/pipeline"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/targeting"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

const (
	serviceName = "ad-targeting"
	// Flushing analytics and counter writes on shutdown is bounded by this.
	drainTimeout = 15 * time.Second
	clickPath    = "/api/v1/click"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// Initialize logger
	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	// Start profiling (if enabled)
	profiling.StartPprofServer(log)
	profiler, err := profiling.StartPyroscope(serviceName, cfg.Service.Version, log)
	if err != nil {
		log.Warn("Continuous profiling unavailable", logger.Error(err))
	}
	defer func() { _ = profiler.Stop() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to backing services
	conns, err := connect(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to connect to dependencies", logger.Error(err))
		return 1
	}
	defer conns.Close()

	return runServer(ctx, cfg, log, conns)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	configPath := infraconfig.GetConfigPath("config.yml")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", serviceName)), nil
}

// runServer creates all dependencies, starts the HTTP server and drains the
// analytics pipeline on shutdown.
func runServer(ctx context.Context, cfg *config.Config, log logger.Logger, conns *connections) int {
	provider := telemetry.NewProvider()

	// Targeting
	cls, err := buildClassifier(cfg, log, provider.Metrics)
	if err != nil {
		log.Error("Failed to build classifier", logger.Error(err))
		return 1
	}

	cat, reloader, err := buildCatalog(cfg, conns)
	if err != nil {
		log.Error("Failed to load catalog", logger.Error(err))
		return 1
	}

	gate, err := targeting.NewGate(cat, cfg.Targeting.Threshold)
	if err != nil {
		log.Error("Failed to create decision gate", logger.Error(err))
		return 1
	}

	// Analytics
	anon, err := anonymizer.New(cfg.Anonymizer.PseudonymSecret)
	if err != nil {
		log.Error("Failed to create anonymizer", logger.Error(err))
		return 1
	}

	transport, err := buildTransport(cfg, log, conns)
	if err != nil {
		log.Error("Failed to build analytics sinks", logger.Error(err))
		return 1
	}

	batcher := analytics.NewBatcher(cfg.Analytics.Config, anon, transport, log,
		analytics.WithMetrics(provider.Metrics),
	)
	go batcher.Run(ctx)

	// Counters
	updater := counters.NewUpdater(buildCounterStore(cfg, log, conns), log, provider.Metrics, cfg.Counters.Timeout)

	service := pipeline.NewService(pipeline.Deps{
		Classifier:    cls,
		Gate:          gate,
		Emitter:       analytics.NewEmitter(batcher),
		Counters:      updater,
		Signer:        clickurl.NewSigner(cfg.Service.ClickSecret),
		ClickEndpoint: cfg.Service.PublicURL + clickPath,
		Tracer:        provider.Tracer,
		Metrics:       provider.Metrics,
		Logger:        log,
	})

	handlers := api.Handlers{
		Target: handler.NewTargetHandler(service),
		Events: handler.NewEventHandler(service),
		Click: handler.NewClickHandler(
			clickurl.NewSigner(cfg.Service.ClickSecret),
			service,
			provider.Metrics,
			log,
			cfg.Service.MaxClickAge,
		),
		Admin: handler.NewAdminHandler(batcher, reloader, updater, log),
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("AUTH_JWT_SECRET not set, admin routes disabled")
	}

	// done channel signals background goroutines (rate limiter) on shutdown
	done := make(chan struct{})
	defer close(done)

	server := api.NewServer(cfg, handlers, api.RouteOptions{
		HealthChecks: conns.HealthChecks(),
		Metrics:      provider.Handler(),
		Done:         done,
	}, log)

	log.Info("Ad-targeting starting",
		logger.Int("port", cfg.Service.Port),
		logger.String("classifier", cfg.Classifier.Provider),
		logger.String("catalog", cfg.Catalog.Source),
		logger.Strings("sinks", cfg.Analytics.Sinks),
		logger.Float64("threshold", cfg.Targeting.Threshold),
	)

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case serveErr := <-server.StartAsync():
		if serveErr != nil {
			log.Error("Server error", logger.Error(serveErr))
			exitCode = 1
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err = server.Shutdown(drainCtx); err != nil {
		log.Error("Server shutdown failed", logger.Error(err))
		exitCode = 1
	}

	// Requests are done; anything they scheduled can now be drained.
	updater.Wait()
	if err = batcher.Close(drainCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Analytics did not drain", logger.Error(err))
		exitCode = 1
	}

	if exitCode == 0 {
		log.Info("Ad-targeting exited cleanly")
	}
	return exitCode
}
