package main

import (
	"context"
	"fmt"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	infraes "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/elasticsearch"
	infragin "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/analytics"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/catalog"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/classifier"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/config"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/database"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/handler"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/kvstore"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/sink"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/targeting"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/telemetry"
)

const esPingTimeout = 2 * time.Second

// connections holds the backing services the configuration asks for.
// Unused ones stay nil.
type connections struct {
	db    *sqlx.DB
	redis *redis.Client
	es    *es.Client
}

// connect opens only the connections the configured components need.
func connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*connections, error) {
	conns := &connections{}

	if cfg.NeedsDatabase() {
		db, err := database.NewPostgresConnection(cfg.Database.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		conns.db = db
		log.Info("Database connected",
			logger.String("host", cfg.Database.Host),
			logger.Int("port", cfg.Database.Port),
			logger.String("database", cfg.Database.Database),
		)
	}

	if cfg.NeedsRedis() {
		client, err := infraredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			conns.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		conns.redis = client
		log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	}

	if cfg.NeedsElasticsearch() {
		client, err := infraes.NewClient(ctx, cfg.Elasticsearch, log)
		if err != nil {
			conns.Close()
			return nil, fmt.Errorf("connect elasticsearch: %w", err)
		}
		conns.es = client
	}

	return conns, nil
}

// Close releases every open connection.
func (c *connections) Close() {
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

// HealthChecks reports each open connection on /health. Redis and
// Elasticsearch only degrade the service; the database fails it.
func (c *connections) HealthChecks() map[string]infragin.HealthChecker {
	checks := make(map[string]infragin.HealthChecker)
	if c.db != nil {
		checks["database"] = infragin.PingChecker("database", c.db.PingContext, infragin.HealthStatusUnhealthy)
	}
	if c.redis != nil {
		checks["redis"] = infragin.PingChecker("redis", func(ctx context.Context) error {
			return infraredis.Ping(ctx, c.redis)
		}, infragin.HealthStatusDegraded)
	}
	if c.es != nil {
		checks["elasticsearch"] = infragin.PingChecker("elasticsearch", func(ctx context.Context) error {
			return infraes.Ping(ctx, c.es, esPingTimeout)
		}, infragin.HealthStatusDegraded)
	}
	return checks
}

// buildClassifier creates the configured classifier behind a Guard.
func buildClassifier(cfg *config.Config, log logger.Logger, metrics *telemetry.Metrics) (*classifier.Guard, error) {
	cc := cfg.Classifier

	var inner classifier.Classifier
	switch cc.Provider {
	case classifier.ProviderAnthropic:
		inner = classifier.NewLLM(classifier.LLMConfig{
			APIKey:     cc.APIKey,
			Model:      cc.Model,
			MaxTokens:  cc.MaxTokens,
			BaseURL:    cc.BaseURL,
			Categories: cc.Categories,
		}, log)
	default:
		rules, err := classifier.LoadRules(cc.RulesPath)
		if err != nil {
			return nil, err
		}
		inner = classifier.NewKeyword(rules, log)
		log.Info("Keyword classifier loaded",
			logger.String("path", cc.RulesPath),
			logger.Int("rules", len(rules)),
		)
	}

	return classifier.NewGuard(inner, cc.Provider, classifier.GuardConfig{
		Timeout:          cc.Timeout,
		FailureThreshold: uint32(max(cc.FailureThreshold, 0)), //nolint:gosec // clamped above
		OpenTimeout:      cc.OpenTimeout,
	}, log, metrics), nil
}

// buildCatalog returns the catalog and, for file catalogs, the reloader
// behind the admin endpoint.
func buildCatalog(cfg *config.Config, conns *connections) (targeting.Catalog, handler.Reloader, error) {
	if cfg.Catalog.Source == catalog.SourcePostgres {
		return catalog.NewPostgres(conns.db), nil, nil
	}

	mem, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, err
	}
	return mem, mem, nil
}

// buildTransport fans batches out to every configured sink.
func buildTransport(cfg *config.Config, log logger.Logger, conns *connections) (analytics.Transport, error) {
	transports := make([]analytics.Transport, 0, len(cfg.Analytics.Sinks))
	for _, name := range cfg.Analytics.Sinks {
		switch name {
		case sink.NamePostgres:
			transports = append(transports, sink.NewPostgres(conns.db.DB))
		case sink.NameRedisStream:
			transports = append(transports, sink.NewRedisStream(
				conns.redis, cfg.Analytics.RedisStream, cfg.Analytics.RedisStreamMaxLen,
			))
		case sink.NameElasticsearch:
			transports = append(transports, sink.NewElasticsearch(conns.es, cfg.Analytics.ElasticsearchIndex))
		case sink.NameLog:
			transports = append(transports, sink.NewLog(log))
		default:
			return nil, fmt.Errorf("unknown analytics sink %q", name)
		}
	}

	if len(transports) == 1 {
		return transports[0], nil
	}
	return sink.NewMulti(transports...), nil
}

// buildCounterStore returns the counter store wrapped in the fixed-delay
// retry policy.
func buildCounterStore(cfg *config.Config, log logger.Logger, conns *connections) kvstore.Store {
	var store kvstore.Store
	if cfg.Counters.Store == config.CounterStoreMemory {
		store = kvstore.NewMemory(cfg.Counters.Namespace)
	} else {
		store = kvstore.NewRedis(conns.redis, cfg.Counters.Namespace)
	}
	return kvstore.NewRetrying(store, cfg.Counters.Attempts, cfg.Counters.Delay, log)
}
