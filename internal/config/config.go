// Package config loads the ad-targeting service configuration.
package config

import (
	"fmt"
	"slices"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/config"
	infraes "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/elasticsearch"
	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	infraredis "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/analytics"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/catalog"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/classifier"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/kvstore"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/sink"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/targeting"
)

// Default configuration values.
const (
	defaultServiceName  = "ad-targeting"
	defaultServicePort  = 8097
	defaultVersion      = "0.1.0"
	defaultPublicURL    = "http://localhost:8097"
	defaultMaxClickAgeH = 24
	defaultLoggingLevel = "info"
	defaultLoggingFmt   = "json"
	defaultDBHost       = "localhost"
	defaultDBPort       = 5432
	defaultDBName       = "ad_targeting"
	defaultDBUser       = "postgres"
	defaultDBSSLMode    = "disable"
	defaultRedisAddress = "localhost:6379"
	defaultRulesPath    = "rules.yml"
	defaultCatalogPath  = "catalog.yml"
	defaultNamespace    = "ad-targeting:counters"

	defaultRequestsPerMinute = 120
	defaultBurst             = 20
)

// Counter store backends.
const (
	CounterStoreRedis  = "redis"
	CounterStoreMemory = "memory"
)

// Config holds the application configuration.
type Config struct {
	Service       ServiceConfig      `yaml:"service"`
	Targeting     TargetingConfig    `yaml:"targeting"`
	Classifier    ClassifierConfig   `yaml:"classifier"`
	Catalog       CatalogConfig      `yaml:"catalog"`
	Analytics     AnalyticsConfig    `yaml:"analytics"`
	Anonymizer    AnonymizerConfig   `yaml:"anonymizer"`
	Counters      CountersConfig     `yaml:"counters"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         infraredis.Config  `yaml:"redis"`
	Elasticsearch infraes.Config     `yaml:"elasticsearch"`
	RateLimit     RateLimitConfig    `yaml:"rate_limit"`
	Auth          AuthConfig         `yaml:"auth"`
	Logging       infralogger.Config `yaml:"logging"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"AD_TARGETING_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"         yaml:"debug"`
	// PublicURL prefixes signed click URLs.
	PublicURL   string        `env:"AD_TARGETING_PUBLIC_URL"   yaml:"public_url"`
	ClickSecret string        `env:"AD_TARGETING_CLICK_SECRET" yaml:"click_secret"`
	MaxClickAge time.Duration `yaml:"max_click_age"`
}

// TargetingConfig holds the decision gate settings.
type TargetingConfig struct {
	Threshold float64 `env:"TARGETING_THRESHOLD" yaml:"threshold"`
}

// ClassifierConfig selects and tunes the question classifier.
type ClassifierConfig struct {
	Provider         string        `env:"CLASSIFIER_PROVIDER" yaml:"provider"`
	Model            string        `yaml:"model"`
	APIKey           string        `env:"ANTHROPIC_API_KEY"   yaml:"api_key"`
	BaseURL          string        `yaml:"base_url"`
	MaxTokens        int64         `yaml:"max_tokens"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	RulesPath        string        `yaml:"rules_path"`
	Categories       []string      `yaml:"categories"`
}

// CatalogConfig selects the ad catalog backend.
type CatalogConfig struct {
	Source string `env:"CATALOG_SOURCE" yaml:"source"`
	Path   string `env:"CATALOG_PATH"   yaml:"path"`
}

// AnalyticsConfig holds batching and sink settings.
type AnalyticsConfig struct {
	analytics.Config `yaml:",inline"`

	Sinks              []string `yaml:"sinks"`
	RedisStream        string   `yaml:"redis_stream"`
	RedisStreamMaxLen  int64    `yaml:"redis_stream_max_len"`
	ElasticsearchIndex string   `yaml:"elasticsearch_index"`
}

// AnonymizerConfig holds the pseudonymization key.
type AnonymizerConfig struct {
	PseudonymSecret string `env:"ANONYMIZER_PSEUDONYM_SECRET" yaml:"pseudonym_secret"`
}

// CountersConfig holds per-ad counter storage settings.
type CountersConfig struct {
	Store     string        `env:"COUNTERS_STORE" yaml:"store"`
	Namespace string        `yaml:"namespace"`
	Attempts  int           `yaml:"attempts"`
	Delay     time.Duration `yaml:"delay"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host     string `env:"POSTGRES_AD_TARGETING_HOST"     yaml:"host"`
	Port     int    `env:"POSTGRES_AD_TARGETING_PORT"     yaml:"port"`
	User     string `env:"POSTGRES_AD_TARGETING_USER"     yaml:"user"`
	Password string `env:"POSTGRES_AD_TARGETING_PASSWORD" yaml:"password"`
	Database string `env:"POSTGRES_AD_TARGETING_DB"       yaml:"database"`
	SSLMode  string `env:"POSTGRES_AD_TARGETING_SSLMODE"  yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// URL returns the postgres:// form used by migrations.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// RateLimitConfig holds per-IP rate limiting for public endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AuthConfig holds the admin API JWT secret.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// NeedsDatabase reports whether any configured component uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Catalog.Source == catalog.SourcePostgres || c.hasSink(sink.NamePostgres)
}

// NeedsRedis reports whether any configured component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Counters.Store == CounterStoreRedis || c.hasSink(sink.NameRedisStream)
}

// NeedsElasticsearch reports whether the Elasticsearch sink is configured.
func (c *Config) NeedsElasticsearch() bool {
	return c.hasSink(sink.NameElasticsearch)
}

func (c *Config) hasSink(name string) bool {
	return slices.Contains(c.Analytics.Sinks, name)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setTargetingDefaults(&cfg.Targeting)
	setClassifierDefaults(&cfg.Classifier)
	setCatalogDefaults(&cfg.Catalog)
	setAnalyticsDefaults(&cfg.Analytics)
	setCountersDefaults(&cfg.Counters)
	setDatabaseDefaults(&cfg.Database)
	setRedisDefaults(&cfg.Redis)
	cfg.Elasticsearch.SetDefaults()
	setRateLimitDefaults(&cfg.RateLimit)
	setLoggingDefaults(&cfg.Logging)
}

// setServiceDefaults applies default values to ServiceConfig.
func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if svc.PublicURL == "" {
		svc.PublicURL = defaultPublicURL
	}
	if svc.MaxClickAge == 0 {
		svc.MaxClickAge = defaultMaxClickAgeH * time.Hour
	}
}

func setTargetingDefaults(t *TargetingConfig) {
	if t.Threshold == 0 {
		t.Threshold = targeting.DefaultThreshold
	}
}

func setClassifierDefaults(c *ClassifierConfig) {
	if c.Provider == "" {
		c.Provider = classifier.ProviderKeyword
	}
	if c.Timeout == 0 {
		c.Timeout = classifier.DefaultTimeout
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = classifier.DefaultFailureThreshold
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = classifier.DefaultOpenTimeout
	}
	if c.RulesPath == "" {
		c.RulesPath = defaultRulesPath
	}
}

func setCatalogDefaults(c *CatalogConfig) {
	if c.Source == "" {
		c.Source = catalog.SourceFile
	}
	if c.Path == "" {
		c.Path = defaultCatalogPath
	}
}

func setAnalyticsDefaults(a *AnalyticsConfig) {
	a.SetDefaults()
	if len(a.Sinks) == 0 {
		a.Sinks = []string{sink.NameLog}
	}
	if a.RedisStream == "" {
		a.RedisStream = sink.DefaultStreamName
	}
	if a.RedisStreamMaxLen == 0 {
		a.RedisStreamMaxLen = sink.DefaultStreamMaxLen
	}
	if a.ElasticsearchIndex == "" {
		a.ElasticsearchIndex = sink.DefaultIndex
	}
}

func setCountersDefaults(c *CountersConfig) {
	if c.Store == "" {
		c.Store = CounterStoreRedis
	}
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.Attempts == 0 {
		c.Attempts = kvstore.DefaultAttempts
	}
	if c.Delay == 0 {
		c.Delay = kvstore.DefaultDelay
	}
}

// setDatabaseDefaults applies default values to DatabaseConfig.
func setDatabaseDefaults(db *DatabaseConfig) {
	if db.Host == "" {
		db.Host = defaultDBHost
	}
	if db.Port == 0 {
		db.Port = defaultDBPort
	}
	if db.User == "" {
		db.User = defaultDBUser
	}
	if db.Database == "" {
		db.Database = defaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = defaultDBSSLMode
	}
}

func setRedisDefaults(r *infraredis.Config) {
	if r.Address == "" {
		r.Address = defaultRedisAddress
	}
}

// setRateLimitDefaults applies default values to RateLimitConfig.
func setRateLimitDefaults(rl *RateLimitConfig) {
	if rl.RequestsPerMinute == 0 {
		rl.RequestsPerMinute = defaultRequestsPerMinute
	}
	if rl.Burst == 0 {
		rl.Burst = defaultBurst
	}
}

// setLoggingDefaults applies default values to LoggingConfig.
func setLoggingDefaults(log *infralogger.Config) {
	if log.Level == "" {
		log.Level = defaultLoggingLevel
	}
	if log.Format == "" {
		log.Format = defaultLoggingFmt
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("service.click_secret", c.Service.ClickSecret); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("anonymizer.pseudonym_secret", c.Anonymizer.PseudonymSecret); err != nil {
		return err
	}
	if err := infraconfig.ValidatePositive("targeting.threshold", c.Targeting.Threshold); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := infraconfig.ValidateOneOf("catalog.source", c.Catalog.Source,
		catalog.SourceFile, catalog.SourcePostgres); err != nil {
		return err
	}
	for _, s := range c.Analytics.Sinks {
		if err := infraconfig.ValidateOneOf("analytics.sinks", s,
			sink.NamePostgres, sink.NameRedisStream, sink.NameElasticsearch, sink.NameLog); err != nil {
			return err
		}
	}
	if err := infraconfig.ValidateOneOf("counters.store", c.Counters.Store,
		CounterStoreRedis, CounterStoreMemory); err != nil {
		return err
	}
	return infraconfig.ValidateLogLevel(c.Logging.Level)
}

func (c *Config) validateClassifier() error {
	if err := infraconfig.ValidateOneOf("classifier.provider", c.Classifier.Provider,
		classifier.ProviderKeyword, classifier.ProviderAnthropic); err != nil {
		return err
	}
	if c.Classifier.Provider == classifier.ProviderAnthropic {
		return infraconfig.ValidateRequired("classifier.api_key", c.Classifier.APIKey)
	}
	return nil
}
