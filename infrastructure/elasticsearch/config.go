package elasticsearch

import (
	"time"

	"github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/retry"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	URL      string `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Username string `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password string `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	APIKey   string `env:"ELASTICSEARCH_API_KEY"  yaml:"api_key"`

	// MaxRetries bounds transport-level retries per request.
	MaxRetries int `yaml:"max_retries"`
	// PingTimeout bounds each connection verification ping.
	PingTimeout time.Duration `yaml:"ping_timeout"`

	// Connect controls how the startup ping is retried.
	Connect retry.Config `yaml:"-"`
}

// SetDefaults applies default values to the config if not set
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.Connect.MaxAttempts == 0 {
		c.Connect = retry.Config{
			MaxAttempts: 5,
			Delay:       2 * time.Second,
			MaxDelay:    10 * time.Second,
			Multiplier:  2.0,
		}
	}
}
