package analytics

import "time"

// Default batching values.
const (
	DefaultMaxBatchSize      = 50
	DefaultMaxBatchAge       = 30 * time.Second
	DefaultSendTimeout       = 10 * time.Second
	DefaultRetryDelay        = time.Second
	DefaultMaxPendingBatches = 100
	DefaultTickInterval      = time.Second
)

// Config controls batching and delivery.
type Config struct {
	MaxBatchSize int           `env:"ANALYTICS_MAX_BATCH_SIZE" yaml:"max_batch_size"`
	MaxBatchAge  time.Duration `env:"ANALYTICS_MAX_BATCH_AGE"  yaml:"max_batch_age"`
	// SendTimeout bounds one transport attempt.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// RetryDelay separates the first attempt from its retry.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// MaxPendingBatches bounds batches kept for a later retry.
	MaxPendingBatches int `yaml:"max_pending_batches"`
	// TickInterval is how often Run checks batch age and pending batches.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.MaxBatchAge <= 0 {
		c.MaxBatchAge = DefaultMaxBatchAge
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxPendingBatches <= 0 {
		c.MaxPendingBatches = DefaultMaxPendingBatches
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
}
