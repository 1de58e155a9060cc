package sink

import (
	"context"

	infralogger "github.com/jonesrussell/north-cloud/ad-targeting/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Log writes a summary of each batch to the service log. It never fails.
type Log struct {
	log infralogger.Logger
}

// NewLog creates a log sink.
func NewLog(log infralogger.Logger) *Log {
	return &Log{log: log}
}

// Name implements analytics.Transport.
func (l *Log) Name() string { return NameLog }

// Send logs the batch id and per-type event counts.
func (l *Log) Send(_ context.Context, batch domain.Batch) error {
	byType := make(map[string]int)
	for i := range batch.Events {
		byType[string(batch.Events[i].EventType)]++
	}

	l.log.Info("Analytics batch flushed",
		infralogger.String("batch_id", batch.ID),
		infralogger.Int("event_count", batch.EventCount),
		infralogger.Any("event_types", byType),
	)
	return nil
}
