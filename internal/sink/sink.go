// Package sink delivers flushed analytics batches to their destinations.
package sink

import (
	"fmt"
	"time"
)

// Sink names accepted in configuration.
const (
	NamePostgres      = "postgres"
	NameRedisStream   = "redis_stream"
	NameElasticsearch = "elasticsearch"
	NameLog           = "log"
)

// TransportError reports a batch a sink could not deliver.
type TransportError struct {
	Transport string
	BatchID   string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: batch %s: %v", e.Transport, e.BatchID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func occurredAt(epochMs int64) time.Time {
	return time.UnixMilli(epochMs).UTC()
}
