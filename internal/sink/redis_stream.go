package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Stream defaults.
const (
	DefaultStreamName   = "ad-targeting:analytics"
	DefaultStreamMaxLen = 100000
)

// RedisStream appends each event to a Redis stream, one entry per event.
// A retried batch may append duplicates; consumers dedupe by event id.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream creates a stream sink. The stream is trimmed to roughly
// maxLen entries.
func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStreamName
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamMaxLen
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

// Name implements analytics.Transport.
func (r *RedisStream) Name() string { return NameRedisStream }

// Send pipelines one XADD per event.
func (r *RedisStream) Send(ctx context.Context, batch domain.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	payloads := make([][]byte, 0, len(batch.Events))
	for i := range batch.Events {
		payload, err := json.Marshal(batch.Events[i])
		if err != nil {
			return &TransportError{Transport: NameRedisStream, BatchID: batch.ID, Err: fmt.Errorf("marshal event: %w", err)}
		}
		payloads = append(payloads, payload)
	}

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, payload := range payloads {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: r.stream,
				MaxLen: r.maxLen,
				Approx: true,
				Values: map[string]any{
					"event_id": batch.Events[i].ID,
					"batch_id": batch.ID,
					"event":    string(payload),
				},
			})
		}
		return nil
	})
	if err != nil {
		return &TransportError{Transport: NameRedisStream, BatchID: batch.ID, Err: fmt.Errorf("xadd: %w", err)}
	}
	return nil
}
