package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// DefaultIndex receives analytics events when no index is configured.
const DefaultIndex = "ad_analytics_events"

var errBulkItems = errors.New("bulk request had failed items")

// Elasticsearch bulk-indexes events. Documents are created with the event id
// as _id, so a replayed batch conflicts instead of duplicating.
type Elasticsearch struct {
	client *es.Client
	index  string
}

// NewElasticsearch creates an Elasticsearch sink writing to index.
func NewElasticsearch(client *es.Client, index string) *Elasticsearch {
	if index == "" {
		index = DefaultIndex
	}
	return &Elasticsearch{client: client, index: index}
}

// Name implements analytics.Transport.
func (e *Elasticsearch) Name() string { return NameElasticsearch }

type esDocument struct {
	domain.AnalyticsEvent
	BatchID    string `json:"batch_id"`
	OccurredAt string `json:"occurred_at"`
}

type bulkItemResult struct {
	Status int `json:"status"`
}

type bulkResponse struct {
	Errors bool                        `json:"errors"`
	Items  []map[string]bulkItemResult `json:"items"`
}

// Send issues one bulk request for the batch.
func (e *Elasticsearch) Send(ctx context.Context, batch domain.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch.Events {
		event := batch.Events[i]
		meta := map[string]any{
			"create": map[string]any{
				"_index": e.index,
				"_id":    event.ID,
			},
		}
		if err := enc.Encode(meta); err != nil {
			return e.fail(batch.ID, fmt.Errorf("failed to encode meta: %w", err))
		}
		doc := esDocument{
			AnalyticsEvent: event,
			BatchID:        batch.ID,
			OccurredAt:     occurredAt(event.Context.Timestamp).Format("2006-01-02T15:04:05.000Z07:00"),
		}
		if err := enc.Encode(doc); err != nil {
			return e.fail(batch.ID, fmt.Errorf("failed to encode event: %w", err))
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return e.fail(batch.ID, fmt.Errorf("bulk request failed: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		return e.fail(batch.ID, fmt.Errorf("bulk indexing error: %s", res.String()))
	}

	var body bulkResponse
	if err = json.NewDecoder(res.Body).Decode(&body); err != nil {
		return e.fail(batch.ID, fmt.Errorf("error decoding response: %w", err))
	}
	if failed := failedItems(body); failed > 0 {
		return e.fail(batch.ID, fmt.Errorf("%w: %d of %d", errBulkItems, failed, len(batch.Events)))
	}
	return nil
}

// failedItems counts items that neither succeeded nor already existed.
func failedItems(body bulkResponse) int {
	if !body.Errors {
		return 0
	}
	failed := 0
	for _, item := range body.Items {
		for _, result := range item {
			if result.Status >= http.StatusMultipleChoices && result.Status != http.StatusConflict {
				failed++
			}
		}
	}
	return failed
}

func (e *Elasticsearch) fail(batchID string, err error) error {
	return &TransportError{Transport: NameElasticsearch, BatchID: batchID, Err: err}
}
