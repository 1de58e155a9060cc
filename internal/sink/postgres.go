package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const (
	// columnsPerRow is the number of columns inserted per analytics event row.
	columnsPerRow = 7

	// insertBatchSize is the maximum number of rows per INSERT statement.
	insertBatchSize = 50
)

// Placeholder column offsets within a single row tuple (1-indexed for PostgreSQL $N params).
const (
	colID            = 1
	colBatchID       = 2
	colEventType     = 3
	colEventCategory = 4
	colPage          = 5
	colOccurredAt    = 6
	colMetadata      = 7
)

// Postgres writes batches into the analytics_events table. A batch is
// written in one transaction and replays are ignored by event id.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres sink.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Name implements analytics.Transport.
func (p *Postgres) Name() string { return NamePostgres }

// Send inserts every event of batch.
func (p *Postgres) Send(ctx context.Context, batch domain.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return &TransportError{Transport: NamePostgres, BatchID: batch.ID, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for start := 0; start < len(batch.Events); start += insertBatchSize {
		end := min(start+insertBatchSize, len(batch.Events))
		if err = batchInsert(ctx, tx, batch.ID, batch.Events[start:end]); err != nil {
			return &TransportError{Transport: NamePostgres, BatchID: batch.ID, Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return &TransportError{Transport: NamePostgres, BatchID: batch.ID, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// batchInsert builds and executes a single INSERT statement with multiple value tuples.
func batchInsert(ctx context.Context, tx *sql.Tx, batchID string, events []domain.AnalyticsEvent) error {
	args := make([]any, 0, len(events)*columnsPerRow)
	var sb strings.Builder

	sb.WriteString("INSERT INTO analytics_events (id, batch_id, event_type, event_category, " +
		"page, occurred_at, metadata) VALUES ")

	for i := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeValueTuple(&sb, i)

		metadata, err := json.Marshal(events[i].Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata of event %s: %w", events[i].ID, err)
		}

		args = append(args,
			events[i].ID, batchID, string(events[i].EventType), string(events[i].EventCategory),
			events[i].Context.Page, occurredAt(events[i].Context.Timestamp), metadata,
		)
	}

	sb.WriteString(" ON CONFLICT (id) DO NOTHING")

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("exec batch insert: %w", err)
	}
	return nil
}

// writeValueTuple writes a single ($1, ..., $7) placeholder tuple to the builder,
// offset by the row index.
func writeValueTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * columnsPerRow
	fmt.Fprintf(sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
		base+colID, base+colBatchID, base+colEventType, base+colEventCategory,
		base+colPage, base+colOccurredAt, base+colMetadata,
	)
}
