package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

const selectColumns = `
	SELECT id, sponsor_id, title, body, destination_url, categories,
	       priority, active_from, active_until
	FROM ad_catalog`

// Postgres reads the catalog from the ad_catalog table.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres creates a Postgres catalog.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

type entryRow struct {
	ID             string         `db:"id"`
	SponsorID      string         `db:"sponsor_id"`
	Title          string         `db:"title"`
	Body           string         `db:"body"`
	DestinationURL string         `db:"destination_url"`
	Categories     pq.StringArray `db:"categories"`
	Priority       float64        `db:"priority"`
	ActiveFrom     *time.Time     `db:"active_from"`
	ActiveUntil    *time.Time     `db:"active_until"`
}

func (r entryRow) toEntry() domain.CatalogEntry {
	return domain.CatalogEntry{
		ID:             r.ID,
		SponsorID:      r.SponsorID,
		Title:          r.Title,
		Body:           r.Body,
		DestinationURL: r.DestinationURL,
		Categories:     []string(r.Categories),
		Priority:       r.Priority,
		ActiveFrom:     r.ActiveFrom,
		ActiveUntil:    r.ActiveUntil,
	}
}

// ListActive returns entries active at now, oldest first.
func (p *Postgres) ListActive(ctx context.Context, now time.Time) ([]domain.CatalogEntry, error) {
	query := selectColumns + `
	WHERE (active_from IS NULL OR active_from <= $1)
	  AND (active_until IS NULL OR active_until >= $1)
	ORDER BY created_at ASC, id ASC`

	var rows []entryRow
	if err := p.db.SelectContext(ctx, &rows, query, now); err != nil {
		return nil, fmt.Errorf("failed to list active catalog entries: %w", err)
	}
	return toEntries(rows), nil
}

// FindByCategory returns entries tagged with categoryID, oldest first.
func (p *Postgres) FindByCategory(ctx context.Context, categoryID string) ([]domain.CatalogEntry, error) {
	query := selectColumns + `
	WHERE $1 = ANY(categories)
	ORDER BY created_at ASC, id ASC`

	var rows []entryRow
	if err := p.db.SelectContext(ctx, &rows, query, categoryID); err != nil {
		return nil, fmt.Errorf("failed to find catalog entries by category: %w", err)
	}
	return toEntries(rows), nil
}

// Ping checks the connection, for health checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func toEntries(rows []entryRow) []domain.CatalogEntry {
	entries := make([]domain.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntry())
	}
	return entries
}
