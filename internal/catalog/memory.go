// Package catalog provides the ad catalog backends read by the decision gate.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/north-cloud/ad-targeting/internal/domain"
)

// Source names accepted in configuration.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

var (
	// ErrMissingID is returned for a catalog entry without an id.
	ErrMissingID = errors.New("catalog entry has no id")
	// ErrDuplicateID is returned when two entries share an id.
	ErrDuplicateID = errors.New("duplicate catalog entry id")
	// ErrNotReloadable is returned by Reload on a catalog without a file.
	ErrNotReloadable = errors.New("catalog has no backing file")
)

type catalogFile struct {
	Entries []domain.CatalogEntry `yaml:"entries"`
}

// Memory is an in-memory catalog, optionally loaded from a YAML file.
// Entries keep their file order, which decides selection ties.
type Memory struct {
	mu      sync.RWMutex
	path    string
	entries []domain.CatalogEntry
}

// NewMemory creates a catalog holding entries.
func NewMemory(entries []domain.CatalogEntry) (*Memory, error) {
	if err := validate(entries); err != nil {
		return nil, err
	}
	return &Memory{entries: slices.Clone(entries)}, nil
}

// LoadFile creates a catalog from a YAML file that Reload re-reads.
func LoadFile(path string) (*Memory, error) {
	m := &Memory{path: path}
	if err := m.Reload(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the backing file. On error the current entries are kept.
func (m *Memory) Reload(_ context.Context) error {
	if m.path == "" {
		return ErrNotReloadable
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read catalog file: %w", err)
	}

	var f catalogFile
	if err = yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse catalog file: %w", err)
	}
	if err = validate(f.Entries); err != nil {
		return err
	}

	m.mu.Lock()
	m.entries = f.Entries
	m.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// ListActive returns the entries active at now, in catalog order.
func (m *Memory) ListActive(_ context.Context, now time.Time) ([]domain.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]domain.CatalogEntry, 0, len(m.entries))
	for _, e := range m.entries {
		if e.ActiveAt(now) {
			active = append(active, e)
		}
	}
	return active, nil
}

// FindByCategory returns every entry tagged with categoryID, in catalog order,
// whatever its active window.
func (m *Memory) FindByCategory(_ context.Context, categoryID string) ([]domain.CatalogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []domain.CatalogEntry
	for _, e := range m.entries {
		if e.HasCategory(categoryID) {
			found = append(found, e)
		}
	}
	return found, nil
}

func validate(entries []domain.CatalogEntry) error {
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return fmt.Errorf("entry %d: %w", i, ErrMissingID)
		}
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}
