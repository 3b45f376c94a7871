package activity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rentaldesk/rentals/internal/types"
)

// MemoryStore implements Store using in-memory slices.
// Intended for demos and testing; it needs no database.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []types.ActivityEntry
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) WriteEntries(_ context.Context, entries []types.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) QueryByEntity(_ context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	rows := s.collect(func(e types.ActivityEntry) bool {
		return e.IndexedEntityType == entityType &&
			e.IndexedEntityID == entityID &&
			inWindow(e.OccurredAt, opts.Since, opts.Until) &&
			inCategories(e.Category, opts.Categories) &&
			(opts.MinWeight == "" || IsAtLeastWeight(e.Weight, opts.MinWeight))
	})
	total := len(rows)

	// An unparsable cursor restarts from the newest entry.
	if opts.Cursor != "" {
		if cur, err := parseCursor(opts.Cursor); err == nil {
			i := 0
			for i < len(rows) && !cur.after(rows[i]) {
				i++
			}
			rows = rows[i:]
		}
	}

	var next string
	if limit := normalizeLimit(opts.Limit, 100, 500); len(rows) > limit {
		rows = rows[:limit]
		next = formatCursor(rows[limit-1])
	}
	return rows, next, total, nil
}

func (s *MemoryStore) Search(_ context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	q := strings.ToLower(query)
	rows := s.collect(func(e types.ActivityEntry) bool {
		return strings.Contains(strings.ToLower(e.Summary), q) &&
			(opts.EntityType == "" || e.IndexedEntityType == opts.EntityType) &&
			inWindow(e.OccurredAt, opts.Since, nil) &&
			inCategories(e.Category, opts.Categories)
	})
	total := len(rows)
	if limit := normalizeLimit(opts.Limit, 20, 500); len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, total, nil
}

// collect copies the entries accepted by keep, newest first.
func (s *MemoryStore) collect(keep func(types.ActivityEntry) bool) []types.ActivityEntry {
	s.mu.RLock()
	var rows []types.ActivityEntry
	for _, e := range s.entries {
		if keep(e) {
			rows = append(rows, e)
		}
	}
	s.mu.RUnlock()
	slices.SortStableFunc(rows, feedOrder)
	return rows
}

func inWindow(t time.Time, since, until *time.Time) bool {
	if since != nil && t.Before(*since) {
		return false
	}
	return until == nil || !t.After(*until)
}

func inCategories(category string, categories []string) bool {
	return len(categories) == 0 || slices.Contains(categories, category)
}
