// Package activity provides the activity store interface and implementations
// for the per-entity activity feed built from domain events.
package activity

import (
	"strings"
	"time"

	"github.com/rentaldesk/rentals/internal/types"
)

// WeightOrder maps event weights to numeric severity (lower = more severe).
var WeightOrder = map[string]int{
	"critical": 1,
	"major":    2,
	"minor":    3,
	"info":     4,
}

// WeightSeverity returns the severity rank of weight; unknown weights rank
// below "info".
func WeightSeverity(weight string) int {
	if s, ok := WeightOrder[weight]; ok {
		return s
	}
	return 5
}

// IsAtLeastWeight returns true if actual is at least as severe as minimum.
func IsAtLeastWeight(actual, minimum string) bool {
	return WeightSeverity(actual) <= WeightSeverity(minimum)
}

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time
	Until      *time.Time
	Categories []string // filter to specific event categories
	MinWeight  string   // minimum weight threshold (default: "info")
	Limit      int      // max results (default: 100, max: 500)
	Cursor     string   // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for full-text activity search.
type SearchOptions struct {
	EntityType string
	Since      *time.Time
	Categories []string
	Limit      int // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions covering the last six months.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

func normalizeLimit(limit, def, max int) int {
	if limit <= 0 || limit > max {
		return def
	}
	return limit
}

// feedCursor marks the last entry of a page. Feeds are ordered by
// occurred_at then event_id, both descending, so entries sharing a
// timestamp still page in a stable order.
type feedCursor struct {
	at      time.Time
	eventID string
}

func formatCursor(e types.ActivityEntry) string {
	return e.OccurredAt.UTC().Format(time.RFC3339Nano) + "|" + e.EventID
}

// parseCursor also accepts a bare timestamp, which resumes strictly
// before it.
func parseCursor(s string) (feedCursor, error) {
	ts, id, _ := strings.Cut(s, "|")
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return feedCursor{}, err
	}
	return feedCursor{at: at, eventID: id}, nil
}

// after reports whether e comes after c in feed order.
func (c feedCursor) after(e types.ActivityEntry) bool {
	if !e.OccurredAt.Equal(c.at) {
		return e.OccurredAt.Before(c.at)
	}
	return e.EventID < c.eventID
}

// feedOrder sorts entries newest first, breaking ties by event id.
func feedOrder(a, b types.ActivityEntry) int {
	if n := b.OccurredAt.Compare(a.OccurredAt); n != 0 {
		return n
	}
	return strings.Compare(b.EventID, a.EventID)
}
