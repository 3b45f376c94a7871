package activity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rentaldesk/rentals/internal/types"
)

func testEntry(entityType, entityID, category, weight, summary string, daysAgo int) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           "test-" + summary,
		EventType:         "test_event",
		OccurredAt:        time.Now().UTC().AddDate(0, 0, -daysAgo),
		IndexedEntityType: entityType,
		IndexedEntityID:   entityID,
		EntityRole:        "subject",
		SourceRefs:        []types.SourceRef{{EntityType: entityType, EntityID: entityID, Role: "subject"}},
		Summary:           summary,
		Category:          category,
		Weight:            weight,
	}
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(entsql.OpenDB(dialect.SQLite, db))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

// stores returns one instance of each Store implementation.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sql":    newSQLStore(t),
	}
}

func TestStore_WriteAndQuery(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			entries := []types.ActivityEntry{
				testEntry("contract", "1", "payment", "minor", "Payment on time", 10),
				testEntry("contract", "1", "contract", "major", "Contract created", 5),
				testEntry("contract", "2", "payment", "minor", "Payment on time", 10),
			}
			if err := store.WriteEntries(ctx, entries); err != nil {
				t.Fatalf("WriteEntries: %v", err)
			}

			results, _, total, err := store.QueryByEntity(ctx, "contract", "1", DefaultQueryOptions())
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 2 {
				t.Errorf("total = %d, want 2", total)
			}
			if len(results) != 2 {
				t.Fatalf("results = %d, want 2", len(results))
			}
			if results[0].Summary != "Contract created" {
				t.Errorf("first = %q, want newest entry first", results[0].Summary)
			}
			if len(results[0].SourceRefs) != 1 || results[0].SourceRefs[0].EntityID != "1" {
				t.Errorf("source refs = %+v", results[0].SourceRefs)
			}
		})
	}
}

func TestStore_QueryByEntity_FilterCategory(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteEntries(ctx, []types.ActivityEntry{
				testEntry("contract", "1", "payment", "minor", "Payment", 10),
				testEntry("contract", "1", "contract", "major", "Created", 5),
			})

			opts := DefaultQueryOptions()
			opts.Categories = []string{"payment"}
			results, _, total, err := store.QueryByEntity(ctx, "contract", "1", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 1 || len(results) != 1 {
				t.Fatalf("total = %d, results = %d, want 1", total, len(results))
			}
			if results[0].Category != "payment" {
				t.Errorf("category = %q, want payment", results[0].Category)
			}
		})
	}
}

func TestStore_QueryByEntity_TimeWindow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteEntries(ctx, []types.ActivityEntry{
				testEntry("tenant", "7", "payment", "minor", "Recent", 5),
				testEntry("tenant", "7", "payment", "minor", "Old", 200),
			})

			since := time.Now().AddDate(0, 0, -30)
			opts := DefaultQueryOptions()
			opts.Since = &since
			results, _, total, err := store.QueryByEntity(ctx, "tenant", "7", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 1 {
				t.Errorf("total = %d, want 1", total)
			}
			if len(results) != 1 || results[0].Summary != "Recent" {
				t.Errorf("expected only 'Recent' entry")
			}
		})
	}
}

func TestStore_QueryByEntity_MinWeight(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteEntries(ctx, []types.ActivityEntry{
				testEntry("payment", "3", "payment", "minor", "Paid", 5),
				testEntry("payment", "3", "payment", "critical", "Deleted", 4),
			})

			opts := DefaultQueryOptions()
			opts.MinWeight = "major"
			results, _, total, err := store.QueryByEntity(ctx, "payment", "3", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 1 {
				t.Errorf("total = %d, want 1", total)
			}
			if len(results) != 1 || results[0].Weight != "critical" {
				t.Errorf("expected only 'critical' entry")
			}
		})
	}
}

func TestStore_QueryByEntity_Pagination(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			var entries []types.ActivityEntry
			for i := 1; i <= 5; i++ {
				entries = append(entries, testEntry("contract", "9", "payment", "minor", "Installment", i))
			}
			store.WriteEntries(ctx, entries)

			opts := DefaultQueryOptions()
			opts.Limit = 2
			first, cursor, total, err := store.QueryByEntity(ctx, "contract", "9", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 5 || len(first) != 2 || cursor == "" {
				t.Fatalf("total = %d, page = %d, cursor = %q", total, len(first), cursor)
			}

			opts.Cursor = cursor
			second, _, _, err := store.QueryByEntity(ctx, "contract", "9", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if len(second) != 2 {
				t.Fatalf("second page = %d, want 2", len(second))
			}
			if !second[0].OccurredAt.Before(first[1].OccurredAt) {
				t.Errorf("second page overlaps the first")
			}
		})
	}
}

func TestStore_QueryByEntity_PaginationTies(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
			var entries []types.ActivityEntry
			for _, s := range []string{"a", "b", "c"} {
				e := testEntry("contract", "1", "payment", "minor", s, 0)
				e.OccurredAt = at
				entries = append(entries, e)
			}
			older := testEntry("contract", "1", "payment", "minor", "older", 0)
			older.OccurredAt = at.Add(-time.Minute)
			entries = append(entries, older)
			if err := store.WriteEntries(ctx, entries); err != nil {
				t.Fatalf("WriteEntries: %v", err)
			}

			opts := DefaultQueryOptions()
			opts.Limit = 1
			var seen []string
			for page := 0; page < 10; page++ {
				got, next, total, err := store.QueryByEntity(ctx, "contract", "1", opts)
				if err != nil {
					t.Fatalf("QueryByEntity: %v", err)
				}
				if total != 4 {
					t.Fatalf("total = %d, want 4", total)
				}
				for _, e := range got {
					seen = append(seen, e.EventID)
				}
				if next == "" {
					break
				}
				opts.Cursor = next
			}
			want := []string{"test-c", "test-b", "test-a", "test-older"}
			if len(seen) != len(want) {
				t.Fatalf("paged through %v, want %v", seen, want)
			}
			for i := range want {
				if seen[i] != want[i] {
					t.Errorf("entry %d = %s, want %s", i, seen[i], want[i])
				}
			}
		})
	}
}

func TestStore_Search(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store.WriteEntries(ctx, []types.ActivityEntry{
				testEntry("contract", "1", "payment", "major", "Late payment received", 5),
				testEntry("contract", "1", "contract", "major", "Contract created", 10),
				testEntry("payment", "4", "payment", "major", "Late payment received", 3),
			})

			results, total, err := store.Search(ctx, "LATE", DefaultSearchOptions())
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if total != 2 || len(results) != 2 {
				t.Errorf("total = %d, results = %d, want 2", total, len(results))
			}

			opts := DefaultSearchOptions()
			opts.EntityType = "payment"
			results, total, err = store.Search(ctx, "late", opts)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if total != 1 || len(results) != 1 || results[0].IndexedEntityType != "payment" {
				t.Errorf("expected only payment entity, got %d", total)
			}
		})
	}
}

func TestStore_EmptyStore(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			results, _, total, err := store.QueryByEntity(context.Background(), "owner", "nobody", DefaultQueryOptions())
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if total != 0 || len(results) != 0 {
				t.Errorf("expected empty results from empty store")
			}
		})
	}
}
