package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/rentaldesk/rentals/internal/types"
)

// Store is the interface for reading and writing activity entries.
// ActivityEntry rows live in their own table next to the entity tables and
// are never updated once written.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity, newest first.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search performs a case-insensitive substring search across summaries.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

var (
	entriesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "event_id", Type: field.TypeString},
		{Name: "event_type", Type: field.TypeString},
		{Name: "occurred_at", Type: field.TypeTime},
		{Name: "indexed_entity_type", Type: field.TypeString},
		{Name: "indexed_entity_id", Type: field.TypeString},
		{Name: "entity_role", Type: field.TypeString},
		{Name: "source_refs", Type: field.TypeString, Size: 4096},
		{Name: "summary", Type: field.TypeString, Size: 1024},
		{Name: "category", Type: field.TypeString},
		{Name: "weight", Type: field.TypeString},
		{Name: "actor", Type: field.TypeString, Default: ""},
		{Name: "payload", Type: field.TypeString, Size: 8192, Nullable: true},
	}
	// EntriesTable holds the activity feed.
	EntriesTable = &schema.Table{
		Name:       "activity_entries",
		Columns:    entriesColumns,
		PrimaryKey: []*schema.Column{entriesColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "activity_entity_time",
				Columns: []*schema.Column{entriesColumns[4], entriesColumns[5], entriesColumns[3]},
			},
		},
	}
)

var entryColumns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "source_refs", "summary", "category", "weight", "actor", "payload",
}

// SQLStore implements Store on the relational database shared with the
// entity store, using ent's SQL builder.
type SQLStore struct {
	drv dialect.Driver
}

// NewSQLStore creates a new SQLStore over drv.
func NewSQLStore(drv dialect.Driver) *SQLStore {
	return &SQLStore{drv: drv}
}

// Migrate creates the activity_entries table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(s.drv)
	if err != nil {
		return fmt.Errorf("activity: migrate: %w", err)
	}
	if err := m.Create(ctx, EntriesTable); err != nil {
		return fmt.Errorf("activity: migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// WriteEntries inserts activity entries in a single statement.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}
	ins := s.builder().Insert(EntriesTable.Name).Columns(entryColumns...)
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encoding source refs: %w", err)
		}
		var payload any
		if len(e.Payload) > 0 {
			payload = string(e.Payload)
		}
		ins.Values(e.EventID, e.EventType, e.OccurredAt.UTC(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, string(refsJSON), e.Summary, e.Category, e.Weight, e.Actor, payload)
	}
	query, args := ins.Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

func weightsAtLeast(minimum string) []any {
	var out []any
	max := WeightSeverity(minimum)
	for w, sev := range WeightOrder {
		if sev <= max {
			out = append(out, w)
		}
	}
	return out
}

func categoriesArgs(categories []string) []any {
	out := make([]any, len(categories))
	for i, c := range categories {
		out[i] = c
	}
	return out
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := normalizeLimit(opts.Limit, 100, 500)

	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", categoriesArgs(opts.Categories)...))
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		preds = append(preds, entsql.In("weight", weightsAtLeast(opts.MinWeight)...))
	}

	total, err := s.count(ctx, entsql.And(preds...))
	if err != nil {
		return nil, "", 0, err
	}

	page := preds
	if opts.Cursor != "" {
		if cur, err := parseCursor(opts.Cursor); err == nil {
			at := cur.at.UTC()
			page = append(page[:len(page):len(page)], entsql.Or(
				entsql.LT("occurred_at", at),
				entsql.And(entsql.EQ("occurred_at", at), entsql.LT("event_id", cur.eventID)),
			))
		}
	}
	sel := s.builder().Select(entryColumns...).From(entsql.Table(EntriesTable.Name)).
		Where(entsql.And(page...)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(limit + 1)
	entries, err := s.query(ctx, sel)
	if err != nil {
		return nil, "", 0, err
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = formatCursor(entries[len(entries)-1])
	}
	return entries, nextCursor, total, nil
}

// Search performs a case-insensitive substring search across summaries.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	limit := normalizeLimit(opts.Limit, 20, 500)

	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", categoriesArgs(opts.Categories)...))
	}

	total, err := s.count(ctx, entsql.And(preds...))
	if err != nil {
		return nil, 0, err
	}
	sel := s.builder().Select(entryColumns...).From(entsql.Table(EntriesTable.Name)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at"), entsql.Desc("event_id")).
		Limit(limit)
	entries, err := s.query(ctx, sel)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *SQLStore) count(ctx context.Context, p *entsql.Predicate) (int, error) {
	query, args := s.builder().Select(entsql.Count("*")).From(entsql.Table(EntriesTable.Name)).Where(p).Query()
	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("counting activity entries: %w", err)
		}
	}
	return n, rows.Err()
}

func (s *SQLStore) query(ctx context.Context, sel *entsql.Selector) ([]types.ActivityEntry, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("querying activity entries: %w", err)
	}
	defer rows.Close()

	var entries []types.ActivityEntry
	for rows.Next() {
		var (
			e        types.ActivityEntry
			refsJSON string
			payload  *string
		)
		err := rows.Scan(
			&e.EventID, &e.EventType, &e.OccurredAt, &e.IndexedEntityType, &e.IndexedEntityID,
			&e.EntityRole, &refsJSON, &e.Summary, &e.Category, &e.Weight, &e.Actor, &payload,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning activity entry: %w", err)
		}
		if refsJSON != "" {
			if err := json.Unmarshal([]byte(refsJSON), &e.SourceRefs); err != nil {
				return nil, fmt.Errorf("decoding source refs of %s: %w", e.EventID, err)
			}
		}
		if payload != nil {
			e.Payload = json.RawMessage(*payload)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
