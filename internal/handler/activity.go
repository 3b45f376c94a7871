package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/signals"
	"github.com/rentaldesk/rentals/internal/types"
)

var activityEntityTypes = map[string]bool{
	"owner":    true,
	"tenant":   true,
	"property": true,
	"contract": true,
	"payment":  true,
}

// ActivityHandler serves the per-entity activity feed. It reads the
// activity store only and never touches the entity store.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

// EntityFeed returns an entity's activity, newest first.
// GET /v1/activity/{entity_type}/{entity_id}
func (h *ActivityHandler) EntityFeed(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	if !activityEntityTypes[entityType] {
		writeError(w, apperror.Validation("entity_type", "unknown entity type: "+entityType))
		return
	}
	entityID, ok := parseID(w, r, "entity_id")
	if !ok {
		return
	}

	opts := activity.DefaultQueryOptions()
	q := r.URL.Query()
	fields := apperror.Fields{}
	if s := q.Get("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			opts.Since = &t
		} else {
			fields.Add("since", "must be an RFC 3339 timestamp")
		}
	}
	if u := q.Get("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			opts.Until = &t
		} else {
			fields.Add("until", "must be an RFC 3339 timestamp")
		}
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		if _, known := activity.WeightOrder[mw]; !known {
			fields.Add("min_weight", "must be one of critical, major, minor, info")
		}
		opts.MinWeight = mw
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = min(n, 500)
		}
	}
	opts.Cursor = q.Get("cursor")
	if err := fields.Err(); err != nil {
		writeError(w, err)
		return
	}

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), entityType, strconv.FormatInt(entityID, 10), opts)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "querying activity"))
		return
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	if resp.Activities == nil {
		resp.Activities = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// EntitySummary condenses an entity's last twelve months of activity into
// its standing.
// GET /v1/activity/summary/{entity_type}/{entity_id}
func (h *ActivityHandler) EntitySummary(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entity_type")
	if !activityEntityTypes[entityType] {
		writeError(w, apperror.Validation("entity_type", "unknown entity type: "+entityType))
		return
	}
	entityID, ok := parseID(w, r, "entity_id")
	if !ok {
		return
	}
	until := time.Now().UTC()
	since := until.AddDate(-1, 0, 0)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, apperror.Validation("since", "must be an RFC 3339 timestamp"))
			return
		}
		since = t
	}

	id := strconv.FormatInt(entityID, 10)
	entries, _, _, err := h.store.QueryByEntity(r.Context(), entityType, id, activity.QueryOptions{
		Since:     &since,
		Until:     &until,
		MinWeight: "info",
		Limit:     500,
	})
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "querying activity"))
		return
	}
	writeJSON(w, http.StatusOK, signals.Aggregate(entries, entityType, id, since, until))
}

// Search finds activity whose summary contains q.
// GET /v1/activity/search?q=...
func (h *ActivityHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		writeError(w, apperror.Validation("q", "is required"))
		return
	}
	opts := activity.DefaultSearchOptions()
	opts.EntityType = q.Get("entity_type")
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(w, apperror.Validation("since", "must be an RFC 3339 timestamp"))
			return
		}
		opts.Since = &t
	}

	entries, totalCount, err := h.store.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "searching activity"))
		return
	}
	if entries == nil {
		entries = []types.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{entries, totalCount})
}
