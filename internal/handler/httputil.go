package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/types"
)

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Warn("writeJSON encode error", zap.Error(err))
	}
}

// writeError maps err to its status and writes {"error","code","fields"}.
// Internal errors are logged and their detail withheld from the client.
func writeError(w http.ResponseWriter, err error) {
	var ae *apperror.Error
	if !errors.As(err, &ae) || ae.Code == apperror.CodeInternal {
		logger().Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, apperror.New(apperror.CodeInternal, "internal server error"))
		return
	}
	writeJSON(w, apperror.HTTPStatus(ae.Code), &apperror.Error{
		Code:    ae.Code,
		Message: ae.Message,
		Fields:  ae.Fields,
	})
}

// decodeJSON decodes the request body into v. Unknown fields are
// rejected so typos in PATCH bodies do not silently do nothing.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.New(apperror.CodeValidation, "request body is required")
		}
		return apperror.New(apperror.CodeValidation, "invalid JSON: "+err.Error())
	}
	return nil
}

// parseID extracts a positive integer path parameter.
func parseID(w http.ResponseWriter, r *http.Request, paramName string) (int64, bool) {
	raw := chi.URLParam(r, paramName)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperror.Validation(paramName, "invalid id: "+raw))
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperror.Validation(name, "invalid id: "+raw)
	}
	return &id, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperror.Validation(name, "must be true or false")
	}
	return &b, nil
}

// statusFilter reads ?status=active|inactive|all.
func statusFilter(r *http.Request) (types.StatusFilter, error) {
	f, err := types.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		return f, apperror.Validation("status", err.Error())
	}
	return f, nil
}

// Pagination holds parsed pagination parameters. A zero Limit means no
// limit.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPageSize = 500

// parsePagination extracts page_size and offset from query params.
func parsePagination(r *http.Request) Pagination {
	var p Pagination
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = min(n, maxPageSize)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// paginate applies p to items, which are already in display order.
func paginate[T any](items []T, p Pagination) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	items = items[p.Offset:]
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

// Date is a calendar date in JSON, written as "2006-01-02". RFC 3339
// timestamps are accepted on input and truncated to their date.
type Date time.Time

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string")
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		*d = Date(t)
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	*d = Date(types.Day(t))
	return nil
}

// Time returns the date at midnight UTC.
func (d Date) Time() time.Time {
	return types.Day(time.Time(d))
}

// actingUserID returns the id of the session user, if any.
func actingUserID(r *http.Request) *int64 {
	if u, ok := auth.UserFrom(r.Context()); ok {
		id := u.ID
		return &id
	}
	return nil
}

// IsZero reports whether the date was omitted.
func (d Date) IsZero() bool {
	return time.Time(d).IsZero()
}
