package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentaldesk/rentals/internal/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"not found", apperror.NotFound("owner", 9), http.StatusNotFound, `"code":"NOT_FOUND"`},
		{"conflict", apperror.Conflict("already paid"), http.StatusConflict, `"error":"already paid"`},
		{"validation fields", apperror.Validation("duration", "must be at least 1 month"), http.StatusBadRequest, `"fields":{"duration":"must be at least 1 month"}`},
		{"plain error hidden", errors.New("pq: connection refused"), http.StatusInternalServerError, `"error":"internal server error"`},
		{"internal hidden", apperror.Wrap(errors.New("disk"), apperror.CodeInternal, "writing"), http.StatusInternalServerError, `"error":"internal server error"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.body)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, decodeJSON(req, &v))
	assert.Equal(t, "a", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nmae":"a"}`))
	assert.True(t, apperror.Is(decodeJSON(req, &v), apperror.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err := decodeJSON(req, &v)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Contains(t, err.Error(), "request body is required")
}

func TestParseID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r, "id")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"id": id})
	})
	for path, status := range map[string]int{
		"/things/42":  http.StatusOK,
		"/things/0":   http.StatusBadRequest,
		"/things/-1":  http.StatusBadRequest,
		"/things/abc": http.StatusBadRequest,
	} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, status, rec.Code, path)
	}
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?contract_id=7&is_paid=true&status=all", nil)
	id, err := queryID(req, "contract_id")
	require.NoError(t, err)
	assert.Equal(t, int64(7), *id)
	paid, err := queryBool(req, "is_paid")
	require.NoError(t, err)
	assert.True(t, *paid)
	_, err = statusFilter(req)
	assert.NoError(t, err)

	missing, err := queryID(req, "owner_id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	req = httptest.NewRequest(http.MethodGet, "/?contract_id=x&is_paid=maybe&status=gone", nil)
	_, err = queryID(req, "contract_id")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	_, err = queryBool(req, "is_paid")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	_, err = statusFilter(req)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, items, paginate(items, Pagination{}))
	assert.Equal(t, []int{3, 4}, paginate(items, Pagination{Limit: 2, Offset: 2}))
	assert.Equal(t, []int{5}, paginate(items, Pagination{Limit: 10, Offset: 4}))
	assert.Equal(t, []int{}, paginate(items, Pagination{Offset: 9}))
	assert.NotNil(t, paginate([]int(nil), Pagination{}))

	req := httptest.NewRequest(http.MethodGet, "/?page_size=9000&offset=3", nil)
	assert.Equal(t, Pagination{Limit: maxPageSize, Offset: 3}, parsePagination(req))
	req = httptest.NewRequest(http.MethodGet, "/?page_size=-1&offset=x", nil)
	assert.Equal(t, Pagination{}, parsePagination(req))
}

func TestDateUnmarshal(t *testing.T) {
	var v struct {
		D Date `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-02-29"}`), &v))
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), v.D.Time())

	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-03-05T23:10:00Z"}`), &v))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), v.D.Time())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"05/03/2024"}`), &v))
	assert.Error(t, json.Unmarshal([]byte(`{"d":20240305}`), &v))

	var empty Date
	assert.True(t, empty.IsZero())
}
