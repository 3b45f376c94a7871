package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/auth"
	"github.com/rentaldesk/rentals/internal/dashboard"
	"github.com/rentaldesk/rentals/internal/document"
	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/installment"
	"github.com/rentaldesk/rentals/internal/metrics"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/payment"
	"github.com/rentaldesk/rentals/internal/store"
)

const cookieName = "rentals_session"

var today = time.Date(2024, 1, 20, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	t      *testing.T
	router http.Handler
	admin  string
	clerk  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()
	feed := activity.NewMemoryStore()
	rec := event.NewActivityRecorder(feed)
	clock := func() time.Time { return today }

	authSvc := auth.NewService(s, auth.NewMemorySessionStore(), time.Hour, nil)
	created, err := authSvc.Bootstrap(ctx, "admin", "secret123")
	require.NoError(t, err)
	require.True(t, created)
	_, err = authSvc.CreateUser(ctx, auth.NewUser{Username: "clerk", Password: "clerk123", Name: "Clerk", Role: model.RoleUser})
	require.NoError(t, err)

	router := NewRouter(Deps{
		Store:      s,
		Activity:   feed,
		Generator:  installment.NewGenerator(s, rec, nil, nil),
		Engine:     payment.NewEngine(s, rec, nil, nil, payment.WithClock(clock)),
		Dashboard:  dashboard.NewService(s, clock),
		Auth:       authSvc,
		Renderer:   document.TextRenderer{},
		Metrics:    metrics.New(),
		CookieName: cookieName,
	})
	e := &testEnv{t: t, router: router}
	e.admin = e.login("admin", "secret123")
	e.clerk = e.login("clerk", "clerk123")
	return e
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(username, password string) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	decode(e.t, rec, &resp)
	require.NotEmpty(e.t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (e *testEnv) create(path string, body any) int64 {
	e.t.Helper()
	rec := e.do(http.MethodPost, path, e.clerk, body)
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		ID int64 `json:"id"`
	}
	decode(e.t, rec, &resp)
	return resp.ID
}

// contract creates an owner, tenant, property and a three month contract
// from 2024-01-01 due on the 10th, returning the contract and payment ids.
func (e *testEnv) contract() (int64, []int64) {
	e.t.Helper()
	ownerID := e.create("/v1/owners", map[string]any{"name": "Maria Souza", "document": "123.456.789-00"})
	tenantID := e.create("/v1/tenants", map[string]any{"name": "João Lima", "document": "987.654.321-00"})
	propertyID := e.create("/v1/properties", map[string]any{
		"owner_id": ownerID, "type": "house", "rent_value_cents": 150000,
	})

	rec := e.do(http.MethodPost, "/v1/contracts", e.clerk, map[string]any{
		"owner_id":         ownerID,
		"tenant_id":        tenantID,
		"property_id":      propertyID,
		"start_date":       "2024-01-01",
		"duration":         3,
		"rent_value_cents": 150000,
		"payment_day":      10,
		"status":           "ativo",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var c struct {
		ID       int64  `json:"id"`
		Status   string `json:"status"`
		EndDate  string `json:"end_date"`
		Payments []struct {
			ID      int64  `json:"id"`
			DueDate string `json:"due_date"`
		} `json:"payments"`
	}
	decode(e.t, rec, &c)
	assert.Equal(e.t, "active", c.Status)
	assert.Equal(e.t, "2024-04-01T00:00:00Z", c.EndDate)
	require.Len(e.t, c.Payments, 3)
	assert.Equal(e.t, "2024-01-10T00:00:00Z", c.Payments[0].DueDate)
	ids := make([]int64, len(c.Payments))
	for i, p := range c.Payments {
		ids[i] = p.ID
	}
	return c.ID, ids
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoutesRequireSession(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/v1/owners", "/v1/contracts", "/v1/dashboard", "/v1/auth/me"} {
		rec := e.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"code":"UNAUTHORIZED"`, path)
	}
}

func TestLoginCookieAndMe(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "Admin", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(cookies[0])
	me := httptest.NewRecorder()
	e.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	var u model.User
	decode(t, me, &u)
	assert.Equal(t, "admin", u.Username)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.NotContains(t, me.Body.String(), "password")

	bad := e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "admin", "password": "nope123"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/v1/auth/logout", e.clerk, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/auth/me", e.clerk, nil).Code)
}

func TestPaymentFlow(t *testing.T) {
	e := newTestEnv(t)
	contractID, payments := e.contract()

	rec := e.do(http.MethodGet, fmt.Sprintf("/v1/contracts/%d/payments", contractID), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []model.Payment
	decode(t, rec, &listed)
	assert.Len(t, listed, 3)

	// Ten days late: 2% fee on 1500.00 and 1% a month prorated over 10/30.
	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/payments/%d/quote", payments[0]), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var q map[string]any
	decode(t, rec, &q)
	assert.EqualValues(t, 10, q["days_late"])
	assert.EqualValues(t, 3000, q["late_payment_fee_cents"])
	assert.EqualValues(t, 500, q["interest_amount_cents"])
	assert.EqualValues(t, 153500, q["total_cents"])

	rec = e.do(http.MethodPost, fmt.Sprintf("/v1/payments/%d/pay", payments[0]), e.clerk, map[string]any{"payment_method": "pix"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid model.Payment
	decode(t, rec, &paid)
	assert.True(t, paid.IsPaid)
	assert.EqualValues(t, 3000, paid.LatePaymentFee)
	assert.EqualValues(t, 500, paid.InterestAmount)
	require.NotNil(t, paid.ReceiptNumber)
	assert.Equal(t, fmt.Sprintf("REC-%d-%d-20240120", contractID, payments[0]), *paid.ReceiptNumber)

	again := e.do(http.MethodPost, fmt.Sprintf("/v1/payments/%d/pay", payments[0]), e.clerk, map[string]any{"payment_method": "pix"})
	assert.Equal(t, http.StatusConflict, again.Code)

	patch := e.do(http.MethodPatch, fmt.Sprintf("/v1/payments/%d", payments[0]), e.clerk, map[string]any{"value_cents": 1})
	assert.Equal(t, http.StatusConflict, patch.Code)

	receipt := e.do(http.MethodGet, fmt.Sprintf("/v1/payments/%d/receipt", payments[0]), e.clerk, nil)
	require.Equal(t, http.StatusOK, receipt.Code)
	assert.Equal(t, "text/plain; charset=utf-8", receipt.Header().Get("Content-Type"))
	assert.Contains(t, receipt.Body.String(), "RENT RECEIPT")

	unpaid := e.do(http.MethodGet, fmt.Sprintf("/v1/payments/%d/receipt", payments[1]), e.clerk, nil)
	assert.Equal(t, http.StatusConflict, unpaid.Code)

	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/payments?contract_id=%d&is_paid=false", contractID), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &listed)
	assert.Len(t, listed, 2)
}

func TestPayWithExplicitCharges(t *testing.T) {
	e := newTestEnv(t)
	_, payments := e.contract()
	rec := e.do(http.MethodPost, fmt.Sprintf("/v1/payments/%d/pay", payments[0]), e.clerk, map[string]any{
		"payment_method":         "cash",
		"receipt_number":         "R-1",
		"late_payment_fee_cents": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paid model.Payment
	decode(t, rec, &paid)
	assert.Zero(t, paid.LatePaymentFee)
	assert.Zero(t, paid.InterestAmount)
	assert.Equal(t, "R-1", *paid.ReceiptNumber)
}

func TestDeletePaymentIsAdminOnly(t *testing.T) {
	e := newTestEnv(t)
	_, payments := e.contract()
	path := fmt.Sprintf("/v1/payments/%d", payments[1])

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, e.clerk, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/deleted-payments", e.clerk, nil).Code)

	rec := e.do(http.MethodDelete, path, e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var archived model.DeletedPayment
	decode(t, rec, &archived)
	assert.Equal(t, payments[1], archived.OriginalID)
	require.NotNil(t, archived.DeletedBy)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, e.clerk, nil).Code)

	rec = e.do(http.MethodGet, "/v1/deleted-payments", e.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger []model.DeletedPayment
	decode(t, rec, &ledger)
	require.Len(t, ledger, 1)
	assert.Equal(t, payments[1], ledger[0].OriginalID)
}

func TestContractStatusAndDelete(t *testing.T) {
	e := newTestEnv(t)
	contractID, _ := e.contract()
	path := fmt.Sprintf("/v1/contracts/%d", contractID)

	rec := e.do(http.MethodPatch, path, e.clerk, map[string]any{"status": "pendente"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(http.MethodPatch, path, e.clerk, map[string]any{"status": "encerrado", "observations": "tenant moved out"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var c model.Contract
	decode(t, rec, &c)
	assert.Equal(t, model.ContractClosed, c.Status)
	assert.Equal(t, "tenant moved out", c.Observations)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodDelete, path, e.clerk, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, path, e.admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, path, e.clerk, nil).Code)

	rec = e.do(http.MethodGet, "/v1/deleted-payments", e.admin, nil)
	var ledger []model.DeletedPayment
	decode(t, rec, &ledger)
	assert.Len(t, ledger, 3)
}

func TestContractDocument(t *testing.T) {
	e := newTestEnv(t)
	contractID, _ := e.contract()

	rec := e.do(http.MethodGet, fmt.Sprintf("/v1/contracts/%d/document", contractID), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RESIDENTIAL LEASE CONTRACT")
	assert.Contains(t, rec.Body.String(), "Maria Souza")

	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/contracts/%d/document?format=json", contractID), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var doc document.ContractDocument
	decode(t, rec, &doc)
	assert.Equal(t, "João Lima", doc.Tenant.Name)
}

func TestCreateContractValidation(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/v1/contracts", e.clerk, map[string]any{"duration": 0, "payment_day": 40})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "VALIDATION_ERROR", body.Code)
	assert.Contains(t, body.Fields, "duration")
	assert.Contains(t, body.Fields, "payment_day")

	rec = e.do(http.MethodPost, "/v1/contracts", e.clerk, map[string]any{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/v1/owners", e.clerk, map[string]any{"name": "X", "unknown": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDuplicateOwnerDocument(t *testing.T) {
	e := newTestEnv(t)
	e.create("/v1/owners", map[string]any{"name": "A", "document": "111.222.333-44"})
	rec := e.do(http.MethodPost, "/v1/owners", e.clerk, map[string]any{"name": "B", "document": "11122233344"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "document")
}

func TestDashboard(t *testing.T) {
	e := newTestEnv(t)
	e.contract()

	rec := e.do(http.MethodGet, "/v1/dashboard", e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var s dashboard.Summary
	decode(t, rec, &s)
	assert.Equal(t, 1, s.TotalContracts)
	assert.Equal(t, 0, s.ExpiredContracts)
	assert.Equal(t, 1, s.OverduePayments)
	assert.EqualValues(t, 150000, s.OverdueValue)
	assert.Equal(t, 2, s.PendingPayments)
}

func TestActivityFeed(t *testing.T) {
	e := newTestEnv(t)
	contractID, _ := e.contract()

	rec := e.do(http.MethodGet, fmt.Sprintf("/v1/activity/contract/%d", contractID), e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var feed struct {
		Activities []struct {
			EventType string `json:"event_type"`
		} `json:"activities"`
		TotalCount int `json:"total_count"`
	}
	decode(t, rec, &feed)
	assert.Equal(t, 2, feed.TotalCount)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/v1/activity/planet/1", e.clerk, nil).Code)
}

func TestActivitySummaryFlagsLatePayment(t *testing.T) {
	e := newTestEnv(t)
	contractID, payments := e.contract()
	path := fmt.Sprintf("/v1/activity/summary/contract/%d", contractID)

	rec := e.do(http.MethodGet, path, e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s struct {
		Standing    string `json:"standing"`
		Escalations []struct {
			Rule struct {
				ID string `json:"id"`
			} `json:"rule"`
		} `json:"escalations"`
	}
	decode(t, rec, &s)
	assert.Equal(t, "good", s.Standing)

	// Paid ten days after the due date, so charges apply.
	pay := e.do(http.MethodPost, fmt.Sprintf("/v1/payments/%d/pay", payments[0]), e.clerk, map[string]any{"payment_method": "boleto"})
	require.Equal(t, http.StatusOK, pay.Code)

	rec = e.do(http.MethodGet, path, e.clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &s)
	assert.Equal(t, "watch", s.Standing)
	require.Len(t, s.Escalations, 1)
	assert.Equal(t, "late_payment_recent", s.Escalations[0].Rule.ID)
}

func TestUserAdministration(t *testing.T) {
	e := newTestEnv(t)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/users", e.clerk, nil).Code)

	rec := e.do(http.MethodPost, "/v1/users", e.admin, map[string]any{"username": "Temp", "password": "temp1234", "name": "Temp"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u model.User
	decode(t, rec, &u)
	assert.Equal(t, "temp", u.Username)
	assert.Equal(t, model.RoleUser, u.Role)

	rec = e.do(http.MethodPatch, fmt.Sprintf("/v1/users/%d", u.ID), e.admin, map[string]any{"status": "inactive"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bad := e.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"username": "temp", "password": "temp1234"})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	rec = e.do(http.MethodGet, "/v1/auth/me", e.admin, nil)
	var admin model.User
	decode(t, rec, &admin)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", admin.ID), e.admin, nil).Code)
	assert.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, fmt.Sprintf("/v1/users/%d", u.ID), e.admin, nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(http.MethodGet, "/healthz", "", nil)
	rec := e.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rentals_http_requests_total{method="GET",route="/healthz",status="200"}`)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), zap.NewNop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
