package installment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentaldesk/rentals/internal/activity"
	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSchedule_CountAndValues(t *testing.T) {
	for _, n := range []int{1, 6, 12, 30} {
		c := model.Contract{ID: 4, StartDate: date(2024, 3, 5), Duration: n, RentValue: 123456, PaymentDay: 10}
		rows := Schedule(c)
		if len(rows) != n {
			t.Fatalf("duration %d: got %d installments", n, len(rows))
		}
		for i, p := range rows {
			assert.Equal(t, int64(4), p.ContractID)
			assert.Equal(t, types.Cents(123456), p.Value)
			assert.False(t, p.IsPaid)
			assert.Nil(t, p.PaymentDate)
			assert.Zero(t, p.InterestAmount)
			assert.Zero(t, p.LatePaymentFee)
			assert.Equal(t, fmt.Sprintf("Installment %d/%d", i+1, n), p.Observations)
		}
	}
}

func TestSchedule_DueDateProgression(t *testing.T) {
	c := model.Contract{StartDate: date(2024, 11, 20), Duration: 14, RentValue: 1, PaymentDay: 15}
	rows := Schedule(c)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].DueDate, rows[i].DueDate
		if !cur.After(prev) {
			t.Fatalf("installment %d due %s not after %s", i, cur, prev)
		}
		wantMonth := (int(prev.Month()) % 12) + 1
		assert.Equal(t, wantMonth, int(cur.Month()), "installment %d", i)
		assert.Equal(t, 15, cur.Day())
	}
	assert.Equal(t, date(2024, 11, 15), rows[0].DueDate)
	assert.Equal(t, date(2025, 12, 15), rows[13].DueDate)
}

func TestSchedule_ClampsToMonthEnd(t *testing.T) {
	c := model.Contract{StartDate: date(2024, 1, 31), Duration: 4, RentValue: 1, PaymentDay: 31}
	rows := Schedule(c)
	want := []time.Time{date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30)}
	for i, p := range rows {
		assert.Equal(t, want[i], p.DueDate, "installment %d", i)
	}
}

func TestSchedule_ZeroDuration(t *testing.T) {
	assert.Empty(t, Schedule(model.Contract{Duration: 0}))
}

func TestSchedule_RejectsHugeDuration(t *testing.T) {
	assert.Empty(t, Schedule(model.Contract{Duration: 1_000_000_000, PaymentDay: 1}))
}

type fixture struct {
	owner, otherOwner *model.Owner
	tenant            *model.Tenant
	property          *model.Property
}

func seed(t *testing.T, s store.Store) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		owner:      &model.Owner{Name: "Owner", Document: "1"},
		otherOwner: &model.Owner{Name: "Other", Document: "2"},
		tenant:     &model.Tenant{Name: "Tenant", Document: "3"},
	}
	require.NoError(t, s.CreateOwner(ctx, f.owner))
	require.NoError(t, s.CreateOwner(ctx, f.otherOwner))
	require.NoError(t, s.CreateTenant(ctx, f.tenant))
	f.property = &model.Property{OwnerID: f.owner.ID, Type: model.PropertyHouse, RentValue: 250000}
	require.NoError(t, s.CreateProperty(ctx, f.property))
	return f
}

func (f fixture) contract(duration int) *model.Contract {
	return &model.Contract{
		OwnerID:    f.owner.ID,
		TenantID:   f.tenant.ID,
		PropertyID: f.property.ID,
		StartDate:  date(2024, 1, 10),
		Duration:   duration,
		RentValue:  250000,
		PaymentDay: 5,
	}
}

func TestGenerator_CreateContract(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	f := seed(t, s)
	feed := activity.NewMemoryStore()
	g := NewGenerator(s, event.NewActivityRecorder(feed), nil, nil)

	c := f.contract(12)
	rows, err := g.CreateContract(ctx, c)
	require.NoError(t, err)
	assert.Positive(t, c.ID)
	assert.Equal(t, date(2025, 1, 10), c.EndDate)
	assert.Equal(t, model.ContractActive, c.Status)
	require.Len(t, rows, 12)

	stored, err := s.ListPayments(ctx, store.PaymentFilter{ContractID: &c.ID})
	require.NoError(t, err)
	require.Len(t, stored, 12)
	for i, p := range stored {
		assert.Equal(t, rows[i].ID, p.ID)
		assert.Equal(t, c.RentValue, p.Value)
		assert.False(t, p.IsPaid)
	}

	entries, _, total, err := feed.QueryByEntity(ctx, "contract", strconv.FormatInt(c.ID, 10), activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	got := []string{entries[0].EventType, entries[1].EventType}
	assert.ElementsMatch(t, []string{event.TypeContractCreated, event.TypeInstallmentsGenerated}, got)
}

func TestGenerator_CreateContractValidation(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	f := seed(t, s)
	g := NewGenerator(s, nil, nil, nil)

	cases := map[string]func(c *model.Contract){
		"duration":     func(c *model.Contract) { c.Duration = 0 },
		"duration_max": func(c *model.Contract) { c.Duration = 200000 },
		"payment_day":  func(c *model.Contract) { c.PaymentDay = 32 },
		"rent_value":   func(c *model.Contract) { c.RentValue = 0 },
		"property_id":  func(c *model.Contract) { c.OwnerID = f.otherOwner.ID },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			c := f.contract(6)
			mutate(c)
			_, err := g.CreateContract(ctx, c)
			var ae *apperror.Error
			require.True(t, errors.As(err, &ae), "got %v", err)
			assert.Equal(t, apperror.CodeValidation, ae.Code)
			key := field
			if field == "rent_value" {
				key = "rent_value_cents"
			}
			assert.Contains(t, ae.Fields, key)
		})
	}

	contracts, err := s.ListContracts(ctx, store.ContractFilter{})
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestGenerator_CreateContractUnknownProperty(t *testing.T) {
	s := store.NewMemoryStore()
	f := seed(t, s)
	c := f.contract(3)
	c.PropertyID = 999
	_, err := NewGenerator(s, nil, nil, nil).CreateContract(context.Background(), c)
	assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
}

// failingStore fails the batch insert of installments.
type failingStore struct {
	store.Store
}

func (failingStore) CreatePayments(context.Context, []*model.Payment) error {
	return errors.New("disk full")
}

func TestGenerator_GenerateIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	f := seed(t, mem)
	c := f.contract(3)
	require.NoError(t, mem.CreateContract(ctx, c, nil))

	_, err := NewGenerator(failingStore{mem}, nil, nil, nil).Generate(ctx, c)
	require.Error(t, err)
	rows, err := mem.ListPayments(ctx, store.PaymentFilter{ContractID: &c.ID})
	require.NoError(t, err)
	assert.Empty(t, rows)

	generated, err := NewGenerator(mem, nil, nil, nil).Generate(ctx, c)
	require.NoError(t, err)
	assert.Len(t, generated, 3)
}

func TestGenerator_GenerateUnknownContract(t *testing.T) {
	_, err := NewGenerator(store.NewMemoryStore(), nil, nil, nil).
		Generate(context.Background(), &model.Contract{ID: 77, Duration: 2})
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}
