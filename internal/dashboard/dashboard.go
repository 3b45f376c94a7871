// Package dashboard derives the summary counters shown on the landing
// page from a fresh snapshot of contracts and payments.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// ExpiringWindow is how far ahead a contract end date counts as expiring.
const ExpiringWindow = 30 * 24 * time.Hour

// Summary holds the dashboard counters.
type Summary struct {
	ExpiredContracts  int         `json:"expired_contracts"`
	ExpiringContracts int         `json:"expiring_contracts"`
	TotalContracts    int         `json:"total_contracts"`
	PendingPayments   int         `json:"pending_payments"`
	OverduePayments   int         `json:"overdue_payments"`
	OverdueValue      types.Cents `json:"overdue_value_cents"`
	ExpiringSoon      []int64     `json:"expiring_soon"`
	AsOf              time.Time   `json:"as_of"`
}

// Summarize computes the counters as of today. Dates compare at day
// granularity.
//
//   - expired: not closed, end date before today
//   - expiring: not closed, end date within today..today+30 days
//   - total: active
//   - pending: unpaid, due after today
//   - overdue: unpaid, due today or earlier
func Summarize(contracts []*model.Contract, payments []*model.Payment, today time.Time) Summary {
	today = types.Day(today)
	horizon := today.Add(ExpiringWindow)
	s := Summary{AsOf: today, ExpiringSoon: []int64{}}

	for _, c := range contracts {
		if c.Status == model.ContractActive {
			s.TotalContracts++
		}
		if c.Status == model.ContractClosed {
			continue
		}
		end := types.Day(c.EndDate)
		switch {
		case end.Before(today):
			s.ExpiredContracts++
		case !end.After(horizon):
			s.ExpiringContracts++
			s.ExpiringSoon = append(s.ExpiringSoon, c.ID)
		}
	}

	for _, p := range payments {
		if p.IsPaid {
			continue
		}
		if types.Day(p.DueDate).After(today) {
			s.PendingPayments++
			continue
		}
		s.OverduePayments++
		s.OverdueValue += p.Value
	}
	return s
}

// Service reads a snapshot from the store on every call.
type Service struct {
	store store.Store
	now   func() time.Time
}

// NewService creates a Service. now defaults to time.Now.
func NewService(s store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, now: now}
}

// Summary computes the dashboard counters over the current store contents.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	contracts, err := s.store.ListContracts(ctx, store.ContractFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: listing contracts: %w", err)
	}
	payments, err := s.store.ListPayments(ctx, store.PaymentFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: listing payments: %w", err)
	}
	return Summarize(contracts, payments, s.now()), nil
}
