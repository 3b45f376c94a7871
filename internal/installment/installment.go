// Package installment turns a contract into its monthly payment schedule
// and creates contracts together with their installments.
package installment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/metrics"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
)

// Schedule returns the Duration installments of c. Installment i falls due
// i months after the start month on PaymentDay, clamped to the month's
// last day. Every installment carries the full rent and starts unpaid.
// Durations outside 1..model.MaxContractMonths yield no installments.
func Schedule(c model.Contract) []*model.Payment {
	if c.Duration < 1 || c.Duration > model.MaxContractMonths {
		return nil
	}
	out := make([]*model.Payment, c.Duration)
	for i := range out {
		out[i] = &model.Payment{
			ContractID:   c.ID,
			DueDate:      model.AddMonthsClamped(c.StartDate, i, c.PaymentDay),
			Value:        c.RentValue,
			Observations: fmt.Sprintf("Installment %d/%d", i+1, c.Duration),
		}
	}
	return out
}

// Generator persists contracts and their installments.
type Generator struct {
	store    store.Store
	recorder event.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewGenerator creates a Generator. recorder and m may be nil.
func NewGenerator(s store.Store, recorder event.Recorder, m *metrics.Metrics, logger *zap.Logger) *Generator {
	if recorder == nil {
		recorder = event.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{store: s, recorder: recorder, metrics: m, logger: logger.Named("installment")}
}

// Generate inserts the installments of an already persisted contract, all
// or none.
func (g *Generator) Generate(ctx context.Context, c *model.Contract) ([]*model.Payment, error) {
	if c.Duration < 1 || c.Duration > model.MaxContractMonths {
		return nil, apperror.Validation("duration", fmt.Sprintf("must be between 1 and %d months", model.MaxContractMonths))
	}
	if _, err := g.store.GetContract(ctx, c.ID); err != nil {
		return nil, err
	}
	rows := Schedule(*c)
	if err := g.store.CreatePayments(ctx, rows); err != nil {
		return nil, fmt.Errorf("generating installments for contract %d: %w", c.ID, err)
	}
	g.metrics.Installments(len(rows))
	g.record(ctx, installmentsEvent(c, rows))
	return rows, nil
}

// CreateContract validates c, derives its end date, and stores it together
// with its installments in one transaction.
func (g *Generator) CreateContract(ctx context.Context, c *model.Contract) ([]*model.Payment, error) {
	if c.Status == "" {
		c.Status = model.ContractActive
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	prop, err := g.store.GetProperty(ctx, c.PropertyID)
	if err != nil {
		if apperror.Is(err, apperror.CodeNotFound) {
			return nil, apperror.Validation("property_id", err.Error())
		}
		return nil, err
	}
	if prop.OwnerID != c.OwnerID {
		return nil, apperror.Validation("property_id", fmt.Sprintf("property %d does not belong to owner %d", prop.ID, c.OwnerID))
	}
	c.EndDate = model.ContractEnd(c.StartDate, c.Duration)

	var rows []*model.Payment
	err = g.store.CreateContract(ctx, c, func(created model.Contract) ([]*model.Payment, error) {
		rows = Schedule(created)
		return rows, nil
	})
	if err != nil {
		return nil, err
	}

	g.metrics.ContractCreated(len(rows))
	g.logger.Info("contract created",
		zap.Int64("contract_id", c.ID),
		zap.Int("installments", len(rows)),
		zap.Stringer("rent", c.RentValue))
	g.record(ctx, event.NewContractCreated(event.ContractCreatedPayload{
		ContractID: c.ID,
		OwnerID:    c.OwnerID,
		TenantID:   c.TenantID,
		PropertyID: c.PropertyID,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		Duration:   c.Duration,
		RentValue:  c.RentValue,
		PaymentDay: c.PaymentDay,
	}))
	g.record(ctx, installmentsEvent(c, rows))
	return rows, nil
}

func installmentsEvent(c *model.Contract, rows []*model.Payment) event.DomainEvent {
	p := event.InstallmentsGeneratedPayload{
		ContractID: c.ID,
		PropertyID: c.PropertyID,
		TenantID:   c.TenantID,
		Count:      len(rows),
		Value:      c.RentValue,
	}
	if len(rows) > 0 {
		p.FirstDue = rows[0].DueDate
		p.LastDue = rows[len(rows)-1].DueDate
	}
	return event.NewInstallmentsGenerated(p)
}

// record writes evt; the mutation it describes is already committed, so a
// recording failure is logged rather than returned.
func (g *Generator) record(ctx context.Context, evt event.DomainEvent) {
	if err := g.recorder.Record(ctx, evt); err != nil {
		g.logger.Error("event recording failed", zap.String("type", evt.EventType), zap.Error(err))
	}
}
