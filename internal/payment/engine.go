// Package payment moves installments through their lifecycle: scheduled,
// paid, and deleted into the archive ledger.
package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/event"
	"github.com/rentaldesk/rentals/internal/metrics"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// MarkPaidInput carries the values persisted when an installment is paid.
// The engine stores Interest and LateFee as given; callers wanting the
// recommended charges obtain them from Quote first.
type MarkPaidInput struct {
	Method        string
	ReceiptNumber string
	Interest      types.Cents
	LateFee       types.Cents
	PaidBy        *int64
}

// Patch holds the mutable fields of an unpaid installment. Nil fields are
// left unchanged.
type Patch struct {
	DueDate      *time.Time
	Value        *types.Cents
	Observations *string
}

// Quote is the amount due on an installment if paid on AsOf.
type Quote struct {
	PaymentID int64       `json:"payment_id"`
	DueDate   time.Time   `json:"due_date"`
	AsOf      time.Time   `json:"as_of"`
	Value     types.Cents `json:"value_cents"`
	Charges
	Total types.Cents `json:"total_cents"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, which decides the payment date.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPolicy replaces DefaultPolicy for quotes.
func WithPolicy(p LateFeePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// Engine applies lifecycle operations to installments.
type Engine struct {
	store    store.Store
	recorder event.Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	policy   LateFeePolicy
	now      func() time.Time
}

// NewEngine creates an Engine. recorder and m may be nil.
func NewEngine(s store.Store, recorder event.Recorder, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Engine {
	if recorder == nil {
		recorder = event.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:    s,
		recorder: recorder,
		metrics:  m,
		logger:   logger.Named("payment"),
		policy:   DefaultPolicy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the late-fee policy used by Quote.
func (e *Engine) Policy() LateFeePolicy {
	return e.policy
}

// Today is the current date according to the engine's clock.
func (e *Engine) Today() time.Time {
	return types.Day(e.now())
}

// MarkPaid moves a scheduled installment to paid, dated today. It fails
// with CONFLICT when the installment is already paid.
func (e *Engine) MarkPaid(ctx context.Context, id int64, in MarkPaidInput) (*model.Payment, error) {
	f := apperror.Fields{}
	in.Method = strings.TrimSpace(in.Method)
	if in.Method == "" {
		f.Add("payment_method", "required")
	}
	if in.Interest < 0 {
		f.Add("interest_amount_cents", "must not be negative")
	}
	if in.LateFee < 0 {
		f.Add("late_payment_fee_cents", "must not be negative")
	}
	if err := f.Err(); err != nil {
		return nil, err
	}

	p, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateTransition(model.ValidPaymentTransitions, string(p.State()), string(model.PaymentPaid)); err != nil {
		return nil, err
	}

	today := e.Today()
	receipt := strings.TrimSpace(in.ReceiptNumber)
	if receipt == "" {
		receipt = ReceiptNumber(p.ContractID, p.ID, today)
	}
	paid, err := e.store.MarkPaid(ctx, id, model.PaidDetails{
		PaymentDate:    today,
		PaymentMethod:  in.Method,
		ReceiptNumber:  receipt,
		InterestAmount: in.Interest,
		LatePaymentFee: in.LateFee,
	})
	if err != nil {
		return nil, err
	}

	charges := paid.InterestAmount + paid.LatePaymentFee
	e.metrics.PaymentPaid(int64(charges))
	e.logger.Info("payment marked paid",
		zap.Int64("payment_id", paid.ID),
		zap.Int64("contract_id", paid.ContractID),
		zap.Stringer("total", paid.Total()),
		zap.String("method", in.Method))
	e.record(ctx, event.NewPaymentPaid(event.PaymentPaidPayload{
		PaymentID:      paid.ID,
		ContractID:     paid.ContractID,
		DueDate:        paid.DueDate,
		PaymentDate:    today,
		Value:          paid.Value,
		InterestAmount: paid.InterestAmount,
		LatePaymentFee: paid.LatePaymentFee,
		PaymentMethod:  in.Method,
		ReceiptNumber:  receipt,
		PaidBy:         in.PaidBy,
	}))
	return paid, nil
}

// ReceiptNumber builds the receipt identifier used when the payer supplies
// none.
func ReceiptNumber(contractID, paymentID int64, on time.Time) string {
	return fmt.Sprintf("REC-%d-%d-%s", contractID, paymentID, on.Format("20060102"))
}

// Quote applies the engine's policy to installment id as of today.
func (e *Engine) Quote(ctx context.Context, id int64) (*Quote, error) {
	p, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	asOf := e.Today()
	q := &Quote{PaymentID: p.ID, DueDate: p.DueDate, AsOf: asOf, Value: p.Value}
	if p.IsPaid {
		// Paid installments quote what was actually charged.
		q.Charges = Charges{
			DaysLate: max(0, types.DaysBetween(p.DueDate, *p.PaymentDate)),
			LateFee:  p.LatePaymentFee,
			Interest: p.InterestAmount,
		}
		q.AsOf = *p.PaymentDate
	} else {
		q.Charges = e.policy.Apply(p.Value, p.DueDate, asOf)
	}
	q.Total = q.Value + q.Charges.Total()
	return q, nil
}

// Update rewrites the due date, value or observations of a scheduled
// installment. Paid installments are immutable.
func (e *Engine) Update(ctx context.Context, id int64, patch Patch) (*model.Payment, error) {
	p, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsPaid {
		return nil, apperror.Conflict(fmt.Sprintf("payment %d is already paid", id))
	}
	if patch.DueDate != nil {
		p.DueDate = types.Day(*patch.DueDate)
	}
	if patch.Value != nil {
		if *patch.Value <= 0 {
			return nil, apperror.Validation("value_cents", "must be positive")
		}
		p.Value = *patch.Value
	}
	if patch.Observations != nil {
		p.Observations = *patch.Observations
	}
	if err := e.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete archives installment id into the deleted-payment ledger, stamped
// with the acting user, and removes it. Archive and removal happen
// together or not at all.
func (e *Engine) Delete(ctx context.Context, id int64, actingUserID *int64) (*model.DeletedPayment, error) {
	p, err := e.store.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateTransition(model.ValidPaymentTransitions, string(p.State()), string(model.PaymentDeleted)); err != nil {
		return nil, err
	}
	archived, err := e.store.ArchivePayment(ctx, id, actingUserID, e.now().UTC())
	if err != nil {
		return nil, err
	}

	e.metrics.PaymentDeleted(1)
	e.logger.Info("payment deleted",
		zap.Int64("payment_id", id),
		zap.Int64("deleted_payment_id", archived.ID),
		zap.Bool("was_paid", archived.IsPaid))
	e.record(ctx, event.NewPaymentDeleted(event.PaymentDeletedPayload{
		PaymentID:        id,
		DeletedPaymentID: archived.ID,
		ContractID:       archived.ContractID,
		Value:            archived.Value,
		WasPaid:          archived.IsPaid,
		DeletedBy:        actingUserID,
	}))
	return archived, nil
}

// DeleteContract archives every installment of contract id under the
// acting user and removes the contract.
func (e *Engine) DeleteContract(ctx context.Context, id int64, actingUserID *int64) error {
	c, err := e.store.GetContract(ctx, id)
	if err != nil {
		return err
	}
	rows, err := e.store.ListPayments(ctx, store.PaymentFilter{ContractID: &id})
	if err != nil {
		return err
	}
	if err := e.store.DeleteContract(ctx, id, actingUserID, e.now().UTC()); err != nil {
		return err
	}

	e.metrics.PaymentDeleted(len(rows))
	e.logger.Info("contract deleted", zap.Int64("contract_id", id), zap.Int("archived", len(rows)))
	e.record(ctx, event.NewContractDeleted(event.ContractDeletedPayload{
		ContractID:       c.ID,
		OwnerID:          c.OwnerID,
		TenantID:         c.TenantID,
		PropertyID:       c.PropertyID,
		ArchivedPayments: len(rows),
		DeletedBy:        actingUserID,
	}))
	return nil
}

func (e *Engine) record(ctx context.Context, evt event.DomainEvent) {
	if err := e.recorder.Record(ctx, evt); err != nil {
		e.logger.Error("event recording failed", zap.String("type", evt.EventType), zap.Error(err))
	}
}
