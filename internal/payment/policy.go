package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rentaldesk/rentals/internal/types"
)

// LateFeePolicy computes the charges owed on an installment paid after its
// due date: a flat fee on the value plus monthly interest prorated daily.
type LateFeePolicy struct {
	FeeRate      decimal.Decimal
	MonthlyRate  decimal.Decimal
	DaysPerMonth int
}

// DefaultPolicy charges a 2% fee and 1% interest per 30-day month.
var DefaultPolicy = LateFeePolicy{
	FeeRate:      decimal.RequireFromString("0.02"),
	MonthlyRate:  decimal.RequireFromString("0.01"),
	DaysPerMonth: 30,
}

// Charges is the outcome of applying a LateFeePolicy.
type Charges struct {
	DaysLate int         `json:"days_late"`
	LateFee  types.Cents `json:"late_payment_fee_cents"`
	Interest types.Cents `json:"interest_amount_cents"`
}

// Total is the sum of fee and interest.
func (c Charges) Total() types.Cents {
	return c.LateFee + c.Interest
}

// Apply returns the charges for value due on due and paid on paid. Dates
// compare at day granularity; paying on the due date or earlier costs
// nothing.
func (p LateFeePolicy) Apply(value types.Cents, due, paid time.Time) Charges {
	days := types.DaysBetween(due, paid)
	if days <= 0 || value <= 0 {
		return Charges{}
	}
	v := value.Decimal()
	perMonth := p.DaysPerMonth
	if perMonth <= 0 {
		perMonth = 30
	}
	interest := v.Mul(p.MonthlyRate).Mul(decimal.NewFromInt(int64(days))).Div(decimal.NewFromInt(int64(perMonth)))
	return Charges{
		DaysLate: days,
		LateFee:  types.CentsFromDecimal(v.Mul(p.FeeRate)),
		Interest: types.CentsFromDecimal(interest),
	}
}
