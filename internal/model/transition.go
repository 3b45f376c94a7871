package model

import (
	"fmt"

	"github.com/rentaldesk/rentals/internal/apperror"
)

// PaymentState is the lifecycle state of an installment.
type PaymentState string

const (
	PaymentScheduled PaymentState = "scheduled"
	PaymentPaid      PaymentState = "paid"
	PaymentDeleted   PaymentState = "deleted"
)

// ValidPaymentTransitions lists the allowed installment state changes.
// There is no way back from paid.
var ValidPaymentTransitions = map[string][]string{
	string(PaymentScheduled): {string(PaymentPaid), string(PaymentDeleted)},
	string(PaymentPaid):      {string(PaymentDeleted)},
	string(PaymentDeleted):   {},
}

// State derives the lifecycle state of a live installment.
func (p Payment) State() PaymentState {
	if p.IsPaid {
		return PaymentPaid
	}
	return PaymentScheduled
}

// ValidateTransition checks whether moving from current to target is
// allowed by transitions. A disallowed move is a CONFLICT.
func ValidateTransition(transitions map[string][]string, current, target string) error {
	allowed, ok := transitions[current]
	if !ok {
		return apperror.Conflict(fmt.Sprintf("unknown current state: %s", current))
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return apperror.Conflict(fmt.Sprintf("transition from %q to %q is not allowed", current, target))
}
