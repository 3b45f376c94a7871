// Package signals condenses an entity's activity feed into a standing
// summary: per-category counts, trends and escalations.
package signals

import "github.com/rentaldesk/rentals/internal/event"

// Rule escalates when at least Count matching entries occurred within
// WithinDays of the end of the window.
type Rule struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	EventType   string `json:"event_type"`
	Weight      string `json:"weight,omitempty"` // empty matches any weight
	Count       int    `json:"count"`
	WithinDays  int    `json:"within_days"`
	Escalation  string `json:"escalation"` // "watch" or "concern"
}

// Rules are evaluated in order by Aggregate.
var Rules = []Rule{
	{
		ID:          "late_payments_repeated",
		Description: "Three or more installments paid late in 180 days",
		EventType:   event.TypePaymentPaid,
		Weight:      "major",
		Count:       3,
		WithinDays:  180,
		Escalation:  "concern",
	},
	{
		ID:          "late_payment_recent",
		Description: "An installment paid late in the last 45 days",
		EventType:   event.TypePaymentPaid,
		Weight:      "major",
		Count:       1,
		WithinDays:  45,
		Escalation:  "watch",
	},
	{
		ID:          "payments_deleted",
		Description: "Two or more installments deleted in 90 days",
		EventType:   event.TypePaymentDeleted,
		Count:       2,
		WithinDays:  90,
		Escalation:  "concern",
	},
}
