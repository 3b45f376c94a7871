// Package event defines the domain events of the rental core and records
// them into the activity feed.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rentaldesk/rentals/internal/types"
)

// Event types emitted by the rental core.
const (
	TypeContractCreated       = "contract_created"
	TypeContractDeleted       = "contract_deleted"
	TypeInstallmentsGenerated = "installments_generated"
	TypePaymentPaid           = "payment_paid"
	TypePaymentDeleted        = "payment_deleted"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string            `json:"id"`
	EventType        string            `json:"event_type"`
	OccurredAt       time.Time         `json:"occurred_at"`
	AffectedEntities []types.SourceRef `json:"affected_entities"`
	Summary          string            `json:"summary"`
	Category         string            `json:"category"` // "contract", "payment"
	Weight           string            `json:"weight"`   // "critical", "major", "minor", "info"
	Actor            string            `json:"actor,omitempty"`
	Payload          json.RawMessage   `json:"payload"`
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func ref(entityType string, id int64, role string) types.SourceRef {
	return types.SourceRef{EntityType: entityType, EntityID: strconv.FormatInt(id, 10), Role: role}
}

func actor(userID *int64) string {
	if userID == nil {
		return ""
	}
	return "user:" + strconv.FormatInt(*userID, 10)
}

// ── Contract events ─────────────────────────────────────────────────────────

// ContractCreatedPayload carries event-specific data for ContractCreated.
type ContractCreatedPayload struct {
	ContractID int64       `json:"contract_id"`
	OwnerID    int64       `json:"owner_id"`
	TenantID   int64       `json:"tenant_id"`
	PropertyID int64       `json:"property_id"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	Duration   int         `json:"duration"`
	RentValue  types.Cents `json:"rent_value_cents"`
	PaymentDay int         `json:"payment_day"`
}

func NewContractCreated(p ContractCreatedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeContractCreated,
		OccurredAt: time.Now().UTC(),
		AffectedEntities: []types.SourceRef{
			ref("contract", p.ContractID, "subject"),
			ref("property", p.PropertyID, "context"),
			ref("owner", p.OwnerID, "related"),
			ref("tenant", p.TenantID, "related"),
		},
		Summary:  fmt.Sprintf("Contract %d created for %d months at %s", p.ContractID, p.Duration, p.RentValue),
		Category: "contract",
		Weight:   "major",
		Payload:  mustJSON(p),
	}
}

// ContractDeletedPayload carries event-specific data for ContractDeleted.
type ContractDeletedPayload struct {
	ContractID       int64  `json:"contract_id"`
	OwnerID          int64  `json:"owner_id"`
	TenantID         int64  `json:"tenant_id"`
	PropertyID       int64  `json:"property_id"`
	ArchivedPayments int    `json:"archived_payments"`
	DeletedBy        *int64 `json:"deleted_by,omitempty"`
}

func NewContractDeleted(p ContractDeletedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeContractDeleted,
		OccurredAt: time.Now().UTC(),
		AffectedEntities: []types.SourceRef{
			ref("contract", p.ContractID, "subject"),
			ref("property", p.PropertyID, "context"),
			ref("owner", p.OwnerID, "related"),
			ref("tenant", p.TenantID, "related"),
		},
		Summary:  fmt.Sprintf("Contract %d deleted, %d installments archived", p.ContractID, p.ArchivedPayments),
		Category: "contract",
		Weight:   "critical",
		Actor:    actor(p.DeletedBy),
		Payload:  mustJSON(p),
	}
}

// InstallmentsGeneratedPayload carries event-specific data for
// InstallmentsGenerated.
type InstallmentsGeneratedPayload struct {
	ContractID int64       `json:"contract_id"`
	PropertyID int64       `json:"property_id"`
	TenantID   int64       `json:"tenant_id"`
	Count      int         `json:"count"`
	FirstDue   time.Time   `json:"first_due"`
	LastDue    time.Time   `json:"last_due"`
	Value      types.Cents `json:"value_cents"`
}

func NewInstallmentsGenerated(p InstallmentsGeneratedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypeInstallmentsGenerated,
		OccurredAt: time.Now().UTC(),
		AffectedEntities: []types.SourceRef{
			ref("contract", p.ContractID, "subject"),
			ref("property", p.PropertyID, "context"),
			ref("tenant", p.TenantID, "related"),
		},
		Summary:  fmt.Sprintf("%d installments of %s generated for contract %d", p.Count, p.Value, p.ContractID),
		Category: "payment",
		Weight:   "minor",
		Payload:  mustJSON(p),
	}
}

// ── Payment events ──────────────────────────────────────────────────────────

// PaymentPaidPayload carries event-specific data for PaymentPaid.
type PaymentPaidPayload struct {
	PaymentID      int64       `json:"payment_id"`
	ContractID     int64       `json:"contract_id"`
	DueDate        time.Time   `json:"due_date"`
	PaymentDate    time.Time   `json:"payment_date"`
	Value          types.Cents `json:"value_cents"`
	InterestAmount types.Cents `json:"interest_amount_cents"`
	LatePaymentFee types.Cents `json:"late_payment_fee_cents"`
	PaymentMethod  string      `json:"payment_method"`
	ReceiptNumber  string      `json:"receipt_number"`
	PaidBy         *int64      `json:"paid_by,omitempty"`
}

func NewPaymentPaid(p PaymentPaidPayload) DomainEvent {
	weight := "minor"
	if p.LatePaymentFee > 0 || p.InterestAmount > 0 {
		weight = "major"
	}
	total := p.Value + p.InterestAmount + p.LatePaymentFee
	return DomainEvent{
		ID:         newID(),
		EventType:  TypePaymentPaid,
		OccurredAt: time.Now().UTC(),
		AffectedEntities: []types.SourceRef{
			ref("payment", p.PaymentID, "subject"),
			ref("contract", p.ContractID, "context"),
		},
		Summary:  fmt.Sprintf("Payment %d of %s received via %s", p.PaymentID, total, p.PaymentMethod),
		Category: "payment",
		Weight:   weight,
		Actor:    actor(p.PaidBy),
		Payload:  mustJSON(p),
	}
}

// PaymentDeletedPayload carries event-specific data for PaymentDeleted.
type PaymentDeletedPayload struct {
	PaymentID        int64       `json:"payment_id"`
	DeletedPaymentID int64       `json:"deleted_payment_id"`
	ContractID       int64       `json:"contract_id"`
	Value            types.Cents `json:"value_cents"`
	WasPaid          bool        `json:"was_paid"`
	DeletedBy        *int64      `json:"deleted_by,omitempty"`
}

func NewPaymentDeleted(p PaymentDeletedPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  TypePaymentDeleted,
		OccurredAt: time.Now().UTC(),
		AffectedEntities: []types.SourceRef{
			ref("payment", p.PaymentID, "subject"),
			ref("contract", p.ContractID, "context"),
		},
		Summary:  fmt.Sprintf("Payment %d of %s deleted and archived", p.PaymentID, p.Value),
		Category: "payment",
		Weight:   "critical",
		Actor:    actor(p.DeletedBy),
		Payload:  mustJSON(p),
	}
}
