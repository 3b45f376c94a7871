// Package model holds the rental entities persisted by the store.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rentaldesk/rentals/internal/types"
)

// Owner is a landlord leasing out properties.
type Owner struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Document  string        `json:"document"` // CPF/CNPJ, unique
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Address   types.Address `json:"address"`
	Status    types.Status  `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Tenant is a renter, optionally backed by a guarantor.
type Tenant struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Document  string           `json:"document"` // unique
	RG        string           `json:"rg,omitempty"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Address   types.Address    `json:"address"`
	Guarantor *types.Guarantor `json:"guarantor,omitempty"`
	Status    types.Status     `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// PropertyType enumerates the kinds of rentable property.
type PropertyType string

const (
	PropertyApartment  PropertyType = "apartment"
	PropertyHouse      PropertyType = "house"
	PropertyCommercial PropertyType = "commercial"
	PropertyLand       PropertyType = "land"
)

// Valid reports whether t is a known property type.
func (t PropertyType) Valid() bool {
	switch t {
	case PropertyApartment, PropertyHouse, PropertyCommercial, PropertyLand:
		return true
	}
	return false
}

// Property is a rentable unit owned by an Owner.
type Property struct {
	ID               int64         `json:"id"`
	OwnerID          int64         `json:"owner_id"`
	Type             PropertyType  `json:"type"`
	Address          types.Address `json:"address"`
	RentValue        types.Cents   `json:"rent_value_cents"`
	Bedrooms         *int          `json:"bedrooms,omitempty"`
	Bathrooms        *int          `json:"bathrooms,omitempty"`
	Area             *float64      `json:"area,omitempty"`
	WaterCompany     string        `json:"water_company,omitempty"`
	WaterAccount     string        `json:"water_account,omitempty"`
	EnergyCompany    string        `json:"energy_company,omitempty"`
	EnergyAccount    string        `json:"energy_account,omitempty"`
	AvailableForRent bool          `json:"available_for_rent"`
	Status           types.Status  `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ContractStatus is the lifecycle state of a lease contract.
type ContractStatus string

const (
	ContractActive  ContractStatus = "active"
	ContractPending ContractStatus = "pending"
	ContractClosed  ContractStatus = "closed"
)

// ValidContractTransitions lists the allowed contract status changes.
var ValidContractTransitions = map[string][]string{
	string(ContractPending): {string(ContractActive), string(ContractClosed)},
	string(ContractActive):  {string(ContractClosed)},
	string(ContractClosed):  {},
}

// ParseContractStatus accepts the canonical values and the Portuguese
// labels used by the legacy front end.
func ParseContractStatus(s string) (ContractStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "ativo":
		return ContractActive, nil
	case "pending", "pendente":
		return ContractPending, nil
	case "closed", "encerrado":
		return ContractClosed, nil
	}
	return "", fmt.Errorf("invalid contract status %q", s)
}

// Contract is a lease binding one owner, one tenant and one property.
type Contract struct {
	ID           int64          `json:"id"`
	OwnerID      int64          `json:"owner_id"`
	TenantID     int64          `json:"tenant_id"`
	PropertyID   int64          `json:"property_id"`
	StartDate    time.Time      `json:"start_date"`
	EndDate      time.Time      `json:"end_date"`
	Duration     int            `json:"duration"` // months
	RentValue    types.Cents    `json:"rent_value_cents"`
	PaymentDay   int            `json:"payment_day"`
	Status       ContractStatus `json:"status"`
	Observations string         `json:"observations,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ContractEnd returns start advanced by months whole months, clamped to
// the last day of the target month.
func ContractEnd(start time.Time, months int) time.Time {
	return AddMonthsClamped(types.Day(start), months, start.Day())
}

// AddMonthsClamped returns the date months after t's month with the given
// day of month, clamped to the month's last day.
func AddMonthsClamped(t time.Time, months, day int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// Payment is one monthly installment of a contract.
type Payment struct {
	ID             int64       `json:"id"`
	ContractID     int64       `json:"contract_id"`
	DueDate        time.Time   `json:"due_date"`
	Value          types.Cents `json:"value_cents"`
	IsPaid         bool        `json:"is_paid"`
	PaymentDate    *time.Time  `json:"payment_date"`
	InterestAmount types.Cents `json:"interest_amount_cents"`
	LatePaymentFee types.Cents `json:"late_payment_fee_cents"`
	PaymentMethod  *string     `json:"payment_method"`
	ReceiptNumber  *string     `json:"receipt_number"`
	Observations   string      `json:"observations,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Total is the installment value plus interest and late fee.
func (p Payment) Total() types.Cents {
	return p.Value + p.InterestAmount + p.LatePaymentFee
}

// PaidDetails carries the values persisted when an installment is paid.
type PaidDetails struct {
	PaymentDate    time.Time
	PaymentMethod  string
	ReceiptNumber  string
	InterestAmount types.Cents
	LatePaymentFee types.Cents
}

// DeletedPayment is the immutable audit copy of a removed payment.
type DeletedPayment struct {
	ID                int64       `json:"id"`
	OriginalID        int64       `json:"original_id"`
	ContractID        int64       `json:"contract_id"`
	DueDate           time.Time   `json:"due_date"`
	Value             types.Cents `json:"value_cents"`
	IsPaid            bool        `json:"is_paid"`
	PaymentDate       *time.Time  `json:"payment_date"`
	InterestAmount    types.Cents `json:"interest_amount_cents"`
	LatePaymentFee    types.Cents `json:"late_payment_fee_cents"`
	PaymentMethod     *string     `json:"payment_method"`
	ReceiptNumber     *string     `json:"receipt_number"`
	Observations      string      `json:"observations,omitempty"`
	DeletedBy         *int64      `json:"deleted_by"`
	DeletedAt         time.Time   `json:"deleted_at"`
	OriginalCreatedAt time.Time   `json:"original_created_at"`
}

// Archive copies p into a DeletedPayment stamped with the acting user.
func Archive(p Payment, deletedBy *int64, at time.Time) DeletedPayment {
	return DeletedPayment{
		OriginalID:        p.ID,
		ContractID:        p.ContractID,
		DueDate:           p.DueDate,
		Value:             p.Value,
		IsPaid:            p.IsPaid,
		PaymentDate:       p.PaymentDate,
		InterestAmount:    p.InterestAmount,
		LatePaymentFee:    p.LatePaymentFee,
		PaymentMethod:     p.PaymentMethod,
		ReceiptNumber:     p.ReceiptNumber,
		Observations:      p.Observations,
		DeletedBy:         deletedBy,
		DeletedAt:         at,
		OriginalCreatedAt: p.CreatedAt,
	}
}

// Role gates admin-only operations.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is an operator of the system.
type User struct {
	ID           int64        `json:"id"`
	Username     string       `json:"username"`
	PasswordHash string       `json:"-"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	Role         Role         `json:"role"`
	Status       types.Status `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	LastLogin    *time.Time   `json:"last_login"`
}

// IsAdmin reports whether u has the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
