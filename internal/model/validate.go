package model

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/rentaldesk/rentals/internal/apperror"
)

// NormalizeDocument strips punctuation from a CPF/CNPJ so that
// "123.456.789-09" and "12345678909" compare equal.
func NormalizeDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		if unicode.IsDigit(r) || unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func checkEmail(f apperror.Fields, field, email string) {
	if email == "" {
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		f.Add(field, "invalid email")
	}
}

// Validate checks the owner's required fields.
func (o *Owner) Validate() error {
	f := apperror.Fields{}
	if strings.TrimSpace(o.Name) == "" {
		f.Add("name", "required")
	}
	if NormalizeDocument(o.Document) == "" {
		f.Add("document", "required")
	}
	checkEmail(f, "email", o.Email)
	return f.Err()
}

// Validate checks the tenant's required fields and guarantor.
func (t *Tenant) Validate() error {
	f := apperror.Fields{}
	if strings.TrimSpace(t.Name) == "" {
		f.Add("name", "required")
	}
	if NormalizeDocument(t.Document) == "" {
		f.Add("document", "required")
	}
	checkEmail(f, "email", t.Email)
	if g := t.Guarantor; g != nil {
		if strings.TrimSpace(g.Name) == "" {
			f.Add("guarantor.name", "required")
		}
		if NormalizeDocument(g.Document) == "" {
			f.Add("guarantor.document", "required")
		}
		checkEmail(f, "guarantor.email", g.Email)
	}
	return f.Err()
}

// Validate checks the property's type, owner and rent.
func (p *Property) Validate() error {
	f := apperror.Fields{}
	if p.OwnerID <= 0 {
		f.Add("owner_id", "required")
	}
	if !p.Type.Valid() {
		f.Add("type", "must be one of apartment, house, commercial, land")
	}
	if p.RentValue < 0 {
		f.Add("rent_value_cents", "must not be negative")
	}
	return f.Err()
}

// MaxContractMonths bounds a contract's duration, and so the number of
// installments generated for it.
const MaxContractMonths = 600

// Validate checks the contract terms. EndDate is derived, not validated.
func (c *Contract) Validate() error {
	f := apperror.Fields{}
	if c.OwnerID <= 0 {
		f.Add("owner_id", "required")
	}
	if c.TenantID <= 0 {
		f.Add("tenant_id", "required")
	}
	if c.PropertyID <= 0 {
		f.Add("property_id", "required")
	}
	if c.StartDate.IsZero() {
		f.Add("start_date", "required")
	}
	if c.Duration < 1 || c.Duration > MaxContractMonths {
		f.Add("duration", fmt.Sprintf("must be between 1 and %d months", MaxContractMonths))
	}
	if c.PaymentDay < 1 || c.PaymentDay > 31 {
		f.Add("payment_day", "must be between 1 and 31")
	}
	if c.RentValue <= 0 {
		f.Add("rent_value_cents", "must be positive")
	}
	switch c.Status {
	case ContractActive, ContractPending, ContractClosed:
	default:
		f.Add("status", "must be one of active, pending, closed")
	}
	return f.Err()
}

// Validate checks the user's identity fields.
func (u *User) Validate() error {
	f := apperror.Fields{}
	if strings.TrimSpace(u.Username) == "" {
		f.Add("username", "required")
	}
	if u.PasswordHash == "" {
		f.Add("password", "required")
	}
	if u.Role != RoleAdmin && u.Role != RoleUser {
		f.Add("role", "must be admin or user")
	}
	checkEmail(f, "email", u.Email)
	return f.Err()
}
