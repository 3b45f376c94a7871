// Package types provides the value types shared by the rental entities:
// money in minor units, structured addresses, guarantors and status enums.
// Structured values are stored as JSON text columns by the SQL store.
package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cents represents a monetary amount in minor units (centavos) to
// eliminate floating-point errors in rent and fee arithmetic.
type Cents int64

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats the amount in major units with two decimal places.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// CentsFromDecimal converts a major-unit amount to Cents, rounding half
// away from zero.
func CentsFromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

// Status is the two-state lifecycle flag for owners, tenants, properties
// and users.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus accepts the canonical values.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusInactive:
		return StatusInactive, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// UnmarshalJSON rejects anything other than active or inactive.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// StatusFilter selects rows by Status in list queries. The zero value
// selects active rows only.
type StatusFilter int

const (
	FilterActive StatusFilter = iota
	FilterInactive
	FilterAll
)

// ParseStatusFilter maps a query-string value to a StatusFilter.
// Empty input yields FilterActive.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch strings.ToLower(s) {
	case "", "active", "true":
		return FilterActive, nil
	case "inactive", "false":
		return FilterInactive, nil
	case "all":
		return FilterAll, nil
	}
	return FilterActive, fmt.Errorf("invalid status filter %q", s)
}

// Match reports whether a row with status s passes the filter.
func (f StatusFilter) Match(s Status) bool {
	switch f {
	case FilterAll:
		return true
	case FilterInactive:
		return s == StatusInactive
	default:
		return s == StatusActive
	}
}

// Address represents a Brazilian postal address.
type Address struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`    // 2-letter UF code
	ZipCode      string `json:"zip_code"` // CEP, digits only
}

// IsZero reports whether no address field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Value implements driver.Valuer; the address is stored as JSON text.
func (a Address) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON text column.
func (a *Address) Scan(src any) error {
	return scanJSON(src, a)
}

// ParseAddress decodes the stored text form of an address. Empty input
// yields the zero Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if strings.TrimSpace(s) == "" {
		return a, nil
	}
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return Address{}, fmt.Errorf("parsing address: %w", err)
	}
	return a, nil
}

// Format renders the address on a single line for documents.
func (a Address) Format() string {
	var b strings.Builder
	b.WriteString(a.Street)
	if a.Number != "" {
		b.WriteString(", " + a.Number)
	}
	if a.Complement != "" {
		b.WriteString(" - " + a.Complement)
	}
	if a.Neighborhood != "" {
		b.WriteString(", " + a.Neighborhood)
	}
	if a.City != "" {
		b.WriteString(", " + a.City)
	}
	if a.State != "" {
		b.WriteString("/" + a.State)
	}
	if a.ZipCode != "" {
		b.WriteString(" - CEP " + a.ZipCode)
	}
	return b.String()
}

// Guarantor is a third party financially responsible for a tenant.
type Guarantor struct {
	Name     string  `json:"name"`
	Document string  `json:"document"`
	Phone    string  `json:"phone,omitempty"`
	Email    string  `json:"email,omitempty"`
	Address  Address `json:"address"`
}

// Value implements driver.Valuer; the guarantor is stored as JSON text.
func (g Guarantor) Value() (driver.Value, error) {
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the JSON text column.
func (g *Guarantor) Scan(src any) error {
	return scanJSON(src, g)
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

// Day truncates t to midnight UTC of its calendar date. Due dates and
// contract dates are compared at day granularity.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ─── Activity Types ─────────────────────────────────────────────────────────

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}

// ActivityEntry is a secondary index entry over the domain event log,
// keyed by a referenced entity. One event produces multiple entries.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "contract", "payment", "registry"
	Weight            string          `json:"weight"`   // "critical", "major", "minor", "info"
	Actor             string          `json:"actor,omitempty"`
	Payload           json.RawMessage `json:"payload"`
}
