// Package store persists the rental entities. Store is implemented by
// MemoryStore (demos and tests) and SQLStore (SQLite or Postgres through
// ent's SQL dialect layer); both honour the same contract, exercised by a
// shared test suite.
package store

import (
	"context"
	"time"

	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/types"
)

// ScheduleFunc builds the installments of a freshly inserted contract.
// It runs inside the contract's insert transaction; an error aborts the
// whole creation.
type ScheduleFunc func(c model.Contract) ([]*model.Payment, error)

// PropertyFilter narrows ListProperties.
type PropertyFilter struct {
	Status  types.StatusFilter
	OwnerID *int64
}

// ContractFilter narrows ListContracts.
type ContractFilter struct {
	OwnerID    *int64
	TenantID   *int64
	PropertyID *int64
}

// PaymentFilter narrows ListPayments.
type PaymentFilter struct {
	ContractID *int64
	IsPaid     *bool
}

// Store is the persistence contract shared by every backend.
//
// Create methods assign a monotonically increasing id and stamp CreatedAt
// on the passed entity. Get and Update return a NOT_FOUND apperror when the
// id does not exist. Deletes are hard deletes and fail with CONFLICT while
// other rows still reference the entity.
type Store interface {
	CreateOwner(ctx context.Context, o *model.Owner) error
	GetOwner(ctx context.Context, id int64) (*model.Owner, error)
	ListOwners(ctx context.Context, f types.StatusFilter) ([]*model.Owner, error)
	UpdateOwner(ctx context.Context, o *model.Owner) error
	DeleteOwner(ctx context.Context, id int64) error

	CreateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, id int64) (*model.Tenant, error)
	ListTenants(ctx context.Context, f types.StatusFilter) ([]*model.Tenant, error)
	UpdateTenant(ctx context.Context, t *model.Tenant) error
	DeleteTenant(ctx context.Context, id int64) error

	CreateProperty(ctx context.Context, p *model.Property) error
	GetProperty(ctx context.Context, id int64) (*model.Property, error)
	ListProperties(ctx context.Context, f PropertyFilter) ([]*model.Property, error)
	UpdateProperty(ctx context.Context, p *model.Property) error
	DeleteProperty(ctx context.Context, id int64) error

	// CreateContract inserts c and the installments returned by schedule
	// atomically: either the contract and every installment exist
	// afterwards, or none of them do.
	CreateContract(ctx context.Context, c *model.Contract, schedule ScheduleFunc) error
	GetContract(ctx context.Context, id int64) (*model.Contract, error)
	ListContracts(ctx context.Context, f ContractFilter) ([]*model.Contract, error)
	UpdateContract(ctx context.Context, c *model.Contract) error
	// DeleteContract archives every live installment of the contract into
	// the deleted-payment ledger and removes the contract, atomically.
	DeleteContract(ctx context.Context, id int64, deletedBy *int64, at time.Time) error

	// CreatePayments inserts all rows or none.
	CreatePayments(ctx context.Context, rows []*model.Payment) error
	GetPayment(ctx context.Context, id int64) (*model.Payment, error)
	// ListPayments orders by due date, then id.
	ListPayments(ctx context.Context, f PaymentFilter) ([]*model.Payment, error)
	// UpdatePayment rewrites due date, value and observations of an unpaid
	// installment. Paid installments are immutable (CONFLICT).
	UpdatePayment(ctx context.Context, p *model.Payment) error
	// MarkPaid flips an unpaid installment to paid with the given details.
	// It fails with CONFLICT when the installment is already paid.
	MarkPaid(ctx context.Context, id int64, d model.PaidDetails) (*model.Payment, error)
	// ArchivePayment copies the installment into the deleted-payment
	// ledger and removes the live row, atomically.
	ArchivePayment(ctx context.Context, id int64, deletedBy *int64, at time.Time) (*model.DeletedPayment, error)
	ListDeletedPayments(ctx context.Context) ([]*model.DeletedPayment, error)

	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	DeleteUser(ctx context.Context, id int64) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
	CountUsers(ctx context.Context) (int, error)

	Close() error
}
