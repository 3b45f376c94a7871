// Package document resolves the entity tuples a contract or receipt
// document is rendered from. Layout belongs to a Renderer; this package
// only gathers the data.
package document

import (
	"context"
	"fmt"
	"io"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
)

// ContractDocument is everything printed on a lease contract.
type ContractDocument struct {
	Contract *model.Contract `json:"contract"`
	Owner    *model.Owner    `json:"owner"`
	Tenant   *model.Tenant   `json:"tenant"`
	Property *model.Property `json:"property"`
}

// ReceiptDocument is everything printed on a payment receipt.
type ReceiptDocument struct {
	Payment  *model.Payment  `json:"payment"`
	Contract *model.Contract `json:"contract"`
	Owner    *model.Owner    `json:"owner"`
	Tenant   *model.Tenant   `json:"tenant"`
	Property *model.Property `json:"property"`
}

// Renderer turns a resolved document into a binary file.
type Renderer interface {
	ContentType() string
	RenderContract(w io.Writer, doc *ContractDocument) error
	RenderReceipt(w io.Writer, doc *ReceiptDocument) error
}

// Resolver loads document tuples from the store.
type Resolver struct {
	store store.Store
}

// NewResolver creates a Resolver.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Contract resolves the tuple for contract id.
func (r *Resolver) Contract(ctx context.Context, id int64) (*ContractDocument, error) {
	c, err := r.store.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, c)
}

// Receipt resolves the tuple for payment id. Only paid installments have
// a receipt.
func (r *Resolver) Receipt(ctx context.Context, paymentID int64) (*ReceiptDocument, error) {
	p, err := r.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !p.IsPaid {
		return nil, apperror.Conflict(fmt.Sprintf("payment %d is not paid", paymentID))
	}
	c, err := r.store.GetContract(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	doc, err := r.resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	return &ReceiptDocument{
		Payment:  p,
		Contract: doc.Contract,
		Owner:    doc.Owner,
		Tenant:   doc.Tenant,
		Property: doc.Property,
	}, nil
}

func (r *Resolver) resolve(ctx context.Context, c *model.Contract) (*ContractDocument, error) {
	owner, err := r.store.GetOwner(ctx, c.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("contract %d owner: %w", c.ID, err)
	}
	tenant, err := r.store.GetTenant(ctx, c.TenantID)
	if err != nil {
		return nil, fmt.Errorf("contract %d tenant: %w", c.ID, err)
	}
	prop, err := r.store.GetProperty(ctx, c.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("contract %d property: %w", c.ID, err)
	}
	return &ContractDocument{Contract: c, Owner: owner, Tenant: tenant, Property: prop}, nil
}
