package store

import (
	"fmt"
	"strings"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/types"
)

// Input normalisation shared by every backend, applied before uniqueness
// checks so both backends agree on what counts as a duplicate.

func prepareOwner(o *model.Owner) error {
	o.Document = model.NormalizeDocument(o.Document)
	if o.Status == "" {
		o.Status = types.StatusActive
	}
	return o.Validate()
}

func prepareTenant(t *model.Tenant) error {
	t.Document = model.NormalizeDocument(t.Document)
	if t.Guarantor != nil {
		t.Guarantor.Document = model.NormalizeDocument(t.Guarantor.Document)
	}
	if t.Status == "" {
		t.Status = types.StatusActive
	}
	return t.Validate()
}

func prepareProperty(p *model.Property) error {
	if p.Status == "" {
		p.Status = types.StatusActive
	}
	return p.Validate()
}

func prepareContract(c *model.Contract) error {
	if c.Status == "" {
		c.Status = model.ContractActive
	}
	c.StartDate = types.Day(c.StartDate)
	c.EndDate = types.Day(c.EndDate)
	return c.Validate()
}

func prepareUser(u *model.User) error {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	if u.Status == "" {
		u.Status = types.StatusActive
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	return u.Validate()
}

func errDuplicateDocument() error {
	return apperror.Validation("document", "already registered")
}

func errDuplicateUsername() error {
	return apperror.Validation("username", "already taken")
}

func errMissingRef(field, entity string, id int64) error {
	return apperror.Validation(field, apperror.NotFound(entity, id).Message)
}

func errReferenced(entity string, id int64, by string) error {
	return apperror.Conflict(fmt.Sprintf("%s %d is still referenced by %s", entity, id, by))
}

func errAlreadyPaid(id int64) error {
	return apperror.Conflict(fmt.Sprintf("payment %d is already paid", id))
}
