package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/types"
)

// MemoryStore implements Store using in-memory maps guarded by a single
// mutex. Every compound operation runs under the write lock, which gives
// the same all-or-nothing behaviour as SQLStore's transactions.
// Intended for demos and testing; it needs no database.
type MemoryStore struct {
	mu sync.RWMutex

	seq             map[string]int64
	owners          map[int64]model.Owner
	tenants         map[int64]model.Tenant
	properties      map[int64]model.Property
	contracts       map[int64]model.Contract
	payments        map[int64]model.Payment
	deletedPayments map[int64]model.DeletedPayment
	users           map[int64]model.User
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seq:             map[string]int64{},
		owners:          map[int64]model.Owner{},
		tenants:         map[int64]model.Tenant{},
		properties:      map[int64]model.Property{},
		contracts:       map[int64]model.Contract{},
		payments:        map[int64]model.Payment{},
		deletedPayments: map[int64]model.DeletedPayment{},
		users:           map[int64]model.User{},
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) nextID(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func now() time.Time { return time.Now().UTC() }

// sortedIDs returns the keys of m in ascending order.
func sortedIDs[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ---------------------------------------------------------------------------
// Owner
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateOwner(_ context.Context, o *model.Owner) error {
	if err := prepareOwner(o); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.owners {
		if existing.Document == o.Document {
			return errDuplicateDocument()
		}
	}
	o.ID = s.nextID("owners")
	o.CreatedAt = now()
	s.owners[o.ID] = *o
	return nil
}

func (s *MemoryStore) GetOwner(_ context.Context, id int64) (*model.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, apperror.NotFound("owner", id)
	}
	return &o, nil
}

func (s *MemoryStore) ListOwners(_ context.Context, f types.StatusFilter) ([]*model.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Owner
	for _, id := range sortedIDs(s.owners) {
		o := s.owners[id]
		if f.Match(o.Status) {
			out = append(out, &o)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateOwner(_ context.Context, o *model.Owner) error {
	if err := prepareOwner(o); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.owners[o.ID]
	if !ok {
		return apperror.NotFound("owner", o.ID)
	}
	for id, existing := range s.owners {
		if id != o.ID && existing.Document == o.Document {
			return errDuplicateDocument()
		}
	}
	o.CreatedAt = old.CreatedAt
	s.owners[o.ID] = *o
	return nil
}

func (s *MemoryStore) DeleteOwner(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[id]; !ok {
		return apperror.NotFound("owner", id)
	}
	for _, p := range s.properties {
		if p.OwnerID == id {
			return errReferenced("owner", id, "properties")
		}
	}
	for _, c := range s.contracts {
		if c.OwnerID == id {
			return errReferenced("owner", id, "contracts")
		}
	}
	delete(s.owners, id)
	return nil
}

// ---------------------------------------------------------------------------
// Tenant
// ---------------------------------------------------------------------------

func copyTenant(t model.Tenant) *model.Tenant {
	if t.Guarantor != nil {
		g := *t.Guarantor
		t.Guarantor = &g
	}
	return &t
}

func (s *MemoryStore) CreateTenant(_ context.Context, t *model.Tenant) error {
	if err := prepareTenant(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if existing.Document == t.Document {
			return errDuplicateDocument()
		}
	}
	t.ID = s.nextID("tenants")
	t.CreatedAt = now()
	s.tenants[t.ID] = *copyTenant(*t)
	return nil
}

func (s *MemoryStore) GetTenant(_ context.Context, id int64) (*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, apperror.NotFound("tenant", id)
	}
	return copyTenant(t), nil
}

func (s *MemoryStore) ListTenants(_ context.Context, f types.StatusFilter) ([]*model.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Tenant
	for _, id := range sortedIDs(s.tenants) {
		if t := s.tenants[id]; f.Match(t.Status) {
			out = append(out, copyTenant(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateTenant(_ context.Context, t *model.Tenant) error {
	if err := prepareTenant(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tenants[t.ID]
	if !ok {
		return apperror.NotFound("tenant", t.ID)
	}
	for id, existing := range s.tenants {
		if id != t.ID && existing.Document == t.Document {
			return errDuplicateDocument()
		}
	}
	t.CreatedAt = old.CreatedAt
	s.tenants[t.ID] = *copyTenant(*t)
	return nil
}

func (s *MemoryStore) DeleteTenant(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[id]; !ok {
		return apperror.NotFound("tenant", id)
	}
	for _, c := range s.contracts {
		if c.TenantID == id {
			return errReferenced("tenant", id, "contracts")
		}
	}
	delete(s.tenants, id)
	return nil
}

// ---------------------------------------------------------------------------
// Property
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateProperty(_ context.Context, p *model.Property) error {
	if err := prepareProperty(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[p.OwnerID]; !ok {
		return errMissingRef("owner_id", "owner", p.OwnerID)
	}
	p.ID = s.nextID("properties")
	p.CreatedAt = now()
	s.properties[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetProperty(_ context.Context, id int64) (*model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, apperror.NotFound("property", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListProperties(_ context.Context, f PropertyFilter) ([]*model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Property
	for _, id := range sortedIDs(s.properties) {
		p := s.properties[id]
		if !f.Status.Match(p.Status) {
			continue
		}
		if f.OwnerID != nil && p.OwnerID != *f.OwnerID {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

func (s *MemoryStore) UpdateProperty(_ context.Context, p *model.Property) error {
	if err := prepareProperty(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.properties[p.ID]
	if !ok {
		return apperror.NotFound("property", p.ID)
	}
	if _, ok := s.owners[p.OwnerID]; !ok {
		return errMissingRef("owner_id", "owner", p.OwnerID)
	}
	p.CreatedAt = old.CreatedAt
	s.properties[p.ID] = *p
	return nil
}

func (s *MemoryStore) DeleteProperty(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.properties[id]; !ok {
		return apperror.NotFound("property", id)
	}
	for _, c := range s.contracts {
		if c.PropertyID == id {
			return errReferenced("property", id, "contracts")
		}
	}
	delete(s.properties, id)
	return nil
}

// ---------------------------------------------------------------------------
// Contract
// ---------------------------------------------------------------------------

func (s *MemoryStore) checkContractRefs(c *model.Contract) error {
	if _, ok := s.owners[c.OwnerID]; !ok {
		return errMissingRef("owner_id", "owner", c.OwnerID)
	}
	if _, ok := s.tenants[c.TenantID]; !ok {
		return errMissingRef("tenant_id", "tenant", c.TenantID)
	}
	if _, ok := s.properties[c.PropertyID]; !ok {
		return errMissingRef("property_id", "property", c.PropertyID)
	}
	return nil
}

func (s *MemoryStore) CreateContract(_ context.Context, c *model.Contract, schedule ScheduleFunc) error {
	if err := prepareContract(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkContractRefs(c); err != nil {
		return err
	}

	// Reserve ids without committing so a failing schedule leaves no trace.
	seqContracts, seqPayments := s.seq["contracts"], s.seq["payments"]
	created := *c
	created.ID = s.nextID("contracts")
	created.CreatedAt = now()

	var rows []*model.Payment
	if schedule != nil {
		var err error
		rows, err = schedule(created)
		if err != nil {
			s.seq["contracts"], s.seq["payments"] = seqContracts, seqPayments
			return err
		}
	}
	stamped := make([]model.Payment, len(rows))
	for i, p := range rows {
		stamped[i] = *p
		stamped[i].ID = s.nextID("payments")
		stamped[i].ContractID = created.ID
		stamped[i].DueDate = types.Day(p.DueDate)
		stamped[i].CreatedAt = created.CreatedAt
	}

	s.contracts[created.ID] = created
	for i := range stamped {
		s.payments[stamped[i].ID] = stamped[i]
		*rows[i] = stamped[i]
	}
	*c = created
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id int64) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, apperror.NotFound("contract", id)
	}
	return &c, nil
}

func (s *MemoryStore) ListContracts(_ context.Context, f ContractFilter) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Contract
	for _, id := range sortedIDs(s.contracts) {
		c := s.contracts[id]
		if f.OwnerID != nil && c.OwnerID != *f.OwnerID {
			continue
		}
		if f.TenantID != nil && c.TenantID != *f.TenantID {
			continue
		}
		if f.PropertyID != nil && c.PropertyID != *f.PropertyID {
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

func (s *MemoryStore) UpdateContract(_ context.Context, c *model.Contract) error {
	if err := prepareContract(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.contracts[c.ID]
	if !ok {
		return apperror.NotFound("contract", c.ID)
	}
	if err := s.checkContractRefs(c); err != nil {
		return err
	}
	c.CreatedAt = old.CreatedAt
	s.contracts[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteContract(_ context.Context, id int64, deletedBy *int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[id]; !ok {
		return apperror.NotFound("contract", id)
	}
	if deletedBy != nil {
		if _, ok := s.users[*deletedBy]; !ok {
			return errMissingRef("deleted_by", "user", *deletedBy)
		}
	}
	for _, pid := range sortedIDs(s.payments) {
		if p := s.payments[pid]; p.ContractID == id {
			s.archiveLocked(p, deletedBy, at)
		}
	}
	delete(s.contracts, id)
	return nil
}

// ---------------------------------------------------------------------------
// Payment
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreatePayments(_ context.Context, rows []*model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range rows {
		if _, ok := s.contracts[p.ContractID]; !ok {
			return errMissingRef("contract_id", "contract", p.ContractID)
		}
	}
	at := now()
	for _, p := range rows {
		p.ID = s.nextID("payments")
		p.DueDate = types.Day(p.DueDate)
		p.CreatedAt = at
		s.payments[p.ID] = *p
	}
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id int64) (*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id)
	}
	return &p, nil
}

func (s *MemoryStore) ListPayments(_ context.Context, f PaymentFilter) ([]*model.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Payment
	for _, id := range sortedIDs(s.payments) {
		p := s.payments[id]
		if f.ContractID != nil && p.ContractID != *f.ContractID {
			continue
		}
		if f.IsPaid != nil && p.IsPaid != *f.IsPaid {
			continue
		}
		out = append(out, &p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

func (s *MemoryStore) UpdatePayment(_ context.Context, p *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.payments[p.ID]
	if !ok {
		return apperror.NotFound("payment", p.ID)
	}
	if old.IsPaid {
		return errAlreadyPaid(p.ID)
	}
	old.DueDate = types.Day(p.DueDate)
	old.Value = p.Value
	old.Observations = p.Observations
	s.payments[p.ID] = old
	*p = old
	return nil
}

func (s *MemoryStore) MarkPaid(_ context.Context, id int64, d model.PaidDetails) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id)
	}
	if p.IsPaid {
		return nil, errAlreadyPaid(id)
	}
	paidAt := types.Day(d.PaymentDate)
	method, receipt := d.PaymentMethod, d.ReceiptNumber
	p.IsPaid = true
	p.PaymentDate = &paidAt
	p.PaymentMethod = &method
	p.ReceiptNumber = &receipt
	p.InterestAmount = d.InterestAmount
	p.LatePaymentFee = d.LatePaymentFee
	s.payments[id] = p
	return &p, nil
}

func (s *MemoryStore) archiveLocked(p model.Payment, deletedBy *int64, at time.Time) model.DeletedPayment {
	d := model.Archive(p, deletedBy, at.UTC())
	d.ID = s.nextID("deleted_payments")
	s.deletedPayments[d.ID] = d
	delete(s.payments, p.ID)
	return d
}

func (s *MemoryStore) ArchivePayment(_ context.Context, id int64, deletedBy *int64, at time.Time) (*model.DeletedPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, apperror.NotFound("payment", id)
	}
	if deletedBy != nil {
		if _, ok := s.users[*deletedBy]; !ok {
			return nil, errMissingRef("deleted_by", "user", *deletedBy)
		}
	}
	d := s.archiveLocked(p, deletedBy, at)
	return &d, nil
}

func (s *MemoryStore) ListDeletedPayments(_ context.Context) ([]*model.DeletedPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.DeletedPayment, 0, len(s.deletedPayments))
	for _, id := range sortedIDs(s.deletedPayments) {
		d := s.deletedPayments[id]
		out = append(out, &d)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// User
// ---------------------------------------------------------------------------

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return errDuplicateUsername()
		}
	}
	u.ID = s.nextID("users")
	u.CreatedAt = now()
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, apperror.New(apperror.CodeNotFound, "user "+username+" not found")
}

func (s *MemoryStore) ListUsers(_ context.Context) ([]*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.User, 0, len(s.users))
	for _, id := range sortedIDs(s.users) {
		u := s.users[id]
		out = append(out, &u)
	}
	return out, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, u *model.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, existing := range s.users {
		if id != u.ID && strings.EqualFold(existing.Username, u.Username) {
			return errDuplicateUsername()
		}
	}
	u.CreatedAt = old.CreatedAt
	u.LastLogin = old.LastLogin
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	for _, d := range s.deletedPayments {
		if d.DeletedBy != nil && *d.DeletedBy == id {
			return errReferenced("user", id, "deleted payments")
		}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) TouchLogin(_ context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	t := at.UTC()
	u.LastLogin = &t
	s.users[id] = u
	return nil
}

func (s *MemoryStore) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}
