package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/dialect/sql/sqlgraph"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/types"
)

// SQLStore implements Store on a relational database through ent's SQL
// dialect layer. Compound operations run in a single transaction.
type SQLStore struct {
	drv     *entsql.Driver
	dialect string
	logger  *zap.Logger
}

// Open connects to the database named by driver ("sqlite" or "postgres")
// and returns a store over it. Migrate must be called before first use on
// an empty database.
func Open(driverName, dsn string, logger *zap.Logger) (*SQLStore, error) {
	var (
		db  *sql.DB
		err error
		d   string
	)
	switch driverName {
	case "sqlite", "sqlite3", "":
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		d = dialect.SQLite
	case "postgres", "pgx":
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		d = dialect.Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
	return NewSQLStore(db, d, logger), nil
}

// NewSQLStore wraps an open database handle. dialectName is one of the
// ent dialect constants.
func NewSQLStore(db *sql.DB, dialectName string, logger *zap.Logger) *SQLStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		drv:     entsql.OpenDB(dialectName, db),
		dialect: dialectName,
		logger:  logger.Named("store"),
	}
}

// Migrate creates or upgrades the tables.
func (s *SQLStore) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(s.drv)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	s.logger.Info("schema migrated", zap.Int("tables", len(Tables)))
	return nil
}

// Driver exposes the ent driver so other tables, such as the activity
// feed, can share the connection.
func (s *SQLStore) Driver() dialect.Driver {
	return s.drv
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.drv.Close()
}

// ─── plumbing ──────────────────────────────────────────────────────────────

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.Warn("rollback failed", zap.Error(rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// insert runs ins and returns the generated id of the single row.
func (s *SQLStore) insert(ctx context.Context, q dialect.ExecQuerier, ins *entsql.InsertBuilder) (int64, error) {
	ids, err := s.insertMany(ctx, q, ins, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// insertMany runs a multi-row insert of n rows and returns their ids in
// insertion order.
func (s *SQLStore) insertMany(ctx context.Context, q dialect.ExecQuerier, ins *entsql.InsertBuilder, n int) ([]int64, error) {
	ids := make([]int64, 0, n)
	if s.dialect == dialect.Postgres {
		ins.Returning("id")
		query, args := ins.Query()
		rows := &entsql.Rows{}
		if err := q.Query(ctx, query, args, rows); err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(ids) != n {
			return nil, fmt.Errorf("store: insert returned %d ids, want %d", len(ids), n)
		}
		return ids, nil
	}
	query, args := ins.Query()
	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return nil, err
	}
	last, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	for i := int64(n) - 1; i >= 0; i-- {
		ids = append(ids, last-i)
	}
	return ids, nil
}

// exec runs a write statement and returns the number of affected rows.
func exec(ctx context.Context, q dialect.ExecQuerier, b entsql.Querier) (int64, error) {
	query, args := b.Query()
	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// count returns the number of rows in table matching p.
func (s *SQLStore) count(ctx context.Context, q dialect.ExecQuerier, table string, p *entsql.Predicate) (int64, error) {
	sel := s.builder().Select(entsql.Count("*")).From(entsql.Table(table))
	if p != nil {
		sel.Where(p)
	}
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (s *SQLStore) exists(ctx context.Context, q dialect.ExecQuerier, table string, id int64) (bool, error) {
	n, err := s.count(ctx, q, table, entsql.EQ("id", id))
	return n > 0, err
}

// queryAll runs sel and scans each row with scan.
func queryAll[T any](ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector, scan func(*entsql.Rows) (*T, error)) ([]*T, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// queryOne returns the first row of sel or a NOT_FOUND error.
func queryOne[T any](ctx context.Context, q dialect.ExecQuerier, sel *entsql.Selector, scan func(*entsql.Rows) (*T, error), entity string, id int64) (*T, error) {
	all, err := queryAll(ctx, q, sel.Limit(1), scan)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, apperror.NotFound(entity, id)
	}
	return all[0], nil
}

// jsonArg encodes a structured value for its JSON text column.
func jsonArg(v driver.Valuer) (any, error) {
	return v.Value()
}

func statusPredicate(f types.StatusFilter) *entsql.Predicate {
	switch f {
	case types.FilterAll:
		return nil
	case types.FilterInactive:
		return entsql.EQ("status", string(types.StatusInactive))
	default:
		return entsql.EQ("status", string(types.StatusActive))
	}
}

func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperror.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperror.Wrap(err, apperror.CodeInternal, "store: "+op)
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// ─── Owner ──────────────────────────────────────────────────────────────────

var ownerColumns = []string{"id", "name", "document", "email", "phone", "address", "status", "created_at"}

func scanOwner(rows *entsql.Rows) (*model.Owner, error) {
	var o model.Owner
	if err := rows.Scan(&o.ID, &o.Name, &o.Document, &o.Email, &o.Phone, &o.Address, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return &o, nil
}

func (s *SQLStore) CreateOwner(ctx context.Context, o *model.Owner) error {
	if err := prepareOwner(o); err != nil {
		return err
	}
	addr, err := jsonArg(o.Address)
	if err != nil {
		return internal("encode address", err)
	}
	at := now()
	return s.withTx(ctx, func(tx dialect.Tx) error {
		dup, err := s.count(ctx, tx, "owners", entsql.EQ("document", o.Document))
		if err != nil {
			return internal("create owner", err)
		}
		if dup > 0 {
			return errDuplicateDocument()
		}
		id, err := s.insert(ctx, tx, s.builder().Insert("owners").
			Columns("name", "document", "email", "phone", "address", "status", "created_at").
			Values(o.Name, o.Document, o.Email, o.Phone, addr, string(o.Status), at))
		if err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return errDuplicateDocument()
			}
			return internal("create owner", err)
		}
		o.ID, o.CreatedAt = id, at
		return nil
	})
}

func (s *SQLStore) GetOwner(ctx context.Context, id int64) (*model.Owner, error) {
	sel := s.builder().Select(ownerColumns...).From(entsql.Table("owners")).Where(entsql.EQ("id", id))
	o, err := queryOne(ctx, s.drv, sel, scanOwner, "owner", id)
	return o, internal("get owner", err)
}

func (s *SQLStore) ListOwners(ctx context.Context, f types.StatusFilter) ([]*model.Owner, error) {
	sel := s.builder().Select(ownerColumns...).From(entsql.Table("owners")).OrderBy("id")
	if p := statusPredicate(f); p != nil {
		sel.Where(p)
	}
	out, err := queryAll(ctx, s.drv, sel, scanOwner)
	return out, internal("list owners", err)
}

func (s *SQLStore) UpdateOwner(ctx context.Context, o *model.Owner) error {
	if err := prepareOwner(o); err != nil {
		return err
	}
	addr, err := jsonArg(o.Address)
	if err != nil {
		return internal("encode address", err)
	}
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := queryOne(ctx, tx, s.builder().Select(ownerColumns...).From(entsql.Table("owners")).
			Where(entsql.EQ("id", o.ID)), scanOwner, "owner", o.ID)
		if err != nil {
			return internal("update owner", err)
		}
		dup, err := s.count(ctx, tx, "owners", entsql.And(entsql.EQ("document", o.Document), entsql.NEQ("id", o.ID)))
		if err != nil {
			return internal("update owner", err)
		}
		if dup > 0 {
			return errDuplicateDocument()
		}
		_, err = exec(ctx, tx, s.builder().Update("owners").
			Set("name", o.Name).
			Set("document", o.Document).
			Set("email", o.Email).
			Set("phone", o.Phone).
			Set("address", addr).
			Set("status", string(o.Status)).
			Where(entsql.EQ("id", o.ID)))
		if err != nil {
			return internal("update owner", err)
		}
		o.CreatedAt = old.CreatedAt
		return nil
	})
}

func (s *SQLStore) DeleteOwner(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "owners", id)
		if err != nil {
			return internal("delete owner", err)
		}
		if !ok {
			return apperror.NotFound("owner", id)
		}
		for _, ref := range []struct{ table, by string }{{"properties", "properties"}, {"contracts", "contracts"}} {
			n, err := s.count(ctx, tx, ref.table, entsql.EQ("owner_id", id))
			if err != nil {
				return internal("delete owner", err)
			}
			if n > 0 {
				return errReferenced("owner", id, ref.by)
			}
		}
		_, err = exec(ctx, tx, s.builder().Delete("owners").Where(entsql.EQ("id", id)))
		return internal("delete owner", err)
	})
}

// ─── Tenant ─────────────────────────────────────────────────────────────────

var tenantColumns = []string{"id", "name", "document", "rg", "email", "phone", "address", "guarantor", "status", "created_at"}

func scanTenant(rows *entsql.Rows) (*model.Tenant, error) {
	var (
		t         model.Tenant
		guarantor sql.NullString
	)
	if err := rows.Scan(&t.ID, &t.Name, &t.Document, &t.RG, &t.Email, &t.Phone, &t.Address, &guarantor, &t.Status, &t.CreatedAt); err != nil {
		return nil, err
	}
	if guarantor.Valid && strings.TrimSpace(guarantor.String) != "" {
		var g types.Guarantor
		if err := g.Scan(guarantor.String); err != nil {
			return nil, fmt.Errorf("decoding guarantor of tenant %d: %w", t.ID, err)
		}
		t.Guarantor = &g
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func tenantArgs(t *model.Tenant) (addr, guarantor any, err error) {
	if addr, err = jsonArg(t.Address); err != nil {
		return nil, nil, err
	}
	if t.Guarantor != nil {
		if guarantor, err = jsonArg(*t.Guarantor); err != nil {
			return nil, nil, err
		}
	}
	return addr, guarantor, nil
}

func (s *SQLStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if err := prepareTenant(t); err != nil {
		return err
	}
	addr, guarantor, err := tenantArgs(t)
	if err != nil {
		return internal("encode tenant", err)
	}
	at := now()
	return s.withTx(ctx, func(tx dialect.Tx) error {
		dup, err := s.count(ctx, tx, "tenants", entsql.EQ("document", t.Document))
		if err != nil {
			return internal("create tenant", err)
		}
		if dup > 0 {
			return errDuplicateDocument()
		}
		id, err := s.insert(ctx, tx, s.builder().Insert("tenants").
			Columns("name", "document", "rg", "email", "phone", "address", "guarantor", "status", "created_at").
			Values(t.Name, t.Document, t.RG, t.Email, t.Phone, addr, guarantor, string(t.Status), at))
		if err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return errDuplicateDocument()
			}
			return internal("create tenant", err)
		}
		t.ID, t.CreatedAt = id, at
		return nil
	})
}

func (s *SQLStore) GetTenant(ctx context.Context, id int64) (*model.Tenant, error) {
	sel := s.builder().Select(tenantColumns...).From(entsql.Table("tenants")).Where(entsql.EQ("id", id))
	t, err := queryOne(ctx, s.drv, sel, scanTenant, "tenant", id)
	return t, internal("get tenant", err)
}

func (s *SQLStore) ListTenants(ctx context.Context, f types.StatusFilter) ([]*model.Tenant, error) {
	sel := s.builder().Select(tenantColumns...).From(entsql.Table("tenants")).OrderBy("id")
	if p := statusPredicate(f); p != nil {
		sel.Where(p)
	}
	out, err := queryAll(ctx, s.drv, sel, scanTenant)
	return out, internal("list tenants", err)
}

func (s *SQLStore) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	if err := prepareTenant(t); err != nil {
		return err
	}
	addr, guarantor, err := tenantArgs(t)
	if err != nil {
		return internal("encode tenant", err)
	}
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := queryOne(ctx, tx, s.builder().Select(tenantColumns...).From(entsql.Table("tenants")).
			Where(entsql.EQ("id", t.ID)), scanTenant, "tenant", t.ID)
		if err != nil {
			return internal("update tenant", err)
		}
		dup, err := s.count(ctx, tx, "tenants", entsql.And(entsql.EQ("document", t.Document), entsql.NEQ("id", t.ID)))
		if err != nil {
			return internal("update tenant", err)
		}
		if dup > 0 {
			return errDuplicateDocument()
		}
		_, err = exec(ctx, tx, s.builder().Update("tenants").
			Set("name", t.Name).
			Set("document", t.Document).
			Set("rg", t.RG).
			Set("email", t.Email).
			Set("phone", t.Phone).
			Set("address", addr).
			Set("guarantor", guarantor).
			Set("status", string(t.Status)).
			Where(entsql.EQ("id", t.ID)))
		if err != nil {
			return internal("update tenant", err)
		}
		t.CreatedAt = old.CreatedAt
		return nil
	})
}

func (s *SQLStore) DeleteTenant(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "tenants", id)
		if err != nil {
			return internal("delete tenant", err)
		}
		if !ok {
			return apperror.NotFound("tenant", id)
		}
		n, err := s.count(ctx, tx, "contracts", entsql.EQ("tenant_id", id))
		if err != nil {
			return internal("delete tenant", err)
		}
		if n > 0 {
			return errReferenced("tenant", id, "contracts")
		}
		_, err = exec(ctx, tx, s.builder().Delete("tenants").Where(entsql.EQ("id", id)))
		return internal("delete tenant", err)
	})
}

// ─── Property ───────────────────────────────────────────────────────────────

var propertyColumns = []string{
	"id", "owner_id", "type", "address", "rent_value", "bedrooms", "bathrooms", "area",
	"water_company", "water_account", "energy_company", "energy_account",
	"available_for_rent", "status", "created_at",
}

func scanProperty(rows *entsql.Rows) (*model.Property, error) {
	var (
		p                   model.Property
		bedrooms, bathrooms sql.NullInt64
		area                sql.NullFloat64
	)
	if err := rows.Scan(&p.ID, &p.OwnerID, &p.Type, &p.Address, &p.RentValue, &bedrooms, &bathrooms, &area,
		&p.WaterCompany, &p.WaterAccount, &p.EnergyCompany, &p.EnergyAccount,
		&p.AvailableForRent, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Bedrooms = nullInt(bedrooms)
	p.Bathrooms = nullInt(bathrooms)
	if area.Valid {
		a := area.Float64
		p.Area = &a
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *SQLStore) CreateProperty(ctx context.Context, p *model.Property) error {
	if err := prepareProperty(p); err != nil {
		return err
	}
	addr, err := jsonArg(p.Address)
	if err != nil {
		return internal("encode address", err)
	}
	at := now()
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "owners", p.OwnerID)
		if err != nil {
			return internal("create property", err)
		}
		if !ok {
			return errMissingRef("owner_id", "owner", p.OwnerID)
		}
		id, err := s.insert(ctx, tx, s.builder().Insert("properties").
			Columns("owner_id", "type", "address", "rent_value", "bedrooms", "bathrooms", "area",
				"water_company", "water_account", "energy_company", "energy_account",
				"available_for_rent", "status", "created_at").
			Values(p.OwnerID, string(p.Type), addr, int64(p.RentValue), optInt(p.Bedrooms), optInt(p.Bathrooms), optFloat(p.Area),
				p.WaterCompany, p.WaterAccount, p.EnergyCompany, p.EnergyAccount,
				p.AvailableForRent, string(p.Status), at))
		if err != nil {
			return internal("create property", err)
		}
		p.ID, p.CreatedAt = id, at
		return nil
	})
}

func (s *SQLStore) GetProperty(ctx context.Context, id int64) (*model.Property, error) {
	sel := s.builder().Select(propertyColumns...).From(entsql.Table("properties")).Where(entsql.EQ("id", id))
	p, err := queryOne(ctx, s.drv, sel, scanProperty, "property", id)
	return p, internal("get property", err)
}

func (s *SQLStore) ListProperties(ctx context.Context, f PropertyFilter) ([]*model.Property, error) {
	sel := s.builder().Select(propertyColumns...).From(entsql.Table("properties")).OrderBy("id")
	if p := statusPredicate(f.Status); p != nil {
		sel.Where(p)
	}
	if f.OwnerID != nil {
		sel.Where(entsql.EQ("owner_id", *f.OwnerID))
	}
	out, err := queryAll(ctx, s.drv, sel, scanProperty)
	return out, internal("list properties", err)
}

func (s *SQLStore) UpdateProperty(ctx context.Context, p *model.Property) error {
	if err := prepareProperty(p); err != nil {
		return err
	}
	addr, err := jsonArg(p.Address)
	if err != nil {
		return internal("encode address", err)
	}
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := queryOne(ctx, tx, s.builder().Select(propertyColumns...).From(entsql.Table("properties")).
			Where(entsql.EQ("id", p.ID)), scanProperty, "property", p.ID)
		if err != nil {
			return internal("update property", err)
		}
		ok, err := s.exists(ctx, tx, "owners", p.OwnerID)
		if err != nil {
			return internal("update property", err)
		}
		if !ok {
			return errMissingRef("owner_id", "owner", p.OwnerID)
		}
		_, err = exec(ctx, tx, s.builder().Update("properties").
			Set("owner_id", p.OwnerID).
			Set("type", string(p.Type)).
			Set("address", addr).
			Set("rent_value", int64(p.RentValue)).
			Set("bedrooms", optInt(p.Bedrooms)).
			Set("bathrooms", optInt(p.Bathrooms)).
			Set("area", optFloat(p.Area)).
			Set("water_company", p.WaterCompany).
			Set("water_account", p.WaterAccount).
			Set("energy_company", p.EnergyCompany).
			Set("energy_account", p.EnergyAccount).
			Set("available_for_rent", p.AvailableForRent).
			Set("status", string(p.Status)).
			Where(entsql.EQ("id", p.ID)))
		if err != nil {
			return internal("update property", err)
		}
		p.CreatedAt = old.CreatedAt
		return nil
	})
}

func (s *SQLStore) DeleteProperty(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "properties", id)
		if err != nil {
			return internal("delete property", err)
		}
		if !ok {
			return apperror.NotFound("property", id)
		}
		n, err := s.count(ctx, tx, "contracts", entsql.EQ("property_id", id))
		if err != nil {
			return internal("delete property", err)
		}
		if n > 0 {
			return errReferenced("property", id, "contracts")
		}
		_, err = exec(ctx, tx, s.builder().Delete("properties").Where(entsql.EQ("id", id)))
		return internal("delete property", err)
	})
}

// ─── Contract ───────────────────────────────────────────────────────────────

var contractColumns = []string{
	"id", "owner_id", "tenant_id", "property_id", "start_date", "end_date", "duration",
	"rent_value", "payment_day", "status", "observations", "created_at",
}

func scanContract(rows *entsql.Rows) (*model.Contract, error) {
	var c model.Contract
	if err := rows.Scan(&c.ID, &c.OwnerID, &c.TenantID, &c.PropertyID, &c.StartDate, &c.EndDate, &c.Duration,
		&c.RentValue, &c.PaymentDay, &c.Status, &c.Observations, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.StartDate = types.Day(c.StartDate.UTC())
	c.EndDate = types.Day(c.EndDate.UTC())
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *SQLStore) checkContractRefs(ctx context.Context, q dialect.ExecQuerier, c *model.Contract) error {
	for _, ref := range []struct {
		field, entity, table string
		id                   int64
	}{
		{"owner_id", "owner", "owners", c.OwnerID},
		{"tenant_id", "tenant", "tenants", c.TenantID},
		{"property_id", "property", "properties", c.PropertyID},
	} {
		ok, err := s.exists(ctx, q, ref.table, ref.id)
		if err != nil {
			return internal("check contract references", err)
		}
		if !ok {
			return errMissingRef(ref.field, ref.entity, ref.id)
		}
	}
	return nil
}

func (s *SQLStore) CreateContract(ctx context.Context, c *model.Contract, schedule ScheduleFunc) error {
	if err := prepareContract(c); err != nil {
		return err
	}
	at := now()
	return s.withTx(ctx, func(tx dialect.Tx) error {
		if err := s.checkContractRefs(ctx, tx, c); err != nil {
			return err
		}
		id, err := s.insert(ctx, tx, s.builder().Insert("contracts").
			Columns("owner_id", "tenant_id", "property_id", "start_date", "end_date", "duration",
				"rent_value", "payment_day", "status", "observations", "created_at").
			Values(c.OwnerID, c.TenantID, c.PropertyID, c.StartDate, c.EndDate, c.Duration,
				int64(c.RentValue), c.PaymentDay, string(c.Status), c.Observations, at))
		if err != nil {
			return internal("create contract", err)
		}
		created := *c
		created.ID, created.CreatedAt = id, at

		if schedule != nil {
			rows, err := schedule(created)
			if err != nil {
				return err
			}
			for _, p := range rows {
				p.ContractID = created.ID
			}
			if err := s.insertPayments(ctx, tx, rows, at); err != nil {
				return err
			}
		}
		*c = created
		return nil
	})
}

func (s *SQLStore) GetContract(ctx context.Context, id int64) (*model.Contract, error) {
	sel := s.builder().Select(contractColumns...).From(entsql.Table("contracts")).Where(entsql.EQ("id", id))
	c, err := queryOne(ctx, s.drv, sel, scanContract, "contract", id)
	return c, internal("get contract", err)
}

func (s *SQLStore) ListContracts(ctx context.Context, f ContractFilter) ([]*model.Contract, error) {
	sel := s.builder().Select(contractColumns...).From(entsql.Table("contracts")).OrderBy("id")
	if f.OwnerID != nil {
		sel.Where(entsql.EQ("owner_id", *f.OwnerID))
	}
	if f.TenantID != nil {
		sel.Where(entsql.EQ("tenant_id", *f.TenantID))
	}
	if f.PropertyID != nil {
		sel.Where(entsql.EQ("property_id", *f.PropertyID))
	}
	out, err := queryAll(ctx, s.drv, sel, scanContract)
	return out, internal("list contracts", err)
}

func (s *SQLStore) UpdateContract(ctx context.Context, c *model.Contract) error {
	if err := prepareContract(c); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := queryOne(ctx, tx, s.builder().Select(contractColumns...).From(entsql.Table("contracts")).
			Where(entsql.EQ("id", c.ID)), scanContract, "contract", c.ID)
		if err != nil {
			return internal("update contract", err)
		}
		if err := s.checkContractRefs(ctx, tx, c); err != nil {
			return err
		}
		_, err = exec(ctx, tx, s.builder().Update("contracts").
			Set("owner_id", c.OwnerID).
			Set("tenant_id", c.TenantID).
			Set("property_id", c.PropertyID).
			Set("start_date", c.StartDate).
			Set("end_date", c.EndDate).
			Set("duration", c.Duration).
			Set("rent_value", int64(c.RentValue)).
			Set("payment_day", c.PaymentDay).
			Set("status", string(c.Status)).
			Set("observations", c.Observations).
			Where(entsql.EQ("id", c.ID)))
		if err != nil {
			return internal("update contract", err)
		}
		c.CreatedAt = old.CreatedAt
		return nil
	})
}

func (s *SQLStore) DeleteContract(ctx context.Context, id int64, deletedBy *int64, at time.Time) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "contracts", id)
		if err != nil {
			return internal("delete contract", err)
		}
		if !ok {
			return apperror.NotFound("contract", id)
		}
		if err := s.checkActor(ctx, tx, deletedBy); err != nil {
			return err
		}
		live, err := queryAll(ctx, tx, s.builder().Select(paymentColumns...).From(entsql.Table("payments")).
			Where(entsql.EQ("contract_id", id)).OrderBy("id"), scanPayment)
		if err != nil {
			return internal("delete contract", err)
		}
		for _, p := range live {
			if _, err := s.archive(ctx, tx, p, deletedBy, at); err != nil {
				return err
			}
		}
		_, err = exec(ctx, tx, s.builder().Delete("contracts").Where(entsql.EQ("id", id)))
		return internal("delete contract", err)
	})
}

// ─── Payment ────────────────────────────────────────────────────────────────

var paymentColumns = []string{
	"id", "contract_id", "due_date", "value", "is_paid", "payment_date", "interest_amount",
	"late_payment_fee", "payment_method", "receipt_number", "observations", "created_at",
}

func scanPayment(rows *entsql.Rows) (*model.Payment, error) {
	var (
		p               model.Payment
		paidAt          sql.NullTime
		method, receipt sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.ContractID, &p.DueDate, &p.Value, &p.IsPaid, &paidAt, &p.InterestAmount,
		&p.LatePaymentFee, &method, &receipt, &p.Observations, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.DueDate = types.Day(p.DueDate.UTC())
	p.PaymentDate = nullTime(paidAt)
	p.PaymentMethod = nullString(method)
	p.ReceiptNumber = nullString(receipt)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// paymentBatch caps the rows per INSERT so a statement stays under the
// drivers' bind-parameter limits (11 per row).
const paymentBatch = 500

// insertPayments inserts rows in batches on q and stamps their ids. The
// caller's transaction makes the batches all-or-nothing.
func (s *SQLStore) insertPayments(ctx context.Context, q dialect.ExecQuerier, rows []*model.Payment, at time.Time) error {
	for len(rows) > 0 {
		batch := rows[:min(len(rows), paymentBatch)]
		rows = rows[len(batch):]
		ins := s.builder().Insert("payments").
			Columns("contract_id", "due_date", "value", "is_paid", "payment_date", "interest_amount",
				"late_payment_fee", "payment_method", "receipt_number", "observations", "created_at")
		for _, p := range batch {
			p.DueDate = types.Day(p.DueDate)
			ins.Values(p.ContractID, p.DueDate, int64(p.Value), p.IsPaid, optTime(p.PaymentDate), int64(p.InterestAmount),
				int64(p.LatePaymentFee), optString(p.PaymentMethod), optString(p.ReceiptNumber), p.Observations, at)
		}
		ids, err := s.insertMany(ctx, q, ins, len(batch))
		if err != nil {
			return internal("insert payments", err)
		}
		for i, p := range batch {
			p.ID, p.CreatedAt = ids[i], at
		}
	}
	return nil
}

func (s *SQLStore) CreatePayments(ctx context.Context, rows []*model.Payment) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		seen := map[int64]bool{}
		for _, p := range rows {
			if seen[p.ContractID] {
				continue
			}
			ok, err := s.exists(ctx, tx, "contracts", p.ContractID)
			if err != nil {
				return internal("create payments", err)
			}
			if !ok {
				return errMissingRef("contract_id", "contract", p.ContractID)
			}
			seen[p.ContractID] = true
		}
		return s.insertPayments(ctx, tx, rows, now())
	})
}

func (s *SQLStore) getPayment(ctx context.Context, q dialect.ExecQuerier, id int64) (*model.Payment, error) {
	sel := s.builder().Select(paymentColumns...).From(entsql.Table("payments")).Where(entsql.EQ("id", id))
	p, err := queryOne(ctx, q, sel, scanPayment, "payment", id)
	return p, internal("get payment", err)
}

func (s *SQLStore) GetPayment(ctx context.Context, id int64) (*model.Payment, error) {
	return s.getPayment(ctx, s.drv, id)
}

func (s *SQLStore) ListPayments(ctx context.Context, f PaymentFilter) ([]*model.Payment, error) {
	sel := s.builder().Select(paymentColumns...).From(entsql.Table("payments")).OrderBy("due_date", "id")
	if f.ContractID != nil {
		sel.Where(entsql.EQ("contract_id", *f.ContractID))
	}
	if f.IsPaid != nil {
		sel.Where(entsql.EQ("is_paid", *f.IsPaid))
	}
	out, err := queryAll(ctx, s.drv, sel, scanPayment)
	return out, internal("list payments", err)
}

func (s *SQLStore) UpdatePayment(ctx context.Context, p *model.Payment) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := s.getPayment(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if old.IsPaid {
			return errAlreadyPaid(p.ID)
		}
		old.DueDate = types.Day(p.DueDate)
		old.Value = p.Value
		old.Observations = p.Observations
		_, err = exec(ctx, tx, s.builder().Update("payments").
			Set("due_date", old.DueDate).
			Set("value", int64(old.Value)).
			Set("observations", old.Observations).
			Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("is_paid", false))))
		if err != nil {
			return internal("update payment", err)
		}
		*p = *old
		return nil
	})
}

func (s *SQLStore) MarkPaid(ctx context.Context, id int64, d model.PaidDetails) (*model.Payment, error) {
	var out *model.Payment
	err := s.withTx(ctx, func(tx dialect.Tx) error {
		p, err := s.getPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.IsPaid {
			return errAlreadyPaid(id)
		}
		paidAt := types.Day(d.PaymentDate)
		n, err := exec(ctx, tx, s.builder().Update("payments").
			Set("is_paid", true).
			Set("payment_date", paidAt).
			Set("payment_method", d.PaymentMethod).
			Set("receipt_number", d.ReceiptNumber).
			Set("interest_amount", int64(d.InterestAmount)).
			Set("late_payment_fee", int64(d.LatePaymentFee)).
			Where(entsql.And(entsql.EQ("id", id), entsql.EQ("is_paid", false))))
		if err != nil {
			return internal("mark paid", err)
		}
		if n == 0 {
			return errAlreadyPaid(id)
		}
		method, receipt := d.PaymentMethod, d.ReceiptNumber
		p.IsPaid = true
		p.PaymentDate = &paidAt
		p.PaymentMethod = &method
		p.ReceiptNumber = &receipt
		p.InterestAmount = d.InterestAmount
		p.LatePaymentFee = d.LatePaymentFee
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLStore) checkActor(ctx context.Context, q dialect.ExecQuerier, deletedBy *int64) error {
	if deletedBy == nil {
		return nil
	}
	ok, err := s.exists(ctx, q, "users", *deletedBy)
	if err != nil {
		return internal("check actor", err)
	}
	if !ok {
		return errMissingRef("deleted_by", "user", *deletedBy)
	}
	return nil
}

// archive copies p into deleted_payments and removes the live row.
func (s *SQLStore) archive(ctx context.Context, q dialect.ExecQuerier, p *model.Payment, deletedBy *int64, at time.Time) (*model.DeletedPayment, error) {
	d := model.Archive(*p, deletedBy, at.UTC())
	var actor any
	if deletedBy != nil {
		actor = *deletedBy
	}
	id, err := s.insert(ctx, q, s.builder().Insert("deleted_payments").
		Columns("original_id", "contract_id", "due_date", "value", "is_paid", "payment_date", "interest_amount",
			"late_payment_fee", "payment_method", "receipt_number", "observations", "deleted_by", "deleted_at",
			"original_created_at").
		Values(d.OriginalID, d.ContractID, d.DueDate, int64(d.Value), d.IsPaid, optTime(d.PaymentDate), int64(d.InterestAmount),
			int64(d.LatePaymentFee), optString(d.PaymentMethod), optString(d.ReceiptNumber), d.Observations, actor, d.DeletedAt,
			d.OriginalCreatedAt))
	if err != nil {
		return nil, internal("archive payment", err)
	}
	if _, err := exec(ctx, q, s.builder().Delete("payments").Where(entsql.EQ("id", p.ID))); err != nil {
		return nil, internal("archive payment", err)
	}
	d.ID = id
	return &d, nil
}

func (s *SQLStore) ArchivePayment(ctx context.Context, id int64, deletedBy *int64, at time.Time) (*model.DeletedPayment, error) {
	var out *model.DeletedPayment
	err := s.withTx(ctx, func(tx dialect.Tx) error {
		p, err := s.getPayment(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.checkActor(ctx, tx, deletedBy); err != nil {
			return err
		}
		out, err = s.archive(ctx, tx, p, deletedBy, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var deletedPaymentColumns = []string{
	"id", "original_id", "contract_id", "due_date", "value", "is_paid", "payment_date", "interest_amount",
	"late_payment_fee", "payment_method", "receipt_number", "observations", "deleted_by", "deleted_at",
	"original_created_at",
}

func scanDeletedPayment(rows *entsql.Rows) (*model.DeletedPayment, error) {
	var (
		d               model.DeletedPayment
		paidAt          sql.NullTime
		method, receipt sql.NullString
		actor           sql.NullInt64
	)
	if err := rows.Scan(&d.ID, &d.OriginalID, &d.ContractID, &d.DueDate, &d.Value, &d.IsPaid, &paidAt, &d.InterestAmount,
		&d.LatePaymentFee, &method, &receipt, &d.Observations, &actor, &d.DeletedAt, &d.OriginalCreatedAt); err != nil {
		return nil, err
	}
	d.DueDate = types.Day(d.DueDate.UTC())
	d.PaymentDate = nullTime(paidAt)
	d.PaymentMethod = nullString(method)
	d.ReceiptNumber = nullString(receipt)
	if actor.Valid {
		v := actor.Int64
		d.DeletedBy = &v
	}
	d.DeletedAt = d.DeletedAt.UTC()
	d.OriginalCreatedAt = d.OriginalCreatedAt.UTC()
	return &d, nil
}

func (s *SQLStore) ListDeletedPayments(ctx context.Context) ([]*model.DeletedPayment, error) {
	sel := s.builder().Select(deletedPaymentColumns...).From(entsql.Table("deleted_payments")).OrderBy("id")
	out, err := queryAll(ctx, s.drv, sel, scanDeletedPayment)
	return out, internal("list deleted payments", err)
}

// ─── User ───────────────────────────────────────────────────────────────────

var userColumns = []string{"id", "username", "password_hash", "name", "email", "role", "status", "created_at", "last_login"}

func scanUser(rows *entsql.Rows) (*model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
	)
	if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email, &u.Role, &u.Status, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastLogin = nullTime(lastLogin)
	return &u, nil
}

func (s *SQLStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	at := now()
	return s.withTx(ctx, func(tx dialect.Tx) error {
		dup, err := s.count(ctx, tx, "users", entsql.EQ("username", u.Username))
		if err != nil {
			return internal("create user", err)
		}
		if dup > 0 {
			return errDuplicateUsername()
		}
		id, err := s.insert(ctx, tx, s.builder().Insert("users").
			Columns("username", "password_hash", "name", "email", "role", "status", "created_at").
			Values(u.Username, u.PasswordHash, u.Name, u.Email, string(u.Role), string(u.Status), at))
		if err != nil {
			if sqlgraph.IsUniqueConstraintError(err) {
				return errDuplicateUsername()
			}
			return internal("create user", err)
		}
		u.ID, u.CreatedAt = id, at
		return nil
	})
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	sel := s.builder().Select(userColumns...).From(entsql.Table("users")).Where(entsql.EQ("id", id))
	u, err := queryOne(ctx, s.drv, sel, scanUser, "user", id)
	return u, internal("get user", err)
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	sel := s.builder().Select(userColumns...).From(entsql.Table("users")).Where(entsql.EQ("username", username)).Limit(1)
	all, err := queryAll(ctx, s.drv, sel, scanUser)
	if err != nil {
		return nil, internal("get user", err)
	}
	if len(all) == 0 {
		return nil, apperror.New(apperror.CodeNotFound, "user "+username+" not found")
	}
	return all[0], nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]*model.User, error) {
	sel := s.builder().Select(userColumns...).From(entsql.Table("users")).OrderBy("id")
	out, err := queryAll(ctx, s.drv, sel, scanUser)
	return out, internal("list users", err)
}

func (s *SQLStore) UpdateUser(ctx context.Context, u *model.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx dialect.Tx) error {
		old, err := queryOne(ctx, tx, s.builder().Select(userColumns...).From(entsql.Table("users")).
			Where(entsql.EQ("id", u.ID)), scanUser, "user", u.ID)
		if err != nil {
			return internal("update user", err)
		}
		dup, err := s.count(ctx, tx, "users", entsql.And(entsql.EQ("username", u.Username), entsql.NEQ("id", u.ID)))
		if err != nil {
			return internal("update user", err)
		}
		if dup > 0 {
			return errDuplicateUsername()
		}
		_, err = exec(ctx, tx, s.builder().Update("users").
			Set("username", u.Username).
			Set("password_hash", u.PasswordHash).
			Set("name", u.Name).
			Set("email", u.Email).
			Set("role", string(u.Role)).
			Set("status", string(u.Status)).
			Where(entsql.EQ("id", u.ID)))
		if err != nil {
			return internal("update user", err)
		}
		u.CreatedAt, u.LastLogin = old.CreatedAt, old.LastLogin
		return nil
	})
}

func (s *SQLStore) DeleteUser(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx dialect.Tx) error {
		ok, err := s.exists(ctx, tx, "users", id)
		if err != nil {
			return internal("delete user", err)
		}
		if !ok {
			return apperror.NotFound("user", id)
		}
		n, err := s.count(ctx, tx, "deleted_payments", entsql.EQ("deleted_by", id))
		if err != nil {
			return internal("delete user", err)
		}
		if n > 0 {
			return errReferenced("user", id, "deleted payments")
		}
		_, err = exec(ctx, tx, s.builder().Delete("users").Where(entsql.EQ("id", id)))
		return internal("delete user", err)
	})
}

func (s *SQLStore) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	n, err := exec(ctx, s.drv, s.builder().Update("users").Set("last_login", at.UTC()).Where(entsql.EQ("id", id)))
	if err != nil {
		return internal("touch login", err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	n, err := s.count(ctx, s.drv, "users", nil)
	return int(n), internal("count users", err)
}
