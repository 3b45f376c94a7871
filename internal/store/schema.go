package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table definitions consumed by ent's migration engine. Structured values
// (addresses, guarantors) are JSON text columns.

var (
	usersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "username", Type: field.TypeString, Unique: true},
		{Name: "password_hash", Type: field.TypeString},
		{Name: "name", Type: field.TypeString, Default: ""},
		{Name: "email", Type: field.TypeString, Default: ""},
		{Name: "role", Type: field.TypeString},
		{Name: "status", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "last_login", Type: field.TypeTime, Nullable: true},
	}
	usersTable = &schema.Table{
		Name:       "users",
		Columns:    usersColumns,
		PrimaryKey: []*schema.Column{usersColumns[0]},
	}

	ownersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "name", Type: field.TypeString},
		{Name: "document", Type: field.TypeString, Unique: true},
		{Name: "email", Type: field.TypeString, Default: ""},
		{Name: "phone", Type: field.TypeString, Default: ""},
		{Name: "address", Type: field.TypeString, Size: 2048},
		{Name: "status", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
	}
	ownersTable = &schema.Table{
		Name:       "owners",
		Columns:    ownersColumns,
		PrimaryKey: []*schema.Column{ownersColumns[0]},
	}

	tenantsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "name", Type: field.TypeString},
		{Name: "document", Type: field.TypeString, Unique: true},
		{Name: "rg", Type: field.TypeString, Default: ""},
		{Name: "email", Type: field.TypeString, Default: ""},
		{Name: "phone", Type: field.TypeString, Default: ""},
		{Name: "address", Type: field.TypeString, Size: 2048},
		{Name: "guarantor", Type: field.TypeString, Size: 4096, Nullable: true},
		{Name: "status", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
	}
	tenantsTable = &schema.Table{
		Name:       "tenants",
		Columns:    tenantsColumns,
		PrimaryKey: []*schema.Column{tenantsColumns[0]},
	}

	propertiesColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "owner_id", Type: field.TypeInt64},
		{Name: "type", Type: field.TypeString},
		{Name: "address", Type: field.TypeString, Size: 2048},
		{Name: "rent_value", Type: field.TypeInt64},
		{Name: "bedrooms", Type: field.TypeInt64, Nullable: true},
		{Name: "bathrooms", Type: field.TypeInt64, Nullable: true},
		{Name: "area", Type: field.TypeFloat64, Nullable: true},
		{Name: "water_company", Type: field.TypeString, Default: ""},
		{Name: "water_account", Type: field.TypeString, Default: ""},
		{Name: "energy_company", Type: field.TypeString, Default: ""},
		{Name: "energy_account", Type: field.TypeString, Default: ""},
		{Name: "available_for_rent", Type: field.TypeBool, Default: true},
		{Name: "status", Type: field.TypeString},
		{Name: "created_at", Type: field.TypeTime},
	}
	propertiesTable = &schema.Table{
		Name:       "properties",
		Columns:    propertiesColumns,
		PrimaryKey: []*schema.Column{propertiesColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "properties_owners_properties",
				Columns:    []*schema.Column{propertiesColumns[1]},
				RefColumns: []*schema.Column{ownersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "property_owner_id", Columns: []*schema.Column{propertiesColumns[1]}},
		},
	}

	contractsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "owner_id", Type: field.TypeInt64},
		{Name: "tenant_id", Type: field.TypeInt64},
		{Name: "property_id", Type: field.TypeInt64},
		{Name: "start_date", Type: field.TypeTime},
		{Name: "end_date", Type: field.TypeTime},
		{Name: "duration", Type: field.TypeInt},
		{Name: "rent_value", Type: field.TypeInt64},
		{Name: "payment_day", Type: field.TypeInt},
		{Name: "status", Type: field.TypeString},
		{Name: "observations", Type: field.TypeString, Size: 4096, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	contractsTable = &schema.Table{
		Name:       "contracts",
		Columns:    contractsColumns,
		PrimaryKey: []*schema.Column{contractsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "contracts_owners_contracts",
				Columns:    []*schema.Column{contractsColumns[1]},
				RefColumns: []*schema.Column{ownersColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "contracts_tenants_contracts",
				Columns:    []*schema.Column{contractsColumns[2]},
				RefColumns: []*schema.Column{tenantsColumns[0]},
				OnDelete:   schema.NoAction,
			},
			{
				Symbol:     "contracts_properties_contracts",
				Columns:    []*schema.Column{contractsColumns[3]},
				RefColumns: []*schema.Column{propertiesColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "contract_tenant_id", Columns: []*schema.Column{contractsColumns[2]}},
			{Name: "contract_property_id", Columns: []*schema.Column{contractsColumns[3]}},
		},
	}

	paymentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "contract_id", Type: field.TypeInt64},
		{Name: "due_date", Type: field.TypeTime},
		{Name: "value", Type: field.TypeInt64},
		{Name: "is_paid", Type: field.TypeBool, Default: false},
		{Name: "payment_date", Type: field.TypeTime, Nullable: true},
		{Name: "interest_amount", Type: field.TypeInt64, Default: 0},
		{Name: "late_payment_fee", Type: field.TypeInt64, Default: 0},
		{Name: "payment_method", Type: field.TypeString, Nullable: true},
		{Name: "receipt_number", Type: field.TypeString, Nullable: true},
		{Name: "observations", Type: field.TypeString, Size: 4096, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
	}
	paymentsTable = &schema.Table{
		Name:       "payments",
		Columns:    paymentsColumns,
		PrimaryKey: []*schema.Column{paymentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "payments_contracts_payments",
				Columns:    []*schema.Column{paymentsColumns[1]},
				RefColumns: []*schema.Column{contractsColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{Name: "payment_contract_id_due_date", Columns: []*schema.Column{paymentsColumns[1], paymentsColumns[2]}},
		},
	}

	// deleted_payments keeps contract_id without a foreign key: the ledger
	// outlives the contract it was archived from.
	deletedPaymentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "original_id", Type: field.TypeInt64},
		{Name: "contract_id", Type: field.TypeInt64},
		{Name: "due_date", Type: field.TypeTime},
		{Name: "value", Type: field.TypeInt64},
		{Name: "is_paid", Type: field.TypeBool},
		{Name: "payment_date", Type: field.TypeTime, Nullable: true},
		{Name: "interest_amount", Type: field.TypeInt64},
		{Name: "late_payment_fee", Type: field.TypeInt64},
		{Name: "payment_method", Type: field.TypeString, Nullable: true},
		{Name: "receipt_number", Type: field.TypeString, Nullable: true},
		{Name: "observations", Type: field.TypeString, Size: 4096, Default: ""},
		{Name: "deleted_by", Type: field.TypeInt64, Nullable: true},
		{Name: "deleted_at", Type: field.TypeTime},
		{Name: "original_created_at", Type: field.TypeTime},
	}
	deletedPaymentsTable = &schema.Table{
		Name:       "deleted_payments",
		Columns:    deletedPaymentsColumns,
		PrimaryKey: []*schema.Column{deletedPaymentsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "deleted_payments_users_deleted_payments",
				Columns:    []*schema.Column{deletedPaymentsColumns[12]},
				RefColumns: []*schema.Column{usersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
	}

	// Tables lists every table in creation order.
	Tables = []*schema.Table{
		usersTable,
		ownersTable,
		tenantsTable,
		propertiesTable,
		contractsTable,
		paymentsTable,
		deletedPaymentsTable,
	}
)

func init() {
	propertiesTable.ForeignKeys[0].RefTable = ownersTable
	contractsTable.ForeignKeys[0].RefTable = ownersTable
	contractsTable.ForeignKeys[1].RefTable = tenantsTable
	contractsTable.ForeignKeys[2].RefTable = propertiesTable
	paymentsTable.ForeignKeys[0].RefTable = contractsTable
	deletedPaymentsTable.ForeignKeys[0].RefTable = usersTable
}
