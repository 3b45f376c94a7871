// Package seed loads demo data into an empty store.
package seed

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/installment"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// Result counts what Demo created.
type Result struct {
	Owners       int
	Tenants      int
	Properties   int
	Contracts    int
	Installments int
	Skipped      bool
}

func intp(v int) *int { return &v }

// Demo creates two owners, two tenants, three properties and two contracts
// dated relative to today: one about to expire and one starting this
// month. It does nothing when any owner already exists.
func Demo(ctx context.Context, s store.Store, g *installment.Generator, today time.Time, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var res Result
	existing, err := s.ListOwners(ctx, types.FilterAll)
	if err != nil {
		return res, fmt.Errorf("checking owners: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("store already has data, skipping seed", zap.Int("owners", len(existing)))
		res.Skipped = true
		return res, nil
	}

	owners := []*model.Owner{
		{
			Name:     "Maria Aparecida Souza",
			Document: "123.456.789-09",
			Email:    "maria.souza@example.com",
			Phone:    "(11) 98765-4321",
			Address: types.Address{
				Street: "Rua das Flores", Number: "120", Neighborhood: "Centro",
				City: "São Paulo", State: "SP", ZipCode: "01001000",
			},
		},
		{
			Name:     "Imobiliária Horizonte Ltda",
			Document: "12.345.678/0001-95",
			Email:    "contato@horizonte.example.com",
			Phone:    "(21) 3333-4444",
		},
	}
	for _, o := range owners {
		if err := s.CreateOwner(ctx, o); err != nil {
			return res, fmt.Errorf("creating owner %q: %w", o.Name, err)
		}
		res.Owners++
	}

	tenants := []*model.Tenant{
		{
			Name:     "João Pedro Lima",
			Document: "987.654.321-00",
			RG:       "12.345.678-9",
			Email:    "joao.lima@example.com",
			Phone:    "(11) 91234-5678",
			Guarantor: &types.Guarantor{
				Name:     "Ana Lima",
				Document: "111.222.333-96",
				Phone:    "(11) 99876-5432",
			},
		},
		{
			Name:     "Carla Mendes",
			Document: "222.333.444-05",
			Email:    "carla.mendes@example.com",
		},
	}
	for _, t := range tenants {
		if err := s.CreateTenant(ctx, t); err != nil {
			return res, fmt.Errorf("creating tenant %q: %w", t.Name, err)
		}
		res.Tenants++
	}

	properties := []*model.Property{
		{
			OwnerID: owners[0].ID, Type: model.PropertyApartment, RentValue: 180000,
			Bedrooms: intp(2), Bathrooms: intp(1),
			Address: types.Address{
				Street: "Avenida Paulista", Number: "1000", Complement: "apto 52",
				Neighborhood: "Bela Vista", City: "São Paulo", State: "SP", ZipCode: "01310100",
			},
			WaterCompany: "SABESP", EnergyCompany: "Enel",
			AvailableForRent: true,
		},
		{
			OwnerID: owners[0].ID, Type: model.PropertyHouse, RentValue: 250000,
			Bedrooms: intp(3), Bathrooms: intp(2),
			Address: types.Address{
				Street: "Rua Augusta", Number: "45", Neighborhood: "Consolação",
				City: "São Paulo", State: "SP", ZipCode: "01305000",
			},
			AvailableForRent: true,
		},
		{
			OwnerID: owners[1].ID, Type: model.PropertyCommercial, RentValue: 420000,
			Address: types.Address{
				Street: "Rua do Ouvidor", Number: "60", Neighborhood: "Centro",
				City: "Rio de Janeiro", State: "RJ", ZipCode: "20040030",
			},
			AvailableForRent: true,
		},
	}
	for _, p := range properties {
		if err := s.CreateProperty(ctx, p); err != nil {
			return res, fmt.Errorf("creating property: %w", err)
		}
		res.Properties++
	}

	today = types.Day(today)
	thisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	contracts := []*model.Contract{
		{
			OwnerID: owners[0].ID, TenantID: tenants[0].ID, PropertyID: properties[0].ID,
			StartDate: thisMonth.AddDate(0, -11, 0), Duration: 12,
			RentValue: properties[0].RentValue, PaymentDay: 10,
			Observations: "Renewal to be negotiated",
		},
		{
			OwnerID: owners[1].ID, TenantID: tenants[1].ID, PropertyID: properties[2].ID,
			StartDate: thisMonth, Duration: 30,
			RentValue: properties[2].RentValue, PaymentDay: 5,
		},
	}
	for _, c := range contracts {
		rows, err := g.CreateContract(ctx, c)
		if err != nil {
			return res, fmt.Errorf("creating contract for property %d: %w", c.PropertyID, err)
		}
		res.Contracts++
		res.Installments += len(rows)
	}

	logger.Info("demo data seeded",
		zap.Int("owners", res.Owners),
		zap.Int("tenants", res.Tenants),
		zap.Int("properties", res.Properties),
		zap.Int("contracts", res.Contracts),
		zap.Int("installments", res.Installments))
	return res, nil
}
