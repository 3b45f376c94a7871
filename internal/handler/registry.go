package handler

import (
	"net/http"

	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// RegistryHandler implements HTTP handlers for Owner, Tenant, and Property.
type RegistryHandler struct {
	store store.Store
}

// NewRegistryHandler creates a new RegistryHandler.
func NewRegistryHandler(s store.Store) *RegistryHandler {
	return &RegistryHandler{store: s}
}

// ---------------------------------------------------------------------------
// Owner
// ---------------------------------------------------------------------------

type createOwnerRequest struct {
	Name     string        `json:"name"`
	Document string        `json:"document"`
	Email    string        `json:"email"`
	Phone    string        `json:"phone"`
	Address  types.Address `json:"address"`
	Status   types.Status  `json:"status"`
}

func (h *RegistryHandler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req createOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o := &model.Owner{
		Name:     req.Name,
		Document: req.Document,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Status:   req.Status,
	}
	if err := h.store.CreateOwner(r.Context(), o); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *RegistryHandler) GetOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.store.GetOwner(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *RegistryHandler) ListOwners(w http.ResponseWriter, r *http.Request) {
	f, err := statusFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.store.ListOwners(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(items, parsePagination(r)))
}

type updateOwnerRequest struct {
	Name     *string        `json:"name,omitempty"`
	Document *string        `json:"document,omitempty"`
	Email    *string        `json:"email,omitempty"`
	Phone    *string        `json:"phone,omitempty"`
	Address  *types.Address `json:"address,omitempty"`
	Status   *types.Status  `json:"status,omitempty"`
}

func (h *RegistryHandler) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updateOwnerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.store.GetOwner(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil {
		o.Name = *req.Name
	}
	if req.Document != nil {
		o.Document = *req.Document
	}
	if req.Email != nil {
		o.Email = *req.Email
	}
	if req.Phone != nil {
		o.Phone = *req.Phone
	}
	if req.Address != nil {
		o.Address = *req.Address
	}
	if req.Status != nil {
		o.Status = *req.Status
	}
	if err := h.store.UpdateOwner(r.Context(), o); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *RegistryHandler) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteOwner(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Tenant
// ---------------------------------------------------------------------------

type createTenantRequest struct {
	Name      string           `json:"name"`
	Document  string           `json:"document"`
	RG        string           `json:"rg"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Address   types.Address    `json:"address"`
	Guarantor *types.Guarantor `json:"guarantor,omitempty"`
	Status    types.Status     `json:"status"`
}

func (h *RegistryHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t := &model.Tenant{
		Name:      req.Name,
		Document:  req.Document,
		RG:        req.RG,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		Guarantor: req.Guarantor,
		Status:    req.Status,
	}
	if err := h.store.CreateTenant(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *RegistryHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	t, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RegistryHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	f, err := statusFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.store.ListTenants(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(items, parsePagination(r)))
}

type updateTenantRequest struct {
	Name            *string          `json:"name,omitempty"`
	Document        *string          `json:"document,omitempty"`
	RG              *string          `json:"rg,omitempty"`
	Email           *string          `json:"email,omitempty"`
	Phone           *string          `json:"phone,omitempty"`
	Address         *types.Address   `json:"address,omitempty"`
	Guarantor       *types.Guarantor `json:"guarantor,omitempty"`
	RemoveGuarantor bool             `json:"remove_guarantor,omitempty"`
	Status          *types.Status    `json:"status,omitempty"`
}

func (h *RegistryHandler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updateTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Document != nil {
		t.Document = *req.Document
	}
	if req.RG != nil {
		t.RG = *req.RG
	}
	if req.Email != nil {
		t.Email = *req.Email
	}
	if req.Phone != nil {
		t.Phone = *req.Phone
	}
	if req.Address != nil {
		t.Address = *req.Address
	}
	if req.Guarantor != nil {
		t.Guarantor = req.Guarantor
	}
	if req.RemoveGuarantor {
		t.Guarantor = nil
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	if err := h.store.UpdateTenant(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *RegistryHandler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteTenant(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Property
// ---------------------------------------------------------------------------

type createPropertyRequest struct {
	OwnerID          int64              `json:"owner_id"`
	Type             model.PropertyType `json:"type"`
	Address          types.Address      `json:"address"`
	RentValue        types.Cents        `json:"rent_value_cents"`
	Bedrooms         *int               `json:"bedrooms,omitempty"`
	Bathrooms        *int               `json:"bathrooms,omitempty"`
	Area             *float64           `json:"area,omitempty"`
	WaterCompany     string             `json:"water_company"`
	WaterAccount     string             `json:"water_account"`
	EnergyCompany    string             `json:"energy_company"`
	EnergyAccount    string             `json:"energy_account"`
	AvailableForRent *bool              `json:"available_for_rent,omitempty"`
	Status           types.Status       `json:"status"`
}

func (h *RegistryHandler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req createPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p := &model.Property{
		OwnerID:          req.OwnerID,
		Type:             req.Type,
		Address:          req.Address,
		RentValue:        req.RentValue,
		Bedrooms:         req.Bedrooms,
		Bathrooms:        req.Bathrooms,
		Area:             req.Area,
		WaterCompany:     req.WaterCompany,
		WaterAccount:     req.WaterAccount,
		EnergyCompany:    req.EnergyCompany,
		EnergyAccount:    req.EnergyAccount,
		AvailableForRent: true,
		Status:           req.Status,
	}
	if req.AvailableForRent != nil {
		p.AvailableForRent = *req.AvailableForRent
	}
	if err := h.store.CreateProperty(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *RegistryHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.store.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RegistryHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	f, err := statusFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ownerID, err := queryID(r, "owner_id")
	if err != nil {
		writeError(w, err)
		return
	}
	items, err := h.store.ListProperties(r.Context(), store.PropertyFilter{Status: f, OwnerID: ownerID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(items, parsePagination(r)))
}

type updatePropertyRequest struct {
	OwnerID          *int64              `json:"owner_id,omitempty"`
	Type             *model.PropertyType `json:"type,omitempty"`
	Address          *types.Address      `json:"address,omitempty"`
	RentValue        *types.Cents        `json:"rent_value_cents,omitempty"`
	Bedrooms         *int                `json:"bedrooms,omitempty"`
	Bathrooms        *int                `json:"bathrooms,omitempty"`
	Area             *float64            `json:"area,omitempty"`
	WaterCompany     *string             `json:"water_company,omitempty"`
	WaterAccount     *string             `json:"water_account,omitempty"`
	EnergyCompany    *string             `json:"energy_company,omitempty"`
	EnergyAccount    *string             `json:"energy_account,omitempty"`
	AvailableForRent *bool               `json:"available_for_rent,omitempty"`
	Status           *types.Status       `json:"status,omitempty"`
}

func (h *RegistryHandler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updatePropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.store.GetProperty(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.OwnerID != nil {
		p.OwnerID = *req.OwnerID
	}
	if req.Type != nil {
		p.Type = *req.Type
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.RentValue != nil {
		p.RentValue = *req.RentValue
	}
	if req.Bedrooms != nil {
		p.Bedrooms = req.Bedrooms
	}
	if req.Bathrooms != nil {
		p.Bathrooms = req.Bathrooms
	}
	if req.Area != nil {
		p.Area = req.Area
	}
	if req.WaterCompany != nil {
		p.WaterCompany = *req.WaterCompany
	}
	if req.WaterAccount != nil {
		p.WaterAccount = *req.WaterAccount
	}
	if req.EnergyCompany != nil {
		p.EnergyCompany = *req.EnergyCompany
	}
	if req.EnergyAccount != nil {
		p.EnergyAccount = *req.EnergyAccount
	}
	if req.AvailableForRent != nil {
		p.AvailableForRent = *req.AvailableForRent
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if err := h.store.UpdateProperty(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *RegistryHandler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteProperty(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
