package handler

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/document"
	"github.com/rentaldesk/rentals/internal/installment"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/payment"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// ContractHandler implements HTTP handlers for Contract.
type ContractHandler struct {
	store     store.Store
	generator *installment.Generator
	engine    *payment.Engine
	docs      *document.Resolver
	renderer  document.Renderer
}

// NewContractHandler creates a new ContractHandler. renderer may be nil,
// in which case documents are returned as JSON.
func NewContractHandler(s store.Store, g *installment.Generator, e *payment.Engine, renderer document.Renderer) *ContractHandler {
	return &ContractHandler{
		store:     s,
		generator: g,
		engine:    e,
		docs:      document.NewResolver(s),
		renderer:  renderer,
	}
}

type createContractRequest struct {
	OwnerID      int64       `json:"owner_id"`
	TenantID     int64       `json:"tenant_id"`
	PropertyID   int64       `json:"property_id"`
	StartDate    Date        `json:"start_date"`
	Duration     int         `json:"duration"`
	RentValue    types.Cents `json:"rent_value_cents"`
	PaymentDay   int         `json:"payment_day"`
	Status       string      `json:"status,omitempty"`
	Observations string      `json:"observations,omitempty"`
}

type contractWithPayments struct {
	*model.Contract
	Payments []*model.Payment `json:"payments"`
}

// Create stores a contract together with its generated installments.
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createContractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c := &model.Contract{
		OwnerID:      req.OwnerID,
		TenantID:     req.TenantID,
		PropertyID:   req.PropertyID,
		Duration:     req.Duration,
		RentValue:    req.RentValue,
		PaymentDay:   req.PaymentDay,
		Observations: req.Observations,
	}
	if !req.StartDate.IsZero() {
		c.StartDate = req.StartDate.Time()
	}
	if req.Status != "" {
		status, err := model.ParseContractStatus(req.Status)
		if err != nil {
			writeError(w, apperror.Validation("status", err.Error()))
			return
		}
		c.Status = status
	}
	rows, err := h.generator.CreateContract(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contractWithPayments{Contract: c, Payments: rows})
}

func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.store.GetContract(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.ContractFilter
	var err error
	if f.OwnerID, err = queryID(r, "owner_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.TenantID, err = queryID(r, "tenant_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.PropertyID, err = queryID(r, "property_id"); err != nil {
		writeError(w, err)
		return
	}
	items, err := h.store.ListContracts(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(items, parsePagination(r)))
}

type updateContractRequest struct {
	Status       *string `json:"status,omitempty"`
	Observations *string `json:"observations,omitempty"`
}

// Update changes the status or observations of a contract. Terms that
// shaped the installments (dates, value, duration) are fixed once created.
func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updateContractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.store.GetContract(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Status != nil {
		target, err := model.ParseContractStatus(*req.Status)
		if err != nil {
			writeError(w, apperror.Validation("status", err.Error()))
			return
		}
		if target != c.Status {
			if err := model.ValidateTransition(model.ValidContractTransitions, string(c.Status), string(target)); err != nil {
				writeError(w, err)
				return
			}
			c.Status = target
		}
	}
	if req.Observations != nil {
		c.Observations = *req.Observations
	}
	if err := h.store.UpdateContract(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete archives the contract's installments and removes it. Admin only.
func (h *ContractHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.engine.DeleteContract(r.Context(), id, actingUserID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Payments lists the installments of one contract in due-date order.
func (h *ContractHandler) Payments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.store.GetContract(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.store.ListPayments(r.Context(), store.PaymentFilter{ContractID: &id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(rows, parsePagination(r)))
}

// Document renders the lease contract, or returns its data as JSON with
// ?format=json or when no renderer is configured.
func (h *ContractHandler) Document(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.docs.Contract(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.renderer == nil || r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.RenderContract(&buf, doc); err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "rendering contract"))
		return
	}
	writeDocument(w, h.renderer.ContentType(), buf.Bytes())
}

func writeDocument(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logger().Warn("writing document", zap.Error(err))
	}
}
