package handler

import (
	"bytes"
	"net/http"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/document"
	"github.com/rentaldesk/rentals/internal/payment"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// PaymentHandler implements HTTP handlers for Payment and the
// deleted-payment ledger.
type PaymentHandler struct {
	store    store.Store
	engine   *payment.Engine
	docs     *document.Resolver
	renderer document.Renderer
}

// NewPaymentHandler creates a new PaymentHandler. renderer may be nil.
func NewPaymentHandler(s store.Store, e *payment.Engine, renderer document.Renderer) *PaymentHandler {
	return &PaymentHandler{store: s, engine: e, docs: document.NewResolver(s), renderer: renderer}
}

// List returns installments filtered by ?contract_id and ?is_paid.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	var f store.PaymentFilter
	var err error
	if f.ContractID, err = queryID(r, "contract_id"); err != nil {
		writeError(w, err)
		return
	}
	if f.IsPaid, err = queryBool(r, "is_paid"); err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.store.ListPayments(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(rows, parsePagination(r)))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.store.GetPayment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePaymentRequest struct {
	DueDate      *Date        `json:"due_date,omitempty"`
	Value        *types.Cents `json:"value_cents,omitempty"`
	Observations *string      `json:"observations,omitempty"`
}

// Update edits an unpaid installment.
func (h *PaymentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req updatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	patch := payment.Patch{Value: req.Value, Observations: req.Observations}
	if req.DueDate != nil {
		due := req.DueDate.Time()
		patch.DueDate = &due
	}
	p, err := h.engine.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type payRequest struct {
	PaymentMethod  string       `json:"payment_method"`
	ReceiptNumber  string       `json:"receipt_number,omitempty"`
	InterestAmount *types.Cents `json:"interest_amount_cents,omitempty"`
	LatePaymentFee *types.Cents `json:"late_payment_fee_cents,omitempty"`
}

// Pay marks an installment as paid today. When the body carries neither
// interest nor late fee, the quoted charges are applied.
func (h *PaymentHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req payRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := payment.MarkPaidInput{
		Method:        req.PaymentMethod,
		ReceiptNumber: req.ReceiptNumber,
		PaidBy:        actingUserID(r),
	}
	if req.InterestAmount == nil && req.LatePaymentFee == nil {
		q, err := h.engine.Quote(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		in.Interest, in.LateFee = q.Interest, q.LateFee
	} else {
		if req.InterestAmount != nil {
			in.Interest = *req.InterestAmount
		}
		if req.LatePaymentFee != nil {
			in.LateFee = *req.LatePaymentFee
		}
	}
	p, err := h.engine.MarkPaid(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Quote returns the amount due if the installment were paid today.
func (h *PaymentHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.engine.Quote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Receipt renders the receipt of a paid installment.
func (h *PaymentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.docs.Receipt(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.renderer == nil || r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, doc)
		return
	}
	var buf bytes.Buffer
	if err := h.renderer.RenderReceipt(&buf, doc); err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "rendering receipt"))
		return
	}
	writeDocument(w, h.renderer.ContentType(), buf.Bytes())
}

// Delete archives and removes an installment. Admin only.
func (h *PaymentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	archived, err := h.engine.Delete(r.Context(), id, actingUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archived)
}

// ListDeleted returns the deleted-payment ledger. Admin only.
func (h *PaymentHandler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListDeletedPayments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(rows, parsePagination(r)))
}
