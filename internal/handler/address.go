package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rentaldesk/rentals/internal/types"
)

// AddressLookup resolves a postal code to an address.
type AddressLookup interface {
	Lookup(ctx context.Context, cep string) (types.Address, error)
}

// AddressHandler serves postal-code lookups.
type AddressHandler struct {
	lookup AddressLookup
}

func NewAddressHandler(l AddressLookup) *AddressHandler {
	return &AddressHandler{lookup: l}
}

// Lookup handles GET /v1/addresses/{cep}.
func (h *AddressHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	addr, err := h.lookup.Lookup(r.Context(), chi.URLParam(r, "cep"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}
