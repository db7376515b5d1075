package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetSupplierOrder returns one supplier sub-order by id.
func (h *Handler) GetSupplierOrder(w http.ResponseWriter, r *http.Request) {
	so, err := h.subs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierOrderResponse(so))
}

// RetrySupplierOrder re-submits a single failed supplier order.
func (h *Handler) RetrySupplierOrder(w http.ResponseWriter, r *http.Request) {
	so, err := h.orch.RetrySupplierOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierOrderResponse(so))
}
