package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

var knownStatuses = map[order.Status]bool{
	order.StatusNew:        true,
	order.StatusProcessing: true,
	order.StatusShipped:    true,
	order.StatusDelivered:  true,
	order.StatusError:      true,
	order.StatusCancelled:  true,
}

// ListOrders returns all orders in the status given by the required
// `status` query parameter.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := order.Status(r.URL.Query().Get("status"))
	if !knownStatuses[status] {
		writeError(w, http.StatusBadRequest, "unknown or missing status")
		return
	}

	orders, err := h.orders.ListByStatus(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetOrder returns one order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListSupplierOrders returns the supplier sub-orders of one order.
func (h *Handler) ListSupplierOrders(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.orders.Get(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}

	subs, err := h.subs.ListByOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSupplierOrderResponses(subs))
}

// RetryOrder re-drives a failed order through placement.
func (h *Handler) RetryOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orch.RetryOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels an order that has not shipped yet. The optional
// JSON body carries the operator's reason, recorded on every child.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	o, err := h.orch.CancelOrder(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// RefreshOrderStatus polls every placed supplier order immediately
// instead of waiting for the next sweep.
func (h *Handler) RefreshOrderStatus(w http.ResponseWriter, r *http.Request) {
	o, err := h.orch.RefreshOrderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}
