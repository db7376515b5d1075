// Package handler exposes the operator-facing management API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/fulfill"
)

// Handler serves read access to orders and the operator actions that
// drive them through the orchestrator.
type Handler struct {
	orders order.Repository
	subs   order.SupplierOrderRepository
	orch   *fulfill.Orchestrator
}

// New returns a Handler over the given stores and orchestrator.
func New(orders order.Repository, subs order.SupplierOrderRepository, orch *fulfill.Orchestrator) *Handler {
	return &Handler{orders: orders, subs: subs, orch: orch}
}

// Routes mounts all management endpoints on a fresh router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Get("/supplier-orders", h.ListSupplierOrders)
			r.Post("/retry", h.RetryOrder)
			r.Post("/cancel", h.CancelOrder)
			r.Post("/refresh-status", h.RefreshOrderStatus)
		})
	})

	r.Route("/supplier-orders/{id}", func(r chi.Router) {
		r.Get("/", h.GetSupplierOrder)
		r.Post("/retry", h.RetrySupplierOrder)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}

// writeDomainError maps domain errors to HTTP status codes. Unknown
// errors become an opaque 500.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		conflict *order.CancellationConflictError
		invalid  *order.InvalidTransitionError
	)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, conflict.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, invalid.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
