// Package gateway provides the uniform contract the orchestrator uses
// to talk to any supplier backend, plus one client per vendor.
package gateway

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

// PlaceRequest is the payload submitted to a supplier to place a
// sub-order.
type PlaceRequest struct {
	// ExternalRef lets the supplier deduplicate re-submissions of the
	// same sub-order.
	ExternalRef string
	Items       []order.LineItem
	Address     order.Address
}

// PlaceResult is the supplier's acknowledgement of a placed order.
type PlaceResult struct {
	SupplierRef string
	Status      order.SupplierStatus
}

// Gateway is the uniform supplier contract. Every call applies bounded
// retry with exponential backoff on transient failures; business
// failures propagate immediately as *APIError.
type Gateway interface {
	Supplier() supplier.Type
	Place(ctx context.Context, req PlaceRequest) (*PlaceResult, error)
	GetStatus(ctx context.Context, supplierRef string) (order.SupplierStatus, error)
	GetTracking(ctx context.Context, supplierRef string) (*order.Tracking, error)
	Cancel(ctx context.Context, supplierRef, reason string) error
	Search(ctx context.Context, query string) ([]supplier.ProductSnapshot, error)
	GetDetails(ctx context.Context, productID string) (*supplier.ProductSnapshot, error)
}

// APIError is a failure reported by (or on the way to) a supplier
// backend. Transient failures are retried by the client before
// surfacing; non-transient ones carry the supplier's own message.
type APIError struct {
	Supplier   supplier.Type
	StatusCode int
	Message    string
	Transient  bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Supplier, e.Message, e.StatusCode)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	// Network-level errors arrive unwrapped from net/http.
	return err != nil
}

// UnknownStatusError indicates a supplier reported a status outside its
// documented vocabulary.
type UnknownStatusError struct {
	Supplier supplier.Type
	Native   string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("%s reported unknown status %q", e.Supplier, e.Native)
}
