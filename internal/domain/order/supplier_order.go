package order

import (
	"time"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

// SupplierStatus is the lifecycle status of a single supplier order.
type SupplierStatus string

const (
	SupplierPending    SupplierStatus = "pending"
	SupplierProcessing SupplierStatus = "processing"
	SupplierShipped    SupplierStatus = "shipped"
	SupplierDelivered  SupplierStatus = "delivered"
	SupplierError      SupplierStatus = "error"
	SupplierCancelled  SupplierStatus = "cancelled"
)

// Terminal reports whether the supplier order can no longer change.
func (s SupplierStatus) Terminal() bool {
	return s == SupplierDelivered || s == SupplierCancelled
}

// Shipped reports whether goods have left the supplier.
func (s SupplierStatus) Shipped() bool {
	return s == SupplierShipped || s == SupplierDelivered
}

// Tracking is shipment tracking info reported by a supplier. Present
// only once the supplier order is shipped or delivered.
type Tracking struct {
	Carrier           string    `json:"carrier"`
	Number            string    `json:"number"`
	URL               string    `json:"url,omitempty"`
	EstimatedDelivery time.Time `json:"estimated_delivery,omitzero"`
}

// ErrorEntry is one record in a supplier order's append-only error log.
type ErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// SupplierOrder is the per-supplier sub-order produced by splitting a
// parent order's line items. Created by the decomposer, mutated by the
// orchestrator on every poll and by operator retry/cancel, never
// deleted.
type SupplierOrder struct {
	ID       string
	OrderID  string
	Supplier supplier.Type
	// SupplierRef is the supplier-assigned order id, empty until
	// placement succeeds.
	SupplierRef  string
	Status       SupplierStatus
	Items        []LineItem
	ShippingAddr Address
	Tracking     *Tracking
	ErrorLog     []ErrorEntry
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Placed reports whether the supplier has acknowledged this order.
func (so *SupplierOrder) Placed() bool {
	return so.SupplierRef != ""
}

// RecordError appends a timestamped entry to the error log. History is
// never cleared, retries append on top of it.
func (so *SupplierOrder) RecordError(msg string) {
	so.ErrorLog = append(so.ErrorLog, ErrorEntry{At: time.Now().UTC(), Message: msg})
}
