package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

// Status is the customer-facing order status.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// LineItem is a single ordered product variant.
type LineItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Key identifies a line item for grouping and partition checks.
func (li LineItem) Key() string {
	if li.VariantID != "" {
		return li.ProductID + "/" + li.VariantID
	}
	return li.ProductID
}

// Address is a shipping destination, copied verbatim into every
// supplier order derived from the parent.
type Address struct {
	Name        string `json:"name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2,omitempty"`
	City        string `json:"city"`
	Region      string `json:"region,omitempty"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone,omitempty"`
}

// Order is the customer-facing aggregate for one storefront purchase.
// Created when the storefront reports a new order, mutated only by the
// orchestrator and the operator actions, never deleted.
type Order struct {
	ID            string
	ExternalID    string
	Status        Status
	CustomerEmail string
	ShippingAddr  Address
	Items         []LineItem
	Total         decimal.Decimal
	Currency      string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create returns ErrDuplicate when an order with the same external
	// id was already ingested.
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	// Update persists the aggregate guarded by the UpdatedAt value it
	// was read with. ErrStale is returned when another writer got
	// there first; the caller re-reads and retries next cycle.
	Update(ctx context.Context, o *Order) error
	ListByStatus(ctx context.Context, status Status) ([]*Order, error)
}

// SupplierOrderRepository defines persistence operations for the
// per-supplier child aggregates.
type SupplierOrderRepository interface {
	CreateBatch(ctx context.Context, subs []*SupplierOrder) error
	Get(ctx context.Context, id string) (*SupplierOrder, error)
	Update(ctx context.Context, so *SupplierOrder) error
	ListByOrder(ctx context.Context, orderID string) ([]*SupplierOrder, error)
	ListByStatus(ctx context.Context, status SupplierStatus) ([]*SupplierOrder, error)
	// ListActive returns every supplier order in a non-terminal status.
	ListActive(ctx context.Context) ([]*SupplierOrder, error)
}

// WatermarkStore holds the external id of the last ingested storefront
// order so polling never reprocesses the full history.
type WatermarkStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, externalID string) error
}

// SupplierFor returns the supplier type the given line item key was
// routed to, or false when the item is not present in any child.
func SupplierFor(subs []*SupplierOrder, key string) (supplier.Type, bool) {
	for _, so := range subs {
		for _, li := range so.Items {
			if li.Key() == key {
				return so.Supplier, true
			}
		}
	}
	return "", false
}
