package supplier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogProduct is one locally ingested catalog feed row, keyed by
// supplier and SKU. Feed rows carry price and stock only; shipping
// options and ratings come from live gateway lookups.
type CatalogProduct struct {
	Supplier  Type
	SKU       string
	Title     string
	Price     decimal.Decimal
	Stock     int
	UpdatedAt time.Time
}

// Catalog stores ingested feed rows and serves offline price and stock
// lookups when a live supplier call is unavailable.
type Catalog interface {
	UpsertBatch(ctx context.Context, products []CatalogProduct) error
	Get(ctx context.Context, sup Type, sku string) (*CatalogProduct, error)
}

// Snapshot adapts the feed row into a scoring candidate. The row has
// no shipping options or rating, so a free standard option at the
// slowest delivery bound and a zero rating stand in.
func (p CatalogProduct) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		Supplier:  p.Supplier,
		ProductID: p.SKU,
		Title:     p.Title,
		Price:     p.Price,
		Shipping: []ShippingOption{{
			Name:    "standard",
			MinDays: deliveryCeilingDays,
			MaxDays: deliveryCeilingDays,
		}},
		Stock: p.Stock,
	}
}
