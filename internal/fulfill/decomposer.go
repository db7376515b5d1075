// Package fulfill contains the order fulfillment engine: the
// decomposer that splits customer orders into per-supplier sub-orders
// and the orchestrator that drives them to completion.
package fulfill

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
	"github.com/xenking/dropship-fulfillment/internal/gateway"
)

// Decomposer splits an order's line items into one supplier order per
// winning supplier, using the scoring strategy to pick the source of
// every item.
type Decomposer struct {
	gateways  map[supplier.Type]gateway.Gateway
	catalog   supplier.Catalog
	strategy  supplier.Strategy
	preferred supplier.Type
}

// NewDecomposer creates a Decomposer over the configured gateways. The
// catalog may be nil; without it a supplier whose live lookup fails is
// simply dropped from the candidate set.
func NewDecomposer(gateways map[supplier.Type]gateway.Gateway, catalog supplier.Catalog, strategy supplier.Strategy, preferred supplier.Type) *Decomposer {
	return &Decomposer{gateways: gateways, catalog: catalog, strategy: strategy, preferred: preferred}
}

// SkippedItem records a line item the decomposer could not route.
type SkippedItem struct {
	Key    string
	Reason string
}

// Decomposition is the outcome of splitting one order.
type Decomposition struct {
	Subs    []*order.SupplierOrder
	Skipped []SkippedItem
}

// Decompose groups the order's line items by winning supplier. Items no
// supplier can source are excluded and recorded; if nothing could be
// routed it fails with ErrNoSupplierAvailable and no supplier order is
// created, so a partial split is never persisted.
func (d *Decomposer) Decompose(ctx context.Context, o *order.Order) (*Decomposition, error) {
	lg := zctx.From(ctx)

	groups := make(map[supplier.Type][]order.LineItem)
	var skipped []SkippedItem

	for _, li := range o.Items {
		if li.Quantity <= 0 {
			skipped = append(skipped, SkippedItem{Key: li.Key(), Reason: "invalid quantity"})
			continue
		}

		winner, err := d.selectSupplier(ctx, li)
		if err != nil {
			skipped = append(skipped, SkippedItem{Key: li.Key(), Reason: err.Error()})
			lg.Warn("Line item unroutable",
				zap.String("order_id", o.ID),
				zap.String("item", li.Key()),
				zap.Error(err),
			)
			continue
		}
		groups[winner] = append(groups[winner], li)
	}

	if len(groups) == 0 {
		return nil, order.ErrNoSupplierAvailable
	}

	// Deterministic child ordering keeps logs and tests stable.
	types := make([]supplier.Type, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	now := time.Now().UTC()
	subs := make([]*order.SupplierOrder, 0, len(groups))
	for _, t := range types {
		subs = append(subs, &order.SupplierOrder{
			ID:           uuid.New().String(),
			OrderID:      o.ID,
			Supplier:     t,
			Status:       order.SupplierPending,
			Items:        groups[t],
			ShippingAddr: o.ShippingAddr,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	return &Decomposition{Subs: subs, Skipped: skipped}, nil
}

// selectSupplier fetches one snapshot per candidate supplier and runs
// scoring. A gateway failure only removes that candidate; a transient
// failure falls back to the ingested catalog feed when one is wired.
func (d *Decomposer) selectSupplier(ctx context.Context, li order.LineItem) (supplier.Type, error) {
	lg := zctx.From(ctx)

	candidates := make([]supplier.ProductSnapshot, 0, len(d.gateways))
	for _, gw := range d.gateways {
		snap, err := gw.GetDetails(ctx, li.ProductID)
		if err != nil {
			if gateway.IsTransient(err) {
				snap = d.fromCatalog(ctx, gw.Supplier(), li)
			}
			if snap == nil {
				lg.Debug("Candidate lookup failed",
					zap.String("supplier", string(gw.Supplier())),
					zap.String("item", li.Key()),
					zap.Error(err),
				)
				continue
			}
		}
		if snap == nil {
			continue
		}
		if snap.Stock < li.Quantity {
			continue
		}
		candidates = append(candidates, *snap)
	}

	winner, err := supplier.Select(candidates, d.strategy, d.preferred)
	if err != nil {
		return "", &order.UnroutableItemError{ItemKey: li.Key()}
	}
	return winner.Supplier, nil
}

// fromCatalog resolves the locally ingested feed row for one supplier.
// The row stands in for the live quote only when it can cover the
// requested quantity.
func (d *Decomposer) fromCatalog(ctx context.Context, sup supplier.Type, li order.LineItem) *supplier.ProductSnapshot {
	if d.catalog == nil {
		return nil
	}
	row, err := d.catalog.Get(ctx, sup, li.ProductID)
	if err != nil || row.Stock < li.Quantity {
		return nil
	}
	snap := row.Snapshot()
	return &snap
}
