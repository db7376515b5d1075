// Package supplier holds the supplier vocabulary and the pure scoring
// logic that decides where a line item is sourced.
package supplier

import (
	"github.com/shopspring/decimal"
)

// Type identifies a supplier backend.
type Type string

const (
	TypeMegaSupply Type = "megasupply"
	TypePrimeParts Type = "primeparts"
)

// All lists every configured supplier backend.
var All = []Type{TypeMegaSupply, TypePrimeParts}

// Valid reports whether t names a configured backend.
func (t Type) Valid() bool {
	for _, s := range All {
		if s == t {
			return true
		}
	}
	return false
}

// reliability is a static trust constant per supplier, on a 0-100
// scale. Fed into the auto strategy's composite score.
var reliability = map[Type]float64{
	TypeMegaSupply: 92,
	TypePrimeParts: 85,
}

// Reliability returns the static trust constant for t.
func Reliability(t Type) float64 {
	return reliability[t]
}

// ShippingOption is one delivery method a supplier offers for a
// product.
type ShippingOption struct {
	Name        string          `json:"name"`
	Cost        decimal.Decimal `json:"cost"`
	MinDays     int             `json:"min_days"`
	MaxDays     int             `json:"max_days"`
	HasTracking bool            `json:"has_tracking"`
}

// ProductSnapshot is an ephemeral view of one supplier's offer for a
// product, fetched on demand to feed scoring. Never persisted.
type ProductSnapshot struct {
	Supplier  Type             `json:"supplier"`
	ProductID string           `json:"product_id"`
	Title     string           `json:"title,omitempty"`
	Price     decimal.Decimal  `json:"price"`
	Shipping  []ShippingOption `json:"shipping"`
	Stock     int              `json:"stock"`
	// Rating is the seller rating on a 0-5 scale.
	Rating float64 `json:"rating"`
}

// Available reports whether the supplier can actually fulfill the
// product right now.
func (s ProductSnapshot) Available() bool {
	return s.Stock > 0 && len(s.Shipping) > 0
}

// CheapestShipping returns the lowest-cost shipping option.
func (s ProductSnapshot) CheapestShipping() (ShippingOption, bool) {
	if len(s.Shipping) == 0 {
		return ShippingOption{}, false
	}
	best := s.Shipping[0]
	for _, opt := range s.Shipping[1:] {
		if opt.Cost.LessThan(best.Cost) {
			best = opt
		}
	}
	return best, true
}

// LandedCost is unit price plus the cheapest shipping option's cost.
func (s ProductSnapshot) LandedCost() decimal.Decimal {
	cheapest, ok := s.CheapestShipping()
	if !ok {
		return s.Price
	}
	return s.Price.Add(cheapest.Cost)
}

// FastestDays is the shortest minimum delivery-time bound among the
// shipping options.
func (s ProductSnapshot) FastestDays() int {
	if len(s.Shipping) == 0 {
		return 0
	}
	best := s.Shipping[0].MinDays
	for _, opt := range s.Shipping[1:] {
		if opt.MinDays < best {
			best = opt.MinDays
		}
	}
	return best
}
