package supplier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(t Type, price, shipCost string, minDays, stock int, rating float64) ProductSnapshot {
	return ProductSnapshot{
		Supplier:  t,
		ProductID: "p1",
		Price:     decimal.RequireFromString(price),
		Shipping: []ShippingOption{
			{Name: "standard", Cost: decimal.RequireFromString(shipCost), MinDays: minDays, MaxDays: minDays + 10, HasTracking: true},
		},
		Stock:  stock,
		Rating: rating,
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := snapshot(TypeMegaSupply, "19.99", "3.50", 12, 40, 4.6)

	for _, strat := range []Strategy{StrategyAuto, StrategyCheapest, StrategyFastest} {
		first := Score(s, strat)
		second := Score(s, strat)
		assert.Equal(t, first, second, "strategy %s", strat)
	}
}

func TestSelect_CheapestPrefersLowestLandedCost(t *testing.T) {
	// A: 9.99 + 2.99 = 12.98, B: 10.99 + 1.50 = 12.49. B wins.
	a := snapshot(TypeMegaSupply, "9.99", "2.99", 10, 50, 4.8)
	b := snapshot(TypePrimeParts, "10.99", "1.50", 10, 50, 4.2)

	winner, err := Select([]ProductSnapshot{a, b}, StrategyCheapest, TypeMegaSupply)
	require.NoError(t, err)
	assert.Equal(t, TypePrimeParts, winner.Supplier)
}

func TestSelect_CheapestTieBrokenByRating(t *testing.T) {
	a := snapshot(TypeMegaSupply, "10.00", "2.00", 10, 50, 4.9)
	b := snapshot(TypePrimeParts, "10.00", "2.00", 10, 50, 4.1)

	winner, err := Select([]ProductSnapshot{b, a}, StrategyCheapest, TypePrimeParts)
	require.NoError(t, err)
	assert.Equal(t, TypeMegaSupply, winner.Supplier)
}

func TestSelect_FastestPrefersShortestMinimum(t *testing.T) {
	slow := snapshot(TypeMegaSupply, "5.00", "1.00", 20, 50, 4.9)
	fast := snapshot(TypePrimeParts, "8.00", "4.00", 6, 50, 3.9)

	winner, err := Select([]ProductSnapshot{slow, fast}, StrategyFastest, TypeMegaSupply)
	require.NoError(t, err)
	assert.Equal(t, TypePrimeParts, winner.Supplier)
}

func TestSelect_FastestTieBrokenByLandedCost(t *testing.T) {
	a := snapshot(TypeMegaSupply, "5.00", "1.00", 9, 50, 4.0)
	b := snapshot(TypePrimeParts, "8.00", "4.00", 9, 50, 4.0)

	winner, err := Select([]ProductSnapshot{b, a}, StrategyFastest, TypePrimeParts)
	require.NoError(t, err)
	assert.Equal(t, TypeMegaSupply, winner.Supplier)
}

func TestSelect_DefaultUsesPreferred(t *testing.T) {
	a := snapshot(TypeMegaSupply, "5.00", "1.00", 9, 50, 4.0)
	b := snapshot(TypePrimeParts, "3.00", "0.50", 5, 50, 5.0)

	winner, err := Select([]ProductSnapshot{a, b}, StrategyDefault, TypeMegaSupply)
	require.NoError(t, err)
	assert.Equal(t, TypeMegaSupply, winner.Supplier)
}

func TestSelect_DefaultFallsBackWhenPreferredUnavailable(t *testing.T) {
	outOfStock := snapshot(TypeMegaSupply, "5.00", "1.00", 9, 0, 4.0)
	b := snapshot(TypePrimeParts, "3.00", "0.50", 5, 50, 5.0)

	winner, err := Select([]ProductSnapshot{outOfStock, b}, StrategyDefault, TypeMegaSupply)
	require.NoError(t, err)
	assert.Equal(t, TypePrimeParts, winner.Supplier)
}

func TestSelect_NoCandidate(t *testing.T) {
	outOfStock := snapshot(TypeMegaSupply, "5.00", "1.00", 9, 0, 4.0)

	_, err := Select([]ProductSnapshot{outOfStock}, StrategyAuto, TypeMegaSupply)
	require.ErrorIs(t, err, ErrNoCandidate)

	_, err = Select(nil, StrategyAuto, TypeMegaSupply)
	require.ErrorIs(t, err, ErrNoCandidate)
}

func TestAutoScore_FreeShippingScoresMaximum(t *testing.T) {
	free := snapshot(TypeMegaSupply, "10.00", "0", 10, 50, 4.0)
	paid := snapshot(TypeMegaSupply, "10.00", "49.99", 10, 50, 4.0)

	assert.Greater(t, Score(free, StrategyAuto), Score(paid, StrategyAuto))
}

func TestAutoScore_CapsAndBounds(t *testing.T) {
	// Everything at or above the ceilings contributes zero, everything
	// at the floors contributes the full weight.
	worst := ProductSnapshot{
		Supplier:  TypePrimeParts,
		ProductID: "p1",
		Price:     decimal.NewFromInt(500),
		Shipping:  []ShippingOption{{Cost: decimal.NewFromInt(80), MinDays: 45, MaxDays: 60}},
		Stock:     1,
		Rating:    0,
	}
	best := ProductSnapshot{
		Supplier:  TypeMegaSupply,
		ProductID: "p1",
		Price:     decimal.Zero,
		Shipping:  []ShippingOption{{Cost: decimal.Zero, MinDays: 3, MaxDays: 7}},
		Stock:     100,
		Rating:    5,
	}

	low := Score(worst, StrategyAuto)
	high := Score(best, StrategyAuto)

	assert.Greater(t, high, low)
	assert.LessOrEqual(t, high, 100.0)
	assert.GreaterOrEqual(t, low, 0.0)
}
