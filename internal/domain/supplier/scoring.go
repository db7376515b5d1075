package supplier

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Strategy selects how candidate suppliers are compared.
type Strategy string

const (
	// StrategyAuto ranks by a weighted composite of price, shipping
	// cost, delivery time, stock, rating and reliability.
	StrategyAuto Strategy = "auto"
	// StrategyCheapest ranks by lowest landed cost, ties broken by
	// higher seller rating.
	StrategyCheapest Strategy = "cheapest"
	// StrategyFastest ranks by shortest minimum delivery time, ties
	// broken by lower landed cost.
	StrategyFastest Strategy = "fastest"
	// StrategyDefault always uses the preferred supplier, falling back
	// to any other available one.
	StrategyDefault Strategy = "default"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyCheapest, StrategyFastest, StrategyDefault:
		return true
	}
	return false
}

// Composite score weights. They sum to 1.0.
const (
	weightPrice       = 0.35
	weightShipping    = 0.20
	weightDelivery    = 0.15
	weightStock       = 0.10
	weightRating      = 0.10
	weightReliability = 0.10
)

// Normalization caps for the auto strategy sub-scores.
var (
	priceCeiling    = decimal.NewFromInt(100)
	shippingCeiling = decimal.NewFromInt(50)
)

const (
	deliveryFloorDays   = 7
	deliveryCeilingDays = 30
	stockCap            = 100
)

// Score turns one supplier's product snapshot into a comparable value
// under the given strategy: higher is always better. It is
// deterministic and side-effect-free.
//
// For cheapest and fastest the value is the negated primary criterion,
// so ordering by Score matches the strategy; exact tie-breaking is done
// by Select.
func Score(s ProductSnapshot, strategy Strategy) float64 {
	switch strategy {
	case StrategyCheapest:
		f, _ := s.LandedCost().Float64()
		return -f
	case StrategyFastest:
		return -float64(s.FastestDays())
	default:
		return autoScore(s)
	}
}

// autoScore computes the weighted composite on a 0-100 scale.
func autoScore(s ProductSnapshot) float64 {
	price := inverseScore(s.Price, priceCeiling)

	shipping := 100.0
	if opt, ok := s.CheapestShipping(); ok && opt.Cost.IsPositive() {
		shipping = inverseScore(opt.Cost, shippingCeiling)
	}

	delivery := 0.0
	switch d := s.FastestDays(); {
	case d <= deliveryFloorDays:
		delivery = 100
	case d < deliveryCeilingDays:
		delivery = float64(deliveryCeilingDays-d) / float64(deliveryCeilingDays-deliveryFloorDays) * 100
	}

	stock := float64(min(s.Stock, stockCap)) / stockCap * 100
	rating := s.Rating / 5 * 100

	return weightPrice*price +
		weightShipping*shipping +
		weightDelivery*delivery +
		weightStock*stock +
		weightRating*rating +
		weightReliability*Reliability(s.Supplier)
}

// inverseScore maps v in [0, ceiling] onto [100, 0], clamping above the
// ceiling.
func inverseScore(v, ceiling decimal.Decimal) float64 {
	if v.GreaterThanOrEqual(ceiling) {
		return 0
	}
	f, _ := ceiling.Sub(v).Div(ceiling).Float64()
	return f * 100
}

// Select picks the winning supplier snapshot among the candidates under
// the given strategy. Unavailable candidates are filtered out first;
// if none remain the caller receives ErrNoCandidate.
func Select(candidates []ProductSnapshot, strategy Strategy, preferred Type) (ProductSnapshot, error) {
	avail := candidates[:0:0]
	for _, c := range candidates {
		if c.Available() {
			avail = append(avail, c)
		}
	}
	if len(avail) == 0 {
		return ProductSnapshot{}, ErrNoCandidate
	}

	if strategy == StrategyDefault {
		for _, c := range avail {
			if c.Supplier == preferred {
				return c, nil
			}
		}
		// Preferred supplier unavailable, fall back to the first
		// remaining candidate.
		return avail[0], nil
	}

	best := avail[0]
	for _, c := range avail[1:] {
		if better(c, best, strategy) {
			best = c
		}
	}
	return best, nil
}

// ErrNoCandidate means no available supplier remained after filtering.
var ErrNoCandidate = fmt.Errorf("no available supplier candidate")

// better reports whether a beats b under the strategy, applying the
// documented tie-breaks.
func better(a, b ProductSnapshot, strategy Strategy) bool {
	switch strategy {
	case StrategyCheapest:
		switch a.LandedCost().Cmp(b.LandedCost()) {
		case -1:
			return true
		case 1:
			return false
		}
		return a.Rating > b.Rating
	case StrategyFastest:
		if a.FastestDays() != b.FastestDays() {
			return a.FastestDays() < b.FastestDays()
		}
		return a.LandedCost().LessThan(b.LandedCost())
	default:
		return autoScore(a) > autoScore(b)
	}
}
