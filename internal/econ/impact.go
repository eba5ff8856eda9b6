package econ

import "math"

// ImpactParams tunes the price reaction of a single executed trade.
type ImpactParams struct {
	// Factor scales the square-root-dampened trade ratio into a price move.
	Factor float64
	// BaseCap is the minimum bound on any single trade's price change.
	BaseCap float64
	// CapGrowth widens the bound toward BaseCap+CapGrowth as the trade
	// approaches the size of the whole float.
	CapGrowth float64
}

func DefaultImpactParams() ImpactParams {
	return ImpactParams{
		Factor:    0.5,
		BaseCap:   0.02,
		CapGrowth: 0.03,
	}
}

// Apply computes the post-trade share price. direction is +1 for a buy,
// -1 for a sell. The square-root dampening makes the impact sub-linear in
// trade size and the dynamic cap bounds even float-sized trades. Splitting
// one order into many small ones still moves the price faster, which is
// what the trade rate limiter guards against. The result is always > 0 and,
// for a fixed direction, monotonic in sharesTraded.
func (p ImpactParams) Apply(priceMicros, sharesTraded, totalShares int64, direction int) int64 {
	liquidity := totalShares
	if liquidity < 1 {
		liquidity = 1
	}
	tradeRatio := float64(sharesTraded) / float64(liquidity)
	dampened := math.Sqrt(tradeRatio)
	raw := float64(direction) * dampened * p.Factor

	maxChange := p.BaseCap + math.Min(tradeRatio*2, 1)*p.CapGrowth
	clamped := raw
	if clamped > maxChange {
		clamped = maxChange
	}
	if clamped < -maxChange {
		clamped = -maxChange
	}

	next := int64(math.Round(float64(priceMicros) * (1 + clamped)))
	if next < 1 {
		next = 1
	}
	return next
}
