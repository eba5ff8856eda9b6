package econ

import "testing"

func TestImpactAlwaysPositive(t *testing.T) {
	p := DefaultImpactParams()
	cases := []struct {
		price, shares, total int64
		direction            int
	}{
		{1, 1, 1, -1},
		{10 * MicrosPerCredit, 1_000_000, 100, -1},
		{MicrosPerCredit, 1, 0, -1},
		{5 * MicrosPerCredit, 50_000, 100_000, +1},
	}
	for _, tc := range cases {
		got := p.Apply(tc.price, tc.shares, tc.total, tc.direction)
		if got <= 0 {
			t.Fatalf("price=%d shares=%d total=%d dir=%d: got %d, want > 0",
				tc.price, tc.shares, tc.total, tc.direction, got)
		}
	}
}

func TestImpactMonotonicInSize(t *testing.T) {
	p := DefaultImpactParams()
	price := int64(100 * MicrosPerCredit)
	total := int64(100_000)

	prev := int64(0)
	for _, shares := range []int64{1, 10, 100, 1_000, 10_000, 100_000} {
		next := p.Apply(price, shares, total, +1)
		if next <= price {
			t.Fatalf("buy of %d shares did not raise the price: %d", shares, next)
		}
		if next < prev {
			t.Fatalf("impact not monotonic: %d shares -> %d, previous %d", shares, next, prev)
		}
		prev = next
	}

	prev = price
	for _, shares := range []int64{1, 10, 100, 1_000, 10_000, 100_000} {
		next := p.Apply(price, shares, total, -1)
		if next >= price {
			t.Fatalf("sell of %d shares did not lower the price: %d", shares, next)
		}
		if next > prev {
			t.Fatalf("sell impact not monotonic: %d shares -> %d, previous %d", shares, next, prev)
		}
		prev = next
	}
}

func TestImpactCapBoundsFloatSizedTrade(t *testing.T) {
	p := DefaultImpactParams()
	price := int64(100 * MicrosPerCredit)
	total := int64(1_000)

	// A trade the size of the whole float is bounded at BaseCap+CapGrowth.
	got := p.Apply(price, total, total, +1)
	change := percentChange(price, got)
	maxPercent := (p.BaseCap + p.CapGrowth) * 100
	if change > maxPercent+0.0001 {
		t.Fatalf("float-sized buy exceeded cap: %.6f%% > %.6f%%", change, maxPercent)
	}
}

func TestImpactScenarioSmallBuy(t *testing.T) {
	// 100,000 share float at 10.00, buying 1,000 shares: the new price must
	// land strictly between 10.00 and 10.55 with a positive change percent.
	p := DefaultImpactParams()
	oldPrice := int64(10 * MicrosPerCredit)
	newPrice := p.Apply(oldPrice, 1_000, 100_000, +1)

	if newPrice <= oldPrice {
		t.Fatalf("expected price to rise, got %d", newPrice)
	}
	upper := CreditsToMicros(10.55)
	if newPrice >= upper {
		t.Fatalf("price %d not strictly below %d", newPrice, upper)
	}
	if change := percentChange(oldPrice, newPrice); change <= 0 {
		t.Fatalf("expected positive change percent, got %f", change)
	}
}

func TestImpactSellFloorsAboveZero(t *testing.T) {
	p := DefaultImpactParams()
	price := int64(1)
	for i := 0; i < 50; i++ {
		price = p.Apply(price, 1_000, 1_000, -1)
		if price <= 0 {
			t.Fatalf("price fell to %d after %d sells", price, i+1)
		}
	}
}
