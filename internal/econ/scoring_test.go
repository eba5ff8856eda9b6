package econ

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQualityScoreClamps(t *testing.T) {
	if got := qualityScore(100); got != 1 {
		t.Fatalf("quality 100 should score 1, got %f", got)
	}
	if got := qualityScore(120); got != 1 {
		t.Fatalf("quality above 100 should clamp to 1, got %f", got)
	}
	if got := qualityScore(50); got != 0.5 {
		t.Fatalf("quality 50 should score 0.5, got %f", got)
	}
	if got := qualityScore(-5); got != 0 {
		t.Fatalf("negative quality should clamp to 0, got %f", got)
	}
}

func TestPriceScoreMonotoneDecreasing(t *testing.T) {
	cfg := DefaultWaveConfig()
	prev := 1.0
	for _, price := range []int64{
		1 * MicrosPerCredit,
		10 * MicrosPerCredit,
		50 * MicrosPerCredit,
		200 * MicrosPerCredit,
		5_000 * MicrosPerCredit,
	} {
		s := priceScore(price, cfg.ReferencePriceMicros, cfg.PriceSteepness)
		if s <= 0 || s >= 1 {
			t.Fatalf("price score out of open interval (0,1): %f at %d", s, price)
		}
		if s >= prev {
			t.Fatalf("price score not decreasing: %f at %d (previous %f)", s, price, prev)
		}
		prev = s
	}
	// The reference price sits at the sigmoid midpoint.
	mid := priceScore(cfg.ReferencePriceMicros, cfg.ReferencePriceMicros, cfg.PriceSteepness)
	if mid < 0.49 || mid > 0.51 {
		t.Fatalf("reference price should score ~0.5, got %f", mid)
	}
}

func TestDemandScoreSmoothing(t *testing.T) {
	ceiling := int64(10_000)
	if got := demandScore(0, ceiling); got != 0 {
		t.Fatalf("zero sales should score 0, got %f", got)
	}
	low := demandScore(10, ceiling)
	high := demandScore(1_000, ceiling)
	if low <= 0 || high <= low {
		t.Fatalf("demand score should grow with sales: %f vs %f", low, high)
	}
	if got := demandScore(ceiling*100, ceiling); got != 1 {
		t.Fatalf("demand score should cap at 1, got %f", got)
	}
}

func TestRecencyScoreDecays(t *testing.T) {
	window := 30 * 24 * time.Hour
	fresh := recencyScore(time.Hour, window)
	old := recencyScore(29*24*time.Hour, window)
	if fresh <= old {
		t.Fatalf("newer listings should score higher: %f vs %f", fresh, old)
	}
	if fresh > 1 {
		t.Fatalf("recency score above 1: %f", fresh)
	}
}

func TestMedianPriceMicros(t *testing.T) {
	mk := func(prices ...int64) []waveCandidate {
		out := make([]waveCandidate, 0, len(prices))
		for _, p := range prices {
			out = append(out, waveCandidate{PriceMicros: p})
		}
		return out
	}
	if got := medianPriceMicros(mk(5, 1, 3)); got != 3 {
		t.Fatalf("odd median: got %d", got)
	}
	if got := medianPriceMicros(mk(1, 3, 5, 7)); got != 4 {
		t.Fatalf("even median: got %d", got)
	}
	if got := medianPriceMicros(nil); got != 0 {
		t.Fatalf("empty median: got %d", got)
	}
}

func baseCandidate(now time.Time) waveCandidate {
	return waveCandidate{
		ProductID:        uuid.New(),
		CompanyID:        uuid.New(),
		PriceMicros:      20 * MicrosPerCredit,
		Quality:          100,
		TotalSales:       50,
		StockUnits:       -1,
		CreatedAt:        now.Add(-48 * time.Hour),
		CompanyCapMicros: 1_000_000 * MicrosPerCredit,
		CompanyCreatedAt: now.Add(-60 * 24 * time.Hour),
	}
}

func TestAdjustedScoreExcludesPriceOutlier(t *testing.T) {
	cfg := DefaultWaveConfig()
	now := time.Now()
	c := baseCandidate(now)
	median := int64(20 * MicrosPerCredit)

	c.PriceMicros = 60 * median
	if got := adjustedScore(c, now, median, cfg); got != 0 {
		t.Fatalf("60x median price should be excluded, got score %f", got)
	}
	c.PriceMicros = 2 * median
	if got := adjustedScore(c, now, median, cfg); got <= 0 {
		t.Fatalf("reasonable price should stay eligible, got %f", got)
	}
}

func TestAdjustedScoreHoldWindow(t *testing.T) {
	cfg := DefaultWaveConfig()
	now := time.Now()
	median := int64(20 * MicrosPerCredit)

	young := baseCandidate(now)
	young.CreatedAt = now.Add(-10 * time.Minute)
	if got := adjustedScore(young, now, median, cfg); got != 0 {
		t.Fatalf("10-minute-old product should be held back, got %f", got)
	}

	aged := baseCandidate(now)
	aged.CreatedAt = now.Add(-90 * time.Minute)
	if got := adjustedScore(aged, now, median, cfg); got <= 0 {
		t.Fatalf("90-minute-old product should be eligible, got %f", got)
	}
}

func TestAdjustedScoreLowQualitySpamPenalty(t *testing.T) {
	cfg := DefaultWaveConfig()
	now := time.Now()
	median := int64(20 * MicrosPerCredit)

	junk := baseCandidate(now)
	junk.Quality = 20
	junk.PriceMicros = 2 * median
	penalized := adjustedScore(junk, now, median, cfg)

	same := junk
	same.Quality = cfg.LowQualityThreshold
	unpenalized := adjustedScore(same, now, median, cfg)

	if penalized <= 0 {
		t.Fatalf("penalty should squash, not exclude: %f", penalized)
	}
	// The penalty must dwarf the quality-weight difference alone.
	if penalized >= unpenalized*cfg.LowQualityPenalty*2 {
		t.Fatalf("low-quality high-price penalty too weak: %f vs %f", penalized, unpenalized)
	}
}

func TestPurchaseProbabilityFloorAndSharpening(t *testing.T) {
	cfg := DefaultWaveConfig()
	if got := purchaseProbability(0, cfg); got != 0 {
		t.Fatalf("zero score means zero probability, got %f", got)
	}
	if got := purchaseProbability(0.001, cfg); got != cfg.MinProbability {
		t.Fatalf("tiny scores should floor at MinProbability, got %f", got)
	}
	good := purchaseProbability(0.9, cfg)
	mediocre := purchaseProbability(0.5, cfg)
	// alpha > 1 sharpens: the good/mediocre ratio exceeds the raw ratio.
	if good/mediocre <= 0.9/0.5 {
		t.Fatalf("power curve should sharpen separation: %f vs %f", good, mediocre)
	}
	if got := purchaseProbability(1.5, cfg); got != 1 {
		t.Fatalf("probability must cap at 1, got %f", got)
	}
}
