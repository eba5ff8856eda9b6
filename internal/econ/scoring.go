package econ

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// WaveConfig carries every tunable of the demand simulator. The numeric
// defaults were still being iterated on, so nothing here is hard-coded at the
// call sites; internal/config maps each field to an env variable.
type WaveConfig struct {
	BudgetMicros int64

	WeightQuality float64
	WeightPrice   float64
	WeightDemand  float64
	WeightRecency float64
	WeightCompany float64

	// ReferencePriceMicros centers the logarithmic price sigmoid: items at
	// the reference score 0.5, cheaper items approach 1, pricier approach 0.
	ReferencePriceMicros int64
	PriceSteepness       float64

	SalesCeiling  int64
	RecencyWindow time.Duration

	// CompanyCapRef is the market cap (in micros) that saturates the
	// established-company score.
	CompanyCapRefMicros int64
	CompanyAgeRef       time.Duration

	Alpha          float64
	MinProbability float64
	QuantityNoise  float64

	HoldWindow          time.Duration
	OutlierMultiple     float64
	LowQualityThreshold int32
	LowQualityPenalty   float64

	CompanyBudgetFraction float64
	OrderStockFraction    float64
	OrderMaxUnits         int64

	ProductionCostMin float64
	ProductionCostMax float64
}

func DefaultWaveConfig() WaveConfig {
	return WaveConfig{
		BudgetMicros: 10_000 * MicrosPerCredit,

		WeightQuality: 0.40,
		WeightPrice:   0.25,
		WeightDemand:  0.20,
		WeightRecency: 0.05,
		WeightCompany: 0.10,

		ReferencePriceMicros: 50 * MicrosPerCredit,
		PriceSteepness:       1.1,

		SalesCeiling:  10_000,
		RecencyWindow: 30 * 24 * time.Hour,

		CompanyCapRefMicros: 10_000_000 * MicrosPerCredit,
		CompanyAgeRef:       90 * 24 * time.Hour,

		Alpha:          1.2,
		MinProbability: 0.01,
		QuantityNoise:  0.05,

		HoldWindow:          60 * time.Minute,
		OutlierMultiple:     50,
		LowQualityThreshold: 30,
		LowQualityPenalty:   0.1,

		CompanyBudgetFraction: 0.15,
		OrderStockFraction:    0.02,
		OrderMaxUnits:         100,

		ProductionCostMin: 0.23,
		ProductionCostMax: 0.67,
	}
}

// waveCandidate is one active product plus the company context the scorer
// needs. StockUnits < 0 means unlimited.
type waveCandidate struct {
	ProductID        uuid.UUID
	CompanyID        uuid.UUID
	PriceMicros      int64
	Quality          int32
	TotalSales       int64
	StockUnits       int64
	CreatedAt        time.Time
	CompanyCapMicros int64
	CompanyCreatedAt time.Time
}

func qualityScore(quality int32) float64 {
	s := float64(quality) / 100
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// priceScore maps price through a sigmoid on the log scale, centered on the
// reference price. Monotonically decreasing: cheap items are favored without
// being infinitely favored, expensive items shrink without hitting zero.
func priceScore(priceMicros, refMicros int64, steepness float64) float64 {
	if priceMicros <= 0 || refMicros <= 0 {
		return 0
	}
	x := steepness * (math.Log(float64(priceMicros)) - math.Log(float64(refMicros)))
	return 1 / (1 + math.Exp(x))
}

// demandScore smooths historical popularity so early sales matter most.
func demandScore(totalSales, ceiling int64) float64 {
	if totalSales <= 0 || ceiling <= 0 {
		return 0
	}
	s := math.Log1p(float64(totalSales)) / math.Log1p(float64(ceiling))
	if s > 1 {
		return 1
	}
	return s
}

// recencyScore decays exponentially over the window, giving newer listings a
// small edge. Weighted at 5% so it cannot dominate.
func recencyScore(age, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	if age < 0 {
		age = 0
	}
	return math.Exp(-float64(age) / float64(window))
}

// companyScore modestly rewards established companies: mostly market cap,
// partly account age.
func companyScore(capMicros int64, age time.Duration, cfg WaveConfig) float64 {
	capScore := 0.0
	if capMicros > 0 && cfg.CompanyCapRefMicros > 0 {
		capScore = math.Log1p(float64(capMicros)) / math.Log1p(float64(cfg.CompanyCapRefMicros))
		if capScore > 1 {
			capScore = 1
		}
	}
	ageScore := 0.0
	if cfg.CompanyAgeRef > 0 && age > 0 {
		ageScore = math.Min(float64(age)/float64(cfg.CompanyAgeRef), 1)
	}
	return 0.7*capScore + 0.3*ageScore
}

func compositeScore(c waveCandidate, now time.Time, cfg WaveConfig) float64 {
	return cfg.WeightQuality*qualityScore(c.Quality) +
		cfg.WeightPrice*priceScore(c.PriceMicros, cfg.ReferencePriceMicros, cfg.PriceSteepness) +
		cfg.WeightDemand*demandScore(c.TotalSales, cfg.SalesCeiling) +
		cfg.WeightRecency*recencyScore(now.Sub(c.CreatedAt), cfg.RecencyWindow) +
		cfg.WeightCompany*companyScore(c.CompanyCapMicros, now.Sub(c.CompanyCreatedAt), cfg)
}

func medianPriceMicros(candidates []waveCandidate) int64 {
	if len(candidates) == 0 {
		return 0
	}
	prices := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		prices = append(prices, c.PriceMicros)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}

// adjustedScore applies the anti-exploit rules on top of the composite score.
// A zero return means the product gets no allocation this wave.
func adjustedScore(c waveCandidate, now time.Time, medianMicros int64, cfg WaveConfig) float64 {
	// Sellers pricing absurd multiples of the market to drain the wave
	// budget are excluded outright.
	if medianMicros > 0 && float64(c.PriceMicros) > cfg.OutlierMultiple*float64(medianMicros) {
		return 0
	}
	// Freshly created products sit out the hold window, which breaks
	// create-then-farm cycles.
	if now.Sub(c.CreatedAt) < cfg.HoldWindow {
		return 0
	}
	score := compositeScore(c, now, cfg)
	// Junk listings priced above the median look attractive only through
	// price/quality ratio tricks; squash them.
	if c.Quality < cfg.LowQualityThreshold && medianMicros > 0 && c.PriceMicros > medianMicros {
		score *= cfg.LowQualityPenalty
	}
	return score
}

// purchaseProbability sharpens separation between good and mediocre products
// while guaranteeing every eligible product a floor chance of being touched.
func purchaseProbability(score float64, cfg WaveConfig) float64 {
	if score <= 0 {
		return 0
	}
	p := math.Pow(score, cfg.Alpha)
	if p < cfg.MinProbability {
		p = cfg.MinProbability
	}
	if p > 1 {
		p = 1
	}
	return p
}
