package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"magnate/internal/econ"
)

type ServiceConfig struct {
	Addr           string
	DatabaseURL    string
	RedisURL       string
	DBMaxConns     int32
	RequestTimeout time.Duration

	WaveEvery       time.Duration
	StartupSeedDemo bool

	RateLimitTrades int
	RateLimitWindow time.Duration

	Econ econ.Config
}

type CLIConfig struct {
	APIBaseURL string
}

func LoadServiceFromEnv() (ServiceConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("MAGNATE_API_ADDR", ":8080")
	}

	cfg := ServiceConfig{
		Addr:           addr,
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:       envDefault("REDIS_URL", "redis://localhost:6379/0"),
		DBMaxConns:     int32(envIntDefault("MAGNATE_DB_MAX_CONNS", 16)),
		RequestTimeout: envDurationDefault("MAGNATE_API_REQUEST_TIMEOUT", 60*time.Second),

		WaveEvery:       envDurationDefault("MAGNATE_WAVE_EVERY", 20*time.Minute),
		StartupSeedDemo: envBoolDefault("MAGNATE_STARTUP_SEED_DEMO", true),

		RateLimitTrades: envIntDefault("MAGNATE_TRADE_RATE_LIMIT", 3),
		RateLimitWindow: envDurationDefault("MAGNATE_TRADE_RATE_WINDOW", 5*time.Second),

		Econ: loadEconFromEnv(),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// loadEconFromEnv starts from the engine defaults and lets every tunable of
// the demand simulator and trading engine be overridden individually. The
// constants are still being tuned in production, hence config, not code.
func loadEconFromEnv() econ.Config {
	c := econ.DefaultConfig()

	c.PublicThresholdMicros = envCreditsDefault("MAGNATE_PUBLIC_THRESHOLD_CREDITS", c.PublicThresholdMicros)

	w := &c.Wave
	w.BudgetMicros = envCreditsDefault("MAGNATE_WAVE_BUDGET_CREDITS", w.BudgetMicros)
	w.WeightQuality = envFloatDefault("MAGNATE_WAVE_WEIGHT_QUALITY", w.WeightQuality)
	w.WeightPrice = envFloatDefault("MAGNATE_WAVE_WEIGHT_PRICE", w.WeightPrice)
	w.WeightDemand = envFloatDefault("MAGNATE_WAVE_WEIGHT_DEMAND", w.WeightDemand)
	w.WeightRecency = envFloatDefault("MAGNATE_WAVE_WEIGHT_RECENCY", w.WeightRecency)
	w.WeightCompany = envFloatDefault("MAGNATE_WAVE_WEIGHT_COMPANY", w.WeightCompany)
	w.ReferencePriceMicros = envCreditsDefault("MAGNATE_WAVE_REFERENCE_PRICE_CREDITS", w.ReferencePriceMicros)
	w.PriceSteepness = envFloatDefault("MAGNATE_WAVE_PRICE_STEEPNESS", w.PriceSteepness)
	w.SalesCeiling = int64(envIntDefault("MAGNATE_WAVE_SALES_CEILING", int(w.SalesCeiling)))
	w.RecencyWindow = envDurationDefault("MAGNATE_WAVE_RECENCY_WINDOW", w.RecencyWindow)
	w.Alpha = envFloatDefault("MAGNATE_WAVE_ALPHA", w.Alpha)
	w.MinProbability = envFloatDefault("MAGNATE_WAVE_MIN_PROBABILITY", w.MinProbability)
	w.QuantityNoise = envFloatDefault("MAGNATE_WAVE_QUANTITY_NOISE", w.QuantityNoise)
	w.HoldWindow = envDurationDefault("MAGNATE_WAVE_HOLD_WINDOW", w.HoldWindow)
	w.OutlierMultiple = envFloatDefault("MAGNATE_WAVE_OUTLIER_MULTIPLE", w.OutlierMultiple)
	w.LowQualityThreshold = int32(envIntDefault("MAGNATE_WAVE_LOW_QUALITY_THRESHOLD", int(w.LowQualityThreshold)))
	w.LowQualityPenalty = envFloatDefault("MAGNATE_WAVE_LOW_QUALITY_PENALTY", w.LowQualityPenalty)
	w.CompanyBudgetFraction = envFloatDefault("MAGNATE_WAVE_COMPANY_BUDGET_FRACTION", w.CompanyBudgetFraction)
	w.OrderStockFraction = envFloatDefault("MAGNATE_WAVE_ORDER_STOCK_FRACTION", w.OrderStockFraction)
	w.OrderMaxUnits = int64(envIntDefault("MAGNATE_WAVE_ORDER_MAX_UNITS", int(w.OrderMaxUnits)))
	w.ProductionCostMin = envFloatDefault("MAGNATE_WAVE_PRODUCTION_COST_MIN", w.ProductionCostMin)
	w.ProductionCostMax = envFloatDefault("MAGNATE_WAVE_PRODUCTION_COST_MAX", w.ProductionCostMax)

	c.Impact.Factor = envFloatDefault("MAGNATE_IMPACT_FACTOR", c.Impact.Factor)
	c.Impact.BaseCap = envFloatDefault("MAGNATE_IMPACT_BASE_CAP", c.Impact.BaseCap)
	c.Impact.CapGrowth = envFloatDefault("MAGNATE_IMPACT_CAP_GROWTH", c.Impact.CapGrowth)

	c.Retry.MaxAttempts = envIntDefault("MAGNATE_RETRY_MAX_ATTEMPTS", c.Retry.MaxAttempts)
	c.Retry.BaseDelay = envDurationDefault("MAGNATE_RETRY_BASE_DELAY", c.Retry.BaseDelay)
	c.Retry.MaxDelay = envDurationDefault("MAGNATE_RETRY_MAX_DELAY", c.Retry.MaxDelay)

	return c
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("MGN_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envCreditsDefault reads a whole-credits value and stores micros.
func envCreditsDefault(key string, fallbackMicros int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallbackMicros
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallbackMicros
	}
	return econ.CreditsToMicros(f)
}
