package econ

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	MicrosPerCredit = int64(1_000_000)

	// DefaultPublicThresholdMicros is the account balance at which a private
	// company is listed on the exchange. Flips exactly once, never reverts.
	DefaultPublicThresholdMicros = int64(50_000) * MicrosPerCredit

	DefaultTotalShares      = int64(100_000)
	DefaultSharePriceMicros = int64(10) * MicrosPerCredit

	DefaultQuality = int32(100)
	MaxQuality     = int32(120)
)

// SystemAccountID is the unlimited-funds counterparty for simulated demand.
// Its balance may go negative; every other account must stay >= 0.
var SystemAccountID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var (
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrCompanyNotFound      = errors.New("company not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrCompanyNotPublic     = errors.New("company is not publicly listed")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrRateLimited          = errors.New("trade rate limit exceeded")
	ErrTxConflict           = errors.New("transaction conflict, try again")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

// Ledger entry types. The ledger is append-only and double-entry: every
// balance change on an account is paired with exactly one row naming it.
const (
	EntryTransfer       = "transfer"
	EntryStockPurchase  = "stock_purchase"
	EntryStockSale      = "stock_sale"
	EntryWaveRevenue    = "wave_revenue"
	EntryWaveProduction = "wave_production_cost"
)

func CreditsToMicros(v float64) int64 {
	return int64(math.Round(v * float64(MicrosPerCredit)))
}

func MicrosToCredits(v int64) float64 {
	return float64(v) / float64(MicrosPerCredit)
}

// notionalMicros computes shares * price without intermediate overflow.
func notionalMicros(priceMicros, shares int64) (int64, error) {
	v := new(big.Int).Mul(big.NewInt(priceMicros), big.NewInt(shares))
	if !v.IsInt64() {
		return 0, fmt.Errorf("notional overflow")
	}
	return v.Int64(), nil
}

func percentChange(oldMicros, newMicros int64) float64 {
	if oldMicros == 0 {
		return 0
	}
	return (float64(newMicros) - float64(oldMicros)) / float64(oldMicros) * 100
}

func validateEntityName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return fmt.Errorf("name is required")
	}
	if len(clean) > 64 {
		return fmt.Errorf("name too long (max 64 chars)")
	}
	return nil
}

func clampQuality(q int32) int32 {
	if q < 0 {
		return 0
	}
	if q > MaxQuality {
		return MaxQuality
	}
	return q
}
