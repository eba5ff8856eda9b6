package econ

import (
	"time"

	"github.com/google/uuid"
)

type CreateCompanyInput struct {
	Name                 string
	InitialDepositMicros int64
	TotalShares          int64
	SharePriceMicros     int64
	IdempotencyKey       string
}

type CompanyView struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uuid.UUID `json:"account_id"`
	Name             string    `json:"name"`
	SharePriceMicros int64     `json:"share_price_micros"`
	TotalShares      int64     `json:"total_shares"`
	IsPublic         bool      `json:"is_public"`
	CreatedAt        time.Time `json:"created_at"`
}

type CompanyDetail struct {
	CompanyView
	BalanceMicros int64        `json:"balance_micros"`
	Prices        []PricePoint `json:"prices"`
}

type PricePoint struct {
	TickAt      time.Time `json:"tick_at"`
	PriceMicros int64     `json:"price_micros"`
}

type CreateProductInput struct {
	CompanyID      uuid.UUID
	Name           string
	PriceMicros    int64
	Quality        *int32 // nil means DefaultQuality
	StockUnits     *int64 // nil means unlimited
	IdempotencyKey string
}

type ProductView struct {
	ID                 uuid.UUID `json:"id"`
	CompanyID          uuid.UUID `json:"company_id"`
	Name               string    `json:"name"`
	PriceMicros        int64     `json:"price_micros"`
	Quality            int32     `json:"quality"`
	StockUnits         *int64    `json:"stock_units,omitempty"`
	IsActive           bool      `json:"is_active"`
	TotalSales         int64     `json:"total_sales"`
	TotalRevenueMicros int64     `json:"total_revenue_micros"`
	TotalCostsMicros   int64     `json:"total_costs_micros"`
	CreatedAt          time.Time `json:"created_at"`
}

type TransferInput struct {
	FromAccountID  uuid.UUID
	ToAccountID    uuid.UUID
	AmountMicros   int64
	IdempotencyKey string
}

type TransferResult struct {
	TxGroupID         uuid.UUID `json:"tx_group_id"`
	FromBalanceMicros int64     `json:"from_balance_micros"`
	ToBalanceMicros   int64     `json:"to_balance_micros"`
}

type TradeInput struct {
	CompanyID      uuid.UUID
	AccountID      uuid.UUID
	Shares         int64
	IdempotencyKey string
}

type TradeResult struct {
	OldPriceMicros     int64   `json:"old_price_micros"`
	NewPriceMicros     int64   `json:"new_price_micros"`
	PriceChangePercent float64 `json:"price_change_percent"`
	NotionalMicros     int64   `json:"notional_micros"`
	BalanceMicros      int64   `json:"balance_micros"`
}

type BalanceView struct {
	AccountID     uuid.UUID `json:"account_id"`
	OwnerType     string    `json:"owner_type"`
	BalanceMicros int64     `json:"balance_micros"`
	Active        bool      `json:"active"`
}

type LedgerEntryView struct {
	TxGroupID     uuid.UUID  `json:"tx_group_id"`
	FromAccountID uuid.UUID  `json:"from_account_id"`
	ToAccountID   uuid.UUID  `json:"to_account_id"`
	AmountMicros  int64      `json:"amount_micros"`
	EntryType     string     `json:"entry_type"`
	ProductID     *uuid.UUID `json:"product_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// WaveResult is the telemetry for one demand wave. Errors holds at most the
// first waveErrorLimit failures; the wave itself never aborts on them.
type WaveResult struct {
	TotalSpentMicros int64    `json:"total_spent_micros"`
	ItemsPurchased   int64    `json:"items_purchased"`
	ProductsTouched  int      `json:"products_touched"`
	CompaniesTouched int      `json:"companies_touched"`
	Errors           []string `json:"errors,omitempty"`
}
