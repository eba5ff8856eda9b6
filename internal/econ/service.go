package econ

import (
	"context"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config aggregates the tunables shared by both engines.
type Config struct {
	Wave                  WaveConfig
	Impact                ImpactParams
	Retry                 RetryPolicy
	PublicThresholdMicros int64
}

func DefaultConfig() Config {
	return Config{
		Wave:                  DefaultWaveConfig(),
		Impact:                DefaultImpactParams(),
		Retry:                 DefaultRetryPolicy(),
		PublicThresholdMicros: DefaultPublicThresholdMicros,
	}
}

// Service is the economic core: accounts, companies, products, the ledger,
// the stock trading engine, and the demand simulator. All money movement goes
// through serializable per-call transactions against the pool.
type Service struct {
	db      *pgxpool.Pool
	log     *slog.Logger
	limiter *RateLimiter
	cfg     Config

	mu   sync.Mutex
	rand *mathrand.Rand
}

func NewService(db *pgxpool.Pool, limiter *RateLimiter, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:      db,
		log:     logger,
		limiter: limiter,
		cfg:     cfg,
		rand:    mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) nextFloat() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rand.Float64()
}

// EnsureSystemAccount creates the unlimited-funds simulator account on first
// use. Idempotent; both binaries call it at startup.
func (s *Service) EnsureSystemAccount(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO econ.accounts (id, owner_type, balance_micros, active)
		VALUES ($1, 'system', 0, true)
		ON CONFLICT (id) DO NOTHING
	`, SystemAccountID)
	return err
}

func (s *Service) CreateCompany(ctx context.Context, in CreateCompanyInput) (CompanyView, error) {
	var out CompanyView
	if err := validateEntityName(in.Name); err != nil {
		return out, err
	}
	if in.InitialDepositMicros < 0 {
		return out, fmt.Errorf("initial deposit must be >= 0")
	}
	if in.TotalShares <= 0 {
		in.TotalShares = DefaultTotalShares
	}
	if in.SharePriceMicros <= 0 {
		in.SharePriceMicros = DefaultSharePriceMicros
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "create_company"); err != nil {
		return out, err
	}

	accountID := uuid.New()
	if _, err := tx.Exec(ctx, `
		INSERT INTO econ.accounts (id, owner_type, balance_micros, active)
		VALUES ($1, 'company', $2, true)
	`, accountID, in.InitialDepositMicros); err != nil {
		return out, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO econ.companies (id, account_id, name, share_price_micros, total_shares, is_public)
		VALUES ($1, $2, $3, $4, $5, false)
		RETURNING id, account_id, name, share_price_micros, total_shares, is_public, created_at
	`, uuid.New(), accountID, strings.TrimSpace(in.Name), in.SharePriceMicros, in.TotalShares).Scan(
		&out.ID, &out.AccountID, &out.Name, &out.SharePriceMicros, &out.TotalShares, &out.IsPublic, &out.CreatedAt)
	if err != nil {
		return out, err
	}
	return out, tx.Commit(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (ProductView, error) {
	var out ProductView
	if err := validateEntityName(in.Name); err != nil {
		return out, err
	}
	if in.PriceMicros <= 0 {
		return out, fmt.Errorf("price must be > 0")
	}
	quality := DefaultQuality
	if in.Quality != nil {
		quality = clampQuality(*in.Quality)
	}
	var stock *int64
	if in.StockUnits != nil {
		if *in.StockUnits < 0 {
			return out, fmt.Errorf("stock must be >= 0")
		}
		stock = in.StockUnits
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return out, err
	}
	defer tx.Rollback(ctx)

	if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "create_product"); err != nil {
		return out, err
	}

	var exists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM econ.companies WHERE id = $1)
	`, in.CompanyID).Scan(&exists); err != nil {
		return out, err
	}
	if !exists {
		return out, ErrCompanyNotFound
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO econ.products (id, company_id, name, price_micros, quality, stock_units, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)
		RETURNING id, company_id, name, price_micros, quality, stock_units, is_active,
		          total_sales, total_revenue_micros, total_costs_micros, created_at
	`, uuid.New(), in.CompanyID, strings.TrimSpace(in.Name), in.PriceMicros, quality, stock).Scan(
		&out.ID, &out.CompanyID, &out.Name, &out.PriceMicros, &out.Quality, &out.StockUnits,
		&out.IsActive, &out.TotalSales, &out.TotalRevenueMicros, &out.TotalCostsMicros, &out.CreatedAt)
	if err != nil {
		return out, err
	}
	return out, tx.Commit(ctx)
}

func (s *Service) ListCompanies(ctx context.Context) ([]CompanyView, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, account_id, name, share_price_micros, total_shares, is_public, created_at
		FROM econ.companies
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompanyView
	for rows.Next() {
		var c CompanyView
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.SharePriceMicros, &c.TotalShares, &c.IsPublic, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Service) CompanyDetail(ctx context.Context, companyID uuid.UUID) (CompanyDetail, error) {
	var out CompanyDetail
	err := s.db.QueryRow(ctx, `
		SELECT c.id, c.account_id, c.name, c.share_price_micros, c.total_shares, c.is_public, c.created_at,
		       a.balance_micros
		FROM econ.companies c
		JOIN econ.accounts a ON a.id = c.account_id
		WHERE c.id = $1
	`, companyID).Scan(&out.ID, &out.AccountID, &out.Name, &out.SharePriceMicros, &out.TotalShares,
		&out.IsPublic, &out.CreatedAt, &out.BalanceMicros)
	if err != nil {
		if err == pgx.ErrNoRows {
			return out, ErrCompanyNotFound
		}
		return out, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT tick_at, price_micros
		FROM econ.price_history
		WHERE company_id = $1
		ORDER BY tick_at DESC
		LIMIT 128
	`, companyID)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.TickAt, &p.PriceMicros); err != nil {
			return out, err
		}
		out.Prices = append(out.Prices, p)
	}
	return out, rows.Err()
}

// PriceHistory returns the most recent price ticks for a company, newest
// first.
func (s *Service) PriceHistory(ctx context.Context, companyID uuid.UUID, limit int) ([]PricePoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 128
	}
	var exists bool
	if err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM econ.companies WHERE id = $1)
	`, companyID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCompanyNotFound
	}
	rows, err := s.db.Query(ctx, `
		SELECT tick_at, price_micros
		FROM econ.price_history
		WHERE company_id = $1
		ORDER BY tick_at DESC
		LIMIT $2
	`, companyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.TickAt, &p.PriceMicros); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) ListProducts(ctx context.Context, companyID *uuid.UUID) ([]ProductView, error) {
	query := `
		SELECT id, company_id, name, price_micros, quality, stock_units, is_active,
		       total_sales, total_revenue_micros, total_costs_micros, created_at
		FROM econ.products
	`
	args := []any{}
	if companyID != nil {
		query += " WHERE company_id = $1"
		args = append(args, *companyID)
	}
	query += " ORDER BY created_at DESC"
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductView
	for rows.Next() {
		var p ProductView
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.PriceMicros, &p.Quality, &p.StockUnits,
			&p.IsActive, &p.TotalSales, &p.TotalRevenueMicros, &p.TotalCostsMicros, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) AccountBalance(ctx context.Context, accountID uuid.UUID) (BalanceView, error) {
	var out BalanceView
	err := s.db.QueryRow(ctx, `
		SELECT id, owner_type, balance_micros, active
		FROM econ.accounts
		WHERE id = $1
	`, accountID).Scan(&out.AccountID, &out.OwnerType, &out.BalanceMicros, &out.Active)
	if err == pgx.ErrNoRows {
		return out, ErrAccountNotFound
	}
	return out, err
}

func (s *Service) LedgerEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]LedgerEntryView, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT tx_group_id, from_account_id, to_account_id, amount_micros, entry_type, product_id, created_at
		FROM econ.ledger_entries
		WHERE from_account_id = $1 OR to_account_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerEntryView
	for rows.Next() {
		var e LedgerEntryView
		if err := rows.Scan(&e.TxGroupID, &e.FromAccountID, &e.ToAccountID, &e.AmountMicros, &e.EntryType, &e.ProductID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Transfer moves credits between two accounts as a plain ledger transfer.
// Only the system account may go negative; every other sender needs the
// balance to cover the amount.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	var out TransferResult
	if in.AmountMicros <= 0 {
		return out, ErrInvalidQuantity
	}
	if in.FromAccountID == in.ToAccountID {
		return out, fmt.Errorf("transfer endpoints must differ")
	}

	err := s.cfg.Retry.Do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "transfer"); err != nil {
			return err
		}

		// Locking in id order keeps opposite-direction transfers between
		// the same pair deadlock-free.
		rows, err := tx.Query(ctx, `
			SELECT id, balance_micros
			FROM econ.accounts
			WHERE id IN ($1, $2) AND active
			ORDER BY id
			FOR UPDATE
		`, in.FromAccountID, in.ToAccountID)
		if err != nil {
			return err
		}
		balances := make(map[uuid.UUID]int64, 2)
		for rows.Next() {
			var id uuid.UUID
			var balance int64
			if err := rows.Scan(&id, &balance); err != nil {
				rows.Close()
				return err
			}
			balances[id] = balance
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(balances) != 2 {
			return ErrAccountNotFound
		}

		fromBalance := balances[in.FromAccountID]
		if in.FromAccountID != SystemAccountID && fromBalance < in.AmountMicros {
			return ErrInsufficientFunds
		}
		fromBalance -= in.AmountMicros
		toBalance := balances[in.ToAccountID] + in.AmountMicros

		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = $1 WHERE id = $2
		`, fromBalance, in.FromAccountID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = $1 WHERE id = $2
		`, toBalance, in.ToAccountID); err != nil {
			return err
		}

		txGroup := uuid.New()
		if err := appendLedgerEntry(ctx, tx, txGroup, in.FromAccountID, in.ToAccountID, in.AmountMicros, EntryTransfer, nil); err != nil {
			return err
		}

		out = TransferResult{
			TxGroupID:         txGroup,
			FromBalanceMicros: fromBalance,
			ToBalanceMicros:   toBalance,
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return TransferResult{}, err
	}
	return out, nil
}

// appendLedgerEntry records one money movement. The caller must have applied
// the matching balance deltas inside the same transaction; the ledger and the
// balances always move together.
func appendLedgerEntry(ctx context.Context, tx pgx.Tx, txGroupID uuid.UUID, from, to uuid.UUID, amountMicros int64, entryType string, productID *uuid.UUID) error {
	if amountMicros <= 0 {
		return fmt.Errorf("ledger amount must be > 0")
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO econ.ledger_entries (tx_group_id, from_account_id, to_account_id, amount_micros, entry_type, product_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, txGroupID, from, to, amountMicros, entryType, productID)
	return err
}

func claimIdempotency(ctx context.Context, tx pgx.Tx, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := tx.Exec(ctx, `
		INSERT INTO econ.idempotency_keys (key, action, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO NOTHING
	`, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrDuplicateIdempotency
	}
	return nil
}

// maybeFlipPublic lists the company once its account balance exceeds the
// threshold. Both engines call this after settlement; the WHERE clause makes
// the flip one-way and idempotent under concurrency.
func maybeFlipPublic(ctx context.Context, tx pgx.Tx, companyID uuid.UUID, thresholdMicros int64) (bool, error) {
	cmd, err := tx.Exec(ctx, `
		UPDATE econ.companies c
		SET is_public = true
		FROM econ.accounts a
		WHERE c.id = $1
		  AND a.id = c.account_id
		  AND c.is_public = false
		  AND a.balance_micros > $2
	`, companyID, thresholdMicros)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// SeedDemo inserts a starter market when the companies table is empty, so a
// fresh deployment has something for the first wave to buy.
func (s *Service) SeedDemo(ctx context.Context) error {
	var count int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(1) FROM econ.companies`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seed := []struct {
		Company  string
		Deposit  int64
		Products []struct {
			Name    string
			Price   int64
			Quality int32
		}
	}{
		{"Nimbus Foods", 60_000 * MicrosPerCredit, []struct {
			Name    string
			Price   int64
			Quality int32
		}{
			{"Cloudberry Jam", 12 * MicrosPerCredit, 104},
			{"Storm Roast Coffee", 18 * MicrosPerCredit, 98},
		}},
		{"Vectra Tools", 20_000 * MicrosPerCredit, []struct {
			Name    string
			Price   int64
			Quality int32
		}{
			{"Precision Driver", 45 * MicrosPerCredit, 110},
			{"Budget Wrench Set", 9 * MicrosPerCredit, 72},
		}},
		{"Zenith Apparel", 8_000 * MicrosPerCredit, []struct {
			Name    string
			Price   int64
			Quality int32
		}{
			{"Trail Jacket", 80 * MicrosPerCredit, 95},
		}},
	}

	for _, row := range seed {
		company, err := s.CreateCompany(ctx, CreateCompanyInput{
			Name:                 row.Company,
			InitialDepositMicros: row.Deposit,
			IdempotencyKey:       "seed:" + row.Company,
		})
		if err != nil {
			return err
		}
		for _, p := range row.Products {
			q := p.Quality
			if _, err := s.CreateProduct(ctx, CreateProductInput{
				CompanyID:      company.ID,
				Name:           p.Name,
				PriceMicros:    p.Price,
				Quality:        &q,
				IdempotencyKey: "seed:" + row.Company + ":" + p.Name,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
