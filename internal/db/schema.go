package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the econ schema on startup. Statements are idempotent
// so both binaries can race on a fresh database.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS econ`,
		`CREATE TABLE IF NOT EXISTS econ.accounts (
			id uuid PRIMARY KEY,
			owner_type text NOT NULL,
			balance_micros bigint NOT NULL DEFAULT 0,
			active boolean NOT NULL DEFAULT true,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS econ.companies (
			id uuid PRIMARY KEY,
			account_id uuid NOT NULL UNIQUE REFERENCES econ.accounts (id),
			name text NOT NULL,
			share_price_micros bigint NOT NULL,
			total_shares bigint NOT NULL,
			is_public boolean NOT NULL DEFAULT false,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS econ.products (
			id uuid PRIMARY KEY,
			company_id uuid NOT NULL REFERENCES econ.companies (id),
			name text NOT NULL,
			price_micros bigint NOT NULL,
			quality integer NOT NULL DEFAULT 100,
			stock_units bigint,
			is_active boolean NOT NULL DEFAULT true,
			total_sales bigint NOT NULL DEFAULT 0,
			total_revenue_micros bigint NOT NULL DEFAULT 0,
			total_costs_micros bigint NOT NULL DEFAULT 0,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS econ.stock_holdings (
			holder_id uuid NOT NULL,
			holder_type text NOT NULL DEFAULT 'user',
			company_id uuid NOT NULL REFERENCES econ.companies (id),
			shares bigint NOT NULL,
			avg_price_micros bigint NOT NULL,
			PRIMARY KEY (holder_id, company_id)
		)`,
		`CREATE TABLE IF NOT EXISTS econ.price_history (
			company_id uuid NOT NULL REFERENCES econ.companies (id),
			tick_at timestamptz NOT NULL DEFAULT now(),
			price_micros bigint NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS price_history_company_tick
			ON econ.price_history (company_id, tick_at DESC)`,
		`CREATE TABLE IF NOT EXISTS econ.ledger_entries (
			id bigserial PRIMARY KEY,
			tx_group_id uuid NOT NULL,
			from_account_id uuid NOT NULL REFERENCES econ.accounts (id),
			to_account_id uuid NOT NULL REFERENCES econ.accounts (id),
			amount_micros bigint NOT NULL CHECK (amount_micros > 0),
			entry_type text NOT NULL,
			product_id uuid,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_from_account
			ON econ.ledger_entries (from_account_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_to_account
			ON econ.ledger_entries (to_account_id, id DESC)`,
		`CREATE TABLE IF NOT EXISTS econ.idempotency_keys (
			key text PRIMARY KEY,
			action text NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
