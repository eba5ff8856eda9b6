package econ

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Buy purchases shares of a public company for the given account. Settlement
// uses the pre-impact price: the trade fills at the price observed before its
// own impact, and the impacted price becomes the next trader's quote. That is
// the canonical settlement rule for this engine.
func (s *Service) Buy(ctx context.Context, in TradeInput) (TradeResult, error) {
	return s.executeTrade(ctx, in, +1)
}

// Sell liquidates shares back to the company at the pre-impact price. The
// company account pays the proceeds, so a sale that the company treasury
// cannot cover is rejected like any other insufficient-funds case.
func (s *Service) Sell(ctx context.Context, in TradeInput) (TradeResult, error) {
	return s.executeTrade(ctx, in, -1)
}

func (s *Service) executeTrade(ctx context.Context, in TradeInput, direction int) (TradeResult, error) {
	var out TradeResult
	if in.Shares <= 0 {
		return out, ErrInvalidQuantity
	}
	if s.limiter != nil {
		if err := s.limiter.Allow(ctx, in.AccountID); err != nil {
			return out, err
		}
	}

	err := s.cfg.Retry.Do(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := claimIdempotency(ctx, tx, in.IdempotencyKey, "trade"); err != nil {
			return err
		}

		var companyAccountID uuid.UUID
		var totalShares int64
		var isPublic bool
		if err := tx.QueryRow(ctx, `
			SELECT account_id, share_price_micros, total_shares, is_public
			FROM econ.companies
			WHERE id = $1
			FOR UPDATE
		`, in.CompanyID).Scan(&companyAccountID, &out.OldPriceMicros, &totalShares, &isPublic); err != nil {
			if err == pgx.ErrNoRows {
				return ErrCompanyNotFound
			}
			return err
		}
		if !isPublic {
			return ErrCompanyNotPublic
		}

		notional, err := notionalMicros(out.OldPriceMicros, in.Shares)
		if err != nil {
			return err
		}
		out.NotionalMicros = notional

		var traderBalance int64
		if err := tx.QueryRow(ctx, `
			SELECT balance_micros
			FROM econ.accounts
			WHERE id = $1 AND active
			FOR UPDATE
		`, in.AccountID).Scan(&traderBalance); err != nil {
			if err == pgx.ErrNoRows {
				return ErrAccountNotFound
			}
			return err
		}
		var companyBalance int64
		if err := tx.QueryRow(ctx, `
			SELECT balance_micros
			FROM econ.accounts
			WHERE id = $1
			FOR UPDATE
		`, companyAccountID).Scan(&companyBalance); err != nil {
			return err
		}

		txGroup := uuid.New()
		switch direction {
		case +1:
			if traderBalance < notional {
				return ErrInsufficientFunds
			}
			if err := upsertBuyHolding(ctx, tx, in.AccountID, in.CompanyID, in.Shares, out.OldPriceMicros); err != nil {
				return err
			}
			traderBalance -= notional
			companyBalance += notional
			if err := appendLedgerEntry(ctx, tx, txGroup, in.AccountID, companyAccountID, notional, EntryStockPurchase, nil); err != nil {
				return err
			}
		default:
			if companyBalance < notional {
				return ErrInsufficientFunds
			}
			if err := applySellHolding(ctx, tx, in.AccountID, in.CompanyID, in.Shares); err != nil {
				return err
			}
			companyBalance -= notional
			traderBalance += notional
			if err := appendLedgerEntry(ctx, tx, txGroup, companyAccountID, in.AccountID, notional, EntryStockSale, nil); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = $1 WHERE id = $2
		`, traderBalance, in.AccountID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = $1 WHERE id = $2
		`, companyBalance, companyAccountID); err != nil {
			return err
		}

		out.NewPriceMicros = s.cfg.Impact.Apply(out.OldPriceMicros, in.Shares, totalShares, direction)
		out.PriceChangePercent = percentChange(out.OldPriceMicros, out.NewPriceMicros)
		if _, err := tx.Exec(ctx, `
			UPDATE econ.companies SET share_price_micros = $1 WHERE id = $2
		`, out.NewPriceMicros, in.CompanyID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO econ.price_history (company_id, tick_at, price_micros)
			VALUES ($1, now(), $2)
		`, in.CompanyID, out.NewPriceMicros); err != nil {
			return err
		}

		// A buy can push the treasury over the listing threshold for a
		// company that went private-side rich in the meantime; harmless
		// no-op otherwise.
		if _, err := maybeFlipPublic(ctx, tx, in.CompanyID, s.cfg.PublicThresholdMicros); err != nil {
			return err
		}

		out.BalanceMicros = traderBalance
		return tx.Commit(ctx)
	})
	if err != nil {
		return TradeResult{}, err
	}
	return out, nil
}

// upsertBuyHolding applies weighted-average cost basis:
// newAvg = (oldShares*oldAvg + shares*price) / (oldShares+shares).
func upsertBuyHolding(ctx context.Context, tx pgx.Tx, holderID, companyID uuid.UUID, shares, priceMicros int64) error {
	var oldShares, oldAvg int64
	err := tx.QueryRow(ctx, `
		SELECT shares, avg_price_micros
		FROM econ.stock_holdings
		WHERE holder_id = $1 AND company_id = $2
		FOR UPDATE
	`, holderID, companyID).Scan(&oldShares, &oldAvg)
	if err != nil && err != pgx.ErrNoRows {
		return err
	}
	if err == pgx.ErrNoRows {
		_, err = tx.Exec(ctx, `
			INSERT INTO econ.stock_holdings (holder_id, holder_type, company_id, shares, avg_price_micros)
			VALUES ($1, 'user', $2, $3, $4)
		`, holderID, companyID, shares, priceMicros)
		return err
	}

	newAvg, err := averagedCostMicros(oldShares, oldAvg, shares, priceMicros)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE econ.stock_holdings
		SET shares = $1, avg_price_micros = $2
		WHERE holder_id = $3 AND company_id = $4
	`, oldShares+shares, newAvg, holderID, companyID)
	return err
}

// averagedCostMicros computes the weighted-average cost basis after adding
// shares at priceMicros to an existing position.
func averagedCostMicros(oldShares, oldAvgMicros, shares, priceMicros int64) (int64, error) {
	oldCost, err := notionalMicros(oldAvgMicros, oldShares)
	if err != nil {
		return 0, err
	}
	newCost, err := notionalMicros(priceMicros, shares)
	if err != nil {
		return 0, err
	}
	return (oldCost + newCost) / (oldShares + shares), nil
}

// reduceHolding returns the shares remaining after a sell, rejecting sells
// larger than the position.
func reduceHolding(held, sell int64) (int64, error) {
	if held < sell {
		return 0, ErrInsufficientShares
	}
	return held - sell, nil
}

// applySellHolding reduces the position; the cost basis is unchanged on
// sells, and the row is removed once the position reaches zero.
func applySellHolding(ctx context.Context, tx pgx.Tx, holderID, companyID uuid.UUID, shares int64) error {
	var oldShares int64
	if err := tx.QueryRow(ctx, `
		SELECT shares
		FROM econ.stock_holdings
		WHERE holder_id = $1 AND company_id = $2
		FOR UPDATE
	`, holderID, companyID).Scan(&oldShares); err != nil {
		if err == pgx.ErrNoRows {
			return ErrInsufficientShares
		}
		return err
	}
	next, err := reduceHolding(oldShares, shares)
	if err != nil {
		return err
	}
	if next == 0 {
		_, err := tx.Exec(ctx, `
			DELETE FROM econ.stock_holdings
			WHERE holder_id = $1 AND company_id = $2
		`, holderID, companyID)
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE econ.stock_holdings
		SET shares = $1
		WHERE holder_id = $2 AND company_id = $3
	`, next, holderID, companyID)
	return err
}
