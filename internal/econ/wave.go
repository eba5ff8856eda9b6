package econ

import (
	"context"
	"fmt"
	"math"
	mathrand "math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const waveErrorLimit = 10

type plannedPurchase struct {
	ProductID   uuid.UUID
	CompanyID   uuid.UUID
	Quantity    int64
	PriceMicros int64
}

// RunPurchaseWave executes one full demand wave: load and filter candidates,
// score and sample them, then settle every planned purchase as its own
// retryable transaction. Individual failures are skipped and reported in the
// result; the wave never aborts wholesale.
func (s *Service) RunPurchaseWave(ctx context.Context) (WaveResult, error) {
	var out WaveResult
	started := time.Now()

	candidates, err := s.loadWaveCandidates(ctx)
	if err != nil {
		return out, fmt.Errorf("load wave candidates: %w", err)
	}
	if len(candidates) == 0 {
		s.log.Info("purchase wave skipped, no active products")
		return out, nil
	}

	s.mu.Lock()
	plan := planWave(s.cfg.Wave, s.rand, started, candidates)
	s.mu.Unlock()

	companies := make(map[uuid.UUID]struct{})
	products := make(map[uuid.UUID]struct{})
	for _, p := range plan {
		spent, filled, err := s.executeWavePurchase(ctx, p)
		if spent > 0 {
			out.TotalSpentMicros += spent
			out.ItemsPurchased += filled
			products[p.ProductID] = struct{}{}
			companies[p.CompanyID] = struct{}{}
		}
		if err != nil {
			if len(out.Errors) < waveErrorLimit {
				out.Errors = append(out.Errors, fmt.Sprintf("product %s: %v", p.ProductID, err))
			}
			continue
		}
	}
	out.ProductsTouched = len(products)
	out.CompaniesTouched = len(companies)

	if err := s.flipNewlyPublic(ctx, companies); err != nil {
		if len(out.Errors) < waveErrorLimit {
			out.Errors = append(out.Errors, fmt.Sprintf("public listing sweep: %v", err))
		}
	}

	s.log.Info("purchase wave complete",
		"spent_credits", MicrosToCredits(out.TotalSpentMicros),
		"items", out.ItemsPurchased,
		"products", out.ProductsTouched,
		"companies", out.CompaniesTouched,
		"errors", len(out.Errors),
		"elapsed", time.Since(started).String(),
	)
	return out, nil
}

func (s *Service) loadWaveCandidates(ctx context.Context) ([]waveCandidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT p.id, p.company_id, p.price_micros, p.quality, p.total_sales,
		       COALESCE(p.stock_units, -1), p.created_at,
		       c.share_price_micros * c.total_shares, c.created_at
		FROM econ.products p
		JOIN econ.companies c ON c.id = p.company_id
		WHERE p.is_active AND p.price_micros > 0
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []waveCandidate
	for rows.Next() {
		var c waveCandidate
		if err := rows.Scan(&c.ProductID, &c.CompanyID, &c.PriceMicros, &c.Quality, &c.TotalSales,
			&c.StockUnits, &c.CreatedAt, &c.CompanyCapMicros, &c.CompanyCreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// planWave turns scored candidates into concrete purchase quantities under
// the budget constraints. Pure given the rand source, which keeps the
// fairness and cap properties testable without a database.
func planWave(cfg WaveConfig, rng *mathrand.Rand, now time.Time, candidates []waveCandidate) []plannedPurchase {
	median := medianPriceMicros(candidates)
	companyCapMicros := int64(cfg.CompanyBudgetFraction * float64(cfg.BudgetMicros))

	remainingGlobal := cfg.BudgetMicros
	remainingCompany := make(map[uuid.UUID]int64)

	// Visit candidates in random order so budget exhaustion does not always
	// starve the same tail of the catalog.
	order := rng.Perm(len(candidates))

	var plan []plannedPurchase
	for _, idx := range order {
		if remainingGlobal <= 0 {
			break
		}
		c := candidates[idx]
		score := adjustedScore(c, now, median, cfg)
		if score <= 0 {
			continue
		}
		p := purchaseProbability(score, cfg)
		if rng.Float64() >= p {
			continue
		}

		companyLeft, ok := remainingCompany[c.CompanyID]
		if !ok {
			companyLeft = companyCapMicros
		}
		if companyLeft < c.PriceMicros {
			continue
		}

		mean := score * float64(companyLeft) / float64(c.PriceMicros)
		qty := poisson(rng, mean)
		if qty < 1 {
			// The minimum-probability guarantee is about being touched at
			// all, so a sampled participant always buys at least one unit.
			qty = 1
		}
		qty = int64(math.Round(float64(qty) * (1 + cfg.QuantityNoise*(2*rng.Float64()-1))))
		if qty < 1 {
			qty = 1
		}

		qty = capQuantity(qty, c, cfg)
		if qty < 1 {
			continue
		}
		if limit := companyLeft / c.PriceMicros; qty > limit {
			qty = limit
		}
		if limit := remainingGlobal / c.PriceMicros; qty > limit {
			qty = limit
		}
		if qty < 1 {
			continue
		}

		cost := qty * c.PriceMicros
		remainingGlobal -= cost
		remainingCompany[c.CompanyID] = companyLeft - cost

		plan = append(plan, plannedPurchase{
			ProductID:   c.ProductID,
			CompanyID:   c.CompanyID,
			Quantity:    qty,
			PriceMicros: c.PriceMicros,
		})
	}
	return plan
}

// capQuantity bounds a single order at 2% of finite remaining stock and at
// an absolute unit ceiling.
func capQuantity(qty int64, c waveCandidate, cfg WaveConfig) int64 {
	if c.StockUnits >= 0 {
		stockCap := int64(cfg.OrderStockFraction * float64(c.StockUnits))
		if stockCap < 1 {
			stockCap = 1
		}
		if c.StockUnits == 0 {
			return 0
		}
		if qty > stockCap {
			qty = stockCap
		}
	}
	if qty > cfg.OrderMaxUnits {
		qty = cfg.OrderMaxUnits
	}
	return qty
}

// poisson draws via Knuth's method for small means and a normal
// approximation for large ones.
func poisson(rng *mathrand.Rand, mean float64) int64 {
	if mean <= 0 {
		return 0
	}
	if mean > 30 {
		v := math.Round(mean + math.Sqrt(mean)*rng.NormFloat64())
		if v < 0 {
			return 0
		}
		return int64(v)
	}
	l := math.Exp(-mean)
	var k int64
	p := 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

// executeWavePurchase settles one planned purchase atomically: the system
// account pays the revenue leg, the company refunds the production-cost leg,
// and product counters move in the same transaction. Returns the revenue
// spent and units filled so partial fills still count toward wave telemetry.
func (s *Service) executeWavePurchase(ctx context.Context, p plannedPurchase) (int64, int64, error) {
	var spent, filled int64
	err := s.cfg.Retry.Do(ctx, func() error {
		spent, filled = 0, 0
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		var priceMicros, stockUnits int64
		var companyID uuid.UUID
		var active bool
		if err := tx.QueryRow(ctx, `
			SELECT company_id, price_micros, COALESCE(stock_units, -1), is_active
			FROM econ.products
			WHERE id = $1
			FOR UPDATE
		`, p.ProductID).Scan(&companyID, &priceMicros, &stockUnits, &active); err != nil {
			if err == pgx.ErrNoRows {
				return ErrProductNotFound
			}
			return err
		}
		if !active || priceMicros <= 0 {
			return fmt.Errorf("product no longer purchasable")
		}

		qty := p.Quantity
		if stockUnits >= 0 && qty > stockUnits {
			// Concurrent events may have drained stock since planning;
			// partially fill what is left rather than failing the item.
			qty = stockUnits
		}
		if qty < 1 {
			return fmt.Errorf("out of stock")
		}

		// Budgets and caps were computed against the planned price. A price
		// raised since planning settles at the planned bound; a lowered one
		// settles at the cheaper current price.
		cost := qty * settlementPriceMicros(priceMicros, p.PriceMicros)
		productionCost := int64(float64(cost) * (s.cfg.Wave.ProductionCostMin +
			s.nextFloat()*(s.cfg.Wave.ProductionCostMax-s.cfg.Wave.ProductionCostMin)))

		var companyAccountID uuid.UUID
		if err := tx.QueryRow(ctx, `
			SELECT account_id FROM econ.companies WHERE id = $1 FOR UPDATE
		`, companyID).Scan(&companyAccountID); err != nil {
			return err
		}

		// Revenue in, production cost back out: two ledger legs keep the
		// record double-entry while the company nets the profit.
		txGroup := uuid.New()
		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = balance_micros - $1 WHERE id = $2
		`, cost-productionCost, SystemAccountID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.accounts SET balance_micros = balance_micros + $1 WHERE id = $2
		`, cost-productionCost, companyAccountID); err != nil {
			return err
		}
		if err := appendLedgerEntry(ctx, tx, txGroup, SystemAccountID, companyAccountID, cost, EntryWaveRevenue, &p.ProductID); err != nil {
			return err
		}
		if productionCost > 0 {
			if err := appendLedgerEntry(ctx, tx, txGroup, companyAccountID, SystemAccountID, productionCost, EntryWaveProduction, &p.ProductID); err != nil {
				return err
			}
		}

		stockClause := ""
		if stockUnits >= 0 {
			stockClause = ", stock_units = stock_units - " + fmt.Sprintf("%d", qty)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE econ.products
			SET total_sales = total_sales + $1,
			    total_revenue_micros = total_revenue_micros + $2,
			    total_costs_micros = total_costs_micros + $3`+stockClause+`
			WHERE id = $4
		`, qty, cost, productionCost, p.ProductID); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}
		spent, filled = cost, qty
		return nil
	})
	return spent, filled, err
}

// settlementPriceMicros bounds what a wave purchase pays per unit at the
// price the order was planned with.
func settlementPriceMicros(currentMicros, plannedMicros int64) int64 {
	if currentMicros > plannedMicros {
		return plannedMicros
	}
	return currentMicros
}

// flipNewlyPublic lists every touched company whose treasury crossed the
// threshold during settlement. The flip is one-way.
func (s *Service) flipNewlyPublic(ctx context.Context, companies map[uuid.UUID]struct{}) error {
	for companyID := range companies {
		err := s.cfg.Retry.Do(ctx, func() error {
			tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
			if err != nil {
				return err
			}
			defer tx.Rollback(ctx)
			flipped, err := maybeFlipPublic(ctx, tx, companyID, s.cfg.PublicThresholdMicros)
			if err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return err
			}
			if flipped {
				s.log.Info("company listed publicly", "company_id", companyID)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
