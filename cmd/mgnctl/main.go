package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	cl "magnate/internal/cli"
	"magnate/internal/config"
	"magnate/internal/syncq"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	printSuccess = color.New(color.FgGreen).PrintlnFunc()
	printWarn    = color.New(color.FgYellow).PrintlnFunc()
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "mgnctl",
		Short:        "Magnate admin CLI",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newCompanyCmd(&apiBase),
		newProductCmd(&apiBase),
		newTradeCmd(&apiBase, "buy"),
		newTradeCmd(&apiBase, "sell"),
		newWaveCmd(&apiBase),
		newTransferCmd(&apiBase),
		newLedgerCmd(&apiBase),
		newBalanceCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func cmdContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

func newCompanyCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Company operations",
	}

	var deposit, sharePrice float64
	var totalShares int64
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a company with its treasury account",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).CreateCompany(ctx, args[0], deposit, totalShares, sharePrice, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess("Company created.")
			return printJSON(out)
		},
	}
	create.Flags().Float64Var(&deposit, "deposit", 0, "initial deposit in credits")
	create.Flags().Int64Var(&totalShares, "shares", 0, "total outstanding shares (default engine value)")
	create.Flags().Float64Var(&sharePrice, "price", 0, "initial share price in credits (default engine value)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List companies",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).ListCompanies(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	show := &cobra.Command{
		Use:   "show <company-id>",
		Short: "Company detail with recent price history",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).CompanyDetail(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	var priceLimit int
	prices := &cobra.Command{
		Use:   "prices <company-id>",
		Short: "Show a company's recent share price ticks",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).CompanyPrices(ctx, args[0], priceLimit)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	prices.Flags().IntVar(&priceLimit, "limit", 128, "max price points")

	cmd.AddCommand(create, list, show, prices)
	return cmd
}

func newProductCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Product operations",
	}

	var price float64
	var quality int32
	var stock int64
	create := &cobra.Command{
		Use:   "create <company-id> <name>",
		Short: "List a product on the marketplace",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			var q *int32
			if c.Flags().Changed("quality") {
				q = &quality
			}
			var st *int64
			if c.Flags().Changed("stock") {
				st = &stock
			}
			out, err := newClient(apiBase).CreateProduct(ctx, args[0], args[1], price, q, st, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess("Product created.")
			return printJSON(out)
		},
	}
	create.Flags().Float64Var(&price, "price", 1, "price in credits")
	create.Flags().Int32Var(&quality, "quality", 100, "quality 0-120")
	create.Flags().Int64Var(&stock, "stock", 0, "finite stock units (omit for unlimited)")

	list := &cobra.Command{
		Use:   "list [company-id]",
		Short: "List products",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			companyID := ""
			if len(args) > 0 {
				companyID = args[0]
			}
			out, err := newClient(apiBase).ListProducts(ctx, companyID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func newTradeCmd(apiBase *string, side string) *cobra.Command {
	var shares int64
	cmd := &cobra.Command{
		Use:   side + " <company-id> <account-id>",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares at the quoted price",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			idem := uuid.NewString()
			out, err := newClient(apiBase).Trade(ctx, args[0], args[1], side, shares, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: "POST",
					Path:   fmt.Sprintf("/v1/stocks/%s/%s", args[0], side),
					Body: map[string]any{
						"account_id": args[1],
						"shares":     shares,
					},
					IdempotencyKey: idem,
				})
			}
			printSuccess("Trade settled.")
			return printJSON(out)
		},
	}
	cmd.Flags().Int64Var(&shares, "shares", 1, "number of shares")
	return cmd
}

// queueOnNetworkError stashes a write that never reached the server so
// `mgnctl sync` can replay it. Structured API rejections are final and are
// surfaced as-is.
func queueOnNetworkError(err error, qc syncq.Command) error {
	var apiErr *cl.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if qerr := syncq.Push(qc); qerr != nil {
		return fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("Request failed (%v); queued for `mgnctl sync`.", err))
	return nil
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(c *cobra.Command, _ []string) error {
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				fmt.Println("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
			defer cancel()

			remaining := make([]syncq.Command, 0, len(queue))
			replayed := 0
			for _, q := range queue {
				if _, err := client.Do(ctx, q.Method, q.Path, q.Body, q.IdempotencyKey); err != nil {
					var apiErr *cl.APIError
					if errors.As(err, &apiErr) {
						// The server saw it and said no; drop it.
						printWarn(fmt.Sprintf("Dropped %s %s: %v", q.Method, q.Path, err))
						continue
					}
					remaining = append(remaining, q)
					continue
				}
				replayed++
			}
			if err := syncq.Save(remaining); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}

func newWaveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "wave",
		Short: "Trigger one demand wave now",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(c.Context(), 5*time.Minute)
			defer cancel()
			out, err := newClient(apiBase).RunWave(ctx, uuid.NewString())
			if err != nil {
				return err
			}
			if errs, ok := out["errors"].([]any); ok && len(errs) > 0 {
				printWarn(fmt.Sprintf("Wave completed with %d skipped items.", len(errs)))
			} else {
				printSuccess("Wave completed.")
			}
			return printJSON(out)
		},
	}
}

func newTransferCmd(apiBase *string) *cobra.Command {
	var amount float64
	cmd := &cobra.Command{
		Use:   "transfer <from-account-id> <to-account-id>",
		Short: "Move credits between two accounts",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			idem := uuid.NewString()
			out, err := newClient(apiBase).Transfer(ctx, args[0], args[1], amount, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: "POST",
					Path:   "/v1/transfers",
					Body: map[string]any{
						"from_account_id": args[0],
						"to_account_id":   args[1],
						"amount_credits":  amount,
					},
					IdempotencyKey: idem,
				})
			}
			printSuccess("Transfer settled.")
			return printJSON(out)
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "amount in credits")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newLedgerCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ledger <account-id>",
		Short: "Show recent ledger entries for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).AccountLedger(ctx, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func newBalanceCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			ctx, cancel := cmdContext(c)
			defer cancel()
			out, err := newClient(apiBase).AccountBalance(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
