package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/app"
	"github.com/mselser95/polymarket-whalesim/internal/backfill"
	"github.com/mselser95/polymarket-whalesim/pkg/wallet"
)

//nolint:gochecknoglobals // Cobra boilerplate
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Seed open positions from the whales' current holdings",
	Long: `Fetches every whale's current holdings from the Data API and records one
simulated BUY position per holding at its current price, skipping markets that
are already closed.

Requests are spaced by BACKFILL_WHALE_DELAY. Running it twice records the
holdings twice.`,
	RunE: runBackfill,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := cmd.Context()

	whaleSet, err := app.LoadWhales(cfg, logger)
	if err != nil {
		return err
	}

	holdings, err := wallet.NewClient(&wallet.Config{
		BaseURL:      cfg.PolymarketDataURL,
		RequestDelay: cfg.BackfillWhaleDelay,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create data api client: %w", err)
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeErr := store.Close()
		if closeErr != nil {
			logger.Error("storage-close-error", zap.Error(closeErr))
		}
	}()

	backfiller, err := backfill.New(backfill.Config{
		Whales:   whaleSet,
		Holdings: holdings,
		Status:   app.NewOracleClient(cfg, logger),
		Store:    store,
		Stake:    cfg.SimStake,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create backfiller: %w", err)
	}

	report, err := backfiller.Run(ctx)
	if report != nil {
		printBackfillReport(cmd.OutOrStdout(), report)
	}
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	return nil
}

func printBackfillReport(w io.Writer, report *backfill.Report) {
	fmt.Fprintf(w, "Whales:   %d\n", report.Whales)
	fmt.Fprintf(w, "Inserted: %d\n", report.Inserted)
	fmt.Fprintf(w, "Skipped:  %d\n", report.Skipped)
	fmt.Fprintf(w, "Failed:   %d\n", report.Failed)
}
