package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/internal/app"
	"github.com/mselser95/polymarket-whalesim/internal/settlement"
)

//nolint:gochecknoglobals // Cobra boilerplate
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one settlement pass and print the ledger",
	Long: `Loads every open position, asks the Gamma API which markets have resolved,
settles those positions and rebuilds the daily cumulative PnL ledger.

Feed credentials are not required. Safe to run while "run" is active: a position
is only ever settled once.`,
	RunE: runReconcile,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := cmd.Context()

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

	reconciler, err := settlement.New(settlement.Config{
		Store:  store,
		Oracle: app.NewOracleClient(cfg, logger),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create reconciler: %w", err)
	}

	report, err := reconciler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	err = printRunReport(cmd.OutOrStdout(), report)
	if err != nil {
		return fmt.Errorf("print report: %w", err)
	}

	// Per-position failures are retried on the next pass but still fail the command.
	err = report.Err()
	if err != nil {
		return fmt.Errorf("settle positions: %w", err)
	}

	return nil
}

func printRunReport(w io.Writer, report *settlement.RunReport) error {
	fmt.Fprintf(w, "Open positions:    %d\n", report.OpenPositions)
	fmt.Fprintf(w, "Markets checked:   %d (resolved %d, rejected %d)\n",
		report.Markets, report.ResolvedMarkets, report.RejectedMarkets)
	fmt.Fprintf(w, "Settled:           %d\n", report.Settled)
	fmt.Fprintf(w, "Unmatched:         %d\n", report.Unmatched)
	fmt.Fprintf(w, "Already settled:   %d\n", report.AlreadySettled)
	fmt.Fprintf(w, "Failures:          %d\n", len(report.Failures))
	if report.OracleErr != nil {
		fmt.Fprintf(w, "Oracle errors:     %v\n", report.OracleErr)
	}
	fmt.Fprintf(w, "Duration:          %s\n", report.Duration)

	if len(report.Ledger) == 0 {
		fmt.Fprintln(w, "\nLedger is empty")
		return nil
	}

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header("Date", "Cumulative PnL")
	for _, point := range report.Ledger {
		err := table.Append(point.Date, point.CumulativePnL.StringFixed(4))
		if err != nil {
			return err
		}
	}

	return table.Render()
}
