package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mselser95/polymarket-whalesim/internal/app"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start ingestion and scheduled settlement",
	Long: `Starts the simulator, which will:
1. Load the whale set from WHALE_REPORT_PATH
2. Subscribe to matched trades on the real-time feed
3. Record a simulated position for every whale trade on an open market
4. Settle resolved positions every RECONCILE_INTERVAL and rebuild the ledger

Health, readiness and Prometheus metrics are served on HTTP_PORT.

Use --no-ingest to only settle, or --no-reconcile to only ingest.`,
	RunE: runSimulator,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-ingest", false, "Do not connect to the live feed")
	runCmd.Flags().Bool("no-reconcile", false, "Do not run scheduled settlement")
}

func runSimulator(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	noIngest, _ := cmd.Flags().GetBool("no-ingest")
	noReconcile, _ := cmd.Flags().GetBool("no-reconcile")

	opts := &app.Options{
		NoIngest:    noIngest,
		NoReconcile: noReconcile,
	}

	application, err := app.New(cfg, logger, opts)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
