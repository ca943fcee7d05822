package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mselser95/polymarket-whalesim/pkg/config"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "polymarket-whalesim",
	Short: "Polymarket whale copy-trade simulator",
	Long: `Simulates copying the trades of a fixed set of high-PnL Polymarket wallets.

Every matched trade from a tracked whale on the real-time feed becomes a simulated
position with a fixed stake. Positions are settled against the Gamma API once their
market resolves, and realized PnL is rolled into a daily cumulative ledger.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads .env (if present) and the environment, and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	envErr := godotenv.Load()
	if envErr != nil && !os.IsNotExist(envErr) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", envErr)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	return cfg, logger, nil
}
