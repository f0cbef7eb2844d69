package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	dryRun  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eodsnap",
	Short: "End-of-day market snapshot pipeline",
	Long: `eodsnap Unified CLI

장 마감 후 종가와 옵션 체인을 한 번 확정(immutable)하고,
다운스트림 스캔이 같은 가격을 읽도록 보장하는 스냅샷 파이프라인.

Usage:
  go run ./cmd/eodsnap [command]

Examples:
  go run ./cmd/eodsnap migrate
  go run ./cmd/eodsnap run
  go run ./cmd/eodsnap run --dry-run --date 2025-01-10
  go run ./cmd/eodsnap snapshot close AAPL
  go run ./cmd/eodsnap runs latest
  go run ./cmd/eodsnap serve`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// SIGINT/SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "in-memory stores, nothing is persisted")
}
