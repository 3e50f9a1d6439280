package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var sweepInterval time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the recovery sweep periodically",
	Long: `Runs the recovery pass on an interval, with /healthz and /metrics
exposed on the configured port. With --interval 0 a single pass runs
and the command exits.`,
	Run: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepInterval, "interval", 0, "sweep interval (0 = single pass)")
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	if sweepInterval <= 0 {
		report, err := eng.Scheduler().Sweep(ctx, false)
		if err != nil {
			slog.Error("Sweep failed", "error", err)
			os.Exit(1)
		}
		printSweepReport(report, false)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	if err := eng.RunSweeper(ctx, sweepInterval); err != nil {
		slog.Error("Sweeper exited", "error", err)
		os.Exit(1)
	}
}
