package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/trialworks/benchd/internal/control"
	"github.com/trialworks/benchd/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "benchd",
	Short: "Benchmark trial lifecycle and recovery engine",
	Long: `benchd tracks multi-turn QA benchmark sessions across pipelines
(vanilla LLM, RAG, agent, browser agent), enforces trial ordering
invariants, and repairs stalled or corrupted sessions.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// openEngine loads configuration, initializes logging, and wires the
// engine for a command invocation. The caller must Close it.
func openEngine(ctx context.Context) (*control.Engine, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	eng, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		return nil, err
	}
	return eng, nil
}
