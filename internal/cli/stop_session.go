package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var stopSessionCmd = &cobra.Command{
	Use:   "stop-session [session_id]",
	Short: "Request cooperative cancellation of a session",
	Long: `Raises the advisory stop flag: no new trial starts afterward, but an
in-flight trial runs to whatever status it reaches. Stopping twice is a
no-op.`,
	Args: cobra.ExactArgs(1),
	Run:  runStopSession,
}

func init() {
	rootCmd.AddCommand(stopSessionCmd)
}

func runStopSession(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	eng, err := openEngine(ctx)
	if err != nil {
		os.Exit(1)
	}
	defer eng.Close()

	sessionID := args[0]
	if err := eng.Guard().StopSession(ctx, sessionID); err != nil {
		slog.Error("Failed to stop session", "session", sessionID, "error", err)
		os.Exit(1)
	}
	fmt.Printf("Stop requested for session %s\n", sessionID)
}
