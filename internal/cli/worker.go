package cli

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the ingestion worker pool",
	Long: `Consumes the ingestion task queue until interrupted. Delivery is
at-least-once: duplicate tasks coalesce onto the in-flight session and
unacknowledged tasks are redelivered after their visibility timeout.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if orchestrator == nil {
		return errors.New("ingestion service not configured")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := orchestrator.Run(ctx)
	logger.Info("Worker pool stopped")
	return err
}
