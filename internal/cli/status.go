package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status [doc-id]",
	Short: "Show ingestion status of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	report, err := ingestService.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("status query failed: %w", err)
	}

	if statusJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Document: %s\n", report.DocumentID)
	cmd.Printf("Status:   %s (%.0f%%)\n", report.Status, report.ProgressEstimate*100)
	if report.Error != "" {
		cmd.Printf("Error:    %s\n", report.Error)
	}
	if report.StartedAt != nil {
		cmd.Printf("Started:  %s\n", report.StartedAt.Format(time.RFC3339))
	}
	if report.CompletedAt != nil {
		cmd.Printf("Finished: %s\n", report.CompletedAt.Format(time.RFC3339))
	}
	if report.Status == domain.StatusFailed {
		cmd.Println()
		cmd.Printf("Retry with: quarry resubmit %s\n", report.DocumentID)
	}
	return nil
}
