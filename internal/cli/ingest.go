package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

var (
	ingestDocumentID string
	ingestContainer  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Submit a document for ingestion",
	Long: `Registers the file as a document and enqueues it for extraction,
chunking and embedding. Run "quarry worker" to process the queue, or
check progress with "quarry status".`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var resubmitCmd = &cobra.Command{
	Use:   "resubmit [doc-id]",
	Short: "Retry a failed document",
	Long: `Moves a failed document back to pending and enqueues a fresh
ingestion task. The new run writes a new chunk generation; earlier
chunks are superseded, never deleted.`,
	Args: cobra.ExactArgs(1),
	RunE: runResubmit,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDocumentID, "id", "", "document ID (default: derived from the file name)")
	ingestCmd.Flags().StringVarP(&ingestContainer, "container", "c", "default", "container to scope the document to")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(resubmitCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	documentID := ingestDocumentID
	if documentID == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		documentID = fmt.Sprintf("%s-%s", base, uuid.NewString()[:8])
	}

	task := domain.IngestionTask{
		DocumentID:  documentID,
		BlobRef:     path,
		ContainerID: ingestContainer,
	}
	if err := ingestService.Submit(cmd.Context(), task); err != nil {
		return fmt.Errorf("submit failed: %w", err)
	}

	cmd.Printf("Submitted %s as document %s\n", args[0], documentID)
	return nil
}

func runResubmit(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return errors.New("ingestion service not configured")
	}

	if err := ingestService.Resubmit(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("resubmit failed: %w", err)
	}

	cmd.Printf("Document %s queued for re-ingestion\n", args[0])
	return nil
}
