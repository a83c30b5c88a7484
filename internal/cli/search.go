package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

var (
	searchLimit      int
	searchJSON       bool
	searchContainers []string
	searchModality   string
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search ingested documents",
	Long: `Performs hybrid search over ingested documents. Semantic, lexical
and full-text signals run in parallel and are fused with per-signal
provenance before reranking.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().StringSliceVarP(&searchContainers, "container", "c", nil, "restrict to containers")
	searchCmd.Flags().StringVar(&searchModality, "modality", "", "restrict to one modality (text, image, table)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	query := domain.RetrievalQuery{
		Text:           args[0],
		ContainerScope: searchContainers,
		MaxResults:     searchLimit,
	}
	if searchModality != "" {
		modality := domain.Modality(searchModality)
		if !modality.Valid() {
			return fmt.Errorf("unknown modality %q", searchModality)
		}
		query.ModalityFilter = &modality
	}

	result, err := retrievalService.Search(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	return outputSearchResult(cmd, result)
}

func outputSearchResult(cmd *cobra.Command, result *domain.RetrievalResult) error {
	if result.Degraded {
		cmd.Println("All retrieval signals failed; no results.")
		return nil
	}
	if len(result.FailedSignals) > 0 {
		names := make([]string, len(result.FailedSignals))
		for i, sig := range result.FailedSignals {
			names[i] = string(sig)
		}
		cmd.Printf("Warning: signals unavailable: %s\n", strings.Join(names, ", "))
	}
	if result.RerankFallback {
		cmd.Println("Note: reranker unavailable, results in similarity order.")
	}
	if len(result.Candidates) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, cand := range result.Candidates {
		heading := ""
		if cand.SectionHeading != nil {
			heading = " / " + *cand.SectionHeading
		}
		cmd.Printf("  [%d] %s%s (%.2f, via %s)\n", i+1, cand.DocumentID, heading, cand.Score, cand.BestSignal())
		if cand.PageRange != nil && cand.PageRange.First > 0 {
			if cand.PageRange.First == cand.PageRange.Last {
				cmd.Printf("      Page %d\n", cand.PageRange.First)
			} else {
				cmd.Printf("      Pages %d-%d\n", cand.PageRange.First, cand.PageRange.Last)
			}
		}
		cmd.Printf("      %s\n", snippet(cand.Content, 160))
		cmd.Println()
	}
	return nil
}

// snippet trims content to a display length on a rune boundary.
func snippet(content string, limit int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "..."
}
