package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

var (
	chatSession   string
	chatDocuments []string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversational retrieval over ingested documents",
	Long: `Starts an interactive session. Each message runs a hybrid search
scoped to the session's selected documents and records the turn with
its retrieval provenance. The document selection made on the first
turn carries forward for the whole session.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "session ID to resume (default: new session)")
	chatCmd.Flags().StringSliceVarP(&chatDocuments, "documents", "d", nil, "document IDs to scope the session to")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	if retrievalService == nil || conversationService == nil {
		return errors.New("retrieval and conversation services not configured")
	}
	ctx := cmd.Context()

	sessionID := chatSession
	if sessionID == "" {
		sessionID = uuid.NewString()
		cmd.Printf("Session %s\n", sessionID)
	} else {
		turns, err := conversationService.LoadSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		cmd.Printf("Resuming session %s (%d turns)\n", sessionID, len(turns))
	}

	cmd.Println(`Type a question, or "quit" to exit.`)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := chatTurn(cmd, sessionID, line); err != nil {
			cmd.PrintErrf("Error: %v\n", err)
		}
	}
	return scanner.Err()
}

// chatTurn runs one question: search, show context, persist both
// turns with provenance.
func chatTurn(cmd *cobra.Command, sessionID, question string) error {
	ctx := cmd.Context()

	userTurn := &domain.ConversationTurn{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   question,
	}
	if len(chatDocuments) > 0 {
		userTurn.Retrieval = &domain.TurnRetrieval{SelectedDocumentIDs: chatDocuments}
	}
	if err := conversationService.AppendTurn(ctx, userTurn); err != nil {
		return err
	}

	query := domain.RetrievalQuery{Text: question}
	result, err := retrievalService.Search(ctx, query)
	if err != nil {
		return err
	}

	selection := sessionSelection(userTurn)
	candidates := filterBySelection(result.Candidates, selection)

	assistantTurn := &domain.ConversationTurn{
		SessionID: sessionID,
		Role:      domain.RoleAssistant,
		Content:   contextSummary(candidates),
		Retrieval: &domain.TurnRetrieval{
			SelectedDocumentIDs: selection,
			RerankFallback:      result.RerankFallback,
		},
	}
	for _, cand := range candidates {
		assistantTurn.ReferencedChunkIDs = append(assistantTurn.ReferencedChunkIDs, cand.ChunkID)
		assistantTurn.Retrieval.Evidence = append(assistantTurn.Retrieval.Evidence, domain.TurnEvidence{
			ChunkID: cand.ChunkID,
			Score:   cand.Score,
			Signal:  cand.BestSignal(),
		})
	}
	if err := conversationService.AppendTurn(ctx, assistantTurn); err != nil {
		return err
	}

	if len(candidates) == 0 {
		cmd.Println("No relevant context found.")
		return nil
	}
	for i, cand := range candidates {
		cmd.Printf("[%d] %s (%.2f): %s\n", i+1, cand.DocumentID, cand.Score, snippet(cand.Content, 120))
	}
	return nil
}

// sessionSelection is the document selection in force after the turn
// was persisted (AppendTurn carries the first turn's selection
// forward).
func sessionSelection(turn *domain.ConversationTurn) []string {
	if turn.Retrieval == nil {
		return nil
	}
	return turn.Retrieval.SelectedDocumentIDs
}

// filterBySelection drops candidates outside the session's selected
// documents. An empty selection keeps everything.
func filterBySelection(candidates []domain.RankedCandidate, selection []string) []domain.RankedCandidate {
	if len(selection) == 0 {
		return candidates
	}
	selected := make(map[string]bool, len(selection))
	for _, id := range selection {
		selected[id] = true
	}
	kept := make([]domain.RankedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if selected[cand.DocumentID] {
			kept = append(kept, cand)
		}
	}
	return kept
}

// contextSummary is the persisted assistant content: the cited
// context, not a generated answer.
func contextSummary(candidates []domain.RankedCandidate) string {
	if len(candidates) == 0 {
		return "No relevant context found."
	}
	var b strings.Builder
	for i, cand := range candidates {
		fmt.Fprintf(&b, "[%d] %s: %s\n", i+1, cand.DocumentID, snippet(cand.Content, 200))
	}
	return b.String()
}
