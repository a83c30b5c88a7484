package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

func TestChatCmd_Use(t *testing.T) {
	assert.Equal(t, "chat", chatCmd.Use)
}

func runChatWith(t *testing.T, input string, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(append([]string{"chat"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		chatSession = ""
		chatDocuments = nil
	})
	return buf, rootCmd.Execute()
}

func TestChatCmd_RecordsTurnsWithProvenance(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	convs := conversationService.(*stubConversationService)

	buf, err := runChatWith(t, "what are embeddings\nquit\n", "--session", "sess-1")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Resuming session sess-1")
	assert.Contains(t, buf.String(), "doc-1")

	require.Len(t, convs.turns, 2)
	assert.Equal(t, domain.RoleUser, convs.turns[0].Role)
	assert.Equal(t, "what are embeddings", convs.turns[0].Content)

	assistant := convs.turns[1]
	assert.Equal(t, domain.RoleAssistant, assistant.Role)
	assert.Equal(t, []string{"chunk-1", "chunk-2"}, assistant.ReferencedChunkIDs)
	require.NotNil(t, assistant.Retrieval)
	require.Len(t, assistant.Retrieval.Evidence, 2)
	assert.Equal(t, "chunk-1", assistant.Retrieval.Evidence[0].ChunkID)
	assert.Equal(t, domain.SignalSemantic, assistant.Retrieval.Evidence[0].Signal)
	assert.InDelta(t, 0.92, assistant.Retrieval.Evidence[0].Score, 1e-9)
}

func TestChatCmd_DocumentSelectionScopesResults(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	convs := conversationService.(*stubConversationService)

	buf, err := runChatWith(t, "embeddings\nquit\n", "--session", "sess-2", "--documents", "doc-2")

	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "chunk-1")
	assert.Contains(t, buf.String(), "doc-2")

	require.Len(t, convs.turns, 2)
	require.NotNil(t, convs.turns[0].Retrieval)
	assert.Equal(t, []string{"doc-2"}, convs.turns[0].Retrieval.SelectedDocumentIDs)
	assert.Equal(t, []string{"chunk-2"}, convs.turns[1].ReferencedChunkIDs)
}

func TestChatCmd_NewSessionPrintsID(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf, err := runChatWith(t, "quit\n")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Session ")
}

func TestChatCmd_SearchErrorDoesNotEndSession(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	retrievalService.(*stubRetrievalService).err = errStubService

	buf, err := runChatWith(t, "embeddings\nquit\n", "--session", "sess-3")

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error:")
}

func TestChatCmd_SkipsBlankLines(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	convs := conversationService.(*stubConversationService)

	_, err := runChatWith(t, "\n   \nquit\n", "--session", "sess-4")

	require.NoError(t, err)
	assert.Empty(t, convs.turns)
}

func TestFilterBySelection(t *testing.T) {
	candidates := sampleResult().Candidates

	assert.Len(t, filterBySelection(candidates, nil), 2)

	kept := filterBySelection(candidates, []string{"doc-1"})
	require.Len(t, kept, 1)
	assert.Equal(t, "chunk-1", kept[0].ChunkID)
}
