package fsblob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

func TestFetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("hello"), 0600))

	store := New(dir)
	blob, err := store.Fetch(context.Background(), "doc.txt")

	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), blob.Data)
	assert.Contains(t, blob.ContentType, "text/plain")
}

func TestFetch_AbsolutePathIgnoresRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("abs"), 0600))

	store := New("/somewhere/else")
	blob, err := store.Fetch(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, []byte("abs"), blob.Data)
}

func TestFetch_Missing(t *testing.T) {
	store := New(t.TempDir())

	_, err := store.Fetch(context.Background(), "ghost.pdf")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
