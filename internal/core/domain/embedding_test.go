package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedding_Validate(t *testing.T) {
	ok := Embedding{
		ChunkID:   "c1",
		Provider:  "openai",
		Dimension: 3,
		Vector:    []float32{0.1, 0.2, 0.3},
	}
	assert.NoError(t, ok.Validate())

	bad := Embedding{
		ChunkID:   "c2",
		Provider:  "voyage",
		Dimension: 1024,
		Vector:    make([]float32, 900),
	}
	err := bad.Validate()
	require.Error(t, err)

	var mismatch *DimensionMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "voyage", mismatch.Provider)
	assert.Equal(t, 1024, mismatch.Want)
	assert.Equal(t, 900, mismatch.Got)
}

func TestSlotKey_String(t *testing.T) {
	key := SlotKey{Provider: "openai", Dimension: 1536}
	assert.Equal(t, "openai/1536", key.String())
}

func TestExtractionError_Message(t *testing.T) {
	err := &ExtractionError{Attempts: []AttemptRecord{
		{Provider: "azuredi", Error: "timeout"},
		{Provider: "plaintext", Error: "unsupported document format"},
	}}
	assert.Contains(t, err.Error(), "azuredi: timeout")
	assert.Contains(t, err.Error(), "plaintext: unsupported document format")

	empty := &ExtractionError{}
	assert.Contains(t, empty.Error(), "no providers configured")
}

func TestIsTransient(t *testing.T) {
	wrapped := errors.Join(ErrTransient, errors.New("429 too many requests"))
	assert.True(t, IsTransient(wrapped))
	assert.False(t, IsTransient(ErrUnsupportedFormat))
	assert.False(t, IsTransient(nil))
}
