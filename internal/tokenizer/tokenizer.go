// Package tokenizer provides token counting for context budget
// enforcement. Counts use the cl100k_base BPE via tiktoken, with a
// character heuristic as fallback when the encoding cannot be loaded.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used by current OpenAI embedding and chat
// models.
const DefaultEncoding = "cl100k_base"

// heuristicCharsPerToken approximates English prose when no encoding
// is available.
const heuristicCharsPerToken = 4

// Counter counts tokens in text.
type Counter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

// Tiktoken counts tokens with a real BPE encoding.
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
}

var _ Counter = (*Tiktoken)(nil)

// New creates a counter for the named encoding (default cl100k_base).
func New(encodingName string) (*Tiktoken, error) {
	if encodingName == "" {
		encodingName = DefaultEncoding
	}
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", encodingName, err)
	}
	return &Tiktoken{encoding: encoding}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	return len(t.encoding.Encode(text, nil, nil))
}

// Heuristic approximates token counts from character length. Used when
// the BPE files are unavailable, for example in air-gapped deployments.
type Heuristic struct{}

var _ Counter = Heuristic{}

// Count returns a character-length approximation of the token count.
func (Heuristic) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + heuristicCharsPerToken - 1) / heuristicCharsPerToken
}
