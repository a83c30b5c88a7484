package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_Count(t *testing.T) {
	h := Heuristic{}

	assert.Equal(t, 0, h.Count(""))
	assert.Equal(t, 1, h.Count("hi"))
	assert.Equal(t, 1, h.Count("four"))
	assert.Equal(t, 2, h.Count("seven"))
	assert.Equal(t, 25, h.Count(string(make([]byte, 100))))
}
