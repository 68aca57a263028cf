package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("short note", 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short note", chunks[0])
}

func TestSplitTextChunkBounds(t *testing.T) {
	text := strings.Repeat("word ", 1000) // 5000 chars
	chunks := SplitText(text, 500, 50)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 500, "chunk %d too large", i)
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitTextPrefersWordBoundary(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 100)
	chunks := SplitText(text, 200, 20)

	for i, chunk := range chunks[:len(chunks)-1] {
		assert.False(t, strings.HasSuffix(strings.TrimRight(chunk, " "), "lor"),
			"chunk %d looks cut mid-word: %q", i, chunk[len(chunk)-10:])
	}
}

func TestSplitTextOverlapGreaterThanChunkSize(t *testing.T) {
	text := strings.Repeat("a", 50)
	// overlap >= chunkSize must still terminate
	chunks := SplitText(text, 10, 20)
	assert.NotEmpty(t, chunks)
}

func TestSplitTextNoWhitespaceInput(t *testing.T) {
	text := strings.Repeat("x", 3000)
	chunks := SplitText(text, 1000, 100)

	require.Greater(t, len(chunks), 1)
	var rebuilt int
	for _, chunk := range chunks {
		rebuilt += len(chunk)
	}
	// With overlap, total chunk length is at least the input length.
	assert.GreaterOrEqual(t, rebuilt, 3000)
}
