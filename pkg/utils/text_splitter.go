package utils

import "unicode"

// SplitText splits a long string into chunks of at most chunkSize characters
// with an overlap to preserve context at boundaries. Chunk ends are pulled
// back to the nearest newline or space when one is close, so words are not
// cut in half.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	totalLen := len(runes)
	if totalLen <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < totalLen; {
		end := start + chunkSize
		if end >= totalLen {
			chunks = append(chunks, string(runes[start:totalLen]))
			break
		}

		cut := breakPoint(runes, start, end)
		chunks = append(chunks, string(runes[start:cut]))

		next := cut - overlap
		// Guarantee forward progress on pathological input.
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}

// breakPoint scans backwards from end looking for a newline, then any
// whitespace, within the last tenth of the chunk. Falls back to the hard cut.
func breakPoint(runes []rune, start, end int) int {
	window := (end - start) / 10
	if window < 1 {
		return end
	}

	for i := end; i > end-window && i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	for i := end; i > end-window && i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
