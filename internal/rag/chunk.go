package rag

import (
	"strings"
	"unicode/utf8"
)

const (
	ChunkSize    = 500
	ChunkOverlap = 50
)

// separators are tried in order when looking for a split point inside a window.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk splits text into pieces of at most size runes, each starting overlap runes before
// the previous one ended. Splits prefer paragraph, line, sentence and word boundaries, in
// that order, as long as the piece stays at least half full.
func Chunk(text string, size, overlap int) []string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			end = start + splitPoint(runes[start:end], size/2)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end >= len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// splitPoint returns the rune offset just past the last separator in window that leaves at
// least minLen runes, or len(window) when there is none.
func splitPoint(window []rune, minLen int) int {
	s := string(window)
	for _, sep := range separators {
		idx := strings.LastIndex(s, sep)
		if idx < 0 {
			continue
		}
		cut := utf8.RuneCountInString(s[:idx+len(sep)])
		if cut >= minLen {
			return cut
		}
	}
	return len(window)
}

// EmbeddingText is what gets embedded for a chunk of a titled document.
func EmbeddingText(title, chunk string) string {
	return "Title: " + title + "\n\nContent: " + chunk
}
