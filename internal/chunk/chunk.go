// Package chunk splits extracted text into overlapping, sentence-aware
// windows for embedding.
package chunk

import (
	"regexp"
	"strings"
)

const (
	DefaultSize    = 1500
	DefaultOverlap = 200
)

var sentenceBreak = regexp.MustCompile(`[.!?]\s+`)
var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Text splits content into chunks of at most size bytes, each overlapping
// the previous by roughly overlap bytes. It prefers to break at a sentence
// boundary found in the last fifth of the window, falling back to a
// paragraph break, then a line break, then a hard cut at the window edge.
// Forward progress is guaranteed even when overlap >= size.
func Text(content string, size, overlap int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	if len(content) <= size {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := start + size
		if end >= len(content) {
			chunk := strings.TrimSpace(content[start:])
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		breakAt := findBreak(content, start, end, size)

		chunk := strings.TrimSpace(content[start:breakAt])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := breakAt - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// findBreak searches the last fifth of [start, end) for a sentence boundary
// (preferring the last one found), falling back to the first paragraph
// break in that same window, then the first line break in that same
// window, else returns end (a hard cut).
func findBreak(content string, start, end, size int) int {
	searchStart := start + (size * 4 / 5)
	if searchStart < start || searchStart > end {
		searchStart = start
	}

	window := content[searchStart:end]
	if loc := lastMatchEnd(sentenceBreak, window); loc >= 0 {
		return searchStart + loc
	}

	if loc := firstMatchEnd(paragraphBreak, window); loc >= 0 {
		return searchStart + loc
	}

	if idx := strings.Index(window, "\n"); idx >= 0 {
		return searchStart + idx + 1
	}

	return end
}

// lastMatchEnd returns the end byte offset of the last match of re in s, or
// -1 if none.
func lastMatchEnd(re *regexp.Regexp, s string) int {
	matches := re.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return -1
	}
	return matches[len(matches)-1][1]
}

// firstMatchEnd returns the end byte offset of the first match of re in s,
// or -1 if none.
func firstMatchEnd(re *regexp.Regexp, s string) int {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[1]
}
