package chunk

import (
	"fmt"
	"strings"
	"testing"
)

func TestText_ShortContentIsSingleChunk(t *testing.T) {
	content := "This is a short sentence."
	chunks := Text(content, 1500, 200)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != content {
		t.Errorf("chunk = %q, want %q", chunks[0], content)
	}
}

func TestText_EmptyContent(t *testing.T) {
	if chunks := Text("   ", 1500, 200); chunks != nil {
		t.Errorf("got %v, want nil", chunks)
	}
}

func TestText_BreaksOnSentenceBoundary(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. "
	content := strings.Repeat(sentence, 100)

	chunks := Text(content, 500, 50)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(strings.TrimSpace(c), ".") {
			t.Errorf("chunk %d does not end on a sentence boundary: %q", i, lastN(c, 40))
		}
	}
}

func TestText_NoTinyChunksFromOverlap(t *testing.T) {
	content := strings.Repeat("word ", 2000)
	chunks := Text(content, 1500, 200)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from long content, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) <= 200 {
			t.Errorf("chunk %d length %d does not exceed the overlap of 200", i, len(c))
		}
	}
}

func TestText_ForwardProgressGuaranteed(t *testing.T) {
	// No sentence or paragraph breaks anywhere: must still terminate.
	content := strings.Repeat("a", 10000)
	chunks := Text(content, 100, 99)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	reassembled := strings.Join(chunks, "")
	if len(reassembled) < len(content) {
		t.Errorf("chunks lost content: got %d chars from %d chars of input", len(reassembled), len(content))
	}
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// TestText_SentencePreferenceLiteralExample is the literal §8 example: no
// chunk may split a sentence terminator from its preceding letter.
func TestText_SentencePreferenceLiteralExample(t *testing.T) {
	chunks := Text("A. B. C. D.", 8, 2)
	for _, c := range chunks {
		trimmed := strings.TrimSpace(c)
		for i, r := range trimmed {
			if r == '.' && i == 0 {
				t.Errorf("chunk %q starts with a bare sentence terminator, split from its letter", c)
			}
		}
	}
}

func TestText_Deterministic(t *testing.T) {
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	first := Text(content, 500, 50)
	second := Text(content, 500, 50)
	if len(first) != len(second) {
		t.Fatalf("chunk count differs across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs across runs:\n%q\n%q", i, first[i], second[i])
		}
	}
}

func TestText_CoverageAfterWhitespaceNormalization(t *testing.T) {
	// Distinct tokens, so the overlap between neighbouring chunks can be
	// located unambiguously.
	var b strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, "w%d ", i)
	}
	content := b.String()
	chunks := Text(content, 500, 50)

	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}

	// Each chunk repeats the tail of the previous one; drop the longest
	// prefix that is already at the end of the rebuilt text.
	got := ""
	for _, c := range chunks {
		c = normalize(c)
		k := len(c)
		if len(got) < k {
			k = len(got)
		}
		for ; k > 0 && !strings.HasSuffix(got, c[:k]); k-- {
		}
		if k == 0 && got != "" {
			got += " "
		}
		got += c[k:]
	}
	want := normalize(content)
	if got != want {
		t.Errorf("chunks do not cover source after whitespace normalization:\ngot  %q\nwant %q", lastN(got, 80), lastN(want, 80))
	}
}

func TestText_BoundsRespected(t *testing.T) {
	content := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)
	size, overlap := 300, 40
	chunks := Text(content, size, overlap)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > size {
			t.Errorf("chunk %d length %d exceeds chunk_size %d", i, len(c), size)
		}
		if i < len(chunks)-1 && len(c) <= overlap {
			t.Errorf("chunk %d length %d does not exceed chunk_overlap %d", i, len(c), overlap)
		}
	}
}

// TestText_ParagraphFallback exercises the paragraph-break fallback: no
// sentence terminator anywhere, but a paragraph break falls inside the
// last-fifth search window. Only the first chunk is checked: later chunks
// start inside the overlap just before a break, so a break then sits near
// their start and the next one falls outside their search window.
func TestText_ParagraphFallback(t *testing.T) {
	para := strings.Repeat("word ", 18)
	content := para + "\n\n" + para + "\n\n" + para
	chunks := Text(content, 100, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0] != strings.TrimSpace(para) {
		t.Errorf("chunk 0 does not cleanly end on the paragraph break: %q", lastN(chunks[0], 40))
	}
}

// TestText_LineBreakFallback exercises the single-line-break fallback: no
// sentence terminator or paragraph break anywhere, but single line breaks
// fall inside the last-fifth search window.
func TestText_LineBreakFallback(t *testing.T) {
	line := strings.Repeat("word ", 18)
	content := line + "\n" + line + "\n" + line
	chunks := Text(content, 100, 10)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

// TestText_ParagraphBreakOutsideWindowFallsThrough verifies the fallback
// search is scoped to the last-fifth window, not the whole [start, end)
// range: a paragraph break that sits early in the window (outside the
// last fifth, with nothing else to break on there) must not be used as
// the break point, since that produces far more fragmented chunks than
// a hard cut at the window edge.
func TestText_ParagraphBreakOutsideWindowFallsThrough(t *testing.T) {
	size := 100
	content := strings.Repeat("x", 10) + "\n\n" + strings.Repeat("y", size+50)
	chunks := Text(content, size, 10)
	if len(chunks) > 3 {
		t.Errorf("got %d chunks, want <= 3 — an early paragraph break outside the last-fifth window is fragmenting chunks", len(chunks))
	}
}
