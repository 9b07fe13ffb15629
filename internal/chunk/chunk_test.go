package chunk

import (
	"strings"
	"testing"

	"contextnexus/internal/core"
)

func reconstruct(chunks []core.ContentChunk, sep string) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Content
	}
	return strings.Join(parts, sep)
}

func TestParagraphRoundTrip(t *testing.T) {
	text := "first paragraph here.\n\nsecond paragraph follows.\n\nthird and final paragraph."
	chunks, err := Chunk(text, core.ContentText, core.StrategyParagraph, 1000)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	got := reconstruct(chunks, "\n\n")
	if strings.Join(strings.Fields(got), " ") != strings.Join(strings.Fields(text), " ") {
		t.Fatalf("round trip mismatch:\n got=%q\nwant=%q", got, text)
	}
}

func TestParagraphGreedyPacking(t *testing.T) {
	text := "alpha beta.\n\ngamma delta epsilon zeta.\n\neta theta."
	chunks, err := Chunk(text, core.ContentText, core.StrategyParagraph, 3)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	for _, c := range chunks {
		if c.Tokens > 3 {
			// The middle paragraph alone exceeds 3 tokens and is split by the
			// fixed-size fallback; no resulting chunk may exceed the cap.
			t.Fatalf("chunk exceeds maxChunkTokens: %d (%q)", c.Tokens, c.Content)
		}
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks from greedy packing, got %d", len(chunks))
	}
}

func TestOversizedItemSplitsIntoMultipleChunks(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks, err := Chunk(text, core.ContentText, core.StrategyParagraph, 10)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected >= 2 chunks for an oversized item, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Tokens > 10 {
			t.Fatalf("chunk exceeds maxChunkTokens: %d", c.Tokens)
		}
	}
}

func TestStartEndMonotonic(t *testing.T) {
	text := "one.\n\ntwo.\n\nthree.\n\nfour."
	chunks, err := Chunk(text, core.ContentText, core.StrategyParagraph, 1000)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	prevEnd := -1
	for _, c := range chunks {
		if c.StartIndex < prevEnd {
			t.Fatalf("start index %d precedes previous end %d", c.StartIndex, prevEnd)
		}
		if c.EndIndex < c.StartIndex {
			t.Fatalf("end index %d before start index %d", c.EndIndex, c.StartIndex)
		}
		prevEnd = c.EndIndex
	}
}

// TestCodeAwareTwoFunctions mirrors scenario S4: two function declarations
// each ~300 tokens separated by a comment block, with maxChunkTokens 400.
// Greedy packing places the comment block in the first function's chunk, so
// the source splits at the second declaration into two chunks, not three.
func TestCodeAwareTwoFunctions(t *testing.T) {
	fn := func(name string) string {
		var b strings.Builder
		b.WriteString("func " + name + "() {\n")
		for i := 0; i < 120; i++ {
			b.WriteString("\tdoWork()\n")
		}
		b.WriteString("}\n")
		return b.String()
	}
	comment := "// this section documents the boundary between the two functions\n// and exists purely to separate them by a comment block\n"

	text := fn("First") + comment + fn("Second")
	chunks, err := Chunk(text, core.ContentCode, core.StrategyCodeAware, 400)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected code-aware chunking to split at function boundaries, got %d chunks", len(chunks))
	}
	got := reconstruct(chunks, "")
	if strings.Join(strings.Fields(got), "") != strings.Join(strings.Fields(text), "") {
		t.Fatalf("code round trip mismatch")
	}
}

func TestListAwareGroupsRun(t *testing.T) {
	text := "intro paragraph.\n\n- item one\n- item two\n- item three\n\noutro paragraph."
	chunks, err := Chunk(text, core.ContentList, core.StrategyListAware, 1000)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	found := false
	for _, c := range chunks {
		if strings.Contains(c.Content, "item one") && strings.Contains(c.Content, "item three") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the list run to be packed as one unit, chunks=%v", chunks)
	}
}

func TestFixedSizeSingleOversizedWord(t *testing.T) {
	text := strings.Repeat("x", 200)
	chunks, err := Chunk(text, core.ContentText, core.StrategyFixedSize, 5)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected a single oversized word emitted alone, got %d chunks", len(chunks))
	}
}

func TestEmptyTextProducesNoChunks(t *testing.T) {
	chunks, err := Chunk("", core.ContentText, core.StrategyParagraph, 100)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}
