package indexer

import (
	"strings"
	"testing"
)

func TestChunkTextEmpty(t *testing.T) {
	if got := ChunkText(""); got != nil {
		t.Errorf("empty text should produce no chunks, got %d", len(got))
	}
	if got := ChunkText("   \n\n  "); got != nil {
		t.Errorf("whitespace-only text should produce no chunks, got %d", len(got))
	}
}

func TestChunkTextShort(t *testing.T) {
	text := "A single short paragraph."
	got := ChunkText(text)
	if len(got) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(got))
	}
	if got[0].Content != text {
		t.Errorf("content = %q", got[0].Content)
	}
	if got[0].Start != 0 || got[0].End != len([]rune(text)) {
		t.Errorf("offsets = [%d, %d)", got[0].Start, got[0].End)
	}
}

func TestChunkTextParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("word ", 70) // ~350 chars
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	got := ChunkText(text)
	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, c := range got {
		if n := len([]rune(c.Content)); n > ChunkSize {
			t.Errorf("chunk %d has %d chars, max is %d", i, n, ChunkSize)
		}
	}
	// First chunk holds exactly the first paragraph: the second would
	// push it past the size limit.
	if got[0].Content != strings.TrimSpace(para) {
		t.Errorf("first chunk should end at the paragraph boundary")
	}
}

func TestChunkTextOverlap(t *testing.T) {
	a := strings.Repeat("a", 400)
	b := strings.Repeat("b", 400)
	text := a + "\n\n" + b

	got := ChunkText(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[1].Start != got[0].End-ChunkOverlap {
		t.Errorf("second chunk starts at %d, want %d", got[1].Start, got[0].End-ChunkOverlap)
	}
	if !strings.HasPrefix(got[1].Content, strings.Repeat("a", 100)) {
		t.Errorf("second chunk should begin with the overlap tail of the first")
	}
}

func TestChunkTextHardSplit(t *testing.T) {
	text := strings.Repeat("x", 1500) // one paragraph, no boundaries

	got := ChunkText(text)
	if len(got) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(got))
	}
	for i, c := range got {
		if n := len([]rune(c.Content)); n > ChunkSize {
			t.Errorf("chunk %d has %d chars", i, n)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start != got[i-1].End-ChunkOverlap {
			t.Errorf("chunk %d start = %d, want %d", i, got[i].Start, got[i-1].End-ChunkOverlap)
		}
	}
	if got[len(got)-1].End != 1500 {
		t.Errorf("final chunk ends at %d, want 1500", got[len(got)-1].End)
	}
}

func TestChunkTextOffsetsMatchSource(t *testing.T) {
	text := strings.Repeat("alpha beta gamma. ", 80)
	runes := []rune(text)
	for i, c := range ChunkText(text) {
		raw := string(runes[c.Start:c.End])
		if strings.TrimSpace(raw) != c.Content {
			t.Errorf("chunk %d content does not match its offsets", i)
		}
	}
}
