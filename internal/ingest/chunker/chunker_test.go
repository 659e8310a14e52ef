package chunker

import (
	"fmt"
	"strings"
	"testing"

	"thoth/internal/ingest/errs"
)

func genWords(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "word%d", i)
	}
	return b.String()
}

func TestConfigValidate_RejectsOverlapAtOrAboveMin(t *testing.T) {
	cfg := Config{MinTokens: 50, MaxTokens: 200, OverlapTokens: 50}
	err := cfg.Validate()
	if !errs.Is(err, errs.ChunkerConfigError) {
		t.Fatalf("expected ChunkerConfigError, got %v", err)
	}
}

func TestChunkText_HeaderHierarchyAndOrdering(t *testing.T) {
	text := "# Title\n\nIntro para.\n\n## Section A\n\n" + genWords(10) + "\n\n## Section B\n\n" + genWords(10)
	cfg := Config{MinTokens: 5, MaxTokens: 20, OverlapTokens: 2}
	chunks, err := ChunkText(text, "docs/handbook.md", "handbook.md", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Fatalf("chunk %d has ChunkIndex %d", i, c.ChunkIndex)
		}
		if c.TotalChunks != len(chunks) {
			t.Fatalf("chunk %d has TotalChunks %d, want %d", i, c.TotalChunks, len(chunks))
		}
		if c.FilePath != "handbook.md" {
			t.Fatalf("chunk %d FilePath = %q", i, c.FilePath)
		}
	}
	if len(chunks[0].Headers) == 0 || chunks[0].Headers[0] != "Title" {
		t.Fatalf("expected first chunk to carry Title header, got %v", chunks[0].Headers)
	}
}

func TestChunkText_OversizedSectionSplitsLineByLine(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, genWords(20))
	}
	text := "# Big\n" + strings.Join(lines, "\n")
	cfg := Config{MinTokens: 10, MaxTokens: 30, OverlapTokens: 2}
	chunks, err := ChunkText(text, "src.md", "src.md", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected the oversized section to be split into multiple chunks, got %d", len(chunks))
	}
}

func TestChunkText_OverlapInjection(t *testing.T) {
	text := "# One\n" + genWords(30) + "\n\n# Two\n" + genWords(30)
	cfg := Config{MinTokens: 5, MaxTokens: 15, OverlapTokens: 3}
	chunks, err := ChunkText(text, "src.md", "src.md", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if chunks[0].OverlapWithNext != true {
		t.Fatal("expected first chunk to have OverlapWithNext = true")
	}
	if chunks[0].OverlapWithPrevious {
		t.Fatal("first chunk must not have OverlapWithPrevious")
	}
	last := chunks[len(chunks)-1]
	if last.OverlapWithNext {
		t.Fatal("last chunk must not have OverlapWithNext")
	}
	if !last.OverlapWithPrevious {
		t.Fatal("expected last chunk to have OverlapWithPrevious = true")
	}
}

func TestChunkID_DeterministicAndStable(t *testing.T) {
	text := "# Title\n\n" + genWords(5)
	cfg := Config{MinTokens: 2, MaxTokens: 50, OverlapTokens: 1}
	a, err := ChunkText(text, "a/b.md", "b.md", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ChunkText(text, "a/b.md", "b.md", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("expected non-empty chunk sets")
	}
	if a[0].ChunkID != b[0].ChunkID {
		t.Fatalf("chunk ids differ across identical runs: %q vs %q", a[0].ChunkID, b[0].ChunkID)
	}
	if !strings.HasPrefix(a[0].ChunkID, "chunk_0_") {
		t.Fatalf("unexpected chunk id shape: %q", a[0].ChunkID)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"ab":       0,
		"abcd":     1,
		"abcdefgh": 2,
	}
	for s, want := range cases {
		if got := EstimateTokens(s); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", s, got, want)
		}
	}
}
