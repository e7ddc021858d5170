package connector

import (
	"strings"
	"testing"
)

func TestChunkerShortTextReturnsSingleChunk(t *testing.T) {
	c := NewChunker(100)
	chunks := c.Chunk("hello world")
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkerEmptyTextReturnsNil(t *testing.T) {
	c := NewChunker(100)
	if chunks := c.Chunk(""); chunks != nil {
		t.Fatalf("expected nil, got %v", chunks)
	}
}

func TestChunkerSplitsLongTextWithinLimit(t *testing.T) {
	c := NewChunker(20)
	text := strings.Repeat("word ", 20)
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, chunk := range chunks {
		if len(chunk) > 20 {
			t.Errorf("chunk exceeds MaxSize: %q (%d chars)", chunk, len(chunk))
		}
	}
}

func TestChunkerPrefersParagraphBreaks(t *testing.T) {
	c := NewChunker(30)
	text := "first paragraph here\n\nsecond paragraph follows after"
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected a split at the paragraph break, got %v", chunks)
	}
	if strings.Contains(chunks[0], "second") {
		t.Errorf("expected the paragraph break to separate chunks, got %q", chunks[0])
	}
}

func TestChunkerReassemblesToOriginalContent(t *testing.T) {
	c := NewChunker(15)
	text := "one two three four five six seven"
	chunks := c.Chunk(text)

	var rebuilt []string
	for _, chunk := range chunks {
		rebuilt = append(rebuilt, strings.Fields(chunk)...)
	}
	if strings.Join(rebuilt, " ") != text {
		t.Errorf("rebuilt = %q, want %q", strings.Join(rebuilt, " "), text)
	}
}
