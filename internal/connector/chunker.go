package connector

import (
	"strings"
	"unicode"
)

// Chunker splits outbound text into platform-sized pieces, breaking at
// paragraph, sentence, or word boundaries before falling back to a
// hard cut — grounded on the teacher's MessageChunker
// (internal/channels/chunker.go), narrowed to the plain-text case
// spec.md §4.6/§6 calls for (no markdown-code-block-reopen variant,
// since Sentinel replies carry no code-fence-spanning content today).
type Chunker struct {
	// MaxSize is the maximum chunk size in characters.
	MaxSize int
}

// NewChunker builds a Chunker for the given platform size limit.
// Telegram and Discord both cap messages at 4096 characters.
func NewChunker(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &Chunker{MaxSize: maxSize}
}

// Chunk splits text into pieces that each fit within MaxSize,
// preferring paragraph breaks, then single newlines, then sentence
// endings, then word boundaries, and only cutting mid-word as a last
// resort.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.MaxSize {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > c.MaxSize {
		breakIdx := c.findBreakPoint(remaining)
		if breakIdx <= 0 {
			breakIdx = c.MaxSize
		}

		chunk := strings.TrimRightFunc(remaining[:breakIdx], unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimLeftFunc(remaining[breakIdx:], unicode.IsSpace)
	}

	if remaining = strings.TrimSpace(remaining); remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func (c *Chunker) findBreakPoint(text string) int {
	if len(text) <= c.MaxSize {
		return len(text)
	}
	window := text[:c.MaxSize]

	if idx := strings.LastIndex(window, "\n\n"); idx > 0 {
		return idx + 1
	}
	if idx := strings.LastIndex(window, "\n"); idx > 0 {
		return idx + 1
	}
	for _, ending := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	return c.MaxSize
}
