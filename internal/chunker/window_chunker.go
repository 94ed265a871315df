package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"studyrag/internal/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// WindowChunker splits text into fixed-size overlapping character windows.
// Windows ignore sentence and word boundaries.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidConfiguration, size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in (0, %d), got %d", domain.ErrInvalidConfiguration, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Split is a one-shot helper around NewWindowChunker and Chunk.
func Split(text string, size, overlap int) ([]domain.Chunk, error) {
	c, err := NewWindowChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunk(text), nil
}

// Size returns the window length in characters.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the number of characters shared by adjacent windows.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk normalizes whitespace in text and cuts it into windows.
func (c *WindowChunker) Chunk(text string) []domain.Chunk {
	return c.windows([]rune(Normalize(text)), nil)
}

// ChunkPages chunks the text of consecutive pages as one stream and tags
// each chunk with the page its window starts on.
func (c *WindowChunker) ChunkPages(pages []string) []domain.Chunk {
	var (
		stream []rune
		starts []int // rune offset where each kept page begins
		nums   []int // 1-based page number of each kept page
	)
	for i, p := range pages {
		norm := Normalize(p)
		if norm == "" {
			continue
		}
		if len(stream) > 0 {
			stream = append(stream, ' ')
		}
		starts = append(starts, len(stream))
		nums = append(nums, i+1)
		stream = append(stream, []rune(norm)...)
	}
	pageAt := func(offset int) int {
		page := 0
		for i, s := range starts {
			if s > offset {
				break
			}
			page = nums[i]
		}
		return page
	}
	return c.windows(stream, pageAt)
}

func (c *WindowChunker) windows(r []rune, pageAt func(int) int) []domain.Chunk {
	n := len(r)
	if n == 0 {
		return nil
	}
	stride := c.size - c.overlap
	var out []domain.Chunk
	for base := 0; ; base += stride {
		// Starts stay on the stride grid. Normalized text has single
		// separators, so one step clears a leading space.
		start := base
		if start > 0 && r[start] == ' ' {
			start++
		}
		end := min(start+c.size, n)
		if content := strings.TrimSpace(string(r[start:end])); content != "" {
			ch := domain.Chunk{Content: content, Index: len(out)}
			if pageAt != nil {
				ch.Page = pageAt(start)
			}
			out = append(out, ch)
		}
		if end == n {
			break
		}
	}
	return out
}

// Normalize collapses runs of whitespace to single spaces and trims the ends.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
