package chunker

import (
	"errors"
	"fmt"
	"strings"

	"pdfchat/internal/domain"
)

// RecursiveChunker splits page text into overlapping fixed-size segments.
// It prefers breaking on paragraph boundaries, then sentences, then words,
// falling back to a hard character cut only when a run of text has no
// usable boundary at all.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker rejects overlap >= size rather than clamping it: a
// degenerate overlap would make every segment a near-copy of its neighbor.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 {
		return nil, errors.New("chunk overlap must not be negative")
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return &RecursiveChunker{
		size:       size,
		overlap:    overlap,
		separators: []string{"\n\n", "\n", ". ", " "},
	}, nil
}

// Chunk returns the ordered segments of all pages. Each segment keeps the
// page it was drawn from; Index runs over the whole batch. Identical input
// always yields identical output.
func (c *RecursiveChunker) Chunk(pages []domain.Page) []domain.Segment {
	var segments []domain.Segment
	idx := 0
	for _, page := range pages {
		for _, text := range c.splitText(page.Text, c.separators) {
			t := strings.TrimSpace(text)
			if t == "" {
				continue
			}
			segments = append(segments, domain.Segment{
				Text:   t,
				FileID: page.FileID,
				Page:   page.Number,
				Index:  idx,
			})
			idx++
		}
	}
	return segments
}

// splitText breaks text on the largest boundary available, merging small
// pieces back up to the chunk size and recursing into oversized ones.
func (c *RecursiveChunker) splitText(text string, seps []string) []string {
	if len(text) <= c.size {
		return []string{text}
	}
	if len(seps) == 0 {
		return c.hardCut(text)
	}
	sep, rest := seps[0], seps[1:]
	if !strings.Contains(text, sep) {
		return c.splitText(text, rest)
	}
	parts := strings.SplitAfter(text, sep)
	var out []string
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			out = append(out, c.merge(pending)...)
			pending = nil
		}
	}
	for _, p := range parts {
		if len(p) <= c.size {
			pending = append(pending, p)
			continue
		}
		flush()
		out = append(out, c.splitText(p, rest)...)
	}
	flush()
	return out
}

// merge greedily packs pieces into chunks up to the size budget, carrying
// the trailing overlap characters into the next chunk.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var chunks []string
	cur := ""
	for _, p := range pieces {
		if cur != "" && len(cur)+len(p) > c.size {
			chunks = append(chunks, cur)
			tail := cur
			if len(tail) > c.overlap {
				tail = tail[len(tail)-c.overlap:]
			}
			if len(tail)+len(p) > c.size {
				tail = ""
			}
			cur = tail
		}
		cur += p
	}
	if cur != "" {
		chunks = append(chunks, cur)
	}
	return chunks
}

// hardCut counts in runes so a cut never lands inside a multi-byte
// character.
func (c *RecursiveChunker) hardCut(text string) []string {
	runes := []rune(text)
	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
