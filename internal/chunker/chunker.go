// Package chunker splits long documents into overlapping, token-bounded
// segments suitable for one extraction call each.
package chunker

import (
	"fmt"
)

// Chunk is one token-bounded slice of a document. Text is an exact substring
// of the source; Text[FreshOffset:] is the part not shared with the previous chunk.
type Chunk struct {
	Number      int // 1-based
	Text        string
	TokenStart  int
	TokenEnd    int
	FreshOffset int
}

// Chunker produces chunks of at most MaxTokens tokens, each starting
// Overlap tokens before the end of its predecessor.
type Chunker struct {
	tok       Tokenizer
	maxTokens int
	overlap   int
}

func New(tok Tokenizer, maxTokens, overlap int) (*Chunker, error) {
	if tok == nil {
		return nil, fmt.Errorf("tokenizer is required")
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	if overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", maxTokens, overlap)
	}
	return &Chunker{tok: tok, maxTokens: maxTokens, overlap: overlap}, nil
}

// CountTokens returns the number of tokens in text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.tok.Encode(text))
}

// Split chunks text. Empty text yields no chunks. The trailing remainder is
// always emitted, possibly shorter than MaxTokens, and splitting stops as
// soon as a chunk reaches the last token.
func (c *Chunker) Split(text string) []Chunk {
	tokens := c.tok.Encode(text)
	n := len(tokens)
	if n == 0 {
		return nil
	}

	bounds := c.byteBounds(text, tokens)
	slice := func(start, end int) string {
		if bounds != nil {
			return text[bounds[start]:bounds[end]]
		}
		return c.tok.Decode(tokens[start:end])
	}

	step := c.maxTokens - c.overlap
	chunks := make([]Chunk, 0, n/step+1)

	start, prevEnd := 0, 0
	for number := 1; ; number++ {
		end := min(start+c.maxTokens, n)

		fresh := 0
		if number > 1 {
			fresh = len(slice(start, prevEnd))
		}

		chunks = append(chunks, Chunk{
			Number:      number,
			Text:        slice(start, end),
			TokenStart:  start,
			TokenEnd:    end,
			FreshOffset: fresh,
		})

		if end == n {
			break
		}
		prevEnd = end
		start = end - c.overlap
	}

	return chunks
}

// byteBounds maps token index i to the byte offset where token i starts in
// text (bounds[n] == len(text)). Returns nil when per-token decoding does not
// line up with the source bytes; callers then fall back to decoding slices.
func (c *Chunker) byteBounds(text string, tokens []int) []int {
	bounds := make([]int, len(tokens)+1)
	for i, t := range tokens {
		bounds[i+1] = bounds[i] + len(c.tok.Decode([]int{t}))
	}
	if bounds[len(tokens)] != len(text) {
		return nil
	}
	return bounds
}

// Reassemble joins chunks back into the original text using only the fresh
// region of every chunk after the first.
func Reassemble(chunks []Chunk) string {
	var out []byte
	for i, ch := range chunks {
		if i == 0 {
			out = append(out, ch.Text...)
			continue
		}
		out = append(out, ch.Text[ch.FreshOffset:]...)
	}
	return string(out)
}
