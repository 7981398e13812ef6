package chunker

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer converts text to token IDs and back. Decoding any contiguous run
// of tokens must yield the exact bytes those tokens were encoded from.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// DefaultEncoding is the BPE vocabulary used for chunk boundaries.
const DefaultEncoding = "cl100k_base"

var loaderOnce sync.Once

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewBPE returns a tokenizer for the named tiktoken encoding. The vocabulary
// is loaded from the embedded offline copy, so no network access is needed.
func NewBPE(encoding string) (Tokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &bpeTokenizer{enc: enc}, nil
}

func (t *bpeTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *bpeTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
