package session

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter estimates token counts for the chunker's ≈400-token
// target. It prefers a real BPE tokenizer where one can be loaded, and
// falls back to the words/0.75 heuristic otherwise — the tokenizer's
// encoding ranks are fetched from a remote cache the first time
// they're needed, which can fail in offline or sandboxed
// environments; that failure must never fail the chunker itself
// (spec.md §4.10, SPEC_FULL.md domain stack).
type tokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{}
}

func (t *tokenCounter) encoder() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			t.enc = enc
		}
	})
	return t.enc
}

// Count returns an approximate token count for text.
func (t *tokenCounter) Count(text string) int {
	if enc := t.encoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return wordHeuristic(text)
}

// wordHeuristic approximates tokens as words / 0.75 (spec.md §4.10).
func wordHeuristic(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	n := int(float64(words) / 0.75)
	if n < words {
		n = words
	}
	return n
}
