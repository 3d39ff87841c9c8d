package llm

import (
	"sync"
	"sync/atomic"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter counts prompt tokens with a BPE encoding. Until the encoding
// has loaded, or when it cannot be loaded, counts are estimates.
type TokenCounter struct {
	once     sync.Once
	encoding string
	enc      atomic.Pointer[tiktoken.Tiktoken]
	loadErr  atomic.Value
}

// NewTokenCounter creates a TokenCounter for encoding, cl100k_base when empty.
func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = defaultEncoding
	}
	return &TokenCounter{encoding: encoding}
}

// Preload starts loading the encoding in the background. The first load may
// download the BPE ranks.
func (tc *TokenCounter) Preload() {
	tc.once.Do(func() {
		go func() {
			enc, err := tiktoken.GetEncoding(tc.encoding)
			if err != nil {
				tc.loadErr.Store(err)
				return
			}
			tc.enc.Store(enc)
		}()
	})
}

// Err returns the load error, if loading failed.
func (tc *TokenCounter) Err() error {
	err, _ := tc.loadErr.Load().(error)
	return err
}

// Count returns the number of tokens in text.
func (tc *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	enc := tc.enc.Load()
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Exact reports whether counts come from the BPE encoding.
func (tc *TokenCounter) Exact() bool {
	return tc.enc.Load() != nil
}

// EstimateTokens approximates a token count at one token per four bytes.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
