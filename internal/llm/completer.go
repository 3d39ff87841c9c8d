// Package llm provides the completion clients the assistant answers with.
package llm

import (
	"context"
	"regexp"
	"strings"
)

// Completer turns a prompt into a completion.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)
	thinkOpen  = regexp.MustCompile(`(?is)<think>.*$`)
	thinkClose = regexp.MustCompile(`(?is)^.*?</think>`)
)

// StripThinking removes reasoning blocks some models emit before answering,
// including an unterminated block at the end or a dangling close tag.
func StripThinking(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = thinkClose.ReplaceAllString(s, "")
	s = thinkOpen.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Filtered strips reasoning blocks from every completion of the wrapped
// Completer. A completion that is empty after filtering is an
// ErrorTypeEmpty error.
type Filtered struct {
	Next Completer
}

// Complete implements Completer.
func (f Filtered) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := f.Next.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	out = StripThinking(out)
	if out == "" {
		return "", NewError(ErrorTypeEmpty, "empty completion", nil)
	}
	return out, nil
}

var _ Completer = Filtered{}
