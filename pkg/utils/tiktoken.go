// Package utils provides tiktoken-based token counting for conversation size logging.
package utils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"boxonomics/pkg/agent/llm"
)

// TokenCounter counts tokens with a tiktoken codec.
type TokenCounter struct {
	codec tokenizer.Codec
}

var (
	defaultCounter     *TokenCounter //nolint:gochecknoglobals
	defaultCounterOnce sync.Once     //nolint:gochecknoglobals
)

// NewTokenCounter creates a token counter for model. Claude and Gemini have no public
// tokenizer, so every model is approximated with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// 4 chars ≈ 1 token
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountMessages sums tokens over message text, tool call arguments and tool results.
func (tc *TokenCounter) CountMessages(messages []llm.CompletionMessage) int {
	var b strings.Builder
	for i := range messages {
		msg := &messages[i]
		b.WriteString(msg.Content)
		b.WriteByte('\n')
		for j := range msg.ToolCalls {
			b.WriteString(msg.ToolCalls[j].Name)
			fmt.Fprintf(&b, " %v\n", msg.ToolCalls[j].Parameters)
		}
		for j := range msg.ToolResults {
			b.WriteString(msg.ToolResults[j].Content)
			b.WriteByte('\n')
		}
	}
	return tc.CountTokens(b.String())
}

// DefaultCounter returns a shared GPT-4 counter, or nil when the codec cannot load.
func DefaultCounter() *TokenCounter {
	defaultCounterOnce.Do(func() {
		counter, err := NewTokenCounter("gpt-4")
		if err == nil {
			defaultCounter = counter
		}
	})
	return defaultCounter
}

// CountTokensSimple counts with the shared counter, falling back to a character estimate.
func CountTokensSimple(text string) int {
	return DefaultCounter().CountTokens(text)
}
