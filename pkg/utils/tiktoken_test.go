package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/agent/llm"
)

func TestNewTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4o", "claude-sonnet-4-20250514", "gemini-2.5-pro", "llama3.1"} {
		t.Run(model, func(t *testing.T) {
			counter, err := NewTokenCounter(model)
			require.NoError(t, err)
			require.NotNil(t, counter)
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"Who has the better knockout ratio?", 6, 10},
		{strings.Repeat("word ", 100), 90, 110},
	}
	for _, tt := range tests {
		tokens := counter.CountTokens(tt.text)
		assert.GreaterOrEqual(t, tokens, tt.minTokens, tt.text)
		assert.LessOrEqual(t, tokens, tt.maxTokens, tt.text)
	}
}

func TestCountMessagesIncludesToolTraffic(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	require.NoError(t, err)

	plain := []llm.CompletionMessage{llm.NewUserMessage("Compare Usyk and Fury")}
	withTools := append(plain,
		llm.NewAssistantMessage("", []llm.ToolCall{{ID: "c1", Name: "compare_fighters", Parameters: map[string]any{"fighter1": "Usyk"}}}),
		llm.NewToolResultMessage([]llm.ToolResult{{ToolCallID: "c1", Content: strings.Repeat("stat ", 40)}}),
	)
	assert.Greater(t, counter.CountMessages(withTools), counter.CountMessages(plain)+40)
}

func TestNilCounterEstimates(t *testing.T) {
	var counter *TokenCounter
	assert.Equal(t, 3, counter.CountTokens("twelve chars"))
	assert.Positive(t, CountTokensSimple("Hello world"))
}
