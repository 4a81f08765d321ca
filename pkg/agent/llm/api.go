// Package llm defines the provider-neutral chat completion surface the tool loop talks to.
// Vendor adapters translate these types to and from their own wire formats.
package llm

import (
	"context"

	"boxonomics/pkg/tools"
)

// CompletionRole tags who authored a message.
type CompletionRole string

const (
	// RoleSystem carries instructions for the model.
	RoleSystem CompletionRole = "system"
	// RoleUser is a message from the person asking.
	RoleUser CompletionRole = "user"
	// RoleAssistant is a model turn, possibly requesting tools.
	RoleAssistant CompletionRole = "assistant"
	// RoleTool carries one or more tool results back to the model.
	RoleTool CompletionRole = "tool"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens bounds each model response.
	DefaultMaxTokens = 4096

	// TemperatureDeterministic keeps analysis answers reproducible.
	TemperatureDeterministic = 0.0
)

// ToolCall is one tool invocation requested by the model. ID is vendor-assigned.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// ToolResult answers a ToolCall. ToolCallID correlates the two.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// CompletionMessage is one transcript entry.
// Assistant messages may carry ToolCalls and tool messages carry ToolResults.
type CompletionMessage struct {
	Content     string
	Role        CompletionRole
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// CompletionRequest is a full transcript plus the tool catalogue the model may call.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Usage reports token consumption when the endpoint returns it.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionResponse is a single model turn. A non-empty ToolCalls means the loop must
// dispatch them and ask again.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionResponse struct {
	ToolCalls  []ToolCall
	Content    string
	StopReason string // vendor stop reason, normalized to "end_turn", "tool_use" or "max_tokens" where possible
	Usage      Usage
}

// LLMClient is implemented by every vendor adapter and every middleware.
type LLMClient interface { //nolint:revive // Name is established across the codebase
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	GetModelName() string
}

// NewCompletionRequest uses DefaultMaxTokens at temperature zero.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDeterministic,
	}
}

func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// NewAssistantMessage records a model turn.
func NewAssistantMessage(content string, calls []ToolCall) CompletionMessage {
	return CompletionMessage{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	}
}

// NewToolResultMessage groups the results of one assistant turn.
func NewToolResultMessage(results []ToolResult) CompletionMessage {
	return CompletionMessage{
		Role:        RoleTool,
		ToolResults: results,
	}
}
