// Package anthropic provides the Anthropic Messages API implementation of llm.LLMClient.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/tools"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient.
//
//nolint:govet // Simple client struct, logical grouping preferred
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClient creates a client for the default model.
func NewClaudeClient(apiKey string) llm.LLMClient {
	return NewClaudeClientWithModel(apiKey, llm.DefaultModel)
}

// NewClaudeClientWithModel creates a client for model. Extra options (base URL, HTTP client)
// are passed to the SDK.
func NewClaudeClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &ClaudeClient{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

// convertMessages extracts the system prompt and folds the conversation into strict
// user/assistant alternation. Tool results become tool_result blocks in a user turn, and
// consecutive non-assistant turns are merged into one user message.
func convertMessages(messages []llm.CompletionMessage) (string, []anthropic.MessageParam, error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var out []anthropic.MessageParam
	var pending []anthropic.ContentBlockParamUnion

	flushUser := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)

		case llm.RoleUser:
			if msg.Content != "" {
				pending = append(pending, anthropic.NewTextBlock(msg.Content))
			}

		case llm.RoleTool:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				pending = append(pending, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}

		case llm.RoleAssistant:
			flushUser()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				input := tc.Parameters
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default:
			return "", nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	flushUser()

	if len(out) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if out[0].Role != anthropic.MessageParamRoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", out[0].Role)
	}
	if out[len(out)-1].Role != anthropic.MessageParamRoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", out[len(out)-1].Role)
	}

	return strings.Join(systemParts, "\n\n"), out, nil
}

// convertTools maps descriptors onto Anthropic tool params.
func convertTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.InputSchema.PropertiesMap(),
					Required:   def.InputSchema.Required,
				},
			},
		})
	}
	return out
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	return convertResponse(resp)
}

func convertResponse(resp *anthropic.Message) (llm.CompletionResponse, error) {
	var text strings.Builder
	var toolCalls []llm.ToolCall

	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			var params map[string]any
			if len(toolUse.Input) > 0 {
				if err := json.Unmarshal(toolUse.Input, &params); err != nil {
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "failed to parse tool input")
				}
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:         toolUse.ID,
				Name:       toolUse.Name,
				Parameters: params,
			})
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		ToolCalls:  toolCalls,
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.StatusCode)
	}
	return llmerrors.Classify(err, 0)
}
