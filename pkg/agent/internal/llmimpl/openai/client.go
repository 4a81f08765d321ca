// Package openai provides the OpenAI chat completions implementation of llm.LLMClient.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/tools"
)

// Client wraps the official OpenAI Go client.
//
//nolint:govet // Simple struct, logical grouping preferred
type Client struct {
	client openai.Client
	model  string
}

// NewClientWithModel creates a client for model. Extra options (base URL for compatible
// gateways, HTTP client) are passed to the SDK.
func NewClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// convertMessages maps the conversation onto chat messages. Each tool result becomes its own
// tool message, which is how chat completions correlates results with calls.
func convertMessages(messages []llm.CompletionMessage) ([]openai.ChatCompletionMessageParamUnion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case llm.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case llm.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(msg.Content)}
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				args, err := json.Marshal(tc.Parameters)
				if err != nil {
					return nil, fmt.Errorf("failed to encode arguments for %s: %w", tc.Name, err)
				}
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case llm.RoleTool:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				out = append(out, openai.ToolMessage(tr.Content, tr.ToolCallID))
			}

		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return out, nil
}

func convertTools(defs []tools.ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema.ToMap()),
			},
		})
	}
	return out
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(float64(in.Temperature)),
	}
	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
	}
	if len(in.Tools) > 0 {
		params.Tools = convertTools(in.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return llm.CompletionResponse{}, llmerrors.Classify(err, apiErr.StatusCode)
		}
		return llm.CompletionResponse{}, llmerrors.Classify(err, 0)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices in OpenAI response")
	}

	choice := resp.Choices[0]
	out := llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		var params map[string]any
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err,
					fmt.Sprintf("invalid arguments for tool %s", tc.Function.Name))
			}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Parameters: params,
		})
	}
	return out, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}
