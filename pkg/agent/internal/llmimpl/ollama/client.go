// Package ollama provides the Ollama implementation of llm.LLMClient for locally hosted models.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/tools"
)

// DefaultHost is used when no base URL is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client *api.Client
	model  string
}

// NewOllamaClientWithModel creates a client for model served at hostURL.
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
	if len(in.Tools) > 0 {
		ollamaTools, err := convertTools(in.Tools)
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "tool conversion error")
		}
		req.Tools = ollamaTools
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		var statusErr api.StatusError
		if errors.As(err, &statusErr) {
			return llm.CompletionResponse{}, llmerrors.Classify(err, statusErr.StatusCode)
		}
		return llm.CompletionResponse{}, llmerrors.Classify(err, 0)
	}

	calls, err := convertToolCalls(response.Message.ToolCalls)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid tool call arguments")
	}
	return llm.CompletionResponse{
		Content:    response.Message.Content,
		ToolCalls:  calls,
		StopReason: stopReason(&response),
		Usage: llm.Usage{
			InputTokens:  response.PromptEvalCount,
			OutputTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// convertMessages maps the conversation onto Ollama messages. Tool results are sent as
// separate messages with role "tool".
func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	out := make([]api.Message, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleTool:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				out = append(out, api.Message{
					Role:       "tool",
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case llm.RoleSystem, llm.RoleUser, llm.RoleAssistant:
			m := api.Message{Role: string(msg.Role), Content: msg.Content}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				m.ToolCalls = append(m.ToolCalls, api.ToolCall{
					ID: tc.ID,
					Function: api.ToolCallFunction{
						Name:      tc.Name,
						Arguments: toArguments(tc.Parameters),
					},
				})
			}
			out = append(out, m)
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}
	return out, nil
}

// toArguments builds the ordered argument map with keys sorted for stable requests.
func toArguments(params map[string]any) api.ToolCallFunctionArguments {
	args := api.NewToolCallFunctionArguments()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args.Set(k, params[k])
	}
	return args
}

// convertTools goes through the wire JSON so the schema lands in Ollama's ordered property maps.
func convertTools(defs []tools.ToolDefinition) (api.Tools, error) {
	out := make(api.Tools, 0, len(defs))
	for i := range defs {
		def := &defs[i]
		raw, err := json.Marshal(map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        def.Name,
				"description": def.Description,
				"parameters":  def.InputSchema.ToMap(),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool %s: %w", def.Name, err)
		}
		var tool api.Tool
		if err := json.Unmarshal(raw, &tool); err != nil {
			return nil, fmt.Errorf("failed to decode tool %s: %w", def.Name, err)
		}
		out = append(out, tool)
	}
	return out, nil
}

// convertToolCalls extracts tool calls, minting IDs when the server omits them.
func convertToolCalls(calls []api.ToolCall) ([]llm.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for i := range calls {
		call := &calls[i]
		raw, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("failed to encode arguments for %s: %w", call.Function.Name, err)
		}
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("failed to decode arguments for %s: %w", call.Function.Name, err)
		}
		id := call.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, llm.ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: params,
		})
	}
	return out, nil
}

// stopReason converts Ollama's done_reason to the shared stop reason vocabulary.
func stopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}
