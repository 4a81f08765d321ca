// Package google provides the Gemini implementation of llm.LLMClient.
package google

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/genai"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/tools"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
	mu     sync.Mutex
}

// NewGeminiClientWithModel creates a client for model. The SDK client needs a context,
// so it is created on first Complete.
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

// Complete implements llm.LLMClient.
//
//nolint:gocritic // CompletionRequest passed by value to match the interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	temperature := in.Temperature
	//nolint:gosec // MaxTokens comes from config and is small
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if len(in.Tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: convertTools(in.Tools)}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	response := llm.CompletionResponse{
		Content:    textOf(result),
		StopReason: stopReason(result),
		ToolCalls:  convertFunctionCalls(result.FunctionCalls()),
	}
	if result.UsageMetadata != nil {
		response.Usage = llm.Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return response, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessages maps the conversation onto Gemini contents and returns the system instruction
// separately. Gemini matches function responses by name, so tool results look up the name of the
// call they answer.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content
	callNames := make(map[string]string)

	for i := range messages {
		msg := &messages[i]
		var parts []*genai.Part
		role := "user"

		switch msg.Role {
		case llm.RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
			continue
		case llm.RoleUser:
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
		case llm.RoleAssistant:
			role = "model"
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for j := range msg.ToolCalls {
				tc := &msg.ToolCalls[j]
				callNames[tc.ID] = tc.Name
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				}})
			}
		case llm.RoleTool:
			for j := range msg.ToolResults {
				tr := &msg.ToolResults[j]
				name, ok := callNames[tr.ToolCallID]
				if !ok {
					return nil, "", fmt.Errorf("tool result %s does not answer any tool call", tr.ToolCallID)
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:   tr.ToolCallID,
					Name: name,
					Response: map[string]any{
						"content":  tr.Content,
						"is_error": tr.IsError,
					},
				}})
			}
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("no user or model content to send")
	}
	return contents, systemInstruction, nil
}

// convertTools converts tool definitions to Gemini function declarations.
func convertTools(defs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	declarations := make([]*genai.FunctionDeclaration, len(defs))
	for i := range defs {
		def := &defs[i]
		names := make([]string, 0, len(def.InputSchema.Properties))
		for name := range def.InputSchema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		properties := make(map[string]*genai.Schema, len(names))
		for _, name := range names {
			prop := def.InputSchema.Properties[name]
			properties[name] = convertProperty(&prop)
		}
		declarations[i] = &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   def.InputSchema.Required,
			},
		}
	}
	return declarations
}

func convertProperty(prop *tools.Property) *genai.Schema {
	schema := &genai.Schema{Description: prop.Description}
	switch prop.Type {
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
		if prop.Items != nil {
			schema.Items = convertProperty(prop.Items)
		}
	case "object":
		schema.Type = genai.TypeObject
	default:
		schema.Type = genai.TypeString
	}
	if len(prop.Enum) > 0 {
		schema.Enum = prop.Enum
	}
	return schema
}

// convertFunctionCalls falls back to the function name as ID when Gemini omits one.
func convertFunctionCalls(calls []*genai.FunctionCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, call := range calls {
		id := call.ID
		if id == "" {
			id = call.Name
		}
		out[i] = llm.ToolCall{ID: id, Name: call.Name, Parameters: call.Args}
	}
	return out
}

// textOf concatenates text parts of the first candidate, skipping thoughts.
func textOf(result *genai.GenerateContentResponse) string {
	content := result.Candidates[0].Content
	if content == nil {
		return ""
	}
	var text string
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text += part.Text
	}
	return text
}

func stopReason(result *genai.GenerateContentResponse) string {
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonStop, "":
		if len(result.FunctionCalls()) > 0 {
			return "tool_use"
		}
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	default:
		return string(result.Candidates[0].FinishReason)
	}
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llmerrors.Classify(err, apiErrPtr.Code)
	}
	return llmerrors.Classify(err, 0)
}
