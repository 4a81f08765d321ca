// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"fmt"
	"strings"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/logx"
)

const maxEmptyAttempts = 2

// EmptyResponseValidator retries once with guidance when the model returns neither text nor tool calls.
type EmptyResponseValidator struct {
	logger *logx.Logger
}

// NewEmptyResponseValidator creates a validator.
func NewEmptyResponseValidator() *EmptyResponseValidator {
	return &EmptyResponseValidator{logger: logx.NewLogger("empty-response-validator")}
}

// Middleware returns the validating middleware.
//
// First empty response: a guidance user message is appended and the call is repeated.
// Second empty response: ErrorTypeEmptyResponse is returned.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)
					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
						return resp, err
					}
					if err == nil && !isEmptyResponse(&resp) {
						return resp, nil
					}

					v.logger.Warn("⚠️ EMPTY RESPONSE DETECTED (attempt %d/%d) stop=%s", attempt, maxEmptyAttempts, resp.StopReason)
					if attempt < maxEmptyAttempts {
						guided := req
						guided.Messages = append(append([]llm.CompletionMessage(nil), req.Messages...),
							llm.NewUserMessage(guidanceMessage(&req)))
						req = guided
					}
				}

				v.logger.Error("❌ AUTO-RETRY FAILED: both attempts returned empty responses")
				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"received inadequate response after guidance: no content or tool usage",
				)
			},
			next.GetModelName,
		)
	}
}

func isEmptyResponse(resp *llm.CompletionResponse) bool {
	return len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == ""
}

func guidanceMessage(req *llm.CompletionRequest) string {
	if len(req.Tools) == 0 {
		return "No response received. Please answer the question directly."
	}
	return fmt.Sprintf("No response received. Either call one of the available tools (for example %s) "+
		"or answer the question directly with the data you already have.", req.Tools[0].Name)
}
