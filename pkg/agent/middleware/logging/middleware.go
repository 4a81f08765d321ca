// Package logging records one line per model call.
package logging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/logx"
)

const maxLoggedMessage = 2000

// Middleware logs one line per model call and dumps the full request when the endpoint
// returns an empty response. Errors pass through unchanged.
func Middleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				elapsed := time.Since(start)

				if err != nil {
					logger.Warn("model=%s messages=%d failed after %dms: %v",
						next.GetModelName(), len(req.Messages), elapsed.Milliseconds(), err)
					if llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						logEmptyResponseDebugInfo(logger, &req)
					}
					//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
					return resp, err
				}

				logger.Debug("model=%s messages=%d tool_calls=%d tokens=%d+%d stop=%s duration=%dms",
					next.GetModelName(), len(req.Messages), len(resp.ToolCalls),
					resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.StopReason, elapsed.Milliseconds())
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

// logEmptyResponseDebugInfo dumps the transcript that produced an empty reply.
// Long message bodies keep their head and tail plus a content hash.
func logEmptyResponseDebugInfo(logger *logx.Logger, req *llm.CompletionRequest) {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 empty model response: %d messages, %d tools, max_tokens=%d, temperature=%v",
		len(req.Messages), len(req.Tools), req.MaxTokens, req.Temperature)
	for i := range req.Messages {
		msg := &req.Messages[i]
		fmt.Fprintf(&b, "\n  #%d %s calls=%d results=%d: %s",
			i, msg.Role, len(msg.ToolCalls), len(msg.ToolResults), llmerrors.SanitizePrompt(msg.Content, maxLoggedMessage))
	}
	if len(req.Tools) > 0 {
		names := make([]string, len(req.Tools))
		for i := range req.Tools {
			names[i] = req.Tools[i].Name
		}
		fmt.Fprintf(&b, "\n  tools: %s", strings.Join(names, ", "))
	}
	logger.Error("%s", b.String())
}
