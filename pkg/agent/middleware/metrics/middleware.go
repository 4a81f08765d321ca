package metrics

import (
	"context"
	"errors"
	"time"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/utils"
)

// UsageExtractor returns token usage for a completed call.
type UsageExtractor func(req *llm.CompletionRequest, resp *llm.CompletionResponse) (inputTokens, outputTokens int)

// DefaultUsageExtractor prefers the usage reported by the endpoint and estimates with tiktoken otherwise.
func DefaultUsageExtractor(req *llm.CompletionRequest, resp *llm.CompletionResponse) (inputTokens, outputTokens int) {
	if resp.Usage.InputTokens > 0 || resp.Usage.OutputTokens > 0 {
		return resp.Usage.InputTokens, resp.Usage.OutputTokens
	}
	counter := utils.DefaultCounter()
	return counter.CountMessages(req.Messages), counter.CountTokens(resp.Content)
}

// Middleware records latency, token usage and outcome of every model call.
func Middleware(recorder Recorder, usageExtractor UsageExtractor) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var inputTokens, outputTokens int
				if err == nil {
					inputTokens, outputTokens = usageExtractor(&req, &resp)
				}
				recorder.ObserveModelRequest(next.GetModelName(), inputTokens, outputTokens, err == nil, errorType(err), duration)

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// errorType labels errors for metrics.
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return llmerrors.TypeOf(err).String()
	}
}
