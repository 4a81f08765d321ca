package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
)

type observation struct {
	model         string
	input, output int
	success       bool
	errorType     string
}

type captureRecorder struct {
	observations []observation
}

func (c *captureRecorder) ObserveModelRequest(model string, in, out int, success bool, errorType string, _ time.Duration) {
	c.observations = append(c.observations, observation{model, in, out, success, errorType})
}

func TestMiddlewareRecordsReportedUsage(t *testing.T) {
	rec := &captureRecorder{}
	base := llm.WrapClient(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "ok", Usage: llm.Usage{InputTokens: 120, OutputTokens: 7}}, nil
	}, func() string { return "claude-sonnet-4-20250514" })

	_, err := llm.Chain(base, Middleware(rec, nil)).Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	require.Len(t, rec.observations, 1)
	assert.Equal(t, observation{"claude-sonnet-4-20250514", 120, 7, true, ""}, rec.observations[0])
}

func TestMiddlewareEstimatesMissingUsage(t *testing.T) {
	rec := &captureRecorder{}
	base := llm.WrapClient(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "Oleksandr Usyk is undefeated."}, nil
	}, func() string { return "llama3.1" })

	_, err := llm.Chain(base, Middleware(rec, nil)).Complete(context.Background(),
		llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Is Usyk undefeated?")}))
	require.NoError(t, err)
	assert.Positive(t, rec.observations[0].input)
	assert.Positive(t, rec.observations[0].output)
}

func TestErrorTypeLabels(t *testing.T) {
	assert.Equal(t, "", errorType(nil))
	assert.Equal(t, "timeout", errorType(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", errorType(context.Canceled))
	assert.Equal(t, "rate_limit", errorType(llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down")))
	assert.Equal(t, "unknown", errorType(fmt.Errorf("plain")))
}
