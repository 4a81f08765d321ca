package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/llmerrors"
	"boxonomics/pkg/tools"
)

func scripted(responses ...llm.CompletionResponse) (llm.LLMClient, *[]llm.CompletionRequest) {
	var seen []llm.CompletionRequest
	i := 0
	return llm.WrapClient(func(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		seen = append(seen, req)
		resp := responses[i]
		i++
		return resp, nil
	}, func() string { return "scripted" }), &seen
}

func request() llm.CompletionRequest {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Canelo's record?")})
	req.Tools = []tools.ToolDefinition{{Name: "get_fighter_stats"}}
	return req
}

func TestRetriesOnceWithGuidance(t *testing.T) {
	base, seen := scripted(llm.CompletionResponse{}, llm.CompletionResponse{Content: "62-2-2"})
	client := llm.Chain(base, NewEmptyResponseValidator().Middleware())

	resp, err := client.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "62-2-2", resp.Content)

	require.Len(t, *seen, 2)
	assert.Len(t, (*seen)[0].Messages, 1, "original request not mutated")
	second := (*seen)[1].Messages
	require.Len(t, second, 2)
	assert.Contains(t, second[1].Content, "get_fighter_stats")
}

func TestGivesUpAfterSecondEmptyResponse(t *testing.T) {
	base, seen := scripted(llm.CompletionResponse{Content: "  "}, llm.CompletionResponse{})
	client := llm.Chain(base, NewEmptyResponseValidator().Middleware())

	_, err := client.Complete(context.Background(), request())
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
	assert.Len(t, *seen, 2)
}

func TestToolCallsAreNotEmpty(t *testing.T) {
	base, seen := scripted(llm.CompletionResponse{ToolCalls: []llm.ToolCall{{ID: "1", Name: "get_fighter_stats"}}})
	client := llm.Chain(base, NewEmptyResponseValidator().Middleware())

	resp, err := client.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Len(t, *seen, 1)
}

func TestOtherErrorsPassThrough(t *testing.T) {
	boom := llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	calls := 0
	base := llm.WrapClient(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		calls++
		return llm.CompletionResponse{}, boom
	}, func() string { return "x" })

	_, err := llm.Chain(base, NewEmptyResponseValidator().Middleware()).Complete(context.Background(), request())
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 1, calls)
}
