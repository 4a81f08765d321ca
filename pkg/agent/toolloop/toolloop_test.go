package toolloop

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"boxonomics/pkg/agent"
	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/middleware/resilience/fallback"
	"boxonomics/pkg/metrics"
	"boxonomics/pkg/tools"
)

// stubProvider answers every tool with a canned value or error and records invocations.
type stubProvider struct {
	err      error
	results  map[string]any
	name     string
	category tools.Category
	calls    []string
	mu       sync.Mutex
}

func (p *stubProvider) Name() string             { return p.name }
func (p *stubProvider) Category() tools.Category { return p.category }

func (p *stubProvider) ListTools() []tools.ToolDefinition {
	defs := make([]tools.ToolDefinition, 0, len(p.results))
	for name := range p.results {
		defs = append(defs, tools.ToolDefinition{Name: name, Description: name})
	}
	return defs
}

func (p *stubProvider) Invoke(_ context.Context, name string, _ map[string]any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
	if p.err != nil {
		return nil, p.err
	}
	return p.results[name], nil
}

func analyticsStub() *stubProvider {
	return &stubProvider{
		name:     "analytics",
		category: tools.CategoryAnalytics,
		results: map[string]any{
			"get_fighter_stats": map[string]any{"name": "Tyson Fury", "record": "34-1-1"},
		},
	}
}

func newRegistry(t *testing.T, opts []tools.Option, providers ...tools.Provider) *tools.Registry {
	t.Helper()
	reg, err := tools.Build(providers, opts...)
	require.NoError(t, err)
	return reg
}

func furyCall(id string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: "get_fighter_stats", Parameters: map[string]any{"name": "Tyson Fury"}}
}

func TestRunFinalAnswerWithoutTools(t *testing.T) {
	mock := agent.NewMockLLMClient(agent.MockText("Fury is a former heavyweight champion."))
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, analyticsStub()), monitor, Config{})

	res, err := loop.Run(context.Background(), "Who is Tyson Fury?")
	require.NoError(t, err)
	assert.Equal(t, "Fury is a former heavyweight champion.", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.Trace)
	assert.Equal(t, 1, mock.Calls())

	stats := monitor.GetStats()
	assert.Equal(t, 1, stats.TotalQueries)
	assert.Zero(t, stats.TotalToolCalls)
}

func TestRunSingleToolThenAnswer(t *testing.T) {
	provider := analyticsStub()
	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("Let me look that up.", furyCall("call_1")),
		agent.MockText("Fury is 34-1-1."),
	)
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, provider), monitor, Config{SystemPrompt: "You are a boxing analyst."})

	res, err := loop.Run(context.Background(), "What is Tyson Fury's record?")
	require.NoError(t, err)
	assert.Equal(t, "Fury is 34-1-1.", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, "get_fighter_stats", res.Trace[0].ToolName)
	assert.Equal(t, "analytics", res.Trace[0].ProviderName)
	assert.Equal(t, metrics.OutcomeSuccess, res.Trace[0].Outcome)
	assert.Equal(t, []string{"get_fighter_stats"}, provider.calls)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, llm.RoleSystem, reqs[0].Messages[0].Role)
	assert.Len(t, reqs[0].Tools, 1)
	second := reqs[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, llm.RoleTool, last.Role)
	require.Len(t, last.ToolResults, 1)
	assert.Equal(t, "call_1", last.ToolResults[0].ToolCallID)
	assert.Contains(t, last.ToolResults[0].Content, "34-1-1")
	assert.False(t, last.ToolResults[0].IsError)

	stats := monitor.GetStats()
	assert.Equal(t, 1, stats.TotalToolCalls)
	assert.Equal(t, 1, stats.PerToolBreakdown["get_fighter_stats"].Count)
}

func TestRunIterationBudgetExceeded(t *testing.T) {
	steps := make([]agent.MockStep, 0, 5)
	for i := 0; i < 5; i++ {
		steps = append(steps, agent.MockToolCalls("", furyCall("c")))
	}
	mock := agent.NewMockLLMClient(steps...)
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, analyticsStub()), monitor, Config{MaxIterations: 3})

	res, err := loop.Run(context.Background(), "loop forever")
	require.Error(t, err)

	var budget *IterationBudgetExceeded
	require.ErrorAs(t, err, &budget)
	assert.Equal(t, 3, budget.MaxIterations)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, 3, res.Iterations)
	assert.Len(t, res.Trace, 3)
	assert.Equal(t, KindBudgetExceeded, ErrorKind(err))

	stats := monitor.GetStats()
	assert.Equal(t, 1, stats.ErrorCount)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, KindBudgetExceeded, stats.Errors[0].Context["kind"])
}

func TestRunUnknownToolContinues(t *testing.T) {
	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("", llm.ToolCall{ID: "x1", Name: "get_weather"}),
		agent.MockText("I could not check the weather."),
	)
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, analyticsStub()), monitor, Config{})

	res, err := loop.Run(context.Background(), "weather?")
	require.NoError(t, err)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, metrics.OutcomeUnknownTool, res.Trace[0].Outcome)
	assert.Empty(t, res.Trace[0].ProviderName)

	msgs := mock.Requests()[1].Messages
	result := msgs[len(msgs)-1].ToolResults[0]
	assert.Equal(t, "Error: Tool get_weather not found", result.Content)
	assert.True(t, result.IsError)
}

func TestRunProviderErrorBecomesErrorResult(t *testing.T) {
	provider := analyticsStub()
	provider.err = errors.New("database is locked")
	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("", furyCall("c1")),
		agent.MockText("Stats are unavailable right now."),
	)
	loop := New(mock, newRegistry(t, nil, provider), metrics.NewMonitor(nil), Config{})

	res, err := loop.Run(context.Background(), "Fury?")
	require.NoError(t, err)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, metrics.OutcomeError, res.Trace[0].Outcome)

	msgs := mock.Requests()[1].Messages
	result := msgs[len(msgs)-1].ToolResults[0]
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Content, `{"error":`))
	assert.Contains(t, result.Content, "database is locked")
}

func TestRunFallbackOutcome(t *testing.T) {
	provider := analyticsStub()
	provider.err = errors.New("connection refused")
	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("", furyCall("c1")),
		agent.MockText("Using limited data."),
	)
	reg := newRegistry(t, []tools.Option{tools.WithMiddleware(fallback.Middleware())}, provider)
	loop := New(mock, reg, metrics.NewMonitor(nil), Config{})

	res, err := loop.Run(context.Background(), "Fury?")
	require.NoError(t, err)
	require.Len(t, res.Trace, 1)
	assert.Equal(t, metrics.OutcomeFallback, res.Trace[0].Outcome)

	msgs := mock.Requests()[1].Messages
	result := msgs[len(msgs)-1].ToolResults[0]
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "Unknown Fighter")
	assert.Contains(t, result.Content, `"fallback_used": true`)
}

func TestRunMultipleToolsInEmittedOrder(t *testing.T) {
	provider := &stubProvider{
		name:     "analytics",
		category: tools.CategoryAnalytics,
		results: map[string]any{
			"get_fighter_stats": "stats",
			"search_fighters":   "list",
		},
	}
	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("",
			llm.ToolCall{ID: "a", Name: "search_fighters"},
			llm.ToolCall{ID: "b", Name: "get_fighter_stats"},
		),
		agent.MockText("done"),
	)
	loop := New(mock, newRegistry(t, nil, provider), metrics.NewMonitor(nil), Config{})

	res, err := loop.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"search_fighters", "get_fighter_stats"}, provider.calls)
	require.Len(t, res.Trace, 2)

	msgs := mock.Requests()[1].Messages
	results := msgs[len(msgs)-1].ToolResults
	require.Len(t, results, 2, "one tool message groups all results of a turn")
	assert.Equal(t, "a", results[0].ToolCallID)
	assert.Equal(t, "list", results[0].Content)
	assert.Equal(t, "b", results[1].ToolCallID)
}

func TestRunModelErrorIsFatal(t *testing.T) {
	apiErr := errors.New("503 overloaded")
	mock := agent.NewMockLLMClient(agent.MockError(apiErr))
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, analyticsStub()), monitor, Config{})

	_, err := loop.Run(context.Background(), "q")
	require.Error(t, err)

	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, 1, modelErr.Iteration)
	assert.ErrorIs(t, err, apiErr)
	assert.Equal(t, KindModel, ErrorKind(err))
	assert.Equal(t, 1, mock.Calls(), "model errors are not retried")
	assert.Equal(t, 1, monitor.GetStats().ErrorCount)
}

func TestRunCancellationStopsBeforeTools(t *testing.T) {
	provider := analyticsStub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	step := agent.MockToolCalls("", furyCall("c1"))
	step.Hook = func(context.Context, llm.CompletionRequest) { cancel() }
	mock := agent.NewMockLLMClient(step, agent.MockText("never"))
	monitor := metrics.NewMonitor(nil)
	loop := New(mock, newRegistry(t, nil, provider), monitor, Config{})

	res, err := loop.Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindCanceled, ErrorKind(err))
	assert.Empty(t, provider.calls)
	assert.Empty(t, res.Trace)
	assert.Equal(t, 1, mock.Calls())

	stats := monitor.GetStats()
	assert.Equal(t, 1, stats.ErrorCount)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, KindCanceled, stats.Errors[0].Context["kind"])
}

func TestRunAlreadyCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := agent.NewMockLLMClient(agent.MockText("never"))
	loop := New(mock, newRegistry(t, nil, analyticsStub()), metrics.NewMonitor(nil), Config{})

	_, err := loop.Run(ctx, "q")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mock.Calls())
}

func TestRunEmitsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	mock := agent.NewMockLLMClient(
		agent.MockToolCalls("", furyCall("c1")),
		agent.MockText("answer"),
	)
	loop := New(mock, newRegistry(t, nil, analyticsStub()), metrics.NewMonitor(nil), Config{},
		WithTracer(tp.Tracer("test")))

	_, err := loop.Run(context.Background(), "q")
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
	}
	assert.Equal(t, 1, counts["toolloop.run"])
	assert.Equal(t, 2, counts["toolloop.iteration"])
	assert.Equal(t, 1, counts["toolloop.tool"])
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateAwaitingModel, StateExecutingTools, true},
		{StateAwaitingModel, StateDone, true},
		{StateAwaitingModel, StateFailed, true},
		{StateExecutingTools, StateAwaitingModel, true},
		{StateExecutingTools, StateFailed, true},
		{StateExecutingTools, StateDone, false},
		{StateDone, StateAwaitingModel, false},
		{StateFailed, StateAwaitingModel, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StateDone.IsTerminal())
	assert.False(t, StateExecutingTools.IsTerminal())
}
