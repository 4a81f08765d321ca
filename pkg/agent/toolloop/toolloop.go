// Package toolloop runs the bounded model/tool conversation that answers one query.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/middleware/resilience/fallback"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/metrics"
	"boxonomics/pkg/telemetry"
	"boxonomics/pkg/tools"
	"boxonomics/pkg/utils"
)

// DefaultMaxIterations bounds model calls per run.
const DefaultMaxIterations = 10

// Dispatcher is the part of the tool registry the loop needs.
type Dispatcher interface {
	Describe() []tools.ToolDefinition
	Dispatch(ctx context.Context, name string, args map[string]any) (any, error)
	ProviderFor(name string) (string, bool)
}

// Monitor receives query, tool-call and error events.
type Monitor interface {
	LogQuery(text string)
	LogToolOutcome(name, provider, outcome string, durationMs float64)
	LogError(message string, context map[string]any)
}

// Config bounds one run.
type Config struct {
	SystemPrompt  string
	MaxIterations int
	MaxTokens     int
	Temperature   float32
}

// ToolCallRecord is one executed tool request in a run trace.
type ToolCallRecord struct {
	ToolName     string  `json:"tool_name"`
	ProviderName string  `json:"provider_name"`
	Outcome      string  `json:"outcome"`
	DurationMs   float64 `json:"duration_ms"`
}

// RunResult is the outcome of a run. On failure it still carries the partial trace and conversation.
type RunResult struct {
	Answer     string
	Trace      []ToolCallRecord
	Messages   []llm.CompletionMessage
	Elapsed    time.Duration
	Iterations int
}

// Loop drives a model endpoint against a tool registry.
type Loop struct {
	client  llm.LLMClient
	tools   Dispatcher
	monitor Monitor
	logger  *logx.Logger
	tracer  trace.Tracer
	now     func() time.Time
	cfg     Config
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger replaces the default component logger.
func WithLogger(l *logx.Logger) Option {
	return func(loop *Loop) {
		loop.logger = l
	}
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(loop *Loop) {
		loop.tracer = t
	}
}

// WithClock injects the time source used for durations.
func WithClock(now func() time.Time) Option {
	return func(loop *Loop) {
		loop.now = now
	}
}

// New creates a loop. A nil monitor means the process default.
func New(client llm.LLMClient, registry Dispatcher, monitor Monitor, cfg Config, opts ...Option) *Loop {
	if monitor == nil {
		monitor = metrics.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = llm.DefaultMaxTokens
	}
	l := &Loop{
		client:  client,
		tools:   registry,
		monitor: monitor,
		logger:  logx.NewLogger("toolloop"),
		tracer:  telemetry.Tracer(),
		now:     time.Now,
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// run holds the mutable state of one Run call.
type run struct {
	conv      *llm.Conversation
	result    *RunResult
	err       error
	state     State
	iteration int
}

func (l *Loop) transition(r *run, next State) {
	if !r.state.CanTransitionTo(next) {
		r.err = fmt.Errorf("invalid state transition %s -> %s", r.state, next)
		r.state = StateFailed
		return
	}
	l.logger.Debug("🔀 %s -> %s (iteration %d)", r.state, next, r.iteration)
	r.state = next
}

func (l *Loop) fail(r *run, err error) {
	l.transition(r, StateFailed)
	if r.err == nil {
		r.err = err
	}
}

// Run answers query. The model is called at most MaxIterations times. Tool failures are fed back
// to the model as error results; only model failures, budget exhaustion and cancellation fail the run.
func (l *Loop) Run(ctx context.Context, query string) (*RunResult, error) {
	start := l.now()
	ctx, span := l.tracer.Start(ctx, "toolloop.run", trace.WithAttributes(
		attribute.String("model", l.client.GetModelName()),
		attribute.Int("max_iterations", l.cfg.MaxIterations),
	))
	defer span.End()

	l.monitor.LogQuery(query)

	r := &run{
		conv:   llm.NewConversation(l.cfg.SystemPrompt),
		result: &RunResult{Trace: []ToolCallRecord{}},
		state:  StateAwaitingModel,
	}
	r.conv.Append(llm.NewUserMessage(query))
	toolDefs := l.tools.Describe()

	var pending []llm.ToolCall
	for !r.state.IsTerminal() {
		if err := ctx.Err(); err != nil {
			l.fail(r, err)
			break
		}

		switch r.state {
		case StateAwaitingModel:
			if r.iteration >= l.cfg.MaxIterations {
				l.fail(r, &IterationBudgetExceeded{MaxIterations: l.cfg.MaxIterations})
				break
			}
			r.iteration++
			resp, err := l.callModel(ctx, r, toolDefs)
			if err != nil {
				l.fail(r, err)
				break
			}
			r.conv.Append(llm.NewAssistantMessage(resp.Content, resp.ToolCalls))
			if len(resp.ToolCalls) == 0 {
				r.result.Answer = resp.Content
				l.transition(r, StateDone)
				break
			}
			pending = resp.ToolCalls
			l.transition(r, StateExecutingTools)

		case StateExecutingTools:
			results, err := l.executeTools(ctx, r, pending)
			pending = nil
			if err != nil {
				l.fail(r, err)
				break
			}
			r.conv.Append(llm.NewToolResultMessage(results))
			l.transition(r, StateAwaitingModel)
		}
	}

	r.result.Iterations = r.iteration
	r.result.Messages = r.conv.Messages()
	r.result.Elapsed = l.now().Sub(start)
	span.SetAttributes(
		attribute.Int("iterations", r.result.Iterations),
		attribute.Int("tool_calls", len(r.result.Trace)),
	)

	if r.state == StateFailed {
		l.monitor.LogError(r.err.Error(), map[string]any{
			"query":     query,
			"iteration": r.iteration,
			"kind":      ErrorKind(r.err),
		})
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		l.logger.Warn("❌ Run failed after %d iterations: %v", r.iteration, r.err)
		return r.result, r.err
	}
	l.logger.Info("✅ Run finished in %d iterations, %d tool calls, %v",
		r.result.Iterations, len(r.result.Trace), r.result.Elapsed.Round(time.Millisecond))
	return r.result, nil
}

func (l *Loop) callModel(ctx context.Context, r *run, toolDefs []tools.ToolDefinition) (llm.CompletionResponse, error) {
	ctx, span := l.tracer.Start(ctx, "toolloop.iteration", trace.WithAttributes(
		attribute.Int("iteration", r.iteration),
	))
	defer span.End()

	messages := r.conv.Messages()
	if logx.IsDebugEnabled() {
		l.logger.Debug("📏 Iteration %d: %d messages, ~%d tokens",
			r.iteration, len(messages), utils.DefaultCounter().CountMessages(messages))
	}

	req := llm.CompletionRequest{
		Messages:    messages,
		Tools:       toolDefs,
		MaxTokens:   l.cfg.MaxTokens,
		Temperature: l.cfg.Temperature,
	}

	callStart := l.now()
	resp, err := l.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return llm.CompletionResponse{}, &ModelError{Err: err, Model: l.client.GetModelName(), Iteration: r.iteration}
	}
	l.logger.Debug("🤖 Model replied in %v with %d tool calls", l.now().Sub(callStart), len(resp.ToolCalls))
	span.SetAttributes(attribute.Int("tool_requests", len(resp.ToolCalls)))
	return resp, nil
}

// executeTools runs calls sequentially in emitted order.
func (l *Loop) executeTools(ctx context.Context, r *run, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	results := make([]llm.ToolResult, 0, len(calls))
	for i := range calls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, record := l.executeTool(ctx, &calls[i])
		results = append(results, result)
		r.result.Trace = append(r.result.Trace, record)
		l.monitor.LogToolOutcome(record.ToolName, record.ProviderName, record.Outcome, record.DurationMs)
	}
	return results, nil
}

func (l *Loop) executeTool(ctx context.Context, call *llm.ToolCall) (llm.ToolResult, ToolCallRecord) {
	provider, _ := l.tools.ProviderFor(call.Name)
	ctx, span := l.tracer.Start(ctx, "toolloop.tool", trace.WithAttributes(
		attribute.String("tool", call.Name),
		attribute.String("provider", provider),
	))
	defer span.End()

	start := l.now()
	value, err := l.tools.Dispatch(ctx, call.Name, call.Parameters)
	record := ToolCallRecord{
		ToolName:     call.Name,
		ProviderName: provider,
		DurationMs:   float64(l.now().Sub(start).Microseconds()) / 1000,
	}
	result := llm.ToolResult{ToolCallID: call.ID}

	switch {
	case tools.IsUnknownTool(err):
		record.Outcome = metrics.OutcomeUnknownTool
		result.Content = fmt.Sprintf("Error: Tool %s not found", call.Name)
		result.IsError = true
		l.logger.Warn("❓ Model requested unknown tool %s", call.Name)
	case err != nil:
		record.Outcome = metrics.OutcomeError
		result.Content = tools.EncodeError(err)
		result.IsError = true
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Warn("⚠️  Tool %s failed: %v", call.Name, err)
	case fallback.IsFallback(value):
		record.Outcome = metrics.OutcomeFallback
		result.Content = tools.EncodeResult(value)
	default:
		record.Outcome = metrics.OutcomeSuccess
		result.Content = tools.EncodeResult(value)
	}
	span.SetAttributes(attribute.String("outcome", record.Outcome))
	return result, record
}
