// Package assistant wires configuration, providers, resilience, the model endpoint and the
// orchestration loop into the object the CLI and HTTP server drive.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"boxonomics/pkg/agent"
	"boxonomics/pkg/agent/llm"
	"boxonomics/pkg/agent/middleware/resilience"
	"boxonomics/pkg/agent/middleware/resilience/circuit"
	"boxonomics/pkg/agent/middleware/resilience/ratelimit"
	"boxonomics/pkg/agent/middleware/resilience/retry"
	"boxonomics/pkg/agent/middleware/resilience/timeout"
	"boxonomics/pkg/agent/toolloop"
	"boxonomics/pkg/config"
	"boxonomics/pkg/logx"
	"boxonomics/pkg/metrics"
	"boxonomics/pkg/persistence"
	"boxonomics/pkg/tools"
)

// Assistant answers boxing questions. It is safe for concurrent Ask calls.
type Assistant struct {
	Registry *tools.Registry
	Layer    *resilience.Layer
	Monitor  *metrics.Monitor
	Recorder *metrics.PrometheusRecorder
	History  *persistence.HistoryStore

	client   llm.LLMClient
	loop     *toolloop.Loop
	archiver *persistence.Archiver
	logger   *logx.Logger
	closers  []func() error
}

// Option customizes New.
type Option func(*options)

type options struct {
	client    llm.LLMClient
	monitor   *metrics.Monitor
	recorder  *metrics.PrometheusRecorder
	history   *persistence.HistoryStore
	providers []tools.Provider
	layerOpts []resilience.Option
	noHistory bool
}

// WithClient uses client instead of building one from the model config.
func WithClient(client llm.LLMClient) Option {
	return func(o *options) { o.client = client }
}

// WithProviders registers providers instead of building them from config.
func WithProviders(p ...tools.Provider) Option {
	return func(o *options) { o.providers = p }
}

// WithMonitor records into m instead of the process default.
func WithMonitor(m *metrics.Monitor) Option {
	return func(o *options) { o.monitor = m }
}

// WithRecorder mirrors metrics into r instead of a fresh recorder.
func WithRecorder(r *metrics.PrometheusRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithHistory archives runs into store instead of opening the configured history file.
func WithHistory(store *persistence.HistoryStore) Option {
	return func(o *options) { o.history = store }
}

// WithoutHistory disables run archiving.
func WithoutHistory() Option {
	return func(o *options) { o.noHistory = true }
}

// WithResilienceOptions passes options to the resilience layer, typically test clocks and sleepers.
func WithResilienceOptions(opts ...resilience.Option) Option {
	return func(o *options) { o.layerOpts = append(o.layerOpts, opts...) }
}

// ResilienceConfig translates the config file sections into the middleware settings.
func ResilienceConfig(cfg *config.Config) resilience.Config {
	rc := resilience.Config{
		Timeout: timeout.Config{
			Default:     cfg.Resilience.Timeout.Default,
			PerTool:     cfg.Resilience.Timeout.PerTool,
			PerProvider: map[string]time.Duration{},
		},
		Retry: retry.Config{
			MaxAttempts:   cfg.Resilience.Retry.MaxAttempts,
			InitialDelay:  cfg.Resilience.Retry.InitialDelay,
			MaxDelay:      cfg.Resilience.Retry.MaxDelay,
			BackoffFactor: cfg.Resilience.Retry.BackoffFactor,
			Jitter:        cfg.Resilience.Retry.Jitter,
		},
		Circuit: circuit.Config{
			FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
			SuccessThreshold: cfg.Resilience.Breaker.SuccessThreshold,
			RecoveryTimeout:  cfg.Resilience.Breaker.RecoveryTimeout,
		},
		RateLimits:      make(map[string]ratelimit.Config, len(cfg.Resilience.RateLimits)),
		DisableFallback: cfg.Resilience.DisableFallback,
	}
	if rc.Timeout.Default <= 0 {
		rc.Timeout.Default = timeout.DefaultTimeout
	}
	if rc.Circuit.FailureThreshold <= 0 {
		rc.Circuit = circuit.DefaultConfig
	}
	if rc.Retry.MaxAttempts <= 0 {
		rc.Retry = retry.DefaultConfig
	}
	for name, rl := range cfg.Resilience.RateLimits {
		rc.RateLimits[name] = ratelimit.Config{RequestsPerMinute: rl.RequestsPerMinute, MaxConcurrency: rl.MaxConcurrency}
	}
	for name, pc := range cfg.Providers {
		if pc.Timeout > 0 {
			rc.Timeout.PerProvider[name] = pc.Timeout
		}
	}
	return rc
}

// New builds an Assistant. ctx bounds background workers such as rate limiter refills.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Assistant, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &Assistant{
		Monitor:  o.monitor,
		Recorder: o.recorder,
		logger:   logx.NewLogger("assistant"),
	}
	if a.Monitor == nil {
		a.Monitor = metrics.Default()
	}
	if a.Recorder == nil {
		a.Recorder = metrics.NewPrometheusRecorder()
	}
	a.Monitor.SetObserver(a.Recorder)

	providers := o.providers
	if providers == nil {
		built, closeProviders, err := BuildProviders(ctx, cfg)
		if err != nil {
			return nil, err
		}
		providers = built
		a.closers = append(a.closers, closeProviders)
	}

	a.Layer = resilience.New(ctx, ResilienceConfig(cfg), o.layerOpts...)
	a.closers = append(a.closers, func() error { a.Layer.Stop(); return nil })
	a.Layer.Breakers.OnStateChange(func(provider string, _, to circuit.State) {
		a.Recorder.SetCircuitState(provider, int(to))
	})

	registry, err := tools.Build(providers, tools.WithMiddleware(a.Layer.Middlewares()...))
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Registry = registry

	a.client = o.client
	if a.client == nil {
		client, err := agent.NewClient(cfg.Model, agent.WithRecorder(a.Recorder))
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to create model client: %w", err)
		}
		a.client = client
	}

	a.loop = toolloop.New(a.client, a.Registry, a.Monitor, toolloop.Config{
		SystemPrompt:  cfg.Loop.SystemPrompt,
		MaxIterations: cfg.Loop.MaxIterations,
		MaxTokens:     cfg.Model.MaxTokens,
		Temperature:   cfg.Model.Temperature,
	})

	if err := a.openHistory(ctx, cfg, &o); err != nil {
		a.logger.Warn("Run history disabled: %v", err)
	}

	a.logger.Info("Assistant ready: %d tools from %v using %s",
		a.Registry.Len(), a.Registry.Providers(), a.client.GetModelName())
	return a, nil
}

func (a *Assistant) openHistory(ctx context.Context, cfg *config.Config, o *options) error {
	if o.noHistory || (o.history == nil && cfg.Persistence.Disabled) {
		return nil
	}
	store := o.history
	if store == nil {
		path := cfg.Persistence.HistoryPath
		if path == "" {
			path = config.DefaultHistoryPath
		}
		opened, err := persistence.OpenHistory(ctx, path)
		if err != nil {
			return err //nolint:wrapcheck // logged by the caller
		}
		store = opened
		a.closers = append(a.closers, store.Close)
	}
	a.History = store
	a.archiver = persistence.NewArchiver(store, 0)
	a.closers = append(a.closers, func() error { a.archiver.Stop(); return nil })
	return nil
}

// Model returns the model endpoint name.
func (a *Assistant) Model() string {
	return a.client.GetModelName()
}

// Ask answers one query. On failure the partial result is returned with the error.
// Every run is handed to the archiver when history is enabled.
func (a *Assistant) Ask(ctx context.Context, query string) (*toolloop.RunResult, error) {
	result, err := a.loop.Run(ctx, query)
	if a.archiver != nil {
		a.archiver.Archive(a.record(query, result, err))
	}
	return result, err //nolint:wrapcheck // typed loop errors are classified by callers
}

func (a *Assistant) record(query string, result *toolloop.RunResult, runErr error) *persistence.RunRecord {
	rec := &persistence.RunRecord{Query: query, Model: a.client.GetModelName()}
	if runErr != nil {
		rec.Error = runErr.Error()
		rec.ErrorKind = toolloop.ErrorKind(runErr)
	}
	if result == nil {
		return rec
	}
	rec.Answer = result.Answer
	rec.Iterations = result.Iterations
	rec.ElapsedMs = result.Elapsed.Milliseconds()
	for _, tc := range result.Trace {
		rec.ToolCalls = append(rec.ToolCalls, persistence.ToolCallRow{
			ToolName:     tc.ToolName,
			ProviderName: tc.ProviderName,
			Outcome:      tc.Outcome,
			DurationMs:   tc.DurationMs,
		})
	}
	if transcript, err := json.Marshal(result.Messages); err == nil {
		rec.Transcript = string(transcript)
	}
	return rec
}

// Close stops background workers and releases providers, in reverse order of creation.
func (a *Assistant) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
