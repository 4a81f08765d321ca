// Package resilience assembles the per-call protection stack applied to every tool dispatch.
package resilience

import (
	"context"

	"boxonomics/pkg/agent/middleware/resilience/circuit"
	"boxonomics/pkg/agent/middleware/resilience/fallback"
	"boxonomics/pkg/agent/middleware/resilience/ratelimit"
	"boxonomics/pkg/agent/middleware/resilience/retry"
	"boxonomics/pkg/agent/middleware/resilience/timeout"
	"boxonomics/pkg/tools"
)

// Config groups the settings for every layer.
type Config struct {
	RateLimits map[string]ratelimit.Config `json:"ratelimit,omitempty" yaml:"ratelimit,omitempty"`
	Timeout    timeout.Config              `json:"timeout" yaml:"timeout"`
	Retry      retry.Config                `json:"retry" yaml:"retry"`
	Circuit    circuit.Config              `json:"circuit" yaml:"circuit"`
	// DisableFallback surfaces provider failures as error results instead of placeholders.
	DisableFallback bool `json:"disable_fallback" yaml:"disable_fallback"`
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Timeout: timeout.Config{Default: timeout.DefaultTimeout},
		Retry:   retry.DefaultConfig,
		Circuit: circuit.DefaultConfig,
	}
}

// Layer owns the shared state behind the middleware stack.
// One Layer serves every conversation in the process.
type Layer struct {
	Breakers *circuit.Set
	Limiters *ratelimit.ProviderLimiterMap
	Retry    *retry.Policy
	cfg      Config
}

// Option adjusts a Layer at construction.
type Option func(*Layer)

// WithRetryPolicy replaces the retry policy, typically to inject a sleeper in tests.
func WithRetryPolicy(p *retry.Policy) Option {
	return func(l *Layer) {
		l.Retry = p
	}
}

// WithBreakers replaces the breaker set, typically to inject a clock in tests.
func WithBreakers(s *circuit.Set) Option {
	return func(l *Layer) {
		l.Breakers = s
	}
}

// New builds a Layer. ctx bounds the rate limiter refill goroutines.
func New(ctx context.Context, cfg Config, opts ...Option) *Layer {
	l := &Layer{
		cfg:      cfg,
		Breakers: circuit.NewSet(cfg.Circuit),
		Limiters: ratelimit.NewProviderLimiterMap(ctx, cfg.RateLimits, cfg.Timeout.For(tools.Call{})),
		Retry:    retry.NewPolicy(cfg.Retry, nil),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Middlewares returns the stack outermost first:
// fallback → retry → circuit → ratelimit → timeout → provider.
func (l *Layer) Middlewares() []tools.Middleware {
	mws := make([]tools.Middleware, 0, 5)
	if !l.cfg.DisableFallback {
		mws = append(mws, fallback.Middleware())
	}
	return append(mws,
		retry.Middleware(l.Retry),
		circuit.Middleware(l.Breakers),
		ratelimit.Middleware(l.Limiters),
		timeout.Middleware(l.cfg.Timeout),
	)
}

// Stop releases background resources.
func (l *Layer) Stop() {
	l.Limiters.Stop()
}
