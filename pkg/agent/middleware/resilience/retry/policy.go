// Package retry re-invokes failed tool calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"boxonomics/pkg/agent/middleware/resilience/circuit"
	"boxonomics/pkg/tools"
)

// Config bounds how often and how patiently a call is retried.
// MaxAttempts counts the first call. Jitter spreads each delay by up to 10%.
type Config struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay  time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
	Jitter        bool          `json:"jitter" yaml:"jitter"`
}

// DefaultConfig waits 1s then 2s before giving up on the third failure.
//
//nolint:gochecknoglobals // default config
var DefaultConfig = Config{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 2.0,
}

// Classifier reports whether err is worth another attempt.
type Classifier func(error) bool

// SleepFunc waits for d or until ctx is done. Tests swap it out to avoid real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ShouldRetry treats every failure as transient except caller cancellation,
// an open circuit and caller errors (configuration, unknown tool, bad arguments).
// Per-call timeouts are retried.
func ShouldRetry(err error) bool {
	var open *circuit.CircuitOpenError
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.As(err, &open):
		return false
	case tools.IsCallerError(err):
		return false
	}
	return true
}

// Policy pairs a Config with the decision and wait functions it uses.
type Policy struct {
	Classifier Classifier
	Sleep      SleepFunc
	Config     Config
}

// NewPolicy fills a nil classifier with ShouldRetry and clamps MaxAttempts to at least one.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	config.MaxAttempts = max(config.MaxAttempts, 1)
	return &Policy{Config: config, Classifier: classifier, Sleep: sleepContext}
}

// CalculateDelay returns the pause before attempt n. Attempt 1 never waits;
// attempt 2 waits InitialDelay and each later attempt multiplies by BackoffFactor.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	delay := float64(p.Config.InitialDelay)
	for range attempt - 2 {
		delay *= p.Config.BackoffFactor
		if p.Config.MaxDelay > 0 && delay >= float64(p.Config.MaxDelay) {
			break
		}
	}
	d := time.Duration(delay)
	if p.Config.MaxDelay > 0 {
		d = min(d, p.Config.MaxDelay)
	}
	if p.Config.Jitter && d > 0 {
		spread := float64(d) / 10
		d += time.Duration(spread * (2*rand.Float64() - 1)) //nolint:gosec // jitter needs no crypto
		if d < 0 {
			d = p.Config.InitialDelay
		}
	}
	return d
}

// ShouldRetry applies the policy's classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

func (p *Policy) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck // context error propagated as-is
	case <-time.After(d):
		return nil
	}
}
