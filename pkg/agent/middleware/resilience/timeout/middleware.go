// Package timeout bounds the wall-clock time of a single tool attempt.
package timeout

import (
	"context"
	"fmt"
	"time"

	"boxonomics/pkg/tools"
)

// DefaultTimeout applies when neither the tool nor its provider has an override.
const DefaultTimeout = 30 * time.Second

// Config maps providers and tools to their per-attempt limits.
type Config struct {
	PerProvider map[string]time.Duration `json:"per_provider,omitempty" yaml:"per_provider,omitempty"`
	PerTool     map[string]time.Duration `json:"per_tool,omitempty" yaml:"per_tool,omitempty"`
	Default     time.Duration            `json:"default" yaml:"default"`
}

// For resolves the limit for call: tool override, then provider, then default.
func (c Config) For(call tools.Call) time.Duration {
	if d, ok := c.PerTool[call.Tool]; ok && d > 0 {
		return d
	}
	if d, ok := c.PerProvider[call.Provider]; ok && d > 0 {
		return d
	}
	if c.Default > 0 {
		return c.Default
	}
	return DefaultTimeout
}

// Error reports an attempt that exceeded its limit.
type Error struct {
	Provider string
	Tool     string
	After    time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s (%s) timed out after %s", e.Tool, e.Provider, e.After)
}

// Unwrap lets callers match context.DeadlineExceeded.
func (e *Error) Unwrap() error {
	return context.DeadlineExceeded
}

type outcome struct {
	result any
	err    error
}

// Middleware gives each attempt its own deadline. The attempt runs in a goroutine so a
// provider that ignores its context still cannot hold the caller past the limit.
func Middleware(cfg Config) tools.Middleware {
	return func(next tools.Invoker) tools.Invoker {
		return func(ctx context.Context, call tools.Call) (any, error) {
			limit := cfg.For(call)
			attemptCtx, cancel := context.WithTimeout(ctx, limit)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				result, err := next(attemptCtx, call)
				done <- outcome{result: result, err: err}
			}()

			select {
			case out := <-done:
				if out.err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
					return nil, &Error{Provider: call.Provider, Tool: call.Tool, After: limit}
				}
				return out.result, out.err
			case <-attemptCtx.Done():
				if ctx.Err() != nil {
					return nil, ctx.Err() //nolint:wrapcheck // Caller cancellation propagated as-is
				}
				return nil, &Error{Provider: call.Provider, Tool: call.Tool, After: limit}
			}
		}
	}
}
