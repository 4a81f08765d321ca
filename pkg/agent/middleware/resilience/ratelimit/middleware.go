package ratelimit

import (
	"context"

	"boxonomics/pkg/tools"
)

// Middleware takes one request token and one slot from the provider's limiter per attempt.
func Middleware(limiters *ProviderLimiterMap) tools.Middleware {
	return func(next tools.Invoker) tools.Invoker {
		return func(ctx context.Context, call tools.Call) (any, error) {
			limiter := limiters.Get(call.Provider)
			if limiter == nil {
				return next(ctx, call)
			}
			release, err := limiter.Acquire(ctx, 1, call.Tool)
			if err != nil {
				return nil, err
			}
			defer release()
			return next(ctx, call)
		}
	}
}
