package circuit

import (
	"context"
	"errors"

	"boxonomics/pkg/tools"
)

// Middleware guards each call with the provider's breaker and records the attempt's outcome.
// Caller errors (configuration, unknown tool, bad arguments) and caller cancellation
// say nothing about provider health and are not recorded.
func Middleware(set *Set) tools.Middleware {
	return func(next tools.Invoker) tools.Invoker {
		return func(ctx context.Context, call tools.Call) (any, error) {
			if err := set.Check(call.Provider); err != nil {
				return nil, err
			}

			result, err := next(ctx, call)
			b := set.Get(call.Provider)
			switch {
			case err == nil:
				b.Record(true)
			case countsAgainstProvider(ctx, err):
				b.Record(false)
			default:
				b.Release()
			}
			return result, err
		}
	}
}

func countsAgainstProvider(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if tools.IsCallerError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return false
	}
	return true
}
