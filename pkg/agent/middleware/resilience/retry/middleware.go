package retry

import (
	"context"
	"fmt"

	"boxonomics/pkg/logx"
	"boxonomics/pkg/tools"
)

// Middleware re-dispatches a failed call while the policy allows it.
// The final error is returned unwrapped so the fallback layer can classify it.
func Middleware(policy *Policy) tools.Middleware {
	logger := logx.NewLogger("retry")
	limit := policy.Config.MaxAttempts

	return func(next tools.Invoker) tools.Invoker {
		return func(ctx context.Context, call tools.Call) (any, error) {
			attempt := 1
			for {
				result, err := next(ctx, call)
				switch {
				case err == nil:
					return result, nil
				case !policy.ShouldRetry(err):
					return nil, err
				case attempt >= limit:
					logger.Warn("%s/%s gave up after %d attempts: %v", call.Provider, call.Tool, attempt, err)
					return nil, err
				}

				attempt++
				delay := policy.CalculateDelay(attempt)
				logger.Debug("🔁 %s/%s attempt %d/%d in %s", call.Provider, call.Tool, attempt, limit, delay)
				if werr := policy.wait(ctx, delay); werr != nil {
					return nil, fmt.Errorf("retry cancelled: %w", werr)
				}
			}
		}
	}
}
