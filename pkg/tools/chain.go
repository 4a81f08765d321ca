package tools

import "context"

// Call is a single tool invocation as seen by the invoker chain.
type Call struct {
	Args     map[string]any
	Tool     string
	Provider string
	Category Category
}

// Invoker executes a call. The registry terminates every chain with the owning provider's Invoke.
type Invoker func(ctx context.Context, call Call) (any, error)

// Middleware wraps an Invoker with additional behavior.
type Middleware func(next Invoker) Invoker

// Chain composes middlewares around a base invoker.
// Earlier middlewares are outermost: Chain(base, a, b) runs a -> b -> base.
func Chain(base Invoker, middlewares ...Middleware) Invoker {
	inv := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		inv = middlewares[i](inv)
	}
	return inv
}
