// Package fallback turns an exhausted tool call into a structured placeholder the model can read.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"boxonomics/pkg/logx"
	"boxonomics/pkg/tools"
)

// Result is returned in place of real data once a call has failed for good.
type Result struct {
	Data         map[string]any `json:"data"`
	Error        string         `json:"error"`
	ToolName     string         `json:"tool_name"`
	Message      string         `json:"message"`
	FallbackUsed bool           `json:"fallback_used"`
}

// Placeholder returns the minimal data shape for a tool category.
func Placeholder(category tools.Category) map[string]any {
	switch category {
	case tools.CategoryAnalytics:
		return map[string]any{"name": "Unknown Fighter", "record": "N/A", "note": "Fighter data unavailable"}
	case tools.CategoryOdds:
		return map[string]any{"odds": "N/A", "note": "Betting data unavailable"}
	case tools.CategoryNews:
		return map[string]any{"articles": []any{}, "note": "News data unavailable"}
	case tools.CategorySocial:
		return map[string]any{"posts": []any{}, "note": "Social data unavailable"}
	default:
		return map[string]any{"note": "Data unavailable"}
	}
}

// New builds the fallback for a failed call.
func New(call tools.Call, err error) *Result {
	return &Result{
		Error:        err.Error(),
		FallbackUsed: true,
		ToolName:     call.Tool,
		Message:      fmt.Sprintf("Tool '%s' unavailable. Using fallback data.", call.Tool),
		Data:         Placeholder(call.Category),
	}
}

// IsFallback reports whether a dispatch result is a fallback placeholder.
func IsFallback(result any) bool {
	r, ok := result.(*Result)
	return ok && r != nil && r.FallbackUsed
}

// Middleware converts provider failures into a Result with a nil error.
// Caller errors and caller cancellation pass through unchanged.
func Middleware() tools.Middleware {
	logger := logx.NewLogger("fallback")
	return func(next tools.Invoker) tools.Invoker {
		return func(ctx context.Context, call tools.Call) (any, error) {
			result, err := next(ctx, call)
			if err == nil {
				return result, nil
			}
			if tools.IsCallerError(err) {
				return nil, err
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil, err
			}

			logger.Warn("🪂 Fallback for %s: %v", call.Tool, err)
			return New(call, err), nil
		}
	}
}
