package toolloop

import (
	"context"
	"errors"
	"fmt"
)

// IterationBudgetExceeded is returned when the model keeps requesting tools past the budget.
type IterationBudgetExceeded struct {
	MaxIterations int
}

func (e *IterationBudgetExceeded) Error() string {
	return fmt.Sprintf("iteration budget exceeded: no final answer after %d model calls", e.MaxIterations)
}

// ModelError wraps a failed model endpoint call. It is fatal for the run.
type ModelError struct {
	Err       error
	Model     string
	Iteration int
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s failed on iteration %d: %v", e.Model, e.Iteration, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Error kinds reported to HTTP and CLI callers.
const (
	KindBudgetExceeded = "iteration_budget_exceeded"
	KindModel          = "model_error"
	KindCanceled       = "canceled"
	KindInternal       = "internal"
)

// ErrorKind classifies a run error for callers that report it outside Go.
func ErrorKind(err error) string {
	var budget *IterationBudgetExceeded
	var model *ModelError
	switch {
	case errors.As(err, &budget):
		return KindBudgetExceeded
	case errors.As(err, &model):
		return KindModel
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
