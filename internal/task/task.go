package task

import (
	"context"
	"time"

	"StockSentry/internal/model"
)

// Result is the structured outcome of one task body execution.
type Result struct {
	Outcome   string
	Attempted int
	Succeeded int
	Failed    int
	Err       error
}

// Success returns a plain success result.
func Success() Result {
	return Result{Outcome: model.OutcomeSuccess}
}

// Failure returns a failure result carrying err.
func Failure(err error) Result {
	return Result{Outcome: model.OutcomeFailure, Err: err}
}

// Task is one registered unit of scheduled work. Gate, when set, is
// consulted at fire time; a false verdict skips the firing but still
// advances the next fire time.
type Task struct {
	Name    string
	Trigger Trigger
	Gate    func(time.Time) bool
	Timeout time.Duration
	Run     func(ctx context.Context) Result
}
