package task

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"StockSentry/internal/model"
)

// maxErrorSummary bounds the error text stored in a run log.
const maxErrorSummary = 256

// RunLogAppender is the slice of the store the executor needs.
type RunLogAppender interface {
	AppendRunLog(rec *model.RunLog) error
}

// executor runs one task instance: timeout, panic containment, run-log
// write. Task failures never propagate past it.
type executor struct {
	store RunLogAppender
	log   *logrus.Logger
}

// execute runs the task body and records the outcome. The returned
// result is also the recorded one.
func (e *executor) execute(ctx context.Context, t *Task) Result {
	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	started := time.Now()
	result := e.runContained(runCtx, t)
	finished := time.Now()

	if result.Outcome == "" {
		if result.Err != nil {
			result.Outcome = model.OutcomeFailure
		} else {
			result.Outcome = model.OutcomeSuccess
		}
	}

	entry := e.log.WithFields(logrus.Fields{
		"task":    t.Name,
		"outcome": result.Outcome,
		"elapsed": finished.Sub(started).Round(time.Millisecond).String(),
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("task finished with errors")
	} else {
		entry.Info("task finished")
	}

	e.append(&model.RunLog{
		Task:         t.Name,
		StartedAt:    started,
		FinishedAt:   finished,
		Outcome:      result.Outcome,
		Attempted:    result.Attempted,
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		ErrorSummary: truncate(result.Err),
	})
	return result
}

// runContained invokes the body, converting a panic into a failure.
func (e *executor) runContained(ctx context.Context, t *Task) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failure(fmt.Errorf("task %s panicked: %v", t.Name, r))
		}
	}()
	return t.Run(ctx)
}

// recordSkip writes a run log for a firing coalesced into a no-op because
// the previous execution of the same task is still running.
func (e *executor) recordSkip(t *Task, reason string) {
	now := time.Now()
	e.log.WithFields(logrus.Fields{"task": t.Name, "reason": reason}).Warn("task firing skipped")
	e.append(&model.RunLog{
		Task:         t.Name,
		StartedAt:    now,
		FinishedAt:   now,
		Outcome:      model.OutcomeSkipped,
		ErrorSummary: reason,
	})
}

func (e *executor) append(rec *model.RunLog) {
	if err := e.store.AppendRunLog(rec); err != nil {
		e.log.WithError(err).WithField("task", rec.Task).Error("append run log")
	}
}

func truncate(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorSummary {
		msg = msg[:maxErrorSummary]
	}
	return msg
}
