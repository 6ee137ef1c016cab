package model

import "time"

// Task execution outcomes recorded in run logs.
const (
	OutcomeSuccess        = "success"
	OutcomePartialFailure = "partial_failure"
	OutcomeFailure        = "failure"
	OutcomeSkipped        = "skipped"
)

// RunLog is the durable record of one task execution attempt.
// Append-only: never mutated after the execution finishes.
type RunLog struct {
	ID           int64
	Task         string
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcome      string
	Attempted    int
	Succeeded    int
	Failed       int
	ErrorSummary string
}

// AnalysisResult is the reserved signal row shape for future strategy
// consumers. It is not produced by this system; its key layout constrains
// the indicator engine's output so strategies can join on (symbol, date).
type AnalysisResult struct {
	Symbol     string
	Date       string
	Strategy   string
	Signal     string
	Confidence float64
}
