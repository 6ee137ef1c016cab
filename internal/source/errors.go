package source

import (
	"errors"
	"fmt"
)

// ErrMalformed marks an upstream response whose shape cannot be parsed.
// Not retryable: the same request would fail the same way.
var ErrMalformed = errors.New("malformed data source response")

// TransientError wraps a network, timeout, or upstream-side failure that
// is worth retrying within the pipeline's attempt budget.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable adapter failure.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsRetryable reports whether err is a transient-external failure.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
