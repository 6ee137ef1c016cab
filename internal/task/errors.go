package task

import "errors"

var (
	// ErrDuplicateTask is returned by Register when the name is taken.
	ErrDuplicateTask = errors.New("task name already registered")

	// ErrUnknownTask is returned by RunNow for an unregistered name.
	ErrUnknownTask = errors.New("unknown task")
)
