package board

import "errors"

var (
	// ErrPermissionDenied is returned when the acting user lacks the
	// capability a mutation requires. No state changes on denial.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnknownColumn rejects a drop whose source or target column
	// identifier is not one of the four fixed columns.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrTaskNotFound is returned when a gesture references a task absent
	// from the current snapshot.
	ErrTaskNotFound = errors.New("task not found")
	// ErrSubtaskIndex is returned for an out-of-range subtask toggle.
	ErrSubtaskIndex = errors.New("subtask index out of range")
)
