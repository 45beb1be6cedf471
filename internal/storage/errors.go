package storage

import "errors"

// Task store error taxonomy. Handlers map these onto HTTP statuses and the
// worker treats all of them as non-retriable.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateActiveStage is returned by CreateTask when a non-terminal
	// task already exists for the same (video, stage) pair.
	ErrDuplicateActiveStage = errors.New("an active task already exists for this stage")

	// ErrInvalidTransition is returned when a mutation is attempted on a
	// task whose status does not permit it.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrAlreadyTerminal is returned when a second, different terminal
	// transition is attempted on a finished task.
	ErrAlreadyTerminal = errors.New("task is already terminal")

	// ErrOutOfRange is returned when a progress value is outside [0,100]
	// or lower than the previously recorded progress.
	ErrOutOfRange = errors.New("progress value out of range")

	// ErrCanceled is returned from a progress checkpoint after cancellation
	// has been requested for the task.
	ErrCanceled = errors.New("task canceled")
)
