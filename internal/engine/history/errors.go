package history

import "errors"

var (
	// ErrNothingToUndo is returned when a target has no recorded
	// changes to revert.
	ErrNothingToUndo = errors.New("no recorded change to undo")

	// ErrConcurrentModification is returned when the live row no longer
	// matches the state the latest change record produced, meaning
	// someone else wrote in between.
	ErrConcurrentModification = errors.New("target was modified since the last recorded change")
)
