package replay

import "errors"

// ReplayError implements errors unique to a prioritized replay
// buffer.
type ReplayError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *ReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyBuffer error = errors.New("buffer empty")

var errInsufficientSamples = errors.New("fewer stored transitions than " +
	"batch size")

var errInvalidPriority = errors.New("priority is negative, NaN, or infinite")

var errUnknownSlot = errors.New("slot id was never written")

var errUnwrittenSlot = errors.New("slot holds no transition")

// unwrap returns the sentinel error underlying a *ReplayError, or the
// error itself otherwise.
func unwrap(err error) error {
	if replayErr, ok := err.(*ReplayError); ok {
		return replayErr.Err
	}
	return err
}

// IsEmptyBuffer returns whether or not an error reports that a replay
// buffer holds no transitions at all.
func IsEmptyBuffer(err error) bool {
	return unwrap(err) == errEmptyBuffer
}

// IsInsufficientSamples returns whether or not an error reports that
// there are fewer transitions in the buffer than the requested batch
// size. Callers typically skip the training step on this error and
// retry once more experience has accumulated.
func IsInsufficientSamples(err error) bool {
	return unwrap(err) == errInsufficientSamples
}

// IsInvalidPriority returns whether or not an error reports that a
// priority or TD error was negative, NaN, or infinite. These are
// rejected rather than clamped so that upstream numerical bugs are
// not masked.
func IsInvalidPriority(err error) bool {
	return unwrap(err) == errInvalidPriority
}

// IsUnknownSlot returns whether or not an error reports that a slot id
// refers to a position that was never written.
func IsUnknownSlot(err error) bool {
	return unwrap(err) == errUnknownSlot
}

// IsUnwrittenSlot returns whether or not an error reports a read of a
// storage slot that holds no transition.
func IsUnwrittenSlot(err error) bool {
	return unwrap(err) == errUnwrittenSlot
}
