package attendance

import "errors"

var (
	// ErrWindowClosed rejects presence operations outside the live's
	// active window. Surfaced to the student as "session not available".
	ErrWindowClosed = errors.New("live window closed")

	// ErrInvalidDelta rejects negative watch-time deltas.
	ErrInvalidDelta = errors.New("invalid watch delta")

	// ErrNotFound is returned when no attendance record exists for the
	// (student, live) pair.
	ErrNotFound = errors.New("attendance record not found")
)
