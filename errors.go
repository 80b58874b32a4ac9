package fuse

import "errors"

// Session setup and cycle errors. Pixel-level hazards never surface as
// errors; they are resolved inside the kernel.
var (
	// ErrInvalidDimensions is returned when width or height is non-positive.
	ErrInvalidDimensions = errors.New("fuse: invalid dimensions")

	// ErrMissingWeightTable is returned when the weighted strategy is
	// selected without a weight table.
	ErrMissingWeightTable = errors.New("fuse: weighted strategy requires a weight table")

	// ErrWeightTableSize is returned when a weight table does not have
	// exactly one entry per 8-bit luma value.
	ErrWeightTableSize = errors.New("fuse: weight table must have 256 entries")

	// ErrUnknownStrategy is returned when a strategy name or kind is not recognized.
	ErrUnknownStrategy = errors.New("fuse: unknown strategy")

	// ErrFrameSize is returned when a current frame does not match the
	// session dimensions.
	ErrFrameSize = errors.New("fuse: frame size does not match session")

	// ErrCycleActive is returned when a cycle is started, or the session
	// resized, while another cycle has not ended.
	ErrCycleActive = errors.New("fuse: fusion cycle already in progress")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("fuse: session closed")
)

// ErrProcessorStarted is returned by Processor.Start when the processor
// has already been started.
var ErrProcessorStarted = errors.New("fuse: processor already started")
