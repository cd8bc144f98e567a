package contour

import (
	"errors"
	"fmt"
)

var (
	// ErrAllocation is returned when a polyline would grow beyond the
	// configured MaxPoints.
	ErrAllocation = errors.New("contour buffer limit exceeded")

	// ErrInconsistentTopology marks a cell where a level crossed an odd number
	// of edges. It is logged and counted, never returned.
	ErrInconsistentTopology = errors.New("inconsistent contour topology")

	// ErrRowWidth is returned when a scanline does not match the raster width.
	ErrRowWidth = errors.New("scanline width mismatch")

	// ErrFinished is returned when rows are fed after the final scanline.
	ErrFinished = errors.New("contour generator already finished")

	// ErrInvalidLevels is returned for an unusable level configuration.
	ErrInvalidLevels = errors.New("invalid contour levels")
)

// SinkError wraps a failure reported by the output sink. The scan is aborted
// and the generator is left unusable.
type SinkError struct {
	Level float64
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("contour sink failed at level %g: %v", e.Level, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
