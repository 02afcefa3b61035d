package vector

import "errors"

var (
	// ErrDimensionMismatch is returned when a vector does not have the
	// dimension the corpus was created with.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownMetric is returned for metric names other than cosine and dot.
	ErrUnknownMetric = errors.New("unknown similarity metric")
)
