package propstat

import "errors"

var (
	// ErrNoValidData is returned when the input holds no usable records.
	ErrNoValidData = errors.New("no valid data found")

	// ErrNoInput is returned when a run is started without an input file.
	ErrNoInput = errors.New("no input file given")
)
