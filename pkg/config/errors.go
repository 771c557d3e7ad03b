package config

import "errors"

var (
	// ErrNilPointer indicates Load was called with a nil destination.
	ErrNilPointer = errors.New("config: nil pointer passed to Load")

	// ErrParseFailed indicates the environment could not be parsed into
	// the destination struct, usually a missing required variable.
	ErrParseFailed = errors.New("config: failed to parse environment")
)
