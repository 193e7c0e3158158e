package rng

import (
	"errors"
	"fmt"
)

// RangeError is returned when a generator operation receives bounds it cannot
// sample from.
type RangeError struct {
	Op     string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("rng: %s: %s", e.Op, e.Reason)
}

// EmptyInputError is returned when an element is required from an empty
// collection.
type EmptyInputError struct {
	Op string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("rng: %s: empty input", e.Op)
}

// IsRangeError reports whether err wraps a *RangeError.
func IsRangeError(err error) bool {
	var re *RangeError
	return errors.As(err, &re)
}

// IsEmptyInput reports whether err wraps an *EmptyInputError.
func IsEmptyInput(err error) bool {
	var ee *EmptyInputError
	return errors.As(err, &ee)
}

func rangeErrorf(op, format string, args ...interface{}) error {
	return &RangeError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
