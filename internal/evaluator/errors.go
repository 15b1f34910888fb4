package evaluator

import (
	"errors"
	"fmt"
)

// UncaughtError is a fixture exception that escaped to the top level.
type UncaughtError struct {
	Fixture string
	Line    int
	Message string
}

func (e *UncaughtError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: uncaught %s", e.Fixture, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: uncaught %s", e.Fixture, e.Message)
}

// UnsupportedError means the evaluator cannot run this fixture at all.
type UnsupportedError struct {
	Fixture string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: cannot evaluate: %s", e.Fixture, e.Reason)
}

// IsUnsupported reports whether err is or wraps an UnsupportedError.
func IsUnsupported(err error) bool {
	var ue *UnsupportedError
	return errors.As(err, &ue)
}
