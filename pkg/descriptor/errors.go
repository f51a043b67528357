package descriptor

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the descriptor file does not exist.
var ErrNotFound = errors.New("descriptor file not found")

// ErrUnsupportedFormat is returned for file extensions other than
// .yaml/.yml/.json.
var ErrUnsupportedFormat = errors.New("unsupported descriptor format")

// ValidationError represents a single descriptor validation failure.
type ValidationError struct {
	Path   string // Field path, e.g. "commands.delegate.from"
	Reason string // Human-readable reason for failure
	Value  any    // The offending value, if useful
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("field %q: %s", e.Path, e.Reason)
}

// AggregateError collects every validation failure found in one load pass.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// ValidationErrors returns all collected errors if err is an AggregateError,
// nil otherwise.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
