package query

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned for malformed or contradictory parameters.
// Transports report it as a client error.
var ErrInvalidRequest = errors.New("invalid request")

// Invalidf returns an error wrapping ErrInvalidRequest.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// QueryError reports a failed data source operation: a filter referencing a
// missing or non-numeric column, or an underlying scan failure.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Wrap attaches op to a data source error. Invalid-request errors, context
// errors and errors that are already QueryErrors pass through unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	switch {
	case errors.As(err, &qe),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &QueryError{Op: op, Err: err}
}
