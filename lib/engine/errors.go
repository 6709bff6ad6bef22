package engine

import (
	"errors"
	"fmt"
)

var ErrClosed = errors.New("engine is closed")

// TransportError is returned when a request could not be completed, it
// never wraps a response with an unexpected status.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err.Error())
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
