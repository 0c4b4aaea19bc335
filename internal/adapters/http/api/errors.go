package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrTimeout    = errors.New("request timed out")
	ErrInternal   = errors.New("internal error")
)

// KindError tags an error with the operation that produced it and its kind.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapKind wraps err with op and kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind returns an error of the given kind without a cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}
