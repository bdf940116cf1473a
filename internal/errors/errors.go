package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors surfaced by the POS API clients once the authorization pipeline has given up
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrServer       = errors.New("server error")
	ErrUnexpected   = errors.New("unexpected response")
)

// StatusError describes a non-2xx response from the backend.
type StatusError struct {
	Code    int    // HTTP status code
	Message string // Backend supplied message, if any
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Unwrap().Error())
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

// Unwrap maps the status code onto one of the sentinel errors so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Code == http.StatusForbidden:
		return ErrForbidden
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusBadRequest:
		return ErrBadRequest
	case e.Code >= http.StatusInternalServerError:
		return ErrServer
	}
	return ErrUnexpected
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
