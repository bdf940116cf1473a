package auth

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrBadRequest         = errors.New("malformed login request")
	ErrNoRefreshAvailable = errors.New("no refresh credential available")
	ErrRefreshDenied      = errors.New("refresh denied")
	ErrNetwork            = errors.New("network error")
)

// IsTerminal reports whether a refresh error means the session can no longer be renewed.
// A caller that stopped waiting through its own context gets the context error, which is not terminal.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshAvailable) ||
		errors.Is(err, ErrRefreshDenied) ||
		errors.Is(err, ErrNetwork)
}

// networkError keeps the transport failure reachable through Unwrap while matching ErrNetwork.
type networkError struct {
	op  string
	err error
}

func (e *networkError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.op, ErrNetwork, e.err)
}

func (e *networkError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *networkError) Unwrap() error {
	return e.err
}
