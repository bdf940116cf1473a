package session

import "errors"

// ErrNotFound is returned by a Store when a key has no value.
var ErrNotFound = errors.New("not found")

// Store is the durable mirror of the session used only to survive a restart.
// It is never the source of truth while the process is alive.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(key string) (string, error)

	// Set stores value under key
	Set(key, value string) error

	// Delete removes all the given keys in one operation
	Delete(keys ...string) error
}
