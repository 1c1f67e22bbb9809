// Package singleinstance guarantees that only one chatterd daemon runs
// at a time. A second grab on the keyboard devices would either fail or
// double-filter events, so startup refuses when another instance holds
// the lock.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("another chatterd instance is already running")

// Lock is a held single-instance lock.
type Lock interface {
	// Release drops the lock and removes any lock file.
	Release() error

	// PID returns the process ID recorded in the lock, when known.
	PID() int
}
