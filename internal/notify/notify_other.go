//go:build !linux

package notify

import "errors"

// New is unavailable off Linux; callers fall back to Nop.
func New() (Notifier, error) {
	return nil, errors.New("desktop notifications not supported on this platform")
}
