//go:build !linux && !windows

package capture

import "context"

// stubSource is used on platforms without a capture implementation.
type stubSource struct {
	baseSource
}

func newPlatformSource(opts Options) Source {
	return &stubSource{}
}

func (s *stubSource) Available() (bool, string) {
	return false, "keyboard capture not implemented on this platform"
}

func (s *stubSource) Start(ctx context.Context, h Handler) error {
	return ErrNotAvailable
}

func (s *stubSource) Stop() error {
	return nil
}

// ListDevices returns nothing on unsupported platforms.
func ListDevices() ([]string, error) {
	return nil, nil
}
