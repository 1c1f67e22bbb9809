//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// listen creates a Unix domain socket listener, removing any stale
// socket file left behind by a crashed daemon.
func listen(cfg ServerConfig) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	if err := CleanupSocket(cfg.SocketPath); err != nil {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	// Owner only.
	if err := os.Chmod(cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("set socket permissions: %w", err)
	}

	return listener, nil
}

func cleanupListener(cfg ServerConfig) {
	os.Remove(cfg.SocketPath)
}

// CleanupSocket removes a stale socket file. Paths that exist but are
// not sockets are left alone.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a daemon is already listening.
func IsSocketListening(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// dial connects a client to the daemon.
func dial(socketPath, listenAddr string) (net.Conn, error) {
	return net.Dial("unix", socketPath)
}
