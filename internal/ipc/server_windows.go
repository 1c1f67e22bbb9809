//go:build windows

package ipc

import (
	"net"
	"time"
)

// listen creates a loopback TCP listener. Windows has no Unix domain
// socket support we can rely on across versions, so the daemon binds
// localhost only.
func listen(cfg ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", cfg.ListenAddr)
}

func cleanupListener(cfg ServerConfig) {}

// IsSocketListening checks if a daemon is already listening.
func IsSocketListening(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// dial connects a client to the daemon.
func dial(socketPath, listenAddr string) (net.Conn, error) {
	return net.DialTimeout("tcp", listenAddr, 5*time.Second)
}
