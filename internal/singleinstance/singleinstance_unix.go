//go:build !windows

package singleinstance

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

type fileLock struct {
	file *os.File
	path string
	pid  int
}

// Acquire takes an exclusive flock on the lock file and writes the PID
// into it. A held lock from a crashed daemon is released by the kernel,
// so no stale-lock handling is needed.
func Acquire(path string) (Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("lock file: %w", err)
	}

	pid := os.Getpid()
	if err := file.Truncate(0); err == nil {
		file.WriteAt([]byte(strconv.Itoa(pid)), 0)
		file.Sync()
	}

	return &fileLock{file: file, path: path, pid: pid}, nil
}

// RunningPID reports the PID recorded in the lock file if another
// instance holds it, or 0.
func RunningPID(path string) int {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	// A successful shared lock means nobody holds the exclusive lock.
	if err := unix.Flock(int(file.Fd()), unix.LOCK_SH|unix.LOCK_NB); err == nil {
		unix.Flock(int(file.Fd()), unix.LOCK_UN)
		return 0
	}

	data := make([]byte, 32)
	n, err := file.Read(data)
	if err != nil || n == 0 {
		return 0
	}
	pid, err := strconv.Atoi(string(data[:n]))
	if err != nil {
		return 0
	}
	return pid
}

func (l *fileLock) Release() error {
	unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	return os.Remove(l.path)
}

func (l *fileLock) PID() int {
	return l.pid
}
