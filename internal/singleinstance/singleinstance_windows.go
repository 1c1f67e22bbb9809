//go:build windows

package singleinstance

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

type mutexLock struct {
	handle windows.Handle
	pid    int
}

// Acquire creates a named mutex scoped to the current session. The
// mutex vanishes with the process, so crashes never leave a stale lock.
func Acquire(path string) (Lock, error) {
	name, err := windows.UTF16PtrFromString(`Local\chatterd-single-instance`)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateMutex(nil, true, name)
	if err != nil {
		if err == windows.ERROR_ALREADY_EXISTS {
			if handle != 0 {
				windows.CloseHandle(handle)
			}
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("create mutex: %w", err)
	}

	return &mutexLock{handle: handle, pid: os.Getpid()}, nil
}

// RunningPID is not resolvable from a mutex; returns 0.
func RunningPID(path string) int {
	return 0
}

func (l *mutexLock) Release() error {
	windows.ReleaseMutex(l.handle)
	return windows.CloseHandle(l.handle)
}

func (l *mutexLock) PID() int {
	return l.pid
}
