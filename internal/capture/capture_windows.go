//go:build windows

package capture

import (
	"context"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"chatterd/internal/filter"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx = user32.NewProc("SetWindowsHookExW")
	procUnhookHookEx     = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx   = user32.NewProc("CallNextHookEx")
	procGetMessage       = user32.NewProc("GetMessageW")
	procPostThreadMsg    = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL = 13

	wmKeydown    = 0x0100
	wmKeyup      = 0x0101
	wmSyskeydown = 0x0104
	wmSyskeyup   = 0x0105
	wmQuit       = 0x0012

	llkhfInjected = 0x10
)

// kbdllHookStruct matches KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	VkCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// windowsSource installs a WH_KEYBOARD_LL hook. The hook procedure runs
// the decision inline; returning nonzero eats the event before any
// application sees it. The hook needs a message pump on the installing
// thread, so Start spins a locked OS thread running GetMessage.
type windowsSource struct {
	baseSource

	hook     uintptr
	threadID uint32
	done     chan struct{}
	startErr chan error
	stopMu   sync.Mutex
}

func newPlatformSource(opts Options) Source {
	return &windowsSource{}
}

// Available reports hook availability.
func (w *windowsSource) Available() (bool, string) {
	if err := procSetWindowsHookEx.Find(); err != nil {
		return false, "user32 SetWindowsHookExW not available"
	}
	return true, "low-level keyboard hook (WH_KEYBOARD_LL)"
}

// Start installs the hook and runs the message loop.
func (w *windowsSource) Start(ctx context.Context, h Handler) error {
	if w.isRunning() {
		return ErrAlreadyRunning
	}

	w.setHandler(h)
	w.done = make(chan struct{})
	w.startErr = make(chan error, 1)

	go w.hookLoop()

	if err := <-w.startErr; err != nil {
		w.setHandler(nil)
		return err
	}
	w.setRunning(true)

	// Tear down when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.done:
		}
	}()

	return nil
}

// hookLoop installs the hook and pumps messages until WM_QUIT.
func (w *windowsSource) hookLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	w.threadID = windows.GetCurrentThreadId()

	callback := windows.NewCallback(func(code int32, wparam, lparam uintptr) uintptr {
		if code >= 0 {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lparam))

			// Synthetic events (SendInput etc.) are someone else's
			// business; chatter only comes from hardware.
			if kb.Flags&llkhfInjected == 0 {
				ev := KeyEvent{
					Code:        uint16(kb.VkCode),
					TimestampMs: int64(kb.Time),
				}
				switch wparam {
				case wmKeydown, wmSyskeydown:
					ev.Kind = filter.Press
				case wmKeyup, wmSyskeyup:
					ev.Kind = filter.Release
				}

				if w.decide(ev) == filter.Block {
					return 1
				}
			}
		}
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wparam, lparam)
		return ret
	})

	hook, _, err := procSetWindowsHookEx.Call(whKeyboardLL, callback, 0, 0)
	if hook == 0 {
		w.startErr <- err
		return
	}
	w.hook = hook
	w.startErr <- nil

	var m msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
	}

	procUnhookHookEx.Call(w.hook)
	w.hook = 0
}

// Stop posts WM_QUIT to the hook thread and waits for it to unwind.
func (w *windowsSource) Stop() error {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()

	if !w.isRunning() {
		return nil
	}
	w.setRunning(false)

	procPostThreadMsg.Call(uintptr(w.threadID), wmQuit, 0, 0)
	<-w.done

	w.setHandler(nil)
	return nil
}

// ListDevices is not meaningful on Windows; the hook sees every keyboard.
func ListDevices() ([]string, error) {
	return nil, nil
}
