//go:build linux

package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"chatterd/internal/filter"
)

// Linux input event constants.
const (
	evSyn = 0x00
	evKey = 0x01

	keyValueRelease = 0
	keyValuePress   = 1
	keyValueRepeat  = 2

	// input_event is 24 bytes on 64-bit: timeval (16) + type + code + value.
	eventSize = 24
)

// ioctl request numbers (64-bit Linux).
const (
	eviocgrab    = 0x40044590 // EVIOCGRAB
	uiSetEvbit   = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit  = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate  = 0x00005501 // UI_DEV_CREATE
	uiDevDestroy = 0x00005502 // UI_DEV_DESTROY
)

// linuxSource reads keyboards from /dev/input, grabs them for exclusive
// access, and re-emits accepted events through a uinput virtual device.
// Suppression works because the grab prevents the real device's events
// from reaching anyone else; only what the source re-emits is seen by
// the system.
type linuxSource struct {
	baseSource

	opts    Options
	devices []*evdevDevice
	uinput  int
	emitMu  sync.Mutex
	wg      sync.WaitGroup
}

type evdevDevice struct {
	path    string
	fd      int
	grabbed bool
}

func newPlatformSource(opts Options) Source {
	return &linuxSource{opts: opts, uinput: -1}
}

// Available checks device discovery and readability.
func (l *linuxSource) Available() (bool, string) {
	devices := l.opts.Devices
	if len(devices) == 0 {
		found, err := findKeyboardDevices()
		if err != nil {
			return false, fmt.Sprintf("cannot enumerate input devices: %v", err)
		}
		devices = found
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}

	return false, "cannot read keyboard devices (need the 'input' group or root)"
}

// findKeyboardDevices finds /dev/input devices that are keyboards.
func findKeyboardDevices() ([]string, error) {
	var devices []string

	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var currentHandler string
	isKeyboard := false

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "H: Handlers=") {
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					currentHandler = "/dev/input/" + part
				}
			}
		}

		if strings.HasPrefix(line, "B: KEY=") && len(line) > 10 {
			isKeyboard = true
		}

		if line == "" {
			if isKeyboard && currentHandler != "" {
				devices = append(devices, currentHandler)
			}
			currentHandler = ""
			isKeyboard = false
		}
	}

	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		resolved, err := filepath.EvalSymlinks(m)
		if err != nil {
			continue
		}
		if !containsString(devices, resolved) {
			devices = append(devices, resolved)
		}
	}

	return devices, nil
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// Start opens the keyboards, grabs them and begins the read loops.
func (l *linuxSource) Start(ctx context.Context, h Handler) error {
	if l.isRunning() {
		return ErrAlreadyRunning
	}

	paths := l.opts.Devices
	if len(paths) == 0 {
		found, err := findKeyboardDevices()
		if err != nil || len(found) == 0 {
			return ErrNotAvailable
		}
		paths = found
	}

	for _, path := range paths {
		fd, err := unix.Open(path, unix.O_RDONLY, 0)
		if err != nil {
			continue
		}
		dev := &evdevDevice{path: path, fd: fd}
		if l.opts.Grab {
			if err := unix.IoctlSetInt(fd, eviocgrab, 1); err != nil {
				unix.Close(fd)
				l.closeDevices()
				return fmt.Errorf("grab %s: %w", path, err)
			}
			dev.grabbed = true
		}
		l.devices = append(l.devices, dev)
	}
	if len(l.devices) == 0 {
		return ErrNotAvailable
	}

	// Grabbed devices need the virtual keyboard to forward accepted
	// events; otherwise nothing would ever reach the system.
	if l.opts.Grab {
		fd, err := openUinput()
		if err != nil {
			l.closeDevices()
			return fmt.Errorf("open uinput: %w", err)
		}
		l.uinput = fd
	}

	l.setHandler(h)
	l.setRunning(true)

	for _, dev := range l.devices {
		l.wg.Add(1)
		go l.readLoop(ctx, dev)
	}

	return nil
}

// readLoop consumes events from one device until Stop closes its fd.
func (l *linuxSource) readLoop(ctx context.Context, dev *evdevDevice) {
	defer l.wg.Done()

	buf := make([]byte, eventSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Read(dev.fd, buf)
		if err != nil || n < eventSize {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			// fd closed by Stop, or device unplugged
			return
		}

		sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
		usec := int64(binary.LittleEndian.Uint64(buf[8:16]))
		evType := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))

		if evType != evKey {
			// SYN frames and the rest are re-emitted implicitly by the
			// SYN_REPORT written after each forwarded key event.
			continue
		}

		ev := KeyEvent{
			Code:        code,
			TimestampMs: sec*1000 + usec/1000,
		}
		switch value {
		case keyValuePress, keyValueRepeat:
			ev.Kind = filter.Press
		case keyValueRelease:
			ev.Kind = filter.Release
		default:
			continue
		}

		d := l.decide(ev)
		if d == filter.Pass && l.uinput >= 0 {
			l.emit(code, value)
		}
	}
}

// emit writes one key event plus a SYN_REPORT to the virtual device.
func (l *linuxSource) emit(code uint16, value int32) {
	l.emitMu.Lock()
	defer l.emitMu.Unlock()

	buf := make([]byte, eventSize*2)
	putEvent(buf[0:eventSize], evKey, code, value)
	putEvent(buf[eventSize:], evSyn, 0, 0)
	unix.Write(l.uinput, buf)
}

func putEvent(buf []byte, evType, code uint16, value int32) {
	// Time fields are left zero; the kernel stamps uinput writes.
	binary.LittleEndian.PutUint16(buf[16:18], evType)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
}

// openUinput creates a virtual keyboard able to emit any key code.
func openUinput() (int, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, err
	}

	if err := unix.IoctlSetInt(fd, uiSetEvbit, evSyn); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.IoctlSetInt(fd, uiSetEvbit, evKey); err != nil {
		unix.Close(fd)
		return -1, err
	}
	for code := 0; code < 256; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeybit, code); err != nil {
			unix.Close(fd)
			return -1, err
		}
	}

	// Legacy uinput_user_dev setup: name (80 bytes), input_id (4×u16),
	// ff_effects_max (u32), abs arrays (4×64×i32).
	setup := make([]byte, 80+8+4+4*64*4)
	copy(setup, []byte("chatterd virtual keyboard"))
	binary.LittleEndian.PutUint16(setup[80:82], 0x06) // BUS_VIRTUAL
	binary.LittleEndian.PutUint16(setup[82:84], 0x1)  // vendor
	binary.LittleEndian.PutUint16(setup[84:86], 0x1)  // product
	binary.LittleEndian.PutUint16(setup[86:88], 0x1)  // version
	if _, err := unix.Write(fd, setup); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		unix.Close(fd)
		return -1, err
	}

	return fd, nil
}

// Stop releases the devices, destroys the virtual keyboard and waits
// for the read loops to drain.
func (l *linuxSource) Stop() error {
	if !l.isRunning() {
		return nil
	}

	l.setRunning(false)
	l.closeDevices()
	l.wg.Wait()

	if l.uinput >= 0 {
		unix.IoctlSetInt(l.uinput, uiDevDestroy, 0)
		unix.Close(l.uinput)
		l.uinput = -1
	}

	l.setHandler(nil)
	return nil
}

func (l *linuxSource) closeDevices() {
	for _, dev := range l.devices {
		if dev.grabbed {
			unix.IoctlSetInt(dev.fd, eviocgrab, 0)
		}
		unix.Close(dev.fd)
	}
	l.devices = nil
}

// ListDevices returns the keyboard device paths capture would use.
func ListDevices() ([]string, error) {
	return findKeyboardDevices()
}
