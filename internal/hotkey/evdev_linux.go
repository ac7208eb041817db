//go:build linux

package hotkey

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	evKey        = 0x01
	keyMax       = 0x2ff
	inputEventSz = 24
)

var inputGlob = "/dev/input/event*"

type rawKey struct {
	code  uint16
	value int32
}

// EvdevSource reads raw key events from every keyboard that can produce the
// bound key and merges them into one tracker.
type EvdevSource struct {
	logger  *slog.Logger
	devices []*os.File
	events  chan Event
	raw     chan rawKey
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// OpenEvdev opens matching input devices. devices optionally restricts the
// set by substring match on device name or path.
func OpenEvdev(binding Binding, devices []string, logger *slog.Logger) (*EvdevSource, error) {
	paths, err := filepath.Glob(inputGlob)
	if err != nil {
		return nil, &CapabilityError{Source: "evdev", Reason: "list input devices", Err: err}
	}
	if len(paths) == 0 {
		return nil, &CapabilityError{Source: "evdev", Reason: "no input devices under /dev/input"}
	}

	var (
		opened     []*os.File
		permDenied bool
	)
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				permDenied = true
			}
			continue
		}
		name := deviceName(f)
		if !matchesDevice(devices, path, name) || !supportsKey(f, binding.Key) {
			_ = f.Close()
			continue
		}
		if logger != nil {
			logger.Debug("hotkey device opened", "path", path, "name", name)
		}
		opened = append(opened, f)
	}

	if len(opened) == 0 {
		if permDenied {
			return nil, &CapabilityError{
				Source: "evdev",
				Reason: "permission denied reading /dev/input (add the user to the input group)",
				Err:    fs.ErrPermission,
			}
		}
		return nil, &CapabilityError{Source: "evdev", Reason: fmt.Sprintf("no readable keyboard device provides %s", binding.Name)}
	}

	s := &EvdevSource{
		logger:  logger,
		devices: opened,
		events:  make(chan Event, 16),
		raw:     make(chan rawKey, 64),
		done:    make(chan struct{}),
	}
	for _, f := range opened {
		s.wg.Add(1)
		go s.readDevice(f)
	}
	go s.track(newTracker(binding))
	return s, nil
}

func (s *EvdevSource) Events() <-chan Event { return s.events }

func (s *EvdevSource) Close() error {
	var errs []error
	s.once.Do(func() {
		close(s.done)
		for _, f := range s.devices {
			if err := f.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.wg.Wait()
	})
	return errors.Join(errs...)
}

func (s *EvdevSource) readDevice(f *os.File) {
	defer s.wg.Done()
	buf := make([]byte, inputEventSz*32)
	for {
		n, err := f.Read(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				if s.logger != nil && !errors.Is(err, io.EOF) {
					s.logger.Warn("hotkey device read failed", "path", f.Name(), "error", err.Error())
				}
			}
			return
		}
		for off := 0; off+inputEventSz <= n; off += inputEventSz {
			typ, code, value := decodeInputEvent(buf[off : off+inputEventSz])
			if typ != evKey {
				continue
			}
			select {
			case s.raw <- rawKey{code: code, value: value}:
			case <-s.done:
				return
			}
		}
	}
}

func (s *EvdevSource) track(t *tracker) {
	for {
		select {
		case <-s.done:
			return
		case key := <-s.raw:
			kind, ok := t.feed(key.code, key.value)
			if !ok {
				continue
			}
			select {
			case s.events <- Event{Kind: kind, At: time.Now()}:
			case <-s.done:
				return
			}
		}
	}
}

// decodeInputEvent reads struct input_event on 64-bit kernels:
// struct timeval (16 bytes), __u16 type, __u16 code, __s32 value.
func decodeInputEvent(b []byte) (uint16, uint16, int32) {
	typ := binary.NativeEndian.Uint16(b[16:18])
	code := binary.NativeEndian.Uint16(b[18:20])
	value := int32(binary.NativeEndian.Uint32(b[20:24]))
	return typ, code, value
}

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | typ<<8 | nr
}

func ioctlRead(f *os.File, nr uintptr, buf []byte) error {
	req := ioc(2, 'E', nr, uintptr(len(buf)))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errno
	}
	return nil
}

func supportsKey(f *os.File, code uint16) bool {
	bits := make([]byte, keyMax/8+1)
	if err := ioctlRead(f, 0x20+evKey, bits); err != nil {
		return false
	}
	return bits[code/8]&(1<<(code%8)) != 0
}

func deviceName(f *os.File) string {
	buf := make([]byte, 256)
	if err := ioctlRead(f, 0x06, buf); err != nil {
		return ""
	}
	return string(bytes.TrimRight(buf, "\x00"))
}

func matchesDevice(filters []string, path, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, filter := range filters {
		filter = strings.ToLower(strings.TrimSpace(filter))
		if filter == "" {
			continue
		}
		if strings.Contains(strings.ToLower(name), filter) || strings.Contains(path, filter) {
			return true
		}
	}
	return false
}
