// Package hotkey turns a global key binding into Pressed/Released edges,
// independent of window focus. It holds no session state.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
)

// Source delivers hotkey edges until closed.
type Source interface {
	Events() <-chan Event
	Close() error
}

// Options select and configure a Source.
type Options struct {
	Source  string
	Binding string
	Devices []string
}

// CapabilityError reports that the environment cannot provide global hotkeys.
// It is raised once, at registration time.
type CapabilityError struct {
	Source string
	Reason string
	Err    error
}

func (e *CapabilityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hotkey source %s unavailable: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("hotkey source %s unavailable: %s", e.Source, e.Reason)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsCapabilityError reports whether err carries a CapabilityError.
func IsCapabilityError(err error) bool {
	var capErr *CapabilityError
	return errors.As(err, &capErr)
}

// Open registers the configured source. The compositor source is returned
// as *CompositorSource so IPC handlers can feed it.
func Open(opts Options, logger *slog.Logger) (Source, error) {
	switch opts.Source {
	case "compositor":
		return NewCompositorSource(), nil
	case "", "evdev":
		binding, err := ParseBinding(opts.Binding)
		if err != nil {
			return nil, &CapabilityError{Source: "evdev", Reason: "invalid binding", Err: err}
		}
		src, err := OpenEvdev(binding, opts.Devices, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, &CapabilityError{Source: opts.Source, Reason: "unsupported hotkey source"}
	}
}
