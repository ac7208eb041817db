//go:build !linux

package hotkey

import "log/slog"

// EvdevSource is only available on Linux.
type EvdevSource struct{}

// OpenEvdev is not supported on non-Linux builds.
func OpenEvdev(binding Binding, devices []string, logger *slog.Logger) (*EvdevSource, error) {
	return nil, &CapabilityError{Source: "evdev", Reason: "raw input devices are only supported on linux"}
}

func (s *EvdevSource) Events() <-chan Event { return nil }

func (s *EvdevSource) Close() error { return nil }
