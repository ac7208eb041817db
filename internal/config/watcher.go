package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"os"
	"time"
)

// DefaultWatchInterval is how often the config file is polled for changes.
const DefaultWatchInterval = 2 * time.Second

// Watcher polls a config file and reports validated changes.
//
// A change that fails to parse is logged and skipped; the previous
// configuration stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	onChange func(old, next Config)

	current  Config
	lastHash [sha256.Size]byte
	lastMod  time.Time
}

// NewWatcher returns a Watcher seeded with the config the daemon started
// from, so the file that produced it is not reported as a change.
func NewWatcher(loaded Loaded, interval time.Duration, logger *slog.Logger, onChange func(old, next Config)) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:     loaded.Path,
		interval: interval,
		logger:   logger,
		onChange: onChange,
		current:  loaded.Config,
		lastHash: loaded.Digest,
		lastMod:  loaded.ModTime,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll checks the file once and invokes onChange when its content changed
// and parsed successfully. It reports whether a change was applied.
func (w *Watcher) Poll() bool {
	snap, err := readSnapshot(w.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Warn("config watch read failed", "path", w.path, "error", err.Error())
		}
		return false
	}
	if snap.modTime.Equal(w.lastMod) {
		return false
	}
	w.lastMod = snap.modTime
	if snap.digest == w.lastHash {
		return false
	}
	w.lastHash = snap.digest

	next, warnings, err := Parse(string(snap.data), Default())
	if err != nil {
		w.logger.Error("config reload rejected", "path", w.path, "error", err.Error())
		return false
	}
	for _, warning := range warnings {
		w.logger.Warn("config reload warning", "message", warning.Message)
	}

	old := w.current
	w.current = next
	w.logger.Info("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, next)
	}
	return true
}
