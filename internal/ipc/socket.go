package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const socketName = "quill.sock"

var ErrAlreadyRunning = errors.New("quill daemon already running")

// RuntimeSocketPath is the control socket under XDG_RUNTIME_DIR.
func RuntimeSocketPath() (string, error) {
	dir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if dir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(dir, socketName), nil
}

// AcquireOptions tunes how a stale socket is detected and replaced.
type AcquireOptions struct {
	// PingTimeout bounds the status request sent to an existing socket.
	PingTimeout time.Duration
	// Retries is the number of extra listen attempts after a stale socket
	// is removed.
	Retries int
	// Rescue runs after a stale socket is removed.
	Rescue func(context.Context) error
}

// Acquire makes this process the single daemon by listening on path. A
// socket that answers a ping yields ErrAlreadyRunning. A socket nobody
// answers on is unlinked and listening is retried. A ping that neither
// succeeds nor proves the socket dead leaves the file alone.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			_ = os.Chmod(path, 0o600)
			return listener, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		alive, err := Ping(ctx, path, opts.PingTimeout)
		if err != nil {
			return nil, fmt.Errorf("ping existing socket %s: %w", path, err)
		}
		if alive {
			return nil, ErrAlreadyRunning
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, err)
		}
		if opts.Rescue != nil {
			_ = opts.Rescue(ctx)
		}

		if attempt >= opts.Retries {
			return nil, fmt.Errorf("failed to acquire socket %s after %d retries", path, opts.Retries)
		}
		backoff := time.Duration(attempt+1) * 25 * time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}
