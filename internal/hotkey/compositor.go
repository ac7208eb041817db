package hotkey

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSourceClosed is returned when feeding a closed CompositorSource.
var ErrSourceClosed = errors.New("hotkey source closed")

// CompositorSource is fed by compositor key binds through the IPC commands
// press and release. Duplicate edges are collapsed like kernel key repeat.
type CompositorSource struct {
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	held   bool
	closed bool
}

func NewCompositorSource() *CompositorSource {
	return &CompositorSource{
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}
}

func (s *CompositorSource) Events() <-chan Event { return s.events }

// Press reports a key-down edge. A press while already held is ignored.
func (s *CompositorSource) Press(ctx context.Context) error {
	return s.feed(ctx, true)
}

// Release reports a key-up edge. A release while not held is ignored.
func (s *CompositorSource) Release(ctx context.Context) error {
	return s.feed(ctx, false)
}

func (s *CompositorSource) feed(ctx context.Context, down bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	if s.held == down {
		s.mu.Unlock()
		return nil
	}
	s.held = down
	s.mu.Unlock()

	kind := Released
	if down {
		kind = Pressed
	}
	select {
	case s.events <- Event{Kind: kind, At: time.Now()}:
		return nil
	case <-s.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CompositorSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}
