// Package watchdog detects stalled audio ingress and drives bounded soft restarts.
package watchdog

import (
	"sync/atomic"
	"time"
)

// Health is the ingress health shared between capture and the watchdog.
// All methods are safe for concurrent use.
type Health struct {
	lastFrame  atomic.Int64
	restarting atomic.Bool
	degraded   atomic.Bool
	drops      atomic.Uint64
}

// MarkFrame records a frame handed off at t.
func (h *Health) MarkFrame(t time.Time) { h.lastFrame.Store(t.UnixNano()) }

// MarkDrop counts one frame dropped for backpressure and returns the total.
func (h *Health) MarkDrop() uint64 { return h.drops.Add(1) }

func (h *Health) SetRestarting(v bool) { h.restarting.Store(v) }

// LastFrame returns the zero time until the first frame arrives.
func (h *Health) LastFrame() time.Time {
	n := h.lastFrame.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (h *Health) Restarting() bool { return h.restarting.Load() }

// SetDegraded marks ingress as stalled past the restart budget. It stays set
// until a frame arrives again.
func (h *Health) SetDegraded(v bool) { h.degraded.Store(v) }

func (h *Health) Degraded() bool { return h.degraded.Load() }

func (h *Health) Drops() uint64 { return h.drops.Load() }
