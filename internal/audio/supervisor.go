package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/quill/internal/watchdog"
)

// ErrNotCapturing is returned by Restart when capture was never started.
var ErrNotCapturing = errors.New("capture is not running")

// SupervisorOptions wire a Supervisor to its collaborators.
type SupervisorOptions struct {
	Open   Opener
	Select func(ctx context.Context) (Selection, error)
	Filter Filter
	Health *watchdog.Health
	Logger *slog.Logger
	Now    func() time.Time
}

// Supervisor owns the live capture stream and republishes fixed-size frames
// on one stable, bounded channel that survives restarts. Handoff never
// blocks the capture callback: when the channel is full the frame is dropped
// and counted on Health.
type Supervisor struct {
	open    Opener
	selectD func(ctx context.Context) (Selection, error)
	filter  Filter
	health  *watchdog.Health
	logger  *slog.Logger
	now     func() time.Time
	frames  chan Frame

	seq          atomic.Uint64
	restarts     atomic.Uint64
	dropsInBurst atomic.Uint64

	opMu    sync.Mutex
	mu      sync.Mutex
	stream  Stream
	device  Device
	gen     uint64
	wanted  bool
	pending []byte
}

func NewSupervisor(opts SupervisorOptions) *Supervisor {
	if opts.Open == nil {
		opts.Open = OpenPulse
	}
	if opts.Health == nil {
		opts.Health = &watchdog.Health{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Supervisor{
		open:    opts.Open,
		selectD: opts.Select,
		filter:  opts.Filter,
		health:  opts.Health,
		logger:  opts.Logger,
		now:     opts.Now,
		frames:  make(chan Frame, FrameQueueSize),
	}
}

// Frames is the stable frame channel. It is never closed.
func (s *Supervisor) Frames() <-chan Frame { return s.frames }

func (s *Supervisor) Health() *watchdog.Health { return s.health }

// Start opens capture if it is not already running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.wanted = true
	running := s.stream != nil
	s.mu.Unlock()
	if running {
		return nil
	}
	return s.openStream(ctx)
}

// Stop closes capture. Frames already queued stay in the channel.
func (s *Supervisor) Stop() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.wanted = false
	s.mu.Unlock()
	return s.detach()
}

// Restart tears down the current stream and opens a fresh one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.Wanted() {
		return ErrNotCapturing
	}

	s.health.SetRestarting(true)
	defer s.health.SetRestarting(false)

	if err := s.detach(); err != nil && s.logger != nil {
		s.logger.Warn("capture close during restart failed", "error", err.Error())
	}
	s.restarts.Add(1)
	return s.openStream(ctx)
}

// Wanted reports whether capture is expected to be delivering frames.
func (s *Supervisor) Wanted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wanted
}

// Running reports whether a stream is currently open.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

func (s *Supervisor) Device() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Supervisor) Restarts() uint64 { return s.restarts.Load() }

// openStream runs with opMu held. The stream is opened and closed outside
// mu because backends may wait on their callback goroutine, which takes mu.
func (s *Supervisor) openStream(ctx context.Context) error {
	device := Device{ID: "default"}
	if s.selectD != nil {
		selection, err := s.selectD(ctx)
		if err != nil {
			return fmt.Errorf("select audio device: %w", err)
		}
		if selection.Warning != "" && s.logger != nil {
			s.logger.Warn("audio device fallback", "warning", selection.Warning)
		}
		device = selection.Device
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.pending = s.pending[:0]
	if s.filter != nil {
		s.filter.Reset()
	}
	s.mu.Unlock()

	stream, err := s.open(ctx, device, func(pcm []byte) error {
		return s.deliver(gen, pcm)
	})
	if err != nil {
		return fmt.Errorf("open capture on %q: %w", device.ID, err)
	}

	s.mu.Lock()
	s.stream = stream
	s.device = device
	s.mu.Unlock()

	// A fresh stream starts its stall clock now rather than at the last
	// frame of the previous stream.
	s.health.MarkFrame(s.now())
	if s.logger != nil {
		s.logger.Info("capture started", "device", device.ID, "generation", gen)
	}
	return nil
}

func (s *Supervisor) detach() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.gen++
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.Close()
}

// deliver chunks raw PCM into frames. Callbacks from a superseded stream
// are rejected so restarts cannot interleave stale audio.
func (s *Supervisor) deliver(gen uint64, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return io.EOF
	}

	s.pending = append(s.pending, pcm...)
	for len(s.pending) >= FrameBytes {
		chunk := make([]byte, FrameBytes)
		copy(chunk, s.pending[:FrameBytes])
		s.pending = s.pending[FrameBytes:]
		if s.filter != nil {
			s.filter.Apply(chunk)
		}
		s.handoff(chunk)
	}
	return nil
}

func (s *Supervisor) handoff(chunk []byte) {
	now := s.now()
	frame := Frame{Seq: s.seq.Add(1), CapturedAt: now, PCM: chunk}
	s.health.MarkFrame(now)

	select {
	case s.frames <- frame:
		if burst := s.dropsInBurst.Swap(0); burst > 0 && s.logger != nil {
			s.logger.Warn("capture backpressure cleared", "dropped", burst)
		}
	default:
		total := s.health.MarkDrop()
		if s.dropsInBurst.Add(1) == 1 && s.logger != nil {
			s.logger.Warn("capture backpressure; dropping frames", "seq", frame.Seq, "dropped_total", total)
		}
	}
}
