package watchdog

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/rbright/quill/internal/hud"
)

// Ingress is the capture side the watchdog supervises.
type Ingress interface {
	// Wanted reports whether frames are expected right now.
	Wanted() bool
	Restart(ctx context.Context) error
}

// Reporter receives diagnostics. *hud.Hub satisfies it.
type Reporter interface {
	Emit(ev hud.Event) hud.Event
}

// Config holds watchdog timing.
type Config struct {
	Interval   time.Duration
	StallAfter time.Duration
	Policy     Policy
}

// Watchdog polls ingress health and issues bounded soft restarts.
type Watchdog struct {
	cfg       Config
	ingress   Ingress
	health    *Health
	reporter  Reporter
	logger    *slog.Logger
	now       func() time.Time
	onError   func(error)
	onRestart func()
	onDrops   func(uint64)

	policy    Policy
	seenDrops uint64
	lastMark  time.Time
}

// Options are optional collaborators.
type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	// OnDeviceError is called once when the retry budget is exhausted.
	OnDeviceError func(error)
	// OnRestart is called after every restart attempt.
	OnRestart func()
	// OnDrops receives the frames dropped since the previous pass.
	OnDrops func(uint64)
}

func New(cfg Config, ingress Ingress, health *Health, reporter Reporter, opts Options) *Watchdog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watchdog{
		cfg:       cfg,
		ingress:   ingress,
		health:    health,
		reporter:  reporter,
		logger:    opts.Logger,
		now:       opts.Now,
		onError:   opts.OnDeviceError,
		onRestart: opts.OnRestart,
		onDrops:   opts.OnDrops,
		policy:    cfg.Policy,
	}
}

// Run ticks every Interval until ctx is cancelled.
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Check(ctx)
		}
	}
}

// Check runs one watchdog pass.
func (w *Watchdog) Check(ctx context.Context) {
	w.checkBackpressure()

	if !w.ingress.Wanted() || w.health.Restarting() {
		return
	}

	now := w.now()
	last := w.health.LastFrame()
	if last.After(w.lastMark) {
		w.lastMark = last
		if w.policy.Attempts() > 0 || w.health.Degraded() {
			w.log(slog.LevelInfo, "audio ingress recovered", "attempts", w.policy.Attempts())
		}
		w.policy.Reset()
		w.health.SetDegraded(false)
		if now.Sub(last) < w.cfg.StallAfter {
			return
		}
	}
	if now.Sub(last) < w.cfg.StallAfter {
		return
	}
	if w.health.Degraded() {
		return
	}

	ok, exhausted := w.policy.Allow(now)
	if exhausted {
		w.health.SetDegraded(true)
		err := &DeviceStallError{Attempts: w.policy.Attempts(), LastFrame: last}
		w.log(slog.LevelError, "audio device stalled", "error", err.Error())
		w.emit(hud.Event{Kind: hud.KindDeviceError, Reason: err.Error(), Fields: map[string]string{
			"attempts": strconv.Itoa(err.Attempts),
		}})
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	if !ok {
		return
	}

	stalledFor := now.Sub(last).Round(time.Millisecond).String()
	w.log(slog.LevelWarn, "audio ingress stalled; restarting capture", "stalled_for", stalledFor, "attempt", w.policy.Attempts())
	w.emit(hud.Event{Kind: hud.KindWatchdogStall, Fields: map[string]string{"stalled_for": stalledFor}})

	err := w.ingress.Restart(ctx)
	fields := map[string]string{"attempt": strconv.Itoa(w.policy.Attempts())}
	if err != nil {
		fields["error"] = err.Error()
		w.log(slog.LevelWarn, "capture restart failed", "error", err.Error())
	}
	// A successful reopen marks a fresh frame clock; do not treat that as
	// recovery until real audio arrives.
	w.lastMark = w.health.LastFrame()
	w.emit(hud.Event{Kind: hud.KindWatchdogRestart, Fields: fields})
	if w.onRestart != nil {
		w.onRestart()
	}
}

// Degraded reports whether the retry budget is exhausted.
func (w *Watchdog) Degraded() bool { return w.health.Degraded() }

func (w *Watchdog) checkBackpressure() {
	drops := w.health.Drops()
	if drops <= w.seenDrops {
		return
	}
	delta := drops - w.seenDrops
	w.seenDrops = drops
	w.log(slog.LevelWarn, "capture backpressure", "dropped", delta, "dropped_total", drops)
	w.emit(hud.Event{Kind: hud.KindBackpressure, Fields: map[string]string{
		"dropped":       strconv.FormatUint(delta, 10),
		"dropped_total": strconv.FormatUint(drops, 10),
	}})
	if w.onDrops != nil {
		w.onDrops(delta)
	}
}

func (w *Watchdog) emit(ev hud.Event) {
	if w.reporter != nil {
		w.reporter.Emit(ev)
	}
}

func (w *Watchdog) log(level slog.Level, msg string, args ...any) {
	if w.logger != nil {
		w.logger.Log(context.Background(), level, msg, args...)
	}
}
