package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/observe"
)

// ErrNotReady is returned by Transcribe when no recognizer is loaded.
var ErrNotReady = errors.New("asr engine not ready")

// warmupSamples is 500ms of silence at 16 kHz.
const warmupSamples = audio.SampleRate / 2

// WarmupError reports a failed warmup cycle. Fallback is set when the
// last-known-good model was tried as well.
type WarmupError struct {
	Model    Model
	Fallback Model
	Err      error
}

func (e *WarmupError) Error() string {
	if e.Fallback.IsZero() {
		return fmt.Sprintf("warm up %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("warm up %s (fallback %s): %v", e.Model, e.Fallback, e.Err)
}

func (e *WarmupError) Unwrap() error { return e.Err }

// Reporter receives readiness diagnostics.
type Reporter interface {
	Emit(hud.Event) hud.Event
}

type Options struct {
	// Backends by Model.Backend name.
	Backends map[string]Backend
	Catalog  Catalog
	Store    ModelStore
	// WarmupInference runs one pass over silence after loading.
	WarmupInference bool

	Reporter Reporter
	Metrics  *observe.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Transcription is one recognizer result with timing.
type Transcription struct {
	Text    string
	Model   Model
	Audio   time.Duration
	Elapsed time.Duration
}

// Engine owns the loaded recognizer. Warmups are serialized; Transcribe
// shares the recognizer under a read lock so a swap waits for in-flight
// work before the old recognizer is closed.
type Engine struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	warmMu sync.Mutex

	swap   sync.RWMutex
	rec    Recognizer
	loaded Model

	mu        sync.Mutex
	readiness Readiness
	subs      map[*readinessSub]struct{}
}

type readinessSub struct {
	ch chan Readiness
}

func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		opts:      opts,
		logger:    opts.Logger,
		now:       now,
		readiness: Readiness{State: StateWarming, Since: now()},
		subs:      make(map[*readinessSub]struct{}),
	}
}

func (e *Engine) Readiness() Readiness {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readiness
}

// Loaded returns the model behind the current recognizer, if any.
func (e *Engine) Loaded() Model {
	e.swap.RLock()
	defer e.swap.RUnlock()
	return e.loaded
}

// Subscribe returns a channel that receives the current readiness
// immediately and every later transition. A slow reader loses older
// transitions, never the latest. The returned func unsubscribes.
func (e *Engine) Subscribe(buffer int) (<-chan Readiness, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &readinessSub{ch: make(chan Readiness, buffer)}

	e.mu.Lock()
	sub.ch <- e.readiness
	e.subs[sub] = struct{}{}
	e.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, sub)
			close(sub.ch)
			e.mu.Unlock()
		})
	}
}

// Switch warms model and makes it current. On failure it falls back once to
// the persisted last-known-good model; if that is missing, identical, or
// also fails, readiness becomes Error and Switch returns a *WarmupError.
// It returns the model that ended up loaded.
func (e *Engine) Switch(ctx context.Context, model Model) (Model, error) {
	return e.switchTo(ctx, model, model)
}

// Resume warms the model for startup. When the previous run fell back away
// from configured and settings still ask for it, the fallback selection is
// warmed instead of retrying the failing model; a later Switch retries it.
func (e *Engine) Resume(ctx context.Context, configured Model) (Model, error) {
	state := e.loadState()
	target := configured
	if state.Requested == configured && !state.Selected.IsZero() && state.Selected != configured {
		target = state.Selected
		e.log(slog.LevelInfo, "resuming fallback model selection", "requested", configured.String(), "model", target.String())
	}
	return e.switchTo(ctx, configured, target)
}

func (e *Engine) switchTo(ctx context.Context, requested, model Model) (Model, error) {
	e.warmMu.Lock()
	defer e.warmMu.Unlock()

	if model.IsZero() {
		werr := &WarmupError{Model: model, Err: errors.New("no model selected")}
		e.setReadiness(StateError, model, werr.Error())
		return Model{}, werr
	}

	state := e.loadState()
	state.Requested = requested
	state.Selected = model
	if e.Readiness().Ready() && e.Loaded() == model {
		e.saveState(state)
		return model, nil
	}
	e.saveState(state)

	e.setReadiness(StateWarming, model, "")
	err := e.warm(ctx, model)
	if err == nil {
		state.LastKnownGood = model
		e.saveState(state)
		e.setReadiness(StateReady, model, "")
		return model, nil
	}
	e.log(slog.LevelWarn, "model warmup failed", "model", model.String(), "error", err.Error())

	lkg := state.LastKnownGood
	if lkg.IsZero() || lkg == model {
		werr := &WarmupError{Model: model, Err: err}
		e.setReadiness(StateError, model, werr.Error())
		return Model{}, werr
	}

	state.Selected = lkg
	e.saveState(state)
	e.setReadiness(StateWarming, lkg, "fallback to last known good")

	var fallbackErr error
	if e.Loaded() != lkg {
		fallbackErr = e.warm(ctx, lkg)
	}
	if fallbackErr != nil {
		werr := &WarmupError{Model: model, Fallback: lkg, Err: errors.Join(err, fallbackErr)}
		e.setReadiness(StateError, lkg, werr.Error())
		return Model{}, werr
	}

	e.log(slog.LevelInfo, "using last known good model", "requested", model.String(), "model", lkg.String())
	e.setReadiness(StateReady, lkg, "")
	return lkg, nil
}

// Transcribe runs the current recognizer.
func (e *Engine) Transcribe(ctx context.Context, samples []float32) (Transcription, error) {
	e.swap.RLock()
	defer e.swap.RUnlock()

	if e.rec == nil {
		return Transcription{}, ErrNotReady
	}

	result := Transcription{
		Model: e.loaded,
		Audio: time.Duration(len(samples)) * time.Second / audio.SampleRate,
	}
	start := e.now()
	text, err := e.rec.Transcribe(ctx, samples)
	result.Elapsed = e.now().Sub(start)
	e.opts.Metrics.RecordTranscription(ctx, e.loaded.String(), result.Audio, result.Elapsed, err)
	if err != nil {
		return result, fmt.Errorf("transcribe with %s: %w", e.loaded, err)
	}
	result.Text = text
	return result, nil
}

// Close releases the recognizer. The engine is not usable afterwards.
func (e *Engine) Close() error {
	e.warmMu.Lock()
	defer e.warmMu.Unlock()

	e.swap.Lock()
	rec := e.rec
	e.rec = nil
	e.loaded = Model{}
	e.swap.Unlock()

	if rec == nil {
		return nil
	}
	return rec.Close()
}

func (e *Engine) warm(ctx context.Context, model Model) error {
	start := e.now()
	err := e.load(ctx, model)
	e.opts.Metrics.RecordWarmup(ctx, model.String(), e.now().Sub(start), err)
	return err
}

func (e *Engine) load(ctx context.Context, model Model) error {
	backend, ok := e.opts.Backends[model.Backend]
	if !ok || backend == nil {
		return fmt.Errorf("unknown asr backend %q", model.Backend)
	}
	if e.opts.Catalog == nil {
		return errors.New("no model catalog configured")
	}

	path, err := e.opts.Catalog.EnsurePresent(ctx, model)
	if err != nil {
		return err
	}
	rec, err := backend.Load(ctx, model, path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if e.opts.WarmupInference {
		if _, err := rec.Transcribe(ctx, make([]float32, warmupSamples)); err != nil {
			_ = rec.Close()
			return fmt.Errorf("warmup inference: %w", err)
		}
	}

	e.swap.Lock()
	old := e.rec
	e.rec = rec
	e.loaded = model
	e.swap.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			e.log(slog.LevelWarn, "close previous recognizer failed", "error", err.Error())
		}
	}
	return nil
}

func (e *Engine) setReadiness(state State, model Model, reason string) {
	r := Readiness{State: state, Model: model, Reason: reason, Since: e.now()}

	e.mu.Lock()
	e.readiness = r
	for sub := range e.subs {
		select {
		case sub.ch <- r:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- r
		}
	}
	e.mu.Unlock()

	level := slog.LevelInfo
	if state == StateError {
		level = slog.LevelError
	}
	e.log(level, "asr readiness", "state", string(state), "model", model.String(), "reason", reason)

	e.opts.Metrics.SetReady(context.Background(), model.String(), state == StateReady)
	if e.opts.Reporter != nil {
		fields := map[string]string{"model": model.String()}
		if reason != "" {
			fields["reason"] = reason
		}
		e.opts.Reporter.Emit(hud.Event{Kind: hud.KindReadiness, Reason: string(state), Fields: fields})
	}
}

func (e *Engine) loadState() ModelState {
	if e.opts.Store == nil {
		return ModelState{}
	}
	state, err := e.opts.Store.Load()
	if err != nil {
		e.log(slog.LevelWarn, "load model state failed", "error", err.Error())
		return ModelState{}
	}
	return state
}

func (e *Engine) saveState(state ModelState) {
	if e.opts.Store == nil {
		return
	}
	state.UpdatedAt = e.now()
	if err := e.opts.Store.Save(state); err != nil {
		e.log(slog.LevelWarn, "save model state failed", "error", err.Error())
	}
}

func (e *Engine) log(level slog.Level, msg string, args ...any) {
	if e.logger != nil {
		e.logger.Log(context.Background(), level, msg, args...)
	}
}
