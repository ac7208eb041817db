package session

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/fsm"
	"github.com/rbright/quill/internal/hotkey"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/observe"
	"github.com/rbright/quill/internal/output"
	"github.com/rbright/quill/internal/perf"
	"github.com/rbright/quill/internal/transcript"
	"github.com/rbright/quill/internal/vad"
)

// ErrStopped is returned by coordinator calls after Run has returned.
var ErrStopped = errors.New("session coordinator stopped")

// Engine is the ASR side of a session. *asr.Engine satisfies it.
type Engine interface {
	Readiness() asr.Readiness
	Subscribe(buffer int) (<-chan asr.Readiness, func())
	Transcribe(ctx context.Context, samples []float32) (asr.Transcription, error)
}

// Injector delivers transcripts. *output.Injector satisfies it.
type Injector interface {
	Inject(ctx context.Context, text string) (output.Result, error)
}

// Capture is the frame producer. *audio.Supervisor satisfies it.
type Capture interface {
	Frames() <-chan audio.Frame
	Start(ctx context.Context) error
	Stop() error
}

// Ingress reports whether captured audio is flowing. *watchdog.Health
// satisfies it.
type Ingress interface {
	Restarting() bool
	Degraded() bool
}

// Reporter receives HUD state and diagnostics. *hud.Hub satisfies it.
type Reporter interface {
	SetState(state hud.State, detail string) bool
	Emit(ev hud.Event) hud.Event
}

// Settings are the parts of the configuration the coordinator applies
// live. Changes take effect at the next session.
type Settings struct {
	Mode       Mode
	Output     output.Mode
	Transcript transcript.Options
	// NewGate builds a fresh gate per session.
	NewGate func() *vad.Gate
}

type Options struct {
	Settings Settings
	// KeepOpen leaves capture running for the daemon lifetime; otherwise
	// capture starts with each session and stops at finalize.
	KeepOpen bool

	Engine   Engine
	Injector Injector
	Capture  Capture
	// Ingress gates presses while KeepOpen capture is restarting or stalled.
	Ingress Ingress
	HUD     Reporter
	Perf    *perf.Monitor
	Metrics *observe.Metrics
	// DumpDir receives a WAV of every finalized segment when set.
	DumpDir  string
	OnResult func(Result)
	Logger   *slog.Logger
	Now      func() time.Time
}

type cmdKind int

const (
	cmdPress cmdKind = iota + 1
	cmdRelease
	cmdToggle
	cmdStop
	cmdSecure
	cmdStatus
	cmdApply
)

type command struct {
	kind     cmdKind
	secure   bool
	settings Settings
	reply    chan Status
}

// Coordinator is a single-goroutine event loop; every state change happens
// inside Run. Transcription and injection run on a worker goroutine that
// posts its Result back to the loop.
type Coordinator struct {
	opts Options
	log  *slog.Logger
	now  func() time.Time

	cmds    chan command
	results chan Result
	done    chan struct{}

	// secure is written only by the loop; the worker reads it right before
	// injecting.
	secure atomic.Bool

	// Loop-owned state.
	settings  Settings
	state     fsm.State
	readiness asr.Readiness
	armed     bool
	perfWarn  bool
	session   *Session
	hudState  hud.State
	last      Result
	worker    sync.WaitGroup
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Settings.Mode == "" {
		opts.Settings.Mode = ModeHold
	}
	if opts.Settings.Output == "" {
		opts.Settings.Output = output.ModePaste
	}
	if opts.HUD == nil {
		opts.HUD = hud.NewHub(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		opts:     opts,
		log:      logger,
		now:      opts.Now,
		cmds:     make(chan command),
		results:  make(chan Result, 1),
		done:     make(chan struct{}),
		settings: opts.Settings,
		state:    fsm.StateIdle,
		hudState: hud.StateIdle,
	}
}

// Run drives the loop until ctx is cancelled. hotkeys may be nil.
func (c *Coordinator) Run(ctx context.Context, hotkeys <-chan hotkey.Event) error {
	defer close(c.done)

	readiness, unsubscribe := c.opts.Engine.Subscribe(4)
	defer unsubscribe()
	c.readiness = c.opts.Engine.Readiness()
	c.applyReadiness(ctx)

	var frames <-chan audio.Frame
	if c.opts.Capture != nil {
		frames = c.opts.Capture.Frames()
	}
	var perfSignals <-chan bool
	if c.opts.Perf != nil {
		perfSignals = c.opts.Perf.Signals()
		c.perfWarn = c.opts.Perf.Warning()
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev, ok := <-hotkeys:
			if !ok {
				hotkeys = nil
				continue
			}
			c.onHotkey(ctx, ev)
		case cmd := <-c.cmds:
			c.onCommand(ctx, cmd)
		case r, ok := <-readiness:
			if !ok {
				readiness = nil
				continue
			}
			c.readiness = r
			c.applyReadiness(ctx)
		case f := <-frames:
			c.onFrame(f)
		case warn := <-perfSignals:
			c.onPerformance(warn)
		case r := <-c.results:
			c.finish(ctx, r)
		}
	}
}

// Press, Release, Toggle and Stop feed gestures from outside the hotkey
// source, such as IPC. Each returns the status after the gesture applied.
func (c *Coordinator) Press(ctx context.Context) (Status, error) {
	return c.send(ctx, command{kind: cmdPress})
}

func (c *Coordinator) Release(ctx context.Context) (Status, error) {
	return c.send(ctx, command{kind: cmdRelease})
}

// Toggle starts a session, or stops the active one, regardless of mode.
func (c *Coordinator) Toggle(ctx context.Context) (Status, error) {
	return c.send(ctx, command{kind: cmdToggle})
}

// Stop finalizes the active session. Without one it does nothing.
func (c *Coordinator) Stop(ctx context.Context) (Status, error) {
	return c.send(ctx, command{kind: cmdStop})
}

// SetSecure applies the secure-field signal.
func (c *Coordinator) SetSecure(ctx context.Context, on bool) (Status, error) {
	return c.send(ctx, command{kind: cmdSecure, secure: on})
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	return c.send(ctx, command{kind: cmdStatus})
}

// Apply replaces the live settings. Nil NewGate keeps the current one.
func (c *Coordinator) Apply(ctx context.Context, s Settings) (Status, error) {
	return c.send(ctx, command{kind: cmdApply, settings: s})
}

func (c *Coordinator) send(ctx context.Context, cmd command) (Status, error) {
	cmd.reply = make(chan Status, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
	select {
	case st := <-cmd.reply:
		return st, nil
	case <-c.done:
		return Status{}, ErrStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *Coordinator) onCommand(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdPress:
		c.onPress(ctx, c.settings.Mode)
	case cmdRelease:
		if c.settings.Mode == ModeHold {
			c.onRelease(ctx)
		}
	case cmdToggle:
		c.onPress(ctx, ModeToggle)
	case cmdStop:
		c.stop(ctx)
	case cmdSecure:
		c.setSecure(ctx, cmd.secure)
	case cmdApply:
		next := cmd.settings
		if next.NewGate == nil {
			next.NewGate = c.settings.NewGate
		}
		if next.Mode == "" {
			next.Mode = c.settings.Mode
		}
		if next.Output == "" {
			next.Output = c.settings.Output
		}
		if next.Mode != c.settings.Mode && c.armed {
			c.disarm()
			c.rest()
		}
		c.settings = next
		c.log.Info("session settings applied", "mode", string(next.Mode), "output", string(next.Output))
	}
	cmd.reply <- c.status()
}

func (c *Coordinator) status() Status {
	st := Status{
		State:     c.state,
		Hud:       c.hudState,
		Readiness: c.readiness,
		Mode:      c.settings.Mode,
		Secure:    c.secure.Load(),
		Armed:     c.armed,
		Last:      c.last,
	}
	if c.session != nil {
		st.SessionID = c.session.ID
	}
	return st
}

func (c *Coordinator) onHotkey(ctx context.Context, ev hotkey.Event) {
	switch ev.Kind {
	case hotkey.Pressed:
		c.onPress(ctx, c.settings.Mode)
	case hotkey.Released:
		if c.settings.Mode == ModeHold {
			c.onRelease(ctx)
		}
	}
}

func (c *Coordinator) onPress(ctx context.Context, mode Mode) {
	switch c.state {
	case fsm.StateProcessing:
		c.log.Debug("press ignored while processing")
		return
	case fsm.StateListening:
		if mode == ModeToggle {
			c.stop(ctx)
		}
		return
	}

	if c.secure.Load() {
		c.log.Info("press ignored in secure field")
		return
	}

	switch c.readiness.State {
	case asr.StateReady:
		if reason := c.ingressProblem(); reason != "" {
			c.refuse(reason)
			return
		}
		c.start(ctx, mode)
	case asr.StateError:
		c.setHud(hud.StateAsrError, c.readiness.Reason)
	default:
		if mode == ModeHold && !c.armed {
			if c.transition(fsm.EventArm) {
				c.armed = true
				c.log.Info("press armed until asr is ready", "model", c.readiness.Model.String())
			}
		}
		c.setHud(hud.StateWarming, c.readiness.Model.String())
	}
}

func (c *Coordinator) onRelease(ctx context.Context) {
	if c.armed {
		c.disarm()
		c.rest()
		return
	}
	if c.state == fsm.StateListening {
		c.stop(ctx)
	}
}

// ingressProblem names why kept-open capture cannot feed a session right
// now, or returns "".
func (c *Coordinator) ingressProblem() string {
	if !c.opts.KeepOpen || c.opts.Ingress == nil {
		return ""
	}
	switch {
	case c.opts.Ingress.Restarting():
		return hud.ReasonCaptureRestarting
	case c.opts.Ingress.Degraded():
		return hud.ReasonCaptureStalled
	}
	return ""
}

// refuse reports a press that cannot start a session because no audio is
// flowing.
func (c *Coordinator) refuse(reason string) {
	c.log.Warn("press refused: audio ingress unavailable", "reason", reason)
	c.opts.HUD.Emit(hud.Event{Kind: hud.KindDeviceError, Reason: reason})
	if c.armed {
		c.disarm()
	}
	c.rest()
}

func (c *Coordinator) disarm() {
	c.armed = false
	c.transition(fsm.EventDisarm)
}

func (c *Coordinator) start(ctx context.Context, mode Mode) {
	if c.settings.NewGate == nil {
		c.log.Error("session start skipped: no speech gate configured")
		return
	}
	gate := c.settings.NewGate()
	gate.SetPerformanceWarning(c.perfWarn)

	sess := &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: c.now(),
		Output:    c.settings.Output,
		Gate:      gate,
	}
	if !c.opts.KeepOpen && c.opts.Capture != nil {
		if err := c.opts.Capture.Start(ctx); err != nil {
			c.log.Error("capture start failed", "error", err.Error())
			c.opts.HUD.Emit(hud.Event{Kind: hud.KindDeviceError, Reason: err.Error()})
			c.armed = false
			if c.state == fsm.StateWarming {
				c.transition(fsm.EventDisarm)
			}
			c.rest()
			return
		}
	}
	if !c.transition(fsm.EventStart) {
		return
	}
	c.armed = false
	c.session = sess
	c.log.Info("session started", "session_id", sess.ID, "mode", string(mode))
	c.setHud(c.listeningHud(), "")
}

func (c *Coordinator) onFrame(f audio.Frame) {
	if c.state != fsm.StateListening || c.session == nil {
		return
	}
	c.push(f)
}

func (c *Coordinator) push(f audio.Frame) {
	start := time.Now()
	c.session.Gate.Push(f.PCM)
	if c.opts.Perf != nil {
		c.opts.Perf.ObserveVADFrame(time.Since(start))
	}
}

// stop finalizes the active session. The gate is finalized on the loop;
// transcription and injection run on the worker.
func (c *Coordinator) stop(ctx context.Context) {
	if c.state != fsm.StateListening || c.session == nil {
		return
	}
	sess := c.session
	stoppedAt := c.now()
	c.drainFrames(stoppedAt)
	if !c.opts.KeepOpen && c.opts.Capture != nil {
		if err := c.opts.Capture.Stop(); err != nil {
			c.log.Warn("capture stop failed", "error", err.Error())
		}
	}
	c.transition(fsm.EventStop)
	c.setHud(hud.StateProcessing, "")

	segment, err := sess.Gate.Finalize()
	stats := sess.Gate.Stats()
	c.log.Info("session finalized",
		"session_id", sess.ID,
		"frames", stats.FramesSeen,
		"speech_frames", stats.SpeechFrames,
		"onsets", stats.Onsets,
	)
	if err != nil {
		outcome := OutcomeNoSpeech
		if errors.Is(err, ErrNoAudio) {
			outcome = OutcomeNoAudio
		}
		c.finish(ctx, Result{SessionID: sess.ID, Outcome: outcome, Err: err})
		return
	}

	settings := c.settings
	c.worker.Add(1)
	go func() {
		defer c.worker.Done()
		r := c.process(context.WithoutCancel(ctx), sess, segment, settings)
		c.results <- r
	}()
}

// drainFrames moves frames captured before the stop gesture from the
// channel into the gate.
func (c *Coordinator) drainFrames(until time.Time) {
	if c.opts.Capture == nil {
		return
	}
	frames := c.opts.Capture.Frames()
	for {
		select {
		case f := <-frames:
			if f.CapturedAt.After(until) {
				return
			}
			c.push(f)
		default:
			return
		}
	}
}

func (c *Coordinator) process(ctx context.Context, sess *Session, segment vad.Segment, settings Settings) Result {
	r := Result{SessionID: sess.ID, Audio: segment.Duration()}

	if c.opts.DumpDir != "" {
		path, err := audio.DumpWAV(c.opts.DumpDir, "segment-"+sess.ID, segment.PCM())
		if err != nil {
			c.log.Warn("segment dump failed", "error", err.Error())
		} else {
			c.log.Debug("segment dumped", "path", path)
		}
	}

	tr, err := c.opts.Engine.Transcribe(ctx, segment.Samples())
	r.Model, r.Elapsed = tr.Model, tr.Elapsed
	if err != nil {
		r.Outcome, r.Err = OutcomeASRFailed, err
		return r
	}
	if c.opts.Perf != nil {
		c.opts.Perf.ObserveTranscription(tr.Audio, tr.Elapsed)
	}

	text := transcript.Clean(tr.Text, settings.Transcript)
	if text == "" {
		r.Outcome, r.Err = OutcomeEmptyTranscript, ErrEmptyTranscript
		return r
	}
	r.Text = text

	if c.secure.Load() {
		r.Outcome, r.Err = OutcomeSecureBlocked, ErrSecureBlocked
		return r
	}
	if sess.Output == output.ModeEmit {
		r.Outcome = OutcomeEmitted
		return r
	}

	res, err := c.opts.Injector.Inject(ctx, text)
	r.Injection, r.Err = res, err
	r.Outcome = Outcome(res.Outcome)
	return r
}

// finish closes the session that produced r. Results for any other
// session are stale and ignored.
func (c *Coordinator) finish(ctx context.Context, r Result) {
	if c.session == nil || c.session.ID != r.SessionID {
		c.log.Debug("stale session result ignored", "session_id", r.SessionID)
		return
	}
	c.session = nil
	c.transition(fsm.EventDone)
	c.last = r

	c.report(r)
	c.opts.Metrics.RecordSession(ctx, string(r.Outcome))
	if r.Outcome.pasted() {
		c.opts.Metrics.RecordPaste(ctx, string(r.Outcome))
	}

	args := []any{"session_id", r.SessionID, "outcome", string(r.Outcome), "audio_ms", r.Audio.Milliseconds(), "asr_ms", r.Elapsed.Milliseconds()}
	if r.Err != nil {
		args = append(args, "error", r.Err.Error())
	}
	c.log.Info("session finished", args...)

	if c.opts.OnResult != nil {
		c.opts.OnResult(r)
	}
	c.applyReadiness(ctx)
}

func (c *Coordinator) report(r Result) {
	switch {
	case r.Outcome.pasted() || r.Outcome == OutcomeEmitted:
		fields := map[string]string{
			"transcript_on_clipboard": strconv.FormatBool(r.Injection.TranscriptOnClipboard),
			"chars":                   strconv.Itoa(len(r.Text)),
		}
		var ie *output.InjectionError
		if errors.As(r.Err, &ie) {
			fields["step"] = string(ie.Step)
			fields["shortcut"] = ie.Shortcut
			fields["error"] = ie.Err.Error()
		}
		c.opts.HUD.Emit(hud.Event{Kind: hud.KindPaste, Reason: string(r.Outcome), Fields: fields})
	case r.Outcome == OutcomeDiscarded:
	default:
		ev := hud.Event{Kind: hud.KindNoOutput, Reason: string(r.Outcome)}
		if r.Err != nil && r.Outcome == OutcomeASRFailed {
			ev.Fields = map[string]string{"error": r.Err.Error()}
		}
		c.opts.HUD.Emit(ev)
	}
}

func (c *Coordinator) setSecure(ctx context.Context, on bool) {
	if c.secure.Load() == on {
		return
	}
	c.secure.Store(on)
	c.log.Info("secure field", "active", on)
	if !on {
		c.rest()
		return
	}

	if c.armed {
		c.disarm()
	}
	if c.state == fsm.StateListening && c.session != nil {
		c.discard(ctx, OutcomeSecureBlocked)
	}
	if c.state != fsm.StateProcessing {
		c.rest()
	}
}

// discard drops the listening session without transcribing it.
func (c *Coordinator) discard(ctx context.Context, outcome Outcome) {
	sess := c.session
	if !c.opts.KeepOpen && c.opts.Capture != nil {
		if err := c.opts.Capture.Stop(); err != nil {
			c.log.Warn("capture stop failed", "error", err.Error())
		}
	}
	c.transition(fsm.EventDiscard)
	c.session = nil
	r := Result{SessionID: sess.ID, Outcome: outcome}
	if outcome == OutcomeSecureBlocked {
		r.Err = ErrSecureBlocked
	}
	c.last = r
	c.report(r)
	c.opts.Metrics.RecordSession(ctx, string(outcome))
	c.log.Info("session discarded", "session_id", sess.ID, "outcome", string(outcome))
	if c.opts.OnResult != nil {
		c.opts.OnResult(r)
	}
}

func (c *Coordinator) onPerformance(warn bool) {
	c.perfWarn = warn
	c.log.Info("performance warning", "active", warn)
	if c.session != nil {
		c.session.Gate.SetPerformanceWarning(warn)
	}
	if c.state == fsm.StateListening {
		c.setHud(c.listeningHud(), "")
	}
}

// applyReadiness reconciles lifecycle state with engine readiness.
func (c *Coordinator) applyReadiness(ctx context.Context) {
	switch c.readiness.State {
	case asr.StateReady:
		if c.state == fsm.StateError {
			c.transition(fsm.EventRecover)
		}
		if c.armed && c.state == fsm.StateWarming && !c.secure.Load() {
			if reason := c.ingressProblem(); reason != "" {
				c.refuse(reason)
				return
			}
			c.log.Info("asr ready; starting armed session")
			c.start(ctx, ModeHold)
			return
		}
	case asr.StateError:
		if c.armed {
			c.armed = false
		}
		if c.state == fsm.StateIdle || c.state == fsm.StateWarming {
			c.transition(fsm.EventFail)
		}
	default:
		if c.state == fsm.StateError {
			c.transition(fsm.EventRecover)
		}
	}
	if c.state != fsm.StateListening && c.state != fsm.StateProcessing {
		c.rest()
	}
}

// rest sets the HUD for when no session is active.
func (c *Coordinator) rest() {
	switch {
	case c.state.Active():
		return
	case c.secure.Load():
		c.setHud(hud.StateSecureBlocked, "")
	case c.readiness.State == asr.StateError:
		c.setHud(hud.StateAsrError, c.readiness.Reason)
	case c.readiness.State == asr.StateWarming:
		c.setHud(hud.StateWarming, c.readiness.Model.String())
	default:
		c.setHud(hud.StateIdle, "")
	}
}

func (c *Coordinator) listeningHud() hud.State {
	if c.perfWarn {
		return hud.StatePerformanceWarning
	}
	return hud.StateListening
}

func (c *Coordinator) setHud(state hud.State, detail string) {
	c.hudState = state
	c.opts.HUD.SetState(state, detail)
}

func (c *Coordinator) transition(ev fsm.Event) bool {
	next, err := fsm.Transition(c.state, ev)
	if err != nil {
		c.log.Warn("session transition rejected", "error", err.Error())
		return false
	}
	c.state = next
	return true
}

func (c *Coordinator) shutdown() {
	if c.session != nil && c.state == fsm.StateListening {
		c.discard(context.Background(), OutcomeDiscarded)
	}
	c.worker.Wait()
	select {
	case r := <-c.results:
		c.finish(context.Background(), r)
	default:
	}
}
