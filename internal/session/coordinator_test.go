package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/fsm"
	"github.com/rbright/quill/internal/hotkey"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/output"
	"github.com/rbright/quill/internal/perf"
	"github.com/rbright/quill/internal/transcript"
	"github.com/rbright/quill/internal/vad"
)

var testModel = asr.Model{ID: "base.en", Backend: "whisper"}

type fakeEngine struct {
	mu        sync.Mutex
	readiness asr.Readiness
	subs      []chan asr.Readiness
	text      string
	err       error
	block     chan struct{}
	calls     atomic.Int32
}

func newFakeEngine(state asr.State) *fakeEngine {
	return &fakeEngine{readiness: asr.Readiness{State: state, Model: testModel}, text: "hello world"}
}

func (e *fakeEngine) Readiness() asr.Readiness {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readiness
}

func (e *fakeEngine) Subscribe(int) (<-chan asr.Readiness, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := make(chan asr.Readiness, 8)
	ch <- e.readiness
	e.subs = append(e.subs, ch)
	return ch, func() {}
}

func (e *fakeEngine) set(r asr.Readiness) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readiness = r
	for _, ch := range e.subs {
		ch <- r
	}
}

func (e *fakeEngine) Transcribe(_ context.Context, samples []float32) (asr.Transcription, error) {
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	audioLen := time.Duration(len(samples)) * time.Second / audio.SampleRate
	return asr.Transcription{Text: e.text, Model: testModel, Audio: audioLen, Elapsed: audioLen / 10}, e.err
}

type fakeInjector struct {
	mu    sync.Mutex
	texts []string
	res   output.Result
	err   error
}

func (i *fakeInjector) Inject(_ context.Context, text string) (output.Result, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.texts = append(i.texts, text)
	res := i.res
	if res.Outcome == "" {
		res.Outcome = output.OutcomeSucceeded
	}
	res.Text = text
	return res, i.err
}

func (i *fakeInjector) injected() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.texts...)
}

type fakeCapture struct {
	frames chan audio.Frame
	starts atomic.Int32
	stops  atomic.Int32
}

func (c *fakeCapture) Frames() <-chan audio.Frame       { return c.frames }
func (c *fakeCapture) Start(context.Context) error      { c.starts.Add(1); return nil }
func (c *fakeCapture) Stop() error                      { c.stops.Add(1); return nil }
func (c *fakeCapture) send(t *testing.T, f audio.Frame) { t.Helper(); c.frames <- f }

// flagClassifier treats frames whose first byte is 1 as speech.
type flagClassifier struct{}

func (flagClassifier) Classify(pcm []byte) vad.Decision {
	active := len(pcm) > 0 && pcm[0] == 1
	score := 0.0
	if active {
		score = 1
	}
	return vad.Decision{Score: score, Threshold: 0.5, Active: active}
}

func (flagClassifier) Reset() {}

func newTestGate() *vad.Gate {
	return vad.NewGate(vad.Config{
		PreRoll:             40 * time.Millisecond,
		OnsetFrames:         2,
		Hangover:            60 * time.Millisecond,
		PerformanceHangover: 20 * time.Millisecond,
		MinSpeech:           60 * time.Millisecond,
	}, flagClassifier{})
}

type harness struct {
	coord    *Coordinator
	engine   *fakeEngine
	injector *fakeInjector
	capture  *fakeCapture
	hub      *hud.Hub
	hotkeys  chan hotkey.Event
	events   *hud.Subscription
}

func newHarness(t *testing.T, engine *fakeEngine, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		engine:   engine,
		injector: &fakeInjector{},
		capture:  &fakeCapture{frames: make(chan audio.Frame)},
		hub:      hud.NewHub(nil),
		hotkeys:  make(chan hotkey.Event),
	}
	h.events = h.hub.Subscribe(64)
	t.Cleanup(h.events.Close)

	opts := Options{
		Settings: Settings{
			Mode:       ModeHold,
			Output:     output.ModePaste,
			Transcript: transcript.Options{TrailingSpace: true, CapitalizeSentences: true},
			NewGate:    newTestGate,
		},
		KeepOpen: true,
		Engine:   engine,
		Injector: h.injector,
		Capture:  h.capture,
		HUD:      h.hub,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.coord = NewCoordinator(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx, h.hotkeys) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func (h *harness) press()   { h.hotkeys <- hotkey.Event{Kind: hotkey.Pressed, At: time.Now()} }
func (h *harness) release() { h.hotkeys <- hotkey.Event{Kind: hotkey.Released, At: time.Now()} }

func (h *harness) frames(t *testing.T, speech bool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		pcm := make([]byte, audio.FrameBytes)
		if speech {
			pcm[0] = 1
		}
		h.capture.send(t, audio.Frame{PCM: pcm, CapturedAt: time.Now()})
	}
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.coord.Status(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) waitIdle(t *testing.T) Status {
	t.Helper()
	var st Status
	require.Eventually(t, func() bool {
		st = h.status(t)
		return !st.State.Active() && st.Last.SessionID != ""
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func (h *harness) nextEvent(t *testing.T, kind hud.Kind) hud.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestHoldSessionTranscribesAndInjects(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	h.press()
	st := h.status(t)
	require.Equal(t, fsm.StateListening, st.State)
	require.Equal(t, hud.StateListening, st.Hud)
	require.NotEmpty(t, st.SessionID)

	h.frames(t, false, 2)
	h.frames(t, true, 5)
	h.frames(t, false, 2)
	h.release()

	st = h.waitIdle(t)
	require.Equal(t, OutcomeSucceeded, st.Last.Outcome)
	require.Equal(t, "Hello world ", st.Last.Text)
	require.Equal(t, []string{"Hello world "}, h.injector.injected())
	require.Equal(t, hud.StateIdle, st.Hud)

	ev := h.nextEvent(t, hud.KindPaste)
	require.Equal(t, "succeeded", ev.Reason)
}

func TestPressWhileWarmingArmsAndStartsWhenReady(t *testing.T) {
	engine := newFakeEngine(asr.StateWarming)
	h := newHarness(t, engine, nil)

	h.press()
	st := h.status(t)
	require.True(t, st.Armed)
	require.Equal(t, fsm.StateWarming, st.State)
	require.Equal(t, hud.StateWarming, st.Hud)
	require.Empty(t, st.SessionID)

	engine.set(asr.Readiness{State: asr.StateReady, Model: testModel})
	require.Eventually(t, func() bool {
		return h.status(t).State == fsm.StateListening
	}, time.Second, 5*time.Millisecond)

	h.frames(t, true, 4)
	h.release()
	st = h.waitIdle(t)
	require.Equal(t, OutcomeSucceeded, st.Last.Outcome)
}

func TestReleaseWhileArmedDisarms(t *testing.T) {
	engine := newFakeEngine(asr.StateWarming)
	h := newHarness(t, engine, nil)

	h.press()
	h.release()
	st := h.status(t)
	require.False(t, st.Armed)
	require.Equal(t, fsm.StateIdle, st.State)

	engine.set(asr.Readiness{State: asr.StateReady, Model: testModel})
	require.Eventually(t, func() bool {
		st := h.status(t)
		return st.Readiness.Ready() && st.Hud == hud.StateIdle
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, fsm.StateIdle, h.status(t).State)
}

func TestToggleModeDoesNotArm(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateWarming), func(o *Options) { o.Settings.Mode = ModeToggle })

	h.press()
	st := h.status(t)
	require.False(t, st.Armed)
	require.Equal(t, fsm.StateIdle, st.State)
	require.Equal(t, hud.StateWarming, st.Hud)
}

func TestReadinessErrorBlocksPress(t *testing.T) {
	engine := newFakeEngine(asr.StateError)
	engine.readiness.Reason = "model missing"
	h := newHarness(t, engine, nil)

	h.press()
	st := h.status(t)
	require.Equal(t, fsm.StateError, st.State)
	require.Equal(t, hud.StateAsrError, st.Hud)
	require.Empty(t, st.SessionID)

	engine.set(asr.Readiness{State: asr.StateReady, Model: testModel})
	require.Eventually(t, func() bool { return h.status(t).State == fsm.StateIdle }, time.Second, 5*time.Millisecond)
}

func TestNoFramesReportsNoAudio(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	h.press()
	h.release()
	st := h.waitIdle(t)
	require.Equal(t, OutcomeNoAudio, st.Last.Outcome)
	require.ErrorIs(t, st.Last.Err, ErrNoAudio)
	require.Zero(t, h.engine.calls.Load())
	require.Empty(t, h.injector.injected())

	ev := h.nextEvent(t, hud.KindNoOutput)
	require.Equal(t, hud.ReasonNoAudio, ev.Reason)
}

func TestSilenceReportsNoSpeech(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	h.press()
	h.frames(t, false, 10)
	h.frames(t, true, 1)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeNoSpeech, st.Last.Outcome)
	require.ErrorIs(t, st.Last.Err, vad.ErrNoSpeech)
	require.Zero(t, h.engine.calls.Load())
	require.Equal(t, hud.ReasonNoSpeech, h.nextEvent(t, hud.KindNoOutput).Reason)
}

func TestEmptyTranscriptSkipsInjection(t *testing.T) {
	engine := newFakeEngine(asr.StateReady)
	engine.text = " [BLANK_AUDIO] "
	h := newHarness(t, engine, nil)

	h.press()
	h.frames(t, true, 4)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeEmptyTranscript, st.Last.Outcome)
	require.ErrorIs(t, st.Last.Err, ErrEmptyTranscript)
	require.Empty(t, h.injector.injected())
	require.Equal(t, hud.ReasonEmptyTranscript, h.nextEvent(t, hud.KindNoOutput).Reason)
}

func TestASRFailureIsReported(t *testing.T) {
	engine := newFakeEngine(asr.StateReady)
	engine.err = errors.New("decoder crashed")
	h := newHarness(t, engine, nil)

	h.press()
	h.frames(t, true, 4)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeASRFailed, st.Last.Outcome)
	ev := h.nextEvent(t, hud.KindNoOutput)
	require.Equal(t, hud.ReasonASRFailed, ev.Reason)
	require.Equal(t, "decoder crashed", ev.Fields["error"])
}

func TestSecureFieldDiscardsListeningSession(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	h.press()
	h.frames(t, true, 4)
	st, err := h.coord.SetSecure(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, fsm.StateIdle, st.State)
	require.Equal(t, hud.StateSecureBlocked, st.Hud)
	require.Equal(t, OutcomeSecureBlocked, st.Last.Outcome)
	require.Empty(t, st.SessionID)

	h.release()
	h.press()
	st = h.status(t)
	require.Equal(t, fsm.StateIdle, st.State, "capture does not start in a secure field")
	require.Zero(t, h.engine.calls.Load())

	st, err = h.coord.SetSecure(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, hud.StateIdle, st.Hud)
}

func TestSecureFieldDuringProcessingSkipsInjection(t *testing.T) {
	engine := newFakeEngine(asr.StateReady)
	engine.block = make(chan struct{})
	h := newHarness(t, engine, nil)

	h.press()
	h.frames(t, true, 4)
	h.release()
	require.Eventually(t, func() bool { return engine.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	st, err := h.coord.SetSecure(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, fsm.StateProcessing, st.State)
	close(engine.block)

	st = h.waitIdle(t)
	require.Equal(t, OutcomeSecureBlocked, st.Last.Outcome)
	require.Equal(t, "Hello world ", st.Last.Text)
	require.Empty(t, h.injector.injected())
	require.Equal(t, hud.StateSecureBlocked, st.Hud)
}

func TestPressesDuringProcessingAreIgnored(t *testing.T) {
	engine := newFakeEngine(asr.StateReady)
	engine.block = make(chan struct{})
	h := newHarness(t, engine, func(o *Options) { o.Settings.Mode = ModeToggle })

	h.press()
	id := h.status(t).SessionID
	h.frames(t, true, 4)
	h.press()
	require.Equal(t, fsm.StateProcessing, h.status(t).State)

	h.press()
	h.release()
	st := h.status(t)
	require.Equal(t, fsm.StateProcessing, st.State)
	require.Equal(t, id, st.SessionID)

	close(engine.block)
	st = h.waitIdle(t)
	require.Equal(t, id, st.Last.SessionID)
	require.Len(t, h.injector.injected(), 1)
}

func TestIPCToggleAndStop(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)
	ctx := context.Background()

	st, err := h.coord.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, fsm.StateIdle, st.State, "stop without a session is a no-op")

	st, err = h.coord.Toggle(ctx)
	require.NoError(t, err)
	require.Equal(t, fsm.StateListening, st.State)

	h.frames(t, true, 4)
	_, err = h.coord.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, h.waitIdle(t).Last.Outcome)
}

func TestEmitModeReturnsTranscriptWithoutInjecting(t *testing.T) {
	var results []Result
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) {
		o.Settings.Output = output.ModeEmit
		o.OnResult = func(r Result) { results = append(results, r) }
	})

	h.press()
	h.frames(t, true, 4)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeEmitted, st.Last.Outcome)
	require.Equal(t, "Hello world ", st.Last.Text)
	require.Empty(t, h.injector.injected())
	require.Len(t, results, 1)
}

func TestInjectionFailureIsReported(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)
	h.injector.res = output.Result{Outcome: output.OutcomeFailed, TranscriptOnClipboard: true}
	h.injector.err = &output.InjectionError{
		Step: output.StepPaste, Shortcut: "CTRL+V", Outcome: output.OutcomeFailed,
		TranscriptOnClipboard: true, Err: errors.New("hyprctl failed"),
	}

	h.press()
	h.frames(t, true, 4)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeFailed, st.Last.Outcome)
	ev := h.nextEvent(t, hud.KindPaste)
	require.Equal(t, "failed", ev.Reason)
	require.Equal(t, "true", ev.Fields["transcript_on_clipboard"])
	require.Equal(t, "paste", ev.Fields["step"])
	require.Equal(t, "CTRL+V", ev.Fields["shortcut"])
}

func TestPerformanceWarningShortensHangoverAndShowsOnHud(t *testing.T) {
	monitor := perf.NewMonitor(perf.DefaultThresholds(), nil)
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) { o.Perf = monitor })

	h.press()
	monitor.ObserveTranscription(time.Second, 2*time.Second)
	require.Eventually(t, func() bool {
		return h.status(t).Hud == hud.StatePerformanceWarning
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, fsm.StateListening, h.status(t).State)
}

func TestKeepOpenFalseStartsAndStopsCapture(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) { o.KeepOpen = false })

	h.press()
	require.Equal(t, int32(1), h.capture.starts.Load())
	h.frames(t, true, 4)
	h.release()
	h.waitIdle(t)
	require.Equal(t, int32(1), h.capture.stops.Load())
}

func TestApplyChangesModeForNextSession(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	st, err := h.coord.Apply(context.Background(), Settings{Mode: ModeToggle})
	require.NoError(t, err)
	require.Equal(t, ModeToggle, st.Mode)

	h.press()
	h.release()
	require.Equal(t, fsm.StateListening, h.status(t).State, "release is ignored in toggle mode")
	h.press()
	require.Equal(t, OutcomeNoAudio, h.waitIdle(t).Last.Outcome)
}

func TestStaleResultIsIgnored(t *testing.T) {
	c := NewCoordinator(Options{Engine: newFakeEngine(asr.StateReady), Settings: Settings{NewGate: newTestGate}})
	c.readiness = asr.Readiness{State: asr.StateReady}
	c.start(context.Background(), ModeHold)
	require.NotNil(t, c.session)

	c.finish(context.Background(), Result{SessionID: "someone-else", Outcome: OutcomeSucceeded})
	require.NotNil(t, c.session)
	require.Equal(t, fsm.StateListening, c.state)
}

func TestCallsAfterRunReturnErrStopped(t *testing.T) {
	c := NewCoordinator(Options{Engine: newFakeEngine(asr.StateReady)})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, nil) }()
	cancel()
	require.NoError(t, <-done)

	_, err := c.Status(context.Background())
	require.ErrorIs(t, err, ErrStopped)
}

// hudTrail drains the HUD states published so far. States are pushed
// synchronously by the loop, so everything before the last Status call is
// already buffered.
func (h *harness) hudTrail(t *testing.T) []hud.State {
	t.Helper()
	var trail []hud.State
	for {
		select {
		case u := <-h.events.States():
			trail = append(trail, u.State)
		default:
			return trail
		}
	}
}

func TestToggleSessionHudSequence(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) { o.Settings.Mode = ModeToggle })

	h.press()
	h.frames(t, true, 5)
	h.frames(t, false, 2)
	h.press()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeSucceeded, st.Last.Outcome)
	require.Equal(t, []hud.State{hud.StateIdle, hud.StateListening, hud.StateProcessing, hud.StateIdle}, h.hudTrail(t))
	require.Len(t, h.injector.injected(), 1)
}

func TestHoldSilenceHudSequence(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), nil)

	h.press()
	h.frames(t, false, 12)
	h.release()

	st := h.waitIdle(t)
	require.Equal(t, OutcomeNoSpeech, st.Last.Outcome)
	require.Equal(t, []hud.State{hud.StateIdle, hud.StateListening, hud.StateProcessing, hud.StateIdle}, h.hudTrail(t))
	require.Empty(t, h.injector.injected())
	require.Zero(t, h.engine.calls.Load())
}

func TestHudStaysWarmingForAnyGesturesWhileWarming(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateWarming), nil)
	ctx := context.Background()

	h.press()
	h.release()
	h.press()
	h.frames(t, true, 4)
	h.release()
	_, err := h.coord.Toggle(ctx)
	require.NoError(t, err)
	_, err = h.coord.Stop(ctx)
	require.NoError(t, err)
	_, err = h.coord.Press(ctx)
	require.NoError(t, err)

	st := h.status(t)
	require.Equal(t, hud.StateWarming, st.Hud)
	require.Empty(t, st.SessionID)

	trail := h.hudTrail(t)
	require.NotEmpty(t, trail)
	require.Equal(t, hud.StateIdle, trail[0], "state cached before the loop started")
	for _, s := range trail[1:] {
		require.Equal(t, hud.StateWarming, s)
	}
	require.Zero(t, h.engine.calls.Load())
	require.Empty(t, h.injector.injected())
}

func TestHotkeyInterleavingsNeverOverlapSessions(t *testing.T) {
	for _, mode := range []Mode{ModeHold, ModeToggle} {
		t.Run(string(mode), func(t *testing.T) {
			var mu sync.Mutex
			finished := map[string]bool{}
			h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) {
				o.Settings.Mode = mode
				o.OnResult = func(r Result) {
					mu.Lock()
					defer mu.Unlock()
					finished[r.SessionID] = true
				}
			})
			ctx := context.Background()
			rng := rand.New(rand.NewPCG(7, uint64(len(mode))))

			gestures := []func(){
				h.press,
				h.release,
				func() { _, _ = h.coord.Press(ctx) },
				func() { _, _ = h.coord.Release(ctx) },
				func() { _, _ = h.coord.Toggle(ctx) },
				func() { _, _ = h.coord.Stop(ctx) },
				func() { h.frames(t, true, 3) },
				func() { h.frames(t, false, 2) },
			}

			var current string
			for i := 0; i < 300; i++ {
				gestures[rng.IntN(len(gestures))]()
				st := h.status(t)
				if st.SessionID == "" || st.SessionID == current {
					continue
				}
				if current != "" {
					mu.Lock()
					done := finished[current]
					mu.Unlock()
					require.True(t, done, "session %s started before %s finished", st.SessionID, current)
				}
				current = st.SessionID
			}
		})
	}
}

type fakeIngress struct {
	restarting atomic.Bool
	degraded   atomic.Bool
}

func (f *fakeIngress) Restarting() bool { return f.restarting.Load() }
func (f *fakeIngress) Degraded() bool   { return f.degraded.Load() }

func TestPressRefusedWhileIngressUnavailable(t *testing.T) {
	ingress := &fakeIngress{}
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) { o.Ingress = ingress })

	ingress.restarting.Store(true)
	h.press()
	st := h.status(t)
	require.Equal(t, fsm.StateIdle, st.State)
	require.Empty(t, st.SessionID)
	require.Equal(t, hud.StateIdle, st.Hud)
	require.Equal(t, hud.ReasonCaptureRestarting, h.nextEvent(t, hud.KindDeviceError).Reason)
	h.release()

	ingress.restarting.Store(false)
	ingress.degraded.Store(true)
	_, err := h.coord.Toggle(context.Background())
	require.NoError(t, err)
	require.Empty(t, h.status(t).SessionID)
	require.Equal(t, hud.ReasonCaptureStalled, h.nextEvent(t, hud.KindDeviceError).Reason)

	ingress.degraded.Store(false)
	h.press()
	require.Equal(t, fsm.StateListening, h.status(t).State)
}

func TestArmedPressRefusedWhenIngressStallsBeforeReady(t *testing.T) {
	ingress := &fakeIngress{}
	engine := newFakeEngine(asr.StateWarming)
	h := newHarness(t, engine, func(o *Options) { o.Ingress = ingress })

	h.press()
	require.True(t, h.status(t).Armed)

	ingress.degraded.Store(true)
	engine.set(asr.Readiness{State: asr.StateReady, Model: testModel})
	require.Equal(t, hud.ReasonCaptureStalled, h.nextEvent(t, hud.KindDeviceError).Reason)

	st := h.status(t)
	require.False(t, st.Armed)
	require.Equal(t, fsm.StateIdle, st.State)
	require.Empty(t, st.SessionID)
}

func TestIngressIgnoredWhenCaptureIsPerSession(t *testing.T) {
	ingress := &fakeIngress{}
	ingress.degraded.Store(true)
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) {
		o.KeepOpen = false
		o.Ingress = ingress
	})

	h.press()
	require.Equal(t, fsm.StateListening, h.status(t).State)
	require.Equal(t, int32(1), h.capture.starts.Load())
}

func TestIPCReleaseOnlyEndsHoldSessions(t *testing.T) {
	h := newHarness(t, newFakeEngine(asr.StateReady), func(o *Options) { o.Settings.Mode = ModeToggle })
	ctx := context.Background()

	st, err := h.coord.Press(ctx)
	require.NoError(t, err)
	require.Equal(t, fsm.StateListening, st.State)

	st, err = h.coord.Release(ctx)
	require.NoError(t, err)
	require.Equal(t, fsm.StateListening, st.State, "release does not stop a toggle session")

	_, err = h.coord.Apply(ctx, Settings{Mode: ModeHold})
	require.NoError(t, err)
	h.frames(t, true, 4)
	_, err = h.coord.Release(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, h.waitIdle(t).Last.Outcome)
}
