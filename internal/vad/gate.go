package vad

import (
	"errors"
	"time"

	"github.com/rbright/quill/internal/audio"
)

var (
	// ErrNoAudio means the session ended before any frame arrived.
	ErrNoAudio = errors.New("no audio captured")
	// ErrNoSpeech means frames arrived but none qualified as speech.
	ErrNoSpeech = errors.New("no speech detected")
)

// Config sets gate timing. Durations are rounded up to whole frames.
type Config struct {
	PreRoll             time.Duration
	OnsetFrames         int
	Hangover            time.Duration
	PerformanceHangover time.Duration
	MinSpeech           time.Duration
}

// Stats summarize what the gate has seen.
type Stats struct {
	FramesSeen   int
	SpeechFrames int
	Onsets       int
	Last         Decision
}

// Segment is the frozen output of Finalize.
type Segment struct {
	Frames       [][]byte
	SpeechFrames int
}

// PCM concatenates the segment frames.
func (s Segment) PCM() []byte {
	out := make([]byte, 0, len(s.Frames)*audio.FrameBytes)
	for _, f := range s.Frames {
		out = append(out, f...)
	}
	return out
}

// Samples returns the segment as float32 samples for ASR.
func (s Segment) Samples() []float32 { return audio.PCMToFloat32(s.PCM()) }

func (s Segment) Duration() time.Duration {
	return time.Duration(len(s.Frames)) * audio.FrameDuration
}

func (s Segment) SpeechDuration() time.Duration {
	return time.Duration(s.SpeechFrames) * audio.FrameDuration
}

// Gate accumulates one session's speech segment. Silence between speech
// runs longer than the hangover is dropped, so the segment is a sequence of
// pre-roll + speech + hangover spans. A Gate is owned by one goroutine.
type Gate struct {
	cfg        Config
	classifier Classifier

	preRoll  [][]byte
	candRun  [][]byte
	frames   [][]byte
	open     bool
	inSpeech bool
	trailing int
	resume   int
	perf     bool

	stats     Stats
	finalized bool
	segment   Segment
	err       error
}

func NewGate(cfg Config, classifier Classifier) *Gate {
	if cfg.OnsetFrames < 1 {
		cfg.OnsetFrames = 1
	}
	return &Gate{cfg: cfg, classifier: classifier}
}

// SetPerformanceWarning switches to the shorter hangover while on.
func (g *Gate) SetPerformanceWarning(on bool) { g.perf = on }

// Push classifies one frame and folds it into the segment. Frames pushed
// after Finalize are ignored.
func (g *Gate) Push(pcm []byte) Decision {
	if g.finalized {
		return Decision{}
	}
	d := g.classifier.Classify(pcm)
	g.stats.FramesSeen++
	g.stats.Last = d

	if !g.open {
		g.waitForOnset(pcm, d.Active)
		return d
	}

	g.frames = append(g.frames, pcm)
	switch {
	case g.inSpeech && d.Active:
		g.stats.SpeechFrames++
	case g.inSpeech:
		g.inSpeech = false
		g.trailing = 1
		g.resume = 0
	case d.Active:
		g.resume++
		if g.resume >= g.cfg.OnsetFrames {
			g.inSpeech = true
			g.stats.SpeechFrames += g.resume
			g.trailing = 0
			g.resume = 0
			return d
		}
		g.trailing++
	default:
		g.resume = 0
		g.trailing++
	}

	if !g.inSpeech && g.trailing >= g.hangoverFrames() {
		g.closeSpan()
	}
	return d
}

func (g *Gate) waitForOnset(pcm []byte, active bool) {
	if active {
		g.candRun = append(g.candRun, pcm)
		if len(g.candRun) < g.cfg.OnsetFrames {
			return
		}
		g.stats.Onsets++
		g.stats.SpeechFrames += len(g.candRun)
		g.frames = append(g.frames, g.preRoll...)
		g.frames = append(g.frames, g.candRun...)
		g.preRoll = g.preRoll[:0]
		g.candRun = nil
		g.open = true
		g.inSpeech = true
		g.trailing = 0
		return
	}

	g.preRoll = append(g.preRoll, g.candRun...)
	g.preRoll = append(g.preRoll, pcm)
	g.candRun = nil
	if limit := framesFor(g.cfg.PreRoll); len(g.preRoll) > limit {
		g.preRoll = append(g.preRoll[:0], g.preRoll[len(g.preRoll)-limit:]...)
	}
}

// closeSpan ends the current speech span, keeping at most the hangover
// frames. Resume-run frames cut from the hangover carry over as onset
// candidates.
func (g *Gate) closeSpan() {
	keep := g.hangoverFrames()
	if excess := g.trailing - keep; excess > 0 {
		moved := min(g.resume, excess)
		g.candRun = append([][]byte(nil), g.frames[len(g.frames)-moved:]...)
		g.frames = g.frames[:len(g.frames)-excess]
	}
	g.open = false
	g.inSpeech = false
	g.trailing = 0
	g.resume = 0
}

// Finalize freezes the segment and applies strict trim. It is idempotent.
func (g *Gate) Finalize() (Segment, error) {
	if g.finalized {
		return g.segment, g.err
	}
	g.finalized = true

	if g.open && !g.inSpeech {
		g.closeSpan()
	}

	switch {
	case g.stats.FramesSeen == 0:
		g.err = ErrNoAudio
	case g.stats.Onsets == 0:
		g.err = ErrNoSpeech
	case time.Duration(g.stats.SpeechFrames)*audio.FrameDuration < g.cfg.MinSpeech:
		g.err = ErrNoSpeech
	default:
		g.segment = Segment{Frames: g.frames, SpeechFrames: g.stats.SpeechFrames}
	}
	g.preRoll, g.candRun = nil, nil
	return g.segment, g.err
}

func (g *Gate) Stats() Stats { return g.stats }

func (g *Gate) hangoverFrames() int {
	if g.perf {
		return framesFor(g.cfg.PerformanceHangover)
	}
	return framesFor(g.cfg.Hangover)
}

func framesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + audio.FrameDuration - 1) / audio.FrameDuration)
}
