// Package session owns the dictation lifecycle: it turns hotkey edges,
// engine readiness, secure-field signals and performance warnings into at
// most one capture session at a time, and carries each session through
// speech gating, transcription and injection.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/fsm"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/output"
	"github.com/rbright/quill/internal/vad"
)

var (
	// ErrNoAudio means the session ended before any frame arrived.
	ErrNoAudio = vad.ErrNoAudio
	// ErrEmptyTranscript means ASR produced nothing usable after cleanup.
	ErrEmptyTranscript = errors.New("asr returned an empty transcript")
	// ErrSecureBlocked means injection was suppressed because a secure
	// field gained focus.
	ErrSecureBlocked = errors.New("injection suppressed in secure field")
)

// Mode is how hotkey edges are consumed.
type Mode string

const (
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

// Session is one capture from start to finalize.
type Session struct {
	ID        string
	Mode      Mode
	StartedAt time.Time
	Output    output.Mode
	Gate      *vad.Gate
}

// Outcome is how a session ended.
type Outcome string

const (
	OutcomeSucceeded       Outcome = Outcome(output.OutcomeSucceeded)
	OutcomeUnconfirmed     Outcome = Outcome(output.OutcomeUnconfirmed)
	OutcomeFailed          Outcome = Outcome(output.OutcomeFailed)
	OutcomeTimedOut        Outcome = Outcome(output.OutcomeTimedOut)
	OutcomeEmitted         Outcome = Outcome(output.OutcomeEmitted)
	OutcomeNoAudio         Outcome = hud.ReasonNoAudio
	OutcomeNoSpeech        Outcome = hud.ReasonNoSpeech
	OutcomeEmptyTranscript Outcome = hud.ReasonEmptyTranscript
	OutcomeSecureBlocked   Outcome = hud.ReasonSecureBlocked
	OutcomeASRFailed       Outcome = hud.ReasonASRFailed
	OutcomeDiscarded       Outcome = "discarded"
)

func (o Outcome) pasted() bool {
	switch o {
	case OutcomeSucceeded, OutcomeUnconfirmed, OutcomeFailed, OutcomeTimedOut:
		return true
	}
	return false
}

// Result is the end of one session.
type Result struct {
	SessionID string
	Outcome   Outcome
	Text      string
	Model     asr.Model
	Audio     time.Duration
	Elapsed   time.Duration
	Injection output.Result
	Err       error
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State     fsm.State
	Hud       hud.State
	Readiness asr.Readiness
	Mode      Mode
	SessionID string
	Secure    bool
	Armed     bool
	Last      Result
}

func (s Status) String() string {
	return fmt.Sprintf("state=%s hud=%s readiness=%s model=%s", s.State, s.Hud, s.Readiness.State, s.Readiness.Model)
}
