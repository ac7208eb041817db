// Package output delivers transcripts to the focused application through
// the clipboard, restoring the user's clipboard afterwards.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Mode selects whether transcripts are pasted or only returned.
type Mode string

const (
	ModePaste Mode = "paste"
	ModeEmit  Mode = "emit"
)

// Outcome of one injection.
type Outcome string

const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeUnconfirmed Outcome = "unconfirmed"
	OutcomeFailed      Outcome = "failed"
	OutcomeTimedOut    Outcome = "timed-out"
	OutcomeEmitted     Outcome = "emitted"
)

// Step names the injection stage that failed.
type Step string

const (
	StepSnapshot Step = "snapshot"
	StepSet      Step = "set-clipboard"
	StepPaste    Step = "paste"
	StepConfirm  Step = "confirm"
)

// Snapshot is the clipboard content captured before injection.
type Snapshot struct {
	Text    string
	Present bool
}

// Result describes a finished injection.
type Result struct {
	Outcome Outcome
	Text    string
	// TranscriptOnClipboard is true when the clipboard was left holding the
	// transcript instead of the user's previous content.
	TranscriptOnClipboard bool
}

// InjectionError is returned for Failed and TimedOut outcomes.
type InjectionError struct {
	Step                  Step
	Shortcut              string
	Outcome               Outcome
	TranscriptOnClipboard bool
	Err                   error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("paste %s at %s (shortcut %s): %v", e.Outcome, e.Step, e.Shortcut, e.Err)
}

func (e *InjectionError) Unwrap() error { return e.Err }

type Options struct {
	Mode           Mode
	Clipboard      Clipboard
	Paster         Paster
	Shortcut       Shortcut
	ConfirmTimeout time.Duration
	// Settle is waited after a confirmed paste so the target can read the
	// clipboard before it is restored.
	Settle                  time.Duration
	KeepTranscriptOnFailure bool
	Logger                  *slog.Logger
}

// Injector serializes clipboard-mediated paste.
type Injector struct {
	mu   sync.Mutex
	opts Options
}

func NewInjector(opts Options) *Injector {
	if opts.Mode == "" {
		opts.Mode = ModePaste
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 1200 * time.Millisecond
	}
	return &Injector{opts: opts}
}

// SetShortcut replaces the paste chord for later injections.
func (i *Injector) SetShortcut(sc Shortcut) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.opts.Shortcut = sc
}

// Inject snapshots the clipboard, sets text, sends the paste chord and
// restores the snapshot. The snapshot is left unrestored only when the
// paste is Unconfirmed, or Failed with KeepTranscriptOnFailure set.
func (i *Injector) Inject(ctx context.Context, text string) (res Result, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	res.Text = text
	if i.opts.Mode == ModeEmit {
		res.Outcome = OutcomeEmitted
		return res, nil
	}
	sc := i.opts.Shortcut

	snap, err := i.opts.Clipboard.Read(ctx)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, &InjectionError{Step: StepSnapshot, Shortcut: sc.String(), Outcome: OutcomeFailed, Err: err}
	}

	leave := false
	defer func() {
		if !leave {
			if rerr := i.restore(snap); rerr != nil {
				i.log(slog.LevelWarn, "clipboard restore failed", "error", rerr.Error())
				leave = true
			}
		}
		res.TranscriptOnClipboard = leave
		var ie *InjectionError
		if errors.As(err, &ie) {
			ie.TranscriptOnClipboard = leave
		}
	}()

	if err = i.opts.Clipboard.Write(ctx, text); err != nil {
		res.Outcome = OutcomeFailed
		return res, &InjectionError{Step: StepSet, Shortcut: sc.String(), Outcome: OutcomeFailed, Err: err}
	}

	pasteCtx, cancel := context.WithTimeout(ctx, i.opts.ConfirmTimeout)
	defer cancel()
	confirmed, perr := i.opts.Paster.Paste(pasteCtx, sc)

	switch {
	case perr != nil && errors.Is(pasteCtx.Err(), context.DeadlineExceeded):
		res.Outcome = OutcomeTimedOut
		return res, &InjectionError{Step: StepConfirm, Shortcut: sc.String(), Outcome: OutcomeTimedOut, Err: perr}
	case perr != nil:
		res.Outcome = OutcomeFailed
		leave = i.opts.KeepTranscriptOnFailure
		return res, &InjectionError{Step: StepPaste, Shortcut: sc.String(), Outcome: OutcomeFailed, Err: perr}
	case !confirmed:
		res.Outcome = OutcomeUnconfirmed
		leave = true
		return res, nil
	}

	if i.opts.Settle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(i.opts.Settle):
		}
	}
	res.Outcome = OutcomeSucceeded
	return res, nil
}

// restore runs on every exit path, so it uses its own deadline rather than
// the caller's context.
func (i *Injector) restore(snap Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if snap.Present {
		return i.opts.Clipboard.Write(ctx, snap.Text)
	}
	return i.opts.Clipboard.Clear(ctx)
}

func (i *Injector) log(level slog.Level, msg string, args ...any) {
	if i.opts.Logger != nil {
		i.opts.Logger.Log(context.Background(), level, msg, args...)
	}
}
