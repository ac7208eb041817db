// Package indicator presents HUD state as compositor or desktop
// notifications and plays short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/hypr"
)

// Level picks icon and color.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Notice is one notification to show. A zero Timeout means "until replaced".
type Notice struct {
	Level   Level
	Text    string
	Timeout time.Duration
}

// Notifier is a notification surface.
type Notifier interface {
	Show(ctx context.Context, n Notice) error
	Dismiss(ctx context.Context) error
}

// HyprNotifier shows notices through hyprctl notify.
type HyprNotifier struct {
	Client hypr.Client
}

const persistentMS = 300000

func (h HyprNotifier) Show(ctx context.Context, n Notice) error {
	note := hypr.Notification{Icon: hypr.IconInfo, TimeoutMS: persistentMS, Color: "rgb(89b4fa)", Text: n.Text}
	switch n.Level {
	case LevelWarning:
		note.Icon, note.Color = hypr.IconWarning, "rgb(f9e2af)"
	case LevelError:
		note.Icon, note.Color = hypr.IconError, "rgb(f38ba8)"
	}
	if n.Timeout > 0 {
		note.TimeoutMS = int(n.Timeout / time.Millisecond)
	}
	return h.Client.Notify(ctx, note)
}

func (h HyprNotifier) Dismiss(ctx context.Context) error {
	return h.Client.DismissNotify(ctx)
}

// DesktopNotifier raises freedesktop toasts through beeep. Toasts expire on
// their own, so only warnings and errors are shown.
type DesktopNotifier struct {
	Title string
}

func (d DesktopNotifier) Show(_ context.Context, n Notice) error {
	if n.Level == LevelInfo {
		return nil
	}
	title := d.Title
	if title == "" {
		title = "quill"
	}
	return beeep.Notify(title, n.Text, "")
}

func (DesktopNotifier) Dismiss(context.Context) error { return nil }

// Options configure a Presenter.
type Options struct {
	Notifier     Notifier
	Sounds       bool
	ErrorTimeout time.Duration
	Logger       *slog.Logger
}

// Presenter renders hub state and diagnostics.
type Presenter struct {
	notifier     Notifier
	sounds       bool
	errorTimeout time.Duration
	logger       *slog.Logger
	messages     messages
	cue          func(context.Context, cueKind) error

	// errorShown keeps a transient error visible across the Idle that
	// immediately follows it.
	errorShown bool
}

func NewPresenter(opts Options) *Presenter {
	if opts.ErrorTimeout <= 0 {
		opts.ErrorTimeout = 1600 * time.Millisecond
	}
	return &Presenter{
		notifier:     opts.Notifier,
		sounds:       opts.Sounds,
		errorTimeout: opts.ErrorTimeout,
		logger:       opts.Logger,
		messages:     messagesFromEnv(),
		cue:          emitCue,
	}
}

// Run consumes hub updates until ctx is done.
func (p *Presenter) Run(ctx context.Context, hub *hud.Hub) error {
	sub := hub.Subscribe(16)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-sub.States():
			if !ok {
				return nil
			}
			p.present(ctx, u)
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			p.diagnose(ctx, ev)
		}
	}
}

func (p *Presenter) present(ctx context.Context, u hud.Update) {
	switch u.State {
	case hud.StateIdle:
		if p.errorShown {
			p.errorShown = false
			return
		}
		p.dismiss(ctx)
	case hud.StateWarming:
		p.show(ctx, Notice{Level: LevelInfo, Text: p.messages.warming})
	case hud.StateListening:
		p.playCue(cueStart)
		p.show(ctx, Notice{Level: LevelInfo, Text: p.messages.listening})
	case hud.StatePerformanceWarning:
		p.show(ctx, Notice{Level: LevelWarning, Text: p.messages.slow})
	case hud.StateProcessing:
		p.playCue(cueStop)
		p.show(ctx, Notice{Level: LevelInfo, Text: p.messages.processing})
	case hud.StateSecureBlocked:
		p.show(ctx, Notice{Level: LevelWarning, Text: p.messages.secure})
	case hud.StateAsrError:
		text := p.messages.asrError
		if u.Detail != "" {
			text += ": " + u.Detail
		}
		p.show(ctx, Notice{Level: LevelError, Text: text})
	}
}

func (p *Presenter) diagnose(ctx context.Context, ev hud.Event) {
	switch ev.Kind {
	case hud.KindPaste:
		if ev.Reason == "succeeded" || ev.Reason == "emitted" {
			p.playCue(cueComplete)
			return
		}
		text := p.messages.pasteFailed
		if ev.Fields["transcript_on_clipboard"] == "true" {
			text = p.messages.pasteManual
		}
		p.showError(ctx, text)
	case hud.KindNoOutput:
		p.playCue(cueCancel)
		if text, ok := p.messages.noOutput[ev.Reason]; ok {
			p.showError(ctx, text)
		}
	case hud.KindDeviceError, hud.KindCapabilityError:
		p.playCue(cueCancel)
		p.show(ctx, Notice{Level: LevelError, Text: ev.Reason})
	}
}

func (p *Presenter) showError(ctx context.Context, text string) {
	p.show(ctx, Notice{Level: LevelError, Text: text, Timeout: p.errorTimeout})
	p.errorShown = true
}

func (p *Presenter) show(ctx context.Context, n Notice) {
	p.errorShown = false
	if p.notifier == nil {
		return
	}
	p.run(ctx, func(ctx context.Context) error { return p.notifier.Show(ctx, n) })
}

func (p *Presenter) dismiss(ctx context.Context) {
	if p.notifier == nil {
		return
	}
	p.run(ctx, p.notifier.Dismiss)
}

// run executes a notifier call with a bounded timeout.
func (p *Presenter) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil && p.logger != nil {
		p.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}

// playCue plays in the background; cues never delay state handling.
func (p *Presenter) playCue(kind cueKind) {
	if !p.sounds || p.cue == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := p.cue(ctx, kind); err != nil && p.logger != nil {
			p.logger.Debug("indicator audio cue failed", "error", err.Error())
		}
	}()
}
