package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rbright/quill/internal/config"
	"github.com/rbright/quill/internal/hypr"
	"github.com/rbright/quill/internal/indicator"
	"github.com/rbright/quill/internal/output"
	"github.com/rbright/quill/internal/session"
	"github.com/rbright/quill/internal/transcript"
	"github.com/rbright/quill/internal/vad"
	"github.com/rbright/quill/internal/watchdog"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// sessionSettings derives the live-applicable coordinator settings. The
// classifier is validated here so a bad backend fails before the first
// session rather than inside it.
func sessionSettings(cfg config.Config) (session.Settings, error) {
	if _, err := vad.NewClassifier(cfg.VAD.Backend, cfg.VAD.Sensitivity); err != nil {
		return session.Settings{}, err
	}
	vadCfg := cfg.VAD
	gateCfg := vad.Config{
		PreRoll:             ms(vadCfg.PreRollMS),
		OnsetFrames:         vadCfg.OnsetFrames,
		Hangover:            ms(vadCfg.HangoverMS),
		PerformanceHangover: ms(vadCfg.PerformanceHangoverMS),
		MinSpeech:           ms(vadCfg.MinSpeechMS),
	}
	return session.Settings{
		Mode:   session.Mode(cfg.Hotkey.Mode),
		Output: output.Mode(cfg.Output.Mode),
		Transcript: transcript.Options{
			TrailingSpace:       cfg.Transcript.TrailingSpace,
			CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
		},
		NewGate: func() *vad.Gate {
			classifier, _ := vad.NewClassifier(vadCfg.Backend, vadCfg.Sensitivity)
			return vad.NewGate(gateCfg, classifier)
		},
	}, nil
}

func newClipboard(cfg config.ClipboardConfig) output.Clipboard {
	if cfg.Backend == "system" {
		return output.SystemClipboard{}
	}
	return output.CommandClipboard{
		Copy:      cfg.Copy.Argv,
		Paste:     cfg.Paste.Argv,
		ClearArgv: cfg.Clear.Argv,
	}
}

func newPaster(cfg config.OutputConfig) (output.Paster, error) {
	switch cfg.Injector {
	case "command":
		return output.CommandPaster{Argv: cfg.PasteCmd.Argv}, nil
	case "uinput":
		p, err := output.NewUinputPaster()
		if err != nil {
			return nil, fmt.Errorf("open uinput injector: %w", err)
		}
		return p, nil
	default:
		return output.HyprPaster{Client: hypr.Client{}, Attempts: 3, Delay: 30 * time.Millisecond}, nil
	}
}

// newInjector always builds a paste injector; emit mode is decided per
// session by the coordinator so it can be toggled live.
func newInjector(cfg config.Config, logger *slog.Logger) (*output.Injector, error) {
	var shortcut output.Shortcut
	if cfg.Output.Injector != "command" {
		sc, err := output.ParseShortcut(cfg.Output.Shortcut)
		if err != nil {
			return nil, fmt.Errorf("output.shortcut: %w", err)
		}
		shortcut = sc
	}
	paster, err := newPaster(cfg.Output)
	if err != nil {
		return nil, err
	}
	return output.NewInjector(output.Options{
		Mode:                    output.ModePaste,
		Clipboard:               newClipboard(cfg.Clipboard),
		Paster:                  paster,
		Shortcut:                shortcut,
		ConfirmTimeout:          ms(cfg.Output.ConfirmTimeoutMS),
		Settle:                  ms(cfg.Output.SettleMS),
		KeepTranscriptOnFailure: cfg.Output.KeepTranscriptOnFailure,
		Logger:                  logger,
	}), nil
}

func watchdogConfig(cfg config.WatchdogConfig) watchdog.Config {
	return watchdog.Config{
		Interval:   ms(cfg.IntervalMS),
		StallAfter: ms(cfg.StallAfterMS),
		Policy: watchdog.Policy{
			MaxAttempts: cfg.MaxRestarts,
			Cooldown:    ms(cfg.CooldownMS),
			Backoff:     cfg.Backoff,
			MaxCooldown: ms(cfg.MaxCooldownMS),
		},
	}
}

func newNotifier(cfg config.HUDConfig) indicator.Notifier {
	switch cfg.Backend {
	case "hypr":
		return indicator.HyprNotifier{Client: hypr.Client{}}
	case "desktop":
		return indicator.DesktopNotifier{Title: "quill"}
	default:
		return nil
	}
}
