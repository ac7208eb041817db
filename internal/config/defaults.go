package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	copyCmd := "wl-copy --trim-newline"
	pasteCmd := "wl-paste --no-newline"
	clearCmd := "wl-copy --clear"

	return Config{
		Hotkey: HotkeyConfig{
			Source:  "evdev",
			Binding: "F9",
			Mode:    "hold",
		},
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			KeepOpen:   true,
			Preprocess: "highpass",
		},
		VAD: VADConfig{
			Backend:               "adaptive",
			Sensitivity:           0.5,
			PreRollMS:             200,
			OnsetFrames:           2,
			HangoverMS:            400,
			PerformanceHangoverMS: 150,
			MinSpeechMS:           120,
		},
		ASR: ASRConfig{
			Backend:         "whisper",
			Model:           "base.en",
			Language:        "en",
			ModelPaths:      map[string]string{},
			ServerURL:       "http://127.0.0.1:8178",
			WarmupInference: true,
		},
		Output: OutputConfig{
			Mode:             "paste",
			Injector:         "hypr",
			Shortcut:         "CTRL+V",
			ConfirmTimeoutMS: 1200,
			SettleMS:         150,
		},
		Clipboard: ClipboardConfig{
			Backend: "command",
			Copy:    CommandConfig{Raw: copyCmd, Argv: mustParseArgv(copyCmd)},
			Paste:   CommandConfig{Raw: pasteCmd, Argv: mustParseArgv(pasteCmd)},
			Clear:   CommandConfig{Raw: clearCmd, Argv: mustParseArgv(clearCmd)},
		},
		Transcript: TranscriptConfig{
			TrailingSpace:       true,
			CapitalizeSentences: true,
		},
		Watchdog: WatchdogConfig{
			IntervalMS:    500,
			StallAfterMS:  2000,
			CooldownMS:    5000,
			MaxCooldownMS: 30000,
			Backoff:       2,
			MaxRestarts:   3,
		},
		HUD: HUDConfig{
			Backend:        "hypr",
			Sounds:         true,
			ErrorTimeoutMS: 1600,
		},
		Log: LogConfig{Level: "info"},
	}
}
