package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	hotkeySources     = []string{"evdev", "compositor"}
	hotkeyModes       = []string{"hold", "toggle"}
	preprocessModes   = []string{"none", "highpass"}
	vadBackends       = []string{"energy", "adaptive"}
	asrBackends       = []string{"whisper", "whisper-server"}
	outputModes       = []string{"paste", "emit"}
	injectors         = []string{"hypr", "uinput", "command"}
	clipboardBackends = []string{"command", "system"}
	hudBackends       = []string{"hypr", "desktop", "none"}
	logLevels         = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	checks := []struct {
		key     string
		value   string
		allowed []string
	}{
		{"hotkey.source", cfg.Hotkey.Source, hotkeySources},
		{"hotkey.mode", cfg.Hotkey.Mode, hotkeyModes},
		{"audio.preprocess", cfg.Audio.Preprocess, preprocessModes},
		{"vad.backend", cfg.VAD.Backend, vadBackends},
		{"asr.backend", cfg.ASR.Backend, asrBackends},
		{"output.mode", cfg.Output.Mode, outputModes},
		{"output.injector", cfg.Output.Injector, injectors},
		{"clipboard.backend", cfg.Clipboard.Backend, clipboardBackends},
		{"hud.backend", cfg.HUD.Backend, hudBackends},
		{"log.level", cfg.Log.Level, logLevels},
	}
	for _, check := range checks {
		if err := oneOf(check.key, check.value, check.allowed); err != nil {
			return nil, err
		}
	}

	if cfg.Hotkey.Source == "evdev" && strings.TrimSpace(cfg.Hotkey.Binding) == "" {
		return nil, fmt.Errorf("hotkey.binding must not be empty when hotkey.source=evdev")
	}

	if cfg.VAD.Sensitivity < 0 || cfg.VAD.Sensitivity > 1 {
		return nil, fmt.Errorf("vad.sensitivity must be within [0, 1]")
	}
	for key, value := range map[string]int{
		"vad.pre_roll_ms":             cfg.VAD.PreRollMS,
		"vad.hangover_ms":             cfg.VAD.HangoverMS,
		"vad.performance_hangover_ms": cfg.VAD.PerformanceHangoverMS,
		"vad.min_speech_ms":           cfg.VAD.MinSpeechMS,
		"output.settle_ms":            cfg.Output.SettleMS,
		"hud.error_timeout_ms":        cfg.HUD.ErrorTimeoutMS,
	} {
		if value < 0 {
			return nil, fmt.Errorf("%s must be >= 0", key)
		}
	}
	for key, value := range map[string]int{
		"vad.onset_frames":          cfg.VAD.OnsetFrames,
		"output.confirm_timeout_ms": cfg.Output.ConfirmTimeoutMS,
		"watchdog.interval_ms":      cfg.Watchdog.IntervalMS,
		"watchdog.stall_after_ms":   cfg.Watchdog.StallAfterMS,
		"watchdog.cooldown_ms":      cfg.Watchdog.CooldownMS,
		"watchdog.max_restarts":     cfg.Watchdog.MaxRestarts,
	} {
		if value <= 0 {
			return nil, fmt.Errorf("%s must be > 0", key)
		}
	}
	if cfg.VAD.PerformanceHangoverMS > cfg.VAD.HangoverMS {
		warnings = append(warnings, Warning{Message: "vad.performance_hangover_ms exceeds vad.hangover_ms; performance mode will not shorten hangover"})
	}
	if cfg.Watchdog.Backoff < 1 {
		return nil, fmt.Errorf("watchdog.backoff must be >= 1")
	}
	if cfg.Watchdog.MaxCooldownMS < cfg.Watchdog.CooldownMS {
		return nil, fmt.Errorf("watchdog.max_cooldown_ms must be >= watchdog.cooldown_ms")
	}
	if cfg.Watchdog.StallAfterMS <= cfg.Watchdog.IntervalMS {
		warnings = append(warnings, Warning{Message: "watchdog.stall_after_ms should exceed watchdog.interval_ms"})
	}

	if strings.TrimSpace(cfg.ASR.Model) == "" {
		return nil, fmt.Errorf("asr.model must not be empty")
	}
	if cfg.ASR.Backend == "whisper-server" {
		if err := requireLoopbackURL("asr.server_url", cfg.ASR.ServerURL); err != nil {
			return nil, err
		}
	}

	if cfg.Output.Mode == "paste" {
		switch cfg.Output.Injector {
		case "command":
			if len(cfg.Output.PasteCmd.Argv) == 0 {
				return nil, fmt.Errorf("output.paste_cmd must not be empty when output.injector=command")
			}
		default:
			if strings.TrimSpace(cfg.Output.Shortcut) == "" {
				return nil, fmt.Errorf("output.shortcut must not be empty when output.injector=%s", cfg.Output.Injector)
			}
		}
	}

	if cfg.Clipboard.Backend == "command" {
		if len(cfg.Clipboard.Copy.Argv) == 0 {
			return nil, fmt.Errorf("clipboard.copy_cmd must not be empty")
		}
		if len(cfg.Clipboard.Paste.Argv) == 0 {
			return nil, fmt.Errorf("clipboard.paste_cmd must not be empty")
		}
		if len(cfg.Clipboard.Clear.Argv) == 0 {
			warnings = append(warnings, Warning{Message: "clipboard.clear_cmd is empty; an originally empty clipboard is restored as an empty string"})
		}
	}

	if err := requireLoopbackAddr("hud.listen", cfg.HUD.Listen); err != nil {
		return nil, err
	}
	if err := requireLoopbackAddr("metrics.listen", cfg.Metrics.Listen); err != nil {
		return nil, err
	}

	return warnings, nil
}

func oneOf(key, value string, allowed []string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("%s must be one of: %s", key, strings.Join(allowed, ", "))
	}
	return nil
}

func requireLoopbackURL(key, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if parsed.Scheme != "http" {
		return fmt.Errorf("%s must use http scheme", key)
	}
	if !isLoopbackHost(parsed.Hostname()) {
		return fmt.Errorf("%s must point at a loopback host", key)
	}
	return nil
}

// requireLoopbackAddr accepts an empty address (listener disabled).
func requireLoopbackAddr(key, addr string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if !isLoopbackHost(host) {
		return fmt.Errorf("%s must bind a loopback address", key)
	}
	return nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
