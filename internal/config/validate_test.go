package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "hotkey source", mutate: func(c *Config) { c.Hotkey.Source = "x11" }, wantErr: "hotkey.source must be one of"},
		{name: "hotkey mode", mutate: func(c *Config) { c.Hotkey.Mode = "" }, wantErr: "hotkey.mode must not be empty"},
		{name: "evdev binding", mutate: func(c *Config) { c.Hotkey.Binding = " " }, wantErr: "hotkey.binding must not be empty"},
		{name: "sensitivity", mutate: func(c *Config) { c.VAD.Sensitivity = 1.5 }, wantErr: "vad.sensitivity"},
		{name: "onset", mutate: func(c *Config) { c.VAD.OnsetFrames = 0 }, wantErr: "vad.onset_frames must be > 0"},
		{name: "preroll", mutate: func(c *Config) { c.VAD.PreRollMS = -1 }, wantErr: "vad.pre_roll_ms must be >= 0"},
		{name: "backoff", mutate: func(c *Config) { c.Watchdog.Backoff = 0.5 }, wantErr: "watchdog.backoff"},
		{name: "max cooldown", mutate: func(c *Config) { c.Watchdog.MaxCooldownMS = 10 }, wantErr: "watchdog.max_cooldown_ms"},
		{name: "asr model", mutate: func(c *Config) { c.ASR.Model = "" }, wantErr: "asr.model must not be empty"},
		{name: "server url scheme", mutate: func(c *Config) {
			c.ASR.Backend = "whisper-server"
			c.ASR.ServerURL = "https://127.0.0.1:8178"
		}, wantErr: "http scheme"},
		{name: "server url remote", mutate: func(c *Config) {
			c.ASR.Backend = "whisper-server"
			c.ASR.ServerURL = "http://10.0.0.2:8178"
		}, wantErr: "loopback host"},
		{name: "command injector", mutate: func(c *Config) { c.Output.Injector = "command" }, wantErr: "output.paste_cmd must not be empty"},
		{name: "shortcut", mutate: func(c *Config) { c.Output.Shortcut = "" }, wantErr: "output.shortcut must not be empty"},
		{name: "clipboard copy", mutate: func(c *Config) { c.Clipboard.Copy = CommandConfig{} }, wantErr: "clipboard.copy_cmd"},
		{name: "hud listen", mutate: func(c *Config) { c.HUD.Listen = "0.0.0.0:7341" }, wantErr: "hud.listen must bind a loopback"},
		{name: "metrics listen", mutate: func(c *Config) { c.Metrics.Listen = "nonsense" }, wantErr: "invalid metrics.listen"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.VAD.PerformanceHangoverMS = cfg.VAD.HangoverMS + 1
	cfg.Clipboard.Clear = CommandConfig{}
	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
}

func TestValidateEmitModeSkipsShortcut(t *testing.T) {
	cfg := Default()
	cfg.Output.Mode = "emit"
	cfg.Output.Shortcut = ""
	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateAcceptsLoopbackListeners(t *testing.T) {
	cfg := Default()
	cfg.HUD.Listen = "localhost:7341"
	cfg.Metrics.Listen = "[::1]:9464"
	cfg.ASR.Backend = "whisper-server"
	_, err := Validate(cfg)
	require.NoError(t, err)
}
