package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Hotkey     *jsoncHotkey     `json:"hotkey"`
	Audio      *jsoncAudio      `json:"audio"`
	VAD        *jsoncVAD        `json:"vad"`
	ASR        *jsoncASR        `json:"asr"`
	Output     *jsoncOutput     `json:"output"`
	Clipboard  *jsoncClipboard  `json:"clipboard"`
	Transcript *jsoncTranscript `json:"transcript"`
	Watchdog   *jsoncWatchdog   `json:"watchdog"`
	HUD        *jsoncHUD        `json:"hud"`
	Metrics    *jsoncMetrics    `json:"metrics"`
	Log        *jsoncLog        `json:"log"`
	Debug      *jsoncDebug      `json:"debug"`
}

type jsoncHotkey struct {
	Source  *string          `json:"source"`
	Binding *string          `json:"binding"`
	Mode    *string          `json:"mode"`
	Devices *jsoncStringList `json:"devices"`
}

type jsoncAudio struct {
	Input      *string `json:"input"`
	Fallback   *string `json:"fallback"`
	KeepOpen   *bool   `json:"keep_open"`
	Preprocess *string `json:"preprocess"`
}

type jsoncVAD struct {
	Backend               *string  `json:"backend"`
	Sensitivity           *float64 `json:"sensitivity"`
	PreRollMS             *int     `json:"pre_roll_ms"`
	OnsetFrames           *int     `json:"onset_frames"`
	HangoverMS            *int     `json:"hangover_ms"`
	PerformanceHangoverMS *int     `json:"performance_hangover_ms"`
	MinSpeechMS           *int     `json:"min_speech_ms"`
}

type jsoncASR struct {
	Backend         *string           `json:"backend"`
	Model           *string           `json:"model"`
	Precision       *string           `json:"precision"`
	Language        *string           `json:"language"`
	ModelsDir       *string           `json:"models_dir"`
	ModelPaths      map[string]string `json:"model_paths"`
	ServerURL       *string           `json:"server_url"`
	WarmupInference *bool             `json:"warmup_inference"`
	StatePath       *string           `json:"state_path"`
}

type jsoncOutput struct {
	Mode                    *string `json:"mode"`
	Injector                *string `json:"injector"`
	Shortcut                *string `json:"shortcut"`
	PasteCmd                *string `json:"paste_cmd"`
	ConfirmTimeoutMS        *int    `json:"confirm_timeout_ms"`
	SettleMS                *int    `json:"settle_ms"`
	KeepTranscriptOnFailure *bool   `json:"keep_transcript_on_failure"`
}

type jsoncClipboard struct {
	Backend *string `json:"backend"`
	Copy    *string `json:"copy_cmd"`
	Paste   *string `json:"paste_cmd"`
	Clear   *string `json:"clear_cmd"`
}

type jsoncTranscript struct {
	TrailingSpace       *bool `json:"trailing_space"`
	CapitalizeSentences *bool `json:"capitalize_sentences"`
}

type jsoncWatchdog struct {
	IntervalMS    *int     `json:"interval_ms"`
	StallAfterMS  *int     `json:"stall_after_ms"`
	CooldownMS    *int     `json:"cooldown_ms"`
	MaxCooldownMS *int     `json:"max_cooldown_ms"`
	Backoff       *float64 `json:"backoff"`
	MaxRestarts   *int     `json:"max_restarts"`
}

type jsoncHUD struct {
	Backend        *string `json:"backend"`
	Sounds         *bool   `json:"sounds"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
	Listen         *string `json:"listen"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

// jsoncStringList accepts either a JSON string array or a comma-delimited string.
type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = compactList(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = compactList(strings.Split(single, ","))
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func compactList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	cfg.ASR.ModelPaths = cloneStringMap(base.ASR.ModelPaths)
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if h := payload.Hotkey; h != nil {
		setTrimmed(&cfg.Hotkey.Source, h.Source)
		setTrimmed(&cfg.Hotkey.Binding, h.Binding)
		setTrimmed(&cfg.Hotkey.Mode, h.Mode)
		if h.Devices != nil {
			cfg.Hotkey.Devices = append([]string(nil), (*h.Devices)...)
		}
	}

	if a := payload.Audio; a != nil {
		set(&cfg.Audio.Input, a.Input)
		set(&cfg.Audio.Fallback, a.Fallback)
		set(&cfg.Audio.KeepOpen, a.KeepOpen)
		setTrimmed(&cfg.Audio.Preprocess, a.Preprocess)
	}

	if v := payload.VAD; v != nil {
		setTrimmed(&cfg.VAD.Backend, v.Backend)
		set(&cfg.VAD.Sensitivity, v.Sensitivity)
		set(&cfg.VAD.PreRollMS, v.PreRollMS)
		set(&cfg.VAD.OnsetFrames, v.OnsetFrames)
		set(&cfg.VAD.HangoverMS, v.HangoverMS)
		set(&cfg.VAD.PerformanceHangoverMS, v.PerformanceHangoverMS)
		set(&cfg.VAD.MinSpeechMS, v.MinSpeechMS)
	}

	if a := payload.ASR; a != nil {
		setTrimmed(&cfg.ASR.Backend, a.Backend)
		setTrimmed(&cfg.ASR.Model, a.Model)
		setTrimmed(&cfg.ASR.Precision, a.Precision)
		setTrimmed(&cfg.ASR.Language, a.Language)
		setTrimmed(&cfg.ASR.ModelsDir, a.ModelsDir)
		setTrimmed(&cfg.ASR.ServerURL, a.ServerURL)
		set(&cfg.ASR.WarmupInference, a.WarmupInference)
		setTrimmed(&cfg.ASR.StatePath, a.StatePath)
		for id, path := range a.ModelPaths {
			id = strings.TrimSpace(id)
			if id == "" {
				return fmt.Errorf("asr.model_paths contains an empty model id")
			}
			if cfg.ASR.ModelPaths == nil {
				cfg.ASR.ModelPaths = make(map[string]string)
			}
			cfg.ASR.ModelPaths[id] = strings.TrimSpace(path)
		}
	}

	if o := payload.Output; o != nil {
		setTrimmed(&cfg.Output.Mode, o.Mode)
		setTrimmed(&cfg.Output.Injector, o.Injector)
		setTrimmed(&cfg.Output.Shortcut, o.Shortcut)
		set(&cfg.Output.ConfirmTimeoutMS, o.ConfirmTimeoutMS)
		set(&cfg.Output.SettleMS, o.SettleMS)
		set(&cfg.Output.KeepTranscriptOnFailure, o.KeepTranscriptOnFailure)
		if err := setCommand(&cfg.Output.PasteCmd, "output.paste_cmd", o.PasteCmd); err != nil {
			return err
		}
	}

	if c := payload.Clipboard; c != nil {
		setTrimmed(&cfg.Clipboard.Backend, c.Backend)
		if err := setCommand(&cfg.Clipboard.Copy, "clipboard.copy_cmd", c.Copy); err != nil {
			return err
		}
		if err := setCommand(&cfg.Clipboard.Paste, "clipboard.paste_cmd", c.Paste); err != nil {
			return err
		}
		if err := setCommand(&cfg.Clipboard.Clear, "clipboard.clear_cmd", c.Clear); err != nil {
			return err
		}
	}

	if t := payload.Transcript; t != nil {
		set(&cfg.Transcript.TrailingSpace, t.TrailingSpace)
		set(&cfg.Transcript.CapitalizeSentences, t.CapitalizeSentences)
	}

	if w := payload.Watchdog; w != nil {
		set(&cfg.Watchdog.IntervalMS, w.IntervalMS)
		set(&cfg.Watchdog.StallAfterMS, w.StallAfterMS)
		set(&cfg.Watchdog.CooldownMS, w.CooldownMS)
		set(&cfg.Watchdog.MaxCooldownMS, w.MaxCooldownMS)
		set(&cfg.Watchdog.Backoff, w.Backoff)
		set(&cfg.Watchdog.MaxRestarts, w.MaxRestarts)
	}

	if h := payload.HUD; h != nil {
		setTrimmed(&cfg.HUD.Backend, h.Backend)
		set(&cfg.HUD.Sounds, h.Sounds)
		set(&cfg.HUD.ErrorTimeoutMS, h.ErrorTimeoutMS)
		setTrimmed(&cfg.HUD.Listen, h.Listen)
	}

	if payload.Metrics != nil {
		setTrimmed(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}
	if payload.Log != nil {
		setTrimmed(&cfg.Log.Level, payload.Log.Level)
	}
	if payload.Debug != nil {
		set(&cfg.Debug.AudioDump, payload.Debug.AudioDump)
	}

	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setCommand(dst *CommandConfig, key string, raw *string) error {
	if raw == nil {
		return nil
	}
	argv, err := parseArgv(*raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = CommandConfig{Raw: *raw, Argv: argv}
	return nil
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
