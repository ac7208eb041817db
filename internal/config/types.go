// Package config resolves, parses, validates, and defaults quill configuration.
package config

// Config is the fully materialized runtime configuration used by quill.
type Config struct {
	Hotkey     HotkeyConfig
	Audio      AudioConfig
	VAD        VADConfig
	ASR        ASRConfig
	Output     OutputConfig
	Clipboard  ClipboardConfig
	Transcript TranscriptConfig
	Watchdog   WatchdogConfig
	HUD        HUDConfig
	Metrics    MetricsConfig
	Log        LogConfig
	Debug      DebugConfig
}

// HotkeyConfig selects the global input source, the key binding, and how presses are consumed.
type HotkeyConfig struct {
	Source  string
	Binding string
	Mode    string
	Devices []string
}

// AudioConfig controls capture source selection and preprocessing.
type AudioConfig struct {
	Input      string
	Fallback   string
	KeepOpen   bool
	Preprocess string
}

// VADConfig controls the speech gate.
type VADConfig struct {
	Backend               string
	Sensitivity           float64
	PreRollMS             int
	OnsetFrames           int
	HangoverMS            int
	PerformanceHangoverMS int
	MinSpeechMS           int
}

// ASRConfig names the selected model and the backend that runs it.
type ASRConfig struct {
	Backend         string
	Model           string
	Precision       string
	Language        string
	ModelsDir       string
	ModelPaths      map[string]string
	ServerURL       string
	WarmupInference bool
	StatePath       string
}

// OutputConfig controls transcript injection into the focused window.
type OutputConfig struct {
	Mode                    string
	Injector                string
	Shortcut                string
	PasteCmd                CommandConfig
	ConfirmTimeoutMS        int
	SettleMS                int
	KeepTranscriptOnFailure bool
}

// ClipboardConfig selects the clipboard backend and its commands.
type ClipboardConfig struct {
	Backend string
	Copy    CommandConfig
	Paste   CommandConfig
	Clear   CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// TranscriptConfig controls transcript cleanup formatting.
type TranscriptConfig struct {
	TrailingSpace       bool
	CapitalizeSentences bool
}

// WatchdogConfig bounds stalled-ingress detection and restart behavior.
type WatchdogConfig struct {
	IntervalMS    int
	StallAfterMS  int
	CooldownMS    int
	MaxCooldownMS int
	Backoff       float64
	MaxRestarts   int
}

// HUDConfig controls presentation of state and diagnostics.
type HUDConfig struct {
	Backend        string
	Sounds         bool
	ErrorTimeoutMS int
	Listen         string
}

// MetricsConfig enables the loopback Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string
}

// LogConfig controls runtime log verbosity.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
