// Package doctor runs runtime readiness diagnostics for config, tools, devices, models, and the daemon.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/config"
	"github.com/rbright/quill/internal/readyz"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Deps holds the live lookups that touch devices or the daemon. Tests
// replace them.
type Deps struct {
	SelectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	Ready        func(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error)
	InputGlob    string
	Uinput       string
}

// DefaultDeps talks to PulseAudio, the readiness socket and /dev.
func DefaultDeps() Deps {
	return Deps{
		SelectDevice: audio.SelectDevice,
		Ready: func(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
			path, err := readyz.SocketPath()
			if err != nil {
				return healthpb.HealthCheckResponse_UNKNOWN, err
			}
			return readyz.Check(ctx, path, time.Second)
		},
		InputGlob: "/dev/input/event*",
		Uinput:    "/dev/uinput",
	}
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, deps Deps) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	needsHypr := cfg.Hotkey.Source == "compositor" || cfg.HUD.Backend == "hypr" ||
		(cfg.Output.Mode == "paste" && cfg.Output.Injector == "hypr")
	if needsHypr {
		checks = append(checks, checkEnv("XDG_SESSION_TYPE", func(v string) bool {
			return strings.EqualFold(strings.TrimSpace(v), "wayland")
		}, "session type is wayland", "expected XDG_SESSION_TYPE=wayland"))

		checks = append(checks, checkEnv("HYPRLAND_INSTANCE_SIGNATURE", func(v string) bool {
			return strings.TrimSpace(v) != ""
		}, "Hyprland session detected", "HYPRLAND_INSTANCE_SIGNATURE is empty"))
	}

	if cfg.Hotkey.Source == "evdev" {
		checks = append(checks, checkInputDevices(deps.InputGlob))
	}

	if cfg.Output.Mode == "paste" {
		checks = append(checks, checkClipboard(cfg.Clipboard)...)
		switch cfg.Output.Injector {
		case "command":
			checks = append(checks, checkCommand(cfg.Output.PasteCmd.Argv, "output.paste_cmd"))
		case "uinput":
			checks = append(checks, checkWritable("uinput", deps.Uinput))
		default:
			checks = append(checks, checkBinary("hyprctl", "paste injector requires hyprctl"))
		}
	}

	checks = append(checks, checkAudioSelection(ctx, cfg, deps.SelectDevice))
	checks = append(checks, checkModel(ctx, cfg))
	checks = append(checks, checkDaemon(ctx, deps.Ready))

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	msg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		msg = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		msg += fmt.Sprintf(", %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: msg}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkClipboard(cfg config.ClipboardConfig) []Check {
	if cfg.Backend == "system" {
		if clipboard.Unsupported {
			return []Check{{Name: "clipboard", Pass: false, Message: "no system clipboard utility found (wl-clipboard, xclip or xsel)"}}
		}
		return []Check{{Name: "clipboard", Pass: true, Message: "system clipboard available"}}
	}
	checks := []Check{
		checkCommand(cfg.Copy.Argv, "clipboard.copy_cmd"),
		checkCommand(cfg.Paste.Argv, "clipboard.paste_cmd"),
	}
	if len(cfg.Clear.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Clear.Argv, "clipboard.clear_cmd"))
	}
	return checks
}

// checkWritable opens path for writing, the access uinput injection needs.
func checkWritable(name, path string) Check {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("cannot open %s for writing: %v", path, err)}
	}
	_ = f.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", path)}
}

func checkInputDevices(pattern string) Check {
	paths, err := filepath.Glob(pattern)
	if err != nil || len(paths) == 0 {
		return Check{Name: "hotkey.evdev", Pass: false, Message: fmt.Sprintf("no input devices match %s", pattern)}
	}
	readable := 0
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		_ = f.Close()
		readable++
	}
	if readable == 0 {
		return Check{Name: "hotkey.evdev", Pass: false, Message: fmt.Sprintf("none of %d input devices are readable (is the user in the input group?)", len(paths))}
	}
	return Check{Name: "hotkey.evdev", Pass: true, Message: fmt.Sprintf("%d of %d input devices readable", readable, len(paths))}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(
	ctx context.Context,
	cfg config.Config,
	selectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error),
) Check {
	selection, err := selectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkModel(ctx context.Context, cfg config.Config) Check {
	dir, err := config.ModelsDir(cfg)
	if err != nil {
		return Check{Name: "asr.model", Pass: false, Message: err.Error()}
	}
	model := asr.ModelFromConfig(cfg.ASR)
	path, err := asr.DirCatalog{Dir: dir, Paths: cfg.ASR.ModelPaths}.EnsurePresent(ctx, model)
	if err != nil {
		return Check{Name: "asr.model", Pass: false, Message: err.Error()}
	}
	return Check{Name: "asr.model", Pass: true, Message: fmt.Sprintf("%s at %s", model, path)}
}

func checkDaemon(ctx context.Context, ready func(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error)) Check {
	status, err := ready(ctx)
	if err != nil {
		return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("not reachable: %v", err)}
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		return Check{Name: "daemon", Pass: false, Message: fmt.Sprintf("running, asr %s", strings.ToLower(status.String()))}
	}
	return Check{Name: "daemon", Pass: true, Message: "running, asr ready"}
}
