package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/cli"
	"github.com/rbright/quill/internal/config"
	"github.com/rbright/quill/internal/doctor"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/ipc"
	"github.com/rbright/quill/internal/logging"
	"github.com/rbright/quill/internal/session"
	"github.com/rbright/quill/internal/version"
)

// errNotRunning is reported by client commands when no daemon owns the socket.
var errNotRunning = errors.New("quill daemon is not running (start it with `quill run`)")

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("quill"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("quill"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandRun:
		return r.runDaemon(ctx, cfgLoaded, logger)
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, doctor.DefaultDeps())
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandReplay:
		return r.commandReplay(ctx)
	case cli.CommandSecure:
		on := parsed.Secure
		return r.forwardOrFail(ctx, ipc.Request{Command: ipc.CommandSecure, Secure: &on})
	case cli.CommandPress, cli.CommandRelease, cli.CommandToggle, cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command)})
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// commandStatus prints "not running" rather than failing so it can back
// status bars.
func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: ipc.CommandStatus})
	if !handled {
		fmt.Fprintln(r.Stdout, "not running")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	writeStatus(r.Stdout, resp)
	return 0
}

func (r Runner) commandReplay(ctx context.Context) int {
	resp, ok := r.forward(ctx, ipc.Request{Command: ipc.CommandReplay})
	if !ok {
		return 1
	}
	if resp.Replay == nil {
		fmt.Fprintln(r.Stdout, "no replay available")
		return 0
	}
	writeReplay(r.Stdout, *resp.Replay)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	resp, ok := r.forward(ctx, req)
	if !ok {
		return 1
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forward(ctx context.Context, req ipc.Request) (ipc.Response, bool) {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: %v\n", errNotRunning)
		return ipc.Response{}, false
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return ipc.Response{}, false
	}
	return resp, true
}

func writeStatus(w io.Writer, resp ipc.Response) {
	fmt.Fprintf(w, "state: %s\n", orDefault(resp.State, "idle"))
	fmt.Fprintf(w, "hud: %s\n", orDefault(resp.Hud, "idle"))
	asrLine := orDefault(resp.Readiness, "unknown")
	if resp.Model != "" {
		asrLine += " (" + resp.Model + ")"
	}
	if resp.Reason != "" {
		asrLine += ": " + resp.Reason
	}
	fmt.Fprintf(w, "asr: %s\n", asrLine)
	if resp.Message != "" {
		fmt.Fprintln(w, resp.Message)
	}
}

func writeReplay(w io.Writer, snap hud.Snapshot) {
	current := string(snap.Current.State)
	if snap.Current.Detail != "" {
		current += " (" + snap.Current.Detail + ")"
	}
	fmt.Fprintf(w, "hud: %s\n", current)
	for _, ev := range snap.Events {
		line := fmt.Sprintf("#%d %s %s", ev.Seq, ev.Time.Format(time.TimeOnly), ev.Kind)
		if ev.Reason != "" {
			line += " " + ev.Reason
		}
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%q", k, ev.Fields[k])
		}
		fmt.Fprintln(w, line)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"outcome", string(result.Outcome),
		"model", result.Model.String(),
		"audio_ms", result.Audio.Milliseconds(),
		"asr_ms", result.Elapsed.Milliseconds(),
		"transcript_length", len(result.Text),
		"transcript_on_clipboard", result.Injection.TranscriptOnClipboard,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 6*time.Second)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if ipc.Unreachable(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}
