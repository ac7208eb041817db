package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/atotto/clipboard"
)

// ErrClearUnsupported means the backend cannot empty the clipboard, so a
// snapshot of an empty clipboard cannot be restored exactly.
var ErrClearUnsupported = errors.New("clipboard clear not configured")

// Clipboard reads and replaces the text selection.
type Clipboard interface {
	Read(ctx context.Context) (Snapshot, error)
	Write(ctx context.Context, text string) error
	Clear(ctx context.Context) error
}

// CommandClipboard shells out to clipboard tools such as wl-copy/wl-paste.
type CommandClipboard struct {
	Copy  []string
	Paste []string
	// ClearArgv empties the clipboard. Nil means clearing is unsupported.
	ClearArgv []string
}

// Read treats a paste command that exits non-zero with no output as an
// empty clipboard, which is how wl-paste reports it.
func (c CommandClipboard) Read(ctx context.Context) (Snapshot, error) {
	if len(c.Paste) == 0 {
		return Snapshot{}, fmt.Errorf("command argv cannot be empty")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Paste[0], c.Paste[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return Snapshot{Text: stdout.String(), Present: true}, nil
	case errors.As(err, &exitErr) && stdout.Len() == 0 && ctx.Err() == nil:
		return Snapshot{}, nil
	default:
		return Snapshot{}, fmt.Errorf("run %s: %w", c.Paste[0], err)
	}
}

func (c CommandClipboard) Write(ctx context.Context, text string) error {
	return runCommandWithInput(ctx, c.Copy, text)
}

func (c CommandClipboard) Clear(ctx context.Context) error {
	if len(c.ClearArgv) == 0 {
		return ErrClearUnsupported
	}
	return runCommandWithInput(ctx, c.ClearArgv, "")
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}
	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

// SystemClipboard uses whichever clipboard tool atotto/clipboard finds
// (wl-clipboard, xclip or xsel).
type SystemClipboard struct{}

func (SystemClipboard) Read(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if clipboard.Unsupported {
		return Snapshot{}, errors.New("no system clipboard utility found")
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return Snapshot{}, fmt.Errorf("read system clipboard: %w", err)
	}
	return Snapshot{Text: text, Present: text != ""}, nil
}

func (SystemClipboard) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write system clipboard: %w", err)
	}
	return nil
}

func (s SystemClipboard) Clear(ctx context.Context) error {
	return s.Write(ctx, "")
}
