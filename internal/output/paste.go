package output

import (
	"context"
	"fmt"
	"time"

	"github.com/rbright/quill/internal/hypr"
)

// Paster sends the paste chord to the focused application. confirmed is
// false when the paster cannot tell whether the chord landed.
type Paster interface {
	Paste(ctx context.Context, sc Shortcut) (confirmed bool, err error)
}

// HyprPaster dispatches through hyprctl sendshortcut to the active window
// and confirms that focus did not move while the chord was delivered.
type HyprPaster struct {
	Client   hypr.Client
	Attempts int
	Delay    time.Duration
}

func (p HyprPaster) Paste(ctx context.Context, sc Shortcut) (bool, error) {
	before, err := p.activeWindowWithRetry(ctx)
	if err != nil {
		return false, err
	}
	if err := p.Client.SendShortcut(ctx, sc.HyprChord(), before.Address); err != nil {
		return false, err
	}

	// The chord is out; a failed or late focus check only loses confirmation.
	after, err := p.Client.ActiveWindow(ctx)
	if err != nil {
		return false, nil
	}
	return after.Address == before.Address, nil
}

func (p HyprPaster) activeWindowWithRetry(ctx context.Context) (hypr.Window, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := p.Delay
	if delay <= 0 {
		delay = 10 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		window, err := p.Client.ActiveWindow(ctx)
		if err == nil {
			return window, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return hypr.Window{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return hypr.Window{}, fmt.Errorf("resolve active window: %w", lastErr)
}

// CommandPaster runs a user command; exit status 0 counts as confirmed.
type CommandPaster struct {
	Argv []string
}

func (p CommandPaster) Paste(ctx context.Context, _ Shortcut) (bool, error) {
	if err := runCommandWithInput(ctx, p.Argv, ""); err != nil {
		return false, err
	}
	return true, nil
}
