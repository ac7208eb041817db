// Package hypr drives Hyprland through hyprctl.
package hypr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Client runs hyprctl. The zero value uses hyprctl from PATH.
type Client struct {
	Bin string
}

// Window is the subset of activewindow fields used for paste targeting.
type Window struct {
	Address string `json:"address"`
	Class   string `json:"class"`
	Title   string `json:"title"`
}

// SessionActive reports whether the process runs inside a Hyprland session.
func SessionActive() bool {
	return strings.TrimSpace(os.Getenv("HYPRLAND_INSTANCE_SIGNATURE")) != ""
}

// ActiveWindow returns the focused window. An empty address means nothing
// is focused and is reported as an error.
func (c Client) ActiveWindow(ctx context.Context) (Window, error) {
	out, err := c.output(ctx, "-j", "activewindow")
	if err != nil {
		return Window{}, err
	}
	var w Window
	if err := json.Unmarshal(out, &w); err != nil {
		return Window{}, fmt.Errorf("decode hyprctl activewindow json: %w", err)
	}
	w.Address = strings.TrimSpace(w.Address)
	w.Class = strings.TrimSpace(w.Class)
	w.Title = strings.TrimSpace(w.Title)
	if w.Address == "" {
		return Window{}, fmt.Errorf("hyprctl activewindow returned empty address")
	}
	return w, nil
}

// SendShortcut dispatches "mods,key" to the window at address.
func (c Client) SendShortcut(ctx context.Context, chord, address string) error {
	chord = strings.TrimSpace(chord)
	if chord == "" {
		return fmt.Errorf("sendshortcut requires a non-empty chord")
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("sendshortcut requires a window address")
	}
	return c.run(ctx, "--quiet", "dispatch", "sendshortcut", chord+",address:"+address)
}

// Notification icons understood by hyprctl notify.
const (
	IconWarning = 0
	IconInfo    = 1
	IconHint    = 2
	IconError   = 3
	IconOK      = 5
)

type Notification struct {
	Icon      int
	TimeoutMS int
	Color     string
	Text      string
}

func (c Client) Notify(ctx context.Context, n Notification) error {
	color := strings.TrimSpace(n.Color)
	if color == "" {
		color = "rgb(89b4fa)"
	}
	return c.run(ctx, "--quiet", "dispatch", "notify",
		strconv.Itoa(n.Icon), strconv.Itoa(n.TimeoutMS), color, n.Text)
}

func (c Client) DismissNotify(ctx context.Context) error {
	return c.run(ctx, "--quiet", "dispatch", "dismissnotify")
}

func (c Client) run(ctx context.Context, args ...string) error {
	_, err := c.output(ctx, args...)
	return err
}

func (c Client) output(ctx context.Context, args ...string) ([]byte, error) {
	bin := c.Bin
	if bin == "" {
		bin = "hyprctl"
	}
	out, err := exec.CommandContext(ctx, bin, args...).CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("hyprctl %v failed: %w", args, err)
		}
		return nil, fmt.Errorf("hyprctl %v failed: %w (%s)", args, err, trimmed)
	}
	return out, nil
}
