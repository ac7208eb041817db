// Package ipc is the daemon's unix-socket control protocol: one JSON
// request line in, one JSON response line out.
package ipc

import (
	"fmt"

	"github.com/rbright/quill/internal/hud"
)

const (
	CommandPress   = "press"
	CommandRelease = "release"
	CommandToggle  = "toggle"
	CommandStop    = "stop"
	CommandStatus  = "status"
	CommandSecure  = "secure"
	CommandReplay  = "replay"
)

var commands = map[string]bool{
	CommandPress:   true,
	CommandRelease: true,
	CommandToggle:  true,
	CommandStop:    true,
	CommandStatus:  true,
	CommandSecure:  true,
	CommandReplay:  true,
}

type Request struct {
	Command string `json:"command"`
	// Secure carries the secure-field signal for CommandSecure.
	Secure *bool `json:"secure,omitempty"`
}

// Validate rejects unknown commands and a secure command without a value.
func (r Request) Validate() error {
	if !commands[r.Command] {
		return fmt.Errorf("unknown command %q", r.Command)
	}
	if r.Command == CommandSecure && r.Secure == nil {
		return fmt.Errorf("secure command requires a secure value")
	}
	return nil
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Hud     string `json:"hud,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`

	Readiness string `json:"readiness,omitempty"`
	Model     string `json:"model,omitempty"`
	Reason    string `json:"reason,omitempty"`

	Replay *hud.Snapshot `json:"replay,omitempty"`
}
