package app

import (
	"context"
	"log/slog"

	"github.com/rbright/quill/internal/hotkey"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/ipc"
	"github.com/rbright/quill/internal/session"
)

// controller is the part of the coordinator the control socket drives.
type controller interface {
	Press(ctx context.Context) (session.Status, error)
	Release(ctx context.Context) (session.Status, error)
	Toggle(ctx context.Context) (session.Status, error)
	Stop(ctx context.Context) (session.Status, error)
	SetSecure(ctx context.Context, on bool) (session.Status, error)
	Status(ctx context.Context) (session.Status, error)
}

// edgeSource receives press/release from compositor key bindings.
type edgeSource interface {
	Press(ctx context.Context) error
	Release(ctx context.Context) error
}

type handler struct {
	ctl    controller
	hub    *hud.Hub
	edges  edgeSource
	logger *slog.Logger
}

// newHandler maps control-socket commands onto the coordinator. When the
// hotkey source is the compositor, press and release are fed through it so
// they share its edge deduplication; the status returned for them can
// predate the edge.
func newHandler(ctl controller, hub *hud.Hub, source hotkey.Source, logger *slog.Logger) *handler {
	h := &handler{ctl: ctl, hub: hub, logger: logger}
	if cs, ok := source.(*hotkey.CompositorSource); ok {
		h.edges = cs
	}
	return h
}

func (h *handler) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	var (
		st  session.Status
		err error
	)
	switch req.Command {
	case ipc.CommandPress:
		st, err = h.edge(ctx, true)
	case ipc.CommandRelease:
		st, err = h.edge(ctx, false)
	case ipc.CommandToggle:
		st, err = h.ctl.Toggle(ctx)
	case ipc.CommandStop:
		st, err = h.ctl.Stop(ctx)
	case ipc.CommandSecure:
		st, err = h.ctl.SetSecure(ctx, *req.Secure)
	case ipc.CommandStatus, ipc.CommandReplay:
		st, err = h.ctl.Status(ctx)
	}
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("ipc command failed", "command", req.Command, "error", err.Error())
		}
		return ipc.Response{OK: false, Error: err.Error()}
	}

	resp := statusResponse(st)
	if req.Command == ipc.CommandReplay {
		snap := h.hub.Replay()
		resp.Replay = &snap
	}
	return resp
}

func (h *handler) edge(ctx context.Context, pressed bool) (session.Status, error) {
	if h.edges == nil {
		if pressed {
			return h.ctl.Press(ctx)
		}
		return h.ctl.Release(ctx)
	}
	var err error
	if pressed {
		err = h.edges.Press(ctx)
	} else {
		err = h.edges.Release(ctx)
	}
	if err != nil {
		return session.Status{}, err
	}
	return h.ctl.Status(ctx)
}

func statusResponse(st session.Status) ipc.Response {
	resp := ipc.Response{
		OK:        true,
		State:     string(st.State),
		Hud:       string(st.Hud),
		Readiness: string(st.Readiness.State),
		Reason:    st.Readiness.Reason,
	}
	if !st.Readiness.Model.IsZero() {
		resp.Model = st.Readiness.Model.String()
	}
	if st.Last.Outcome != "" {
		resp.Message = "last session: " + string(st.Last.Outcome)
	}
	return resp
}
