package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/fsm"
	"github.com/rbright/quill/internal/hotkey"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/ipc"
	"github.com/rbright/quill/internal/session"
)

type fakeController struct {
	calls  []string
	secure *bool
	status session.Status
	err    error
}

func (c *fakeController) record(name string) (session.Status, error) {
	c.calls = append(c.calls, name)
	return c.status, c.err
}

func (c *fakeController) Press(context.Context) (session.Status, error)   { return c.record("press") }
func (c *fakeController) Release(context.Context) (session.Status, error) { return c.record("release") }
func (c *fakeController) Toggle(context.Context) (session.Status, error)  { return c.record("toggle") }
func (c *fakeController) Stop(context.Context) (session.Status, error)    { return c.record("stop") }
func (c *fakeController) Status(context.Context) (session.Status, error)  { return c.record("status") }

func (c *fakeController) SetSecure(_ context.Context, on bool) (session.Status, error) {
	c.secure = &on
	return c.record("secure")
}

type nopSource struct{}

func (nopSource) Events() <-chan hotkey.Event { return nil }
func (nopSource) Close() error                { return nil }

func TestHandlerRoutesCommands(t *testing.T) {
	ctl := &fakeController{status: session.Status{
		State:     fsm.StateListening,
		Hud:       hud.StateListening,
		Readiness: asr.Readiness{State: asr.StateReady, Model: asr.Model{ID: "base.en", Backend: "whisper"}},
	}}
	h := newHandler(ctl, hud.NewHub(nil), nopSource{}, nil)
	ctx := context.Background()

	for _, cmd := range []string{ipc.CommandPress, ipc.CommandRelease, ipc.CommandToggle, ipc.CommandStop, ipc.CommandStatus} {
		resp := h.Handle(ctx, ipc.Request{Command: cmd})
		require.True(t, resp.OK, cmd)
		require.Equal(t, "listening", resp.State)
		require.Equal(t, "listening", resp.Hud)
		require.Equal(t, "ready", resp.Readiness)
		require.Equal(t, "whisper/base.en", resp.Model)
		require.Nil(t, resp.Replay)
	}
	require.Equal(t, []string{"press", "release", "toggle", "stop", "status"}, ctl.calls)

	on := true
	resp := h.Handle(ctx, ipc.Request{Command: ipc.CommandSecure, Secure: &on})
	require.True(t, resp.OK)
	require.NotNil(t, ctl.secure)
	require.True(t, *ctl.secure)
}

func TestHandlerReplayIncludesHubSnapshot(t *testing.T) {
	hub := hud.NewHub(nil)
	hub.SetState(hud.StateAsrError, "model missing")
	hub.Emit(hud.Event{Kind: hud.KindReadiness, Reason: "error"})

	h := newHandler(&fakeController{}, hub, nopSource{}, nil)
	resp := h.Handle(context.Background(), ipc.Request{Command: ipc.CommandReplay})
	require.True(t, resp.OK)
	require.NotNil(t, resp.Replay)
	require.Equal(t, hud.StateAsrError, resp.Replay.Current.State)
	require.Len(t, resp.Replay.Events, 1)
	require.Equal(t, hud.KindReadiness, resp.Replay.Events[0].Kind)
}

func TestHandlerFeedsCompositorSource(t *testing.T) {
	ctl := &fakeController{}
	src := hotkey.NewCompositorSource()
	t.Cleanup(func() { _ = src.Close() })

	h := newHandler(ctl, hud.NewHub(nil), src, nil)
	ctx := context.Background()

	require.True(t, h.Handle(ctx, ipc.Request{Command: ipc.CommandPress}).OK)
	require.True(t, h.Handle(ctx, ipc.Request{Command: ipc.CommandPress}).OK)
	require.True(t, h.Handle(ctx, ipc.Request{Command: ipc.CommandRelease}).OK)

	require.Equal(t, hotkey.Pressed, (<-src.Events()).Kind)
	require.Equal(t, hotkey.Released, (<-src.Events()).Kind)
	require.Empty(t, src.Events())
	require.Equal(t, []string{"status", "status", "status"}, ctl.calls)
}

func TestHandlerReportsControllerErrors(t *testing.T) {
	ctl := &fakeController{err: errors.New("session coordinator stopped")}
	h := newHandler(ctl, hud.NewHub(nil), nopSource{}, nil)

	resp := h.Handle(context.Background(), ipc.Request{Command: ipc.CommandToggle})
	require.False(t, resp.OK)
	require.Equal(t, "session coordinator stopped", resp.Error)
}

func TestStatusResponseIncludesLastOutcome(t *testing.T) {
	resp := statusResponse(session.Status{
		State: fsm.StateIdle,
		Hud:   hud.StateIdle,
		Last:  session.Result{Outcome: session.OutcomeNoSpeech},
	})
	require.Equal(t, "last session: no-speech", resp.Message)
	require.Empty(t, resp.Model)
}
