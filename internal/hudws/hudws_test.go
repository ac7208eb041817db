package hudws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/rbright/quill/internal/hud"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/hud"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestLateClientReceivesSnapshotThenLiveUpdates(t *testing.T) {
	hub := hud.NewHub(nil)
	hub.SetState(hud.StateWarming, "base.en")
	hub.Emit(hud.Event{Kind: hud.KindReadiness, Reason: "warming"})

	srv := httptest.NewServer(NewServer(hub, nil).Handler())
	defer srv.Close()
	conn := dial(t, srv)

	first := read(t, conn)
	require.Equal(t, TypeSnapshot, first.Type)
	require.NotNil(t, first.Snapshot)
	require.Equal(t, hud.StateWarming, first.Snapshot.Current.State)
	require.Len(t, first.Snapshot.Events, 1)

	hub.SetState(hud.StateIdle, "")
	msg := read(t, conn)
	require.Equal(t, TypeState, msg.Type)
	require.Equal(t, hud.StateIdle, msg.State.State)

	hub.Emit(hud.Event{Kind: hud.KindNoOutput, Reason: hud.ReasonNoSpeech})
	msg = read(t, conn)
	require.Equal(t, TypeEvent, msg.Type)
	require.Equal(t, hud.ReasonNoSpeech, msg.Event.Reason)
	require.Equal(t, int64(2), msg.Event.Seq)
}

func TestClientDisconnectReleasesSubscription(t *testing.T) {
	hub := hud.NewHub(nil)
	srv := httptest.NewServer(NewServer(hub, nil).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	require.Equal(t, TypeSnapshot, read(t, conn).Type)
	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	// The hub keeps publishing without blocking on the closed client.
	for i := 0; i < 100; i++ {
		hub.Emit(hud.Event{Kind: hud.KindBackpressure})
	}
}
