// Package hudws streams HUD state and diagnostics to loopback websocket
// clients. Each client first receives a snapshot of the cached state and
// retained diagnostics, then live updates.
package hudws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/rbright/quill/internal/hud"
)

// MessageType tags stream frames.
type MessageType string

const (
	TypeSnapshot MessageType = "snapshot"
	TypeState    MessageType = "state"
	TypeEvent    MessageType = "event"
)

// Message is one JSON frame on the stream.
type Message struct {
	Type     MessageType   `json:"type"`
	Snapshot *hud.Snapshot `json:"snapshot,omitempty"`
	State    *hud.Update   `json:"state,omitempty"`
	Event    *hud.Event    `json:"event,omitempty"`
}

const writeTimeout = 2 * time.Second

type Server struct {
	hub    *hud.Hub
	logger *slog.Logger
}

func NewServer(hub *hud.Hub, logger *slog.Logger) *Server {
	return &Server{hub: hub, logger: logger}
}

// Handler serves the stream at /hud.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hud", s.serveStream)
	return mux
}

// Serve listens on addr until ctx is done. addr must be loopback; config
// validation enforces that.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen hud stream %s: %w", addr, err)
	}
	return s.serveOn(ctx, ln)
}

func (s *Server) serveOn(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log(slog.LevelInfo, "hud stream listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log(slog.LevelWarn, "hud stream accept failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	// Subscribe before taking the snapshot so nothing published in between
	// is lost; duplicates are filtered by sequence below.
	sub := s.hub.Subscribe(32)
	defer sub.Close()
	snap := s.hub.Replay()

	ctx := conn.CloseRead(r.Context())
	if err := s.write(ctx, conn, Message{Type: TypeSnapshot, Snapshot: &snap}); err != nil {
		return
	}

	lastSeq := int64(0)
	if n := len(snap.Events); n > 0 {
		lastSeq = snap.Events[n-1].Seq
	}
	skipState := true

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case u, ok := <-sub.States():
			if !ok {
				return
			}
			if skipState {
				skipState = false
				if u == snap.Current {
					continue
				}
			}
			if err := s.write(ctx, conn, Message{Type: TypeState, State: &u}); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Seq <= lastSeq {
				continue
			}
			lastSeq = ev.Seq
			if err := s.write(ctx, conn, Message{Type: TypeEvent, Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.log(slog.LevelDebug, "hud stream write failed", "error", err.Error())
		return err
	}
	return nil
}

func (s *Server) log(level slog.Level, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Log(context.Background(), level, msg, args...)
	}
}
