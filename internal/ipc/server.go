package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

const (
	maxRequestBytes = 64 << 10
	// requestTimeout bounds one round trip, including a handler that waits
	// on the session loop.
	requestTimeout = 5 * time.Second
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve accepts unix-socket clients until context cancellation or listener close.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				wg.Wait()
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler)
		}()
	}
}

// serveConn answers exactly one request on c. A handler panic is reported
// to the client instead of taking the daemon down.
func serveConn(ctx context.Context, c net.Conn, handler Handler) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(requestTimeout))

	reply := func(resp Response) { _ = json.NewEncoder(c).Encode(resp) }
	fail := func(format string, args ...any) {
		reply(Response{Error: fmt.Sprintf(format, args...)})
	}

	line, err := bufio.NewReaderSize(io.LimitReader(c, maxRequestBytes), 1024).ReadBytes('\n')
	if err != nil {
		fail("read request: %v", err)
		return
	}
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		fail("decode request: %v", err)
		return
	}
	if err := req.Validate(); err != nil {
		fail("%v", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			fail("command %q panicked: %v", req.Command, r)
		}
	}()
	reply(handler.Handle(ctx, req))
}
