package netctl

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type echo struct {
	mu    sync.Mutex
	lines []string
}

func (e *echo) Exec(_ context.Context, line string) (string, error) {
	e.mu.Lock()
	e.lines = append(e.lines, line)
	e.mu.Unlock()
	switch {
	case strings.HasPrefix(line, "?"):
		return "v0 state\n", nil
	case strings.HasPrefix(line, "bad"):
		return "", errors.New("E_SYNTAX at col 1")
	}
	return "", nil
}

func startServer(t *testing.T, open func() Executor) (*Server, net.Conn) {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", open, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	conn, err := net.Dial("udp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func roundTrip(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()
	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, MaxDatagram)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(buf[:n])
}

func TestServerRepliesPerDatagram(t *testing.T) {
	ex := &echo{}
	_, conn := startServer(t, func() Executor { return ex })

	if got := roundTrip(t, conn, "v0 f440 a0.5"); got != "ok\n" {
		t.Fatalf("reply = %q, want ok", got)
	}
	got := roundTrip(t, conn, "?\nbad line\r\n\nv1 a0")
	want := "v0 state\nerror: E_SYNTAX at col 1\n"
	if got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if len(ex.lines) != 4 || ex.lines[2] != "bad line" || ex.lines[3] != "v1 a0" {
		t.Fatalf("executed lines = %q", ex.lines)
	}
}

func TestServerKeepsOneExecutorPerPeer(t *testing.T) {
	opened := 0
	var mu sync.Mutex
	_, conn := startServer(t, func() Executor {
		mu.Lock()
		opened++
		mu.Unlock()
		return &echo{}
	})
	for i := 0; i < 3; i++ {
		roundTrip(t, conn, "v1")
	}
	mu.Lock()
	defer mu.Unlock()
	if opened != 1 {
		t.Fatalf("opened %d executors for one peer", opened)
	}
}

func TestServeStopsOnClose(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", func() Executor { return &echo{} }, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background()) }()
	srv.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Close")
	}
}
