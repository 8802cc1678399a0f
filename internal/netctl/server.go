// Package netctl exposes the control protocol on a UDP port. A datagram
// carries one or more newline separated lines; the reply datagram holds
// their output followed by an error line for each line that failed.
package netctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
)

// MaxDatagram bounds both requests and replies.
const MaxDatagram = 8192

// MaxPeers bounds the per-address sessions kept alive.
const MaxPeers = 64

// Executor runs one protocol line and returns its textual output.
type Executor interface {
	Exec(ctx context.Context, line string) (string, error)
}

// Server answers control datagrams. Each remote address gets its own
// Executor, so the current voice and captures of one peer never leak into
// another's.
type Server struct {
	conn net.PacketConn
	open func() Executor
	log  *slog.Logger

	mu    sync.Mutex
	peers map[string]Executor
}

// Listen binds addr ("host:port", port 0 picks one). open is called once per
// new peer.
func Listen(addr string, open func() Executor, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return &Server{conn: conn, open: open, log: logger, peers: make(map[string]Executor)}, nil
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }
func (s *Server) Close() error   { return s.conn.Close() }

// Serve handles datagrams until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	buf := make([]byte, MaxDatagram)
	var reply bytes.Buffer
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read udp: %w", err)
		}
		reply.Reset()
		s.handle(ctx, s.peer(addr), string(buf[:n]), &reply)
		if reply.Len() > MaxDatagram {
			reply.Truncate(MaxDatagram)
		}
		if _, err := s.conn.WriteTo(reply.Bytes(), addr); err != nil {
			s.log.Warn("udp reply failed", "peer", addr.String(), "err", err)
		}
	}
}

func (s *Server) handle(ctx context.Context, ex Executor, body string, reply *bytes.Buffer) {
	for line := range strings.SplitSeq(body, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out, err := ex.Exec(ctx, line)
		reply.WriteString(out)
		if err != nil {
			s.log.Debug("udp command failed", "line", line, "err", err)
			fmt.Fprintf(reply, "error: %v\n", err)
		}
	}
	if reply.Len() == 0 {
		reply.WriteString("ok\n")
	}
}

func (s *Server) peer(addr net.Addr) Executor {
	key := addr.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex, ok := s.peers[key]; ok {
		return ex
	}
	if len(s.peers) >= MaxPeers {
		for k := range s.peers {
			delete(s.peers, k)
			break
		}
	}
	ex := s.open()
	s.peers[key] = ex
	s.log.Info("udp peer", "addr", key)
	return ex
}
