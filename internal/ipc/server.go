package ipc

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

const (
	maxConcurrentConns = 4
	maxRequestBytes    = 4096
	connTimeout        = 10 * time.Second
)

// Server is the Stasis Unix-socket command server. One connection is
// accepted, read to completion, dispatched, and answered before the
// connection is closed — clients write their command and half-close the
// write side, exactly like a single HTTP-less RPC.
type Server struct {
	socketPath string
	dispatcher *Dispatcher
	log        *zap.Logger
	sem        chan struct{}
}

// NewServer builds a Server bound to socketPath, dispatching every
// accepted connection's command line through dispatcher.
func NewServer(socketPath string, dispatcher *Dispatcher, log *zap.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		dispatcher: dispatcher,
		log:        log,
		sem:        make(chan struct{}, maxConcurrentConns),
	}
}

// ListenAndServe enforces single-instance by bind-or-connect: if another
// process is already listening on socketPath, ListenAndServe returns an
// error instead of stealing the socket out from under it. Otherwise it
// removes the stale socket file left behind by a prior unclean exit,
// binds, and accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if conn, err := net.DialTimeout("unix", s.socketPath, 200*time.Millisecond); err == nil {
		conn.Close()
		return fmt.Errorf("ipc: another instance is already listening on %q", s.socketPath)
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: remove stale socket %q: %w", s.socketPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("ipc: mkdir %q: %w", filepath.Dir(s.socketPath), err)
	}

	lis, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen %q: %w", s.socketPath, err)
	}
	defer lis.Close()

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("ipc: chmod %q: %w", s.socketPath, err)
	}

	s.log.Info("ipc socket listening", zap.String("path", s.socketPath))

	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.log.Error("ipc: accept error", zap.Error(err))
				continue
			}
		}

		select {
		case s.sem <- struct{}{}:
		default:
			s.log.Warn("ipc: max connections reached, rejecting")
			_ = conn.Close()
			continue
		}

		go func(c net.Conn) {
			defer func() { <-s.sem }()
			defer c.Close()
			s.handleConn(c)
		}(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(connTimeout))

	buf := make([]byte, maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && err != io.EOF {
		s.log.Warn("ipc: read error", zap.Error(err))
		return
	}
	// A request may arrive in more than one Read if the client trickles
	// bytes; keep reading until EOF, the deadline, or the buffer fills.
	for n < len(buf) && err != io.EOF {
		var more int
		more, err = conn.Read(buf[n:])
		n += more
	}

	line := string(buf[:n])
	resp := s.dispatcher.Dispatch(line)

	if _, err := io.WriteString(conn, resp); err != nil {
		s.log.Warn("ipc: write error", zap.Error(err))
	}
}
