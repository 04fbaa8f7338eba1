package simulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-msgcam/logger"
)

// Server serves the MSG camera protocol over TCP. Every accepted connection
// drives its own Device.
type Server struct {
	cfg    *config
	logger logger.Logger

	mu       sync.Mutex
	listener net.Listener

	conns    *xsync.MapOf[uint64, net.Conn]
	nextID   atomic.Uint64
	shutdown atomic.Bool
	wg       sync.WaitGroup
}

// NewServer creates a server; opts configure the devices it spawns.
func NewServer(opts ...Option) (*Server, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:    cfg,
		logger: cfg.logger,
		conns:  xsync.NewMapOf[uint64, net.Conn](),
	}, nil
}

// Listen binds addr, e.g. "127.0.0.1:0".
func (s *Server) Listen(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.logger.Error("simulator: failed to listen", "address", addr, "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = ln.Close()
		return errors.New("simulator: already listening")
	}
	s.listener = ln
	s.logger.Info("simulator: listening", "address", ln.Addr())

	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("simulator: Serve called before Listen")
	}

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shutdown.Load() {
				return nil
			}
			s.logger.Error("simulator: accept failed", "error", err)

			return fmt.Errorf("simulator: accept: %w", err)
		}
		if s.shutdown.Load() {
			_ = conn.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn serves one connection with a fresh Device and closes it on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	id := s.nextID.Add(1)
	s.conns.Store(id, conn)
	defer func() {
		s.conns.Delete(id)
		_ = conn.Close()
	}()

	log := s.logger.With("conn_id", id, "remote_address", conn.RemoteAddr().String())

	dev, err := newDevice(s.cfg)
	if err != nil {
		log.Error("simulator: create device", "error", err)
		return
	}
	log.Debug("simulator: connection accepted")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			log.Debug("simulator: connection closed", "error", err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		seq := fields[0]
		if len(fields) < 2 {
			if !writeResponse(w, seq, nak("missing verb")) {
				return
			}
			continue
		}

		resp := dev.Handle(fields[1:])
		log.Debug("simulator: request", "request", strings.TrimSpace(line), "reply", strings.Join(resp.Lines, " | "), "block", len(resp.Block))

		if !writeResponse(w, seq, resp) {
			return
		}
	}
}

func writeResponse(w *bufio.Writer, seq string, resp Response) bool {
	for _, l := range resp.Lines {
		if _, err := fmt.Fprintf(w, "%s %s\n", seq, l); err != nil {
			return false
		}
	}
	if len(resp.Block) > 0 {
		if _, err := w.Write(resp.Block); err != nil {
			return false
		}
	}

	return w.Flush() == nil
}

// ConnCount returns the number of open connections.
func (s *Server) ConnCount() int { return s.conns.Size() }

// Close stops accepting, closes every open connection and waits for their
// handlers to return.
func (s *Server) Close() error {
	if !s.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mu.Unlock()

	s.conns.Range(func(_ uint64, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})
	s.wg.Wait()

	return err
}
