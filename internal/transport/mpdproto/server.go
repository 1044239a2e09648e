// Package mpdproto serves the MPD text protocol over TCP on top of the
// shared playback queue.
package mpdproto

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/transport/connlimit"
)

// Options tunes connection handling.
type Options struct {
	// MaxConnections caps non-loopback clients; the oldest is evicted. Zero
	// means unlimited.
	MaxConnections int
	// CommandListMax bounds the number of commands in one list.
	CommandListMax int
	// CommandListTimeout bounds the time to receive a whole list.
	CommandListTimeout time.Duration
	// WriteTimeout bounds each response write. Zero disables it.
	WriteTimeout time.Duration
}

// DefaultOptions returns the default connection limits.
func DefaultOptions() Options {
	return Options{
		MaxConnections:     10,
		CommandListMax:     1024,
		CommandListTimeout: 30 * time.Second,
		WriteTimeout:       30 * time.Second,
	}
}

// Server accepts MPD clients and runs one connection goroutine each.
type Server struct {
	client   *Client
	registry *Registry
	opts     Options
	limiter  *connlimit.Limiter

	mu    sync.Mutex
	conns map[string]net.Conn
	wg    sync.WaitGroup
}

// NewServer creates a server sharing client with every connection.
func NewServer(client *Client, registry *Registry, opts Options) *Server {
	def := DefaultOptions()
	if opts.CommandListMax <= 0 {
		opts.CommandListMax = def.CommandListMax
	}
	if opts.CommandListTimeout <= 0 {
		opts.CommandListTimeout = def.CommandListTimeout
	}
	if client.Started.IsZero() {
		client.Started = time.Now()
	}

	return &Server{
		client:   client,
		registry: registry,
		opts:     opts,
		limiter:  connlimit.New(opts.MaxConnections),
		conns:    make(map[string]net.Conn),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. On return the
// listener and every connection are closed and their goroutines finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("MPD server listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var err error
	for {
		nc, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ctx.Err() == nil && !errors.Is(acceptErr, net.ErrClosed) {
				err = fmt.Errorf("accept failed: %w", acceptErr)
			}
			break
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, nc)
		}()
	}

	ln.Close()
	s.closeAll()
	s.wg.Wait()
	log.Info().Msg("MPD server stopped")
	return err
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handle(ctx context.Context, nc net.Conn) {
	id := uuid.NewString()
	remote := nc.RemoteAddr().String()
	logger := log.With().Str("conn", id[:8]).Str("remote", remote).Logger()

	s.track(id, nc)
	defer s.untrack(id)
	defer nc.Close()

	if evicted := s.limiter.Admit(id, remote); evicted != "" {
		logger.Info().Str("evicted", evicted[:8]).Msg("Connection limit reached, evicting oldest client")
		s.evict(evicted)
	}

	logger.Info().Msg("Client connected")
	newConn(s, id, nc, logger).serve(ctx)
	logger.Info().Msg("Client disconnected")
}

// dispatch runs one command line.
func (s *Server) dispatch(ctx context.Context, line string) ([]string, *AckError) {
	line = strings.TrimSpace(line)
	verb, handle, ok := s.registry.Lookup(line)
	if !ok {
		return nil, &AckError{Code: AckUnknown, Command: verb, Message: fmt.Sprintf("unknown command %q", verb)}
	}

	lines, err := handle(ctx, s.client, parseArgs(verb, line))
	if err != nil {
		return nil, toAck(verb, err)
	}
	return lines, nil
}

func (s *Server) track(id string, nc net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = nc
}

func (s *Server) untrack(id string) {
	s.limiter.Release(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

func (s *Server) evict(id string) {
	s.mu.Lock()
	nc := s.conns[id]
	s.mu.Unlock()

	if nc != nil {
		nc.Close()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, nc := range s.conns {
		nc.Close()
	}
}
