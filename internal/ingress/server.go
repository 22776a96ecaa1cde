// Package ingress accepts framed operations over a Unix domain socket and
// publishes them to the inbound queue.
package ingress

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"engine/internal/bus"
	"engine/internal/codec"
	"engine/internal/errors"
	"engine/internal/obs"
	"engine/internal/schema"
	"engine/pkg/exception"
	"engine/pkg/uds"
)

const readBufferSize = 64 << 10

// Server reads frames from every connection and publishes them in arrival
// order. Each connection is one session. Ping frames are echoed back and
// never reach the queue.
type Server struct {
	listener *uds.Server
	queue    *bus.Queue
	metrics  *obs.Metrics
	traces   *obs.TraceGenerator
	now      func() time.Time

	started  atomic.Bool
	sessions atomic.Uint64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

func WithMetrics(m *obs.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

func WithTraceGenerator(g *obs.TraceGenerator) Option {
	return func(s *Server) {
		s.traces = g
	}
}

func NewServer(listener *uds.Server, queue *bus.Queue, opts ...Option) (*Server, error) {
	if queue == nil {
		return nil, exception.ErrIngressNilQueue
	}
	if listener == nil {
		return nil, exception.ErrNilServerUDS
	}
	s := &Server{
		listener: listener,
		queue:    queue,
		now:      time.Now,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.traces == nil {
		s.traces = obs.NewTraceGenerator(0)
	}
	return s, nil
}

// Serve listens and accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	if s.started.Swap(true) {
		return exception.ErrIngressStarted
	}
	if err := s.listener.Listen(); err != nil {
		return err
	}
	logs.Infof("ingress listening on %s", s.listener.Path())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.listener.Closed() {
				s.wg.Wait()
				return nil
			}
			return err
		}
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		session := s.sessions.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, conn, session)
		}()
	}
}

// Close stops accepting and closes every open connection.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.mu.Unlock()
}

// Sessions returns how many connections have been accepted.
func (s *Server) Sessions() uint64 {
	return s.sessions.Load()
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) handle(ctx context.Context, conn net.Conn, session uint64) {
	r := bufio.NewReaderSize(conn, readBufferSize)
	for {
		t, payload, err := codec.ReadFrame(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logs.Errorf("ingress session %d read frame, err: %+v", session, err)
			}
			return
		}

		if t == schema.MessagePing {
			if err := codec.WriteFrame(conn, schema.MessagePing, payload); err != nil {
				logs.Errorf("ingress session %d pong, err: %+v", session, err)
				return
			}
			continue
		}

		header := schema.NewHeader(t, session, s.now().UnixNano())
		header.TraceID = s.traces.Next()
		if err := s.queue.Publish(ctx, bus.Message{Header: header, Payload: payload}); err != nil {
			if errors.Is(err, bus.ErrQueueClosed) {
				s.metrics.IncQueueClosed()
			}
			logs.Errorf("ingress session %d publish %s, err: %+v", session, t, err)
			return
		}
	}
}
