package httpserv

import (
	"crypto/tls"
	"iter"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"dqx0.com/go/httpserv/internal/mq"
	"dqx0.com/go/httpserv/internal/obs"
	"dqx0.com/go/httpserv/internal/pool"
)

// Config configures a Server. The zero value of every field means its
// default.
type Config struct {
	// Addr is the TCP address to listen on. Defaults to ":8080".
	// Ignored when Listener is set.
	Addr string

	// Listener, when non-nil, is used instead of binding Addr.
	Listener net.Listener

	// TLSConfig, when set, promotes every accepted connection through
	// crypto/tls. Shorthand for a StreamWrapper.
	TLSConfig *tls.Config

	// StreamWrapper, when set, promotes every accepted connection; it
	// takes precedence over TLSConfig. Requests arriving through a
	// wrapper report Secure() == true.
	StreamWrapper StreamWrapper

	// MaxHeaderLineBytes bounds a single request or header line.
	// Defaults to 8 KiB.
	MaxHeaderLineBytes int

	// MaxHeaderTotalBytes bounds the whole request head. Defaults to
	// 64 KiB.
	MaxHeaderTotalBytes int

	// PipelineBodyLimit is the largest declared body that is buffered up
	// front so the next pipelined request can be parsed before the body
	// is consumed. Defaults to 1024.
	PipelineBodyLimit int64

	// WorkerIdleGrace is how long an idle worker lingers before it
	// retires. Defaults to 5 seconds.
	WorkerIdleGrace time.Duration

	// MinWorkers keeps that many workers alive through idle periods.
	// Defaults to 0: workers exist only while connections do.
	MinWorkers int

	Logger logrus.FieldLogger
	Meter  obs.Meter
}

type message struct {
	req *Request
	err error
}

// Server owns the listener, the worker pool, and the shared inbound
// request queue. Connections never surface to the application; it sees
// only requests.
type Server struct {
	ln    net.Listener
	pool  *pool.Pool
	queue *mq.Queue[message]
	log   logrus.FieldLogger
	meter obs.Meter
	wrap  StreamWrapper

	maxHeaderLine     int
	maxHeaderTotal    int
	pipelineBodyLimit int64

	closingFlag atomic.Bool
	acceptDone  chan struct{}

	mu    sync.Mutex
	conns map[*clientConn]struct{}
}

// New binds the listener and starts accepting. Requests pile up on the
// inbound queue until the application receives them.
func New(cfg Config) (*Server, error) {
	ln := cfg.Listener
	if ln == nil {
		addr := cfg.Addr
		if addr == "" {
			addr = ":8080"
		}
		var err error
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
	}

	wrap := cfg.StreamWrapper
	if wrap == nil && cfg.TLSConfig != nil {
		wrap = tlsWrapper(cfg.TLSConfig)
	}
	log := cfg.Logger
	if log == nil {
		log = obs.DefaultLogger()
	}
	meter := cfg.Meter
	if meter == nil {
		meter = obs.NopMeter{}
	}

	s := &Server{
		ln:                ln,
		pool:              pool.New(cfg.MinWorkers, cfg.WorkerIdleGrace),
		queue:             mq.New[message](),
		log:               log,
		meter:             meter,
		wrap:              wrap,
		maxHeaderLine:     defaultInt(cfg.MaxHeaderLineBytes, 8<<10),
		maxHeaderTotal:    defaultInt(cfg.MaxHeaderTotalBytes, 64<<10),
		pipelineBodyLimit: defaultInt64(cfg.PipelineBodyLimit, 1024),
		acceptDone:        make(chan struct{}),
		conns:             make(map[*clientConn]struct{}),
	}
	go s.acceptLoop()
	return s, nil
}

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)
	var delay time.Duration
	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if s.closingFlag.Load() {
				s.shutdown(nil)
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else {
					delay *= 2
				}
				if delay > time.Second {
					delay = time.Second
				}
				s.log.WithError(err).Warn("accept failed, retrying")
				time.Sleep(delay)
				continue
			}
			s.log.WithError(err).Error("accept failed")
			s.shutdown(err)
			return
		}
		delay = 0
		if s.closingFlag.Load() {
			raw.Close()
			s.shutdown(nil)
			return
		}
		c, err := newClientConn(s, raw)
		if err != nil {
			s.log.WithError(err).Warn("stream wrapper rejected connection")
			continue
		}
		s.register(c)
		s.meter.Count(obs.MetricConnections, 1)
		s.pool.Spawn(c.run)
	}
}

// shutdown runs on the accept goroutine once the loop is done: kick
// blocked connection reads, stop the queue so late deliveries fail fast,
// then join the workers. Queued requests still drain to the application
// before Recv reports ErrClosed (or the fatal accept error).
func (s *Server) shutdown(fatal error) {
	s.closingFlag.Store(true)
	s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.raw.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()
	if fatal != nil {
		s.queue.Push(message{err: fatal})
	}
	s.queue.Close()
	s.pool.Close()
}

// Recv blocks until a request arrives. It returns ErrClosed once the
// server has been unblocked and the queue has drained, or the fatal
// accept error if the listener died.
func (s *Server) Recv() (*Request, error) {
	msg, ok := <-s.queue.Out()
	if !ok {
		return nil, ErrClosed
	}
	if msg.err != nil {
		return nil, msg.err
	}
	return msg.req, nil
}

// TryRecv returns the next request without blocking, or (nil, nil) when
// none is pending.
func (s *Server) TryRecv() (*Request, error) {
	select {
	case msg, ok := <-s.queue.Out():
		if !ok {
			return nil, ErrClosed
		}
		if msg.err != nil {
			return nil, msg.err
		}
		return msg.req, nil
	default:
		return nil, nil
	}
}

// RecvTimeout waits up to d for a request, returning (nil, nil) on
// timeout.
func (s *Server) RecvTimeout(d time.Duration) (*Request, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case msg, ok := <-s.queue.Out():
		if !ok {
			return nil, ErrClosed
		}
		if msg.err != nil {
			return nil, msg.err
		}
		return msg.req, nil
	case <-timer.C:
		return nil, nil
	}
}

// Incoming returns the stream of requests for use with range. The
// sequence ends when the server is closed; it is not resumable, but a
// fresh call starts receiving again.
func (s *Server) Incoming() iter.Seq[*Request] {
	return func(yield func(*Request) bool) {
		for {
			req, err := s.Recv()
			if err != nil {
				return
			}
			if !yield(req) {
				return
			}
		}
	}
}

// Unblock wakes the accept loop and begins shutdown: no new connections
// are accepted, in-flight connections finish their current response on a
// best-effort basis, and once the queue drains Recv reports ErrClosed.
// Idempotent.
func (s *Server) Unblock() {
	if !s.closingFlag.CompareAndSwap(false, true) {
		return
	}
	// Closing the listener is Go's portable accept interrupt; no
	// loopback dial needed.
	s.ln.Close()
}

// Close unblocks the server and waits for the workers to drain.
func (s *Server) Close() {
	s.Unblock()
	<-s.acceptDone
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// NumConnections returns the number of live client connections.
func (s *Server) NumConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) register(c *clientConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) unregister(c *clientConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) deliver(req *Request) bool {
	return s.queue.Push(message{req: req})
}

func (s *Server) closing() bool {
	return s.closingFlag.Load()
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func defaultInt64(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
