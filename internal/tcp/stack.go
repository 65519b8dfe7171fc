// Package tcp feeds connections from a real listener into a
// server.Server as events, and carries its responses back out.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/pico-http/internal/logging"
	"github.com/Brownie44l1/pico-http/internal/server"
)

const (
	DefaultSegmentSize    = 1460
	DefaultRecvBufferSize = 2048
	DefaultPollInterval   = 10 * time.Millisecond
	DefaultEventQueue     = 64
)

type Option func(*Stack)

// WithSegmentSize sets the largest write handed to the socket at once.
func WithSegmentSize(n int) Option {
	return func(st *Stack) {
		st.segmentSize = n
	}
}

// WithRecvBufferSize sets how much of a request is read and delivered.
func WithRecvBufferSize(n int) Option {
	return func(st *Stack) {
		st.recvSize = n
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(st *Stack) {
		st.pollInterval = d
	}
}

func WithEventQueue(n int) Option {
	return func(st *Stack) {
		st.queueSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(st *Stack) {
		st.logger = logger
	}
}

func WithAcceptLimiter(l *AcceptLimiter) Option {
	return func(st *Stack) {
		st.limiter = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(st *Stack) {
		st.now = now
	}
}

// Stack owns a listener and the goroutines doing socket I/O. Those
// goroutines only ever post events; the server is driven exclusively by
// whoever calls Poll, or by Serve.
type Stack struct {
	ln  net.Listener
	srv *server.Server

	events chan server.Event
	done   chan struct{}

	segmentSize  int
	recvSize     int
	pollInterval time.Duration
	queueSize    int
	limiter      *AcceptLimiter
	logger       *slog.Logger
	now          func() time.Time

	mu   sync.Mutex
	open map[*conn]struct{}

	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

// Listen opens a TCP listener on addr and starts accepting.
func Listen(addr string, srv *server.Server, opts ...Option) (*Stack, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewStack(ln, srv, opts...), nil
}

// NewStack starts accepting on ln.
func NewStack(ln net.Listener, srv *server.Server, opts ...Option) *Stack {
	st := &Stack{
		ln:           ln,
		srv:          srv,
		done:         make(chan struct{}),
		segmentSize:  DefaultSegmentSize,
		recvSize:     DefaultRecvBufferSize,
		pollInterval: DefaultPollInterval,
		queueSize:    DefaultEventQueue,
		logger:       logging.Discard(),
		now:          time.Now,
		open:         make(map[*conn]struct{}),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.segmentSize <= 0 {
		st.segmentSize = DefaultSegmentSize
	}
	if st.recvSize <= 0 {
		st.recvSize = DefaultRecvBufferSize
	}
	if st.pollInterval <= 0 {
		st.pollInterval = DefaultPollInterval
	}
	if st.queueSize <= 0 {
		st.queueSize = DefaultEventQueue
	}
	st.events = make(chan server.Event, st.queueSize)

	st.wg.Add(1)
	go st.acceptLoop()
	return st
}

func (st *Stack) Addr() net.Addr {
	return st.ln.Addr()
}

// Poll dispatches the events queued so far, then sweeps expired
// connections. It returns the number of events dispatched.
func (st *Stack) Poll(now time.Time) int {
	n := st.drain()
	if swept := st.srv.Sweep(now); swept > 0 {
		st.logger.Debug("swept connections", slog.Int("count", swept))
	}
	return n
}

// drain dispatches at most one queue's worth of events so a busy peer
// cannot keep Poll from returning.
func (st *Stack) drain() int {
	for n := 0; n < cap(st.events); n++ {
		select {
		case ev := <-st.events:
			st.dispatch(ev)
		default:
			return n
		}
	}
	return cap(st.events)
}

// Serve polls every poll interval until ctx is done, then closes the
// stack. Each tick function runs after Poll on the same goroutine, which
// makes it safe for them to share state with route handlers.
func (st *Stack) Serve(ctx context.Context, tick ...func(now time.Time)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		st.logger.Info("closing listener", slog.String("addr", st.Addr().String()))
		return st.Close()
	})
	g.Go(func() error {
		ticker := time.NewTicker(st.pollInterval)
		defer ticker.Stop()

		st.logger.Info("serving", slog.String("addr", st.Addr().String()))
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				now := st.now()
				st.Poll(now)
				for _, f := range tick {
					f(now)
				}
			}
		}
	})

	err := g.Wait()
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Close stops accepting and drops every open socket.
func (st *Stack) Close() error {
	st.closeOnce.Do(func() {
		close(st.done)
		st.closeErr = st.ln.Close()

		st.mu.Lock()
		for c := range st.open {
			c.nc.Close()
		}
		st.open = map[*conn]struct{}{}
		st.mu.Unlock()

		st.wg.Wait()
	})
	return st.closeErr
}

func (st *Stack) acceptLoop() {
	defer st.wg.Done()
	for {
		nc, err := st.ln.Accept()
		if err != nil {
			select {
			case <-st.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			st.logger.Warn("accept failed", logging.Error(err))
			continue
		}

		if st.limiter != nil {
			host := remoteHost(nc.RemoteAddr())
			if !st.limiter.Allow(host, st.now()) {
				st.logger.Warn("accept rate exceeded", slog.String("remote", host))
				nc.Close()
				continue
			}
		}

		c := newConn(nc, st)
		st.mu.Lock()
		st.open[c] = struct{}{}
		st.mu.Unlock()

		if !st.post(server.Event{Kind: server.EventAccepted, Conn: c}) {
			c.shutdown()
			return
		}
	}
}

func (st *Stack) dispatch(ev server.Event) {
	h, err := st.srv.Dispatch(ev)
	switch {
	case err == nil:
	case errors.Is(err, server.ErrStaleHandle):
		// Late reads and acks for a connection already released.
		st.logger.Debug("event for released connection",
			slog.String("event", ev.Kind.String()),
			slog.String("handle", ev.Handle.String()),
		)
		return
	case errors.Is(err, server.ErrNoFreeSlot):
		return
	default:
		st.logger.Warn("event failed",
			slog.String("event", ev.Kind.String()),
			slog.String("handle", h.String()),
			logging.Error(err),
		)
		return
	}

	if ev.Kind == server.EventAccepted {
		c := ev.Conn.(*conn)
		c.handle = h
		go c.readLoop(st.recvSize)
	}
}

// post hands ev to the loop, giving up once the stack is closed.
func (st *Stack) post(ev server.Event) bool {
	select {
	case st.events <- ev:
		return true
	case <-st.done:
		return false
	}
}

func (st *Stack) forget(c *conn) {
	st.mu.Lock()
	delete(st.open, c)
	st.mu.Unlock()
}

func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
