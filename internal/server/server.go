package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Brownie44l1/pico-http/internal/logging"
	"github.com/Brownie44l1/pico-http/internal/request"
	"github.com/Brownie44l1/pico-http/internal/response"
	"github.com/Brownie44l1/pico-http/internal/router"
)

const (
	DefaultSlots        = 1
	DefaultBufferSize   = 16384
	DefaultDrainTimeout = 10 * time.Second
)

const instrumentationName = "github.com/Brownie44l1/pico-http/internal/server"

// Option configures a Server.
type Option func(*Server)

// WithSlots sets how many connections may be open at once.
func WithSlots(n int) Option {
	return func(s *Server) {
		s.slots = n
	}
}

// WithBufferSize sets the per-connection response buffer capacity.
func WithBufferSize(n int) Option {
	return func(s *Server) {
		s.bufferSize = n
	}
}

// WithDrainTimeout bounds how long a connection may wait for a request or
// for its response to be acknowledged. Zero disables the deadline.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.drainTimeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp.Tracer(instrumentationName)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Server owns every connection's state and turns transport events into
// responses. It is not safe for concurrent use: one goroutine drives all
// of its methods, which is what keeps per-connection state free of locks.
type Server struct {
	router  *router.Router
	pool    *pool
	metrics *Metrics

	slots        int
	bufferSize   int
	drainTimeout time.Duration

	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a Server answering requests through r.
func New(r *router.Router, opts ...Option) *Server {
	s := &Server{
		router:       r,
		metrics:      NewMetrics(),
		slots:        DefaultSlots,
		bufferSize:   DefaultBufferSize,
		drainTimeout: DefaultDrainTimeout,
		logger:       logging.Discard(),
		tracer:       otel.Tracer(instrumentationName),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.slots <= 0 {
		s.slots = DefaultSlots
	}
	if s.slots > maxSlots {
		s.slots = maxSlots
	}
	if s.bufferSize < 0 {
		s.bufferSize = DefaultBufferSize
	}
	s.pool = newPool(s.slots, s.bufferSize)
	return s
}

// Metrics returns the live counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Active is the number of open connections.
func (s *Server) Active() int {
	return s.pool.inUse()
}

// Capacity is the number of connection slots.
func (s *Server) Capacity() int {
	return s.pool.size()
}

// State reports where the connection behind h is. Released or unknown
// handles report StateClosed.
func (s *Server) State(h Handle) State {
	sl, err := s.pool.lookup(h)
	if err != nil {
		return StateClosed
	}
	return sl.state
}

// Dispatch routes a transport event to the matching operation. For
// EventAccepted the new handle is returned; otherwise the handle from the
// event is.
func (s *Server) Dispatch(ev Event) (Handle, error) {
	switch ev.Kind {
	case EventAccepted:
		return s.Accept(ev.Conn)
	case EventDataReceived:
		return ev.Handle, s.Receive(ev.Handle, ev.Payload)
	case EventSendProgress:
		return ev.Handle, s.SendProgress(ev.Handle, ev.Acked)
	case EventClosed:
		return ev.Handle, s.Abort(ev.Handle)
	default:
		return ev.Handle, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}
}

// Accept binds a new connection to a free slot. When every slot is taken
// the connection is closed and ErrNoFreeSlot returned.
func (s *Server) Accept(c Conn) (Handle, error) {
	h, sl, ok := s.pool.acquire()
	if !ok {
		s.metrics.ConnectionsRejected.Add(1)
		s.logger.Warn("connection rejected",
			slog.Int("active", s.pool.inUse()),
			slog.Int("capacity", s.pool.size()),
		)
		if err := c.Close(); err != nil {
			s.logger.Debug("close rejected connection", logging.Error(err))
		}
		return NoHandle, ErrNoFreeSlot
	}

	now := s.now()
	ctx, span := s.tracer.Start(context.Background(), "connection",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithTimestamp(now),
		trace.WithAttributes(attribute.String("pico.handle", h.String())),
	)

	sl.state = StateAccepted
	sl.conn = c
	sl.accepted = now
	sl.ctx = ctx
	sl.span = span
	s.armDeadline(sl, now)

	s.metrics.ConnectionsAccepted.Add(1)
	s.metrics.ActiveConnections.Add(1)
	s.logger.DebugContext(ctx, "connection accepted", slog.String("handle", h.String()))
	return h, nil
}

// Receive handles the first inbound payload of a connection: it builds
// the whole response and hands it to the transport. Further payloads are
// ignored. A nil payload means the peer closed; the connection is closed
// and its slot released whatever state it was in.
func (s *Server) Receive(h Handle, payload []byte) error {
	sl, err := s.pool.lookup(h)
	if err != nil {
		return err
	}

	if payload == nil {
		s.closeAndRelease(h, sl, reasonPeerClosed)
		return nil
	}

	if sl.state != StateAccepted {
		s.logger.DebugContext(sl.ctx, "ignoring extra payload",
			slog.String("handle", h.String()),
			slog.String("state", sl.state.String()),
			slog.Int("bytes", len(payload)),
		)
		return nil
	}

	sl.state = StateReceiving
	out := s.respond(sl, payload)

	if out.Len == 0 {
		s.closeAndRelease(h, sl, reasonEmpty)
		return nil
	}

	// Set before handing bytes over so a transport that reports progress
	// synchronously finds the connection ready for it.
	sl.state = StateResponding
	sl.total = out.Len
	sl.acked = 0
	s.armDeadline(sl, s.now())

	if err := sl.conn.Write(sl.buf.Bytes()); err != nil {
		return s.failWrite(h, "write", err)
	}
	// The whole response may already be acknowledged, and the slot
	// released, by the time Write returns.
	if _, err := s.pool.lookup(h); err != nil {
		return nil
	}
	if err := sl.conn.Output(); err != nil {
		return s.failWrite(h, "output", err)
	}
	return nil
}

// SendProgress accounts n newly acknowledged bytes. Once the running
// total reaches the response length the connection is closed and its
// slot released, exactly once; acknowledgements past the end count as
// completion too.
func (s *Server) SendProgress(h Handle, n int) error {
	sl, err := s.pool.lookup(h)
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAck, n)
	}
	if sl.state != StateResponding && sl.state != StateDraining {
		return fmt.Errorf("%w: send progress in state %s", ErrInvalidTransition, sl.state)
	}

	sl.state = StateDraining
	sl.acked += n
	s.metrics.BytesAcked.Add(int64(n))
	s.armDeadline(sl, s.now())

	if sl.acked < sl.total {
		return nil
	}
	if sl.acked > sl.total {
		s.metrics.Overshoots.Add(1)
		s.logger.DebugContext(sl.ctx, "acknowledged past end of response",
			slog.String("handle", h.String()),
			slog.Int("acked", sl.acked),
			slog.Int("total", sl.total),
		)
	}
	s.metrics.RecordDrained(s.now().Sub(sl.accepted))
	s.closeAndRelease(h, sl, reasonDrained)
	return nil
}

// Abort releases the slot of a connection the transport has already torn
// down. The connection is not closed again.
func (s *Server) Abort(h Handle) error {
	sl, err := s.pool.lookup(h)
	if err != nil {
		return err
	}
	s.release(h, sl, reasonAborted)
	return nil
}

// Sweep closes every connection whose deadline passed at now and returns
// how many it closed.
func (s *Server) Sweep(now time.Time) int {
	closed := 0
	for i := range s.pool.slots {
		sl := &s.pool.slots[i]
		if sl.state == StateFree || !sl.expired(now) {
			continue
		}
		h := makeHandle(i, sl.gen)
		s.metrics.Timeouts.Add(1)
		s.logger.WarnContext(sl.ctx, "connection timed out",
			slog.String("handle", h.String()),
			slog.String("state", sl.state.String()),
			slog.Int("acked", sl.acked),
			slog.Int("total", sl.total),
		)
		s.closeAndRelease(h, sl, reasonTimeout)
		closed++
	}
	return closed
}

// respond renders the response for payload into the slot's buffer.
func (s *Server) respond(sl *slot, payload []byte) response.Outcome {
	req, err := request.Parse(payload)
	sl.method = req.Method

	var res router.Result
	switch {
	case errors.Is(err, request.ErrMethodNotAllowed):
		res = router.Result{Status: response.StatusMethodNotAllowed}
	case err != nil:
		res = router.Result{Status: response.StatusBadRequest}
	default:
		sl.path = req.Path
		res = s.router.Resolve(req.Path, req.Line)
	}
	sl.status = res.Status

	out, err := response.Render(sl.buf, res.Status, res.ContentType, []byte(res.Body))
	switch {
	case errors.Is(err, response.ErrTruncated):
		s.logger.WarnContext(sl.ctx, "response truncated",
			slog.String("path", sl.path),
			slog.Int("body_bytes", out.BodyLen),
			slog.Int("sent_bytes", out.Len),
			slog.Int("capacity", sl.buf.Cap()),
		)
	case err != nil:
		s.logger.ErrorContext(sl.ctx, "render response", logging.Error(err))
		sl.status = response.StatusInternalServerError
		out, _ = response.RenderEmpty(sl.buf, sl.status)
	}

	s.metrics.RecordResponse(sl.status, out.Len, out.Truncated)
	sl.span.SetAttributes(
		attribute.String("http.method", sl.method),
		attribute.String("http.target", sl.path),
		attribute.String("pico.route", res.Route),
		attribute.Int("http.status_code", int(sl.status)),
		attribute.Int("pico.response_bytes", out.Len),
		attribute.Bool("pico.truncated", out.Truncated),
	)
	if sl.status.IsServerError() {
		sl.span.SetStatus(codes.Error, response.StatusText(sl.status))
	}

	s.logger.InfoContext(sl.ctx, "request",
		slog.String("method", sl.method),
		slog.String("path", sl.path),
		slog.Int("status", int(sl.status)),
		slog.Int("bytes", out.Len),
		slog.Bool("truncated", out.Truncated),
	)
	return out
}

func (s *Server) failWrite(h Handle, op string, err error) error {
	s.metrics.WriteErrors.Add(1)
	sl, lerr := s.pool.lookup(h)
	if lerr != nil {
		// Released while the transport was still inside the call.
		return fmt.Errorf("%s response: %w", op, err)
	}
	s.logger.WarnContext(sl.ctx, "transport refused response",
		slog.String("handle", h.String()),
		slog.String("op", op),
		logging.Error(err),
	)
	sl.span.RecordError(err)
	s.closeAndRelease(h, sl, reasonWriteFailed)
	return fmt.Errorf("%s response: %w", op, err)
}

func (s *Server) armDeadline(sl *slot, now time.Time) {
	if s.drainTimeout <= 0 {
		sl.deadline = time.Time{}
		return
	}
	sl.deadline = now.Add(s.drainTimeout)
}

func (s *Server) closeAndRelease(h Handle, sl *slot, reason closeReason) {
	sl.state = StateClosed

	// A peer that stopped reading never lets a graceful close finish.
	closeConn := sl.conn.Close
	if reason == reasonTimeout || reason == reasonWriteFailed {
		closeConn = sl.conn.Reset
	}
	if err := closeConn(); err != nil {
		s.logger.DebugContext(sl.ctx, "close connection",
			slog.String("handle", h.String()),
			logging.Error(err),
		)
	}
	s.release(h, sl, reason)
}

func (s *Server) release(h Handle, sl *slot, reason closeReason) {
	s.metrics.ConnectionsClosed.Add(1)
	s.metrics.ActiveConnections.Add(-1)
	s.logger.DebugContext(sl.ctx, "connection released",
		slog.String("handle", h.String()),
		slog.String("reason", string(reason)),
		slog.Int("acked", sl.acked),
		slog.Int("total", sl.total),
	)

	sl.span.SetAttributes(
		attribute.String("pico.close_reason", string(reason)),
		attribute.Int("pico.acked_bytes", sl.acked),
	)
	sl.span.End(trace.WithTimestamp(s.now()))
	s.pool.release(h)
}
