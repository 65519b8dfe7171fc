package tcp

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/Brownie44l1/pico-http/internal/logging"
	"github.com/Brownie44l1/pico-http/internal/server"
)

var ErrConnClosing = errors.New("connection closing")

// conn adapts a net.Conn to server.Conn. Bytes handed to Write are
// queued and sent by a writer goroutine in segments; every segment the
// kernel accepts is reported back to the loop as send progress. Close is
// graceful: the socket is closed once the queue is empty.
type conn struct {
	nc      net.Conn
	stack   *Stack
	handle  server.Handle
	segment int
	logger  *slog.Logger

	mu      sync.Mutex
	queue   []byte
	writing bool
	closing bool

	closeOnce sync.Once
}

func newConn(nc net.Conn, st *Stack) *conn {
	return &conn{
		nc:      nc,
		stack:   st,
		segment: st.segmentSize,
		logger:  st.logger,
	}
}

func (c *conn) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return ErrConnClosing
	}
	c.queue = append(c.queue, p...)
	return nil
}

func (c *conn) Output() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return ErrConnClosing
	}
	if c.writing || len(c.queue) == 0 {
		return nil
	}
	c.writing = true
	go c.writeLoop()
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	c.closing = true
	flushing := c.writing || len(c.queue) > 0
	c.mu.Unlock()

	if flushing {
		// writeLoop closes the socket after the last segment.
		return nil
	}
	return c.shutdown()
}

// Reset drops whatever is queued and closes the socket now. A writeLoop
// blocked on a peer that stopped reading fails out of its Write.
func (c *conn) Reset() error {
	c.mu.Lock()
	c.closing = true
	c.queue = nil
	c.mu.Unlock()
	return c.shutdown()
}

func (c *conn) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.nc.Close()
		c.stack.forget(c)
	})
	return err
}

// writeLoop drains the queue one segment at a time.
func (c *conn) writeLoop() {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.writing = false
			closing := c.closing
			c.mu.Unlock()
			if closing {
				c.shutdown()
			}
			return
		}
		n := min(len(c.queue), c.segment)
		seg := c.queue[:n]
		c.mu.Unlock()

		written, err := c.nc.Write(seg)

		c.mu.Lock()
		// Reset may have dropped the queue while Write was blocked.
		if written <= len(c.queue) {
			c.queue = c.queue[written:]
		}
		c.mu.Unlock()

		if written > 0 {
			c.stack.post(server.Event{Kind: server.EventSendProgress, Handle: c.handle, Acked: written})
		}
		if err != nil {
			c.logger.Debug("segment write failed",
				slog.String("handle", c.handle.String()),
				slog.String("remote", c.nc.RemoteAddr().String()),
				logging.Error(err),
			)
			c.mu.Lock()
			c.queue = nil
			c.writing = false
			c.mu.Unlock()
			c.shutdown()
			c.stack.post(server.Event{Kind: server.EventClosed, Handle: c.handle})
			return
		}
	}
}

// readLoop delivers the first segment of the request and then waits for
// the peer to go away. Later segments are discarded. EOF or a read error
// is delivered as a nil payload.
func (c *conn) readLoop(size int) {
	buf := make([]byte, size)
	first := true
	for {
		n, err := c.nc.Read(buf)
		if n > 0 && first {
			first = false
			payload := make([]byte, n)
			copy(payload, buf[:n])
			c.stack.post(server.Event{Kind: server.EventDataReceived, Handle: c.handle, Payload: payload})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("read failed",
					slog.String("handle", c.handle.String()),
					logging.Error(err),
				)
			}
			c.stack.post(server.Event{Kind: server.EventDataReceived, Handle: c.handle})
			return
		}
	}
}
