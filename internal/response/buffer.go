package response

import "errors"

var ErrTruncated = errors.New("response exceeds buffer capacity")

// Buffer is a fixed-capacity byte sink. It never grows: a write that does
// not fit is cut at capacity, the buffer is marked truncated and
// ErrTruncated is returned alongside the number of bytes kept.
type Buffer struct {
	buf       []byte
	truncated bool
}

// NewBuffer allocates a buffer of exactly capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

// Write implements io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	room := cap(b.buf) - len(b.buf)
	if len(p) <= room {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}

	b.buf = append(b.buf, p[:room]...)
	b.truncated = true
	return room, ErrTruncated
}

// WriteString writes s without an intermediate []byte allocation on
// the caller's side.
func (b *Buffer) WriteString(s string) (int, error) {
	room := cap(b.buf) - len(b.buf)
	if len(s) <= room {
		b.buf = append(b.buf, s...)
		return len(s), nil
	}

	b.buf = append(b.buf, s[:room]...)
	b.truncated = true
	return room, ErrTruncated
}

// Bytes returns the rendered bytes. The slice aliases the buffer and is
// only valid until the next Reset.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

func (b *Buffer) Len() int {
	return len(b.buf)
}

func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Truncated reports whether any write was cut short since the last Reset.
func (b *Buffer) Truncated() bool {
	return b.truncated
}

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.truncated = false
}
