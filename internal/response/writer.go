package response

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Brownie44l1/pico-http/internal/headers"
)

var ErrInvalidState = errors.New("response written out of order")

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer writes a single HTTP response to an io.Writer in order:
// status line, headers, body.
type Writer struct {
	w             io.Writer
	state         writerState
	statusCode    StatusCode
	contentLength int64 // -1 means unknown
	written       int
}

// NewWriter creates a new response writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:             w,
		state:         stateStart,
		contentLength: -1,
	}
}

// WriteStatusLine writes the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return fmt.Errorf("%w: status line already written", ErrInvalidState)
	}

	w.statusCode = code
	w.state = stateStatusWritten
	return w.write("HTTP/1.1 " + strconv.Itoa(int(code)) + " " + StatusText(code) + "\r\n")
}

// WriteHeaders writes all headers followed by the blank line
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return fmt.Errorf("%w: must write status line before headers", ErrInvalidState)
	}
	if err := h.Validate(); err != nil {
		return err
	}

	if cl, ok := h.Get("content-length"); ok {
		if length, err := strconv.ParseInt(cl, 10, 64); err == nil {
			w.contentLength = length
		}
	}

	w.state = stateHeadersWritten

	var err error
	h.Each(func(name, value string) {
		if err != nil {
			return
		}
		err = w.write(name + ": " + value + "\r\n")
	})
	if err != nil {
		return err
	}
	return w.write("\r\n")
}

// WriteBody writes the complete response body
func (w *Writer) WriteBody(data []byte) error {
	if w.state != stateHeadersWritten {
		return fmt.Errorf("%w: must write headers before body", ErrInvalidState)
	}

	w.state = stateBodyWritten
	if len(data) == 0 {
		return nil
	}

	n, err := w.w.Write(data)
	w.written += n
	return err
}

func (w *Writer) write(s string) error {
	n, err := io.WriteString(w.w, s)
	w.written += n
	return err
}

// HasContentLength reports whether the headers declared a length.
func (w *Writer) HasContentLength() bool {
	return w.contentLength >= 0
}

func (w *Writer) ContentLength() int64 {
	return w.contentLength
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}

// Written returns the number of bytes accepted by the underlying writer.
func (w *Writer) Written() int {
	return w.written
}
