package response

import (
	"errors"
	"strconv"

	"github.com/Brownie44l1/pico-http/internal/headers"
)

// Outcome describes a rendered response.
type Outcome struct {
	Status StatusCode

	// Len is the number of bytes placed in the buffer, i.e. what will
	// go on the wire.
	Len int

	// BodyLen is the declared Content-Length.
	BodyLen int

	// Truncated is set when the composed response did not fit. The
	// buffer then holds the first Len bytes of it and the declared
	// Content-Length no longer matches what is sent.
	Truncated bool
}

// Render composes a complete response into dst: status line,
// Content-Type (omitted when contentType is empty), Content-Length,
// Connection: close, blank line, body. dst is reset first.
//
// When the response does not fit, dst keeps the leading bytes that do
// and Render returns the Outcome together with ErrTruncated.
func Render(dst *Buffer, code StatusCode, contentType string, body []byte) (Outcome, error) {
	dst.Reset()

	h := headers.NewHeaders()
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Connection", "close")

	w := NewWriter(dst)
	err := w.WriteStatusLine(code)
	if err == nil {
		err = w.WriteHeaders(h)
	}
	if err == nil {
		err = w.WriteBody(body)
	}

	out := Outcome{
		Status:    w.StatusCode(),
		Len:       w.Written(),
		BodyLen:   len(body),
		Truncated: dst.Truncated(),
	}
	if w.HasContentLength() {
		out.BodyLen = int(w.ContentLength())
	}
	if err != nil && !errors.Is(err, ErrTruncated) {
		return out, err
	}
	if out.Truncated {
		return out, ErrTruncated
	}
	return out, nil
}

// RenderEmpty renders a body-less response, the shape used for every
// error status.
func RenderEmpty(dst *Buffer, code StatusCode) (Outcome, error) {
	return Render(dst, code, "", nil)
}
