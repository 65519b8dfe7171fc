package request

import (
	"bytes"
	"errors"
)

// MethodGet is the only routable method.
const MethodGet = "GET"

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMethodNotAllowed     = errors.New("method not allowed")
)

var methodPrefix = []byte(MethodGet + " ")

// Request is the parsed form of an inbound payload.
type Request struct {
	// Method is the first token of the payload, even when it is not GET.
	Method string

	// Path is the request target exactly as sent: no percent-decoding,
	// query string included.
	Path string

	// Line is everything after the method token. Handlers receive it
	// untouched so they can pick query parameters out of it.
	Line string
}

// Parse inspects a raw payload. A payload that does not start with
// "GET " yields ErrMethodNotAllowed; a GET whose target is not followed
// by a space on the request line yields ErrMalformedRequestLine. The
// returned Request is non-nil in both error cases so callers can log
// what arrived.
func Parse(payload []byte) (*Request, error) {
	req := &Request{
		Method: methodToken(payload),
	}

	if !bytes.HasPrefix(payload, methodPrefix) {
		return req, ErrMethodNotAllowed
	}

	rest := payload[len(methodPrefix):]
	req.Line = string(rest)

	path, err := ParseTarget(rest)
	if err != nil {
		return req, err
	}
	req.Path = path
	return req, nil
}

// ParseTarget extracts the path from the bytes following a recognized
// method token. The path ends at the first space; if the request line
// ends before any space is seen the line is malformed.
func ParseTarget(b []byte) (string, error) {
	line := b
	if idx := bytes.IndexAny(b, "\r\n"); idx != -1 {
		line = b[:idx]
	}

	idx := bytes.IndexByte(line, ' ')
	if idx == -1 {
		return "", ErrMalformedRequestLine
	}
	return string(line[:idx]), nil
}

// methodToken returns the leading token of the payload, bounded by the
// first space or line break.
func methodToken(payload []byte) string {
	end := bytes.IndexAny(payload, " \r\n")
	if end == -1 {
		end = len(payload)
	}
	// Keep log lines short when a peer sends garbage.
	if end > 16 {
		end = 16
	}
	return string(payload[:end])
}
