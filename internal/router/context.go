package router

import (
	"github.com/Brownie44l1/pico-http/internal/request"
)

// ContentType selects the MIME type of a handler's output.
type ContentType int

const (
	ContentTypeHTML ContentType = iota
	ContentTypeJSON
	ContentTypePlain
)

// MIME returns the Content-Type header value.
func (ct ContentType) MIME() string {
	switch ct {
	case ContentTypeJSON:
		return "application/json"
	case ContentTypePlain:
		return "text/plain"
	default:
		return "text/html"
	}
}

func (ct ContentType) String() string {
	return ct.MIME()
}

// Context is handed to a handler for exactly one invocation. It carries
// the content negotiation state for that invocation, which starts out as
// HTML and is read once the handler returns.
type Context struct {
	// Request is the raw request after the method token, as received.
	Request string

	// Path is the parsed request target.
	Path string

	// Route is the pattern that matched.
	Route string

	contentType ContentType
}

func newContext(path, line, route string) *Context {
	return &Context{
		Request:     line,
		Path:        path,
		Route:       route,
		contentType: ContentTypeHTML,
	}
}

// SetContentType selects the MIME type of the body the handler is about
// to return.
func (c *Context) SetContentType(ct ContentType) {
	c.contentType = ct
}

// ContentType returns the currently selected type.
func (c *Context) ContentType() ContentType {
	return c.contentType
}

// FloatParam extracts a numeric query parameter from the raw request,
// returning def when the name is absent and 0 when no number follows it.
func (c *Context) FloatParam(name string, def float64) float64 {
	v := def
	request.FloatParam(c.Request, name, &v)
	return v
}
