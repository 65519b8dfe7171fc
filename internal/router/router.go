package router

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/Brownie44l1/pico-http/internal/logging"
	"github.com/Brownie44l1/pico-http/internal/response"
)

// DefaultCapacity is the number of routes a table holds unless told
// otherwise.
const DefaultCapacity = 10

// RootPath is the only path the homepage is served on.
const RootPath = "/"

var (
	ErrRouteTableFull = errors.New("route table full")
	ErrEmptyPattern   = errors.New("empty route pattern")
	ErrNilHandler     = errors.New("nil route handler")
)

// HandlerFunc renders a response body. It must return quickly: it runs
// on the same loop that services the network and everything else.
type HandlerFunc func(c *Context) string

// Route represents a single route
type Route struct {
	Pattern string
	Handler HandlerFunc
}

// Table is a fixed-capacity ordered route collection. Registration order
// is match priority.
type Table struct {
	routes []Route
}

// NewTable creates a table holding at most capacity routes.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		routes: make([]Route, 0, capacity),
	}
}

// Register appends a route. It fails once the table is at capacity.
func (t *Table) Register(pattern string, handler HandlerFunc) error {
	if pattern == "" {
		return ErrEmptyPattern
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, pattern)
	}
	if len(t.routes) == cap(t.routes) {
		return fmt.Errorf("%w: %d routes registered, cannot add %s", ErrRouteTableFull, cap(t.routes), pattern)
	}

	t.routes = append(t.routes, Route{Pattern: pattern, Handler: handler})
	return nil
}

// Match returns the first route, in registration order, whose pattern
// occurs anywhere within path. Containment is deliberate: "/api" matches
// "/api/status" and also "/api2/other".
func (t *Table) Match(path string) (Route, bool) {
	for _, route := range t.routes {
		if strings.Contains(path, route.Pattern) {
			return route, true
		}
	}
	return Route{}, false
}

func (t *Table) Len() int {
	return len(t.routes)
}

func (t *Table) Cap() int {
	return cap(t.routes)
}

// Routes returns a copy of the registered routes in priority order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Result is the outcome of resolving one request.
type Result struct {
	Status      response.StatusCode
	ContentType string
	Body        string

	// Route is the matched pattern, RootPath for the homepage, empty
	// when nothing matched.
	Route string
}

// Option configures a Router.
type Option func(*Router)

// WithCapacity sets the route table capacity.
func WithCapacity(n int) Option {
	return func(r *Router) {
		r.table = NewTable(n)
	}
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// Router resolves request paths to a homepage, a registered handler or
// nothing.
type Router struct {
	table       *Table
	homepage    string
	hasHomepage bool
	middlewares []Middleware
	logger      *slog.Logger
}

// New creates a router with an empty table.
func New(opts ...Option) *Router {
	r := &Router{
		table:  NewTable(DefaultCapacity),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetHomepage sets the body served for an exact request of RootPath.
// The homepage takes priority over every registered route.
func (r *Router) SetHomepage(body string) {
	r.homepage = body
	r.hasHomepage = true
}

// Register adds a route. Middleware registered with Use before this call
// wraps the handler.
func (r *Router) Register(pattern string, handler HandlerFunc) error {
	if handler != nil {
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			handler = r.middlewares[i](handler)
		}
	}
	return r.table.Register(pattern, handler)
}

// Use adds middleware applied to subsequently registered handlers.
func (r *Router) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

// Table exposes the underlying route table.
func (r *Router) Table() *Table {
	return r.table
}

// Resolve maps a parsed GET request to a response. line is the raw
// request after the method token and is what handlers see.
//
// Resolution order: exact RootPath with a homepage configured, then the
// route table in registration order, then 404 with an empty body. A
// panicking handler yields 500 with an empty body.
func (r *Router) Resolve(path, line string) (res Result) {
	if path == RootPath && r.hasHomepage {
		return Result{
			Status:      response.StatusOK,
			ContentType: ContentTypeHTML.MIME(),
			Body:        r.homepage,
			Route:       RootPath,
		}
	}

	route, ok := r.table.Match(path)
	if !ok {
		return Result{Status: response.StatusNotFound}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panic recovered",
				slog.String("route", route.Pattern),
				slog.String("path", path),
				slog.Any("panic", p),
				slog.String(logging.StackKey, string(debug.Stack())),
			)
			res = Result{Status: response.StatusInternalServerError, Route: route.Pattern}
		}
	}()

	c := newContext(path, line, route.Pattern)
	body := route.Handler(c)
	return Result{
		Status:      response.StatusOK,
		ContentType: c.ContentType().MIME(),
		Body:        body,
		Route:       route.Pattern,
	}
}
