package router

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/pico-http/internal/response"
)

func constant(body string) HandlerFunc {
	return func(c *Context) string { return body }
}

func TestHomepageWinsOverOverlappingRoutes(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/", constant("route")))
	r.SetHomepage("<h1>home</h1>")

	res := r.Resolve("/", "/ HTTP/1.1\r\n\r\n")
	assert.Equal(t, response.StatusOK, res.Status)
	assert.Equal(t, "text/html", res.ContentType)
	assert.Equal(t, "<h1>home</h1>", res.Body)
	assert.Equal(t, RootPath, res.Route)

	// Anything other than the exact root path goes to the table
	res = r.Resolve("/?x=1", "/?x=1 HTTP/1.1\r\n\r\n")
	assert.Equal(t, "route", res.Body)
}

func TestRootWithoutHomepageUsesTable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/", constant("route")))

	res := r.Resolve("/", "/ HTTP/1.1")
	assert.Equal(t, response.StatusOK, res.Status)
	assert.Equal(t, "route", res.Body)
}

func TestEmptyHomepageIsStillAHomepage(t *testing.T) {
	r := New()
	r.SetHomepage("")

	res := r.Resolve("/", "/ HTTP/1.1")
	assert.Equal(t, response.StatusOK, res.Status)
	assert.Equal(t, "", res.Body)
}

func TestSubstringMatching(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/api", constant("api")))

	for _, path := range []string{"/api", "/api/status", "/api2/other", "/v1/api"} {
		res := r.Resolve(path, path+" HTTP/1.1")
		assert.Equal(t, response.StatusOK, res.Status, path)
		assert.Equal(t, "api", res.Body, path)
		assert.Equal(t, "/api", res.Route, path)
	}

	res := r.Resolve("/ap", "/ap HTTP/1.1")
	assert.Equal(t, response.StatusNotFound, res.Status)
}

func TestRegistrationOrderIsPriority(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/api", constant("first")))
	require.NoError(t, r.Register("/api/status", constant("second")))

	res := r.Resolve("/api/status", "/api/status HTTP/1.1")
	assert.Equal(t, "first", res.Body)
}

func TestNoMatchIs404WithEmptyBody(t *testing.T) {
	r := New()

	res := r.Resolve("/missing", "/missing HTTP/1.1")
	assert.Equal(t, response.StatusNotFound, res.Status)
	assert.Equal(t, "", res.Body)
	assert.Equal(t, "", res.ContentType)
	assert.Equal(t, "", res.Route)
}

func TestContentTypePropagation(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/api/status", func(c *Context) string {
		c.SetContentType(ContentTypeJSON)
		return `{"level":2}`
	}))
	require.NoError(t, r.Register("/text", func(c *Context) string {
		c.SetContentType(ContentTypePlain)
		return "plain"
	}))

	res := r.Resolve("/api/status", "/api/status HTTP/1.1")
	assert.Equal(t, "application/json", res.ContentType)
	assert.Len(t, res.Body, 11)

	res = r.Resolve("/text", "/text HTTP/1.1")
	assert.Equal(t, "text/plain", res.ContentType)
}

func TestContentTypeDoesNotLeakAcrossRequests(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/json", func(c *Context) string {
		c.SetContentType(ContentTypeJSON)
		return "{}"
	}))
	require.NoError(t, r.Register("/page", constant("<p>hi</p>")))

	res := r.Resolve("/json", "/json HTTP/1.1")
	require.Equal(t, "application/json", res.ContentType)

	res = r.Resolve("/page", "/page HTTP/1.1")
	assert.Equal(t, "text/html", res.ContentType)
}

func TestHandlerSeesRawRequest(t *testing.T) {
	r := New()
	var seen *Context
	require.NoError(t, r.Register("/api/threshold", func(c *Context) string {
		seen = c
		return ""
	}))

	line := "/api/threshold?value=3.5 HTTP/1.1\r\nHost: pico\r\n\r\n"
	r.Resolve("/api/threshold?value=3.5", line)

	require.NotNil(t, seen)
	assert.Equal(t, line, seen.Request)
	assert.Equal(t, "/api/threshold?value=3.5", seen.Path)
	assert.Equal(t, "/api/threshold", seen.Route)
	assert.Equal(t, 3.5, seen.FloatParam("value=", 0.5))
	assert.Equal(t, 0.5, seen.FloatParam("missing=", 0.5))
}

func TestTableCapacity(t *testing.T) {
	r := New(WithCapacity(2))
	require.NoError(t, r.Register("/a", constant("a")))
	require.NoError(t, r.Register("/b", constant("b")))

	err := r.Register("/c", constant("c"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouteTableFull)
	assert.Equal(t, 2, r.Table().Len())
	assert.Equal(t, 2, r.Table().Cap())

	res := r.Resolve("/c", "/c HTTP/1.1")
	assert.Equal(t, response.StatusNotFound, res.Status)
}

func TestDefaultCapacity(t *testing.T) {
	tbl := NewTable(0)
	for i := 0; i < DefaultCapacity; i++ {
		require.NoError(t, tbl.Register("/r"+strings.Repeat("x", i), constant("")))
	}
	assert.ErrorIs(t, tbl.Register("/overflow", constant("")), ErrRouteTableFull)
	assert.Len(t, tbl.Routes(), DefaultCapacity)
}

func TestRegisterRejectsInvalidRoutes(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Register("", constant("x")), ErrEmptyPattern)
	assert.ErrorIs(t, r.Register("/x", nil), ErrNilHandler)
	assert.Equal(t, 0, r.Table().Len())
}

func TestHandlerPanicIs500(t *testing.T) {
	var logs bytes.Buffer
	r := New(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, r.Register("/boom", func(c *Context) string {
		c.SetContentType(ContentTypeJSON)
		panic("sensor bus stuck")
	}))

	res := r.Resolve("/boom", "/boom HTTP/1.1")
	assert.Equal(t, response.StatusInternalServerError, res.Status)
	assert.Equal(t, "", res.Body)
	assert.Equal(t, "", res.ContentType)
	assert.Contains(t, logs.String(), "handler panic recovered")
	assert.Contains(t, logs.String(), "sensor bus stuck")
}

func TestMiddlewareWrapsLaterRegistrations(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("/before", constant("before")))

	r.Use(func(next HandlerFunc) HandlerFunc {
		return func(c *Context) string { return "[" + next(c) + "]" }
	})
	require.NoError(t, r.Register("/after", constant("after")))

	assert.Equal(t, "before", r.Resolve("/before", "").Body)
	assert.Equal(t, "[after]", r.Resolve("/after", "").Body)
}

func TestSlowHandlerMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	base := time.Unix(0, 0)
	ticks := []time.Time{base, base.Add(50 * time.Millisecond), base, base.Add(time.Millisecond)}
	now := func() time.Time {
		tick := ticks[0]
		ticks = ticks[1:]
		return tick
	}

	r := New()
	r.Use(SlowHandler(logger, 10*time.Millisecond, now), Logging(logger))
	require.NoError(t, r.Register("/slow", constant("x")))

	r.Resolve("/slow", "")
	assert.Contains(t, logs.String(), "slow handler")

	logs.Reset()
	r.Resolve("/slow", "")
	assert.NotContains(t, logs.String(), "slow handler")
}

func TestReadHTMLFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/www/index.html", []byte("<html>\r\n  <body>\n<h1>hi</h1>\n</body>\r\n</html>\n"), 0o644))

	page, err := ReadHTMLFile(fs, "/www/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<html>  <body><h1>hi</h1></body></html>", page)
}

func TestReadHTMLFileMissing(t *testing.T) {
	_, err := ReadHTMLFile(afero.NewMemMapFs(), "/nope.html")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestContentTypeMIME(t *testing.T) {
	assert.Equal(t, "text/html", ContentTypeHTML.MIME())
	assert.Equal(t, "application/json", ContentTypeJSON.MIME())
	assert.Equal(t, "text/plain", ContentTypePlain.MIME())
	assert.Equal(t, "text/html", ContentType(42).String())
}
