package headers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(h *Headers) []string {
	var lines []string
	h.Each(func(name, value string) {
		lines = append(lines, name+": "+value)
	})
	return lines
}

func TestHeadersSetGet(t *testing.T) {
	// Test: Case insensitive lookup
	h := NewHeaders()
	h.Set("Content-Type", "application/json")
	val, ok := h.Get("content-type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", val)
	val, ok = h.Get("CONTENT-TYPE")
	assert.True(t, ok)
	assert.Equal(t, "application/json", val)

	// Test: Get on non-existent header
	val, ok = h.Get("non-existent")
	assert.False(t, ok)
	assert.Equal(t, "", val)
}

func TestHeadersOrderIsInsertionOrder(t *testing.T) {
	h := NewHeaders()
	h.Set("Content-Type", "text/html")
	h.Set("Content-Length", "11")
	h.Set("Connection", "close")

	assert.Equal(t, []string{
		"Content-Type: text/html",
		"Content-Length: 11",
		"Connection: close",
	}, collect(h))
}

func TestHeadersSetReplacesInPlace(t *testing.T) {
	h := NewHeaders()
	h.Set("X-Custom", "value1")
	h.Set("Connection", "close")
	h.Set("x-custom", "new-value")

	val, ok := h.Get("X-Custom")
	assert.True(t, ok)
	assert.Equal(t, "new-value", val)
	assert.Equal(t, []string{"x-custom: new-value", "Connection: close"}, collect(h))
	assert.Equal(t, 2, h.Len())
}

func TestHeadersValidate(t *testing.T) {
	h := NewHeaders()
	h.Set("Content-Type", "text/plain")
	require.NoError(t, h.Validate())

	// Test: Whitespace in name (invalid)
	h = NewHeaders()
	h.Set("Ho st", "localhost")
	err := h.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid character")

	// Test: CRLF in value would split the header block
	h = NewHeaders()
	h.Set("X-Injected", "a\r\nSet-Cookie: b")
	err = h.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")

	// Test: Empty name
	h = NewHeaders()
	h.Set("", "x")
	require.Error(t, h.Validate())
}
