package headers

import (
	"fmt"
	"strings"
)

// field is one header line. name keeps the casing it was set with,
// lookups compare lowercased keys.
type field struct {
	key   string
	name  string
	value string
}

// Headers is an ordered response header set. Lines are emitted in the
// order their names were first set, which keeps rendered responses
// byte-for-byte deterministic.
type Headers struct {
	fields []field
}

func NewHeaders() *Headers {
	return &Headers{
		fields: make([]field, 0, 4),
	}
}

// Get returns the first value for a header
func (h *Headers) Get(name string) (string, bool) {
	key := strings.ToLower(name)
	for _, f := range h.fields {
		if f.key == key {
			return f.value, true
		}
	}
	return "", false
}

// Set replaces the value of a header in place, or appends it.
func (h *Headers) Set(name, value string) {
	key := strings.ToLower(name)
	for i := range h.fields {
		if h.fields[i].key == key {
			h.fields[i] = field{key: key, name: name, value: value}
			return
		}
	}
	h.fields = append(h.fields, field{key: key, name: name, value: value})
}

// Len returns the number of header lines.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Each calls fn for every header line in order.
func (h *Headers) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.name, f.value)
	}
}

// Validate checks every name is a token and no value can break the
// header block.
func (h *Headers) Validate() error {
	for _, f := range h.fields {
		if f.name == "" {
			return fmt.Errorf("malformed header: empty name")
		}
		for i := 0; i < len(f.name); i++ {
			if !isValidHeaderChar(f.name[i]) {
				return fmt.Errorf("invalid character in header name: %c", f.name[i])
			}
		}
		if strings.ContainsAny(f.value, "\r\n\x00") {
			return fmt.Errorf("malformed header: control character in value of %s", f.name)
		}
	}
	return nil
}

func isValidHeaderChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}
