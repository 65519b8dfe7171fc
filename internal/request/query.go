package request

import (
	"strconv"
	"strings"
)

// FloatParam looks for the literal name (callers usually include the
// trailing '=', e.g. "value=") anywhere in the raw request and parses the
// number that immediately follows it into *value.
//
// When the name is absent *value is left untouched and false is returned,
// so callers must seed it with a sensible default. When the name is
// present but no number follows it, *value becomes 0. Out of range
// numbers saturate to ±Inf.
func FloatParam(raw, name string, value *float64) bool {
	if name == "" || value == nil {
		return false
	}

	idx := strings.Index(raw, name)
	if idx == -1 {
		return false
	}

	num := numericPrefix(raw[idx+len(name):])
	if num == "" {
		*value = 0
		return true
	}

	// ParseFloat returns ±Inf along with ErrRange; keep it.
	f, _ := strconv.ParseFloat(num, 64)
	*value = f
	return true
}

// numericPrefix returns the longest prefix of s that reads as a decimal
// floating point literal: [+-]digits[.digits][(e|E)[+-]digits].
func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return ""
	}

	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expDigits := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			expDigits++
		}
		if expDigits > 0 {
			end = j
		}
	}
	return s[:end]
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
