package at

import (
	"errors"
	"strconv"
	"strings"
)

// Scanning primitives over an immutable string span. Every routine returns
// the extracted value together with the unconsumed remainder so parsers can
// be written as a chain of early returns.

var (
	// ErrPrefixNotFound is returned by SkipPrefix when the span does not
	// start with the expected text.
	ErrPrefixNotFound = errors.New("at: prefix not found")

	// ErrNoValue is returned when the span holds no value at the cursor.
	ErrNoValue = errors.New("at: no value")

	// ErrUnterminatedQuote is returned when a quoted string has no closing quote.
	ErrUnterminatedQuote = errors.New("at: unterminated quoted string")
)

// SkipSpace drops leading spaces.
func SkipSpace(s string) string {
	return strings.TrimLeft(s, " ")
}

// SkipPrefix consumes prefix (after optional leading spaces).
func SkipPrefix(s, prefix string) (rest string, err error) {
	s = SkipSpace(s)
	if !strings.HasPrefix(s, prefix) {
		return s, ErrPrefixNotFound
	}
	return s[len(prefix):], nil
}

// SkipComma consumes a single field separator. It reports false when the
// span has no further field.
func SkipComma(s string) (rest string, ok bool) {
	s = SkipSpace(s)
	if strings.HasPrefix(s, ",") {
		return s[1:], true
	}
	return s, false
}

// Field extracts an unquoted value up to the next comma or the end of the
// span. Surrounding spaces are trimmed.
func Field(s string) (value, rest string) {
	s = SkipSpace(s)
	if i := strings.IndexByte(s, ','); i >= 0 {
		return strings.TrimSpace(s[:i]), s[i:]
	}
	return strings.TrimSpace(s), ""
}

// Quoted extracts a double-quoted string. The quotes are not part of value.
func Quoted(s string) (value, rest string, err error) {
	s = SkipSpace(s)
	if !strings.HasPrefix(s, `"`) {
		return "", s, ErrNoValue
	}
	end := strings.IndexByte(s[1:], '"')
	if end < 0 {
		return "", s, ErrUnterminatedQuote
	}
	return s[1 : 1+end], s[end+2:], nil
}

// String extracts either a quoted or an unquoted value.
func String(s string) (value, rest string, err error) {
	if strings.HasPrefix(SkipSpace(s), `"`) {
		return Quoted(s)
	}
	value, rest = Field(s)
	return value, rest, nil
}

// Int extracts a signed decimal integer.
func Int(s string) (value int, rest string, err error) {
	s = SkipSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 || (end == 1 && (s[0] == '-' || s[0] == '+')) {
		return 0, s, ErrNoValue
	}
	value, err = strconv.Atoi(s[:end])
	if err != nil {
		return 0, s, err
	}
	return value, s[end:], nil
}

// Uint extracts an unsigned decimal integer.
func Uint(s string) (value uint64, rest string, err error) {
	s = SkipSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, s, ErrNoValue
	}
	value, err = strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, s, err
	}
	return value, s[end:], nil
}

// HexUint extracts a hexadecimal integer, optionally quoted.
func HexUint(s string) (value uint64, rest string, err error) {
	str, rest, err := String(s)
	if err != nil {
		return 0, s, err
	}
	if str == "" {
		return 0, s, ErrNoValue
	}
	value, err = strconv.ParseUint(str, 16, 64)
	if err != nil {
		return 0, s, err
	}
	return value, rest, nil
}

// Fields splits a whole comma-separated list. Quoted values keep embedded
// commas and lose their quotes.
func Fields(s string) ([]string, error) {
	var out []string
	s = SkipSpace(s)
	if s == "" {
		return nil, nil
	}
	for {
		v, rest, err := String(s)
		if err != nil && !errors.Is(err, ErrNoValue) {
			return nil, err
		}
		out = append(out, v)
		var ok bool
		if s, ok = SkipComma(rest); !ok {
			return out, nil
		}
	}
}

// CountFields returns the number of comma-separated fields outside quotes.
func CountFields(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	n, quoted := 1, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				n++
			}
		}
	}
	return n
}
