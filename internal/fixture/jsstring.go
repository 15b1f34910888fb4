package fixture

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// unquoteJS decodes a quoted or backtick JS string literal. Template
// literals reaching here have no substitutions.
func unquoteJS(raw string) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("bad string literal %q", raw)
	}
	quote := raw[0]
	if (quote != '"' && quote != '\'' && quote != '`') || raw[len(raw)-1] != quote {
		return "", fmt.Errorf("bad string literal %q", raw)
	}
	s, err := decodeJSEscapes(raw[1 : len(raw)-1])
	if err != nil {
		return "", fmt.Errorf("bad string literal %s: %w", raw, err)
	}
	return s, nil
}

// decodeJSEscapes resolves the escape sequences of a JS string body.
// An escaped character without special meaning stands for itself.
func decodeJSEscapes(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			i++
			continue
		}
		i++
		if i == len(s) {
			return "", fmt.Errorf("trailing backslash")
		}
		c := s[i]
		i++
		switch c {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '\r':
			// Line continuation.
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case '\n':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// Legacy octal; "\0" alone is NUL.
			n := int(c - '0')
			more := 2
			if c > '3' {
				more = 1
			}
			for k := 0; k < more && i < len(s) && s[i] >= '0' && s[i] <= '7'; k++ {
				n = n*8 + int(s[i]-'0')
				i++
			}
			b.WriteRune(rune(n))
		case 'x':
			r, err := parseHex(s, i, 2)
			if err != nil {
				return "", err
			}
			i += 2
			b.WriteRune(r)
		case 'u':
			r, next, err := unicodeEscape(s, i)
			if err != nil {
				return "", err
			}
			i = next
			if utf16.IsSurrogate(r) && strings.HasPrefix(s[i:], `\u`) {
				if lo, after, err := unicodeEscape(s, i+2); err == nil {
					if pair := utf16.DecodeRune(r, lo); pair != utf8.RuneError {
						r, i = pair, after
					}
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// unicodeEscape decodes the body of a \u escape starting at s[i], either
// XXXX or {X...}. It returns the rune and the index after the escape.
func unicodeEscape(s string, i int) (rune, int, error) {
	if i < len(s) && s[i] == '{' {
		end := strings.IndexByte(s[i:], '}')
		if end < 2 {
			return 0, 0, fmt.Errorf(`bad \u{} escape`)
		}
		r, err := parseHex(s, i+1, end-1)
		if err != nil {
			return 0, 0, err
		}
		if r > utf8.MaxRune {
			return 0, 0, fmt.Errorf("code point %X out of range", r)
		}
		return r, i + end + 1, nil
	}
	r, err := parseHex(s, i, 4)
	if err != nil {
		return 0, 0, err
	}
	return r, i + 4, nil
}

func parseHex(s string, i, n int) (rune, error) {
	if i+n > len(s) {
		return 0, fmt.Errorf("short hex escape %q", s[i-1:])
	}
	v, err := strconv.ParseUint(s[i:i+n], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad hex escape %q", s[i:i+n])
	}
	return rune(v), nil
}
