// internal/common/schema/coerce.go
package schema

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// coerceNumber converts v using the same rules as JavaScript's Number():
// numbers pass through, strings are trimmed and parsed (empty is 0, 0x/0o/0b
// prefixes are integers), booleans become 1 or 0 and null becomes 0. The result
// must be finite.
func coerceNumber(v any) (float64, bool) {
	var n float64

	switch t := v.(type) {
	case missingValue:
		return 0, false
	case nil:
		n = 0
	case bool:
		if t {
			n = 1
		}
	case string:
		parsed, ok := parseNumericString(t)
		if !ok {
			return 0, false
		}
		n = parsed
	default:
		num, ok := toNumber(v)
		if !ok {
			return 0, false
		}
		n = num
	}

	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimFunc(s, isNumberSpace)
	if s == "" {
		return 0, true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			u, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(u), true
		}
	}

	if !decimalPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// isNumberSpace matches the whitespace Number() trims: tab, vertical tab, form
// feed, BOM, the line terminators and every space separator. Unlike
// unicode.IsSpace it keeps U+0085.
func isNumberSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', '\uFEFF', '\u2028', '\u2029':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}
