package compiler

import (
	"fmt"
	"strings"

	"github.com/irl-dan/openprose/core/types"
)

// interpolationRanges locates each recorded {name} placeholder in the
// decoded value, in order. Braces outside these ranges are literal and
// must re-escape, or the round trip would invent interpolations that were
// escaped in the original source.
func interpolationRanges(value string, meta *types.StringMeta) [][2]int {
	if meta == nil {
		return nil
	}
	var ranges [][2]int
	cursor := 0
	for _, interp := range meta.Interpolations {
		needle := "{" + interp.Name + "}"
		idx := strings.Index(value[cursor:], needle)
		if idx < 0 {
			continue
		}
		start := cursor + idx
		ranges = append(ranges, [2]int{start, start + len(needle)})
		cursor = start + len(needle)
	}
	return ranges
}

// escapeStringBody re-escapes a decoded string body into its most compact
// valid form: named escapes where they exist, \u00xx for remaining control
// bytes, literal braces escaped, interpolation placeholders emitted
// verbatim, and all other codepoints as-is (UTF-8 preserved). In the
// triple-quoted form newlines and tabs stay raw.
func escapeStringBody(value string, meta *types.StringMeta, triple bool) string {
	ranges := interpolationRanges(value, meta)
	inInterpolation := func(i int) bool {
		for _, r := range ranges {
			if i >= r[0] && i < r[1] {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	b.Grow(len(value) + 2)
	for i, r := range value {
		if inInterpolation(i) {
			b.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '{':
			b.WriteString(`\{`)
		case '}':
			b.WriteString(`\}`)
		case '\n':
			if triple {
				b.WriteRune(r)
			} else {
				b.WriteString(`\n`)
			}
		case '\t':
			if triple {
				b.WriteRune(r)
			} else {
				b.WriteString(`\t`)
			}
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// escapeString re-escapes a plain single-line value with no string
// metadata attached (join strategies, synthesized literals).
func escapeString(value string) string {
	return escapeStringBody(value, nil, false)
}
