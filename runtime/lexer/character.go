package lexer

// ASCII character lookup tables for fast classification (zero-allocation)
//
// Use inline bounds-checked lookups:
//
//	if ch < 128 && isLetter[ch] { ... }
//
// Unicode characters (ch >= 128) only occur inside strings, discretions, and
// comments, where they are preserved verbatim; identifiers are ASCII-only.
var (
	isInlineSpace [128]bool // space, tab, carriage return, form feed
	isLetter      [128]bool // a-z, A-Z, _
	isDigit       [128]bool // 0-9
	isIdentStart  [128]bool // letter or _ (hyphen not leading)
	isIdentPart   [128]bool // letter, digit, _ or -
	isHexDigit    [128]bool // 0-9, a-f, A-F
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)

		// Whitespace excluding newline - newlines are meaningful tokens
		isInlineSpace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\f'

		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'

		// Identifiers admit letters, digits, underscore, and hyphen; the
		// hyphen may not lead.
		isIdentStart[i] = isLetter[i]
		isIdentPart[i] = isLetter[i] || isDigit[i] || ch == '-'

		isHexDigit[i] = isDigit[i] || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
	}
}

// isIdentifier checks if a string is a valid OpenProse identifier:
// [a-zA-Z_][a-zA-Z0-9_-]*
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	first := s[0]
	if first >= 128 || !isIdentStart[first] {
		return false
	}
	for i := 1; i < len(s); i++ {
		ch := s[i]
		if ch >= 128 || !isIdentPart[ch] {
			return false
		}
	}
	return true
}

// tabWidth is the column width a tab expands to when comparing indentation
// depths. Raw columns in spans still count characters.
const tabWidth = 8
