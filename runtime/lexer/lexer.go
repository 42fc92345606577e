// Package lexer turns OpenProse source text into a token stream.
//
// The language is indentation-sensitive: the lexer measures leading
// whitespace at the start of every logical line and synthesizes INDENT and
// DEDENT tokens against an indent stack. Blank lines and comment-only lines
// never touch the stack. String literals are decoded here, once, and carry
// their escape and interpolation metadata on the token.
//
// The lexer never panics and never stops early: every malformed construct
// appends a diagnostic and scanning resumes, usually at the next line.
package lexer

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/irl-dan/openprose/core/invariant"
	"github.com/irl-dan/openprose/core/types"
)

// Result is the lexer output: the token stream and any diagnostics.
type Result struct {
	Tokens []types.Token
	Errors []types.Diagnostic
}

// Option configures a Lexer.
type Option func(*config)

type config struct {
	includeComments bool
}

// WithComments controls whether COMMENT tokens appear in the output stream.
// Comments are included by default; the parser and the semantic-token
// producer both rely on them.
func WithComments(include bool) Option {
	return func(c *config) { c.includeComments = include }
}

// Lexer scans a single in-memory source buffer. Not safe for reuse; create
// one per input.
type Lexer struct {
	input  string
	pos    int  // byte offset of ch
	ch     rune // current character, -1 at EOF
	chLen  int  // byte length of ch
	line   int  // 1-based
	column int  // 1-based, counted in characters

	indents     []int // indent width stack, always starts with 0
	atLineStart bool
	lineContent bool // current physical line emitted a non-comment token

	cfg    config
	tokens []types.Token
	errors []types.Diagnostic
	logger *slog.Logger
}

// New creates a Lexer for the given source buffer.
func New(source []byte, opts ...Option) *Lexer {
	cfg := config{includeComments: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("PROSE_DEBUG_LEXER") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))

	l := &Lexer{
		input:       string(source),
		line:        1,
		column:      1,
		indents:     []int{0},
		atLineStart: true,
		cfg:         cfg,
		logger:      logger,
	}
	l.readChar()
	return l
}

// Tokenize scans the entire input and returns the token stream.
func Tokenize(source []byte, opts ...Option) Result {
	return New(source, opts...).Tokenize()
}

// Tokenize runs the scan loop to EOF.
func (l *Lexer) Tokenize() Result {
	for l.ch != -1 {
		if l.atLineStart {
			l.scanLineStart()
			continue
		}
		l.scanInLine()
	}
	l.finish()
	return Result{Tokens: l.tokens, Errors: l.errors}
}

// readChar advances to the next character, tracking line and column.
func (l *Lexer) readChar() {
	l.pos += l.chLen
	if l.ch == '\n' {
		l.line++
		l.column = 1
	} else if l.chLen > 0 {
		l.column++
	}
	if l.pos >= len(l.input) {
		l.ch = -1
		l.chLen = 0
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.ch = r
	l.chLen = size
}

func (l *Lexer) peekByte() byte {
	if l.pos+l.chLen >= len(l.input) {
		return 0
	}
	return l.input[l.pos+l.chLen]
}

func (l *Lexer) here() types.SourcePosition {
	return types.SourcePosition{Line: l.line, Column: l.column, Offset: l.pos}
}

func spanAt(p types.SourcePosition) types.SourceSpan {
	return types.SourceSpan{Start: p, End: p}
}

func (l *Lexer) emit(t types.Token) {
	if t.Type == types.COMMENT && !l.cfg.includeComments {
		return
	}
	l.tokens = append(l.tokens, t)
	l.logger.Debug("token", "type", t.Type.String(), "value", t.Value, "span", t.Span.String())
}

func (l *Lexer) errorf(span types.SourceSpan, format string, args ...any) {
	l.errors = append(l.errors, types.Errorf(span, format, args...))
}

func (l *Lexer) warnf(span types.SourceSpan, format string, args ...any) {
	l.errors = append(l.errors, types.Warnf(span, format, args...))
}

// scanLineStart measures indentation and decides what the line is: blank,
// comment-only, or content. Only content lines touch the indent stack.
func (l *Lexer) scanLineStart() {
	start := l.here()
	width := 0
	for l.ch == ' ' || l.ch == '\t' {
		if l.ch == '\t' {
			width += tabWidth - width%tabWidth
		} else {
			width++
		}
		l.readChar()
	}
	// Trailing carriage returns and form feeds are whitespace too.
	for l.ch == '\r' || l.ch == '\f' {
		l.readChar()
	}

	switch {
	case l.ch == -1:
		return
	case l.ch == '\n':
		// Blank line: no tokens, indent stack untouched.
		l.readChar()
		return
	case l.ch == '#':
		// Comment-only line: emit the comment, keep the stack untouched.
		l.scanComment(false)
		if l.ch == '\n' {
			l.readChar()
		}
		return
	}

	l.applyIndent(width, start)
	l.atLineStart = false
	l.lineContent = false
}

// applyIndent compares the measured width against the indent stack and
// synthesizes INDENT/DEDENT tokens at the line's first content character.
func (l *Lexer) applyIndent(width int, at types.SourcePosition) {
	invariant.Precondition(len(l.indents) > 0, "indent stack must never be empty")
	top := l.indents[len(l.indents)-1]

	switch {
	case width > top:
		l.indents = append(l.indents, width)
		l.emit(types.Token{Type: types.INDENT, Span: spanAt(l.here())})
	case width < top:
		for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(types.Token{Type: types.DEDENT, Span: spanAt(l.here())})
		}
		if l.indents[len(l.indents)-1] != width {
			l.errorf(types.SourceSpan{Start: at, End: l.here()},
				"unindent does not match any outer indentation level")
			// Recover by treating the current width as the active level.
			l.indents[len(l.indents)-1] = width
		}
	}
}

// scanInLine scans one token (or the line terminator) inside a content line.
func (l *Lexer) scanInLine() {
	for l.ch != -1 && l.ch < 128 && isInlineSpace[l.ch] {
		l.readChar()
	}

	switch {
	case l.ch == -1:
		return
	case l.ch == '\n':
		l.emitNewline()
		l.readChar()
		l.atLineStart = true
	case l.ch == '#':
		l.scanComment(l.lineContent)
	case l.ch == '"':
		l.scanString()
	case l.ch == '*':
		l.scanDiscretion()
	case l.ch < 128 && isDigit[l.ch]:
		l.scanNumber()
	case l.ch < 128 && isIdentStart[l.ch]:
		l.scanIdentifier()
	default:
		l.scanPunctuation()
	}
}

func (l *Lexer) emitNewline() {
	start := l.here()
	end := start
	end.Column++
	end.Offset++
	l.emit(types.Token{Type: types.NEWLINE, Span: types.SourceSpan{Start: start, End: end}})
}

// finish flushes the trailing NEWLINE, pending DEDENTs, and EOF.
func (l *Lexer) finish() {
	if !l.atLineStart {
		l.emit(types.Token{Type: types.NEWLINE, Span: spanAt(l.here())})
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(types.Token{Type: types.DEDENT, Span: spanAt(l.here())})
	}
	l.emit(types.Token{Type: types.EOF, Span: spanAt(l.here())})
}

// scanComment consumes # to end of line without consuming the newline.
func (l *Lexer) scanComment(inline bool) {
	start := l.here()
	l.readChar() // consume #
	bodyStart := l.pos
	for l.ch != -1 && l.ch != '\n' {
		l.readChar()
	}
	text := l.input[bodyStart:l.pos]
	l.emit(types.Token{
		Type:   types.COMMENT,
		Value:  strings.TrimRight(text, "\r"),
		Span:   types.SourceSpan{Start: start, End: l.here()},
		Inline: inline,
	})
}

func (l *Lexer) scanIdentifier() {
	start := l.here()
	for l.ch != -1 && l.ch < 128 && isIdentPart[l.ch] {
		l.readChar()
	}
	lexeme := l.input[start.Offset:l.pos]
	span := types.SourceSpan{Start: start, End: l.here()}
	if kw, ok := types.LookupKeyword(lexeme); ok {
		l.emit(types.Token{Type: kw, Value: lexeme, Span: span})
	} else {
		l.emit(types.Token{Type: types.IDENTIFIER, Value: lexeme, Span: span})
	}
	l.lineContent = true
}

// scanNumber scans decimal integers and decimal-point fractionals. A
// leading '-' is not part of the literal.
func (l *Lexer) scanNumber() {
	start := l.here()
	for l.ch != -1 && l.ch < 128 && isDigit[l.ch] {
		l.readChar()
	}
	if l.ch == '.' && l.peekByte() != 0 && l.peekByte() < 128 && isDigit[l.peekByte()] {
		l.readChar() // consume .
		for l.ch != -1 && l.ch < 128 && isDigit[l.ch] {
			l.readChar()
		}
	}
	l.emit(types.Token{
		Type:  types.NUMBER,
		Value: l.input[start.Offset:l.pos],
		Span:  types.SourceSpan{Start: start, End: l.here()},
	})
	l.lineContent = true
}

func (l *Lexer) scanPunctuation() {
	start := l.here()
	ch := l.ch

	var t types.TokenType
	switch ch {
	case ':':
		t = types.COLON
	case '=':
		t = types.EQUALS
	case ',':
		t = types.COMMA
	case '(':
		t = types.LPAREN
	case ')':
		t = types.RPAREN
	case '[':
		t = types.LBRACKET
	case ']':
		t = types.RBRACKET
	case '{':
		t = types.LBRACE
	case '}':
		t = types.RBRACE
	case '|':
		t = types.PIPE
	case '-':
		if l.peekByte() == '>' {
			l.readChar()
			l.readChar()
			l.emit(types.Token{Type: types.ARROW, Value: "->",
				Span: types.SourceSpan{Start: start, End: l.here()}})
			l.lineContent = true
			return
		}
		l.unexpected(start, ch)
		return
	default:
		l.unexpected(start, ch)
		return
	}

	l.readChar()
	l.emit(types.Token{Type: t, Value: string(ch),
		Span: types.SourceSpan{Start: start, End: l.here()}})
	l.lineContent = true
}

func (l *Lexer) unexpected(start types.SourcePosition, ch rune) {
	l.readChar()
	span := types.SourceSpan{Start: start, End: l.here()}
	l.errorf(span, "unexpected character %q", ch)
	l.emit(types.Token{Type: types.ILLEGAL, Value: string(ch), Span: span})
	l.lineContent = true
}

// scanDiscretion handles **inline** and ***multiline*** discretion spans.
// The body is opaque: it is carried verbatim on the token and never parsed.
func (l *Lexer) scanDiscretion() {
	start := l.here()
	l.readChar() // first *
	if l.ch != '*' {
		l.unexpectedAt(start, "*")
		return
	}
	l.readChar() // second *

	if l.ch == '*' {
		l.readChar() // third *
		l.scanMultilineDiscretion(start)
		return
	}

	// Inline form: body runs to the next ** on the same line.
	bodyStart := l.pos
	for l.ch != -1 && l.ch != '\n' {
		if l.ch == '*' && l.peekByte() == '*' {
			body := l.input[bodyStart:l.pos]
			l.readChar()
			l.readChar()
			l.emit(types.Token{
				Type:  types.DISCRETION,
				Value: body,
				Span:  types.SourceSpan{Start: start, End: l.here()},
			})
			l.lineContent = true
			return
		}
		l.readChar()
	}
	l.errorf(types.SourceSpan{Start: start, End: l.here()}, "unterminated discretion, expected closing **")
	l.emit(types.Token{
		Type:  types.DISCRETION,
		Value: l.input[bodyStart:l.pos],
		Span:  types.SourceSpan{Start: start, End: l.here()},
	})
	l.lineContent = true
}

func (l *Lexer) unexpectedAt(start types.SourcePosition, lexeme string) {
	span := types.SourceSpan{Start: start, End: l.here()}
	l.errorf(span, "unexpected character %q", lexeme)
	l.emit(types.Token{Type: types.ILLEGAL, Value: lexeme, Span: span})
	l.lineContent = true
}

// scanMultilineDiscretion consumes lines after *** until a line whose
// trimmed content begins with ***. Scanning resumes right after the closing
// delimiter so a trailing ':' on the terminator line still tokenizes.
func (l *Lexer) scanMultilineDiscretion(start types.SourcePosition) {
	// The opening *** must end its line.
	for l.ch != -1 && l.ch != '\n' && l.ch < 128 && isInlineSpace[l.ch] {
		l.readChar()
	}
	if l.ch != '\n' && l.ch != -1 {
		l.errorf(types.SourceSpan{Start: start, End: l.here()},
			"expected newline after opening ***")
	}

	var body []string
	for l.ch != -1 {
		if l.ch == '\n' {
			l.readChar()
		}
		lineStart := l.pos
		// Peek at the trimmed line content without consuming.
		lineEnd := strings.IndexByte(l.input[lineStart:], '\n')
		var line string
		if lineEnd < 0 {
			line = l.input[lineStart:]
		} else {
			line = l.input[lineStart : lineStart+lineEnd]
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "***") {
			// Consume up to and including the delimiter.
			for !(l.ch == '*' && strings.HasPrefix(l.input[l.pos:], "***")) && l.ch != -1 {
				l.readChar()
			}
			for i := 0; i < 3 && l.ch == '*'; i++ {
				l.readChar()
			}
			l.emit(types.Token{
				Type:      types.DISCRETION,
				Value:     strings.Join(body, "\n"),
				Span:      types.SourceSpan{Start: start, End: l.here()},
				Multiline: true,
			})
			l.lineContent = true
			return
		}
		body = append(body, line)
		// Consume the line.
		for l.ch != -1 && l.ch != '\n' {
			l.readChar()
		}
		if l.ch == -1 {
			break
		}
	}
	l.errorf(types.SourceSpan{Start: start, End: l.here()},
		"unterminated multiline discretion, expected closing ***")
	l.emit(types.Token{
		Type:      types.DISCRETION,
		Value:     strings.Join(body, "\n"),
		Span:      types.SourceSpan{Start: start, End: l.here()},
		Multiline: true,
	})
	l.lineContent = true
}

// decodedRune is one rune of a decoded string body with its provenance.
type decodedRune struct {
	r       rune
	escaped bool
	src     types.SourcePosition
}

// scanString dispatches between single-line and triple-quoted literals.
func (l *Lexer) scanString() {
	start := l.here()
	if strings.HasPrefix(l.input[l.pos:], `"""`) {
		l.scanTripleString(start)
		return
	}
	l.scanSingleString(start)
}

func (l *Lexer) scanSingleString(start types.SourcePosition) {
	l.readChar() // opening quote
	var runes []decodedRune
	var escapes []types.EscapeSequence

	for {
		switch {
		case l.ch == -1 || l.ch == '\n':
			span := types.SourceSpan{Start: start, End: l.here()}
			l.errorf(span, "unterminated string literal")
			l.emitString(start, span, runes, escapes, false)
			return
		case l.ch == '"':
			l.readChar()
			span := types.SourceSpan{Start: start, End: l.here()}
			l.emitString(start, span, runes, escapes, false)
			return
		case l.ch == '\\':
			runes = l.decodeEscape(runes, &escapes)
		default:
			runes = append(runes, decodedRune{r: l.ch, src: l.here()})
			l.readChar()
		}
	}
}

func (l *Lexer) scanTripleString(start types.SourcePosition) {
	l.readChar() // "
	l.readChar() // "
	l.readChar() // "
	var runes []decodedRune
	var escapes []types.EscapeSequence

	for {
		switch {
		case l.ch == -1:
			span := types.SourceSpan{Start: start, End: l.here()}
			l.errorf(span, "unterminated string literal")
			l.emitString(start, span, runes, escapes, true)
			return
		case l.ch == '"' && strings.HasPrefix(l.input[l.pos:], `"""`):
			l.readChar()
			l.readChar()
			l.readChar()
			span := types.SourceSpan{Start: start, End: l.here()}
			l.emitString(start, span, runes, escapes, true)
			return
		case l.ch == '\\':
			runes = l.decodeEscape(runes, &escapes)
		default:
			runes = append(runes, decodedRune{r: l.ch, src: l.here()})
			l.readChar()
		}
	}
}

// standardEscapes maps the recognized single-character escapes. \{ and \}
// are included so escaped braces never read as interpolation delimiters.
var standardEscapes = map[rune]rune{
	'\\': '\\',
	'"':  '"',
	'n':  '\n',
	'r':  '\r',
	't':  '\t',
	'0':  0,
	'#':  '#',
	'{':  '{',
	'}':  '}',
}

// decodeEscape consumes one backslash escape and appends its decoded runes.
func (l *Lexer) decodeEscape(runes []decodedRune, escapes *[]types.EscapeSequence) []decodedRune {
	escStart := l.here()
	l.readChar() // backslash

	if l.ch == -1 || l.ch == '\n' {
		// Dangling backslash at end of line; the caller reports the
		// unterminated string.
		runes = append(runes, decodedRune{r: '\\', escaped: true, src: escStart})
		return runes
	}

	if resolved, ok := standardEscapes[l.ch]; ok {
		lexeme := "\\" + string(l.ch)
		l.readChar()
		span := types.SourceSpan{Start: escStart, End: l.here()}
		*escapes = append(*escapes, types.EscapeSequence{
			Kind:     types.EscapeStandard,
			Lexeme:   lexeme,
			Resolved: string(resolved),
			Span:     span,
		})
		return append(runes, decodedRune{r: resolved, escaped: true, src: escStart})
	}

	if l.ch == 'u' {
		return l.decodeUnicodeEscape(runes, escapes, escStart)
	}

	// Unknown escape: warn and decode as the bare character.
	ch := l.ch
	lexeme := "\\" + string(ch)
	l.readChar()
	span := types.SourceSpan{Start: escStart, End: l.here()}
	l.warnf(span, "unknown escape sequence %q", lexeme)
	*escapes = append(*escapes, types.EscapeSequence{
		Kind:     types.EscapeInvalid,
		Lexeme:   lexeme,
		Resolved: string(ch),
		Span:     span,
	})
	return append(runes, decodedRune{r: ch, escaped: true, src: escStart})
}

// decodeUnicodeEscape handles \uXXXX with exactly four hex digits.
func (l *Lexer) decodeUnicodeEscape(runes []decodedRune, escapes *[]types.EscapeSequence, escStart types.SourcePosition) []decodedRune {
	l.readChar() // u
	var hex strings.Builder
	for i := 0; i < 4; i++ {
		if l.ch == -1 || l.ch >= 128 || !isHexDigit[l.ch] {
			span := types.SourceSpan{Start: escStart, End: l.here()}
			l.errorf(span, "invalid unicode escape, expected four hex digits")
			*escapes = append(*escapes, types.EscapeSequence{
				Kind:   types.EscapeInvalid,
				Lexeme: `\u` + hex.String(),
				Span:   span,
			})
			return runes
		}
		hex.WriteRune(l.ch)
		l.readChar()
	}
	var code int
	fmt.Sscanf(hex.String(), "%x", &code)
	span := types.SourceSpan{Start: escStart, End: l.here()}
	*escapes = append(*escapes, types.EscapeSequence{
		Kind:     types.EscapeUnicode,
		Lexeme:   `\u` + hex.String(),
		Resolved: string(rune(code)),
		Span:     span,
	})
	return append(runes, decodedRune{r: rune(code), escaped: true, src: escStart})
}

// emitString assembles the decoded value, scans it for interpolations, and
// emits the STRING token.
func (l *Lexer) emitString(start types.SourcePosition, span types.SourceSpan, runes []decodedRune, escapes []types.EscapeSequence, triple bool) {
	var b strings.Builder
	for _, dr := range runes {
		b.WriteRune(dr.r)
	}
	interps, unclosed := findInterpolations(runes)
	l.emit(types.Token{
		Type:  types.STRING,
		Value: b.String(),
		Span:  span,
		String: &types.StringMeta{
			Raw:            l.input[start.Offset:span.End.Offset],
			TripleQuoted:   triple,
			Escapes:        escapes,
			Interpolations: interps,
			UnclosedBrace:  unclosed,
		},
	})
	l.lineContent = true
}

// findInterpolations walks the decoded body for {name} placeholders.
// Escaped braces and the doubled forms {{ }} are literal; empty braces and
// non-identifier bodies are literal; a bare unmatched { is recorded for the
// validator to report.
func findInterpolations(runes []decodedRune) ([]types.Interpolation, *types.SourceSpan) {
	var interps []types.Interpolation
	var unclosed *types.SourceSpan

	openBrace := func(i int) bool { return runes[i].r == '{' && !runes[i].escaped }
	closeBrace := func(i int) bool { return runes[i].r == '}' && !runes[i].escaped }

	for i := 0; i < len(runes); i++ {
		switch {
		case openBrace(i):
			if i+1 < len(runes) && openBrace(i+1) {
				i++ // literal {{
				continue
			}
			j := i + 1
			for j < len(runes) && !closeBrace(j) && runes[j].r != '{' {
				j++
			}
			if j >= len(runes) || !closeBrace(j) {
				if unclosed == nil {
					s := spanAt(runes[i].src)
					s.End.Column++
					s.End.Offset++
					unclosed = &s
				}
				continue
			}
			var name strings.Builder
			for k := i + 1; k < j; k++ {
				name.WriteRune(runes[k].r)
			}
			if isIdentifier(name.String()) {
				end := runes[j].src
				end.Column++
				end.Offset++
				interps = append(interps, types.Interpolation{
					Name: name.String(),
					Span: types.SourceSpan{Start: runes[i].src, End: end},
				})
			}
			i = j
		case closeBrace(i):
			if i+1 < len(runes) && closeBrace(i+1) {
				i++ // literal }}
			}
		}
	}
	return interps, unclosed
}
