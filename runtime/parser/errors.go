package parser

import (
	"github.com/irl-dan/openprose/core/types"
)

// errorf records a parse error at the given span.
func (p *parser) errorf(span types.SourceSpan, format string, args ...any) {
	p.errors = append(p.errors, types.Errorf(span, format, args...))
}

// errorAtCur records a parse error at the current token.
func (p *parser) errorAtCur(format string, args ...any) {
	p.errorf(p.cur().Span, format, args...)
}

// expectedError reports a missing-token condition: what was required, what
// was found.
func (p *parser) expectedError(what string) {
	tok := p.cur()
	switch tok.Type {
	case types.EOF:
		p.errorf(tok.Span, "expected %s, found end of file", what)
	case types.NEWLINE:
		p.errorf(tok.Span, "expected %s, found end of line", what)
	case types.INDENT, types.DEDENT:
		p.errorf(tok.Span, "expected %s, found %s", what, describeIndent(tok.Type))
	default:
		p.errorf(tok.Span, "expected %s, found %q", what, tok.Value)
	}
}

func describeIndent(t types.TokenType) string {
	if t == types.INDENT {
		return "an indented block"
	}
	return "the end of the block"
}

// sync advances to the next statement boundary: just past a NEWLINE, or
// stopped at DEDENT/EOF. Every failed production calls this exactly once so
// one mistake yields one error.
func (p *parser) sync() {
	depth := 0
	for {
		switch p.cur().Type {
		case types.EOF:
			return
		case types.NEWLINE:
			p.advance()
			if depth == 0 {
				return
			}
		case types.INDENT:
			depth++
			p.advance()
		case types.DEDENT:
			if depth == 0 {
				return
			}
			depth--
			p.advance()
		default:
			p.advance()
		}
	}
}
