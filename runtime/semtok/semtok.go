// Package semtok labels source ranges for editor highlighting. It is a
// pure function over the lexer's token stream: each token kind maps to one
// of a small closed set of editor categories, and structural tokens map to
// nothing.
package semtok

import (
	"github.com/irl-dan/openprose/core/types"
	"github.com/irl-dan/openprose/runtime/lexer"
)

// Category is an editor highlighting class.
type Category int

const (
	CategoryKeyword Category = iota
	CategoryVariable
	CategoryString
	CategoryNumber
	CategoryOperator
	CategoryComment
	CategoryMacro // discretion markers
)

func (c Category) String() string {
	switch c {
	case CategoryKeyword:
		return "keyword"
	case CategoryVariable:
		return "variable"
	case CategoryString:
		return "string"
	case CategoryNumber:
		return "number"
	case CategoryOperator:
		return "operator"
	case CategoryComment:
		return "comment"
	case CategoryMacro:
		return "macro"
	default:
		return "unknown"
	}
}

// Token is one highlighted range. Length is in bytes of source text;
// Line and Column are 1-based, matching lexical spans.
type Token struct {
	Line     int
	Column   int
	Length   int
	Category Category
}

// Tokens lexes the source and maps every lexical token to its category.
// Tokens come out sorted by position because the lexer emits them so.
func Tokens(source []byte) []Token {
	lexed := lexer.Tokenize(source)
	out := make([]Token, 0, len(lexed.Tokens))
	for _, tok := range lexed.Tokens {
		cat, ok := categorize(tok.Type)
		if !ok {
			continue
		}
		out = append(out, Token{
			Line:     tok.Span.Start.Line,
			Column:   tok.Span.Start.Column,
			Length:   tok.Span.End.Offset - tok.Span.Start.Offset,
			Category: cat,
		})
	}
	return out
}

// categorize maps a token type to its editor category. Structural tokens
// (indentation, newlines, EOF) and paired punctuation yield nothing.
func categorize(t types.TokenType) (Category, bool) {
	switch {
	case t.IsKeyword():
		return CategoryKeyword, true
	}
	switch t {
	case types.IDENTIFIER:
		return CategoryVariable, true
	case types.STRING:
		return CategoryString, true
	case types.NUMBER:
		return CategoryNumber, true
	case types.COLON, types.EQUALS, types.COMMA, types.PIPE, types.ARROW:
		return CategoryOperator, true
	case types.COMMENT:
		return CategoryComment, true
	case types.DISCRETION:
		return CategoryMacro, true
	default:
		return 0, false
	}
}

// Encode produces the LSP-style delta form: for each token, relative line,
// column relative to the previous token when on the same line, length,
// category, and a reserved modifiers field of 0.
func Encode(tokens []Token) []uint32 {
	out := make([]uint32, 0, len(tokens)*5)
	prevLine, prevCol := 1, 1
	for _, tok := range tokens {
		deltaLine := tok.Line - prevLine
		deltaCol := tok.Column
		if deltaLine == 0 {
			deltaCol = tok.Column - prevCol
		} else {
			deltaCol = tok.Column - 1
		}
		out = append(out,
			uint32(deltaLine),
			uint32(deltaCol),
			uint32(tok.Length),
			uint32(tok.Category),
			0,
		)
		prevLine, prevCol = tok.Line, tok.Column
	}
	return out
}
