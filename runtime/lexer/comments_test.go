package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/irl-dan/openprose/core/types"
)

func TestStandaloneComment(t *testing.T) {
	res := Tokenize([]byte("# top of file\nsession \"x\"\n"))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Errors)
	}
	tok := res.Tokens[0]
	if tok.Type != types.COMMENT {
		t.Fatalf("want COMMENT first, got %v", tok.Type)
	}
	if tok.Value != " top of file" {
		t.Errorf("comment text %q", tok.Value)
	}
	if tok.Inline {
		t.Error("standalone comment marked inline")
	}
}

func TestInlineComment(t *testing.T) {
	res := Tokenize([]byte("session \"x\"  # note\n"))
	var comment types.Token
	for _, tok := range res.Tokens {
		if tok.Type == types.COMMENT {
			comment = tok
		}
	}
	if comment.Type != types.COMMENT {
		t.Fatal("no comment token")
	}
	if !comment.Inline {
		t.Error("inline comment not marked inline")
	}
	if comment.Value != " note" {
		t.Errorf("comment text %q", comment.Value)
	}
}

// A comment-only line inside a block must not close or open indentation.
func TestCommentOnlyLineKeepsIndentStack(t *testing.T) {
	input := "do:\n  session \"a\"\n# outdented comment\n  session \"b\"\n"
	res := Tokenize([]byte(input))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Errors)
	}
	want := []string{
		"DO(do)", "COLON(:)", "NEWLINE",
		"INDENT", "SESSION(session)", "STRING(a)", "NEWLINE",
		"COMMENT( outdented comment)",
		"SESSION(session)", "STRING(b)", "NEWLINE",
		"DEDENT", "EOF",
	}
	if diff := cmp.Diff(want, describe(res.Tokens)); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestHashInsideStringIsNotAComment(t *testing.T) {
	res := Tokenize([]byte("session \"a # b\"\n"))
	for _, tok := range res.Tokens {
		if tok.Type == types.COMMENT {
			t.Fatalf("comment found inside string: %v", tok)
		}
	}
	if res.Tokens[1].Value != "a # b" {
		t.Errorf("string value %q", res.Tokens[1].Value)
	}
}

func TestCommentDoesNotConsumeNewline(t *testing.T) {
	res := Tokenize([]byte("session \"x\" # c\n"))
	var sawComment, sawNewlineAfter bool
	for _, tok := range res.Tokens {
		if tok.Type == types.COMMENT {
			sawComment = true
		}
		if sawComment && tok.Type == types.NEWLINE {
			sawNewlineAfter = true
		}
	}
	if !sawComment || !sawNewlineAfter {
		t.Errorf("want comment followed by newline, got %v", describe(res.Tokens))
	}
}
