package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/irl-dan/openprose/core/types"
)

func firstDiscretion(t *testing.T, input string) types.Token {
	t.Helper()
	res := Tokenize([]byte(input))
	for _, tok := range res.Tokens {
		if tok.Type == types.DISCRETION {
			return tok
		}
	}
	t.Fatalf("no discretion token in %q", input)
	return types.Token{}
}

func TestInlineDiscretion(t *testing.T) {
	tok := firstDiscretion(t, "if **the tests pass**:\n  session \"ship\"\n")
	if tok.Value != "the tests pass" {
		t.Errorf("body %q", tok.Value)
	}
	if tok.Multiline {
		t.Error("inline discretion marked multiline")
	}
}

func TestDiscretionWithTrailingModifiers(t *testing.T) {
	input := "loop until **all items are processed** (max: 10) as n:\n  session \"work\"\n"
	res := Tokenize([]byte(input))
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected diagnostics: %v", res.Errors)
	}
	want := []string{
		"LOOP(loop)", "UNTIL(until)", "DISCRETION(all items are processed)",
		"LPAREN(()", "IDENTIFIER(max)", "COLON(:)", "NUMBER(10)", "RPAREN())",
		"AS(as)", "IDENTIFIER(n)", "COLON(:)", "NEWLINE",
		"INDENT", "SESSION(session)", "STRING(work)", "NEWLINE",
		"DEDENT", "EOF",
	}
	if diff := cmp.Diff(want, describe(res.Tokens)); diff != "" {
		t.Errorf("token mismatch (-want +got):\n%s", diff)
	}
}

func TestMultilineDiscretion(t *testing.T) {
	input := "if ***\nthe answer is complete\nand well sourced\n***:\n  session \"done\"\n"
	tok := firstDiscretion(t, input)
	if !tok.Multiline {
		t.Fatal("multiline flag not set")
	}
	if tok.Value != "the answer is complete\nand well sourced" {
		t.Errorf("body %q", tok.Value)
	}

	// The colon after the closing delimiter still tokenizes.
	res := Tokenize([]byte(input))
	foundColon := false
	for i, t2 := range res.Tokens {
		if t2.Type == types.DISCRETION && i+1 < len(res.Tokens) && res.Tokens[i+1].Type == types.COLON {
			foundColon = true
		}
	}
	if !foundColon {
		t.Errorf("no colon after multiline discretion: %v", describe(res.Tokens))
	}
}

func TestUnterminatedInlineDiscretion(t *testing.T) {
	res := Tokenize([]byte("if **never closed:\n"))
	if len(res.Errors) != 1 {
		t.Fatalf("want one error, got %v", res.Errors)
	}
}

func TestUnterminatedMultilineDiscretion(t *testing.T) {
	res := Tokenize([]byte("if ***\nstill open\n"))
	if len(res.Errors) != 1 {
		t.Fatalf("want one error, got %v", res.Errors)
	}
}

func TestSingleAsteriskIsAnError(t *testing.T) {
	res := Tokenize([]byte("if *oops*:\n"))
	if len(res.Errors) == 0 {
		t.Fatal("want an error for a single asterisk")
	}
}
