package semtok

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenCategories(t *testing.T) {
	tokens := Tokens([]byte(`session "hi" -> session "there"  # tail`))
	var cats []Category
	for _, tok := range tokens {
		cats = append(cats, tok.Category)
	}
	want := []Category{
		CategoryKeyword, // session
		CategoryString,  // "hi"
		CategoryOperator, // ->
		CategoryKeyword, // session
		CategoryString,  // "there"
		CategoryComment, // # tail
	}
	if diff := cmp.Diff(want, cats); diff != "" {
		t.Errorf("categories (-want +got):\n%s", diff)
	}
}

func TestStructuralTokensYieldNothing(t *testing.T) {
	tokens := Tokens([]byte("do:\n  session \"a\"\n"))
	// do, :, session, "a" - INDENT/DEDENT/NEWLINE/EOF and the body
	// structure never surface.
	if len(tokens) != 4 {
		t.Fatalf("want 4 semantic tokens, got %d: %+v", len(tokens), tokens)
	}
}

func TestPairedPunctuationYieldsNothing(t *testing.T) {
	tokens := Tokens([]byte("session \"x\"\n  context: [a, b]\n"))
	// session, "x", context, :, a, comma, b - the brackets are dropped.
	if len(tokens) != 7 {
		t.Errorf("want 7 tokens, got %d: %+v", len(tokens), tokens)
	}
}

func TestDiscretionMapsToMacro(t *testing.T) {
	tokens := Tokens([]byte("if **ready to ship**:\n  session \"go\"\n"))
	found := false
	for _, tok := range tokens {
		if tok.Category == CategoryMacro {
			found = true
			if tok.Length != len("**ready to ship**") {
				t.Errorf("macro length %d", tok.Length)
			}
		}
	}
	if !found {
		t.Error("no macro token for the discretion")
	}
}

func TestDeltaEncoding(t *testing.T) {
	tokens := []Token{
		{Line: 1, Column: 1, Length: 7, Category: CategoryKeyword},
		{Line: 1, Column: 9, Length: 5, Category: CategoryString},
		{Line: 3, Column: 3, Length: 4, Category: CategoryVariable},
	}
	got := Encode(tokens)
	want := []uint32{
		0, 0, 7, uint32(CategoryKeyword), 0, // first token, origin-relative
		0, 8, 5, uint32(CategoryString), 0, // same line, column delta
		2, 2, 4, uint32(CategoryVariable), 0, // new line, column from start
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("encoding (-want +got):\n%s", diff)
	}
}

func TestEncodeEmpty(t *testing.T) {
	if got := Encode(nil); len(got) != 0 {
		t.Errorf("want empty encoding, got %v", got)
	}
}
