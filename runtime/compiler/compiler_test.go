package compiler

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/irl-dan/openprose/runtime/parser"
)

// compile parses and compiles, failing the test on parse diagnostics.
func compile(t *testing.T, input string, opts ...Option) Result {
	t.Helper()
	res := parser.ParseString(input)
	if len(res.Errors) != 0 {
		t.Fatalf("parse diagnostics: %v", res.Errors)
	}
	return Compile(res.Program, opts...)
}

func TestCompileHelloWorld(t *testing.T) {
	out := compile(t, `session "Hello"`)
	if strings.TrimSpace(out.Code) != `session "Hello"` {
		t.Errorf("code %q", out.Code)
	}
}

func TestCompileCanonicalLayout(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "session properties one per line",
			input: "session \"x\"\n  retry: 3\n  backoff: \"exponential\"\n",
			want:  "session \"x\"\n  retry: 3\n  backoff: \"exponential\"\n",
		},
		{
			name:  "agent definition",
			input: "agent writer:\n  model: sonnet\n  prompt: \"w\"\n",
			want:  "agent writer:\n  model: sonnet\n  prompt: \"w\"\n",
		},
		{
			name:  "permissions print as an indented block",
			input: "agent w:\n  model: sonnet\n  prompt: \"p\"\n  permissions:\n    read: [\"*.md\"]\n    bash: deny\n",
			want:  "agent w:\n  model: sonnet\n  prompt: \"p\"\n  permissions:\n    read: [\"*.md\"]\n    bash: deny\n",
		},
		{
			name:  "context shorthand with padded braces",
			input: "session \"combine\"\n  context: {a,b,c}\n",
			want:  "session \"combine\"\n  context: { a, b, c }\n",
		},
		{
			name:  "parallel modifiers in canonical order",
			input: "parallel (\"any\", on-fail: \"continue\", count: 2):\n  session \"a\"\n  session \"b\"\n",
			want:  "parallel (\"any\", count: 2, on-fail: \"continue\"):\n  session \"a\"\n  session \"b\"\n",
		},
		{
			name:  "arrow chain with single spaces",
			input: "session \"A\"->session \"B\"->session \"C\"\n",
			want:  "session \"A\" -> session \"B\" -> session \"C\"\n",
		},
		{
			name:  "blank lines collapse",
			input: "session \"a\"\n\n\n\nsession \"b\"\n",
			want:  "session \"a\"\nsession \"b\"\n",
		},
		{
			name:  "loop header",
			input: "loop until **done with work** (max: 10) as n:\n  session \"step {n}\"\n",
			want:  "loop until **done with work** (max: 10) as n:\n  session \"step {n}\"\n",
		},
		{
			name:  "try catch finally",
			input: "try:\n  session \"risky\"\ncatch as err:\n  session \"report\"\nfinally:\n  session \"cleanup\"\n",
			want:  "try:\n  session \"risky\"\ncatch as err:\n  session \"report\"\nfinally:\n  session \"cleanup\"\n",
		},
		{
			name:  "block definition and invocation",
			input: "block review(draft):\n  session \"review {draft}\"\nlet text = session \"write\"\ndo review(text)\n",
			want:  "block review(draft):\n  session \"review {draft}\"\nlet text = session \"write\"\ndo review(text)\n",
		},
		{
			name:  "choice options",
			input: "choice **pick one**:\n  option \"a\":\n    session \"x\"\n  option \"b\":\n    session \"y\"\n",
			want:  "choice **pick one**:\n  option \"a\":\n    session \"x\"\n  option \"b\":\n    session \"y\"\n",
		},
		{
			name:  "pipeline continuation lines at a constant depth",
			input: "let items = session \"gather\"\nlet r = items | filter:\n  session \"keep?\"\n  | map:\n    session \"transform\"\n  | reduce(acc, x):\n    session \"combine\"\n",
			want:  "let items = session \"gather\"\nlet r = items | filter:\n  session \"keep?\"\n  | map:\n    session \"transform\"\n  | reduce(acc, x):\n    session \"combine\"\n",
		},
		{
			name:  "nested pipeline layout canonicalizes to the flat form",
			input: "let items = session \"gather\"\nlet r = items | filter:\n  session \"keep?\"\n  | map:\n    session \"transform\"\n    | reduce(acc, x):\n      session \"combine\"\n",
			want:  "let items = session \"gather\"\nlet r = items | filter:\n  session \"keep?\"\n  | map:\n    session \"transform\"\n  | reduce(acc, x):\n    session \"combine\"\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := compile(t, tt.input)
			if diff := cmp.Diff(tt.want, out.Code); diff != "" {
				t.Errorf("canonical form (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileReescaping(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"newline", "session \"a\\nb\"\n", "session \"a\\nb\"\n"},
		{"tab and return", "session \"a\\tb\\rc\"\n", "session \"a\\tb\\rc\"\n"},
		{"quote and backslash", "session \"a\\\"b\\\\c\"\n", "session \"a\\\"b\\\\c\"\n"},
		{"control byte as unicode", "session \"a\\u0007b\"\n", "session \"a\\u0007b\"\n"},
		{"unicode compacts to utf8", "session \"\\u00e9\"\n", "session \"é\"\n"},
		{"interpolation braces survive", "session \"hi {name}\"\n  context: [name]\n", "session \"hi {name}\"\n  context: [name]\n"},
		{"escaped braces stay escaped", "session \"literal \\{x\\}\"\n", "session \"literal \\{x\\}\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parser.ParseString(tt.input)
			if len(res.Errors) != 0 {
				t.Fatalf("parse diagnostics: %v", res.Errors)
			}
			out := Compile(res.Program)
			if diff := cmp.Diff(tt.want, out.Code); diff != "" {
				t.Errorf("re-escaping (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileTripleQuoted(t *testing.T) {
	input := "session \"\"\"\n  multi-line prompt\n\"\"\"\n"
	out := compile(t, input)
	if !strings.Contains(out.Code, `"""`) {
		t.Errorf("triple-quoted form lost: %q", out.Code)
	}
	if !strings.Contains(out.Code, "\n  multi-line prompt\n") {
		t.Errorf("body changed: %q", out.Code)
	}
}

func TestStrippedComments(t *testing.T) {
	input := "# top\nsession \"x\"  # inline\n# bottom\n"
	out := compile(t, input)
	if len(out.StrippedComments) != 3 {
		t.Fatalf("want 3 stripped comments, got %d", len(out.StrippedComments))
	}
	if strings.Contains(out.Code, "#") {
		t.Errorf("comments leaked without WithComments: %q", out.Code)
	}
}

func TestPreserveComments(t *testing.T) {
	input := "# top\nsession \"x\"  # inline\n"
	out := compile(t, input, WithComments(true))
	want := "# top\nsession \"x\"  # inline\n"
	if diff := cmp.Diff(want, out.Code); diff != "" {
		t.Errorf("comment preservation (-want +got):\n%s", diff)
	}
}

func TestCommentsAppearInSourceOrder(t *testing.T) {
	input := "# one\nsession \"a\"\n# two\nsession \"b\"\n# three\n"
	out := compile(t, input, WithComments(true))
	idx1 := strings.Index(out.Code, "# one")
	idx2 := strings.Index(out.Code, "# two")
	idx3 := strings.Index(out.Code, "# three")
	if idx1 < 0 || idx2 < idx1 || idx3 < idx2 {
		t.Errorf("comments out of order: %q", out.Code)
	}
}

func TestCustomIndent(t *testing.T) {
	out := compile(t, "do:\n  session \"a\"\n", WithIndent("    "))
	if !strings.Contains(out.Code, "\n    session \"a\"\n") {
		t.Errorf("custom indent not applied: %q", out.Code)
	}
}
