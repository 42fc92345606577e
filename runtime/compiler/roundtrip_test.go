package compiler

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/irl-dan/openprose/core/types"
	"github.com/irl-dan/openprose/runtime/parser"
	"github.com/irl-dan/openprose/runtime/validation"
)

// corpus is a set of well-formed programs exercising every statement form.
var corpus = map[string]string{
	"hello": `session "Hello"`,

	"imports and agents": `import "research" from "github:org/repo"
agent writer:
  model: sonnet
  prompt: "You write."
  skills: ["research"]
  permissions:
    read: ["*.md"]
    bash: deny
session: writer
session draft: writer
`,

	"bindings and arrows": `let v = session "draft"
const c = session "review"
v = session "redraft"
session "A" -> session "B" -> session "C"
`,

	"blocks": `block review(draft, style):
  session "review {draft} as {style}"
let text = session "write"
do review(text, "terse")
do:
  session "anonymous"
`,

	"parallel": `parallel ("any", count: 2, on-fail: "continue"):
  a = session "A"
  b = session "B"
  c = session "C"
session "combine"
  context: { a, b, c }
`,

	"loops": `let items = session "gather"
repeat 3 as i:
  session "round {i}"
for item, idx in items:
  session "cover {item}"
parallel for item in items:
  session "blast {item}"
loop until **everything is done** (max: 10) as n:
  session "step {n}"
`,

	"control flow": `try:
  session "risky"
catch as err:
  session "report {err}"
finally:
  session "cleanup"
throw "boom"
choice **which approach**:
  option "a":
    session "x"
  option "b":
    session "y"
if **cond holds**:
  session "then"
elif **other cond**:
  session "elif"
else:
  session "else"
`,

	"pipeline": `let items = session "gather"
let r = items | filter:
  session "keep?"
  | map:
    session "transform"
  | reduce(acc, x):
    session "combine {acc} {x}"
`,

	"triple quoted": `let topic = session "pick"
session """
  multi-line prompt with {topic}
"""
`,

	"session properties": `session "configured"
  retry: 3
  backoff: "exponential"
  context: { }
`,
}

func parseClean(t *testing.T, name, input string) parser.Result {
	t.Helper()
	res := parser.ParseString(input)
	if len(res.Errors) != 0 {
		t.Fatalf("%s: parse diagnostics: %v", name, res.Errors)
	}
	return res
}

// Round-trip: compiling a parse and reparsing must produce zero errors.
func TestRoundTripReparses(t *testing.T) {
	for name, input := range corpus {
		t.Run(name, func(t *testing.T) {
			first := parseClean(t, name, input)
			code := Compile(first.Program).Code
			second := parser.ParseString(code)
			if len(second.Errors) != 0 {
				t.Fatalf("reparse diagnostics: %v\ncompiled:\n%s", second.Errors, code)
			}
		})
	}
}

// Idempotence: compile(parse(compile(parse(P)))) == compile(parse(P)).
func TestCompileIsIdempotent(t *testing.T) {
	for name, input := range corpus {
		t.Run(name, func(t *testing.T) {
			first := Compile(parseClean(t, name, input).Program).Code
			second := Compile(parser.ParseString(first).Program).Code
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("compile not idempotent (-first +second):\n%s", diff)
			}
		})
	}
}

// messagesOf projects diagnostics to severity+message, dropping spans.
func messagesOf(diags []types.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Severity.String()+": "+d.Message)
	}
	return out
}

// Validator equivalence: the compiled form validates identically to the
// original, modulo spans.
func TestRoundTripPreservesValidation(t *testing.T) {
	for name, input := range corpus {
		t.Run(name, func(t *testing.T) {
			first := parseClean(t, name, input)
			v1 := validation.Validate(first.Program)

			code := Compile(first.Program).Code
			second := parser.ParseString(code)
			if len(second.Errors) != 0 {
				t.Fatalf("reparse diagnostics: %v", second.Errors)
			}
			v2 := validation.Validate(second.Program)

			if v1.Valid != v2.Valid {
				t.Errorf("validity changed: %v -> %v", v1.Valid, v2.Valid)
			}
			if diff := cmp.Diff(messagesOf(v1.Errors), messagesOf(v2.Errors)); diff != "" {
				t.Errorf("errors changed (-orig +roundtrip):\n%s", diff)
			}
			if diff := cmp.Diff(messagesOf(v1.Warnings), messagesOf(v2.Warnings)); diff != "" {
				t.Errorf("warnings changed (-orig +roundtrip):\n%s", diff)
			}
		})
	}
}

// Determinism: two compiles of the same tree are byte-identical.
func TestCompileIsDeterministic(t *testing.T) {
	for name, input := range corpus {
		t.Run(name, func(t *testing.T) {
			program := parseClean(t, name, input).Program
			first := Compile(program).Code
			second := Compile(program).Code
			if first != second {
				t.Error("same tree compiled differently")
			}
		})
	}
}
