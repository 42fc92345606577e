package parser

import (
	"testing"
)

// FuzzParse asserts the no-panic contract: arbitrary input produces a
// program and a diagnostics list, never a crash.
func FuzzParse(f *testing.F) {
	seeds := []string{
		"",
		"session \"Hello\"",
		"do:\n  session \"a\"\n",
		"agent w:\n  model: sonnet\n  prompt: \"p\"\n",
		"parallel (\"any\", count: 2):\n  a = session \"A\"\n  b = session \"B\"\n",
		"let r = items | filter:\n  session \"keep?\"\n",
		"if **cond**:\n  session \"x\"\nelse:\n  session \"y\"\n",
		"session \"\"\"\nmulti {line}\n\"\"\"\n",
		"loop until **done** (max: 3) as n:\n  session \"{n}\"\n",
		"try:\n  throw \"x\"\ncatch as e:\n  session \"{e}\"\n",
		"\"unterminated",
		"***\nnever closed",
		"\t \tdo::\n",
		"-> -> ->",
		"{ } [ ] ( )",
		"\\u12",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, input string) {
		res := ParseString(input)
		if res.Program == nil {
			t.Fatal("parser returned a nil program")
		}
		for _, d := range res.Errors {
			if d.Span.Start.Offset > d.Span.End.Offset {
				t.Fatalf("diagnostic with inverted span: %v", d)
			}
		}
	})
}
