package parser_test

import (
	"testing"

	"github.com/irl-dan/openprose/runtime/compiler"
	"github.com/irl-dan/openprose/runtime/parser"
	"github.com/irl-dan/openprose/runtime/validation"
)

// digest is a full-featured program touching every statement form the
// grammar offers.
const digest = `# build a research digest
import "research" from "github:acme/research-skill"
import "editing" from "npm:editing-skill"

agent researcher:
  model: opus
  prompt: "You research topics in depth."
  skills: ["research"]
  permissions:
    read: ["*.md", "notes/*.txt"]
    network: allow

agent writer:
  model: sonnet
  prompt: """
    You turn research notes into prose.
  """
  skills: ["editing"]

block polish(draft, tone):
  session "polish {draft} with a {tone} tone"

let topics = session: researcher
  prompt: "List the topics worth covering."
  retry: 3
  backoff: "exponential"

parallel ("all"):
  notes = session "research {topics}"
  outline = session "outline the digest"

let draft = session "write the digest"
  context: { notes, outline }

for topic, idx in topics:
  session "deep dive into {topic}"

loop until **the draft reads well** (max: 5) as round:
  draft = session "revise the draft, round {round}"

try:
  do polish(draft, "formal")
catch as err:
  session "report {err}"
finally:
  session "archive everything"

choice **which channel fits this digest**:
  option "newsletter":
    session "format for email"
  option "blog":
    session "format for the web"

if **the digest is ready to ship**:
  session "publish" -> session "announce"
else:
  throw "digest not ready"
`

func TestFullProgramParses(t *testing.T) {
	res := parser.ParseString(digest)
	if len(res.Errors) != 0 {
		t.Fatalf("parse diagnostics: %v", res.Errors)
	}
	// 2 imports, 2 agents, 1 block, 2 lets, 1 parallel, 1 for, 1 loop,
	// 1 try, 1 choice, 1 if, plus the leading comment.
	if len(res.Program.Statements) != 14 {
		t.Errorf("statement count %d", len(res.Program.Statements))
	}
}

func TestFullProgramValidates(t *testing.T) {
	res := parser.ParseString(digest)
	if len(res.Errors) != 0 {
		t.Fatalf("parse diagnostics: %v", res.Errors)
	}
	v := validation.Validate(res.Program)
	if !v.Valid {
		t.Fatalf("validation errors: %v", v.Errors)
	}
	if len(v.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", v.Warnings)
	}
}

func TestFullProgramRoundTrips(t *testing.T) {
	first := parser.ParseString(digest)
	if len(first.Errors) != 0 {
		t.Fatalf("parse diagnostics: %v", first.Errors)
	}
	code1 := compiler.Compile(first.Program).Code

	second := parser.ParseString(code1)
	if len(second.Errors) != 0 {
		t.Fatalf("reparse diagnostics: %v\ncompiled:\n%s", second.Errors, code1)
	}
	code2 := compiler.Compile(second.Program).Code
	if code1 != code2 {
		t.Errorf("compile not a fixpoint:\n--- first ---\n%s\n--- second ---\n%s", code1, code2)
	}

	v := validation.Validate(second.Program)
	if !v.Valid {
		t.Errorf("round-tripped program no longer validates: %v", v.Errors)
	}
}
