package parser

import (
	"testing"

	"github.com/irl-dan/openprose/core/ast"
)

func TestParseBindings(t *testing.T) {
	input := `let v = session "draft"
const c = session "review"
v = session "redraft"
`
	program := mustParse(t, input)
	if len(program.Statements) != 3 {
		t.Fatalf("want 3 statements, got %d", len(program.Statements))
	}

	let := program.Statements[0].(*ast.LetBinding)
	if let.Name.Name != "v" {
		t.Errorf("let name %q", let.Name.Name)
	}
	if let.Value.(*ast.Session).Prompt.Value != "draft" {
		t.Error("let value lost")
	}

	cst := program.Statements[1].(*ast.ConstBinding)
	if cst.Name.Name != "c" {
		t.Errorf("const name %q", cst.Name.Name)
	}

	assign := program.Statements[2].(*ast.Assignment)
	if assign.Name.Name != "v" {
		t.Errorf("assignment name %q", assign.Name.Name)
	}
}

func TestParseBindingWithSessionProperties(t *testing.T) {
	input := `let v = session "draft"
  retry: 2
`
	program := mustParse(t, input)
	let := program.Statements[0].(*ast.LetBinding)
	sess := let.Value.(*ast.Session)
	if len(sess.Properties) != 1 || sess.Properties[0].Name != "retry" {
		t.Errorf("session properties %+v", sess.Properties)
	}
}

func TestParseBlockDefinitionAndInvocation(t *testing.T) {
	input := `block review(draft, style):
  session "review {draft}"
do review("text", "terse")
do review()
`
	program := mustParse(t, input)

	def := program.Statements[0].(*ast.BlockDefinition)
	if def.Name.Name != "review" {
		t.Errorf("block name %q", def.Name.Name)
	}
	if len(def.Params) != 2 || def.Params[0].Name != "draft" || def.Params[1].Name != "style" {
		t.Errorf("params %+v", def.Params)
	}
	if len(def.Body) != 1 {
		t.Errorf("body length %d", len(def.Body))
	}

	call := program.Statements[1].(*ast.DoBlock)
	if !call.IsInvocation() || len(call.Args) != 2 {
		t.Errorf("invocation %+v", call)
	}

	empty := program.Statements[2].(*ast.DoBlock)
	if !empty.IsInvocation() || len(empty.Args) != 0 {
		t.Errorf("empty invocation %+v", empty)
	}
}

func TestParseAnonymousDo(t *testing.T) {
	input := "do:\n  session \"a\"\n  session \"b\"\n"
	program := mustParse(t, input)
	d := program.Statements[0].(*ast.DoBlock)
	if d.IsInvocation() {
		t.Fatal("anonymous do parsed as invocation")
	}
	if len(d.Body) != 2 {
		t.Errorf("body length %d", len(d.Body))
	}
}

func TestParseEmptyBody(t *testing.T) {
	// An immediately-dedented body is permitted and parses as empty.
	input := "do:\nsession \"after\"\n"
	program := mustParse(t, input)
	d := program.Statements[0].(*ast.DoBlock)
	if len(d.Body) != 0 {
		t.Errorf("want empty body, got %d statements", len(d.Body))
	}
	if len(program.Statements) != 2 {
		t.Errorf("want 2 statements, got %d", len(program.Statements))
	}
}

func TestParseParallel(t *testing.T) {
	input := `parallel ("first", on-fail: "continue"):
  a = session "A"
  b = session "B"
`
	program := mustParse(t, input)
	par := program.Statements[0].(*ast.ParallelBlock)
	if par.Strategy != "first" {
		t.Errorf("strategy %q", par.Strategy)
	}
	if par.OnFail == nil || par.OnFail.Value != "continue" {
		t.Errorf("on-fail %v", par.OnFail)
	}
	if par.Count != nil {
		t.Errorf("unexpected count %v", par.Count)
	}
	if len(par.Body) != 2 {
		t.Errorf("branches %d", len(par.Body))
	}
}

func TestParseParallelCount(t *testing.T) {
	input := "parallel (\"any\", count: 2):\n  session \"a\"\n  session \"b\"\n  session \"c\"\n"
	program := mustParse(t, input)
	par := program.Statements[0].(*ast.ParallelBlock)
	if par.Strategy != "any" {
		t.Errorf("strategy %q", par.Strategy)
	}
	if n := par.Count.(*ast.NumberLiteral).Int(); n != 2 {
		t.Errorf("count %d", n)
	}
}

func TestParseDuplicateParallelModifier(t *testing.T) {
	res := ParseString("parallel (\"any\", \"first\"):\n  session \"a\"\n")
	if len(res.Errors) != 1 {
		t.Fatalf("want one error, got %v", res.Errors)
	}
}

func TestParseRepeat(t *testing.T) {
	input := "repeat 3 as i:\n  session \"round {i}\"\n"
	program := mustParse(t, input)
	rep := program.Statements[0].(*ast.RepeatBlock)
	if rep.Count.(*ast.NumberLiteral).Int() != 3 {
		t.Error("count lost")
	}
	if rep.As == nil || rep.As.Name != "i" {
		t.Errorf("as binding %v", rep.As)
	}
}

func TestParseForEach(t *testing.T) {
	input := `let topics = session "gather"
for topic, idx in topics:
  session "cover {topic}"
parallel for topic in topics:
  session "cover {topic}"
`
	program := mustParse(t, input)

	fe := program.Statements[1].(*ast.ForEachBlock)
	if fe.Parallel {
		t.Error("sequential for marked parallel")
	}
	if fe.Item.Name != "topic" || fe.Index.Name != "idx" {
		t.Errorf("loop variables %v, %v", fe.Item, fe.Index)
	}
	if fe.Collection.(*ast.Identifier).Name != "topics" {
		t.Error("collection lost")
	}

	pfe := program.Statements[2].(*ast.ForEachBlock)
	if !pfe.Parallel {
		t.Error("parallel for not marked parallel")
	}
	if pfe.Index != nil {
		t.Errorf("unexpected index %v", pfe.Index)
	}
}

func TestParseThrow(t *testing.T) {
	program := mustParse(t, `throw "validation failed"`)
	th := program.Statements[0].(*ast.ThrowStatement)
	if th.Message.(*ast.StringLiteral).Value != "validation failed" {
		t.Error("message lost")
	}
}
