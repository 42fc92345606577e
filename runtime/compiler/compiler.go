// Package compiler reserializes an OpenProse AST into canonical source
// text: one statement per line, two-space indentation, properties on their
// own indented lines, strings re-escaped into their most compact form.
//
// The canonical form is a fixpoint: compiling the parse of compiled output
// yields byte-identical text. Comments are always collected into
// StrippedComments; they only appear in the output when requested.
package compiler

import (
	"fmt"
	"strings"

	"github.com/irl-dan/openprose/core/ast"
)

// Result is the compiler output.
type Result struct {
	Code             string
	StrippedComments []*ast.Comment
}

// Option configures the compiler.
type Option func(*config)

type config struct {
	preserveComments bool
	prettyPrint      bool
	indent           string
}

// WithComments re-emits comments: standalone comments on their own line at
// the statement indent, inline comments after the statement. Comments that
// appear only in Program.Comments (those the parser drops at block
// boundaries and inside property blocks and choice bodies) are not
// re-emitted, and neither is an inline comment on an else line.
func WithComments(preserve bool) Option {
	return func(c *config) { c.preserveComments = preserve }
}

// WithIndent overrides the indentation unit (default two spaces).
func WithIndent(indent string) Option {
	return func(c *config) { c.indent = indent }
}

// WithPrettyPrint controls layout padding: when disabled, object braces
// and arrows are emitted without surrounding spaces.
func WithPrettyPrint(pretty bool) Option {
	return func(c *config) { c.prettyPrint = pretty }
}

// Compile renders the program in canonical form.
func Compile(program *ast.Program, opts ...Option) Result {
	cfg := config{prettyPrint: true, indent: "  "}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &printer{cfg: cfg}
	if cfg.preserveComments {
		p.inlineByLine = map[int]*ast.Comment{}
		for _, c := range program.Comments {
			if c.Inline {
				p.inlineByLine[c.Pos.Start.Line] = c
			}
		}
	}

	for _, stmt := range program.Statements {
		p.statement(stmt)
	}
	return Result{Code: p.b.String(), StrippedComments: program.Comments}
}

type printer struct {
	b            strings.Builder
	cfg          config
	depth        int
	inlineByLine map[int]*ast.Comment
}

func (p *printer) line(text string, src ast.Node) {
	for i := 0; i < p.depth; i++ {
		p.b.WriteString(p.cfg.indent)
	}
	p.b.WriteString(text)
	if src != nil && p.inlineByLine != nil {
		if c, ok := p.inlineByLine[src.Span().Start.Line]; ok {
			p.b.WriteString("  #")
			p.b.WriteString(c.Text)
			delete(p.inlineByLine, src.Span().Start.Line)
		}
	}
	p.b.WriteByte('\n')
}

func (p *printer) body(stmts []ast.Statement) {
	p.depth++
	for _, stmt := range stmts {
		p.statement(stmt)
	}
	p.depth--
}

func (p *printer) statement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Comment:
		if p.cfg.preserveComments {
			p.line("#"+s.Text, nil)
		}
	case *ast.Import:
		p.line(fmt.Sprintf("import %s from %s", p.str(s.Skill), p.str(s.Source)), s)
	case *ast.AgentDefinition:
		p.line(fmt.Sprintf("agent %s:", s.Name.Name), s)
		p.depth++
		p.properties(s.Properties)
		p.depth--
	case *ast.BlockDefinition:
		p.line(fmt.Sprintf("block %s(%s):", s.Name.Name, identList(s.Params)), s)
		p.body(s.Body)
	case *ast.Session:
		p.line(p.sessionHeader(s), s)
		p.depth++
		p.properties(s.Properties)
		p.depth--
	case *ast.DoBlock:
		p.doBlock(s)
	case *ast.ParallelBlock:
		p.line(p.parallelHeader(s), s)
		p.body(s.Body)
	case *ast.RepeatBlock:
		header := fmt.Sprintf("repeat %s", p.expr(s.Count))
		if s.As != nil {
			header += " as " + s.As.Name
		}
		p.line(header+":", s)
		p.body(s.Body)
	case *ast.ForEachBlock:
		p.line(p.forEachHeader(s), s)
		p.body(s.Body)
	case *ast.LoopBlock:
		p.line(p.loopHeader(s), s)
		p.body(s.Body)
	case *ast.TryBlock:
		p.tryBlock("", s)
	case *ast.ThrowStatement:
		p.line("throw "+p.expr(s.Message), s)
	case *ast.ChoiceBlock:
		p.choiceBlock("", s)
	case *ast.IfStatement:
		p.ifStatement("", s)
	case *ast.LetBinding:
		p.binding("let", s.Name, s.Value, s)
	case *ast.ConstBinding:
		p.binding("const", s.Name, s.Value, s)
	case *ast.Assignment:
		p.binding("", s.Name, s.Value, s)
	case *ast.ArrowExpression:
		p.line(p.arrowChain(s), s)
	case *ast.PipeExpression:
		p.pipe("", s, s)
	}
}

// binding prints let/const/assignment. Block-bodied right-hand sides keep
// their bodies under the binding line; a session value keeps its property
// block.
func (p *printer) binding(keyword string, name *ast.Identifier, value ast.Expression, src ast.Node) {
	prefix := name.Name + " = "
	if keyword != "" {
		prefix = keyword + " " + prefix
	}

	switch val := value.(type) {
	case *ast.DoBlock:
		if !val.IsInvocation() {
			p.line(prefix+"do:", src)
			p.body(val.Body)
			return
		}
	case *ast.ParallelBlock:
		p.line(prefix+p.parallelHeader(val), src)
		p.body(val.Body)
		return
	case *ast.LoopBlock:
		p.line(prefix+p.loopHeader(val), src)
		p.body(val.Body)
		return
	case *ast.PipeExpression:
		p.pipe(prefix, val, src)
		return
	case *ast.TryBlock:
		p.tryBlock(prefix, val)
		return
	case *ast.ChoiceBlock:
		p.choiceBlock(prefix, val)
		return
	case *ast.IfStatement:
		p.ifStatement(prefix, val)
		return
	case *ast.Session:
		p.line(prefix+p.sessionHeader(val), src)
		p.depth++
		p.properties(val.Properties)
		p.depth--
		return
	}
	p.line(prefix+p.expr(value), src)
}

func (p *printer) sessionHeader(s *ast.Session) string {
	switch {
	case s.Prompt != nil:
		return "session " + p.str(s.Prompt)
	case s.Name != nil:
		return fmt.Sprintf("session %s: %s", s.Name.Name, s.Agent.Name)
	default:
		return "session: " + s.Agent.Name
	}
}

// parallelHeader prints suffix modifiers in canonical order: strategy,
// count, on-fail.
func (p *printer) parallelHeader(s *ast.ParallelBlock) string {
	var mods []string
	if s.Strategy != "" {
		mods = append(mods, `"`+escapeString(s.Strategy)+`"`)
	}
	if s.Count != nil {
		mods = append(mods, "count: "+p.expr(s.Count))
	}
	if s.OnFail != nil {
		mods = append(mods, "on-fail: "+p.str(s.OnFail))
	}
	if len(mods) == 0 {
		return "parallel:"
	}
	return "parallel (" + strings.Join(mods, ", ") + "):"
}

func (p *printer) forEachHeader(s *ast.ForEachBlock) string {
	header := "for " + s.Item.Name
	if s.Parallel {
		header = "parallel " + header
	}
	if s.Index != nil {
		header += ", " + s.Index.Name
	}
	return header + " in " + p.expr(s.Collection) + ":"
}

func (p *printer) loopHeader(s *ast.LoopBlock) string {
	header := "loop"
	if s.Kind != ast.LoopPlain {
		header += " " + s.Kind.String() + " " + p.discretion(s.Condition)
	}
	if s.Max != nil {
		header += " (max: " + p.expr(s.Max) + ")"
	}
	if s.As != nil {
		header += " as " + s.As.Name
	}
	return header + ":"
}

func (p *printer) doBlock(s *ast.DoBlock) {
	if s.IsInvocation() {
		p.line(p.doInvocation(s), s)
		return
	}
	p.line("do:", s)
	p.body(s.Body)
}

func (p *printer) doInvocation(s *ast.DoBlock) string {
	if len(s.Args) == 0 {
		return "do " + s.Name.Name + "()"
	}
	args := make([]string, len(s.Args))
	for i, arg := range s.Args {
		args[i] = p.expr(arg)
	}
	return fmt.Sprintf("do %s(%s)", s.Name.Name, strings.Join(args, ", "))
}

func (p *printer) tryBlock(prefix string, s *ast.TryBlock) {
	p.line(prefix+"try:", s)
	p.body(s.Body)
	if s.Catch != nil {
		header := "catch"
		if s.Catch.Err != nil {
			header += " as " + s.Catch.Err.Name
		}
		p.line(header+":", s.Catch)
		p.body(s.Catch.Body)
	}
	if s.Finally != nil {
		p.line("finally:", s.Finally)
		p.body(s.Finally.Body)
	}
}

func (p *printer) choiceBlock(prefix string, s *ast.ChoiceBlock) {
	p.line(prefix+"choice "+p.discretion(s.Condition)+":", s)
	p.depth++
	for _, opt := range s.Options {
		p.line("option "+p.str(opt.Label)+":", opt)
		p.body(opt.Body)
	}
	p.depth--
}

func (p *printer) ifStatement(prefix string, s *ast.IfStatement) {
	p.line(prefix+"if "+p.discretion(s.Condition)+":", s)
	p.body(s.Then)
	for _, elif := range s.Elifs {
		p.line("elif "+p.discretion(elif.Condition)+":", elif)
		p.body(elif.Body)
	}
	if s.Else != nil {
		p.line("else:", nil)
		p.body(s.Else)
	}
}

// pipe prints the first operation on the input line and every chained
// operation on its own continuation line, indented once from the input;
// each operation's body nests one level below its header.
func (p *printer) pipe(prefix string, s *ast.PipeExpression, src ast.Node) {
	if len(s.Operations) == 0 {
		p.line(prefix+p.expr(s.Input), src)
		return
	}
	p.line(prefix+p.expr(s.Input)+" "+p.opHeader(s.Operations[0]), src)
	p.depth++
	for _, stmt := range s.Operations[0].Body {
		p.statement(stmt)
	}
	for _, op := range s.Operations[1:] {
		p.line(p.opHeader(op), op)
		p.bodyOf(op)
	}
	p.depth--
}

func (p *printer) bodyOf(op *ast.PipeOperation) {
	p.depth++
	for _, stmt := range op.Body {
		p.statement(stmt)
	}
	p.depth--
}

func (p *printer) opHeader(op *ast.PipeOperation) string {
	if op.Operator == ast.PipeReduce {
		return fmt.Sprintf("| reduce(%s):", identList(op.Params))
	}
	return "| " + op.Operator.String() + ":"
}

// arrowChain re-flattens the left-spine nesting for output.
func (p *printer) arrowChain(a *ast.ArrowExpression) string {
	var operands []string
	var walk func(e ast.Expression)
	walk = func(e ast.Expression) {
		if inner, isArrow := e.(*ast.ArrowExpression); isArrow {
			walk(inner.Left)
			walk(inner.Right)
			return
		}
		operands = append(operands, p.expr(e))
	}
	walk(a)
	sep := " -> "
	if !p.cfg.prettyPrint {
		sep = "->"
	}
	return strings.Join(operands, sep)
}

func (p *printer) properties(props []*ast.Property) {
	for _, prop := range props {
		if obj, isObj := prop.Value.(*ast.ObjectExpression); isObj && !obj.AllShorthand() {
			p.line(prop.Name+":", prop)
			p.depth++
			for _, entry := range obj.Properties {
				if entry.Value == nil {
					p.line(entry.Name, entry)
				} else {
					p.line(entry.Name+": "+p.expr(entry.Value), entry)
				}
			}
			p.depth--
			continue
		}
		p.line(prop.Name+": "+p.expr(prop.Value), prop)
	}
}

// expr renders an expression inline. Block expressions never reach this
// path; statements handle them with their bodies.
func (p *printer) expr(e ast.Expression) string {
	switch v := e.(type) {
	case *ast.StringLiteral:
		return p.str(v)
	case *ast.NumberLiteral:
		return v.Raw
	case *ast.Identifier:
		return v.Name
	case *ast.Discretion:
		return p.discretion(v)
	case *ast.ArrayExpression:
		parts := make([]string, len(v.Elements))
		for i, elem := range v.Elements {
			parts[i] = p.expr(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.ObjectExpression:
		return p.object(v)
	case *ast.Session:
		return p.sessionHeader(v)
	case *ast.DoBlock:
		return p.doInvocation(v)
	case *ast.ArrowExpression:
		return p.arrowChain(v)
	default:
		return v.String()
	}
}

// object prints the shorthand form with padded braces; full entries print
// inline (the indented-block form is handled at the property level).
func (p *printer) object(o *ast.ObjectExpression) string {
	if len(o.Properties) == 0 {
		return "{ }"
	}
	parts := make([]string, len(o.Properties))
	for i, prop := range o.Properties {
		if prop.IsShorthand() {
			parts[i] = prop.Name
		} else {
			parts[i] = prop.Name + ": " + p.expr(prop.Value)
		}
	}
	if !p.cfg.prettyPrint {
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func (p *printer) str(s *ast.StringLiteral) string {
	if s.Meta != nil && s.Meta.TripleQuoted {
		return `"""` + escapeStringBody(s.Value, s.Meta, true) + `"""`
	}
	return `"` + escapeStringBody(s.Value, s.Meta, false) + `"`
}

func (p *printer) discretion(d *ast.Discretion) string {
	if d.Multiline {
		return "***\n" + d.Text + "\n***"
	}
	return "**" + d.Text + "**"
}

func identList(ids []*ast.Identifier) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Name
	}
	return strings.Join(parts, ", ")
}
