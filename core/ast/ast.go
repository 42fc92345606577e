// Package ast defines the typed syntax tree for OpenProse programs.
//
// The tree is a closed set of node structs behind three marker interfaces:
// Node, Statement, and Expression. Consumers dispatch with type switches;
// there is no open inheritance and no post-hoc mutation - the parser builds
// the tree bottom-up and the validator and compiler only read it.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/irl-dan/openprose/core/types"
)

// Node represents any node in the AST
type Node interface {
	Span() types.SourceSpan
	String() string
}

// Statement is any node that may appear in a statement position
type Statement interface {
	Node
	stmtNode()
}

// Expression is any node that may appear as a right-hand side or operand
type Expression interface {
	Node
	exprNode()
}

// Program is the root node: the ordered top-level statements plus a flat
// list of every comment seen, in source order, for tooling.
type Program struct {
	Statements []Statement
	Comments   []*Comment
	Pos        types.SourceSpan
}

func (p *Program) Span() types.SourceSpan { return p.Pos }

func (p *Program) String() string {
	parts := make([]string, 0, len(p.Statements))
	for _, s := range p.Statements {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n")
}

// Comment is a # comment. Standalone comments appear as statements, except
// those the parser drops at block boundaries and inside property blocks and
// choice bodies; those and inline comments only appear in Program.Comments.
type Comment struct {
	Text   string // without the leading #
	Inline bool
	Pos    types.SourceSpan
}

func (c *Comment) Span() types.SourceSpan { return c.Pos }
func (c *Comment) String() string         { return "#" + c.Text }
func (c *Comment) stmtNode()              {}

// Import declares a skill import: import "name" from "source"
type Import struct {
	Skill  *StringLiteral
	Source *StringLiteral
	Pos    types.SourceSpan
}

func (i *Import) Span() types.SourceSpan { return i.Pos }
func (i *Import) String() string {
	return fmt.Sprintf("import %s from %s", i.Skill, i.Source)
}
func (i *Import) stmtNode() {}

// Property is a name: value pair attached to a session or agent definition
type Property struct {
	Name  string
	Value Expression
	Pos   types.SourceSpan
}

func (p *Property) Span() types.SourceSpan { return p.Pos }
func (p *Property) String() string         { return fmt.Sprintf("%s: %s", p.Name, p.Value) }

// AgentDefinition declares a named agent configuration
type AgentDefinition struct {
	Name       *Identifier
	Properties []*Property
	Pos        types.SourceSpan
}

func (a *AgentDefinition) Span() types.SourceSpan { return a.Pos }
func (a *AgentDefinition) String() string         { return fmt.Sprintf("agent %s", a.Name) }
func (a *AgentDefinition) stmtNode()              {}

// Session is a unit of agent invocation. Exactly one of Prompt (inline
// form) or Agent (reference form) is set by a well-formed parse; Name is
// the optional label of the reference form: session name: agent
type Session struct {
	Name       *Identifier    // optional
	Agent      *Identifier    // agent reference, nil for inline form
	Prompt     *StringLiteral // inline prompt, nil for reference form
	Properties []*Property
	Pos        types.SourceSpan
}

func (s *Session) Span() types.SourceSpan { return s.Pos }
func (s *Session) String() string {
	if s.Prompt != nil {
		return fmt.Sprintf("session %s", s.Prompt)
	}
	if s.Name != nil {
		return fmt.Sprintf("session %s: %s", s.Name, s.Agent)
	}
	return fmt.Sprintf("session: %s", s.Agent)
}
func (s *Session) stmtNode() {}
func (s *Session) exprNode() {}

// BlockDefinition declares a reusable named block with parameters
type BlockDefinition struct {
	Name   *Identifier
	Params []*Identifier
	Body   []Statement
	Pos    types.SourceSpan
}

func (b *BlockDefinition) Span() types.SourceSpan { return b.Pos }
func (b *BlockDefinition) String() string {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.Name
	}
	return fmt.Sprintf("block %s(%s)", b.Name, strings.Join(params, ", "))
}
func (b *BlockDefinition) stmtNode() {}

// DoBlock is either an invocation (Name set, Body empty) or an anonymous
// block (Name nil, Body non-empty).
type DoBlock struct {
	Name *Identifier // nil for anonymous blocks
	Args []Expression
	Body []Statement
	Pos  types.SourceSpan
}

// IsInvocation reports whether this is a named block invocation.
func (d *DoBlock) IsInvocation() bool { return d.Name != nil }

func (d *DoBlock) Span() types.SourceSpan { return d.Pos }
func (d *DoBlock) String() string {
	if d.Name == nil {
		return "do:"
	}
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("do %s(%s)", d.Name, strings.Join(args, ", "))
}
func (d *DoBlock) stmtNode() {}
func (d *DoBlock) exprNode() {}

// ParallelBlock runs its branch statements concurrently.
// Strategy is "" when unspecified (defaults to "all" at runtime).
type ParallelBlock struct {
	Strategy     string // "all", "first", "any", or ""
	StrategySpan types.SourceSpan
	Count        Expression     // count: N, only meaningful with "any"
	OnFail       *StringLiteral // on-fail: "..."
	Body         []Statement
	Pos          types.SourceSpan
}

func (p *ParallelBlock) Span() types.SourceSpan { return p.Pos }
func (p *ParallelBlock) String() string         { return "parallel:" }
func (p *ParallelBlock) stmtNode()              {}
func (p *ParallelBlock) exprNode()              {}

// RepeatBlock runs its body a fixed number of times: repeat N [as i]:
type RepeatBlock struct {
	Count Expression
	As    *Identifier // optional iteration counter
	Body  []Statement
	Pos   types.SourceSpan
}

func (r *RepeatBlock) Span() types.SourceSpan { return r.Pos }
func (r *RepeatBlock) String() string         { return fmt.Sprintf("repeat %s", r.Count) }
func (r *RepeatBlock) stmtNode()              {}

// ForEachBlock iterates a collection: [parallel] for item[, idx] in items:
type ForEachBlock struct {
	Item       *Identifier
	Index      *Identifier // optional
	Collection Expression
	Parallel   bool
	Body       []Statement
	Pos        types.SourceSpan
}

func (f *ForEachBlock) Span() types.SourceSpan { return f.Pos }
func (f *ForEachBlock) String() string {
	prefix := "for"
	if f.Parallel {
		prefix = "parallel for"
	}
	return fmt.Sprintf("%s %s in %s", prefix, f.Item, f.Collection)
}
func (f *ForEachBlock) stmtNode() {}

// LoopKind distinguishes the three loop headers
type LoopKind int

const (
	LoopPlain LoopKind = iota // loop:
	LoopUntil                 // loop until **...**:
	LoopWhile                 // loop while **...**:
)

func (k LoopKind) String() string {
	switch k {
	case LoopUntil:
		return "until"
	case LoopWhile:
		return "while"
	default:
		return "plain"
	}
}

// LoopBlock is an open-ended loop, optionally bounded with (max: N) and
// optionally binding the iteration counter with as.
type LoopBlock struct {
	Kind      LoopKind
	Condition *Discretion // nil for LoopPlain
	Max       Expression  // nil when unbounded
	As        *Identifier // optional
	Body      []Statement
	Pos       types.SourceSpan
}

func (l *LoopBlock) Span() types.SourceSpan { return l.Pos }
func (l *LoopBlock) String() string {
	if l.Kind == LoopPlain {
		return "loop:"
	}
	return fmt.Sprintf("loop %s %s", l.Kind, l.Condition)
}
func (l *LoopBlock) stmtNode() {}
func (l *LoopBlock) exprNode() {}

// CatchClause is the catch arm of a try block
type CatchClause struct {
	Err  *Identifier // optional error binding
	Body []Statement
	Pos  types.SourceSpan
}

func (c *CatchClause) Span() types.SourceSpan { return c.Pos }
func (c *CatchClause) String() string {
	if c.Err != nil {
		return fmt.Sprintf("catch as %s", c.Err)
	}
	return "catch:"
}

// FinallyClause is the finally arm of a try block
type FinallyClause struct {
	Body []Statement
	Pos  types.SourceSpan
}

func (f *FinallyClause) Span() types.SourceSpan { return f.Pos }
func (f *FinallyClause) String() string         { return "finally:" }

// TryBlock requires at least one of Catch and Finally.
type TryBlock struct {
	Body    []Statement
	Catch   *CatchClause
	Finally *FinallyClause
	Pos     types.SourceSpan
}

func (t *TryBlock) Span() types.SourceSpan { return t.Pos }
func (t *TryBlock) String() string         { return "try:" }
func (t *TryBlock) stmtNode()              {}
func (t *TryBlock) exprNode()              {}

// ThrowStatement raises an error with a message expression
type ThrowStatement struct {
	Message Expression
	Pos     types.SourceSpan
}

func (t *ThrowStatement) Span() types.SourceSpan { return t.Pos }
func (t *ThrowStatement) String() string         { return fmt.Sprintf("throw %s", t.Message) }
func (t *ThrowStatement) stmtNode()              {}

// ChoiceOption is one option arm of a choice block
type ChoiceOption struct {
	Label *StringLiteral
	Body  []Statement
	Pos   types.SourceSpan
}

func (o *ChoiceOption) Span() types.SourceSpan { return o.Pos }
func (o *ChoiceOption) String() string         { return fmt.Sprintf("option %s", o.Label) }

// ChoiceBlock lets the runtime AI pick one option by a discretion condition
type ChoiceBlock struct {
	Condition *Discretion
	Options   []*ChoiceOption
	Pos       types.SourceSpan
}

func (c *ChoiceBlock) Span() types.SourceSpan { return c.Pos }
func (c *ChoiceBlock) String() string         { return fmt.Sprintf("choice %s", c.Condition) }
func (c *ChoiceBlock) stmtNode()              {}
func (c *ChoiceBlock) exprNode()              {}

// ElifClause is one elif arm of an if statement
type ElifClause struct {
	Condition *Discretion
	Body      []Statement
	Pos       types.SourceSpan
}

func (e *ElifClause) Span() types.SourceSpan { return e.Pos }
func (e *ElifClause) String() string         { return fmt.Sprintf("elif %s", e.Condition) }

// IfStatement branches on a discretion condition
type IfStatement struct {
	Condition *Discretion
	Then      []Statement
	Elifs     []*ElifClause
	Else      []Statement // nil when absent
	Pos       types.SourceSpan
}

func (i *IfStatement) Span() types.SourceSpan { return i.Pos }
func (i *IfStatement) String() string         { return fmt.Sprintf("if %s", i.Condition) }
func (i *IfStatement) stmtNode()              {}
func (i *IfStatement) exprNode()              {}

// LetBinding declares a mutable variable
type LetBinding struct {
	Name  *Identifier
	Value Expression
	Pos   types.SourceSpan
}

func (l *LetBinding) Span() types.SourceSpan { return l.Pos }
func (l *LetBinding) String() string         { return fmt.Sprintf("let %s = %s", l.Name, l.Value) }
func (l *LetBinding) stmtNode()              {}

// ConstBinding declares an immutable variable
type ConstBinding struct {
	Name  *Identifier
	Value Expression
	Pos   types.SourceSpan
}

func (c *ConstBinding) Span() types.SourceSpan { return c.Pos }
func (c *ConstBinding) String() string         { return fmt.Sprintf("const %s = %s", c.Name, c.Value) }
func (c *ConstBinding) stmtNode()              {}

// Assignment rebinds an existing variable
type Assignment struct {
	Name  *Identifier
	Value Expression
	Pos   types.SourceSpan
}

func (a *Assignment) Span() types.SourceSpan { return a.Pos }
func (a *Assignment) String() string         { return fmt.Sprintf("%s = %s", a.Name, a.Value) }
func (a *Assignment) stmtNode()              {}

// ArrowExpression is one -> step: a left-associative binary node. Chains
// nest in the Left operand; the compiler re-flattens for output.
type ArrowExpression struct {
	Left  Expression
	Right Expression
	Pos   types.SourceSpan
}

func (a *ArrowExpression) Span() types.SourceSpan { return a.Pos }
func (a *ArrowExpression) String() string         { return fmt.Sprintf("%s -> %s", a.Left, a.Right) }
func (a *ArrowExpression) stmtNode()              {}
func (a *ArrowExpression) exprNode()              {}

// PipeOperator identifies one pipeline operation
type PipeOperator int

const (
	PipeMap PipeOperator = iota
	PipeFilter
	PipeReduce
	PipePmap
)

func (o PipeOperator) String() string {
	switch o {
	case PipeMap:
		return "map"
	case PipeFilter:
		return "filter"
	case PipeReduce:
		return "reduce"
	case PipePmap:
		return "pmap"
	default:
		return fmt.Sprintf("PipeOperator(%d)", int(o))
	}
}

// PipeOperation is one stage of a pipeline. Params is set only for reduce
// (accumulator, item).
type PipeOperation struct {
	Operator PipeOperator
	Params   []*Identifier
	Body     []Statement
	Pos      types.SourceSpan
}

func (p *PipeOperation) Span() types.SourceSpan { return p.Pos }
func (p *PipeOperation) String() string {
	if len(p.Params) == 0 {
		return fmt.Sprintf("| %s:", p.Operator)
	}
	params := make([]string, len(p.Params))
	for i, id := range p.Params {
		params[i] = id.Name
	}
	return fmt.Sprintf("| %s(%s):", p.Operator, strings.Join(params, ", "))
}

// PipeExpression is an input expression followed by an ordered sequence of
// operations: items | filter: ... | map: ...
type PipeExpression struct {
	Input      Expression
	Operations []*PipeOperation
	Pos        types.SourceSpan
}

func (p *PipeExpression) Span() types.SourceSpan { return p.Pos }
func (p *PipeExpression) String() string {
	var b strings.Builder
	b.WriteString(p.Input.String())
	for _, op := range p.Operations {
		b.WriteString(" ")
		b.WriteString(op.String())
	}
	return b.String()
}
func (p *PipeExpression) stmtNode() {}
func (p *PipeExpression) exprNode() {}

// StringLiteral is a decoded string with its lexer metadata retained
type StringLiteral struct {
	Value string
	Meta  *types.StringMeta
	Pos   types.SourceSpan
}

func (s *StringLiteral) Span() types.SourceSpan { return s.Pos }
func (s *StringLiteral) String() string         { return strconv.Quote(s.Value) }
func (s *StringLiteral) exprNode()              {}

// NumberLiteral is a decimal integer or fractional literal
type NumberLiteral struct {
	Value float64
	Raw   string // source lexeme, e.g. "3" or "0.5"
	IsInt bool
	Pos   types.SourceSpan
}

func (n *NumberLiteral) Span() types.SourceSpan { return n.Pos }
func (n *NumberLiteral) String() string         { return n.Raw }
func (n *NumberLiteral) exprNode()              {}

// Int returns the literal as an int. Only meaningful when IsInt is set.
func (n *NumberLiteral) Int() int { return int(n.Value) }

// Identifier is a name reference or declaration site
type Identifier struct {
	Name string
	Pos  types.SourceSpan
}

func (i *Identifier) Span() types.SourceSpan { return i.Pos }
func (i *Identifier) String() string         { return i.Name }
func (i *Identifier) exprNode()              {}

// Discretion is a natural-language condition. Its body is opaque to the
// frontend: never parsed, never name-resolved, passed verbatim to the
// runtime.
type Discretion struct {
	Text      string
	Multiline bool
	Pos       types.SourceSpan
}

func (d *Discretion) Span() types.SourceSpan { return d.Pos }
func (d *Discretion) String() string {
	if d.Multiline {
		return "***" + d.Text + "***"
	}
	return "**" + d.Text + "**"
}
func (d *Discretion) exprNode() {}

// ArrayExpression is a bracketed element list: [a, b, c]
type ArrayExpression struct {
	Elements []Expression
	Pos      types.SourceSpan
}

func (a *ArrayExpression) Span() types.SourceSpan { return a.Pos }
func (a *ArrayExpression) String() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (a *ArrayExpression) exprNode() {}

// ObjectProperty is one entry of an object expression. Value is nil for the
// context shorthand form {a, b, c}.
type ObjectProperty struct {
	Name  string
	Value Expression // nil for shorthand
	Pos   types.SourceSpan
}

func (o *ObjectProperty) Span() types.SourceSpan { return o.Pos }
func (o *ObjectProperty) String() string {
	if o.Value == nil {
		return o.Name
	}
	return fmt.Sprintf("%s: %s", o.Name, o.Value)
}

// IsShorthand reports whether the property has no explicit value.
func (o *ObjectProperty) IsShorthand() bool { return o.Value == nil }

// ObjectExpression is a braced property list, including the context
// shorthand {a, b, c}.
type ObjectExpression struct {
	Properties []*ObjectProperty
	Pos        types.SourceSpan
}

func (o *ObjectExpression) Span() types.SourceSpan { return o.Pos }
func (o *ObjectExpression) String() string {
	parts := make([]string, len(o.Properties))
	for i, p := range o.Properties {
		parts[i] = p.String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}
func (o *ObjectExpression) exprNode() {}

// AllShorthand reports whether every property is a bare shorthand name.
func (o *ObjectExpression) AllShorthand() bool {
	for _, p := range o.Properties {
		if !p.IsShorthand() {
			return false
		}
	}
	return true
}
