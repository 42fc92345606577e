// Package validation checks a parsed OpenProse program for semantic
// correctness: name resolution over a lexical scope chain, namespace
// separation between agents, blocks, imports and variables, and the
// per-construct rules (property schemas, modifier combinations, literal
// ranges).
//
// Validation is two passes followed by a traversal: declarations are
// collected first so duplicates and namespace collisions are caught even
// when the colliding definitions are far apart, then statements are walked
// in order with a scope stack.
package validation

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/irl-dan/openprose/core/ast"
	"github.com/irl-dan/openprose/core/types"
)

// Result is the validator output. Valid is true iff no errors were found;
// warnings never affect validity.
type Result struct {
	Valid    bool
	Errors   []types.Diagnostic
	Warnings []types.Diagnostic
}

// Validate checks the program and returns all diagnostics in source order.
func Validate(program *ast.Program) Result {
	v := &validator{
		agents:  map[string]*ast.AgentDefinition{},
		blocks:  map[string]*ast.BlockDefinition{},
		skills:  map[string]*ast.Import{},
		scopes:  newScopeStack(),
		pending: map[ast.Statement]bool{},
	}
	v.collectDeclarations(program)
	v.topLevel = true
	v.checkStatements(program.Statements)
	v.checkComments(program.Comments)

	types.SortDiagnostics(v.errors)
	types.SortDiagnostics(v.warnings)
	return Result{Valid: len(v.errors) == 0, Errors: v.errors, Warnings: v.warnings}
}

// maxRetry is the highest retry count that passes without a warning.
const maxRetry = 10

// maxPromptLength is the prompt size above which the validator warns.
const maxPromptLength = 2000

type validator struct {
	agents map[string]*ast.AgentDefinition
	blocks map[string]*ast.BlockDefinition
	skills map[string]*ast.Import

	scopes   *scopeStack
	topLevel bool

	// pending marks parallel-branch statements whose bindings were
	// pre-registered in the enclosing scope; their own traversal must not
	// define (or reject) them a second time.
	pending map[ast.Statement]bool

	errors   []types.Diagnostic
	warnings []types.Diagnostic
}

func (v *validator) errorf(span types.SourceSpan, format string, args ...any) {
	v.errors = append(v.errors, types.Errorf(span, format, args...))
}

func (v *validator) warnf(span types.SourceSpan, format string, args ...any) {
	v.warnings = append(v.warnings, types.Warnf(span, format, args...))
}

// collectDeclarations is the first pass: imports, agents, and blocks are
// program-global names living in disjoint namespaces.
func (v *validator) collectDeclarations(program *ast.Program) {
	seenNonImport := false
	for _, stmt := range program.Statements {
		switch s := stmt.(type) {
		case *ast.Comment:
		case *ast.Import:
			if seenNonImport {
				v.errorf(s.Pos, "Import statements must appear at the top of the file")
			}
			v.collectImport(s)
		case *ast.AgentDefinition:
			seenNonImport = true
			v.collectAgent(s)
		case *ast.BlockDefinition:
			seenNonImport = true
			v.collectBlock(s)
		default:
			seenNonImport = true
		}
	}
}

func (v *validator) collectImport(imp *ast.Import) {
	name := imp.Skill.Value
	if _, exists := v.skills[name]; exists {
		v.errorf(imp.Skill.Pos, "duplicate import of skill %q", name)
		return
	}
	v.skills[name] = imp

	source := imp.Source.Value
	known := []string{"github:", "npm:", "./", "../", "/"}
	recognized := false
	for _, prefix := range known {
		if strings.HasPrefix(source, prefix) {
			recognized = true
			break
		}
	}
	if !recognized {
		v.warnf(imp.Source.Pos, "unrecognized import source %q", source)
	}
}

func (v *validator) collectAgent(def *ast.AgentDefinition) {
	name := def.Name.Name
	if _, exists := v.agents[name]; exists {
		v.errorf(def.Name.Pos, "duplicate agent definition %q", name)
		return
	}
	if _, exists := v.blocks[name]; exists {
		v.errorf(def.Name.Pos, "%q is already defined as a block", name)
		return
	}
	v.agents[name] = def
}

func (v *validator) collectBlock(def *ast.BlockDefinition) {
	name := def.Name.Name
	if _, exists := v.blocks[name]; exists {
		v.errorf(def.Name.Pos, "duplicate block definition %q", name)
		return
	}
	if _, exists := v.agents[name]; exists {
		v.errorf(def.Name.Pos, "%q is already defined as an agent", name)
		return
	}
	v.blocks[name] = def
}

func (v *validator) checkComments(comments []*ast.Comment) {
	for _, c := range comments {
		for _, marker := range []string{"TODO", "FIXME", "HACK"} {
			if strings.Contains(c.Text, marker) {
				v.warnf(c.Pos, "comment contains %s", marker)
				break
			}
		}
	}
}

// checkStatements walks a statement list in order.
func (v *validator) checkStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		v.checkStatement(stmt)
	}
}

func (v *validator) checkStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Comment:
	case *ast.Import:
		if !v.topLevel {
			v.errorf(s.Pos, "Import statements must appear at the top of the file")
		}
	case *ast.AgentDefinition:
		if !v.topLevel {
			v.errorf(s.Pos, "agent definitions must be top-level")
		}
		v.checkAgentDefinition(s)
	case *ast.BlockDefinition:
		if !v.topLevel {
			v.errorf(s.Pos, "block definitions must be top-level")
		}
		v.checkBlockDefinition(s)
	case *ast.Session:
		v.checkSession(s)
	case *ast.DoBlock:
		v.checkDoBlock(s)
	case *ast.ParallelBlock:
		v.checkParallel(s)
	case *ast.RepeatBlock:
		v.checkRepeat(s)
	case *ast.ForEachBlock:
		v.checkForEach(s)
	case *ast.LoopBlock:
		v.checkLoop(s)
	case *ast.TryBlock:
		v.checkTry(s)
	case *ast.ThrowStatement:
		v.checkThrow(s)
	case *ast.ChoiceBlock:
		v.checkChoice(s)
	case *ast.IfStatement:
		v.checkIf(s)
	case *ast.LetBinding:
		v.checkExpression(s.Value)
		if v.pending[s] {
			delete(v.pending, s)
			return
		}
		v.defineVariable(s.Name, false)
	case *ast.ConstBinding:
		v.checkExpression(s.Value)
		if v.pending[s] {
			delete(v.pending, s)
			return
		}
		v.defineVariable(s.Name, true)
	case *ast.Assignment:
		v.checkAssignment(s)
	case *ast.ArrowExpression:
		v.checkExpression(s)
	case *ast.PipeExpression:
		v.checkExpression(s)
	}
}

// defineVariable places a let/const binding per the escape rules and
// reports duplicates, shadowing, and namespace collisions.
func (v *validator) defineVariable(name *ast.Identifier, isConst bool) {
	if v.collidesWithGlobalNamespace(name) {
		return
	}
	outcome := v.scopes.defineInEscapeTarget(name.Name, isConst, name.Pos)
	v.reportDefineOutcome(name, outcome)
}

// defineLocal places a binding directly in the innermost scope (loop
// variables, parameters, catch error variables).
func (v *validator) defineLocal(name *ast.Identifier, isConst bool) {
	if v.collidesWithGlobalNamespace(name) {
		return
	}
	outcome := v.scopes.defineInCurrent(name.Name, isConst, name.Pos)
	v.reportDefineOutcome(name, outcome)
}

func (v *validator) reportDefineOutcome(name *ast.Identifier, outcome defineOutcome) {
	if outcome.duplicate != nil {
		v.errorf(name.Pos, "duplicate definition of %q in the same scope", name.Name)
		return
	}
	if outcome.shadowed != nil {
		v.warnf(name.Pos, "%q shadows a binding from an enclosing scope", name.Name)
	}
}

func (v *validator) collidesWithGlobalNamespace(name *ast.Identifier) bool {
	if _, isAgent := v.agents[name.Name]; isAgent {
		v.errorf(name.Pos, "%q is already defined as an agent", name.Name)
		return true
	}
	if _, isBlock := v.blocks[name.Name]; isBlock {
		v.errorf(name.Pos, "%q is already defined as a block", name.Name)
		return true
	}
	return false
}

// resolveVariable reports an undefined reference.
func (v *validator) resolveVariable(name *ast.Identifier, role string) *binding {
	b := v.scopes.lookup(name.Name)
	if b == nil {
		v.errorf(name.Pos, "undefined variable %q used as %s%s",
			name.Name, role, didYouMean(name.Name, v.scopes.visibleNames()))
	}
	return b
}

func (v *validator) checkAssignment(s *ast.Assignment) {
	v.checkExpression(s.Value)
	if v.pending[s] {
		delete(v.pending, s)
		return
	}
	b := v.scopes.lookup(s.Name.Name)
	if b == nil {
		v.errorf(s.Name.Pos, "cannot assign to undefined variable %q%s",
			s.Name.Name, didYouMean(s.Name.Name, v.scopes.visibleNames()))
		return
	}
	if b.isConst {
		v.errorf(s.Name.Pos, "cannot reassign constant %q", s.Name.Name)
	}
}

// enterBody runs a statement list in a fresh scope of the given kind.
func (v *validator) enterBody(kind scopeKind, stmts []ast.Statement, locals func()) {
	wasTop := v.topLevel
	v.topLevel = false
	v.scopes.push(kind)
	if locals != nil {
		locals()
	}
	v.checkStatements(stmts)
	v.scopes.pop()
	v.topLevel = wasTop
}

func (v *validator) checkAgentDefinition(def *ast.AgentDefinition) {
	v.checkProperties(def.Properties, agentProperties, def.Name.Pos)

	var hasModel, hasPrompt bool
	for _, prop := range def.Properties {
		switch prop.Name {
		case "model":
			hasModel = true
		case "prompt":
			hasPrompt = true
		}
	}
	if !hasModel {
		v.errorf(def.Pos, "agent %q requires a 'model' property", def.Name.Name)
	}
	if !hasPrompt {
		v.errorf(def.Pos, "agent %q requires a 'prompt' property", def.Name.Name)
	}
}

func (v *validator) checkBlockDefinition(def *ast.BlockDefinition) {
	if countCode(def.Body) == 0 {
		v.errorf(def.Pos, "block %q has an empty body", def.Name.Name)
	}

	seen := map[string]types.SourceSpan{}
	for _, param := range def.Params {
		if _, dup := seen[param.Name]; dup {
			v.errorf(param.Pos, "duplicate parameter %q", param.Name)
		}
		seen[param.Name] = param.Pos
	}

	v.enterBody(scopeFunction, def.Body, func() {
		for _, param := range def.Params {
			v.defineLocal(param, true)
		}
	})
}

// checkSession validates one session: its agent reference, its naming, its
// property block, and the requirement that it carries a prompt one way or
// another.
func (v *validator) checkSession(s *ast.Session) {
	if s.Agent != nil {
		v.resolveAgent(s.Agent)
	}
	if s.Name != nil {
		v.defineVariable(s.Name, false)
	}
	if s.Prompt != nil {
		v.checkPromptString(s.Prompt)
	}

	v.checkProperties(s.Properties, sessionProperties, s.Pos)

	var promptProp bool
	for _, prop := range s.Properties {
		if prop.Name == "prompt" {
			promptProp = true
		}
	}
	if s.Prompt == nil && !promptProp && s.Agent == nil {
		v.errorf(s.Pos, "session requires a prompt or an agent reference")
	}
	if s.Prompt != nil && promptProp {
		v.warnf(s.Pos, "session has both an inline prompt and a 'prompt' property")
	}
}

func (v *validator) resolveAgent(ref *ast.Identifier) {
	def, ok := v.agents[ref.Name]
	if !ok {
		v.errorf(ref.Pos, "undefined agent %q%s", ref.Name, didYouMean(ref.Name, v.agentNames()))
		return
	}
	if def.Pos.Start.Offset > ref.Pos.Start.Offset {
		v.errorf(ref.Pos, "agent %q is referenced before its definition", ref.Name)
	}
}

func (v *validator) checkDoBlock(d *ast.DoBlock) {
	if !d.IsInvocation() {
		v.enterBody(scopeAnonDo, d.Body, nil)
		return
	}

	def, ok := v.blocks[d.Name.Name]
	if !ok {
		v.errorf(d.Name.Pos, "undefined block %q%s", d.Name.Name, didYouMean(d.Name.Name, v.blockNames()))
	} else {
		if def.Pos.Start.Offset > d.Name.Pos.Start.Offset {
			v.errorf(d.Name.Pos, "block %q is invoked before its definition", d.Name.Name)
		}
		if len(d.Args) != len(def.Params) {
			v.errorf(d.Pos, "block %q expects %d argument(s), got %d",
				d.Name.Name, len(def.Params), len(d.Args))
		}
	}
	for _, arg := range d.Args {
		v.checkExpression(arg)
	}
}

// checkParallel pre-registers branch results in the enclosing scope, then
// walks the branches without pushing a scope: bindings made in branches
// are visible after the block.
func (v *validator) checkParallel(p *ast.ParallelBlock) {
	switch p.Strategy {
	case "", "all", "first", "any":
	default:
		v.errorf(p.StrategySpan, "unknown join strategy %q, expected \"all\", \"first\", or \"any\"", p.Strategy)
	}

	branches := countCode(p.Body)
	if (p.Strategy == "first" || p.Strategy == "any") && branches < 2 {
		v.errorf(p.Pos, "parallel (%q) requires at least two branches", p.Strategy)
	}

	if p.Count != nil {
		if p.Strategy != "any" {
			v.errorf(p.Count.Span(), "'count' is only valid with the \"any\" strategy")
		}
		if n, ok := intLiteral(p.Count); ok {
			if n < 1 {
				v.errorf(p.Count.Span(), "'count' must be at least 1")
			} else if n > branches {
				v.warnf(p.Count.Span(), "'count' exceeds the number of branches")
			}
		}
	}

	// Pre-registration: named results and branch-level let/const become
	// visible to every branch and to the statements after the block.
	for _, stmt := range p.Body {
		var name *ast.Identifier
		var isConst bool
		switch b := stmt.(type) {
		case *ast.Assignment:
			if v.scopes.lookup(b.Name.Name) != nil {
				continue // plain reassignment, not a named result
			}
			name = b.Name
		case *ast.LetBinding:
			name = b.Name
		case *ast.ConstBinding:
			name, isConst = b.Name, true
		default:
			continue
		}
		if v.collidesWithGlobalNamespace(name) {
			continue
		}
		outcome := v.scopes.defineInEscapeTarget(name.Name, isConst, name.Pos)
		v.reportDefineOutcome(name, outcome)
		if outcome.duplicate == nil {
			v.pending[stmt] = true
		}
	}

	wasTop := v.topLevel
	v.topLevel = false
	v.checkStatements(p.Body)
	v.topLevel = wasTop
}

func (v *validator) checkRepeat(r *ast.RepeatBlock) {
	switch count := r.Count.(type) {
	case *ast.NumberLiteral:
		if !count.IsInt || count.Int() < 1 {
			v.errorf(count.Pos, "repeat count must be a positive integer")
		}
	case *ast.Identifier:
		// The value itself is validated at runtime.
		v.resolveVariable(count, "a repeat count")
	default:
		v.errorf(r.Count.Span(), "repeat count must be a number or a variable")
	}

	v.enterBody(scopeLoop, r.Body, func() {
		if r.As != nil {
			v.defineLocal(r.As, true)
		}
	})
}

func (v *validator) checkForEach(f *ast.ForEachBlock) {
	switch coll := f.Collection.(type) {
	case *ast.Identifier:
		v.resolveVariable(coll, "a collection")
	default:
		v.checkExpression(f.Collection)
	}

	v.enterBody(scopeLoop, f.Body, func() {
		v.defineLocal(f.Item, true)
		if f.Index != nil {
			v.defineLocal(f.Index, true)
		}
	})
}

func (v *validator) checkLoop(l *ast.LoopBlock) {
	if l.Condition != nil {
		v.checkDiscretion(l.Condition)
	}
	if l.Max != nil {
		if n, ok := intLiteral(l.Max); !ok || n < 1 {
			v.errorf(l.Max.Span(), "loop 'max' must be a positive integer")
		}
	} else if l.Kind == ast.LoopPlain {
		v.warnf(l.Pos, "unbounded loop, consider adding (max: N)")
	}

	v.enterBody(scopeLoop, l.Body, func() {
		if l.As != nil {
			v.defineLocal(l.As, true)
		}
	})
}

func (v *validator) checkTry(t *ast.TryBlock) {
	v.enterBody(scopeTry, t.Body, nil)
	if t.Catch != nil {
		v.enterBody(scopeCatch, t.Catch.Body, func() {
			if t.Catch.Err != nil {
				v.defineLocal(t.Catch.Err, true)
			}
		})
	}
	if t.Finally != nil {
		v.enterBody(scopeFinally, t.Finally.Body, nil)
	}
}

func (v *validator) checkThrow(t *ast.ThrowStatement) {
	v.checkExpression(t.Message)
	if lit, ok := t.Message.(*ast.StringLiteral); ok && strings.TrimSpace(lit.Value) == "" {
		v.warnf(lit.Pos, "throw with an empty message")
	}
}

// checkChoice validates option arms. Option bodies are isolated: only one
// option executes, so bindings never escape.
func (v *validator) checkChoice(c *ast.ChoiceBlock) {
	v.checkDiscretion(c.Condition)
	if len(c.Options) == 0 {
		v.errorf(c.Pos, "choice requires at least one option")
	}

	labels := map[string]bool{}
	for _, opt := range c.Options {
		if labels[opt.Label.Value] {
			v.warnf(opt.Label.Pos, "duplicate option label %q", opt.Label.Value)
		}
		labels[opt.Label.Value] = true
		v.checkString(opt.Label)
		v.enterBody(scopeChoiceOption, opt.Body, nil)
	}
}

func (v *validator) checkIf(s *ast.IfStatement) {
	v.checkDiscretion(s.Condition)
	v.enterBody(scopeIfArm, s.Then, nil)
	for _, elif := range s.Elifs {
		v.checkDiscretion(elif.Condition)
		v.enterBody(scopeIfArm, elif.Body, nil)
	}
	if s.Else != nil {
		v.enterBody(scopeIfArm, s.Else, nil)
	}
}

// checkDiscretion enforces the non-emptiness and minimum-length heuristic.
// The body itself stays opaque.
func (v *validator) checkDiscretion(d *ast.Discretion) {
	if strings.TrimSpace(d.Text) == "" {
		v.errorf(d.Pos, "discretion condition must not be empty")
		return
	}
	nonSpace := 0
	for _, r := range d.Text {
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	if nonSpace < 3 {
		v.warnf(d.Pos, "discretion condition is very short")
	}
}

// checkExpression resolves references inside a right-hand-side expression.
func (v *validator) checkExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case nil:
	case *ast.Session:
		v.checkSession(e)
	case *ast.DoBlock:
		v.checkDoBlock(e)
	case *ast.ParallelBlock:
		v.checkParallel(e)
	case *ast.TryBlock:
		v.checkTry(e)
	case *ast.LoopBlock:
		v.checkLoop(e)
	case *ast.ChoiceBlock:
		v.checkChoice(e)
	case *ast.IfStatement:
		v.checkIf(e)
	case *ast.ArrowExpression:
		v.checkExpression(e.Left)
		v.checkExpression(e.Right)
	case *ast.PipeExpression:
		v.checkPipe(e)
	case *ast.StringLiteral:
		v.checkString(e)
	case *ast.Identifier:
		v.resolveVariable(e, "a value")
	case *ast.ArrayExpression:
		for _, elem := range e.Elements {
			v.checkExpression(elem)
		}
	case *ast.ObjectExpression:
		for _, prop := range e.Properties {
			if prop.Value != nil {
				v.checkExpression(prop.Value)
			}
		}
	case *ast.NumberLiteral, *ast.Discretion:
	}
}

func (v *validator) checkPipe(p *ast.PipeExpression) {
	switch input := p.Input.(type) {
	case *ast.Identifier:
		v.resolveVariable(input, "a pipeline input")
	default:
		v.checkExpression(p.Input)
	}

	for _, op := range p.Operations {
		v.enterBody(scopeLoop, op.Body, func() {
			for _, param := range op.Params {
				v.defineLocal(param, true)
			}
		})
	}
}

// checkString resolves interpolations and re-reports lexer string metadata
// the validator owns: unclosed braces and unknown escapes.
func (v *validator) checkString(s *ast.StringLiteral) {
	if s.Meta == nil {
		return
	}
	for _, interp := range s.Meta.Interpolations {
		if v.scopes.lookup(interp.Name) == nil {
			v.errorf(interp.Span, "undefined variable %q in string interpolation%s",
				interp.Name, didYouMean(interp.Name, v.scopes.visibleNames()))
		}
	}
	if s.Meta.UnclosedBrace != nil {
		v.errorf(*s.Meta.UnclosedBrace, "unclosed '{' in string, use \\{ for a literal brace")
	}
	for _, esc := range s.Meta.Escapes {
		if esc.Kind == types.EscapeInvalid && esc.Resolved != "" {
			v.warnf(esc.Span, "unknown escape sequence %q", esc.Lexeme)
		}
	}
}

func (v *validator) checkPromptString(s *ast.StringLiteral) {
	v.checkString(s)
	if strings.TrimSpace(s.Value) == "" {
		v.warnf(s.Pos, "prompt is empty or whitespace only")
	} else if utf8.RuneCountInString(s.Value) > maxPromptLength {
		v.warnf(s.Pos, "prompt is longer than %d characters", maxPromptLength)
	}
}

// countCode counts non-comment statements.
func countCode(stmts []ast.Statement) int {
	n := 0
	for _, stmt := range stmts {
		if _, isComment := stmt.(*ast.Comment); !isComment {
			n++
		}
	}
	return n
}

// intLiteral unwraps a positive-position integer literal.
func intLiteral(expr ast.Expression) (int, bool) {
	lit, ok := expr.(*ast.NumberLiteral)
	if !ok || !lit.IsInt {
		return 0, false
	}
	return lit.Int(), true
}
