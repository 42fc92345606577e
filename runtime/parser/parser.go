// Package parser builds the OpenProse AST from the lexer's token stream.
//
// The parser is single-pass recursive descent over an indentation-based
// grammar: block bodies are delimited by INDENT/DEDENT tokens the lexer
// synthesized, so the parser itself never counts columns. It keeps only a
// token cursor and never looks back more than one token.
//
// Failure semantics: every missing-token condition produces one diagnostic
// and synchronizes to the next statement boundary. Panics never propagate
// to callers.
package parser

import (
	"strconv"
	"strings"

	"github.com/irl-dan/openprose/core/ast"
	"github.com/irl-dan/openprose/core/invariant"
	"github.com/irl-dan/openprose/core/types"
	"github.com/irl-dan/openprose/runtime/lexer"
)

// Result is the parser output: the program and any diagnostics, with lexer
// diagnostics first (pipeline order, not timing).
type Result struct {
	Program *ast.Program
	Errors  []types.Diagnostic
}

// Parse lexes and parses the input source.
func Parse(source []byte) Result {
	lexed := lexer.Tokenize(source)
	res := ParseTokens(lexed.Tokens)
	res.Errors = append(append([]types.Diagnostic{}, lexed.Errors...), res.Errors...)
	return res
}

// ParseString is a convenience wrapper for tests.
func ParseString(input string) Result {
	return Parse([]byte(input))
}

// ParseTokens parses pre-lexed tokens.
func ParseTokens(tokens []types.Token) Result {
	p := newParser(tokens)
	program := p.parseProgram()
	return Result{Program: program, Errors: p.errors}
}

// parser is the internal parser state
type parser struct {
	tokens   []types.Token
	pos      int
	prev     types.Token
	errors   []types.Diagnostic
	comments []*ast.Comment
}

func newParser(tokens []types.Token) *parser {
	// The stream always terminates with EOF; guarantee it for direct
	// ParseTokens callers too.
	if len(tokens) == 0 || tokens[len(tokens)-1].Type != types.EOF {
		tokens = append(tokens, types.Token{Type: types.EOF})
	}

	// Inline comments are recorded and dropped from the stream so mid-line
	// productions never see them; standalone comments stay and parse as
	// Comment statements.
	filtered := make([]types.Token, 0, len(tokens))
	var comments []*ast.Comment
	for _, tok := range tokens {
		if tok.Type == types.COMMENT {
			comments = append(comments, &ast.Comment{Text: tok.Value, Inline: tok.Inline, Pos: tok.Span})
			if tok.Inline {
				continue
			}
		}
		filtered = append(filtered, tok)
	}

	return &parser{tokens: filtered, comments: comments}
}

func (p *parser) cur() types.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() types.Token {
	if p.pos+1 >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+1]
}

func (p *parser) at(t types.TokenType) bool { return p.cur().Type == t }

func (p *parser) advance() types.Token {
	tok := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	p.prev = tok
	return tok
}

// expect consumes a token of the given type or reports an error without
// consuming. The boolean is false on mismatch.
func (p *parser) expect(t types.TokenType, what string) (types.Token, bool) {
	if p.at(t) {
		return p.advance(), true
	}
	p.expectedError(what)
	return p.cur(), false
}

func (p *parser) spanFrom(start types.SourcePosition) types.SourceSpan {
	return types.SourceSpan{Start: start, End: p.prev.Span.End}
}

// endStatement consumes the statement terminator. DEDENT and EOF are valid
// terminators and are left for the enclosing body to consume.
func (p *parser) endStatement() {
	switch p.cur().Type {
	case types.NEWLINE:
		p.advance()
	case types.DEDENT, types.EOF:
	default:
		p.expectedError("end of line")
		p.sync()
	}
}

// parseProgram parses top-level statements until EOF.
func (p *parser) parseProgram() *ast.Program {
	program := &ast.Program{Comments: p.comments}
	start := p.cur().Span.Start

	prevPos := -1
	for !p.at(types.EOF) {
		invariant.Invariant(p.pos > prevPos, "parser must advance at top level")
		prevPos = p.pos

		switch p.cur().Type {
		case types.NEWLINE:
			p.advance()
		case types.INDENT:
			// Orphaned block, usually following an error on its header
			// line. Skip the whole region.
			p.errorAtCur("unexpected indentation")
			p.skipIndentedRegion()
		case types.DEDENT:
			p.advance()
		default:
			if stmt := p.parseStatement(); stmt != nil {
				program.Statements = append(program.Statements, stmt)
			}
		}
	}
	program.Pos = p.spanFrom(start)
	return program
}

func (p *parser) skipIndentedRegion() {
	depth := 0
	for {
		switch p.cur().Type {
		case types.INDENT:
			depth++
		case types.DEDENT:
			depth--
			if depth == 0 {
				p.advance()
				return
			}
		case types.EOF:
			return
		}
		p.advance()
	}
}

// parseStatement dispatches on the leading token. A nil return means the
// production failed and already synchronized.
func (p *parser) parseStatement() ast.Statement {
	switch p.cur().Type {
	case types.COMMENT:
		tok := p.advance()
		return &ast.Comment{Text: tok.Value, Inline: tok.Inline, Pos: tok.Span}
	case types.IMPORT:
		return p.parseImport()
	case types.AGENT:
		return p.parseAgentDefinition()
	case types.BLOCK:
		return p.parseBlockDefinition()
	case types.SESSION:
		return p.parseSessionStatement()
	case types.DO:
		return p.parseDoStatement()
	case types.PARALLEL:
		if p.peek().Type == types.FOR {
			return p.parseForEach(true)
		}
		return p.parseParallelStatement()
	case types.REPEAT:
		return p.parseRepeat()
	case types.FOR:
		return p.parseForEach(false)
	case types.LOOP:
		return p.parseLoopStatement()
	case types.TRY:
		return p.parseTryStatement()
	case types.THROW:
		return p.parseThrow()
	case types.CHOICE:
		return p.parseChoiceStatement()
	case types.IF:
		return p.parseIfStatement()
	case types.LET, types.CONST:
		return p.parseBinding()
	case types.IDENTIFIER:
		if p.peek().Type == types.EQUALS {
			return p.parseAssignment()
		}
		return p.parseExpressionStatement()
	case types.ILLEGAL:
		// The lexer already reported the character; just resynchronize.
		p.advance()
		p.sync()
		return nil
	case types.CATCH:
		p.errorAtCur("'catch' without a preceding 'try'")
		p.advance()
		p.sync()
		p.discardBody()
		return nil
	case types.FINALLY:
		p.errorAtCur("'finally' without a preceding 'try'")
		p.advance()
		p.sync()
		p.discardBody()
		return nil
	case types.ELIF:
		p.errorAtCur("'elif' without a preceding 'if'")
		p.advance()
		p.sync()
		p.discardBody()
		return nil
	case types.ELSE:
		p.errorAtCur("'else' without a preceding 'if'")
		p.advance()
		p.sync()
		p.discardBody()
		return nil
	default:
		p.errorAtCur("unexpected token %q at statement position", p.cur().Value)
		p.advance()
		p.sync()
		return nil
	}
}

// discardBody swallows the indented block of a failed header, if present.
func (p *parser) discardBody() {
	if p.at(types.INDENT) {
		p.skipIndentedRegion()
	}
}

// parseImport handles: import "skill" from "source"
func (p *parser) parseImport() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // import

	skillTok, ok := p.expect(types.STRING, "a quoted skill name after 'import'")
	if !ok {
		p.sync()
		return nil
	}
	if _, ok := p.expect(types.FROM, "'from' after the skill name"); !ok {
		p.sync()
		return nil
	}
	sourceTok, ok := p.expect(types.STRING, "a quoted source after 'from'")
	if !ok {
		p.sync()
		return nil
	}
	stmt := &ast.Import{
		Skill:  stringLiteral(skillTok),
		Source: stringLiteral(sourceTok),
		Pos:    p.spanFrom(start),
	}
	p.endStatement()
	return stmt
}

func stringLiteral(tok types.Token) *ast.StringLiteral {
	return &ast.StringLiteral{Value: tok.Value, Meta: tok.String, Pos: tok.Span}
}

func identifier(tok types.Token) *ast.Identifier {
	return &ast.Identifier{Name: tok.Value, Pos: tok.Span}
}

// parseAgentDefinition handles: agent name: NEWLINE INDENT properties DEDENT
func (p *parser) parseAgentDefinition() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // agent

	nameTok, ok := p.expect(types.IDENTIFIER, "an agent name after 'agent'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	if _, ok := p.expect(types.COLON, "':' after the agent name"); !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	p.endStatement()

	props := p.parsePropertyBlock()
	return &ast.AgentDefinition{
		Name:       identifier(nameTok),
		Properties: props,
		Pos:        p.spanFrom(start),
	}
}

// parsePropertyBlock parses an optional indented run of name: value lines.
func (p *parser) parsePropertyBlock() []*ast.Property {
	p.skipCommentsBefore(types.INDENT)
	if !p.at(types.INDENT) {
		return nil
	}
	p.advance()

	var props []*ast.Property
	prevPos := -1
	for !p.at(types.DEDENT) && !p.at(types.EOF) {
		invariant.Invariant(p.pos > prevPos, "property block must advance")
		prevPos = p.pos

		if p.at(types.NEWLINE) || p.at(types.COMMENT) {
			p.advance()
			continue
		}
		if prop := p.parseProperty(); prop != nil {
			props = append(props, prop)
		}
	}
	if p.at(types.DEDENT) {
		p.advance()
	}
	return props
}

// parseProperty parses one name: value line. Property names may be bare
// identifiers or keywords (model, prompt, context, ...).
func (p *parser) parseProperty() *ast.Property {
	tok := p.cur()
	if tok.Type != types.IDENTIFIER && !tok.Type.IsKeyword() {
		p.expectedError("a property name")
		p.sync()
		return nil
	}
	start := tok.Span.Start
	name := tok.Value
	p.advance()

	if _, ok := p.expect(types.COLON, "':' after the property name"); !ok {
		p.sync()
		return nil
	}

	// A value block on the following lines (permissions-style nested
	// object) or an inline value.
	if p.at(types.NEWLINE) {
		p.advance()
		value := p.parseNestedObject()
		if value == nil {
			return nil
		}
		return &ast.Property{Name: name, Value: value, Pos: p.spanFrom(start)}
	}

	value := p.parsePropertyValue()
	if value == nil {
		p.sync()
		return nil
	}
	prop := &ast.Property{Name: name, Value: value, Pos: p.spanFrom(start)}
	p.endStatement()
	return prop
}

// parseNestedObject parses an indented run of name: value lines as an
// object expression (the permissions block form).
func (p *parser) parseNestedObject() ast.Expression {
	p.skipCommentsBefore(types.INDENT)
	if !p.at(types.INDENT) {
		p.errorAtCur("expected an indented value block")
		return nil
	}
	start := p.cur().Span.Start
	p.advance()

	obj := &ast.ObjectExpression{}
	prevPos := -1
	for !p.at(types.DEDENT) && !p.at(types.EOF) {
		invariant.Invariant(p.pos > prevPos, "nested object must advance")
		prevPos = p.pos

		if p.at(types.NEWLINE) || p.at(types.COMMENT) {
			p.advance()
			continue
		}
		if prop := p.parseProperty(); prop != nil {
			obj.Properties = append(obj.Properties, &ast.ObjectProperty{
				Name:  prop.Name,
				Value: prop.Value,
				Pos:   prop.Pos,
			})
		}
	}
	if p.at(types.DEDENT) {
		p.advance()
	}
	obj.Pos = p.spanFrom(start)
	return obj
}

// parsePropertyValue parses the inline value of a property line.
func (p *parser) parsePropertyValue() ast.Expression {
	switch p.cur().Type {
	case types.STRING:
		return stringLiteral(p.advance())
	case types.NUMBER:
		return p.parseNumber()
	case types.IDENTIFIER:
		return identifier(p.advance())
	case types.LBRACKET:
		return p.parseArray()
	case types.LBRACE:
		return p.parseObject()
	default:
		p.expectedError("a property value")
		return nil
	}
}

func (p *parser) parseNumber() ast.Expression {
	tok := p.advance()
	value, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		p.errorf(tok.Span, "malformed number literal %q", tok.Value)
		value = 0
	}
	return &ast.NumberLiteral{
		Value: value,
		Raw:   tok.Value,
		IsInt: !strings.Contains(tok.Value, "."),
		Pos:   tok.Span,
	}
}

// parseArray handles: [ expr, expr, ... ]
func (p *parser) parseArray() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // [

	arr := &ast.ArrayExpression{}
	for !p.at(types.RBRACKET) && !p.at(types.EOF) && !p.at(types.NEWLINE) {
		elem := p.parsePropertyValue()
		if elem == nil {
			return nil
		}
		arr.Elements = append(arr.Elements, elem)
		if p.at(types.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, ok := p.expect(types.RBRACKET, "']' to close the array"); !ok {
		return nil
	}
	arr.Pos = p.spanFrom(start)
	return arr
}

// parseObject handles { a, b, c }, { name: value, ... }, and { }.
func (p *parser) parseObject() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // {

	obj := &ast.ObjectExpression{}
	for !p.at(types.RBRACE) && !p.at(types.EOF) && !p.at(types.NEWLINE) {
		tok := p.cur()
		if tok.Type != types.IDENTIFIER && !tok.Type.IsKeyword() {
			p.expectedError("a property name")
			return nil
		}
		propStart := tok.Span.Start
		p.advance()

		prop := &ast.ObjectProperty{Name: tok.Value}
		if p.at(types.COLON) {
			p.advance()
			value := p.parsePropertyValue()
			if value == nil {
				return nil
			}
			prop.Value = value
		}
		prop.Pos = p.spanFrom(propStart)
		obj.Properties = append(obj.Properties, prop)

		if p.at(types.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, ok := p.expect(types.RBRACE, "'}' to close the object"); !ok {
		return nil
	}
	obj.Pos = p.spanFrom(start)
	return obj
}

// parseBody parses ':' NEWLINE INDENT statements DEDENT. A missing INDENT
// yields an empty body, which the grammar permits.
func (p *parser) parseBody(context string) ([]ast.Statement, bool) {
	if _, ok := p.expect(types.COLON, "':' to open the "+context+" body"); !ok {
		p.sync()
		p.discardBody()
		return nil, false
	}
	p.endStatement()
	return p.parseIndentedStatements(), true
}

// skipCommentsBefore drops comment lines sitting between a construct and
// its continuation token (INDENT, catch, elif, ...). The comments stay on
// Program.Comments. Comments not followed by an anchor are left in place
// to parse as ordinary Comment statements.
func (p *parser) skipCommentsBefore(anchors ...types.TokenType) {
	i := p.pos
	for i < len(p.tokens) && p.tokens[i].Type == types.COMMENT {
		i++
	}
	if i == p.pos || i >= len(p.tokens) {
		return
	}
	for _, anchor := range anchors {
		if p.tokens[i].Type == anchor {
			for p.at(types.COMMENT) {
				p.advance()
			}
			return
		}
	}
}

// parseIndentedStatements parses an optional INDENT ... DEDENT region.
func (p *parser) parseIndentedStatements() []ast.Statement {
	p.skipCommentsBefore(types.INDENT)
	if !p.at(types.INDENT) {
		return nil
	}
	p.advance()

	var stmts []ast.Statement
	prevPos := -1
	for !p.at(types.DEDENT) && !p.at(types.EOF) {
		invariant.Invariant(p.pos > prevPos, "block body must advance")
		prevPos = p.pos

		if p.at(types.NEWLINE) {
			p.advance()
			continue
		}
		if p.at(types.INDENT) {
			p.errorAtCur("unexpected indentation")
			p.skipIndentedRegion()
			continue
		}
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	if p.at(types.DEDENT) {
		p.advance()
	}
	return stmts
}

// parseSessionHeader parses the session forms up to the end of the header:
// session "prompt" | session: agent | session name: agent
func (p *parser) parseSessionHeader() *ast.Session {
	start := p.cur().Span.Start
	p.advance() // session

	sess := &ast.Session{}
	switch p.cur().Type {
	case types.STRING:
		sess.Prompt = stringLiteral(p.advance())
	case types.COLON:
		p.advance()
		agentTok, ok := p.expect(types.IDENTIFIER, "an agent name after ':'")
		if !ok {
			return nil
		}
		sess.Agent = identifier(agentTok)
	case types.IDENTIFIER:
		sess.Name = identifier(p.advance())
		if _, ok := p.expect(types.COLON, "':' after the session name"); !ok {
			return nil
		}
		agentTok, ok := p.expect(types.IDENTIFIER, "an agent name after ':'")
		if !ok {
			return nil
		}
		sess.Agent = identifier(agentTok)
	default:
		p.expectedError("a prompt string or agent reference after 'session'")
		return nil
	}
	sess.Pos = p.spanFrom(start)
	return sess
}

// parseSessionStatement parses a session statement, its optional arrow
// chain, and its optional property block. An arrow immediately after a
// completed session attaches to it.
func (p *parser) parseSessionStatement() ast.Statement {
	sess := p.parseSessionHeader()
	if sess == nil {
		p.sync()
		p.discardBody()
		return nil
	}

	if p.at(types.ARROW) {
		expr := p.parseArrowChain(sess)
		if expr == nil {
			return nil
		}
		p.endStatement()
		return expr.(ast.Statement)
	}

	p.endStatement()
	if props := p.parsePropertyBlock(); props != nil {
		sess.Properties = props
		sess.Pos.End = p.prev.Span.End
	}
	return sess
}

// parseArrowChain parses left-associative -> steps. The left operand is
// already parsed; each right operand must be a session or do invocation.
func (p *parser) parseArrowChain(left ast.Expression) ast.Expression {
	for p.at(types.ARROW) {
		arrowTok := p.advance()
		right := p.parseArrowOperand(arrowTok)
		if right == nil {
			p.sync()
			return nil
		}
		left = &ast.ArrowExpression{
			Left:  left,
			Right: right,
			Pos:   types.SourceSpan{Start: left.Span().Start, End: right.Span().End},
		}
	}
	return left
}

func (p *parser) parseArrowOperand(arrowTok types.Token) ast.Expression {
	switch p.cur().Type {
	case types.SESSION:
		if sess := p.parseSessionHeader(); sess != nil {
			return sess
		}
		return nil
	case types.DO:
		return p.parseDoInvocation()
	case types.NEWLINE, types.EOF, types.DEDENT:
		p.errorf(arrowTok.Span, "'->' is missing its right-hand operand")
		return nil
	default:
		p.errorAtCur("an arrow operand must be a session or a do invocation")
		return nil
	}
}

// parseDoInvocation parses: do name [ ( args ) ]
func (p *parser) parseDoInvocation() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // do

	nameTok, ok := p.expect(types.IDENTIFIER, "a block name after 'do'")
	if !ok {
		return nil
	}
	d := &ast.DoBlock{Name: identifier(nameTok)}
	if p.at(types.LPAREN) {
		p.advance()
		for !p.at(types.RPAREN) && !p.at(types.EOF) && !p.at(types.NEWLINE) {
			arg := p.parsePropertyValue()
			if arg == nil {
				return nil
			}
			d.Args = append(d.Args, arg)
			if p.at(types.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, ok := p.expect(types.RPAREN, "')' to close the argument list"); !ok {
			return nil
		}
	}
	d.Pos = p.spanFrom(start)
	return d
}

// parseDoStatement parses either an anonymous do block or an invocation,
// with an optional arrow chain on the invocation form.
func (p *parser) parseDoStatement() ast.Statement {
	if p.peek().Type == types.COLON {
		return p.parseAnonymousDo()
	}

	expr := p.parseDoInvocation()
	if expr == nil {
		p.sync()
		p.discardBody()
		return nil
	}
	if p.at(types.ARROW) {
		chained := p.parseArrowChain(expr)
		if chained == nil {
			return nil
		}
		expr = chained
	}
	p.endStatement()
	return expr.(ast.Statement)
}

// parseAnonymousDo parses: do: NEWLINE INDENT statements DEDENT
func (p *parser) parseAnonymousDo() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // do

	body, ok := p.parseBody("do")
	if !ok {
		return nil
	}
	return &ast.DoBlock{Body: body, Pos: p.spanFrom(start)}
}

// parseParallelStatement parses: parallel [ ( modifiers ) ] : body
func (p *parser) parseParallelStatement() ast.Statement {
	stmt := p.parseParallelExpr()
	if stmt == nil {
		return nil
	}
	return stmt.(ast.Statement)
}

func (p *parser) parseParallelExpr() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // parallel

	par := &ast.ParallelBlock{}
	if p.at(types.LPAREN) {
		if !p.parseParallelModifiers(par) {
			p.sync()
			p.discardBody()
			return nil
		}
	}

	body, ok := p.parseBody("parallel")
	if !ok {
		return nil
	}
	par.Body = body
	par.Pos = p.spanFrom(start)
	return par
}

// parseParallelModifiers parses the suffix ( ... ): a positional quoted
// join strategy, count: N, and on-fail: "...", in any order. Duplicates of
// a modifier kind are errors.
func (p *parser) parseParallelModifiers(par *ast.ParallelBlock) bool {
	p.advance() // (

	for !p.at(types.RPAREN) && !p.at(types.EOF) && !p.at(types.NEWLINE) {
		switch {
		case p.at(types.STRING):
			tok := p.advance()
			if par.Strategy != "" {
				p.errorf(tok.Span, "duplicate join strategy in parallel modifiers")
			} else {
				par.Strategy = tok.Value
				par.StrategySpan = tok.Span
			}
		case p.at(types.IDENTIFIER) && p.cur().Value == "count":
			tok := p.advance()
			if _, ok := p.expect(types.COLON, "':' after 'count'"); !ok {
				return false
			}
			if !p.at(types.NUMBER) {
				p.expectedError("a number after 'count:'")
				return false
			}
			if par.Count != nil {
				p.errorf(tok.Span, "duplicate 'count' in parallel modifiers")
				p.parseNumber()
			} else {
				par.Count = p.parseNumber()
			}
		case p.at(types.IDENTIFIER) && p.cur().Value == "on-fail":
			tok := p.advance()
			if _, ok := p.expect(types.COLON, "':' after 'on-fail'"); !ok {
				return false
			}
			strTok, ok := p.expect(types.STRING, "a quoted value after 'on-fail:'")
			if !ok {
				return false
			}
			if par.OnFail != nil {
				p.errorf(tok.Span, "duplicate 'on-fail' in parallel modifiers")
			} else {
				par.OnFail = stringLiteral(strTok)
			}
		default:
			p.errorAtCur("unexpected parallel modifier %q", p.cur().Value)
			return false
		}

		if p.at(types.COMMA) {
			p.advance()
			continue
		}
		break
	}
	if _, ok := p.expect(types.RPAREN, "')' to close the parallel modifiers"); !ok {
		return false
	}
	return true
}

// parseRepeat parses: repeat N [as i]: body
func (p *parser) parseRepeat() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // repeat

	var count ast.Expression
	switch p.cur().Type {
	case types.NUMBER:
		count = p.parseNumber()
	case types.IDENTIFIER:
		count = identifier(p.advance())
	default:
		p.expectedError("a repeat count")
		p.sync()
		p.discardBody()
		return nil
	}

	rep := &ast.RepeatBlock{Count: count}
	if p.at(types.AS) {
		p.advance()
		tok, ok := p.expect(types.IDENTIFIER, "a counter name after 'as'")
		if !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		rep.As = identifier(tok)
	}

	body, ok := p.parseBody("repeat")
	if !ok {
		return nil
	}
	rep.Body = body
	rep.Pos = p.spanFrom(start)
	return rep
}

// parseForEach parses: [parallel] for item[, idx] in collection: body
func (p *parser) parseForEach(parallel bool) ast.Statement {
	start := p.cur().Span.Start
	if parallel {
		p.advance() // parallel
	}
	p.advance() // for

	itemTok, ok := p.expect(types.IDENTIFIER, "a loop variable after 'for'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	fe := &ast.ForEachBlock{Item: identifier(itemTok), Parallel: parallel}

	if p.at(types.COMMA) {
		p.advance()
		idxTok, ok := p.expect(types.IDENTIFIER, "an index variable after ','")
		if !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		fe.Index = identifier(idxTok)
	}

	if _, ok := p.expect(types.IN, "'in' before the collection"); !ok {
		p.sync()
		p.discardBody()
		return nil
	}

	switch p.cur().Type {
	case types.IDENTIFIER:
		fe.Collection = identifier(p.advance())
	case types.LBRACKET:
		coll := p.parseArray()
		if coll == nil {
			p.sync()
			p.discardBody()
			return nil
		}
		fe.Collection = coll
	default:
		p.expectedError("a collection after 'in'")
		p.sync()
		p.discardBody()
		return nil
	}

	body, ok := p.parseBody("for")
	if !ok {
		return nil
	}
	fe.Body = body
	fe.Pos = p.spanFrom(start)
	return fe
}

// parseLoopStatement parses: loop [until|while **...**] [(max: N)] [as i]: body
func (p *parser) parseLoopStatement() ast.Statement {
	stmt := p.parseLoopExpr()
	if stmt == nil {
		return nil
	}
	return stmt.(ast.Statement)
}

func (p *parser) parseLoopExpr() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // loop

	lb := &ast.LoopBlock{Kind: ast.LoopPlain}
	switch p.cur().Type {
	case types.UNTIL:
		lb.Kind = ast.LoopUntil
	case types.WHILE:
		lb.Kind = ast.LoopWhile
	}
	if lb.Kind != ast.LoopPlain {
		p.advance()
		condTok, ok := p.expect(types.DISCRETION, "a **condition** after '"+lb.Kind.String()+"'")
		if !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		lb.Condition = &ast.Discretion{Text: condTok.Value, Multiline: condTok.Multiline, Pos: condTok.Span}
	}

	// Modifier order is fixed: (max: N) before as.
	if p.at(types.LPAREN) {
		p.advance()
		maxTok := p.cur()
		if maxTok.Type != types.IDENTIFIER || maxTok.Value != "max" {
			p.expectedError("'max' in the loop modifier")
			p.sync()
			p.discardBody()
			return nil
		}
		p.advance()
		if _, ok := p.expect(types.COLON, "':' after 'max'"); !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		if !p.at(types.NUMBER) {
			p.expectedError("a number after 'max:'")
			p.sync()
			p.discardBody()
			return nil
		}
		lb.Max = p.parseNumber()
		if _, ok := p.expect(types.RPAREN, "')' to close the loop modifier"); !ok {
			p.sync()
			p.discardBody()
			return nil
		}
	}

	if p.at(types.AS) {
		p.advance()
		tok, ok := p.expect(types.IDENTIFIER, "a counter name after 'as'")
		if !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		lb.As = identifier(tok)
	}

	body, ok := p.parseBody("loop")
	if !ok {
		return nil
	}
	lb.Body = body
	lb.Pos = p.spanFrom(start)
	return lb
}

// parseTryStatement parses try: body with catch/finally arms. At least one
// of catch and finally must follow the try body.
func (p *parser) parseTryStatement() ast.Statement {
	stmt := p.parseTryExpr()
	if stmt == nil {
		return nil
	}
	return stmt.(ast.Statement)
}

func (p *parser) parseTryExpr() ast.Expression {
	start := p.cur().Span.Start
	tryTok := p.advance() // try

	body, ok := p.parseBody("try")
	if !ok {
		return nil
	}
	tb := &ast.TryBlock{Body: body}

	p.skipCommentsBefore(types.CATCH)
	if p.at(types.CATCH) {
		catchStart := p.cur().Span.Start
		p.advance()
		clause := &ast.CatchClause{}
		if p.at(types.AS) {
			p.advance()
			tok, ok := p.expect(types.IDENTIFIER, "an error name after 'as'")
			if !ok {
				p.sync()
				p.discardBody()
				return nil
			}
			clause.Err = identifier(tok)
		}
		catchBody, ok := p.parseBody("catch")
		if !ok {
			return nil
		}
		clause.Body = catchBody
		clause.Pos = p.spanFrom(catchStart)
		tb.Catch = clause
	}

	p.skipCommentsBefore(types.FINALLY)
	if p.at(types.FINALLY) {
		finallyStart := p.cur().Span.Start
		p.advance()
		finallyBody, ok := p.parseBody("finally")
		if !ok {
			return nil
		}
		tb.Finally = &ast.FinallyClause{Body: finallyBody, Pos: p.spanFrom(finallyStart)}
	}

	if tb.Catch == nil && tb.Finally == nil {
		p.errorf(tryTok.Span, "'try' requires at least one of 'catch' and 'finally'")
	}
	tb.Pos = p.spanFrom(start)
	return tb
}

// parseThrow parses: throw expr
func (p *parser) parseThrow() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // throw

	msg := p.parsePropertyValue()
	if msg == nil {
		p.sync()
		return nil
	}
	stmt := &ast.ThrowStatement{Message: msg, Pos: p.spanFrom(start)}
	p.endStatement()
	return stmt
}

// parseChoiceStatement parses: choice **...**: with option arms.
func (p *parser) parseChoiceStatement() ast.Statement {
	stmt := p.parseChoiceExpr()
	if stmt == nil {
		return nil
	}
	return stmt.(ast.Statement)
}

func (p *parser) parseChoiceExpr() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // choice

	condTok, ok := p.expect(types.DISCRETION, "a **condition** after 'choice'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	cb := &ast.ChoiceBlock{
		Condition: &ast.Discretion{Text: condTok.Value, Multiline: condTok.Multiline, Pos: condTok.Span},
	}

	if _, ok := p.expect(types.COLON, "':' to open the choice body"); !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	p.endStatement()

	p.skipCommentsBefore(types.INDENT)
	if p.at(types.INDENT) {
		p.advance()
		prevPos := -1
		for !p.at(types.DEDENT) && !p.at(types.EOF) {
			invariant.Invariant(p.pos > prevPos, "choice body must advance")
			prevPos = p.pos

			if p.at(types.NEWLINE) || p.at(types.COMMENT) {
				p.advance()
				continue
			}
			opt := p.parseChoiceOption()
			if opt == nil {
				continue
			}
			cb.Options = append(cb.Options, opt)
		}
		if p.at(types.DEDENT) {
			p.advance()
		}
	}
	cb.Pos = p.spanFrom(start)
	return cb
}

// parseChoiceOption parses: option "label": body
func (p *parser) parseChoiceOption() *ast.ChoiceOption {
	start := p.cur().Span.Start
	if _, ok := p.expect(types.OPTION, "an 'option' arm"); !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	labelTok, ok := p.expect(types.STRING, "a quoted label after 'option'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	body, ok := p.parseBody("option")
	if !ok {
		return nil
	}
	return &ast.ChoiceOption{
		Label: stringLiteral(labelTok),
		Body:  body,
		Pos:   p.spanFrom(start),
	}
}

// parseIfStatement parses if/elif/else with discretion conditions.
func (p *parser) parseIfStatement() ast.Statement {
	stmt := p.parseIfExpr()
	if stmt == nil {
		return nil
	}
	return stmt.(ast.Statement)
}

func (p *parser) parseIfExpr() ast.Expression {
	start := p.cur().Span.Start
	p.advance() // if

	condTok, ok := p.expect(types.DISCRETION, "a **condition** after 'if'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	stmt := &ast.IfStatement{
		Condition: &ast.Discretion{Text: condTok.Value, Multiline: condTok.Multiline, Pos: condTok.Span},
	}

	then, ok := p.parseBody("if")
	if !ok {
		return nil
	}
	stmt.Then = then

	p.skipCommentsBefore(types.ELIF, types.ELSE)
	for p.at(types.ELIF) {
		elifStart := p.cur().Span.Start
		p.advance()
		elifCond, ok := p.expect(types.DISCRETION, "a **condition** after 'elif'")
		if !ok {
			p.sync()
			p.discardBody()
			return nil
		}
		body, ok := p.parseBody("elif")
		if !ok {
			return nil
		}
		stmt.Elifs = append(stmt.Elifs, &ast.ElifClause{
			Condition: &ast.Discretion{Text: elifCond.Value, Multiline: elifCond.Multiline, Pos: elifCond.Span},
			Body:      body,
			Pos:       p.spanFrom(elifStart),
		})
		p.skipCommentsBefore(types.ELIF, types.ELSE)
	}

	if p.at(types.ELSE) {
		p.advance()
		body, ok := p.parseBody("else")
		if !ok {
			return nil
		}
		stmt.Else = body
		if stmt.Else == nil {
			stmt.Else = []ast.Statement{}
		}
	}
	stmt.Pos = p.spanFrom(start)
	return stmt
}

// parseBinding parses let/const name = expression.
func (p *parser) parseBinding() ast.Statement {
	start := p.cur().Span.Start
	kindTok := p.advance() // let or const

	nameTok, ok := p.expect(types.IDENTIFIER, "a variable name after '"+kindTok.Value+"'")
	if !ok {
		p.sync()
		return nil
	}
	if _, ok := p.expect(types.EQUALS, "'=' after the variable name"); !ok {
		p.sync()
		return nil
	}

	value := p.parseExpression()
	if value == nil {
		return nil
	}
	p.finishExpressionLine(value)

	if kindTok.Type == types.CONST {
		return &ast.ConstBinding{Name: identifier(nameTok), Value: value, Pos: p.spanFrom(start)}
	}
	return &ast.LetBinding{Name: identifier(nameTok), Value: value, Pos: p.spanFrom(start)}
}

// parseAssignment parses name = expression.
func (p *parser) parseAssignment() ast.Statement {
	start := p.cur().Span.Start
	nameTok := p.advance() // identifier
	p.advance()            // =

	value := p.parseExpression()
	if value == nil {
		return nil
	}
	p.finishExpressionLine(value)
	return &ast.Assignment{Name: identifier(nameTok), Value: value, Pos: p.spanFrom(start)}
}

// finishExpressionLine terminates a binding or assignment statement. Block
// expressions (do:, parallel:, try:, ...) consumed their own terminator; a
// trailing session may still take a property block.
func (p *parser) finishExpressionLine(value ast.Expression) {
	if isBlockExpression(value) {
		return
	}
	p.endStatement()
	if sess, isSession := value.(*ast.Session); isSession {
		if props := p.parsePropertyBlock(); props != nil {
			sess.Properties = props
			sess.Pos.End = p.prev.Span.End
		}
	}
}

// isBlockExpression reports whether the expression form owns its statement
// terminator (it ended with an indented body).
func isBlockExpression(e ast.Expression) bool {
	switch v := e.(type) {
	case *ast.DoBlock:
		return !v.IsInvocation()
	case *ast.ParallelBlock, *ast.TryBlock, *ast.LoopBlock, *ast.ChoiceBlock, *ast.IfStatement, *ast.PipeExpression:
		return true
	default:
		return false
	}
}

// parseExpression parses a right-hand-side expression.
func (p *parser) parseExpression() ast.Expression {
	switch p.cur().Type {
	case types.SESSION:
		sess := p.parseSessionHeader()
		if sess == nil {
			p.sync()
			return nil
		}
		if p.at(types.ARROW) {
			return p.parseArrowChain(sess)
		}
		return sess
	case types.DO:
		if p.peek().Type == types.COLON {
			start := p.cur().Span.Start
			p.advance()
			body, ok := p.parseBody("do")
			if !ok {
				return nil
			}
			return &ast.DoBlock{Body: body, Pos: p.spanFrom(start)}
		}
		d := p.parseDoInvocation()
		if d == nil {
			p.sync()
			return nil
		}
		if p.at(types.ARROW) {
			return p.parseArrowChain(d)
		}
		return d
	case types.PARALLEL:
		return p.parseParallelExpr()
	case types.TRY:
		return p.parseTryExpr()
	case types.LOOP:
		return p.parseLoopExpr()
	case types.CHOICE:
		return p.parseChoiceExpr()
	case types.IF:
		return p.parseIfExpr()
	case types.STRING:
		return stringLiteral(p.advance())
	case types.NUMBER:
		return p.parseNumber()
	case types.DISCRETION:
		tok := p.advance()
		return &ast.Discretion{Text: tok.Value, Multiline: tok.Multiline, Pos: tok.Span}
	case types.IDENTIFIER:
		ident := identifier(p.advance())
		if p.at(types.PIPE) {
			return p.parsePipeExpression(ident)
		}
		return ident
	case types.LBRACKET:
		arr := p.parseArray()
		if arr == nil {
			p.sync()
			return nil
		}
		if p.at(types.PIPE) {
			return p.parsePipeExpression(arr)
		}
		return arr
	case types.LBRACE:
		obj := p.parseObject()
		if obj == nil {
			p.sync()
			return nil
		}
		return obj
	default:
		p.expectedError("an expression")
		p.sync()
		p.discardBody()
		return nil
	}
}

// parseExpressionStatement handles statements that begin with an
// identifier: pipeline inputs and bare references.
func (p *parser) parseExpressionStatement() ast.Statement {
	ident := identifier(p.advance())
	if p.at(types.PIPE) {
		pipe := p.parsePipeExpression(ident)
		if pipe == nil {
			return nil
		}
		return pipe.(*ast.PipeExpression)
	}
	p.errorf(ident.Pos, "a bare identifier is not a statement")
	p.sync()
	return nil
}

// parsePipeExpression parses input | op: body with chained operations.
// Chained operations continue on lines beginning with '|' inside the
// previous operation's indent region, either at the first operation's body
// level or each nesting one level deeper; the AST holds them as a flat
// ordered sequence.
func (p *parser) parsePipeExpression(input ast.Expression) ast.Expression {
	pe := &ast.PipeExpression{Input: input}
	if !p.parsePipeOperation(pe) {
		return nil
	}
	pe.Pos = types.SourceSpan{Start: input.Span().Start, End: p.prev.Span.End}
	return pe
}

func (p *parser) parsePipeOperation(pe *ast.PipeExpression) bool {
	start := p.cur().Span.Start
	p.advance() // |

	op := &ast.PipeOperation{}
	switch p.cur().Type {
	case types.MAP:
		op.Operator = ast.PipeMap
	case types.FILTER:
		op.Operator = ast.PipeFilter
	case types.PMAP:
		op.Operator = ast.PipePmap
	case types.REDUCE:
		op.Operator = ast.PipeReduce
	default:
		p.expectedError("a pipeline operator (map, filter, reduce, pmap)")
		p.sync()
		p.discardBody()
		return false
	}
	p.advance()

	if op.Operator == ast.PipeReduce {
		if _, ok := p.expect(types.LPAREN, "'(' after 'reduce'"); !ok {
			p.sync()
			p.discardBody()
			return false
		}
		accTok, ok := p.expect(types.IDENTIFIER, "an accumulator name")
		if !ok {
			p.sync()
			p.discardBody()
			return false
		}
		if _, ok := p.expect(types.COMMA, "',' between reduce parameters"); !ok {
			p.sync()
			p.discardBody()
			return false
		}
		itemTok, ok := p.expect(types.IDENTIFIER, "an item name")
		if !ok {
			p.sync()
			p.discardBody()
			return false
		}
		if _, ok := p.expect(types.RPAREN, "')' to close the reduce parameters"); !ok {
			p.sync()
			p.discardBody()
			return false
		}
		op.Params = []*ast.Identifier{identifier(accTok), identifier(itemTok)}
	} else if p.at(types.LPAREN) {
		p.errorAtCur("%s takes no parameters", op.Operator)
		p.sync()
		p.discardBody()
		return false
	}

	if _, ok := p.expect(types.COLON, "':' to open the operation body"); !ok {
		p.sync()
		p.discardBody()
		return false
	}
	p.endStatement()
	pe.Operations = append(pe.Operations, op)
	op.Pos = p.spanFrom(start)

	p.skipCommentsBefore(types.INDENT)
	if !p.at(types.INDENT) {
		return true
	}
	p.advance()

	prevPos := -1
	for !p.at(types.DEDENT) && !p.at(types.EOF) {
		invariant.Invariant(p.pos > prevPos, "pipe operation body must advance")
		prevPos = p.pos

		if p.at(types.NEWLINE) {
			p.advance()
			continue
		}
		// A '|' header at body level continues the chain. In the
		// canonical layout every continuation sits at the first
		// operation's body level, so this loop sees it again after the
		// previous operation's deeper body has dedented back out.
		if p.at(types.PIPE) {
			if !p.parsePipeOperation(pe) {
				return false
			}
			continue
		}
		if stmt := p.parseStatement(); stmt != nil {
			op.Body = append(op.Body, stmt)
			op.Pos.End = p.prev.Span.End
		}
	}
	if p.at(types.DEDENT) {
		p.advance()
	}
	return true
}

// parseBlockDefinition parses: block name(p1, p2): body
func (p *parser) parseBlockDefinition() ast.Statement {
	start := p.cur().Span.Start
	p.advance() // block

	nameTok, ok := p.expect(types.IDENTIFIER, "a block name after 'block'")
	if !ok {
		p.sync()
		p.discardBody()
		return nil
	}
	def := &ast.BlockDefinition{Name: identifier(nameTok)}

	if p.at(types.LPAREN) {
		p.advance()
		for !p.at(types.RPAREN) && !p.at(types.EOF) && !p.at(types.NEWLINE) {
			paramTok, ok := p.expect(types.IDENTIFIER, "a parameter name")
			if !ok {
				p.sync()
				p.discardBody()
				return nil
			}
			def.Params = append(def.Params, identifier(paramTok))
			if p.at(types.COMMA) {
				p.advance()
				continue
			}
			break
		}
		if _, ok := p.expect(types.RPAREN, "')' to close the parameter list"); !ok {
			p.sync()
			p.discardBody()
			return nil
		}
	}

	body, ok := p.parseBody("block")
	if !ok {
		return nil
	}
	def.Body = body
	def.Pos = p.spanFrom(start)
	return def
}
