package validation

import (
	"sort"

	"github.com/irl-dan/openprose/core/types"
)

// scopeKind drives the binding placement rules. Transparent kinds let
// bindings escape to the enclosing scope; anonymous-do scopes escape
// conditionally; the rest hold their bindings.
type scopeKind int

const (
	scopeGlobal scopeKind = iota
	scopeAnonDo           // anonymous do block
	scopeLoop             // repeat, for, loop, pipeline operation bodies
	scopeFunction         // block definition body
	scopeTry
	scopeCatch
	scopeFinally
	scopeIfArm // if / elif / else arm
	scopeChoiceOption
)

// transparent scopes pass let/const definitions through to the enclosing
// scope, Python-style. The catch error variable is pinned to its scope
// directly and is unaffected.
func (k scopeKind) transparent() bool {
	switch k {
	case scopeTry, scopeCatch, scopeFinally, scopeIfArm:
		return true
	default:
		return false
	}
}

// binding is one resolved name with its declaration site.
type binding struct {
	isConst  bool
	declSpan types.SourceSpan
}

type scope struct {
	kind   scopeKind
	vars   map[string]*binding
	parent *scope
}

// scopeStack is the chain of lexical scopes during traversal.
type scopeStack struct {
	current *scope
}

func newScopeStack() *scopeStack {
	return &scopeStack{current: &scope{kind: scopeGlobal, vars: map[string]*binding{}}}
}

func (s *scopeStack) push(kind scopeKind) {
	s.current = &scope{kind: kind, vars: map[string]*binding{}, parent: s.current}
}

func (s *scopeStack) pop() {
	if s.current.parent != nil {
		s.current = s.current.parent
	}
}

// lookup walks from innermost to outermost.
func (s *scopeStack) lookup(name string) *binding {
	for sc := s.current; sc != nil; sc = sc.parent {
		if b, ok := sc.vars[name]; ok {
			return b
		}
	}
	return nil
}

// visibleNames collects every name bound somewhere on the scope chain,
// sorted so failed-lookup suggestions stay deterministic.
func (s *scopeStack) visibleNames() []string {
	var names []string
	seen := map[string]bool{}
	for sc := s.current; sc != nil; sc = sc.parent {
		for name := range sc.vars {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// lookupOutside reports whether name is bound in any scope strictly
// enclosing the given scope.
func lookupOutside(sc *scope, name string) *binding {
	for outer := sc.parent; outer != nil; outer = outer.parent {
		if b, ok := outer.vars[name]; ok {
			return b
		}
	}
	return nil
}

// defineOutcome tells the validator what happened so it can diagnose.
type defineOutcome struct {
	duplicate *binding // same-scope duplicate, definition rejected
	shadowed  *binding // outer binding shadowed, definition succeeded
}

// defineInCurrent places a binding directly in the innermost scope. Used
// for loop variables, block parameters, and the catch error variable.
func (s *scopeStack) defineInCurrent(name string, isConst bool, span types.SourceSpan) defineOutcome {
	return defineIn(s.current, name, isConst, span)
}

// defineInEscapeTarget places a let/const binding per the escape rules:
// transparent scopes (try/catch/finally/if arms) pass through; an
// anonymous-do scope passes through unless the name would shadow an outer
// binding, in which case it stays local to the do block.
func (s *scopeStack) defineInEscapeTarget(name string, isConst bool, span types.SourceSpan) defineOutcome {
	target := s.current
	for {
		switch {
		case target.kind.transparent():
			target = target.parent
		case target.kind == scopeAnonDo:
			if lookupOutside(target, name) != nil {
				return defineIn(target, name, isConst, span)
			}
			target = target.parent
		default:
			return defineIn(target, name, isConst, span)
		}
	}
}

func defineIn(sc *scope, name string, isConst bool, span types.SourceSpan) defineOutcome {
	if existing, ok := sc.vars[name]; ok {
		return defineOutcome{duplicate: existing}
	}
	outcome := defineOutcome{shadowed: lookupOutside(sc, name)}
	sc.vars[name] = &binding{isConst: isConst, declSpan: span}
	return outcome
}
