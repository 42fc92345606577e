// Package invariant provides contract assertions for the OpenProse frontend.
//
// Assertions express internal consistency checks in the lexer and parser:
// the indent stack never underflows and the token cursor always advances.
// All functions panic on violation - these are programming
// errors in the frontend, never reachable from user input (good or bad input
// alike produces diagnostics, not panics).
package invariant

import (
	"fmt"
	"runtime"
)

// Precondition checks an input contract at function entry.
// Panics with PRECONDITION VIOLATION if condition is false.
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Invariant checks an internal invariant during execution, typically loop
// progress or state consistency.
//
// Example:
//
//	prev := p.pos
//	for !p.at(types.EOF) {
//	    p.statement()
//	    invariant.Invariant(p.pos > prev, "parser must advance")
//	    prev = p.pos
//	}
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// Unreachable marks code paths the dispatch tables should make impossible,
// such as the default arm of an exhaustive token-type switch.
func Unreachable(format string, args ...interface{}) {
	fail("UNREACHABLE", format, args...)
}

// fail panics with a labeled violation message including the caller site.
func fail(label, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if _, file, line, ok := runtime.Caller(2); ok {
		panic(fmt.Sprintf("%s VIOLATION at %s:%d: %s", label, file, line, msg))
	}
	panic(fmt.Sprintf("%s VIOLATION: %s", label, msg))
}
