package invariant

import (
	"strings"
	"testing"
)

func expectPanic(t *testing.T, label string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		msg, ok := r.(string)
		if !ok || !strings.Contains(msg, label) {
			t.Errorf("panic %v does not contain %q", r, label)
		}
	}()
	fn()
}

func TestPreconditionPasses(t *testing.T) {
	Precondition(true, "never fires")
}

func TestPreconditionPanics(t *testing.T) {
	expectPanic(t, "PRECONDITION VIOLATION", func() {
		Precondition(false, "stack must not be empty, size %d", 0)
	})
}

func TestInvariantPanics(t *testing.T) {
	expectPanic(t, "INVARIANT VIOLATION", func() {
		Invariant(1 > 2, "position must advance")
	})
}

func TestUnreachablePanics(t *testing.T) {
	expectPanic(t, "UNREACHABLE VIOLATION", func() {
		Unreachable("token type %d has no dispatch arm", 42)
	})
}

func TestViolationIncludesCallSite(t *testing.T) {
	expectPanic(t, "invariant_test.go", func() {
		Invariant(false, "boom")
	})
}
