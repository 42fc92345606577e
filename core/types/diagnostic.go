package types

import (
	"fmt"
	"sort"
)

// Severity classifies a diagnostic
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Diagnostic is a single message produced by any frontend phase. Diagnostics
// are values; phases accumulate them on per-invocation slices and no phase
// panics across its package boundary.
type Diagnostic struct {
	Severity Severity
	Message  string
	Span     SourceSpan
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%d:%d: %s: %s", d.Span.Start.Line, d.Span.Start.Column, d.Severity, d.Message)
}

// Errorf builds an error diagnostic at span.
func Errorf(span SourceSpan, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Span: span}
}

// Warnf builds a warning diagnostic at span.
func Warnf(span SourceSpan, format string, args ...any) Diagnostic {
	return Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Span: span}
}

// SortDiagnostics orders diagnostics by source position, errors before
// warnings at the same position. The sort is stable so two runs over the
// same input produce identical lists.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Span.Start.Offset != b.Span.Start.Offset {
			return a.Span.Start.Offset < b.Span.Start.Offset
		}
		return a.Severity < b.Severity
	})
}
