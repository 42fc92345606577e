package validation

import (
	"strings"

	"github.com/irl-dan/openprose/core/ast"
	"github.com/irl-dan/openprose/core/types"
)

// Recognized property names per construct. Unknown names warn; they may be
// newer-revision properties the runtime understands.
var (
	agentProperties = map[string]bool{
		"model":       true,
		"prompt":      true,
		"skills":      true,
		"permissions": true,
	}
	sessionProperties = map[string]bool{
		"model":       true,
		"prompt":      true,
		"context":     true,
		"retry":       true,
		"backoff":     true,
		"skills":      true,
		"permissions": true,
	}
)

var validModels = map[string]bool{
	"sonnet": true,
	"opus":   true,
	"haiku":  true,
}

var validBackoffs = map[string]bool{
	"none":        true,
	"linear":      true,
	"exponential": true,
}

var permissionKeys = map[string]bool{
	"read":    true,
	"write":   true,
	"bash":    true,
	"network": true,
}

var permissionModes = map[string]bool{
	"allow": true,
	"deny":  true,
	"ask":   true,
}

// checkProperties validates a property block against the recognized set,
// detecting duplicates and dispatching per-name value checks.
func (v *validator) checkProperties(props []*ast.Property, recognized map[string]bool, ownerSpan types.SourceSpan) {
	seen := map[string]bool{}
	for _, prop := range props {
		if seen[prop.Name] {
			v.errorf(prop.Pos, "duplicate property %q", prop.Name)
			continue
		}
		seen[prop.Name] = true

		if !recognized[prop.Name] {
			v.warnf(prop.Pos, "unknown property %q", prop.Name)
			v.checkExpression(prop.Value)
			continue
		}
		v.checkPropertyValue(prop)
	}
}

func (v *validator) checkPropertyValue(prop *ast.Property) {
	switch prop.Name {
	case "model":
		v.checkModel(prop)
	case "prompt":
		if lit, ok := prop.Value.(*ast.StringLiteral); ok {
			v.checkPromptString(lit)
		} else {
			v.errorf(prop.Pos, "'prompt' must be a string")
		}
	case "context":
		v.checkContext(prop.Value)
	case "retry":
		v.checkRetry(prop)
	case "backoff":
		v.checkBackoff(prop)
	case "skills":
		v.checkSkills(prop)
	case "permissions":
		v.checkPermissions(prop)
	}
}

func (v *validator) checkModel(prop *ast.Property) {
	ident, ok := prop.Value.(*ast.Identifier)
	if !ok {
		v.errorf(prop.Pos, "'model' must be an identifier")
		return
	}
	if !validModels[ident.Name] {
		v.errorf(ident.Pos, "unknown model %q, expected sonnet, opus, or haiku", ident.Name)
	}
}

// checkContext resolves every referenced variable: context accepts a bare
// identifier, an array of identifiers, or the {a, b, c} shorthand object.
func (v *validator) checkContext(value ast.Expression) {
	switch ctx := value.(type) {
	case *ast.Identifier:
		v.resolveVariable(ctx, "context")
	case *ast.ArrayExpression:
		for _, elem := range ctx.Elements {
			if ident, ok := elem.(*ast.Identifier); ok {
				v.resolveVariable(ident, "context")
			} else {
				v.errorf(elem.Span(), "context array entries must be variable names")
			}
		}
	case *ast.ObjectExpression:
		if len(ctx.Properties) == 0 {
			// Ambiguous in the source language; surfaced, not assumed.
			v.warnf(ctx.Pos, "empty context object")
			return
		}
		for _, p := range ctx.Properties {
			if p.IsShorthand() {
				v.resolveVariable(&ast.Identifier{Name: p.Name, Pos: p.Pos}, "context")
			} else {
				v.checkExpression(p.Value)
			}
		}
	default:
		v.errorf(value.Span(), "'context' must be a variable, an array, or an object")
	}
}

func (v *validator) checkRetry(prop *ast.Property) {
	n, ok := intLiteral(prop.Value)
	if !ok {
		v.errorf(prop.Pos, "'retry' must be a positive integer")
		return
	}
	if n < 1 {
		v.errorf(prop.Value.Span(), "'retry' must be a positive integer")
		return
	}
	if n > maxRetry {
		v.warnf(prop.Value.Span(), "'retry' above %d is excessive", maxRetry)
	}
}

func (v *validator) checkBackoff(prop *ast.Property) {
	switch val := prop.Value.(type) {
	case *ast.StringLiteral:
		if !validBackoffs[val.Value] {
			v.errorf(val.Pos, "unknown backoff %q, expected \"none\", \"linear\", \"exponential\", or a duration in milliseconds", val.Value)
		}
	case *ast.NumberLiteral:
		if val.Value < 0 {
			v.errorf(val.Pos, "backoff milliseconds must not be negative")
		}
	default:
		v.errorf(prop.Pos, "'backoff' must be a string or a number")
	}
}

func (v *validator) checkSkills(prop *ast.Property) {
	arr, ok := prop.Value.(*ast.ArrayExpression)
	if !ok {
		v.errorf(prop.Pos, "'skills' must be an array of strings")
		return
	}
	if len(arr.Elements) == 0 {
		v.warnf(arr.Pos, "empty skills array")
		return
	}
	for _, elem := range arr.Elements {
		lit, isString := elem.(*ast.StringLiteral)
		if !isString {
			v.errorf(elem.Span(), "'skills' entries must be strings")
			continue
		}
		if _, imported := v.skills[lit.Value]; !imported {
			v.warnf(lit.Pos, "skill %q is not imported", lit.Value)
		}
	}
}

// checkPermissions validates the nested permission object: known keys with
// a mode identifier or a pattern array per key.
func (v *validator) checkPermissions(prop *ast.Property) {
	obj, ok := prop.Value.(*ast.ObjectExpression)
	if !ok {
		v.errorf(prop.Pos, "'permissions' must be an object")
		return
	}
	for _, entry := range obj.Properties {
		if !permissionKeys[entry.Name] {
			v.warnf(entry.Pos, "unknown permission %q", entry.Name)
		}
		switch val := entry.Value.(type) {
		case nil:
			v.errorf(entry.Pos, "permission %q has no value", entry.Name)
		case *ast.Identifier:
			if !permissionModes[val.Name] {
				v.warnf(val.Pos, "unknown permission mode %q, expected allow, deny, or ask", val.Name)
			}
		case *ast.ArrayExpression:
			for _, elem := range val.Elements {
				if lit, isString := elem.(*ast.StringLiteral); !isString {
					v.errorf(elem.Span(), "permission patterns must be strings")
				} else if strings.TrimSpace(lit.Value) == "" {
					v.warnf(lit.Pos, "empty permission pattern")
				}
			}
		default:
			v.errorf(entry.Pos, "permission %q must be a mode or a pattern array", entry.Name)
		}
	}
}
