// Package sandbox evaluates JessieExpression snippets against an
// explicit scope, without giving the expression host I/O or arbitrary
// statement execution. It is the restricted evaluator the design notes
// require in place of the source's unrestricted host-access evaluator:
// github.com/expr-lang/expr compiles and runs a pure expression
// language over a supplied map[string]any scope, which is exactly the
// shape the interpreter's variable stack already takes.
package sandbox

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Sandbox evaluates restricted expression snippets against a scope.
// This is the Go encoding of the injected *Sandbox* collaborator named
// in the external-interfaces surface (`evalScript(src, stdlib, scope)`).
type Sandbox interface {
	Eval(src string, scope map[string]any) (any, error)
}

// exprSandbox is the default Sandbox, backed by expr-lang/expr. Compiled
// programs are cached by source text since map documents re-evaluate the
// same JessieExpression on every loop iteration.
type exprSandbox struct {
	cache map[string]*vm.Program
}

// New constructs the default expr-lang/expr backed Sandbox.
func New() Sandbox {
	return &exprSandbox{cache: map[string]*vm.Program{}}
}

func (s *exprSandbox) Eval(src string, scope map[string]any) (any, error) {
	program, ok := s.cache[src]
	if !ok {
		compiled, err := expr.Compile(src, expr.Env(scope), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("compiling expression %q: %w", src, err)
		}
		program = compiled
		s.cache[src] = program
	}
	out, err := expr.Run(program, scope)
	if err != nil {
		return nil, fmt.Errorf("evaluating expression %q: %w", src, err)
	}
	return out, nil
}

// CoerceBool applies the ConditionAtom coercion rule: nil, false, the
// empty string, and a zero float64 or int are falsy; everything else,
// including empty mappings/arrays and zeros of other numeric types
// (int64, float32, ...), is truthy.
func CoerceBool(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
