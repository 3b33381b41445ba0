package eval

import "github.com/strata-lang/strata/internal/ast"

// binding is one variable slot with its mutability.
type binding struct {
	value   Value
	mutable bool
}

// Env is a stack of lexical scopes. Closures capture it by snapshot; a
// post-definition patch step rebinds function names so mutual recursion
// works (see patchClosureEnv).
type Env struct {
	scopes []map[string]binding
}

// NewEnv creates an environment with a single global scope.
func NewEnv() *Env {
	return &Env{scopes: []map[string]binding{{}}}
}

// clone snapshots the environment: fresh scope maps, shared values.
func (e *Env) clone() *Env {
	scopes := make([]map[string]binding, len(e.scopes))
	for i, s := range e.scopes {
		m := make(map[string]binding, len(s))
		for k, v := range s {
			m[k] = v
		}
		scopes[i] = m
	}
	return &Env{scopes: scopes}
}

func (e *Env) pushScope() {
	e.scopes = append(e.scopes, map[string]binding{})
}

// popScope removes the innermost scope. Popping the global scope is an
// internal error.
func (e *Env) popScope() error {
	if len(e.scopes) <= 1 {
		return runtimeErr("TypeMismatchAtRuntime", "internal error: attempted to pop global scope", ast.Span{})
	}
	e.scopes = e.scopes[:len(e.scopes)-1]
	return nil
}

// withScope runs f inside a fresh scope that is popped on every exit path,
// including error returns.
func (e *Env) withScope(f func() (ControlFlow, error)) (ControlFlow, error) {
	e.pushScope()
	cf, err := f()
	e.scopes = e.scopes[:len(e.scopes)-1]
	return cf, err
}

// define introduces a binding in the innermost scope.
func (e *Env) define(name string, v Value, mutable bool) {
	e.scopes[len(e.scopes)-1][name] = binding{value: v, mutable: mutable}
}

// get resolves a name from innermost to outermost scope.
func (e *Env) get(name string) (Value, bool) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][name]; ok {
			return b.value, true
		}
	}
	return nil, false
}

// set assigns to an existing binding, respecting mutability.
func (e *Env) set(name string, v Value, span ast.Span) error {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][name]; ok {
			if !b.mutable {
				return runtimeErr("AssignImmutable", "cannot assign to immutable variable %q", span, name)
			}
			e.scopes[i][name] = binding{value: v, mutable: true}
			return nil
		}
	}
	return runtimeErr("UndefinedVariable", "undefined variable %q", span, name)
}

// forceSet rebinds a name regardless of mutability; used only by the
// two-phase closure fill sequence.
func (e *Env) forceSet(name string, v Value) {
	for i := len(e.scopes) - 1; i >= 0; i-- {
		if b, ok := e.scopes[i][name]; ok {
			e.scopes[i][name] = binding{value: v, mutable: b.mutable}
			return
		}
	}
}
