package infer

import (
	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/types"
)

// Constraint is one obligation collected during constraint generation: a
// type equality, or an effect-subset relationship between two rows.
type Constraint interface {
	constraintNode()
}

// EqualConstraint demands that A and B unify to the same type.
type EqualConstraint struct {
	A, B types.Ty
	Span ast.Span
}

func (*EqualConstraint) constraintNode() {}

// EffectSubsetConstraint demands Sub's effects be contained within Sup's,
// e.g. a call site's required effects must be a subset of the enclosing
// function's declared effect row.
type EffectSubsetConstraint struct {
	Sub, Sup types.EffectRow
	Span     ast.Span
}

func (*EffectSubsetConstraint) constraintNode() {}

// SolveError pairs a TypeError with the span of the constraint that
// produced it, and implements diag.Diagnostic.
type SolveError struct {
	Err   *TypeError
	SpanV ast.Span
}

func (e *SolveError) Error() string  { return e.Err.Error() }
func (e *SolveError) Kind() string   { return e.Err.KindString() }
func (e *SolveError) Span() ast.Span { return e.SpanV }
