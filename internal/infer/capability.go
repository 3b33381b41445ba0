package infer

import (
	"fmt"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/types"
)

// MissingCapabilityError reports a function whose effect row requires an
// effect it holds no capability parameter for (Rule C).
type MissingCapabilityError struct {
	Effect   types.CapKind
	Function string
	SpanV    ast.Span
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("function %q declares effect %s but has no %s parameter",
		e.Function, e.Effect, e.Effect.CapTypeName())
}
func (e *MissingCapabilityError) Kind() string   { return "MissingCapability" }
func (e *MissingCapabilityError) Span() ast.Span { return e.SpanV }

// CapabilityInAdtError reports a struct/enum declaration that transitively
// contains a capability type (Rule A).
type CapabilityInAdtError struct {
	Adt      string
	FirstCap string
	SpanV    ast.Span
}

func (e *CapabilityInAdtError) Error() string {
	return fmt.Sprintf("type %q cannot contain capability %s; capabilities may not be stored in data", e.Adt, e.FirstCap)
}
func (e *CapabilityInAdtError) Kind() string   { return "CapabilityInAdt" }
func (e *CapabilityInAdtError) Span() ast.Span { return e.SpanV }

// InstantiationError wraps a scheme instantiation arity failure with the use
// site's span.
type InstantiationError struct {
	Err   error
	SpanV ast.Span
}

func (e *InstantiationError) Error() string  { return e.Err.Error() }
func (e *InstantiationError) Kind() string   { return "InstantiationArityMismatch" }
func (e *InstantiationError) Span() ast.Span { return e.SpanV }

// NamedError is a diagnostic with an explicitly chosen taxonomy kind, for
// failures that need no dedicated type.
type NamedError struct {
	KindName string
	Msg      string
	SpanV    ast.Span
}

func (e *NamedError) Error() string  { return e.Msg }
func (e *NamedError) Kind() string   { return e.KindName }
func (e *NamedError) Span() ast.Span { return e.SpanV }

// toDiag adapts any checker error to diag.Diagnostic; the checker's own
// errors already implement it.
func toDiag(err error) diag.Diagnostic {
	if d, ok := err.(diag.Diagnostic); ok {
		return d
	}
	return &NamedError{KindName: "NotImplemented", Msg: err.Error()}
}

// checkCapabilityRule enforces Rule C on a solved arrow: every concrete
// effect bit in the row must be backed by at least one parameter of the
// matching capability type, owned or borrowed. There is no opt-out.
func checkCapabilityRule(fnName string, arrow *types.TyArrow, subst *types.Subst, span ast.Span) error {
	row := subst.ApplyRow(arrow.Effects)
	for _, kind := range row.Kinds() {
		if !hasCapabilityParam(arrow.Params, kind, subst) {
			return &MissingCapabilityError{Effect: kind, Function: fnName, SpanV: span}
		}
	}
	return nil
}

func hasCapabilityParam(params []types.Ty, kind types.CapKind, subst *types.Subst) bool {
	for _, p := range params {
		switch t := subst.ApplyTy(p).(type) {
		case *types.TyCap:
			if t.Kind == kind {
				return true
			}
		case *types.TyRef:
			if inner, ok := t.Inner.(*types.TyCap); ok && inner.Kind == kind {
				return true
			}
		}
	}
	return false
}
