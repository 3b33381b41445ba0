// Package infer implements constraint-based type and effect inference:
// constraint generation over the AST, Hindley-Milner-style unification
// extended with Rémy-style effect-row unification, and a two-phase solver
// that resolves effect-subset constraints to a fixpoint (§4.3 of the spec).
package infer

import (
	"fmt"

	"github.com/strata-lang/strata/internal/types"
)

// TypeErrorKind classifies a unification failure.
type TypeErrorKind int

const (
	ErrMismatch TypeErrorKind = iota
	ErrOccurs
	ErrArity
	ErrEffectMismatch
	ErrEffectCycle
	ErrEffectChainTooDeep
)

// TypeError is the unifier's error value; it is span-free on its own, since
// the solver attaches the originating constraint's span (see SolveError).
type TypeError struct {
	Kind         TypeErrorKind
	A, B         types.Ty
	ArityLeft    int
	ArityRight   int
	EffExpected  types.EffectRow
	EffFound     types.EffectRow
	OccursVar    types.TyVarID
	EffectVar    types.EffectVarID
	ChainDepth   int
}

func (e *TypeError) Error() string {
	switch e.Kind {
	case ErrMismatch:
		return fmt.Sprintf("type mismatch: %s vs %s", e.A.String(), e.B.String())
	case ErrOccurs:
		return fmt.Sprintf("occurs check failed: t%d occurs in %s", e.OccursVar, e.A.String())
	case ErrArity:
		return fmt.Sprintf("arity mismatch: %d vs %d", e.ArityLeft, e.ArityRight)
	case ErrEffectMismatch:
		return fmt.Sprintf("effect mismatch: expected %s, found %s", e.EffExpected.String(), e.EffFound.String())
	case ErrEffectCycle:
		return fmt.Sprintf("cyclic effect variable e%d in substitution chain", e.EffectVar)
	case ErrEffectChainTooDeep:
		return fmt.Sprintf("effect substitution chain too deep (%d steps); possible cycle", e.ChainDepth)
	default:
		return "type error"
	}
}

// KindString names the error per the diagnostic taxonomy.
func (e *TypeError) KindString() string {
	switch e.Kind {
	case ErrMismatch:
		return "Mismatch"
	case ErrOccurs:
		return "Occurs"
	case ErrArity:
		return "Arity"
	case ErrEffectMismatch:
		return "EffectMismatch"
	case ErrEffectCycle:
		return "EffectCycle"
	case ErrEffectChainTooDeep:
		return "EffectChainTooDeep"
	default:
		return "TypeError"
	}
}

// Unifier performs structural unification, accumulating bindings into a
// Subst. Unlike a pure occurs-check unifier, Never unifies only with
// itself: divergence is handled by inference, not unification, to avoid
// the soundness hole of treating Never as unifiable with anything.
type Unifier struct {
	Subst *types.Subst
}

// NewUnifier creates a Unifier with an empty substitution.
func NewUnifier() *Unifier {
	return &Unifier{Subst: types.NewSubst()}
}

// Unify unifies a and b, recording bindings in u.Subst.
func (u *Unifier) Unify(a, b types.Ty) error {
	a = u.Subst.ApplyTy(a)
	b = u.Subst.ApplyTy(b)

	if av, ok := a.(*types.TyVar); ok {
		return u.unifyVar(av.ID, b)
	}
	if bv, ok := b.(*types.TyVar); ok {
		return u.unifyVar(bv.ID, a)
	}

	switch at := a.(type) {
	case *types.TyNever:
		if _, ok := b.(*types.TyNever); ok {
			return nil
		}
		return &TypeError{Kind: ErrMismatch, A: a, B: b}
	case *types.TyCap:
		if bt, ok := b.(*types.TyCap); ok && bt.Kind == at.Kind {
			return nil
		}
		return &TypeError{Kind: ErrMismatch, A: a, B: b}
	case *types.TyConst:
		if bt, ok := b.(*types.TyConst); ok && bt.Name == at.Name {
			return nil
		}
		return &TypeError{Kind: ErrMismatch, A: a, B: b}
	case *types.TyArrow:
		bt, ok := b.(*types.TyArrow)
		if !ok {
			return &TypeError{Kind: ErrMismatch, A: a, B: b}
		}
		if len(at.Params) != len(bt.Params) {
			return &TypeError{Kind: ErrArity, ArityLeft: len(at.Params), ArityRight: len(bt.Params)}
		}
		for i := range at.Params {
			if err := u.Unify(at.Params[i], bt.Params[i]); err != nil {
				return err
			}
		}
		if err := u.Unify(at.Ret, bt.Ret); err != nil {
			return err
		}
		return u.unifyEffectRows(at.Effects, bt.Effects)
	case *types.TyTuple:
		bt, ok := b.(*types.TyTuple)
		if !ok {
			return &TypeError{Kind: ErrMismatch, A: a, B: b}
		}
		if len(at.Elems) != len(bt.Elems) {
			return &TypeError{Kind: ErrArity, ArityLeft: len(at.Elems), ArityRight: len(bt.Elems)}
		}
		for i := range at.Elems {
			if err := u.Unify(at.Elems[i], bt.Elems[i]); err != nil {
				return err
			}
		}
		return nil
	case *types.TyList:
		bt, ok := b.(*types.TyList)
		if !ok {
			return &TypeError{Kind: ErrMismatch, A: a, B: b}
		}
		return u.Unify(at.Elem, bt.Elem)
	case *types.TyAdt:
		bt, ok := b.(*types.TyAdt)
		if !ok || bt.Name != at.Name {
			return &TypeError{Kind: ErrMismatch, A: a, B: b}
		}
		if len(at.Args) != len(bt.Args) {
			return &TypeError{Kind: ErrArity, ArityLeft: len(at.Args), ArityRight: len(bt.Args)}
		}
		for i := range at.Args {
			if err := u.Unify(at.Args[i], bt.Args[i]); err != nil {
				return err
			}
		}
		return nil
	case *types.TyRef:
		bt, ok := b.(*types.TyRef)
		if !ok {
			return &TypeError{Kind: ErrMismatch, A: a, B: b}
		}
		return u.Unify(at.Inner, bt.Inner)
	default:
		return &TypeError{Kind: ErrMismatch, A: a, B: b}
	}
}

func (u *Unifier) unifyVar(v types.TyVarID, t types.Ty) error {
	if tv, ok := t.(*types.TyVar); ok && tv.ID == v {
		return nil
	}
	if u.occursIn(v, t) {
		return &TypeError{Kind: ErrOccurs, OccursVar: v, A: t}
	}
	u.Subst.BindType(v, t)
	return nil
}

func (u *Unifier) occursIn(v types.TyVarID, ty types.Ty) bool {
	ty = u.Subst.ApplyTy(ty)
	switch t := ty.(type) {
	case *types.TyVar:
		return t.ID == v
	case *types.TyArrow:
		for _, p := range t.Params {
			if u.occursIn(v, p) {
				return true
			}
		}
		return u.occursIn(v, t.Ret)
	case *types.TyTuple:
		for _, e := range t.Elems {
			if u.occursIn(v, e) {
				return true
			}
		}
		return false
	case *types.TyList:
		return u.occursIn(v, t.Elem)
	case *types.TyAdt:
		for _, a := range t.Args {
			if u.occursIn(v, a) {
				return true
			}
		}
		return false
	case *types.TyRef:
		return u.occursIn(v, t.Inner)
	default:
		return false
	}
}

// unifyEffectRows implements Rémy-style row unification: closed rows
// compare by exact bitmask, a closed/open pair binds the open tail to the
// residual, and two open rows bind one tail in terms of the other plus
// any extra concrete bits, with an occurs check to reject cycles.
func (u *Unifier) unifyEffectRows(a, b types.EffectRow) error {
	a = u.Subst.ApplyRow(a)
	b = u.Subst.ApplyRow(b)

	switch {
	case a.Tail == nil && b.Tail == nil:
		if a.Concrete == b.Concrete {
			return nil
		}
		return &TypeError{Kind: ErrEffectMismatch, EffExpected: a, EffFound: b}
	case a.Tail == nil && b.Tail != nil:
		if b.Concrete&^a.Concrete != 0 {
			return &TypeError{Kind: ErrEffectMismatch, EffExpected: a, EffFound: b}
		}
		residual := a.Concrete &^ b.Concrete
		u.Subst.BindEffect(*b.Tail, types.ClosedRowMask(residual))
		return nil
	case a.Tail != nil && b.Tail == nil:
		if a.Concrete&^b.Concrete != 0 {
			return &TypeError{Kind: ErrEffectMismatch, EffExpected: a, EffFound: b}
		}
		residual := b.Concrete &^ a.Concrete
		u.Subst.BindEffect(*a.Tail, types.ClosedRowMask(residual))
		return nil
	default:
		varA, varB := *a.Tail, *b.Tail
		if varA == varB {
			if a.Concrete != b.Concrete {
				return &TypeError{Kind: ErrEffectMismatch, EffExpected: a, EffFound: b}
			}
			return nil
		}
		extraForA := b.Concrete &^ a.Concrete
		target := types.OpenRow(extraForA, varB)
		if u.effectVarOccursIn(varA, target) {
			return &TypeError{Kind: ErrEffectCycle, EffectVar: varA}
		}
		u.Subst.BindEffect(varA, target)
		return nil
	}
}

func (u *Unifier) effectVarOccursIn(v types.EffectVarID, row types.EffectRow) bool {
	row = u.Subst.ApplyRow(row)
	return row.Tail != nil && *row.Tail == v
}
