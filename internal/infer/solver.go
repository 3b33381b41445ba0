package infer

import (
	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/types"
)

// maxEffectIterations bounds the fixpoint accumulation pass over
// effect-subset constraints; a constraint set that doesn't converge within
// this many rounds is reported as a chain-too-deep error rather than
// looping forever.
const maxEffectIterations = 64

// Solver resolves a constraint set in two phases: type equalities are fed
// straight to the Unifier, then effect-subset constraints are resolved by
// accumulating the minimum concrete effects each open tail variable must
// carry, to a fixpoint.
type Solver struct {
	unifier *Unifier
}

// NewSolver creates a Solver with a fresh Unifier.
func NewSolver() *Solver {
	return &Solver{unifier: NewUnifier()}
}

// NewSolverWith creates a Solver over an existing Unifier, so bindings
// accumulated while solving one item's constraints stay visible when later
// items are solved.
func NewSolverWith(u *Unifier) *Solver {
	return &Solver{unifier: u}
}

// Solve processes constraints in order, returning the accumulated
// substitution or the first error encountered (wrapped with its span).
func (s *Solver) Solve(constraints []Constraint) (*types.Subst, error) {
	var effectSubsets []*EffectSubsetConstraint

	for _, c := range constraints {
		switch cc := c.(type) {
		case *EqualConstraint:
			if err := s.unifier.Unify(cc.A, cc.B); err != nil {
				return nil, &SolveError{Err: err.(*TypeError), SpanV: cc.Span}
			}
		case *EffectSubsetConstraint:
			effectSubsets = append(effectSubsets, cc)
		}
	}

	// Step 1: bind open-open tails so the structural relationship survives
	// generalization (needed for effect propagation through higher-order calls).
	for _, c := range effectSubsets {
		sub := s.unifier.Subst.ApplyRow(c.Sub)
		sup := s.unifier.Subst.ApplyRow(c.Sup)
		if sub.Tail != nil && sup.Tail != nil && *sub.Tail != *sup.Tail {
			extra := sub.Concrete &^ sup.Concrete
			target := types.OpenRow(extra, *sub.Tail)
			if s.unifier.effectVarOccursIn(*sup.Tail, target) {
				return nil, &SolveError{Err: &TypeError{Kind: ErrEffectCycle, EffectVar: *sup.Tail}, SpanV: c.Span}
			}
			s.unifier.Subst.BindEffect(*sup.Tail, target)
		}
	}

	// Step 2: fixpoint-accumulate minimum required concrete effects per
	// canonical tail variable.
	required := map[types.EffectVarID]uint64{}
	converged := false
	var firstSpan ast.Span
	if len(effectSubsets) > 0 {
		firstSpan = effectSubsets[0].Span
	}

	for iter := 0; iter < maxEffectIterations; iter++ {
		changed := false
		for _, c := range effectSubsets {
			sub := s.unifier.Subst.ApplyRow(c.Sub)
			sup := s.unifier.Subst.ApplyRow(c.Sup)
			subTail := s.canonicalTail(sub.Tail)
			supTail := s.canonicalTail(sup.Tail)

			subConcrete := sub.Concrete
			if subTail != nil {
				subConcrete |= required[*subTail]
			}
			supConcrete := sup.Concrete
			if supTail != nil {
				supConcrete |= required[*supTail]
			}

			needed := subConcrete &^ supConcrete
			if needed != 0 && supTail != nil {
				old := required[*supTail]
				required[*supTail] |= needed
				if required[*supTail] != old {
					changed = true
				}
			}
		}
		if !changed {
			converged = true
			break
		}
	}

	if !converged {
		return nil, &SolveError{Err: &TypeError{Kind: ErrEffectChainTooDeep, ChainDepth: maxEffectIterations}, SpanV: firstSpan}
	}

	for _, c := range effectSubsets {
		sub := s.unifier.Subst.ApplyRow(c.Sub)
		sup := s.unifier.Subst.ApplyRow(c.Sup)
		subTail := s.canonicalTail(sub.Tail)
		supTail := s.canonicalTail(sup.Tail)

		subConcrete := sub.Concrete
		if subTail != nil {
			subConcrete |= required[*subTail]
		}
		supConcrete := sup.Concrete
		if supTail != nil {
			supConcrete |= required[*supTail]
		}

		if subConcrete&^supConcrete != 0 {
			return nil, &SolveError{
				Err:  &TypeError{Kind: ErrEffectMismatch, EffExpected: types.ClosedRowMask(supConcrete), EffFound: types.ClosedRowMask(subConcrete)},
				SpanV: c.Span,
			}
		}
	}

	for v, mask := range required {
		if _, ok := s.unifier.Subst.ApplyRowTail(v); !ok {
			s.unifier.Subst.BindEffect(v, types.ClosedRowMask(mask))
		}
	}

	return s.unifier.Subst, nil
}

// canonicalTail chases a tail variable through the substitution to the end
// of its alias chain, so accumulated requirements are keyed consistently.
func (s *Solver) canonicalTail(v *types.EffectVarID) *types.EffectVarID {
	if v == nil {
		return nil
	}
	current := *v
	visited := map[types.EffectVarID]bool{}
	for {
		if visited[current] {
			return &current
		}
		visited[current] = true
		next, bound := s.unifier.Subst.ApplyRowTail(current)
		if !bound {
			return &current
		}
		if next == nil {
			return nil
		}
		current = *next
	}
}
