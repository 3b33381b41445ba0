package types

import "fmt"

// maxChaseDepth bounds substitution-chasing recursion so a solver bug that
// produces a cyclic binding fails loudly instead of hanging.
const maxChaseDepth = 10_000

// ChaseDepthError reports a substitution chain that exceeded the chase bound,
// which only happens if a cyclic binding slipped past the occurs checks.
type ChaseDepthError struct {
	Depth int
}

func (e *ChaseDepthError) Error() string {
	return fmt.Sprintf("substitution chain exceeded %d steps; cyclic binding", e.Depth)
}

// InstantiationArityMismatchError reports an Instantiate call whose fresh
// variable lists don't line up with the scheme's quantifiers.
type InstantiationArityMismatchError struct {
	WantTypes, GotTypes     int
	WantEffects, GotEffects int
}

func (e *InstantiationArityMismatchError) Error() string {
	return fmt.Sprintf("instantiation arity mismatch: scheme binds %d type vars and %d effect vars, got %d and %d",
		e.WantTypes, e.WantEffects, e.GotTypes, e.GotEffects)
}

// Subst is the unifier's accumulated binding store: a union-find-like map
// from type variables to Ty, and from effect variables to EffectRow.
type Subst struct {
	types   map[TyVarID]Ty
	effects map[EffectVarID]EffectRow
}

// NewSubst creates an empty substitution.
func NewSubst() *Subst {
	return &Subst{types: map[TyVarID]Ty{}, effects: map[EffectVarID]EffectRow{}}
}

// BindType records that v resolves to ty.
func (s *Subst) BindType(v TyVarID, ty Ty) { s.types[v] = ty }

// BindEffect records that v resolves to row.
func (s *Subst) BindEffect(v EffectVarID, row EffectRow) { s.effects[v] = row }

// ApplyTy chases substitutions through ty to a normal form, recursing into
// compound types. Depth-bounded to catch cyclic bindings rather than
// recursing forever; on overflow the type is returned as-is (the unifier's
// occurs checks make this unreachable in practice).
func (s *Subst) ApplyTy(ty Ty) Ty {
	return s.applyTyDepth(ty, 0)
}

func (s *Subst) applyTyDepth(ty Ty, depth int) Ty {
	if depth > maxChaseDepth {
		return ty
	}
	switch t := ty.(type) {
	case *TyVar:
		if bound, ok := s.types[t.ID]; ok {
			return s.applyTyDepth(bound, depth+1)
		}
		return t
	case *TyArrow:
		params := make([]Ty, len(t.Params))
		for i, p := range t.Params {
			params[i] = s.applyTyDepth(p, depth+1)
		}
		return &TyArrow{Params: params, Ret: s.applyTyDepth(t.Ret, depth+1), Effects: s.ApplyRow(t.Effects)}
	case *TyTuple:
		elems := make([]Ty, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = s.applyTyDepth(e, depth+1)
		}
		return &TyTuple{Elems: elems}
	case *TyList:
		return &TyList{Elem: s.applyTyDepth(t.Elem, depth+1)}
	case *TyAdt:
		args := make([]Ty, len(t.Args))
		for i, a := range t.Args {
			args[i] = s.applyTyDepth(a, depth+1)
		}
		return &TyAdt{Name: t.Name, Args: args}
	case *TyRef:
		return &TyRef{Inner: s.applyTyDepth(t.Inner, depth+1)}
	default:
		return ty // TyConst, TyCap, TyNever are leaves
	}
}

// ApplyRow chases an effect row's tail variable to its resolved form,
// merging concrete bits along the chain.
func (s *Subst) ApplyRow(row EffectRow) EffectRow {
	return s.applyRowDepth(row, 0)
}

func (s *Subst) applyRowDepth(row EffectRow, depth int) EffectRow {
	if row.Tail == nil || depth > maxChaseDepth {
		return row
	}
	bound, ok := s.effects[*row.Tail]
	if !ok {
		return row
	}
	resolved := s.applyRowDepth(bound, depth+1)
	return EffectRow{Concrete: row.Concrete | resolved.Concrete, Tail: resolved.Tail}
}

// ApplyRowTail reports whether v has a direct binding in the substitution,
// and if so, the tail variable of the row it's bound to (nil if that row is
// closed). Used by the solver to chase alias chains one hop at a time.
func (s *Subst) ApplyRowTail(v EffectVarID) (*EffectVarID, bool) {
	bound, ok := s.effects[v]
	if !ok {
		return nil, false
	}
	return bound.Tail, true
}

// Generalize closes over every free type/effect variable in ty that does
// not already appear in the ambient environment, producing a polymorphic
// Scheme.
func Generalize(ty Ty, monoTypeVars map[TyVarID]bool, monoEffectVars map[EffectVarID]bool) *Scheme {
	tvs := map[TyVarID]bool{}
	evs := map[EffectVarID]bool{}
	CollectFreeTy(ty, tvs, evs)

	sch := &Scheme{Ty: ty}
	for v := range tvs {
		if !monoTypeVars[v] {
			sch.TypeVars = append(sch.TypeVars, v)
		}
	}
	for v := range evs {
		if !monoEffectVars[v] {
			sch.EffectVars = append(sch.EffectVars, v)
		}
	}
	sortTyVars(sch.TypeVars)
	sortEffectVars(sch.EffectVars)
	return sch
}

func sortTyVars(vs []TyVarID) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j] < vs[j-1]; j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}

func sortEffectVars(vs []EffectVarID) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j] < vs[j-1]; j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}

// CollectFreeTy accumulates the free type and effect variables of ty.
func CollectFreeTy(ty Ty, tvs map[TyVarID]bool, evs map[EffectVarID]bool) {
	switch t := ty.(type) {
	case *TyVar:
		tvs[t.ID] = true
	case *TyArrow:
		for _, p := range t.Params {
			CollectFreeTy(p, tvs, evs)
		}
		CollectFreeTy(t.Ret, tvs, evs)
		CollectFreeRow(t.Effects, evs)
	case *TyTuple:
		for _, e := range t.Elems {
			CollectFreeTy(e, tvs, evs)
		}
	case *TyList:
		CollectFreeTy(t.Elem, tvs, evs)
	case *TyAdt:
		for _, a := range t.Args {
			CollectFreeTy(a, tvs, evs)
		}
	case *TyRef:
		CollectFreeTy(t.Inner, tvs, evs)
	}
}

// CollectFreeRow accumulates a row's tail variable, if open.
func CollectFreeRow(row EffectRow, evs map[EffectVarID]bool) {
	if row.Tail != nil {
		evs[*row.Tail] = true
	}
}

// FreeVarsScheme returns the free (non-quantified) type and effect variables
// of a scheme, for computing the ambient environment's monomorphic set.
func FreeVarsScheme(sch *Scheme) (map[TyVarID]bool, map[EffectVarID]bool) {
	tvs := map[TyVarID]bool{}
	evs := map[EffectVarID]bool{}
	CollectFreeTy(sch.Ty, tvs, evs)
	for _, v := range sch.TypeVars {
		delete(tvs, v)
	}
	for _, v := range sch.EffectVars {
		delete(evs, v)
	}
	return tvs, evs
}

// Instantiate replaces each of scheme's bound variables with the supplied
// fresh replacements, producing a monomorphic Ty. The fresh lists must match
// the scheme's quantifier arities exactly; a mismatch is an error, never a
// panic.
func Instantiate(scheme *Scheme, freshTypes []Ty, freshEffects []EffectVarID) (Ty, error) {
	if len(scheme.TypeVars) == 0 && len(scheme.EffectVars) == 0 {
		return scheme.Ty, nil
	}
	if len(freshTypes) != len(scheme.TypeVars) || len(freshEffects) != len(scheme.EffectVars) {
		return nil, &InstantiationArityMismatchError{
			WantTypes:   len(scheme.TypeVars),
			GotTypes:    len(freshTypes),
			WantEffects: len(scheme.EffectVars),
			GotEffects:  len(freshEffects),
		}
	}
	tySub := map[TyVarID]Ty{}
	for i, v := range scheme.TypeVars {
		tySub[v] = freshTypes[i]
	}
	effSub := map[EffectVarID]EffectVarID{}
	for i, v := range scheme.EffectVars {
		effSub[v] = freshEffects[i]
	}
	return SubstituteVars(scheme.Ty, tySub, effSub), nil
}

// SubstituteVars rewrites ty, replacing mapped type variables with their
// replacement types and mapped effect tail variables with fresh tails. Used
// by instantiation and by the ADT field-type instantiation at construction
// and pattern-match sites.
func SubstituteVars(ty Ty, tySub map[TyVarID]Ty, effSub map[EffectVarID]EffectVarID) Ty {
	switch t := ty.(type) {
	case *TyVar:
		if rep, ok := tySub[t.ID]; ok {
			return rep
		}
		return t
	case *TyArrow:
		params := make([]Ty, len(t.Params))
		for i, p := range t.Params {
			params[i] = SubstituteVars(p, tySub, effSub)
		}
		return &TyArrow{Params: params, Ret: SubstituteVars(t.Ret, tySub, effSub), Effects: substRow(t.Effects, effSub)}
	case *TyTuple:
		elems := make([]Ty, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = SubstituteVars(e, tySub, effSub)
		}
		return &TyTuple{Elems: elems}
	case *TyList:
		return &TyList{Elem: SubstituteVars(t.Elem, tySub, effSub)}
	case *TyAdt:
		args := make([]Ty, len(t.Args))
		for i, a := range t.Args {
			args[i] = SubstituteVars(a, tySub, effSub)
		}
		return &TyAdt{Name: t.Name, Args: args}
	case *TyRef:
		return &TyRef{Inner: SubstituteVars(t.Inner, tySub, effSub)}
	default:
		return ty
	}
}

func substRow(row EffectRow, effSub map[EffectVarID]EffectVarID) EffectRow {
	if row.Tail == nil {
		return row
	}
	if nv, ok := effSub[*row.Tail]; ok {
		return EffectRow{Concrete: row.Concrete, Tail: &nv}
	}
	return row
}
