package infer

import (
	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/exhaust"
	"github.com/strata-lang/strata/internal/movecheck"
	"github.com/strata-lang/strata/internal/types"
)

// Env maps names in scope to their (possibly polymorphic) scheme.
type Env map[string]*types.Scheme

func (e Env) child() Env {
	c := make(Env, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// Result is everything downstream consumers (the evaluator, the CLI's
// diagnostics) need: the resolved type of every expression node, the
// module's ADT registry, and each function's scheme and effect row.
type Result struct {
	Registry   *types.Registry
	ExprTypes  map[ast.Expr]types.Ty
	PatternTys map[ast.Pat]types.Ty
	FnSchemes  map[string]*types.Scheme
	FnEffects  map[string]types.EffectRow
	Subst      *types.Subst
}

// matchSite defers exhaustiveness analysis of one match expression until the
// enclosing item's constraints are solved and the scrutinee type is ground.
type matchSite struct {
	expr    *ast.MatchExpr
	scrutTy types.Ty
}

// numericSite defers the "operand must be Int or Float" check for arithmetic
// and negation until after solving; an operand still unresolved by then
// defaults to Int.
type numericSite struct {
	ty   types.Ty
	span ast.Span
}

// Checker runs the two-pass module check: register every Struct/Enum
// (rejecting capability-carrying declarations), predeclare every Fn and
// ExternFn signature, then check each item in source order. Each item's
// constraints are solved immediately against a persistent unifier so that a
// function's inferred signature is ground (and re-generalized) before later
// items use it.
type Checker struct {
	registry     *types.Registry
	tyCounter    types.TyVarID
	effCounter   types.EffectVarID
	global       Env
	unifier      *Unifier
	constraints  []Constraint
	numerics     []numericSite
	matches      []matchSite
	exprTypes    map[ast.Expr]types.Ty
	patternTypes map[ast.Pat]types.Ty
	fnSchemes    map[string]*types.Scheme
	fnEffects    map[string]types.EffectRow
}

// NewChecker creates a Checker with a builtin-seeded registry and an empty
// global environment.
func NewChecker() *Checker {
	return &Checker{
		registry:     types.NewRegistry(),
		global:       Env{},
		unifier:      NewUnifier(),
		exprTypes:    map[ast.Expr]types.Ty{},
		patternTypes: map[ast.Pat]types.Ty{},
		fnSchemes:    map[string]*types.Scheme{},
		fnEffects:    map[string]types.EffectRow{},
	}
}

func (c *Checker) freshTy() types.TyVarID {
	// Builtin tuple signatures use low variable IDs for their own params;
	// starting above them keeps checker variables disjoint.
	if c.tyCounter < 16 {
		c.tyCounter = 16
	}
	id := c.tyCounter
	c.tyCounter++
	return id
}

func (c *Checker) freshEffect() types.EffectVarID {
	id := c.effCounter
	c.effCounter++
	return id
}

func (c *Checker) addConstraint(con Constraint) { c.constraints = append(c.constraints, con) }

func (c *Checker) addNumeric(ty types.Ty, span ast.Span) {
	c.numerics = append(c.numerics, numericSite{ty: ty, span: span})
}

// instantiate draws fresh variables for each of scheme's quantifiers and
// substitutes them in.
func (c *Checker) instantiate(scheme *types.Scheme, span ast.Span) (types.Ty, error) {
	freshT := make([]types.Ty, len(scheme.TypeVars))
	for i := range freshT {
		freshT[i] = &types.TyVar{ID: c.freshTy()}
	}
	freshE := make([]types.EffectVarID, len(scheme.EffectVars))
	for i := range freshE {
		freshE[i] = c.freshEffect()
	}
	ty, err := types.Instantiate(scheme, freshT, freshE)
	if err != nil {
		return nil, &InstantiationError{Err: err, SpanV: span}
	}
	return ty, nil
}

// Check runs the full module check. It returns the inference Result and a
// list of diagnostics; an empty list means the module is accepted. Type and
// solve errors, and a capability-carrying struct/enum (Rule A), abort at the
// first failure; capability-parameter (Rule C), move, and pattern violations
// are collected so the whole module's worth is reported.
func (c *Checker) Check(mod *ast.Module) (*Result, []diag.Diagnostic) {
	var diags []diag.Diagnostic

	// Pass 0: register ADTs first, since signatures may reference them.
	// Rule A rejects capability-carrying declarations outright.
	for _, item := range mod.Items {
		switch it := item.(type) {
		case *ast.Struct:
			if err := c.registerStruct(it); err != nil {
				return nil, []diag.Diagnostic{toDiag(err)}
			}
		case *ast.Enum:
			if err := c.registerEnum(it); err != nil {
				return nil, []diag.Diagnostic{toDiag(err)}
			}
		}
	}

	// Pass 1: predeclare every Fn/ExternFn signature.
	for _, item := range mod.Items {
		switch it := item.(type) {
		case *ast.Fn:
			if err := c.predeclareFn(it.Name, it.TypeParams, it.Params, it.RetType, it.Effects, false); err != nil {
				return nil, []diag.Diagnostic{toDiag(err)}
			}
		case *ast.ExternFn:
			if err := c.predeclareFn(it.Name, it.TypeParams, it.Params, it.RetType, it.Effects, true); err != nil {
				return nil, []diag.Diagnostic{toDiag(err)}
			}
		}
	}

	// Pass 2: check bodies and top-level lets in source order.
	for _, item := range mod.Items {
		switch it := item.(type) {
		case *ast.Fn:
			if err := c.checkFn(it, &diags); err != nil {
				return nil, append(diags, toDiag(err))
			}
		case *ast.ExternFn:
			arrow, _ := c.fnSchemes[it.Name].Ty.(*types.TyArrow)
			if arrow != nil {
				if err := checkCapabilityRule(it.Name, arrow, c.unifier.Subst, it.Span); err != nil {
					diags = append(diags, toDiag(err))
				}
			}
		case *ast.Let:
			if err := c.checkTopLet(it, &diags); err != nil {
				return nil, append(diags, toDiag(err))
			}
		}
	}

	subst := c.unifier.Subst
	for e, ty := range c.exprTypes {
		c.exprTypes[e] = subst.ApplyTy(ty)
	}
	for p, ty := range c.patternTypes {
		c.patternTypes[p] = subst.ApplyTy(ty)
	}

	if len(diags) > 0 {
		return nil, diags
	}
	return &Result{
		Registry:   c.registry,
		ExprTypes:  c.exprTypes,
		PatternTys: c.patternTypes,
		FnSchemes:  c.fnSchemes,
		FnEffects:  c.fnEffects,
		Subst:      subst,
	}, nil
}

// solveItem drains the current item's constraints into the shared unifier
// and then resolves the deferred numeric obligations, defaulting any operand
// the solution left open to Int.
func (c *Checker) solveItem() error {
	cons := c.constraints
	c.constraints = nil
	if _, err := NewSolverWith(c.unifier).Solve(cons); err != nil {
		return err
	}
	numerics := c.numerics
	c.numerics = nil
	for _, n := range numerics {
		resolved := c.unifier.Subst.ApplyTy(n.ty)
		switch t := resolved.(type) {
		case *types.TyVar:
			c.unifier.Subst.BindType(t.ID, types.TyInt)
		case *types.TyNever:
		case *types.TyConst:
			if t.Name != "Int" && t.Name != "Float" {
				return &SolveError{Err: &TypeError{Kind: ErrMismatch, A: resolved, B: types.TyInt}, SpanV: n.span}
			}
		default:
			return &SolveError{Err: &TypeError{Kind: ErrMismatch, A: resolved, B: types.TyInt}, SpanV: n.span}
		}
	}
	return nil
}

// flushMatches runs exhaustiveness and redundancy analysis on the match
// expressions collected while checking the current item, now that their
// scrutinee types are solved.
func (c *Checker) flushMatches(diags *[]diag.Diagnostic) {
	sites := c.matches
	c.matches = nil
	for _, m := range sites {
		scrut := c.unifier.Subst.ApplyTy(m.scrutTy)
		witness, redundant, err := exhaust.CheckMatch(m.expr.Arms, scrut, c.registry, m.expr.Span)
		if err != nil {
			*diags = append(*diags, toDiag(err))
			continue
		}
		if witness != "" {
			*diags = append(*diags, &exhaust.NonExhaustiveError{Witness: witness, SpanV: m.expr.Span})
		}
		for _, idx := range redundant {
			*diags = append(*diags, &exhaust.RedundantArmError{Index: idx, SpanV: m.expr.Arms[idx].Span})
		}
	}
}

func (c *Checker) checkFn(fn *ast.Fn, diags *[]diag.Diagnostic) error {
	scheme := c.fnSchemes[fn.Name]
	arrow := scheme.Ty.(*types.TyArrow)

	local := c.global.child()
	for i, p := range fn.Params {
		local[p.Name] = types.Mono(arrow.Params[i])
	}

	bodyTy, err := c.inferBlock(local, fn.Body, arrow.Effects, arrow.Ret)
	if err != nil {
		return err
	}
	if !isNever(bodyTy) {
		c.addConstraint(&EqualConstraint{A: bodyTy, B: arrow.Ret, Span: fn.Body.Span})
	}
	if err := c.solveItem(); err != nil {
		return err
	}

	resolved, ok := c.unifier.Subst.ApplyTy(arrow).(*types.TyArrow)
	if !ok {
		resolved = arrow
	}

	if err := checkCapabilityRule(fn.Name, resolved, c.unifier.Subst, fn.Span); err != nil {
		*diags = append(*diags, toDiag(err))
	}

	c.flushMatches(diags)

	params := make([]movecheck.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = movecheck.Param{Name: p.Name, Type: resolved.Params[i], Span: p.Span}
	}
	if err := movecheck.CheckFunctionBody(params, fn.Body, c.fnSchemes); err != nil {
		*diags = append(*diags, toDiag(err))
	}

	// Re-generalize the now-ground signature so later items see the
	// polymorphic scheme with solved parts fixed.
	newScheme := c.generalizeAgainstEnv(resolved, fn.Name)
	c.global[fn.Name] = newScheme
	c.fnSchemes[fn.Name] = newScheme
	c.fnEffects[fn.Name] = resolved.Effects
	return nil
}

func (c *Checker) checkTopLet(it *ast.Let, diags *[]diag.Diagnostic) error {
	ty, err := c.inferExpr(c.global, it.Value, types.EmptyRow(), types.TyUnit)
	if err != nil {
		return err
	}
	if it.Type != nil {
		declTy, err := c.resolveType(it.Type, nil)
		if err != nil {
			return err
		}
		c.addConstraint(&EqualConstraint{A: ty, B: declTy, Span: it.Span})
	}
	if err := c.solveItem(); err != nil {
		return err
	}
	c.flushMatches(diags)

	final := c.unifier.Subst.ApplyTy(ty)
	c.global[it.Name] = c.generalizeAgainstEnv(final, it.Name)
	return nil
}

// generalizeAgainstEnv quantifies ty over its free variables minus those
// free in the ambient environment (excluding skipName's own entry).
func (c *Checker) generalizeAgainstEnv(ty types.Ty, skipName string) *types.Scheme {
	monoT := map[types.TyVarID]bool{}
	monoE := map[types.EffectVarID]bool{}
	for name, sch := range c.global {
		if name == skipName {
			continue
		}
		tvs, evs := types.FreeVarsScheme(sch)
		for v := range tvs {
			monoT[v] = true
		}
		for v := range evs {
			monoE[v] = true
		}
	}
	return types.Generalize(ty, monoT, monoE)
}

func (c *Checker) registerStruct(s *ast.Struct) error {
	tpEnv := map[string]types.TyVarID{}
	var tps []types.TyVarID
	for _, name := range s.TypeParams {
		v := c.freshTy()
		tpEnv[name] = v
		tps = append(tps, v)
	}
	var fields []types.FieldSig
	for _, f := range s.Fields {
		fty, err := c.resolveType(f.Type, tpEnv)
		if err != nil {
			return err
		}
		if capName, found := types.FindCapabilityName(fty); found {
			return &CapabilityInAdtError{Adt: s.Name, FirstCap: capName, SpanV: f.Span}
		}
		fields = append(fields, types.FieldSig{Name: f.Name, Type: fty})
	}
	c.registry.Define(&types.AdtSig{Name: s.Name, TypeParams: tps, Fields: fields})
	return nil
}

func (c *Checker) registerEnum(e *ast.Enum) error {
	tpEnv := map[string]types.TyVarID{}
	var tps []types.TyVarID
	for _, name := range e.TypeParams {
		v := c.freshTy()
		tpEnv[name] = v
		tps = append(tps, v)
	}
	var variants []types.VariantSig
	for _, v := range e.Variants {
		var fieldTys []types.Ty
		for _, ft := range v.Fields {
			fty, err := c.resolveType(ft, tpEnv)
			if err != nil {
				return err
			}
			if capName, found := types.FindCapabilityName(fty); found {
				return &CapabilityInAdtError{Adt: e.Name, FirstCap: capName, SpanV: v.Span}
			}
			fieldTys = append(fieldTys, fty)
		}
		variants = append(variants, types.VariantSig{Name: v.Name, Fields: fieldTys})
	}
	c.registry.Define(&types.AdtSig{Name: e.Name, TypeParams: tps, IsEnum: true, Variants: variants})
	return nil
}

// predeclareFn installs a function's signature before any body is checked.
// Unannotated parameter and return positions get fresh type variables; the
// effect row is the declared set, a fresh effect variable for a Fn whose
// effects will be inferred, or empty for an unannotated ExternFn (an extern
// signature is ground truth).
func (c *Checker) predeclareFn(name string, typeParams []string, params []ast.Param, retType ast.TypeExpr, effects *ast.EffectSet, isExtern bool) error {
	tpEnv := map[string]types.TyVarID{}
	var tpIDs []types.TyVarID
	for _, n := range typeParams {
		v := c.freshTy()
		tpEnv[n] = v
		tpIDs = append(tpIDs, v)
	}
	var paramTys []types.Ty
	for _, p := range params {
		var pty types.Ty
		if p.Type != nil {
			t, err := c.resolveType(p.Type, tpEnv)
			if err != nil {
				return err
			}
			pty = t
		} else {
			pty = &types.TyVar{ID: c.freshTy()}
		}
		paramTys = append(paramTys, pty)
	}
	var retTy types.Ty
	if retType != nil {
		t, err := c.resolveType(retType, tpEnv)
		if err != nil {
			return err
		}
		retTy = t
	} else if isExtern {
		retTy = types.TyUnit
	} else {
		retTy = &types.TyVar{ID: c.freshTy()}
	}

	var row types.EffectRow
	switch {
	case effects != nil:
		r, err := c.resolveEffects(effects)
		if err != nil {
			return err
		}
		row = r
	case isExtern:
		row = types.EmptyRow()
	default:
		row = types.OpenRow(0, c.freshEffect())
	}

	fnTy := &types.TyArrow{Params: paramTys, Ret: retTy, Effects: row}
	scheme := &types.Scheme{TypeVars: tpIDs, Ty: fnTy}
	c.global[name] = scheme
	c.fnSchemes[name] = scheme
	c.fnEffects[name] = row
	return nil
}

func (c *Checker) resolveEffects(effects *ast.EffectSet) (types.EffectRow, error) {
	if effects == nil {
		return types.EmptyRow(), nil
	}
	var kinds []types.CapKind
	for _, name := range effects.Names {
		k, ok := types.LookupCapKind(name)
		if !ok {
			return types.EffectRow{}, &NamedError{KindName: "Mismatch", Msg: "unknown effect " + name, SpanV: effects.Span}
		}
		kinds = append(kinds, k)
	}
	return types.ClosedRow(kinds...), nil
}

func (c *Checker) resolveType(te ast.TypeExpr, tpEnv map[string]types.TyVarID) (types.Ty, error) {
	switch t := te.(type) {
	case *ast.PathType:
		name := t.Segments[len(t.Segments)-1]
		if len(t.Segments) == 1 {
			if v, ok := tpEnv[name]; ok {
				return &types.TyVar{ID: v}, nil
			}
			switch name {
			case "Int":
				return types.TyInt, nil
			case "Float":
				return types.TyFloat, nil
			case "Bool":
				return types.TyBool, nil
			case "String":
				return types.TyString, nil
			case "Unit":
				return types.TyUnit, nil
			}
			if k, ok := capTypeFromName(name); ok {
				return &types.TyCap{Kind: k}, nil
			}
		}
		return &types.TyAdt{Name: name}, nil
	case *ast.GenericType:
		name := t.Segments[len(t.Segments)-1]
		var args []types.Ty
		for _, a := range t.Args {
			at, err := c.resolveType(a, tpEnv)
			if err != nil {
				return nil, err
			}
			args = append(args, at)
		}
		if name == "List" && len(args) == 1 {
			return &types.TyList{Elem: args[0]}, nil
		}
		return &types.TyAdt{Name: name, Args: args}, nil
	case *ast.TupleType:
		if len(t.Elems) == 0 {
			return types.TyUnit, nil
		}
		var elems []types.Ty
		for _, e := range t.Elems {
			et, err := c.resolveType(e, tpEnv)
			if err != nil {
				return nil, err
			}
			elems = append(elems, et)
		}
		if len(elems) == 1 {
			return elems[0], nil
		}
		return &types.TyTuple{Elems: elems}, nil
	case *ast.ArrowType:
		var params []types.Ty
		for _, p := range t.Params {
			pt, err := c.resolveType(p, tpEnv)
			if err != nil {
				return nil, err
			}
			params = append(params, pt)
		}
		ret, err := c.resolveType(t.Ret, tpEnv)
		if err != nil {
			return nil, err
		}
		row, err := c.resolveEffects(t.Effects)
		if err != nil {
			return nil, err
		}
		return &types.TyArrow{Params: params, Ret: ret, Effects: row}, nil
	case *ast.RefType:
		inner, err := c.resolveType(t.Inner, tpEnv)
		if err != nil {
			return nil, err
		}
		return &types.TyRef{Inner: inner}, nil
	default:
		return nil, &NamedError{KindName: "NotImplemented", Msg: "unknown type expression", SpanV: te.TypeSpan()}
	}
}

func capTypeFromName(name string) (types.CapKind, bool) {
	for k := types.CapFs; k <= types.CapAi; k++ {
		if k.CapTypeName() == name {
			return k, true
		}
	}
	return 0, false
}

func isNever(ty types.Ty) bool {
	_, ok := ty.(*types.TyNever)
	return ok
}
