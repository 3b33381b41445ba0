package infer

import (
	"fmt"
	"strings"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/types"
)

// UnknownVariableError reports a reference to an unbound name.
type UnknownVariableError struct {
	Name  string
	SpanV ast.Span
}

func (e *UnknownVariableError) Error() string  { return fmt.Sprintf("unknown variable %q", e.Name) }
func (e *UnknownVariableError) Kind() string   { return "UnknownVariable" }
func (e *UnknownVariableError) Span() ast.Span { return e.SpanV }

// UnknownPathError reports a qualified path that resolves to neither a
// registered enum variant nor a known binding.
type UnknownPathError struct {
	Path  []string
	SpanV ast.Span
}

func (e *UnknownPathError) Error() string {
	return fmt.Sprintf("unknown path %s", strings.Join(e.Path, "::"))
}
func (e *UnknownPathError) Kind() string   { return "UnknownVariable" }
func (e *UnknownPathError) Span() ast.Span { return e.SpanV }

func (c *Checker) record(e ast.Expr, ty types.Ty) types.Ty {
	c.exprTypes[e] = ty
	return ty
}

// resolvePathValue looks up the value denoted by a (possibly qualified)
// path: first as a bound variable/function (single-segment only), then as
// an enum variant constructor. A variant with zero fields evaluates to the
// constructed value directly; one with fields evaluates to a pure
// constructor function, so CallExpr's ordinary apply-and-unify logic
// handles variant construction with no special case.
func (c *Checker) resolvePathValue(env Env, segs []string, span ast.Span) (types.Ty, error) {
	if len(segs) == 1 {
		if scheme, ok := env[segs[0]]; ok {
			return c.instantiate(scheme, span)
		}
	}
	if sig, variant, ok := c.registry.ResolveVariant(segs); ok {
		mapping := map[types.TyVarID]types.Ty{}
		var freshArgs []types.Ty
		for _, tv := range sig.TypeParams {
			nv := &types.TyVar{ID: c.freshTy()}
			mapping[tv] = nv
			freshArgs = append(freshArgs, nv)
		}
		enumTy := &types.TyAdt{Name: sig.Name, Args: freshArgs}
		if len(variant.Fields) == 0 {
			return enumTy, nil
		}
		params := make([]types.Ty, len(variant.Fields))
		for i, f := range variant.Fields {
			params[i] = types.SubstituteVars(f, mapping, nil)
		}
		return &types.TyArrow{Params: params, Ret: enumTy, Effects: types.EmptyRow()}, nil
	}
	if len(segs) == 1 {
		return nil, &UnknownVariableError{Name: segs[0], SpanV: span}
	}
	return nil, &UnknownPathError{Path: segs, SpanV: span}
}

// inferExpr generates constraints for expr, returning its type. effects is
// the enclosing function's effect row (the upper bound for any call's
// required effects); retTy is the enclosing function's return type, which
// `return` statements anywhere below unify against.
func (c *Checker) inferExpr(env Env, expr ast.Expr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	switch e := expr.(type) {
	case *ast.LitExpr:
		switch e.Kind {
		case ast.LitInt:
			return c.record(e, types.TyInt), nil
		case ast.LitFloat:
			return c.record(e, types.TyFloat), nil
		case ast.LitString:
			return c.record(e, types.TyString), nil
		case ast.LitBool:
			return c.record(e, types.TyBool), nil
		default:
			return c.record(e, types.TyUnit), nil
		}

	case *ast.VarExpr:
		ty, err := c.resolvePathValue(env, []string{e.Name}, e.Span)
		if err != nil {
			return nil, err
		}
		return c.record(e, ty), nil

	case *ast.PathExpr:
		ty, err := c.resolvePathValue(env, e.Segments, e.Span)
		if err != nil {
			return nil, err
		}
		return c.record(e, ty), nil

	case *ast.ParenExpr:
		ty, err := c.inferExpr(env, e.Inner, effects, retTy)
		if err != nil {
			return nil, err
		}
		return c.record(e, ty), nil

	case *ast.BorrowExpr:
		inner, err := c.inferExpr(env, e.Inner, effects, retTy)
		if err != nil {
			return nil, err
		}
		return c.record(e, &types.TyRef{Inner: inner}), nil

	case *ast.UnaryExpr:
		inner, err := c.inferExpr(env, e.Operand, effects, retTy)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case ast.UnNot:
			c.addConstraint(&EqualConstraint{A: inner, B: types.TyBool, Span: e.Span})
			return c.record(e, types.TyBool), nil
		default: // UnNeg: operand must be numeric, result is the operand's type
			c.addNumeric(inner, e.Span)
			return c.record(e, inner), nil
		}

	case *ast.BinaryExpr:
		return c.inferBinary(env, e, effects, retTy)

	case *ast.CallExpr:
		return c.inferCall(env, e, effects, retTy)

	case *ast.BlockExpr:
		ty, err := c.inferBlock(env, e.Block, effects, retTy)
		if err != nil {
			return nil, err
		}
		return c.record(e, ty), nil

	case *ast.IfExpr:
		return c.inferIf(env, e, effects, retTy)

	case *ast.WhileExpr:
		condTy, err := c.inferExpr(env, e.Cond, effects, retTy)
		if err != nil {
			return nil, err
		}
		c.addConstraint(&EqualConstraint{A: condTy, B: types.TyBool, Span: e.Cond.ExprSpan()})
		bodyTy, err := c.inferBlock(env, e.Body, effects, retTy)
		if err != nil {
			return nil, err
		}
		if !isNever(bodyTy) {
			c.addConstraint(&EqualConstraint{A: bodyTy, B: types.TyUnit, Span: e.Body.Span})
		}
		return c.record(e, types.TyUnit), nil

	case *ast.MatchExpr:
		return c.inferMatch(env, e, effects, retTy)

	case *ast.TupleExpr:
		if len(e.Elems) == 0 {
			return c.record(e, types.TyUnit), nil
		}
		elems := make([]types.Ty, len(e.Elems))
		for i, sub := range e.Elems {
			ty, err := c.inferExpr(env, sub, effects, retTy)
			if err != nil {
				return nil, err
			}
			elems[i] = ty
		}
		if len(elems) == 1 {
			return c.record(e, elems[0]), nil
		}
		return c.record(e, &types.TyTuple{Elems: elems}), nil

	case *ast.StructExpr:
		return c.inferStructExpr(env, e, effects, retTy)

	default:
		return nil, &NamedError{KindName: "NotImplemented", Msg: fmt.Sprintf("unhandled expression kind %T", expr), SpanV: expr.ExprSpan()}
	}
}

func (c *Checker) inferBinary(env Env, e *ast.BinaryExpr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	lhsTy, err := c.inferExpr(env, e.Lhs, effects, retTy)
	if err != nil {
		return nil, err
	}
	rhsTy, err := c.inferExpr(env, e.Rhs, effects, retTy)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinDiv:
		// Both operands the same numeric type; the result is that type.
		c.addConstraint(&EqualConstraint{A: lhsTy, B: rhsTy, Span: e.Span})
		c.addNumeric(lhsTy, e.Span)
		return c.record(e, lhsTy), nil
	case ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe, ast.BinEq, ast.BinNe:
		c.addConstraint(&EqualConstraint{A: lhsTy, B: rhsTy, Span: e.Span})
		return c.record(e, types.TyBool), nil
	default: // BinAnd, BinOr: short-circuit booleans
		c.addConstraint(&EqualConstraint{A: lhsTy, B: types.TyBool, Span: e.Lhs.ExprSpan()})
		c.addConstraint(&EqualConstraint{A: rhsTy, B: types.TyBool, Span: e.Rhs.ExprSpan()})
		return c.record(e, types.TyBool), nil
	}
}

func (c *Checker) inferCall(env Env, e *ast.CallExpr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	calleeTy, err := c.inferExpr(env, e.Callee, effects, retTy)
	if err != nil {
		return nil, err
	}
	argTys := make([]types.Ty, len(e.Args))
	for i, a := range e.Args {
		ty, err := c.inferExpr(env, a, effects, retTy)
		if err != nil {
			return nil, err
		}
		argTys[i] = ty
	}
	resultTy := &types.TyVar{ID: c.freshTy()}
	callEffVar := c.freshEffect()
	callRow := types.OpenRow(0, callEffVar)
	expectedFnTy := &types.TyArrow{Params: argTys, Ret: resultTy, Effects: callRow}
	c.addConstraint(&EqualConstraint{A: calleeTy, B: expectedFnTy, Span: e.Callee.ExprSpan()})
	c.addConstraint(&EffectSubsetConstraint{Sub: callRow, Sup: effects, Span: e.Span})
	return c.record(e, resultTy), nil
}

// inferIf types an if/else. A diverging branch is elided from unification:
// the non-diverging branch's type is adopted.
func (c *Checker) inferIf(env Env, e *ast.IfExpr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	condTy, err := c.inferExpr(env, e.Cond, effects, retTy)
	if err != nil {
		return nil, err
	}
	c.addConstraint(&EqualConstraint{A: condTy, B: types.TyBool, Span: e.Cond.ExprSpan()})

	thenTy, err := c.inferBlock(env, e.Then, effects, retTy)
	if err != nil {
		return nil, err
	}

	if e.Else == nil {
		if !isNever(thenTy) {
			c.addConstraint(&EqualConstraint{A: thenTy, B: types.TyUnit, Span: e.Then.Span})
		}
		return c.record(e, types.TyUnit), nil
	}

	elseTy, err := c.inferExpr(env, e.Else, effects, retTy)
	if err != nil {
		return nil, err
	}
	switch {
	case isNever(thenTy) && isNever(elseTy):
		return c.record(e, &types.TyNever{}), nil
	case isNever(thenTy):
		return c.record(e, elseTy), nil
	case isNever(elseTy):
		return c.record(e, thenTy), nil
	default:
		c.addConstraint(&EqualConstraint{A: thenTy, B: elseTy, Span: e.Span})
		return c.record(e, thenTy), nil
	}
}

func (c *Checker) inferMatch(env Env, e *ast.MatchExpr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	scrutTy, err := c.inferExpr(env, e.Scrutinee, effects, retTy)
	if err != nil {
		return nil, err
	}
	resultTy := &types.TyVar{ID: c.freshTy()}
	for _, arm := range e.Arms {
		armEnv := env.child()
		if err := c.bindPattern(armEnv, arm.Pat, scrutTy); err != nil {
			return nil, err
		}
		bodyTy, err := c.inferExpr(armEnv, arm.Body, effects, retTy)
		if err != nil {
			return nil, err
		}
		if !isNever(bodyTy) {
			c.addConstraint(&EqualConstraint{A: resultTy, B: bodyTy, Span: arm.Span})
		}
	}
	c.matches = append(c.matches, matchSite{expr: e, scrutTy: scrutTy})
	return c.record(e, resultTy), nil
}

func (c *Checker) inferStructExpr(env Env, e *ast.StructExpr, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	name := e.Path[len(e.Path)-1]
	sig, ok := c.registry.Lookup(name)
	if !ok || sig.IsEnum {
		return nil, &UnknownPathError{Path: e.Path, SpanV: e.Span}
	}
	mapping := map[types.TyVarID]types.Ty{}
	var freshArgs []types.Ty
	for _, tv := range sig.TypeParams {
		nv := &types.TyVar{ID: c.freshTy()}
		mapping[tv] = nv
		freshArgs = append(freshArgs, nv)
	}
	for _, init := range e.Fields {
		var fieldTy types.Ty
		found := false
		for _, f := range sig.Fields {
			if f.Name == init.Name {
				fieldTy = types.SubstituteVars(f.Type, mapping, nil)
				found = true
				break
			}
		}
		if !found {
			return nil, &NamedError{KindName: "Mismatch", Msg: fmt.Sprintf("struct %s has no field %q", name, init.Name), SpanV: init.Span}
		}
		valTy, err := c.inferExpr(env, init.Value, effects, retTy)
		if err != nil {
			return nil, err
		}
		c.addConstraint(&EqualConstraint{A: valTy, B: fieldTy, Span: init.Span})
	}
	return c.record(e, &types.TyAdt{Name: sig.Name, Args: freshArgs}), nil
}

// bindPattern checks pat against scrutTy and binds any introduced names
// into env as monomorphic locals, recording pat's resolved type.
func (c *Checker) bindPattern(env Env, pat ast.Pat, scrutTy types.Ty) error {
	c.patternTypes[pat] = scrutTy
	switch p := pat.(type) {
	case *ast.WildcardPat:
		return nil
	case *ast.IdentPat:
		env[p.Name] = types.Mono(scrutTy)
		return nil
	case *ast.LitPat:
		var litTy types.Ty
		switch p.Kind {
		case ast.LitInt:
			litTy = types.TyInt
		case ast.LitFloat:
			litTy = types.TyFloat
		case ast.LitString:
			litTy = types.TyString
		case ast.LitBool:
			litTy = types.TyBool
		default:
			litTy = types.TyUnit
		}
		c.addConstraint(&EqualConstraint{A: scrutTy, B: litTy, Span: p.Span})
		return nil
	case *ast.TuplePat:
		elemTys := make([]types.Ty, len(p.Elems))
		for i := range p.Elems {
			elemTys[i] = &types.TyVar{ID: c.freshTy()}
		}
		c.addConstraint(&EqualConstraint{A: scrutTy, B: &types.TyTuple{Elems: elemTys}, Span: p.Span})
		for i, sub := range p.Elems {
			if err := c.bindPattern(env, sub, elemTys[i]); err != nil {
				return err
			}
		}
		return nil
	case *ast.VariantPat:
		sig, variant, ok := c.registry.ResolveVariant(p.Path)
		if !ok {
			return &UnknownPathError{Path: p.Path, SpanV: p.Span}
		}
		mapping := map[types.TyVarID]types.Ty{}
		var freshArgs []types.Ty
		for _, tv := range sig.TypeParams {
			nv := &types.TyVar{ID: c.freshTy()}
			mapping[tv] = nv
			freshArgs = append(freshArgs, nv)
		}
		c.addConstraint(&EqualConstraint{A: scrutTy, B: &types.TyAdt{Name: sig.Name, Args: freshArgs}, Span: p.Span})
		if len(p.Sub) != len(variant.Fields) {
			return &NamedError{
				KindName: "Arity",
				Msg:      fmt.Sprintf("variant %s expects %d sub-patterns, found %d", variant.Name, len(variant.Fields), len(p.Sub)),
				SpanV:    p.Span,
			}
		}
		for i, sub := range p.Sub {
			fieldTy := types.SubstituteVars(variant.Fields[i], mapping, nil)
			if err := c.bindPattern(env, sub, fieldTy); err != nil {
				return err
			}
		}
		return nil
	case *ast.StructPat:
		name := p.Path[len(p.Path)-1]
		sig, ok := c.registry.Lookup(name)
		if !ok || sig.IsEnum {
			return &UnknownPathError{Path: p.Path, SpanV: p.Span}
		}
		mapping := map[types.TyVarID]types.Ty{}
		var freshArgs []types.Ty
		for _, tv := range sig.TypeParams {
			nv := &types.TyVar{ID: c.freshTy()}
			mapping[tv] = nv
			freshArgs = append(freshArgs, nv)
		}
		c.addConstraint(&EqualConstraint{A: scrutTy, B: &types.TyAdt{Name: sig.Name, Args: freshArgs}, Span: p.Span})
		for _, fp := range p.Fields {
			var fieldTy types.Ty
			found := false
			for _, f := range sig.Fields {
				if f.Name == fp.Name {
					fieldTy = types.SubstituteVars(f.Type, mapping, nil)
					found = true
					break
				}
			}
			if !found {
				return &NamedError{KindName: "Mismatch", Msg: fmt.Sprintf("struct %s has no field %q", name, fp.Name), SpanV: fp.Span}
			}
			if err := c.bindPattern(env, fp.Pat, fieldTy); err != nil {
				return err
			}
		}
		return nil
	default:
		return &NamedError{KindName: "NotImplemented", Msg: fmt.Sprintf("unhandled pattern kind %T", pat), SpanV: pat.PatSpan()}
	}
}

// inferBlock checks a block's statements in order and returns the tail
// expression's type, Unit when there is no tail, or Never when an
// unconditional return makes the block diverge.
func (c *Checker) inferBlock(env Env, block *ast.Block, effects types.EffectRow, retTy types.Ty) (types.Ty, error) {
	local := env.child()
	diverges := false
	for _, stmt := range block.Stmts {
		if err := c.inferStmt(local, stmt, effects, retTy); err != nil {
			return nil, err
		}
		if _, ok := stmt.(*ast.ReturnStmt); ok {
			diverges = true
		}
	}
	if block.Tail == nil {
		if diverges {
			return &types.TyNever{}, nil
		}
		return types.TyUnit, nil
	}
	return c.inferExpr(local, block.Tail, effects, retTy)
}

func (c *Checker) inferStmt(env Env, stmt ast.Stmt, effects types.EffectRow, retTy types.Ty) error {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		valTy, err := c.inferExpr(env, s.Value, effects, retTy)
		if err != nil {
			return err
		}
		if s.Type != nil {
			declTy, err := c.resolveType(s.Type, nil)
			if err != nil {
				return err
			}
			c.addConstraint(&EqualConstraint{A: valTy, B: declTy, Span: s.Span})
			valTy = declTy
		}
		return c.bindPattern(env, s.Pat, valTy)
	case *ast.AssignStmt:
		targetTy, err := c.inferExpr(env, s.Target, effects, retTy)
		if err != nil {
			return err
		}
		valTy, err := c.inferExpr(env, s.Value, effects, retTy)
		if err != nil {
			return err
		}
		c.addConstraint(&EqualConstraint{A: targetTy, B: valTy, Span: s.Span})
		return nil
	case *ast.ExprStmt:
		_, err := c.inferExpr(env, s.Expr, effects, retTy)
		return err
	case *ast.ReturnStmt:
		if s.Value != nil {
			valTy, err := c.inferExpr(env, s.Value, effects, retTy)
			if err != nil {
				return err
			}
			if !isNever(valTy) {
				c.addConstraint(&EqualConstraint{A: valTy, B: retTy, Span: s.Span})
			}
			return nil
		}
		c.addConstraint(&EqualConstraint{A: types.TyUnit, B: retTy, Span: s.Span})
		return nil
	default:
		return &NamedError{KindName: "NotImplemented", Msg: fmt.Sprintf("unhandled statement kind %T", stmt), SpanV: stmt.StmtSpan()}
	}
}
