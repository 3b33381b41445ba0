// Package movecheck enforces at-most-once use of affine (capability-typed)
// bindings. It runs after inference and solving as a separate pass: it reads
// the already-resolved type of each binding, walks the function body once,
// and handles branching with snapshot/restore plus a pessimistic join.
//
// The error vocabulary is permission/authority centered: a consumed
// capability's permission has been transferred, not "moved".
package movecheck

import (
	"fmt"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/types"
)

// AlreadyUsedError reports a second use of a consumed capability binding.
type AlreadyUsedError struct {
	Name      string
	FirstUse  ast.Span
	SecondUse ast.Span
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("capability %q has already been used; permission was transferred at %s and %q is no longer available",
		e.Name, e.FirstUse, e.Name)
}
func (e *AlreadyUsedError) Kind() string   { return "AlreadyUsed" }
func (e *AlreadyUsedError) Span() ast.Span { return e.SecondUse }

// UsedInLoopError reports consumption of an outer capability inside a loop
// body, where the use would repeat on every iteration.
type UsedInLoopError struct {
	Name  string
	UseAt ast.Span
}

func (e *UsedInLoopError) Error() string {
	return fmt.Sprintf("cannot use single-use capability %q inside a loop; it would be consumed on every iteration", e.Name)
}
func (e *UsedInLoopError) Kind() string   { return "UsedInLoop" }
func (e *UsedInLoopError) Span() ast.Span { return e.UseAt }

// Param is one function parameter with its solver-resolved type.
type Param struct {
	Name string
	Type types.Ty
	Span ast.Span
}

// bindingID pairs a name with a generation counter so shadowing never
// aliases tracking state.
type bindingID struct {
	name       string
	generation int
}

type state int

const (
	alive state = iota
	consumed
)

type tracked struct {
	st      state
	useSpan ast.Span
	defSpan ast.Span
}

type checker struct {
	nameToID     map[string]bindingID
	trackedBinds map[bindingID]tracked
	bindingTypes map[bindingID]types.Ty
	generation   int
	loopDepth    int
	env          map[string]*types.Scheme
	errs         []error
}

// CheckFunctionBody move-checks one function body. params carry the solved
// parameter types; env maps function names to their generalized schemes (for
// resolving polymorphic call return types). The first violation is returned.
func CheckFunctionBody(params []Param, body *ast.Block, env map[string]*types.Scheme) error {
	c := &checker{
		nameToID:     map[string]bindingID{},
		trackedBinds: map[bindingID]tracked{},
		bindingTypes: map[bindingID]types.Ty{},
		env:          env,
	}
	for _, p := range params {
		c.introduce(p.Name, p.Type, p.Span)
	}
	c.checkBlock(body)
	if len(c.errs) > 0 {
		return c.errs[0]
	}
	return nil
}

func (c *checker) introduce(name string, ty types.Ty, span ast.Span) {
	c.generation++
	id := bindingID{name: name, generation: c.generation}
	c.nameToID[name] = id
	c.bindingTypes[id] = ty
	if types.KindOf(ty) == types.Affine {
		c.trackedBinds[id] = tracked{st: alive, defSpan: span}
	}
}

func (c *checker) bindingType(name string) (types.Ty, bool) {
	id, ok := c.nameToID[name]
	if !ok {
		return nil, false
	}
	ty, ok := c.bindingTypes[id]
	return ty, ok
}

func (c *checker) isAffine(name string) bool {
	id, ok := c.nameToID[name]
	if !ok {
		return false
	}
	_, tracked := c.trackedBinds[id]
	return tracked
}

// use consumes an affine binding. Inside a loop, consuming a binding
// introduced outside the loop is immediately an error.
func (c *checker) use(name string, useSpan ast.Span) {
	id, ok := c.nameToID[name]
	if !ok {
		return
	}
	t, ok := c.trackedBinds[id]
	if !ok {
		return
	}
	if c.loopDepth > 0 {
		c.errs = append(c.errs, &UsedInLoopError{Name: name, UseAt: useSpan})
		return
	}
	switch t.st {
	case alive:
		c.trackedBinds[id] = tracked{st: consumed, useSpan: useSpan, defSpan: t.defSpan}
	case consumed:
		c.errs = append(c.errs, &AlreadyUsedError{Name: name, FirstUse: t.useSpan, SecondUse: useSpan})
	}
}

func (c *checker) snapshot() map[bindingID]tracked {
	out := make(map[bindingID]tracked, len(c.trackedBinds))
	for k, v := range c.trackedBinds {
		out[k] = v
	}
	return out
}

func (c *checker) restore(snap map[bindingID]tracked) {
	c.trackedBinds = make(map[bindingID]tracked, len(snap))
	for k, v := range snap {
		c.trackedBinds[k] = v
	}
}

// join applies the pessimistic rule: a binding is consumed after a branch
// construct iff any arm consumed it.
func (c *checker) join(base map[bindingID]tracked, arms []map[bindingID]tracked) {
	c.restore(base)
	for id, baseT := range base {
		for _, arm := range arms {
			if armT, ok := arm[id]; ok && armT.st == consumed {
				c.trackedBinds[id] = tracked{st: consumed, useSpan: armT.useSpan, defSpan: baseT.defSpan}
				break
			}
		}
	}
}

func (c *checker) checkBlock(block *ast.Block) {
	for _, stmt := range block.Stmts {
		c.checkStmt(stmt)
	}
	if block.Tail != nil {
		c.checkExpr(block.Tail)
	}
}

func (c *checker) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		rhsTy := c.resolveExprType(s.Value)
		c.checkExpr(s.Value)
		c.introducePattern(s.Pat, rhsTy)
	case *ast.AssignStmt:
		rhsTy := c.resolveExprType(s.Value)
		c.checkExpr(s.Value)
		if types.KindOf(rhsTy) == types.Affine {
			c.introduce(s.Target.Name, rhsTy, s.Target.Span)
		}
	case *ast.ExprStmt:
		c.checkExpr(s.Expr)
	case *ast.ReturnStmt:
		if s.Value != nil {
			c.checkExpr(s.Value)
		}
	}
}

func (c *checker) checkExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case *ast.LitExpr:

	case *ast.VarExpr:
		if c.isAffine(e.Name) {
			c.use(e.Name, e.Span)
		}

	case *ast.PathExpr:
		if len(e.Segments) == 1 && c.isAffine(e.Segments[0]) {
			c.use(e.Segments[0], e.Span)
		}

	case *ast.ParenExpr:
		c.checkExpr(e.Inner)

	case *ast.BorrowExpr:
		// A borrow reads without consuming: the inner binding stays alive.
		// Non-variable operands still get walked for nested uses.
		switch e.Inner.(type) {
		case *ast.VarExpr, *ast.PathExpr:
		default:
			c.checkExpr(e.Inner)
		}

	case *ast.UnaryExpr:
		c.checkExpr(e.Operand)

	case *ast.BinaryExpr:
		c.checkExpr(e.Lhs)
		c.checkExpr(e.Rhs)

	case *ast.CallExpr:
		c.checkExpr(e.Callee)
		// Arguments left-to-right: consumption in argument i is visible to
		// argument i+1.
		for _, arg := range e.Args {
			c.checkExpr(arg)
		}

	case *ast.BlockExpr:
		c.checkBlock(e.Block)

	case *ast.IfExpr:
		c.checkExpr(e.Cond)
		base := c.snapshot()
		c.checkBlock(e.Then)
		thenState := c.snapshot()
		c.restore(base)
		if e.Else != nil {
			c.checkExpr(e.Else)
		}
		elseState := c.snapshot()
		c.join(base, []map[bindingID]tracked{thenState, elseState})

	case *ast.WhileExpr:
		c.checkExpr(e.Cond)
		c.loopDepth++
		c.checkBlock(e.Body)
		c.loopDepth--

	case *ast.MatchExpr:
		// Resolve the scrutinee's type before visiting arms so pattern
		// bindings receive correct (possibly affine) types.
		scrutTy := c.resolveExprType(e.Scrutinee)
		c.checkExpr(e.Scrutinee)
		base := c.snapshot()
		var armStates []map[bindingID]tracked
		for _, arm := range e.Arms {
			c.restore(base)
			c.introducePattern(arm.Pat, scrutTy)
			c.checkExpr(arm.Body)
			armStates = append(armStates, c.snapshot())
		}
		if len(armStates) > 0 {
			c.join(base, armStates)
		} else {
			c.restore(base)
		}

	case *ast.TupleExpr:
		for _, elem := range e.Elems {
			c.checkExpr(elem)
		}

	case *ast.StructExpr:
		for _, f := range e.Fields {
			c.checkExpr(f.Value)
		}
	}
}

func (c *checker) introducePattern(pat ast.Pat, ty types.Ty) {
	switch p := pat.(type) {
	case *ast.IdentPat:
		c.introduce(p.Name, ty, p.Span)
	case *ast.WildcardPat, *ast.LitPat:
	case *ast.TuplePat:
		if tup, ok := ty.(*types.TyTuple); ok && len(tup.Elems) == len(p.Elems) {
			for i, sub := range p.Elems {
				c.introducePattern(sub, tup.Elems[i])
			}
			return
		}
		for _, sub := range p.Elems {
			c.introducePattern(sub, types.TyUnit)
		}
	case *ast.VariantPat:
		// Capabilities in ADT fields are rejected at declaration time, so
		// variant fields are always unrestricted.
		for _, sub := range p.Sub {
			c.introducePattern(sub, types.TyUnit)
		}
	case *ast.StructPat:
		for _, f := range p.Fields {
			c.introducePattern(f.Pat, types.TyUnit)
		}
	}
}

// resolveExprType determines the resolved type of an expression for affinity
// tracking: variables report their binding's known type, calls instantiate
// the callee's scheme against the resolved argument types.
func (c *checker) resolveExprType(expr ast.Expr) types.Ty {
	switch e := expr.(type) {
	case *ast.VarExpr:
		if ty, ok := c.bindingType(e.Name); ok {
			return ty
		}
		return types.TyUnit
	case *ast.PathExpr:
		if len(e.Segments) == 1 {
			if ty, ok := c.bindingType(e.Segments[0]); ok {
				return ty
			}
		}
		return types.TyUnit
	case *ast.ParenExpr:
		return c.resolveExprType(e.Inner)
	case *ast.BorrowExpr:
		return &types.TyRef{Inner: c.resolveExprType(e.Inner)}
	case *ast.CallExpr:
		return c.resolveCallReturnType(e.Callee, e.Args)
	case *ast.IfExpr:
		if e.Then.Tail != nil {
			return c.resolveExprType(e.Then.Tail)
		}
		if e.Else != nil {
			return c.resolveExprType(e.Else)
		}
		return types.TyUnit
	case *ast.BlockExpr:
		if e.Block.Tail != nil {
			return c.resolveExprType(e.Block.Tail)
		}
		return types.TyUnit
	case *ast.MatchExpr:
		if len(e.Arms) > 0 {
			return c.resolveExprType(e.Arms[0].Body)
		}
		return types.TyUnit
	case *ast.TupleExpr:
		elems := make([]types.Ty, len(e.Elems))
		for i, sub := range e.Elems {
			elems[i] = c.resolveExprType(sub)
		}
		return &types.TyTuple{Elems: elems}
	default:
		// Literals, operators, and struct expressions are unrestricted.
		return types.TyUnit
	}
}

// resolveCallReturnType resolves a call's result type. For polymorphic
// callees the scheme is instantiated against the argument types by walking
// parameters and arguments structurally, which is what makes identity-style
// forwarding of capabilities trackable.
func (c *checker) resolveCallReturnType(callee ast.Expr, args []ast.Expr) types.Ty {
	var name string
	switch e := callee.(type) {
	case *ast.VarExpr:
		name = e.Name
	case *ast.PathExpr:
		if len(e.Segments) == 1 {
			name = e.Segments[0]
		} else {
			return types.TyUnit
		}
	default:
		return types.TyUnit
	}

	if ty, ok := c.bindingType(name); ok {
		if arrow, ok := ty.(*types.TyArrow); ok {
			return arrow.Ret
		}
		return types.TyUnit
	}

	scheme, ok := c.env[name]
	if !ok {
		return types.TyUnit
	}
	arrow, ok := scheme.Ty.(*types.TyArrow)
	if !ok {
		return scheme.Ty
	}
	if len(scheme.TypeVars) == 0 {
		return arrow.Ret
	}

	bound := map[types.TyVarID]bool{}
	for _, v := range scheme.TypeVars {
		bound[v] = true
	}
	mapping := map[types.TyVarID]types.Ty{}
	for i, param := range arrow.Params {
		if i >= len(args) {
			break
		}
		collectVarMapping(param, c.resolveExprType(args[i]), bound, mapping)
	}
	return types.SubstituteVars(arrow.Ret, mapping, nil)
}

// collectVarMapping matches a parameter type against an argument type,
// recording what each bound scheme variable stands for.
func collectVarMapping(param, arg types.Ty, bound map[types.TyVarID]bool, mapping map[types.TyVarID]types.Ty) {
	switch p := param.(type) {
	case *types.TyVar:
		if bound[p.ID] {
			if _, seen := mapping[p.ID]; !seen {
				mapping[p.ID] = arg
			}
		}
	case *types.TyArrow:
		if a, ok := arg.(*types.TyArrow); ok {
			for i := range p.Params {
				if i < len(a.Params) {
					collectVarMapping(p.Params[i], a.Params[i], bound, mapping)
				}
			}
			collectVarMapping(p.Ret, a.Ret, bound, mapping)
		}
	case *types.TyTuple:
		if a, ok := arg.(*types.TyTuple); ok {
			for i := range p.Elems {
				if i < len(a.Elems) {
					collectVarMapping(p.Elems[i], a.Elems[i], bound, mapping)
				}
			}
		}
	case *types.TyList:
		if a, ok := arg.(*types.TyList); ok {
			collectVarMapping(p.Elem, a.Elem, bound, mapping)
		}
	case *types.TyAdt:
		if a, ok := arg.(*types.TyAdt); ok {
			for i := range p.Args {
				if i < len(a.Args) {
					collectVarMapping(p.Args[i], a.Args[i], bound, mapping)
				}
			}
		}
	case *types.TyRef:
		if a, ok := arg.(*types.TyRef); ok {
			collectVarMapping(p.Inner, a.Inner, bound, mapping)
		}
	}
}
