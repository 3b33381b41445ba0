package eval

import (
	"math"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/host"
	"github.com/strata-lang/strata/internal/types"
)

// maxCallDepth bounds recursion so pathological programs fail with a
// runtime error instead of exhausting the goroutine stack.
const maxCallDepth = 1024

// FlowKind tags a ControlFlow result.
type FlowKind int

const (
	// FlowValue is a normal value result.
	FlowValue FlowKind = iota
	// FlowReturn bubbles up to the enclosing function boundary.
	FlowReturn
	// FlowBreak and FlowContinue are reserved for future loop control.
	FlowBreak
	FlowContinue
)

// ControlFlow is what evaluation of any node produces: a value, or a
// control transfer on its way to the construct that absorbs it.
type ControlFlow struct {
	Kind FlowKind
	Val  Value
}

func valueFlow(v Value) ControlFlow  { return ControlFlow{Kind: FlowValue, Val: v} }
func returnFlow(v Value) ControlFlow { return ControlFlow{Kind: FlowReturn, Val: v} }

// IntoValue extracts the carried value, treating Return as a normal value.
func (cf ControlFlow) IntoValue() Value {
	if cf.Val == nil {
		return &UnitValue{}
	}
	return cf.Val
}

func (cf ControlFlow) isReturn() bool { return cf.Kind == FlowReturn }

// Options configures one program run.
type Options struct {
	// Tracer receives one effect record per host call; nil disables tracing.
	Tracer *host.Emitter
	// Replayer, when set, answers host calls from a recorded trace instead
	// of dispatching to real implementations.
	Replayer *host.Replayer
	// Registry supplies host implementations; nil uses the built-ins.
	Registry *host.Registry
}

// Interp is the single-threaded tree walker. The call-depth counter is its
// only ambient state and is reset on each top-level invocation.
type Interp struct {
	env      *Env
	registry *host.Registry
	tracer   *host.Emitter
	replayer *host.Replayer
	depth    int
}

// Run evaluates a module: registers extern metadata, defines functions and
// top-level lets, then calls main with one capability token per declared
// parameter. The tracer is finalized before Run returns.
func Run(m *ast.Module, opts Options) (Value, error) {
	registry := opts.Registry
	if registry == nil {
		registry = host.NewRegistry()
	}
	RegisterExternMeta(registry, m)

	tracer := opts.Tracer
	if tracer == nil {
		tracer = host.Disabled()
	}

	in := &Interp{env: NewEnv(), registry: registry, tracer: tracer, replayer: opts.Replayer}

	result, runErr := in.runModule(m)

	status := "success"
	if runErr != nil {
		status = "error"
	}
	if ferr := tracer.Finalize(status); ferr != nil && runErr == nil {
		runErr = runtimeErr("TraceWriteError", "%v", ast.Span{}, ferr)
	}
	return result, runErr
}

// RegisterExternMeta derives positional parameter metadata for every extern
// declaration from its type signature: which parameters are capabilities,
// which are data, and whether each capability is borrowed or consumed.
func RegisterExternMeta(registry *host.Registry, m *ast.Module) {
	for _, item := range m.Items {
		decl, ok := item.(*ast.ExternFn)
		if !ok {
			continue
		}
		meta := &host.ExternFnMeta{}
		for _, param := range decl.Params {
			if param.Type != nil {
				isRef, capName := extractCapInfo(param.Type)
				if kind, ok := capKindFromTypeName(capName); ok {
					meta.Params = append(meta.Params, host.CapParam(kind, isRef))
					continue
				}
			}
			meta.Params = append(meta.Params, host.DataParam(param.Name))
		}
		registry.RegisterMeta(decl.Name, meta)
	}
}

// extractCapInfo reports whether ty is a reference and the single-segment
// type name it wraps, if any.
func extractCapInfo(ty ast.TypeExpr) (isRef bool, name string) {
	switch t := ty.(type) {
	case *ast.RefType:
		_, inner := extractCapInfo(t.Inner)
		return true, inner
	case *ast.PathType:
		if len(t.Segments) == 1 {
			return false, t.Segments[0]
		}
	}
	return false, ""
}

func capKindFromTypeName(name string) (types.CapKind, bool) {
	for k := types.CapFs; k <= types.CapAi; k++ {
		if k.CapTypeName() == name {
			return k, true
		}
	}
	return 0, false
}

func (in *Interp) runModule(m *ast.Module) (Value, error) {
	in.depth = 0

	// Externs become host function references.
	for _, item := range m.Items {
		if decl, ok := item.(*ast.ExternFn); ok {
			in.env.define(decl.Name, &HostFnValue{Name: decl.Name}, false)
		}
	}

	var fnDecls []*ast.Fn
	for _, item := range m.Items {
		if decl, ok := item.(*ast.Fn); ok {
			fnDecls = append(fnDecls, decl)
		}
	}

	// Two-phase bind: declare all names first, then fill with closures whose
	// captured snapshot already contains every function name. The second
	// fill pass replaces each snapshot so mutual references see closures
	// rather than placeholders.
	for _, decl := range fnDecls {
		in.env.define(decl.Name, &UnitValue{}, true)
	}
	for pass := 0; pass < 2; pass++ {
		for _, decl := range fnDecls {
			params := make([]string, len(decl.Params))
			for i, p := range decl.Params {
				params[i] = p.Name
			}
			in.env.forceSet(decl.Name, &ClosureValue{Params: params, Body: decl.Body, Env: in.env.clone()})
		}
	}

	for _, item := range m.Items {
		if decl, ok := item.(*ast.Let); ok {
			cf, err := in.evalExpr(decl.Value)
			if err != nil {
				return nil, err
			}
			in.env.define(decl.Name, cf.IntoValue(), decl.Mut)
		}
	}

	return in.callMain(m)
}

// callMain finds main, materializes one capability token per declared
// capability parameter, and invokes it.
func (in *Interp) callMain(m *ast.Module) (Value, error) {
	var mainDecl *ast.Fn
	for _, item := range m.Items {
		if decl, ok := item.(*ast.Fn); ok && decl.Name == "main" {
			mainDecl = decl
			break
		}
	}
	if mainDecl == nil {
		return &UnitValue{}, nil
	}

	var capArgs []Value
	for _, param := range mainDecl.Params {
		if param.Type == nil {
			continue
		}
		_, name := extractCapInfo(param.Type)
		if kind, ok := capKindFromTypeName(name); ok {
			capArgs = append(capArgs, &CapValue{Kind: kind})
		}
	}

	mainVal, ok := in.env.get("main")
	if !ok {
		return nil, runtimeErr("UndefinedVariable", "main function not found", mainDecl.Span)
	}
	closure, ok := mainVal.(*ClosureValue)
	if !ok {
		return nil, runtimeErr("TypeMismatchAtRuntime", "main is not a function", mainDecl.Span)
	}

	callEnv := closure.Env.clone()
	callEnv.pushScope()
	for i, name := range closure.Params {
		if i < len(capArgs) {
			callEnv.define(name, capArgs[i], false)
		} else {
			callEnv.define(name, &UnitValue{}, false)
		}
	}
	saved := in.env
	in.env = callEnv
	cf, err := in.evalBlock(closure.Body)
	in.env = saved
	if err != nil {
		return nil, err
	}
	return cf.IntoValue(), nil
}

func (in *Interp) evalExpr(expr ast.Expr) (ControlFlow, error) {
	switch e := expr.(type) {
	case *ast.LitExpr:
		switch e.Kind {
		case ast.LitInt:
			return valueFlow(&IntValue{V: e.Int}), nil
		case ast.LitFloat:
			return valueFlow(&FloatValue{V: e.Float}), nil
		case ast.LitString:
			return valueFlow(&StrValue{V: e.String}), nil
		case ast.LitBool:
			return valueFlow(&BoolValue{V: e.Bool}), nil
		default:
			return valueFlow(&UnitValue{}), nil
		}

	case *ast.VarExpr:
		if v, ok := in.env.get(e.Name); ok {
			return valueFlow(v), nil
		}
		return ControlFlow{}, runtimeErr("UndefinedVariable", "undefined variable %q", e.Span, e.Name)

	case *ast.PathExpr:
		return in.evalPathExpr(e)

	case *ast.ParenExpr:
		return in.evalExpr(e.Inner)

	case *ast.BorrowExpr:
		// Borrow is syntactic: identity at runtime.
		return in.evalExpr(e.Inner)

	case *ast.UnaryExpr:
		return in.evalUnary(e)

	case *ast.BinaryExpr:
		return in.evalBinary(e)

	case *ast.CallExpr:
		return in.evalCall(e)

	case *ast.BlockExpr:
		return in.evalBlock(e.Block)

	case *ast.IfExpr:
		return in.evalIf(e)

	case *ast.WhileExpr:
		return in.evalWhile(e)

	case *ast.MatchExpr:
		return in.evalMatch(e)

	case *ast.TupleExpr:
		return in.evalTuple(e)

	case *ast.StructExpr:
		return in.evalStructExpr(e)

	default:
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "unhandled expression kind %T", expr.ExprSpan(), expr)
	}
}

func (in *Interp) evalUnary(e *ast.UnaryExpr) (ControlFlow, error) {
	cf, err := in.evalExpr(e.Operand)
	if err != nil || cf.isReturn() {
		return cf, err
	}
	switch v := cf.IntoValue().(type) {
	case *BoolValue:
		if e.Op == ast.UnNot {
			return valueFlow(&BoolValue{V: !v.V}), nil
		}
	case *IntValue:
		if e.Op == ast.UnNeg {
			return valueFlow(&IntValue{V: -v.V}), nil
		}
	case *FloatValue:
		if e.Op == ast.UnNeg {
			return valueFlow(&FloatValue{V: -v.V}), nil
		}
	}
	return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "invalid operand for unary operator", e.Span)
}

func (in *Interp) evalBinary(e *ast.BinaryExpr) (ControlFlow, error) {
	// && and || must short-circuit.
	if e.Op == ast.BinAnd || e.Op == ast.BinOr {
		cf, err := in.evalExpr(e.Lhs)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		lb, ok := cf.IntoValue().(*BoolValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "logical operator expects Bool", e.Span)
		}
		if e.Op == ast.BinAnd && !lb.V {
			return valueFlow(&BoolValue{V: false}), nil
		}
		if e.Op == ast.BinOr && lb.V {
			return valueFlow(&BoolValue{V: true}), nil
		}
		cf, err = in.evalExpr(e.Rhs)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		rb, ok := cf.IntoValue().(*BoolValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "logical operator expects Bool", e.Span)
		}
		return valueFlow(&BoolValue{V: rb.V}), nil
	}

	lcf, err := in.evalExpr(e.Lhs)
	if err != nil || lcf.isReturn() {
		return lcf, err
	}
	rcf, err := in.evalExpr(e.Rhs)
	if err != nil || rcf.isReturn() {
		return rcf, err
	}
	l, r := lcf.IntoValue(), rcf.IntoValue()

	switch e.Op {
	case ast.BinAdd, ast.BinSub, ast.BinMul, ast.BinDiv:
		return in.evalArith(e, l, r)
	case ast.BinLt, ast.BinLe, ast.BinGt, ast.BinGe:
		return in.evalCompare(e, l, r)
	default: // BinEq, BinNe
		eq := valuesEqual(l, r)
		if e.Op == ast.BinNe {
			eq = !eq
		}
		return valueFlow(&BoolValue{V: eq}), nil
	}
}

func (in *Interp) evalArith(e *ast.BinaryExpr, l, r Value) (ControlFlow, error) {
	if li, ok := l.(*IntValue); ok {
		ri, ok := r.(*IntValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "arithmetic expects matching numeric operands", e.Span)
		}
		switch e.Op {
		case ast.BinAdd:
			return valueFlow(&IntValue{V: li.V + ri.V}), nil
		case ast.BinSub:
			return valueFlow(&IntValue{V: li.V - ri.V}), nil
		case ast.BinMul:
			return valueFlow(&IntValue{V: li.V * ri.V}), nil
		default:
			if ri.V == 0 {
				return ControlFlow{}, runtimeErr("DivideByZero", "division by zero", e.Span)
			}
			if li.V == math.MinInt64 && ri.V == -1 {
				// Two's-complement wrap for the one overflowing quotient.
				return valueFlow(&IntValue{V: math.MinInt64}), nil
			}
			return valueFlow(&IntValue{V: li.V / ri.V}), nil
		}
	}
	lf, lok := l.(*FloatValue)
	rf, rok := r.(*FloatValue)
	if !lok || !rok {
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "arithmetic expects matching numeric operands", e.Span)
	}
	switch e.Op {
	case ast.BinAdd:
		return valueFlow(&FloatValue{V: lf.V + rf.V}), nil
	case ast.BinSub:
		return valueFlow(&FloatValue{V: lf.V - rf.V}), nil
	case ast.BinMul:
		return valueFlow(&FloatValue{V: lf.V * rf.V}), nil
	default:
		return valueFlow(&FloatValue{V: lf.V / rf.V}), nil
	}
}

func (in *Interp) evalCompare(e *ast.BinaryExpr, l, r Value) (ControlFlow, error) {
	var lt, le bool
	switch lv := l.(type) {
	case *IntValue:
		rv, ok := r.(*IntValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "comparison expects matching operands", e.Span)
		}
		lt, le = lv.V < rv.V, lv.V <= rv.V
	case *FloatValue:
		rv, ok := r.(*FloatValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "comparison expects matching operands", e.Span)
		}
		lt, le = lv.V < rv.V, lv.V <= rv.V
	case *StrValue:
		rv, ok := r.(*StrValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "comparison expects matching operands", e.Span)
		}
		lt, le = lv.V < rv.V, lv.V <= rv.V
	default:
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "comparison expects ordered operands", e.Span)
	}
	var out bool
	switch e.Op {
	case ast.BinLt:
		out = lt
	case ast.BinLe:
		out = le
	case ast.BinGt:
		out = !le
	default:
		out = !lt
	}
	return valueFlow(&BoolValue{V: out}), nil
}

// valuesEqual implements runtime == over data values. Floats compare by
// arithmetic equality, matching literal-pattern semantics.
func valuesEqual(l, r Value) bool {
	switch lv := l.(type) {
	case *IntValue:
		if rv, ok := r.(*IntValue); ok {
			return lv.V == rv.V
		}
	case *FloatValue:
		if rv, ok := r.(*FloatValue); ok {
			return lv.V == rv.V
		}
	case *BoolValue:
		if rv, ok := r.(*BoolValue); ok {
			return lv.V == rv.V
		}
	case *StrValue:
		if rv, ok := r.(*StrValue); ok {
			return lv.V == rv.V
		}
	case *UnitValue:
		_, ok := r.(*UnitValue)
		return ok
	case *TupleValue:
		rv, ok := r.(*TupleValue)
		if !ok || len(lv.Elems) != len(rv.Elems) {
			return false
		}
		for i := range lv.Elems {
			if !valuesEqual(lv.Elems[i], rv.Elems[i]) {
				return false
			}
		}
		return true
	case *VariantValue:
		rv, ok := r.(*VariantValue)
		if !ok || lv.Enum != rv.Enum || lv.Variant != rv.Variant || len(lv.Fields) != len(rv.Fields) {
			return false
		}
		for i := range lv.Fields {
			if !valuesEqual(lv.Fields[i], rv.Fields[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (in *Interp) evalBlock(block *ast.Block) (ControlFlow, error) {
	return in.env.withScope(func() (ControlFlow, error) {
		for _, stmt := range block.Stmts {
			cf, err := in.evalStmt(stmt)
			if err != nil {
				return ControlFlow{}, err
			}
			if cf.isReturn() {
				return cf, nil
			}
		}
		if block.Tail != nil {
			return in.evalExpr(block.Tail)
		}
		return valueFlow(&UnitValue{}), nil
	})
}

func (in *Interp) evalStmt(stmt ast.Stmt) (ControlFlow, error) {
	switch s := stmt.(type) {
	case *ast.LetStmt:
		cf, err := in.evalExpr(s.Value)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		v := cf.IntoValue()
		bindings, ok := matchPattern(s.Pat, v)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "let pattern did not match value", s.Span)
		}
		if err := checkDuplicateBindings(bindings, s.Span); err != nil {
			return ControlFlow{}, err
		}
		for _, b := range bindings {
			in.env.define(b.name, b.value, s.Mut)
		}
		return valueFlow(&UnitValue{}), nil

	case *ast.AssignStmt:
		cf, err := in.evalExpr(s.Value)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		if err := in.env.set(s.Target.Name, cf.IntoValue(), s.Span); err != nil {
			return ControlFlow{}, err
		}
		return valueFlow(&UnitValue{}), nil

	case *ast.ExprStmt:
		cf, err := in.evalExpr(s.Expr)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		return valueFlow(&UnitValue{}), nil

	case *ast.ReturnStmt:
		if s.Value == nil {
			return returnFlow(&UnitValue{}), nil
		}
		cf, err := in.evalExpr(s.Value)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		return returnFlow(cf.IntoValue()), nil

	default:
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "unhandled statement kind %T", stmt.StmtSpan(), stmt)
	}
}

func (in *Interp) evalIf(e *ast.IfExpr) (ControlFlow, error) {
	cf, err := in.evalExpr(e.Cond)
	if err != nil || cf.isReturn() {
		return cf, err
	}
	cond, ok := cf.IntoValue().(*BoolValue)
	if !ok {
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "if condition must be Bool", e.Cond.ExprSpan())
	}
	if cond.V {
		return in.evalBlock(e.Then)
	}
	if e.Else != nil {
		return in.evalExpr(e.Else)
	}
	return valueFlow(&UnitValue{}), nil
}

func (in *Interp) evalWhile(e *ast.WhileExpr) (ControlFlow, error) {
	for {
		cf, err := in.evalExpr(e.Cond)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		cond, ok := cf.IntoValue().(*BoolValue)
		if !ok {
			return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "while condition must be Bool", e.Cond.ExprSpan())
		}
		if !cond.V {
			return valueFlow(&UnitValue{}), nil
		}
		cf, err = in.evalBlock(e.Body)
		if err != nil {
			return ControlFlow{}, err
		}
		switch cf.Kind {
		case FlowReturn:
			return cf, nil
		case FlowBreak:
			return valueFlow(&UnitValue{}), nil
		}
	}
}

func (in *Interp) evalTuple(e *ast.TupleExpr) (ControlFlow, error) {
	if len(e.Elems) == 0 {
		return valueFlow(&UnitValue{}), nil
	}
	if len(e.Elems) == 1 {
		return in.evalExpr(e.Elems[0])
	}
	elems := make([]Value, 0, len(e.Elems))
	for _, sub := range e.Elems {
		cf, err := in.evalExpr(sub)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		elems = append(elems, cf.IntoValue())
	}
	return valueFlow(&TupleValue{Elems: elems}), nil
}

func (in *Interp) evalStructExpr(e *ast.StructExpr) (ControlFlow, error) {
	fields := make(map[string]Value, len(e.Fields))
	for _, f := range e.Fields {
		cf, err := in.evalExpr(f.Value)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		fields[f.Name] = cf.IntoValue()
	}
	return valueFlow(&StructValue{Name: e.Path[len(e.Path)-1], Fields: fields}), nil
}

// evalPathExpr resolves Enum::Variant to a unit variant value, or a single
// name through the environment.
func (in *Interp) evalPathExpr(e *ast.PathExpr) (ControlFlow, error) {
	if len(e.Segments) == 2 {
		return valueFlow(&VariantValue{Enum: e.Segments[0], Variant: e.Segments[1]}), nil
	}
	if len(e.Segments) == 1 {
		if v, ok := in.env.get(e.Segments[0]); ok {
			return valueFlow(v), nil
		}
		return ControlFlow{}, runtimeErr("UndefinedVariable", "undefined variable %q", e.Span, e.Segments[0])
	}
	return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "invalid path expression", e.Span)
}

func (in *Interp) evalMatch(e *ast.MatchExpr) (ControlFlow, error) {
	cf, err := in.evalExpr(e.Scrutinee)
	if err != nil || cf.isReturn() {
		return cf, err
	}
	value := cf.IntoValue()

	for _, arm := range e.Arms {
		bindings, ok := matchPattern(arm.Pat, value)
		if !ok {
			continue
		}
		if err := checkDuplicateBindings(bindings, arm.Span); err != nil {
			return ControlFlow{}, err
		}
		body := arm.Body
		return in.env.withScope(func() (ControlFlow, error) {
			for _, b := range bindings {
				in.env.define(b.name, b.value, false)
			}
			return in.evalExpr(body)
		})
	}
	// Exhaustiveness checking makes this unreachable for accepted programs.
	return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "no pattern matched value %s", e.Span, value)
}

func (in *Interp) evalCall(e *ast.CallExpr) (ControlFlow, error) {
	in.depth++
	defer func() { in.depth-- }()
	if in.depth > maxCallDepth {
		return ControlFlow{}, runtimeErr("CallDepthExceeded", "maximum call depth exceeded (limit: %d calls)", e.Span, maxCallDepth)
	}

	cf, err := in.evalExpr(e.Callee)
	if err != nil || cf.isReturn() {
		return cf, err
	}
	callee := cf.IntoValue()

	// Unit variant value called as a tuple-variant constructor.
	if variant, ok := callee.(*VariantValue); ok && len(variant.Fields) == 0 {
		fields := make([]Value, 0, len(e.Args))
		for _, arg := range e.Args {
			cf, err := in.evalExpr(arg)
			if err != nil || cf.isReturn() {
				return cf, err
			}
			fields = append(fields, cf.IntoValue())
		}
		return valueFlow(&VariantValue{Enum: variant.Enum, Variant: variant.Variant, Fields: fields}), nil
	}

	if hostFn, ok := callee.(*HostFnValue); ok {
		return in.evalHostCall(e, hostFn.Name)
	}

	closure, ok := callee.(*ClosureValue)
	if !ok {
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "cannot call non-function value %s", e.Span, callee)
	}

	if len(e.Args) != len(closure.Params) {
		return ControlFlow{}, runtimeErr("TypeMismatchAtRuntime", "function expects %d arguments, got %d", e.Span, len(closure.Params), len(e.Args))
	}

	args := make([]Value, 0, len(e.Args))
	for _, arg := range e.Args {
		cf, err := in.evalExpr(arg)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		args = append(args, cf.IntoValue())
	}

	callEnv := closure.Env.clone()
	in.patchClosureEnv(callEnv)
	callEnv.pushScope()
	for i, name := range closure.Params {
		callEnv.define(name, args[i], false)
	}

	saved := in.env
	in.env = callEnv
	bodyCf, err := in.evalBlock(closure.Body)
	in.env = saved
	if err != nil {
		return ControlFlow{}, err
	}
	// Return unwraps at the function boundary.
	return valueFlow(bodyCf.IntoValue()), nil
}

// patchClosureEnv rebinds names in a closure's captured global scope that
// were placeholders at capture time, so self- and mutual recursion resolve
// to the final closure values.
func (in *Interp) patchClosureEnv(callEnv *Env) {
	callerGlobal := in.env.scopes[0]
	closureGlobal := callEnv.scopes[0]
	for name, b := range callerGlobal {
		if _, isClosure := b.value.(*ClosureValue); !isClosure {
			continue
		}
		existing, ok := closureGlobal[name]
		if !ok {
			closureGlobal[name] = binding{value: b.value, mutable: false}
			continue
		}
		if _, isPlaceholder := existing.value.(*UnitValue); isPlaceholder {
			closureGlobal[name] = binding{value: b.value, mutable: existing.mutable}
		}
	}
}

// evalHostCall evaluates arguments and dispatches to the host registry, or
// to the trace replayer when one is attached. The extern's parameter
// metadata splits arguments into capability and data positions; capability
// tokens never reach the implementation.
func (in *Interp) evalHostCall(e *ast.CallExpr, name string) (ControlFlow, error) {
	args := make([]host.Arg, 0, len(e.Args))
	for _, arg := range e.Args {
		cf, err := in.evalExpr(arg)
		if err != nil || cf.isReturn() {
			return cf, err
		}
		v := cf.IntoValue()
		if tok, ok := v.(*CapValue); ok {
			args = append(args, host.Arg{IsCap: true, CapKind: tok.Kind})
		} else {
			args = append(args, host.Arg{Value: toTraceValue(v)})
		}
	}

	meta, ok := in.registry.Meta(name)
	if !ok {
		return ControlFlow{}, runtimeErr("HostError", "no extern metadata registered for %q", e.Span, name)
	}

	if in.replayer != nil {
		inputs := dataInputs(meta, args)
		tv, rerr := in.replayer.Next(name, inputs)
		if rerr != nil {
			return ControlFlow{}, rerr
		}
		return valueFlow(fromTraceValue(tv)), nil
	}

	tv, herr := in.registry.DispatchTraced(name, args, in.tracer)
	if herr != nil {
		kind := "HostError"
		if herr.Kind == host.ErrTraceWrite {
			kind = "TraceWriteError"
		}
		return ControlFlow{}, runtimeErr(kind, "host function %q: %v", e.Span, name, herr)
	}
	return valueFlow(fromTraceValue(tv)), nil
}

// dataInputs pairs data arguments with their declared names per the
// extern's metadata, for replay validation.
func dataInputs(meta *host.ExternFnMeta, args []host.Arg) []host.NamedInput {
	var inputs []host.NamedInput
	for i, p := range meta.Params {
		if i >= len(args) || p.IsCap {
			continue
		}
		inputs = append(inputs, host.NamedInput{Name: p.DataName, Value: args[i].Value})
	}
	return inputs
}

// namedValue is one pattern binding produced by a successful match.
type namedValue struct {
	name  string
	value Value
}

// matchPattern tries pat against value, returning the bindings it
// introduces. A failed match returns ok=false; for let patterns and
// accepted matches that is an internal error upstream.
func matchPattern(pat ast.Pat, value Value) ([]namedValue, bool) {
	switch p := pat.(type) {
	case *ast.WildcardPat:
		return nil, true

	case *ast.IdentPat:
		return []namedValue{{name: p.Name, value: value}}, true

	case *ast.LitPat:
		switch p.Kind {
		case ast.LitInt:
			v, ok := value.(*IntValue)
			return nil, ok && v.V == p.Int
		case ast.LitFloat:
			v, ok := value.(*FloatValue)
			return nil, ok && v.V == p.Float
		case ast.LitBool:
			v, ok := value.(*BoolValue)
			return nil, ok && v.V == p.Bool
		case ast.LitString:
			v, ok := value.(*StrValue)
			return nil, ok && v.V == p.String
		default:
			_, ok := value.(*UnitValue)
			return nil, ok
		}

	case *ast.TuplePat:
		if len(p.Elems) == 0 {
			_, ok := value.(*UnitValue)
			return nil, ok
		}
		tup, ok := value.(*TupleValue)
		if !ok || len(tup.Elems) != len(p.Elems) {
			return nil, false
		}
		var bindings []namedValue
		for i, sub := range p.Elems {
			subBindings, ok := matchPattern(sub, tup.Elems[i])
			if !ok {
				return nil, false
			}
			bindings = append(bindings, subBindings...)
		}
		return bindings, true

	case *ast.VariantPat:
		variant, ok := value.(*VariantValue)
		if !ok {
			return nil, false
		}
		name := p.Path[len(p.Path)-1]
		if name != variant.Variant {
			return nil, false
		}
		if len(p.Path) >= 2 && p.Path[len(p.Path)-2] != variant.Enum {
			return nil, false
		}
		if len(p.Sub) != len(variant.Fields) {
			return nil, false
		}
		var bindings []namedValue
		for i, sub := range p.Sub {
			subBindings, ok := matchPattern(sub, variant.Fields[i])
			if !ok {
				return nil, false
			}
			bindings = append(bindings, subBindings...)
		}
		return bindings, true

	case *ast.StructPat:
		sv, ok := value.(*StructValue)
		if !ok || p.Path[len(p.Path)-1] != sv.Name {
			return nil, false
		}
		var bindings []namedValue
		for _, f := range p.Fields {
			fieldVal, ok := sv.Fields[f.Name]
			if !ok {
				return nil, false
			}
			subBindings, ok := matchPattern(f.Pat, fieldVal)
			if !ok {
				return nil, false
			}
			bindings = append(bindings, subBindings...)
		}
		return bindings, true
	}
	return nil, false
}

// checkDuplicateBindings rejects a pattern that binds the same name twice;
// the static checks should make this unreachable.
func checkDuplicateBindings(bindings []namedValue, span ast.Span) error {
	seen := map[string]bool{}
	for _, b := range bindings {
		if seen[b.name] {
			return runtimeErr("TypeMismatchAtRuntime", "duplicate binding %q in pattern", span, b.name)
		}
		seen[b.name] = true
	}
	return nil
}
