package parser

import (
	"reflect"
	"strings"
	"testing"

	"github.com/strata-lang/strata/internal/ast"
)

func parseOK(t *testing.T, src string) *ast.Module {
	t.Helper()
	m, err := Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return m
}

func firstLetValue(t *testing.T, src string) ast.Expr {
	t.Helper()
	m := parseOK(t, "let x = "+src+";")
	let, ok := m.Items[0].(*ast.Let)
	if !ok {
		t.Fatalf("expected Let item, got %T", m.Items[0])
	}
	return let.Value
}

func TestPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	e := firstLetValue(t, "1 + 2 * 3")
	add, ok := e.(*ast.BinaryExpr)
	if !ok || add.Op != ast.BinAdd {
		t.Fatalf("expected top-level +, got %#v", e)
	}
	mul, ok := add.Rhs.(*ast.BinaryExpr)
	if !ok || mul.Op != ast.BinMul {
		t.Fatalf("expected * on rhs, got %#v", add.Rhs)
	}
}

func TestComparisonBindsLooserThanArithmetic(t *testing.T) {
	e := firstLetValue(t, "1 + 2 < 3 * 4")
	lt, ok := e.(*ast.BinaryExpr)
	if !ok || lt.Op != ast.BinLt {
		t.Fatalf("expected top-level <, got %#v", e)
	}
}

func TestLogicalPrecedence(t *testing.T) {
	// a || b && c parses as a || (b && c)
	e := firstLetValue(t, "a || b && c")
	or, ok := e.(*ast.BinaryExpr)
	if !ok || or.Op != ast.BinOr {
		t.Fatalf("expected top-level ||, got %#v", e)
	}
	and, ok := or.Rhs.(*ast.BinaryExpr)
	if !ok || and.Op != ast.BinAnd {
		t.Fatalf("expected && on rhs, got %#v", or.Rhs)
	}
}

func TestPrefixBindsTighterThanInfix(t *testing.T) {
	e := firstLetValue(t, "-a + b")
	add, ok := e.(*ast.BinaryExpr)
	if !ok || add.Op != ast.BinAdd {
		t.Fatalf("expected top-level +, got %#v", e)
	}
	if _, ok := add.Lhs.(*ast.UnaryExpr); !ok {
		t.Fatalf("expected unary on lhs, got %#v", add.Lhs)
	}
}

func TestCallBindsTighterThanPrefix(t *testing.T) {
	e := firstLetValue(t, "-f(1)")
	un, ok := e.(*ast.UnaryExpr)
	if !ok || un.Op != ast.UnNeg {
		t.Fatalf("expected unary neg, got %#v", e)
	}
	if _, ok := un.Operand.(*ast.CallExpr); !ok {
		t.Fatalf("expected call operand, got %#v", un.Operand)
	}
}

func TestFnDecl(t *testing.T) {
	m := parseOK(t, "fn add(a: Int, b: Int) -> Int { a + b }")
	fn, ok := m.Items[0].(*ast.Fn)
	if !ok {
		t.Fatalf("expected Fn item, got %T", m.Items[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 || fn.RetType == nil {
		t.Fatalf("unexpected fn shape: %#v", fn)
	}
	if fn.Body.Tail == nil {
		t.Fatal("expected tail expression in body")
	}
}

func TestFnEffects(t *testing.T) {
	m := parseOK(t, "fn f(c: &FsCap) -> String & {Fs} { g(c) }")
	fn := m.Items[0].(*ast.Fn)
	if fn.Effects == nil || len(fn.Effects.Names) != 1 || fn.Effects.Names[0] != "Fs" {
		t.Fatalf("unexpected effect set: %#v", fn.Effects)
	}
}

func TestExternFn(t *testing.T) {
	m := parseOK(t, "extern fn now(t: &TimeCap) -> String & {Time};")
	ext, ok := m.Items[0].(*ast.ExternFn)
	if !ok {
		t.Fatalf("expected ExternFn, got %T", m.Items[0])
	}
	if ext.Name != "now" || len(ext.Params) != 1 {
		t.Fatalf("unexpected extern shape: %#v", ext)
	}
	ref, ok := ext.Params[0].Type.(*ast.RefType)
	if !ok {
		t.Fatalf("expected ref type param, got %#v", ext.Params[0].Type)
	}
	if _, ok := ref.Inner.(*ast.PathType); !ok {
		t.Fatalf("expected path inside ref, got %#v", ref.Inner)
	}
}

func TestStructAndEnumDecls(t *testing.T) {
	m := parseOK(t, `
struct Point { x: Int, y: Int }
enum Option<T> { Some(T), None }
`)
	st, ok := m.Items[0].(*ast.Struct)
	if !ok || st.Name != "Point" || len(st.Fields) != 2 {
		t.Fatalf("unexpected struct: %#v", m.Items[0])
	}
	en, ok := m.Items[1].(*ast.Enum)
	if !ok || en.Name != "Option" || len(en.TypeParams) != 1 || len(en.Variants) != 2 {
		t.Fatalf("unexpected enum: %#v", m.Items[1])
	}
	if len(en.Variants[0].Fields) != 1 || len(en.Variants[1].Fields) != 0 {
		t.Fatalf("unexpected variant fields: %#v", en.Variants)
	}
}

func TestBlockTailVsStatement(t *testing.T) {
	// With a trailing semicolon the block's value is unit (no tail).
	m := parseOK(t, "fn f() { 1; }")
	fn := m.Items[0].(*ast.Fn)
	if fn.Body.Tail != nil {
		t.Fatal("expected no tail after semicolon")
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("expected one statement, got %d", len(fn.Body.Stmts))
	}

	m = parseOK(t, "fn f() { 1 }")
	fn = m.Items[0].(*ast.Fn)
	if fn.Body.Tail == nil {
		t.Fatal("expected tail expression")
	}
}

func TestIfElseIfDesugarsToNestedIf(t *testing.T) {
	e := firstLetValue(t, "if a { 1 } else if b { 2 } else { 3 }")
	ifExpr, ok := e.(*ast.IfExpr)
	if !ok {
		t.Fatalf("expected if, got %#v", e)
	}
	nested, ok := ifExpr.Else.(*ast.IfExpr)
	if !ok {
		t.Fatalf("expected nested if in else, got %#v", ifExpr.Else)
	}
	if nested.Else == nil {
		t.Fatal("expected final else block")
	}
}

func TestBareNameBeforeBraceIsNotAStructExpr(t *testing.T) {
	// `if x { .. }` must read x as a variable, not the start of `x { .. }`.
	e := firstLetValue(t, "if x { 1 } else { 2 }")
	ifExpr, ok := e.(*ast.IfExpr)
	if !ok {
		t.Fatalf("expected if, got %#v", e)
	}
	if _, ok := ifExpr.Cond.(*ast.VarExpr); !ok {
		t.Fatalf("expected variable condition, got %#v", ifExpr.Cond)
	}
}

func TestQualifiedStructExpr(t *testing.T) {
	e := firstLetValue(t, "geo::Point { x: 1, y: 2 }")
	se, ok := e.(*ast.StructExpr)
	if !ok {
		t.Fatalf("expected struct expr, got %#v", e)
	}
	if len(se.Path) != 2 || se.Path[1] != "Point" || len(se.Fields) != 2 {
		t.Fatalf("unexpected struct expr: %#v", se)
	}
}

func TestMatchArms(t *testing.T) {
	e := firstLetValue(t, `match c { Color::Red => 0, Color::Green => 1, _ => 2, }`)
	me, ok := e.(*ast.MatchExpr)
	if !ok {
		t.Fatalf("expected match, got %#v", e)
	}
	if len(me.Arms) != 3 {
		t.Fatalf("expected 3 arms (trailing comma allowed), got %d", len(me.Arms))
	}
	if _, ok := me.Arms[0].Pat.(*ast.VariantPat); !ok {
		t.Fatalf("expected variant pattern, got %#v", me.Arms[0].Pat)
	}
	if _, ok := me.Arms[2].Pat.(*ast.WildcardPat); !ok {
		t.Fatalf("expected wildcard pattern, got %#v", me.Arms[2].Pat)
	}
}

func TestTupleAndParen(t *testing.T) {
	if _, ok := firstLetValue(t, "(1, 2, 3)").(*ast.TupleExpr); !ok {
		t.Fatal("expected tuple expr")
	}
	if _, ok := firstLetValue(t, "(1)").(*ast.ParenExpr); !ok {
		t.Fatal("expected paren expr for single element")
	}
	tup, ok := firstLetValue(t, "()").(*ast.TupleExpr)
	if !ok || len(tup.Elems) != 0 {
		t.Fatal("expected empty tuple expr")
	}
}

func TestAssignTargetMustBeVariable(t *testing.T) {
	_, err := Parse("fn f() { 1 + 2 = 3; }")
	perr, ok := err.(*Error)
	if !ok || perr.KindTag != ErrAssignTargetNotVariable {
		t.Fatalf("expected AssignTargetNotVariable, got %v", err)
	}
}

func TestNestingDepthExceeded(t *testing.T) {
	src := "let x = " + strings.Repeat("(", 600) + "1" + strings.Repeat(")", 600) + ";"
	_, err := Parse(src)
	perr, ok := err.(*Error)
	if !ok || perr.KindTag != ErrNestingDepthExceeded {
		t.Fatalf("expected NestingDepthExceeded, got %v", err)
	}
}

func TestLexerErrorPropagates(t *testing.T) {
	_, err := Parse(`let s = "unterminated;`)
	perr, ok := err.(*Error)
	if !ok || perr.KindTag != ErrLexer {
		t.Fatalf("expected LexerError, got %v", err)
	}
}

func TestUnexpectedTopLevel(t *testing.T) {
	_, err := Parse("42;")
	perr, ok := err.(*Error)
	if !ok || perr.KindTag != ErrUnexpectedTopLevel {
		t.Fatalf("expected UnexpectedTopLevel, got %v", err)
	}
}

// Span monotonicity: every child span lies within its parent's.
func TestSpanMonotonicity(t *testing.T) {
	src := `
fn f(a: Int) -> Int {
  let y = if a < 10 { a * 2 } else { a - 1 };
  while a > 0 { g(a); };
  y + a
}
`
	m := parseOK(t, src)
	fn := m.Items[0].(*ast.Fn)
	if !spanWithin(fn.Span, m.Span) {
		t.Fatalf("fn span %v outside module span %v", fn.Span, m.Span)
	}
	checkExprSpans(t, fn.Body.Tail, fn.Body.Span)
	for _, stmt := range fn.Body.Stmts {
		if !spanWithin(stmt.StmtSpan(), fn.Body.Span) {
			t.Errorf("stmt span %v outside block span %v", stmt.StmtSpan(), fn.Body.Span)
		}
	}
}

func checkExprSpans(t *testing.T, e ast.Expr, parent ast.Span) {
	t.Helper()
	if e == nil {
		return
	}
	if !spanWithin(e.ExprSpan(), parent) {
		t.Errorf("expr span %v outside parent %v (%T)", e.ExprSpan(), parent, e)
	}
	if bin, ok := e.(*ast.BinaryExpr); ok {
		checkExprSpans(t, bin.Lhs, bin.Span)
		checkExprSpans(t, bin.Rhs, bin.Span)
	}
}

func spanWithin(child, parent ast.Span) bool {
	return child.Start >= parent.Start && child.End <= parent.End
}

// Parse determinism: the same source yields structurally identical ASTs.
func TestParseDeterminism(t *testing.T) {
	src := `
enum Color { Red, Green, Blue }
fn pick(c: Color) -> Int {
  match c { Color::Red => 0, Color::Green => 1, Color::Blue => 2 }
}
let x = pick(Color::Red);
`
	a := parseOK(t, src)
	b := parseOK(t, src)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("parsing the same source twice produced different ASTs")
	}
}
