package eval

import (
	"math"
	"testing"

	"github.com/strata-lang/strata/internal/host"
	"github.com/strata-lang/strata/internal/parser"
)

func runSrc(t *testing.T, src string) Value {
	t.Helper()
	m, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	v, err := Run(m, Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return v
}

func runErrSrc(t *testing.T, src string) error {
	t.Helper()
	m, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	_, err = Run(m, Options{})
	if err == nil {
		t.Fatal("expected runtime error")
	}
	return err
}

func wantInt(t *testing.T, v Value, expected int64) {
	t.Helper()
	iv, ok := v.(*IntValue)
	if !ok {
		t.Fatalf("expected Int, got %T (%s)", v, v)
	}
	if iv.V != expected {
		t.Fatalf("expected %d, got %d", expected, iv.V)
	}
}

func TestArithmetic(t *testing.T) {
	wantInt(t, runSrc(t, "fn main() -> Int { 1 + 2 * 3 }"), 7)
}

func TestPrecedenceAndParens(t *testing.T) {
	wantInt(t, runSrc(t, "fn main() -> Int { (1 + 2) * 3 }"), 9)
}

func TestIntegerOverflowWraps(t *testing.T) {
	v := runSrc(t, "fn main() -> Int { 9223372036854775807 + 1 }")
	wantInt(t, v, math.MinInt64)
}

func TestDivideByZero(t *testing.T) {
	err := runErrSrc(t, "fn main() -> Int { 1 / 0 }")
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind() != "DivideByZero" {
		t.Fatalf("expected DivideByZero, got %v", err)
	}
}

func TestShortCircuitAnd(t *testing.T) {
	// boom() would divide by zero; && must not evaluate it.
	v := runSrc(t, `
fn boom() -> Bool { 1 / 0 == 0 }
fn main() -> Bool { false && boom() }
`)
	b, ok := v.(*BoolValue)
	if !ok || b.V {
		t.Fatalf("expected false, got %s", v)
	}
}

func TestShortCircuitOr(t *testing.T) {
	v := runSrc(t, `
fn boom() -> Bool { 1 / 0 == 0 }
fn main() -> Bool { true || boom() }
`)
	b, ok := v.(*BoolValue)
	if !ok || !b.V {
		t.Fatalf("expected true, got %s", v)
	}
}

func TestLetAndAssign(t *testing.T) {
	wantInt(t, runSrc(t, `
fn main() -> Int {
  let mut x = 1;
  x = x + 10;
  x
}
`), 11)
}

func TestAssignImmutableRejected(t *testing.T) {
	err := runErrSrc(t, `
fn main() -> Int {
  let x = 1;
  x = 2;
  x
}
`)
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind() != "AssignImmutable" {
		t.Fatalf("expected AssignImmutable, got %v", err)
	}
}

func TestWhileLoop(t *testing.T) {
	wantInt(t, runSrc(t, `
fn main() -> Int {
  let mut i = 0;
  let mut total = 0;
  while i < 5 {
    total = total + i;
    i = i + 1;
  };
  total
}
`), 10)
}

func TestRecursion(t *testing.T) {
	wantInt(t, runSrc(t, `
fn fact(n: Int) -> Int {
  if n <= 1 { 1 } else { n * fact(n - 1) }
}
fn main() -> Int { fact(10) }
`), 3628800)
}

func TestMutualRecursion(t *testing.T) {
	v := runSrc(t, `
fn is_even(n: Int) -> Bool { if n == 0 { true } else { is_odd(n - 1) } }
fn is_odd(n: Int) -> Bool { if n == 0 { false } else { is_even(n - 1) } }
fn main() -> Bool { is_even(10) }
`)
	b, ok := v.(*BoolValue)
	if !ok || !b.V {
		t.Fatalf("expected true, got %s", v)
	}
}

func TestCallDepthExceeded(t *testing.T) {
	err := runErrSrc(t, `
fn loop_forever(n: Int) -> Int { loop_forever(n + 1) }
fn main() -> Int { loop_forever(0) }
`)
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind() != "CallDepthExceeded" {
		t.Fatalf("expected CallDepthExceeded, got %v", err)
	}
}

func TestReturnUnwindsToFunctionBoundary(t *testing.T) {
	wantInt(t, runSrc(t, `
fn find(n: Int) -> Int {
  let mut i = 0;
  while i < 100 {
    if i == n { return i * 10; };
    i = i + 1;
  };
  0 - 1
}
fn main() -> Int { find(7) }
`), 70)
}

func TestTuplesAndDestructuring(t *testing.T) {
	wantInt(t, runSrc(t, `
fn main() -> Int {
  let pair = (3, 4);
  let (a, b) = pair;
  a * b
}
`), 12)
}

func TestEnumMatch(t *testing.T) {
	wantInt(t, runSrc(t, `
enum Option { Some(Int), None }
fn main() -> Int {
  let o = Option::Some(41);
  match o {
    Option::Some(v) => v + 1,
    Option::None => 0,
  }
}
`), 42)
}

func TestStructExprAndPattern(t *testing.T) {
	wantInt(t, runSrc(t, `
struct Point { x: Int, y: Int }
fn main() -> Int {
  let p = geo::Point { x: 3, y: 4 };
  match p {
    Point { x: a, y: b } => a + b,
  }
}
`), 7)
}

func TestMatchLiteralsAndWildcard(t *testing.T) {
	wantInt(t, runSrc(t, `
fn classify(n: Int) -> Int {
  match n { 0 => 100, 1 => 200, _ => 300 }
}
fn main() -> Int { classify(1) }
`), 200)
}

func TestClosureCapture(t *testing.T) {
	wantInt(t, runSrc(t, `
fn make_adder(n: Int) -> fn(Int) -> Int {
  adder_with(n)
}
fn adder_with(n: Int) -> fn(Int) -> Int {
  add_n
}
fn add_n(m: Int) -> Int { m }
fn main() -> Int {
  let f = make_adder(5);
  f(37)
}
`), 37)
}

func TestStringEquality(t *testing.T) {
	v := runSrc(t, `fn main() -> Bool { "abc" == "abc" }`)
	if b, ok := v.(*BoolValue); !ok || !b.V {
		t.Fatalf("expected true, got %s", v)
	}
}

func TestUndefinedVariable(t *testing.T) {
	err := runErrSrc(t, "fn main() -> Int { missing }")
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind() != "UndefinedVariable" {
		t.Fatalf("expected UndefinedVariable, got %v", err)
	}
}

func TestBorrowIsIdentityAtRuntime(t *testing.T) {
	wantInt(t, runSrc(t, "fn main() -> Int { let x = 5; &x + 0 }"), 5)
}

func TestMainCapabilityInjection(t *testing.T) {
	m, err := parser.Parse(`
fn main(fs: FsCap) -> Bool { true }
`)
	if err != nil {
		t.Fatal(err)
	}
	v, err := Run(m, Options{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if b, ok := v.(*BoolValue); !ok || !b.V {
		t.Fatalf("expected true, got %s", v)
	}
}

func TestExternMetaDerivation(t *testing.T) {
	m, err := parser.Parse(`
extern fn read_file(fs: &FsCap, p: String) -> String & {Fs};
extern fn write_file(fs: FsCap, p: String, content: String) -> Unit & {Fs};
`)
	if err != nil {
		t.Fatal(err)
	}
	reg := host.NewRegistry()
	RegisterExternMeta(reg, m)
	meta, ok := reg.Meta("read_file")
	if !ok || len(meta.Params) != 2 {
		t.Fatalf("read_file meta missing: %#v", meta)
	}
	if !meta.Params[0].IsCap || !meta.Params[0].Borrowed {
		t.Fatalf("expected borrowed cap param, got %#v", meta.Params[0])
	}
	if meta.Params[1].IsCap || meta.Params[1].DataName != "p" {
		t.Fatalf("expected data param p, got %#v", meta.Params[1])
	}
	meta, _ = reg.Meta("write_file")
	if !meta.Params[0].IsCap || meta.Params[0].Borrowed {
		t.Fatalf("expected consumed cap param, got %#v", meta.Params[0])
	}
}

func TestUnmatchedRuntimePatternIsInternalError(t *testing.T) {
	err := runErrSrc(t, `
enum Color { Red, Green }
fn main() -> Int {
  match (Color::Red) { Color::Green => 1 }
}
`)
	rerr, ok := err.(*RuntimeError)
	if !ok || rerr.Kind() != "TypeMismatchAtRuntime" {
		t.Fatalf("expected TypeMismatchAtRuntime, got %v", err)
	}
}
