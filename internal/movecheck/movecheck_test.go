package movecheck

import (
	"testing"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/parser"
	"github.com/strata-lang/strata/internal/types"
)

// fnBody parses src and returns the first Fn item's body.
func fnBody(t *testing.T, src string) *ast.Fn {
	t.Helper()
	m, err := parser.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, item := range m.Items {
		if fn, ok := item.(*ast.Fn); ok {
			return fn
		}
	}
	t.Fatal("no fn in source")
	return nil
}

func capParam(name string, kind types.CapKind) Param {
	return Param{Name: name, Type: &types.TyCap{Kind: kind}}
}

func emptyEnv() map[string]*types.Scheme {
	return map[string]*types.Scheme{}
}

// consumeEnv maps name to a monomorphic (Cap, String) -> String scheme that
// consumes its capability argument.
func consumeEnv(name string, kind types.CapKind) map[string]*types.Scheme {
	return map[string]*types.Scheme{
		name: types.Mono(&types.TyArrow{
			Params:  []types.Ty{&types.TyCap{Kind: kind}, types.TyString},
			Ret:     types.TyString,
			Effects: types.ClosedRow(kind),
		}),
	}
}

func TestSingleUseAccepted(t *testing.T) {
	fn := fnBody(t, `fn main(fs: FsCap) { take(fs, "/x"); }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	if err != nil {
		t.Fatalf("single use should be accepted: %v", err)
	}
}

func TestDoubleUseRejected(t *testing.T) {
	fn := fnBody(t, `fn main(fs: FsCap) { take(fs, "/x"); take(fs, "/y"); }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	used, ok := err.(*AlreadyUsedError)
	if !ok {
		t.Fatalf("expected AlreadyUsedError, got %v", err)
	}
	if used.Name != "fs" {
		t.Fatalf("wrong binding reported: %s", used.Name)
	}
	if used.FirstUse.Start >= used.SecondUse.Start {
		t.Fatalf("first use %v should precede second %v", used.FirstUse, used.SecondUse)
	}
}

func TestBorrowDoesNotConsume(t *testing.T) {
	fn := fnBody(t, `fn main(fs: FsCap) { read(&fs, "/x"); read(&fs, "/y"); }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, emptyEnv())
	if err != nil {
		t.Fatalf("borrows should never consume: %v", err)
	}
}

func TestConsumptionVisibleAcrossArguments(t *testing.T) {
	// Left-to-right argument order: fs consumed by the first argument is
	// gone for the second.
	fn := fnBody(t, `fn main(fs: FsCap) { pair(fs, fs); }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, emptyEnv())
	if _, ok := err.(*AlreadyUsedError); !ok {
		t.Fatalf("expected AlreadyUsedError, got %v", err)
	}
}

func TestBranchesCheckedFromSnapshot(t *testing.T) {
	// Each branch may consume fs once; only one branch runs.
	fn := fnBody(t, `fn main(fs: FsCap, c: Bool) { if c { take(fs, "/a"); } else { take(fs, "/b"); } }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	if err != nil {
		t.Fatalf("one consume per branch should be accepted: %v", err)
	}
}

func TestPessimisticJoinAfterBranch(t *testing.T) {
	// Consumed in the then-branch means consumed after the if.
	fn := fnBody(t, `fn main(fs: FsCap, c: Bool) {
  if c { take(fs, "/a"); };
  take(fs, "/b");
}`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	if _, ok := err.(*AlreadyUsedError); !ok {
		t.Fatalf("expected AlreadyUsedError after pessimistic join, got %v", err)
	}
}

func TestUseInLoopRejected(t *testing.T) {
	fn := fnBody(t, `fn main(fs: FsCap) { while true { take(fs, "/x"); } }`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	loop, ok := err.(*UsedInLoopError)
	if !ok {
		t.Fatalf("expected UsedInLoopError, got %v", err)
	}
	if loop.Name != "fs" {
		t.Fatalf("wrong binding reported: %s", loop.Name)
	}
}

func TestShadowingDoesNotAliasTracking(t *testing.T) {
	// The inner let introduces a fresh unrestricted binding named fs; using
	// it twice is fine, and must not be confused with the outer capability.
	fn := fnBody(t, `fn main(fs: FsCap) {
  let fs = 1;
  let a = fs + fs;
}`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, emptyEnv())
	if err != nil {
		t.Fatalf("shadowed binding should not alias: %v", err)
	}
}

func TestPolymorphicReturnTracksAffinity(t *testing.T) {
	// identity(cap) returns the capability; using the result twice is a
	// double use of an affine value.
	env := map[string]*types.Scheme{
		"identity": {
			TypeVars: []types.TyVarID{0},
			Ty: &types.TyArrow{
				Params:  []types.Ty{&types.TyVar{ID: 0}},
				Ret:     &types.TyVar{ID: 0},
				Effects: types.EmptyRow(),
			},
		},
	}
	fn := fnBody(t, `fn main(fs: FsCap) {
  let g = identity(fs);
  use1(g);
  use2(g);
}`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, env)
	if _, ok := err.(*AlreadyUsedError); !ok {
		t.Fatalf("expected AlreadyUsedError through identity, got %v", err)
	}
}

func TestMatchArmsJoinPessimistically(t *testing.T) {
	fn := fnBody(t, `fn main(fs: FsCap, n: Int) {
  match n { 0 => take(fs, "/a"), _ => 1 };
  take(fs, "/b");
}`)
	err := CheckFunctionBody([]Param{capParam("fs", types.CapFs)}, fn.Body, consumeEnv("take", types.CapFs))
	if _, ok := err.(*AlreadyUsedError); !ok {
		t.Fatalf("expected AlreadyUsedError after match join, got %v", err)
	}
}
