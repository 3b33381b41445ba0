package types

import (
	"reflect"
	"testing"
)

func TestKindClassification(t *testing.T) {
	tests := []struct {
		name string
		ty   Ty
		want Kind
	}{
		{"int", TyInt, Unrestricted},
		{"cap", &TyCap{Kind: CapFs}, Affine},
		{"tuple with cap", &TyTuple{Elems: []Ty{TyInt, &TyCap{Kind: CapNet}}}, Affine},
		{"tuple without cap", &TyTuple{Elems: []Ty{TyInt, TyBool}}, Unrestricted},
		{"list of caps", &TyList{Elem: &TyCap{Kind: CapTime}}, Affine},
		{"borrowed cap", &TyRef{Inner: &TyCap{Kind: CapFs}}, Unrestricted},
		{"arrow wanting cap", &TyArrow{Params: []Ty{&TyCap{Kind: CapFs}}, Ret: TyUnit, Effects: EmptyRow()}, Unrestricted},
		{"adt", &TyAdt{Name: "Color"}, Unrestricted},
	}
	for _, tt := range tests {
		if got := KindOf(tt.ty); got != tt.want {
			t.Errorf("%s: KindOf = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestContainsCapability(t *testing.T) {
	if ContainsCapability(TyInt) {
		t.Error("Int should not contain a capability")
	}
	if !ContainsCapability(&TyAdt{Name: "Option", Args: []Ty{&TyCap{Kind: CapFs}}}) {
		t.Error("Option<FsCap> should contain a capability")
	}
	if !ContainsCapability(&TyArrow{Params: []Ty{&TyCap{Kind: CapNet}}, Ret: TyUnit, Effects: EmptyRow()}) {
		t.Error("arrow over NetCap should contain a capability")
	}
	name, ok := FindCapabilityName(&TyTuple{Elems: []Ty{TyInt, &TyCap{Kind: CapTime}}})
	if !ok || name != "TimeCap" {
		t.Errorf("FindCapabilityName = %q, %v", name, ok)
	}
}

func TestEffectRows(t *testing.T) {
	row := ClosedRow(CapFs, CapNet)
	if !row.Has(CapFs) || !row.Has(CapNet) || row.Has(CapTime) {
		t.Fatalf("unexpected row contents: %s", row)
	}
	if row.String() != "{Fs, Net}" {
		t.Errorf("row rendering: %s", row)
	}
	open := OpenRow(CapFs.CapBit(), 3)
	if open.Tail == nil || *open.Tail != 3 {
		t.Fatalf("open row tail: %v", open.Tail)
	}
}

func TestSubstIdempotence(t *testing.T) {
	s := NewSubst()
	s.BindType(0, &TyVar{ID: 1})
	s.BindType(1, TyInt)
	tail := EffectVarID(7)
	s.BindEffect(7, ClosedRow(CapFs))

	ty := &TyArrow{
		Params:  []Ty{&TyVar{ID: 0}, &TyTuple{Elems: []Ty{&TyVar{ID: 1}}}},
		Ret:     &TyList{Elem: &TyVar{ID: 0}},
		Effects: EffectRow{Concrete: 0, Tail: &tail},
	}
	once := s.ApplyTy(ty)
	twice := s.ApplyTy(once)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("substitution not idempotent:\nonce:  %s\ntwice: %s", once, twice)
	}
	arrow := once.(*TyArrow)
	if arrow.Params[0] != TyInt {
		t.Errorf("chain not resolved: %s", arrow.Params[0])
	}
	if arrow.Effects.Tail != nil || !arrow.Effects.Has(CapFs) {
		t.Errorf("effect row not resolved: %s", arrow.Effects)
	}
}

func TestGeneralizeAndInstantiate(t *testing.T) {
	// t0 -> t0 generalizes to ∀t0 when the environment holds nothing.
	ty := &TyArrow{Params: []Ty{&TyVar{ID: 0}}, Ret: &TyVar{ID: 0}, Effects: EmptyRow()}
	sch := Generalize(ty, nil, nil)
	if len(sch.TypeVars) != 1 || sch.TypeVars[0] != 0 {
		t.Fatalf("expected one bound var, got %v", sch.TypeVars)
	}

	inst, err := Instantiate(sch, []Ty{&TyVar{ID: 100}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	arrow := inst.(*TyArrow)
	p, ok := arrow.Params[0].(*TyVar)
	if !ok || p.ID != 100 {
		t.Fatalf("expected fresh var 100, got %s", arrow.Params[0])
	}
	r := arrow.Ret.(*TyVar)
	if r.ID != 100 {
		t.Fatalf("param and return should share the fresh var, got %s", arrow.Ret)
	}
}

func TestGeneralizeRespectsEnvironment(t *testing.T) {
	ty := &TyArrow{Params: []Ty{&TyVar{ID: 0}}, Ret: &TyVar{ID: 1}, Effects: EmptyRow()}
	sch := Generalize(ty, map[TyVarID]bool{0: true}, nil)
	if len(sch.TypeVars) != 1 || sch.TypeVars[0] != 1 {
		t.Fatalf("expected only t1 generalized, got %v", sch.TypeVars)
	}
}

func TestInstantiateArityMismatch(t *testing.T) {
	sch := &Scheme{TypeVars: []TyVarID{0}, Ty: &TyVar{ID: 0}}
	_, err := Instantiate(sch, nil, nil)
	if _, ok := err.(*InstantiationArityMismatchError); !ok {
		t.Fatalf("expected InstantiationArityMismatchError, got %v", err)
	}
}

func TestInstantiateEffectVars(t *testing.T) {
	tail := EffectVarID(0)
	sch := &Scheme{
		TypeVars:   []TyVarID{0},
		EffectVars: []EffectVarID{0},
		Ty: &TyArrow{
			Params:  []Ty{&TyVar{ID: 0}},
			Ret:     &TyVar{ID: 0},
			Effects: EffectRow{Tail: &tail},
		},
	}
	inst, err := Instantiate(sch, []Ty{&TyVar{ID: 50}}, []EffectVarID{51})
	if err != nil {
		t.Fatal(err)
	}
	arrow := inst.(*TyArrow)
	if arrow.Effects.Tail == nil || *arrow.Effects.Tail != 51 {
		t.Fatalf("effect tail not refreshed: %s", arrow.Effects)
	}
}

func TestRegistryBuiltinsAndVariants(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"Tuple2", "Tuple5", "Tuple8"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("missing builtin %s", name)
		}
	}
	if _, ok := r.Lookup("Tuple9"); ok {
		t.Error("Tuple9 should not exist")
	}

	r.Define(&AdtSig{
		Name:   "Option",
		IsEnum: true,
		Variants: []VariantSig{
			{Name: "Some", Fields: []Ty{TyInt}},
			{Name: "None"},
		},
	})
	sig, variant, ok := r.ResolveVariant([]string{"Option", "Some"})
	if !ok || sig.Name != "Option" || variant.Name != "Some" {
		t.Fatalf("qualified variant lookup failed")
	}
	sig, variant, ok = r.ResolveVariant([]string{"None"})
	if !ok || sig.Name != "Option" || variant.Name != "None" {
		t.Fatalf("bare variant lookup failed")
	}
	if _, _, ok := r.ResolveVariant([]string{"Missing"}); ok {
		t.Fatal("unknown variant should not resolve")
	}
}
