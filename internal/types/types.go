// Package types defines Strata's internal type representation: the Ty
// lattice, effect rows, capability kinds, polymorphic schemes, and the ADT
// registry the checker consults when resolving struct/enum names (§4.3,
// §4.4 of the spec).
package types

import (
	"fmt"
	"strings"
)

// TyVarID names a unification type variable.
type TyVarID uint64

// EffectVarID names a unification effect-row variable.
type EffectVarID uint64

// CapKind enumerates the five fixed capability/effect kinds (§4.4). This set
// is closed: the checker and evaluator both switch exhaustively over it.
type CapKind int

const (
	CapFs CapKind = iota
	CapNet
	CapTime
	CapRand
	CapAi
)

var capNames = [...]string{"Fs", "Net", "Time", "Rand", "Ai"}

func (k CapKind) String() string { return capNames[k] }

// CapBit returns the bit this capability occupies in an effect row's
// concrete mask.
func (k CapKind) CapBit() uint64 { return 1 << uint(k) }

// LookupCapKind maps an effect name appearing in source (`& {Fs, Net}`) to
// its CapKind, or ok=false if the name isn't one of the fixed five.
func LookupCapKind(name string) (CapKind, bool) {
	for i, n := range capNames {
		if n == name {
			return CapKind(i), true
		}
	}
	return 0, false
}

// CapTypeName returns the built-in capability type name for kind, e.g.
// "FsCap" for CapFs. These are the nominal types Rule C parameters must use.
func (k CapKind) CapTypeName() string { return k.String() + "Cap" }

// EffectRow is a concrete bitmask over the five CapKinds plus an optional
// open tail variable, following the Rémy-style row representation used by
// the solver.
type EffectRow struct {
	Concrete uint64
	Tail     *EffectVarID // nil means the row is closed
}

// ClosedRow builds a closed row from a set of kinds.
func ClosedRow(kinds ...CapKind) EffectRow {
	var mask uint64
	for _, k := range kinds {
		mask |= k.CapBit()
	}
	return EffectRow{Concrete: mask}
}

// EmptyRow is the empty, closed effect row (pure).
func EmptyRow() EffectRow { return EffectRow{} }

// ClosedRowMask builds a closed row directly from a bitmask.
func ClosedRowMask(mask uint64) EffectRow { return EffectRow{Concrete: mask} }

// OpenRow builds a row with the given concrete bits and an open tail.
func OpenRow(mask uint64, tail EffectVarID) EffectRow {
	return EffectRow{Concrete: mask, Tail: &tail}
}

// Has reports whether kind's bit is set in the concrete part of the row.
func (r EffectRow) Has(kind CapKind) bool { return r.Concrete&kind.CapBit() != 0 }

// Kinds returns the concrete kinds set in the row, in CapKind order.
func (r EffectRow) Kinds() []CapKind {
	var out []CapKind
	for k := CapFs; k <= CapAi; k++ {
		if r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (r EffectRow) String() string {
	var parts []string
	for _, k := range r.Kinds() {
		parts = append(parts, k.String())
	}
	if r.Tail != nil {
		parts = append(parts, fmt.Sprintf("e%d..", *r.Tail))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Ty is the type lattice. Each variant is a concrete struct implementing
// this marker interface, mirroring the AST's tagged-union-via-interface
// style rather than a single struct with a Kind discriminant.
type Ty interface {
	tyNode()
	String() string
}

// TyVar is an unbound (or as-yet-unsubstituted) unification variable.
type TyVar struct{ ID TyVarID }

func (*TyVar) tyNode()        {}
func (t *TyVar) String() string { return fmt.Sprintf("t%d", t.ID) }

// TyConst is a nullary base type: Int, Float, Bool, String, Unit, or a
// zero-argument ADT name.
type TyConst struct{ Name string }

func (*TyConst) tyNode()        {}
func (t *TyConst) String() string { return t.Name }

// Built-in base types.
var (
	TyInt    = &TyConst{Name: "Int"}
	TyFloat  = &TyConst{Name: "Float"}
	TyBool   = &TyConst{Name: "Bool"}
	TyString = &TyConst{Name: "String"}
	TyUnit   = &TyConst{Name: "Unit"}
)

// TyArrow is a function type with an effect row.
type TyArrow struct {
	Params  []Ty
	Ret     Ty
	Effects EffectRow
}

func (*TyArrow) tyNode() {}
func (t *TyArrow) String() string {
	parts := make([]string, len(t.Params))
	for i, p := range t.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("fn(%s) -> %s & %s", strings.Join(parts, ", "), t.Ret.String(), t.Effects.String())
}

// TyTuple is a fixed-arity tuple type (2..8 elements; built from the
// built-in TupleN ADT family).
type TyTuple struct{ Elems []Ty }

func (*TyTuple) tyNode() {}
func (t *TyTuple) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// TyList is a homogeneous list type `List<T>`.
type TyList struct{ Elem Ty }

func (*TyList) tyNode()          {}
func (t *TyList) String() string { return "[" + t.Elem.String() + "]" }

// TyAdt is an applied struct/enum type, e.g. `Option<Int>` or `Color`.
type TyAdt struct {
	Name string
	Args []Ty
}

func (*TyAdt) tyNode() {}
func (t *TyAdt) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", t.Name, strings.Join(parts, ", "))
}

// TyCap is a capability token type, e.g. FsCap. Rule A forbids this type
// from appearing transitively inside any ADT's fields.
type TyCap struct{ Kind CapKind }

func (*TyCap) tyNode()        {}
func (t *TyCap) String() string { return t.Kind.CapTypeName() }

// TyRef is a borrowed reference `&T`.
type TyRef struct{ Inner Ty }

func (*TyRef) tyNode()        {}
func (t *TyRef) String() string { return "&" + t.Inner.String() }

// TyNever is the type of a diverging expression (e.g. following a
// `return`), unifiable with anything.
type TyNever struct{}

func (*TyNever) tyNode()        {}
func (*TyNever) String() string { return "!" }

// Scheme is a type generalized over type and effect variables:
// ∀ type_vars ∀ effect_vars. Ty
type Scheme struct {
	TypeVars   []TyVarID
	EffectVars []EffectVarID
	Ty         Ty
}

// Mono wraps a Ty with no bound variables.
func Mono(ty Ty) *Scheme { return &Scheme{Ty: ty} }
