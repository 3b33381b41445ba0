package types

// Kind classifies a ground type's use discipline: Unrestricted values may be
// referenced any number of times, Affine values at most once. Capability
// tokens are affine, and affinity is contagious through tuples and lists;
// ADTs can never carry one (Rule A rejects such declarations), so a
// well-formed TyAdt is always unrestricted.
type Kind int

const (
	Unrestricted Kind = iota
	Affine
)

func (k Kind) String() string {
	if k == Affine {
		return "Affine"
	}
	return "Unrestricted"
}

// KindOf classifies ty. Arrows are unrestricted regardless of what their
// parameter types mention: holding a function that wants a capability is not
// the same as holding the capability. A borrowed capability (Ref of Cap) is
// likewise unrestricted, since the borrow never transfers permission.
func KindOf(ty Ty) Kind {
	switch t := ty.(type) {
	case *TyCap:
		return Affine
	case *TyTuple:
		for _, e := range t.Elems {
			if KindOf(e) == Affine {
				return Affine
			}
		}
		return Unrestricted
	case *TyList:
		return KindOf(t.Elem)
	default:
		return Unrestricted
	}
}

// ContainsCapability reports whether ty is or transitively contains a
// capability type, borrowed (&Cap) ones included. Used to enforce Rule A (no
// capabilities in ADT fields).
func ContainsCapability(ty Ty) bool {
	switch t := ty.(type) {
	case *TyCap:
		return true
	case *TyArrow:
		for _, p := range t.Params {
			if ContainsCapability(p) {
				return true
			}
		}
		return ContainsCapability(t.Ret)
	case *TyTuple:
		for _, e := range t.Elems {
			if ContainsCapability(e) {
				return true
			}
		}
		return false
	case *TyList:
		return ContainsCapability(t.Elem)
	case *TyAdt:
		for _, a := range t.Args {
			if ContainsCapability(a) {
				return true
			}
		}
		return false
	case *TyRef:
		return ContainsCapability(t.Inner)
	default:
		return false
	}
}

// FindCapabilityName returns the type name of the first capability found in
// ty's tree, for Rule A diagnostics.
func FindCapabilityName(ty Ty) (string, bool) {
	switch t := ty.(type) {
	case *TyCap:
		return t.Kind.CapTypeName(), true
	case *TyArrow:
		for _, p := range t.Params {
			if name, ok := FindCapabilityName(p); ok {
				return name, true
			}
		}
		return FindCapabilityName(t.Ret)
	case *TyTuple:
		for _, e := range t.Elems {
			if name, ok := FindCapabilityName(e); ok {
				return name, true
			}
		}
		return "", false
	case *TyList:
		return FindCapabilityName(t.Elem)
	case *TyAdt:
		for _, a := range t.Args {
			if name, ok := FindCapabilityName(a); ok {
				return name, true
			}
		}
		return "", false
	case *TyRef:
		return FindCapabilityName(t.Inner)
	default:
		return "", false
	}
}
