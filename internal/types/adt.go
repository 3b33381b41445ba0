package types

import "fmt"

// FieldSig describes one struct field's declared type.
type FieldSig struct {
	Name string
	Type Ty
}

// VariantSig describes one enum variant's positional field types.
type VariantSig struct {
	Name   string
	Fields []Ty
}

// AdtSig is a registered struct or enum declaration, generalized over its
// own type parameters (instantiated fresh at each use site by the checker).
type AdtSig struct {
	Name       string
	TypeParams []TyVarID
	IsEnum     bool
	Fields     []FieldSig   // struct only
	Variants   []VariantSig // enum only
}

// Registry holds every struct/enum declared in a module, seeded with the
// built-in Tuple2..Tuple8 family. TyTuple stays a first-class Ty variant;
// the seeded entries give tuple patterns a nominal constructor to desugar to.
type Registry struct {
	adts map[string]*AdtSig
	// variantOwner maps a variant name back to its enclosing enum, since
	// variant patterns/constructors are referenced unqualified inside match
	// arms and qualified at definition sites.
	variantOwner map[string]string
}

// NewRegistry builds a Registry pre-seeded with the builtin tuples.
func NewRegistry() *Registry {
	r := &Registry{adts: map[string]*AdtSig{}, variantOwner: map[string]string{}}
	for n := 2; n <= 8; n++ {
		sig := &AdtSig{Name: fmt.Sprintf("Tuple%d", n)}
		for i := 0; i < n; i++ {
			v := TyVarID(i)
			sig.TypeParams = append(sig.TypeParams, v)
			sig.Fields = append(sig.Fields, FieldSig{Name: fmt.Sprintf("_%d", i), Type: &TyVar{ID: v}})
		}
		r.Define(sig)
	}
	return r
}

// Define registers a struct or enum signature.
func (r *Registry) Define(sig *AdtSig) {
	r.adts[sig.Name] = sig
	for _, v := range sig.Variants {
		r.variantOwner[v.Name] = sig.Name
	}
}

// Lookup resolves an ADT by name.
func (r *Registry) Lookup(name string) (*AdtSig, bool) {
	s, ok := r.adts[name]
	return s, ok
}

// ResolveVariant resolves a bare or qualified variant reference to its
// owning enum signature and the variant itself.
func (r *Registry) ResolveVariant(path []string) (*AdtSig, *VariantSig, bool) {
	var enumName, variantName string
	switch len(path) {
	case 1:
		variantName = path[0]
		owner, ok := r.variantOwner[variantName]
		if !ok {
			return nil, nil, false
		}
		enumName = owner
	default:
		enumName = path[len(path)-2]
		variantName = path[len(path)-1]
	}
	sig, ok := r.adts[enumName]
	if !ok || !sig.IsEnum {
		return nil, nil, false
	}
	for i := range sig.Variants {
		if sig.Variants[i].Name == variantName {
			return sig, &sig.Variants[i], true
		}
	}
	return nil, nil, false
}
