// Package exhaust implements exhaustiveness and redundancy analysis for
// match expressions using the specialization/default pattern-matrix
// recursion from Maranget's "Warnings for Pattern Matching".
//
// The analysis runs over a simplified pattern language: wildcard, literal,
// and constructor. Identifier bindings act as wildcards; tuples desugar to
// a TupleN constructor; struct patterns desugar to a constructor carrying
// the struct's fields in declared order; variant patterns use the
// Enum::Variant constructor name. Float literals are treated as wildcards
// since floats are not a finite constructor universe.
package exhaust

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/types"
)

// Analysis bounds. Oversized matrices and runaway recursion are reported as
// specific errors instead of a generic failure.
const (
	maxMatrixSize = 10_000
	maxDepth      = 100
)

// NonExhaustiveError reports a match that misses at least one value shape,
// carrying a constructable witness no arm matches.
type NonExhaustiveError struct {
	Witness string
	SpanV   ast.Span
}

func (e *NonExhaustiveError) Error() string {
	return fmt.Sprintf("match is not exhaustive; uncovered: %s", e.Witness)
}
func (e *NonExhaustiveError) Kind() string   { return "NonExhaustive" }
func (e *NonExhaustiveError) Span() ast.Span { return e.SpanV }

// RedundantArmError reports an arm that can never match.
type RedundantArmError struct {
	Index int
	SpanV ast.Span
}

func (e *RedundantArmError) Error() string {
	return fmt.Sprintf("match arm %d is unreachable", e.Index)
}
func (e *RedundantArmError) Kind() string   { return "RedundantArm" }
func (e *RedundantArmError) Span() ast.Span { return e.SpanV }

// MatrixTooLargeError is the DoS guard for pattern matrices.
type MatrixTooLargeError struct {
	Size  int
	SpanV ast.Span
}

func (e *MatrixTooLargeError) Error() string {
	return fmt.Sprintf("pattern matrix too large (%d cells, limit %d)", e.Size, maxMatrixSize)
}
func (e *MatrixTooLargeError) Kind() string   { return "MatrixTooLarge" }
func (e *MatrixTooLargeError) Span() ast.Span { return e.SpanV }

// DepthExceededError is the DoS guard for analysis recursion.
type DepthExceededError struct {
	SpanV ast.Span
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("pattern analysis recursion exceeded depth %d", maxDepth)
}
func (e *DepthExceededError) Kind() string   { return "DepthExceeded" }
func (e *DepthExceededError) Span() ast.Span { return e.SpanV }

// pat is the simplified pattern language.
type pat interface{ patTag() }

type wildcard struct{}

type literal struct {
	// text is the constructor identity of the literal: "42", "true", `"hi"`.
	text string
}

type constructor struct {
	name string
	args []pat
}

func (wildcard) patTag()    {}
func (literal) patTag()     {}
func (constructor) patTag() {}

// row is one matrix row plus the originating arm index for redundancy
// reporting.
type row struct {
	pats []pat
	arm  int
}

func (r row) rest() []pat { return r.pats[1:] }

// matrix pairs rows with per-column scrutinee types.
type matrix struct {
	rows []row
	cols []types.Ty
}

func (m *matrix) size() int {
	c := len(m.cols)
	if c == 0 {
		c = 1
	}
	return len(m.rows) * c
}

// ctor describes one constructor of a column type.
type ctor struct {
	name string
	args []types.Ty
}

func (c ctor) arity() int { return len(c.args) }

type checker struct {
	registry *types.Registry
	depth    int
	span     ast.Span
}

// CheckMatch analyzes a match expression's arms against the resolved
// scrutinee type. It returns the witness of the first uncovered shape (empty
// string if exhaustive), the indices of redundant arms, and any guard error.
func CheckMatch(arms []ast.MatchArm, scrutTy types.Ty, registry *types.Registry, span ast.Span) (witness string, redundant []int, err error) {
	m := &matrix{cols: []types.Ty{scrutTy}}
	for i, arm := range arms {
		m.rows = append(m.rows, row{pats: []pat{simplify(arm.Pat, registry)}, arm: i})
	}
	c := &checker{registry: registry, span: span}

	w, err := c.exhaustive(m)
	if err != nil {
		return "", nil, err
	}
	if w != nil {
		witness = renderWitness(w)
	}
	redundant, err = c.redundant(m)
	if err != nil {
		return "", nil, err
	}
	return witness, redundant, nil
}

// exhaustive returns nil if the matrix covers every value of its column
// types, or a witness row (one pattern per column) it fails to cover.
func (c *checker) exhaustive(m *matrix) ([]pat, error) {
	if m.size() > maxMatrixSize {
		return nil, &MatrixTooLargeError{Size: m.size(), SpanV: c.span}
	}
	if c.depth > maxDepth {
		return nil, &DepthExceededError{SpanV: c.span}
	}
	c.depth++
	defer func() { c.depth-- }()

	if len(m.cols) == 0 {
		if len(m.rows) == 0 {
			return []pat{}, nil
		}
		return nil, nil
	}
	if len(m.rows) == 0 {
		w := make([]pat, len(m.cols))
		for i := range w {
			w[i] = wildcard{}
		}
		return w, nil
	}

	all := c.constructorsFor(m.cols[0])
	used := usedConstructors(m)

	if completeSignature(all, used) {
		for _, ct := range all {
			spec := c.specializeMatrix(m, ct)
			w, err := c.exhaustive(spec)
			if err != nil {
				return nil, err
			}
			if w != nil {
				return rebuildWitness(ct, w), nil
			}
		}
		return nil, nil
	}

	def := defaultMatrix(m)
	w, err := c.exhaustive(def)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	if missing, ok := findMissing(all, used); ok {
		args := make([]pat, missing.arity())
		for i := range args {
			args[i] = wildcard{}
		}
		return append([]pat{constructor{name: missing.name, args: args}}, w...), nil
	}
	return append([]pat{wildcard{}}, w...), nil
}

// redundant returns arm indices whose row is not useful against the matrix
// of the preceding arms.
func (c *checker) redundant(m *matrix) ([]int, error) {
	var out []int
	for i := range m.rows {
		preceding := &matrix{rows: m.rows[:i], cols: m.cols}
		useful, err := c.useful(preceding, m.rows[i])
		if err != nil {
			return nil, err
		}
		if !useful {
			out = append(out, m.rows[i].arm)
		}
	}
	return out, nil
}

func (c *checker) useful(m *matrix, r row) (bool, error) {
	if m.size() > maxMatrixSize {
		return false, &MatrixTooLargeError{Size: m.size(), SpanV: c.span}
	}
	if c.depth > maxDepth {
		return false, &DepthExceededError{SpanV: c.span}
	}
	c.depth++
	defer func() { c.depth-- }()

	if len(m.cols) == 0 || len(r.pats) == 0 {
		return len(m.rows) == 0, nil
	}

	switch p := r.pats[0].(type) {
	case wildcard:
		all := c.constructorsFor(m.cols[0])
		used := usedConstructors(m)
		if completeSignature(all, used) {
			for _, ct := range all {
				sr, ok := specializeRow(r, ct)
				if !ok {
					continue
				}
				u, err := c.useful(c.specializeMatrix(m, ct), sr)
				if err != nil {
					return false, err
				}
				if u {
					return true, nil
				}
			}
			return false, nil
		}
		return c.useful(defaultMatrix(m), row{pats: r.rest(), arm: r.arm})

	case constructor:
		ct := c.lookupConstructor(m.cols[0], p.name, len(p.args))
		sr, _ := specializeRow(r, ct)
		return c.useful(c.specializeMatrix(m, ct), sr)

	case literal:
		ct := ctor{name: p.text}
		sr, _ := specializeRow(r, ct)
		return c.useful(c.specializeMatrix(m, ct), sr)
	}
	return false, nil
}

// constructorsFor returns the full constructor set of ty, or nil when the
// type's constructor universe is infinite or unknown (Int, Float, String,
// type variables, arrows).
func (c *checker) constructorsFor(ty types.Ty) []ctor {
	switch t := ty.(type) {
	case *types.TyConst:
		if t.Name == "Bool" {
			return []ctor{{name: "true"}, {name: "false"}}
		}
		return nil
	case *types.TyTuple:
		return []ctor{{name: fmt.Sprintf("Tuple%d", len(t.Elems)), args: t.Elems}}
	case *types.TyAdt:
		sig, ok := c.registry.Lookup(t.Name)
		if !ok {
			return nil
		}
		if sig.IsEnum {
			out := make([]ctor, 0, len(sig.Variants))
			for _, v := range sig.Variants {
				args := make([]types.Ty, len(v.Fields))
				for i, f := range v.Fields {
					args[i] = instantiateAdtField(f, sig.TypeParams, t.Args)
				}
				out = append(out, ctor{name: sig.Name + "::" + v.Name, args: args})
			}
			return out
		}
		args := make([]types.Ty, len(sig.Fields))
		for i, f := range sig.Fields {
			args[i] = instantiateAdtField(f.Type, sig.TypeParams, t.Args)
		}
		return []ctor{{name: sig.Name, args: args}}
	default:
		return nil
	}
}

func (c *checker) lookupConstructor(ty types.Ty, name string, arity int) ctor {
	for _, ct := range c.constructorsFor(ty) {
		if ct.name == name && ct.arity() == arity {
			return ct
		}
	}
	args := make([]types.Ty, arity)
	for i := range args {
		args[i] = &types.TyVar{ID: 0}
	}
	return ctor{name: name, args: args}
}

// instantiateAdtField substitutes an ADT's type parameters with the applied
// type arguments inside one field type.
func instantiateAdtField(field types.Ty, params []types.TyVarID, args []types.Ty) types.Ty {
	if len(params) == 0 || len(args) == 0 {
		return field
	}
	sub := map[types.TyVarID]types.Ty{}
	for i, p := range params {
		if i < len(args) {
			sub[p] = args[i]
		}
	}
	return types.SubstituteVars(field, sub, nil)
}

func usedConstructors(m *matrix) map[string]bool {
	used := map[string]bool{}
	for _, r := range m.rows {
		if len(r.pats) == 0 {
			continue
		}
		switch p := r.pats[0].(type) {
		case constructor:
			used[p.name] = true
		case literal:
			used[p.text] = true
		}
	}
	return used
}

func completeSignature(all []ctor, used map[string]bool) bool {
	if len(all) == 0 {
		return false
	}
	for _, ct := range all {
		if !used[ct.name] {
			return false
		}
	}
	return true
}

func findMissing(all []ctor, used map[string]bool) (ctor, bool) {
	for _, ct := range all {
		if !used[ct.name] {
			return ct, true
		}
	}
	return ctor{}, false
}

// specializeMatrix keeps rows whose first pattern matches ct and replaces it
// with its sub-patterns, per the specialization step.
func (c *checker) specializeMatrix(m *matrix, ct ctor) *matrix {
	out := &matrix{}
	out.cols = append(out.cols, ct.args...)
	if len(m.cols) > 1 {
		out.cols = append(out.cols, m.cols[1:]...)
	}
	for _, r := range m.rows {
		if sr, ok := specializeRow(r, ct); ok {
			out.rows = append(out.rows, sr)
		}
	}
	return out
}

func specializeRow(r row, ct ctor) (row, bool) {
	if len(r.pats) == 0 {
		return row{arm: r.arm}, true
	}
	switch p := r.pats[0].(type) {
	case wildcard:
		pats := make([]pat, 0, ct.arity()+len(r.pats)-1)
		for i := 0; i < ct.arity(); i++ {
			pats = append(pats, wildcard{})
		}
		pats = append(pats, r.rest()...)
		return row{pats: pats, arm: r.arm}, true
	case constructor:
		if p.name != ct.name {
			return row{}, false
		}
		pats := make([]pat, 0, len(p.args)+len(r.pats)-1)
		pats = append(pats, p.args...)
		pats = append(pats, r.rest()...)
		return row{pats: pats, arm: r.arm}, true
	case literal:
		if p.text != ct.name {
			return row{}, false
		}
		return row{pats: append([]pat{}, r.rest()...), arm: r.arm}, true
	}
	return row{}, false
}

// defaultMatrix keeps rows whose first pattern is a wildcard, dropping the
// first column.
func defaultMatrix(m *matrix) *matrix {
	out := &matrix{}
	if len(m.cols) > 1 {
		out.cols = m.cols[1:]
	}
	for _, r := range m.rows {
		if len(r.pats) == 0 {
			continue
		}
		if _, ok := r.pats[0].(wildcard); ok {
			out.rows = append(out.rows, row{pats: r.rest(), arm: r.arm})
		}
	}
	return out
}

// rebuildWitness prepends ct to a recursive witness, absorbing the leading
// arity() entries as the constructor's arguments.
func rebuildWitness(ct ctor, inner []pat) []pat {
	n := ct.arity()
	if n > len(inner) {
		n = len(inner)
	}
	head := constructor{name: ct.name, args: inner[:n]}
	return append([]pat{head}, inner[n:]...)
}

// simplify lowers an AST pattern into the analysis language. Struct patterns
// reorder their fields into the struct's declared order, filling omitted
// fields with wildcards.
func simplify(p ast.Pat, registry *types.Registry) pat {
	switch pt := p.(type) {
	case *ast.WildcardPat, *ast.IdentPat:
		return wildcard{}
	case *ast.LitPat:
		switch pt.Kind {
		case ast.LitInt:
			return literal{text: strconv.FormatInt(pt.Int, 10)}
		case ast.LitBool:
			return literal{text: strconv.FormatBool(pt.Bool)}
		case ast.LitString:
			return literal{text: strconv.Quote(pt.String)}
		case ast.LitNil:
			return constructor{name: "()"}
		default: // floats are not a finite constructor universe
			return wildcard{}
		}
	case *ast.TuplePat:
		args := make([]pat, len(pt.Elems))
		for i, sub := range pt.Elems {
			args[i] = simplify(sub, registry)
		}
		return constructor{name: fmt.Sprintf("Tuple%d", len(args)), args: args}
	case *ast.VariantPat:
		name := variantCtorName(pt.Path, registry)
		args := make([]pat, len(pt.Sub))
		for i, sub := range pt.Sub {
			args[i] = simplify(sub, registry)
		}
		return constructor{name: name, args: args}
	case *ast.StructPat:
		name := pt.Path[len(pt.Path)-1]
		sig, ok := registry.Lookup(name)
		if !ok {
			args := make([]pat, len(pt.Fields))
			for i, f := range pt.Fields {
				args[i] = simplify(f.Pat, registry)
			}
			return constructor{name: name, args: args}
		}
		args := make([]pat, len(sig.Fields))
		for i, field := range sig.Fields {
			args[i] = wildcard{}
			for _, f := range pt.Fields {
				if f.Name == field.Name {
					args[i] = simplify(f.Pat, registry)
					break
				}
			}
		}
		return constructor{name: name, args: args}
	default:
		return wildcard{}
	}
}

// variantCtorName normalizes a variant path to Enum::Variant, resolving a
// bare variant name through the registry.
func variantCtorName(path []string, registry *types.Registry) string {
	if sig, variant, ok := registry.ResolveVariant(path); ok {
		return sig.Name + "::" + variant.Name
	}
	return strings.Join(path, "::")
}

func renderWitness(w []pat) string {
	if len(w) == 0 {
		return "_"
	}
	if len(w) == 1 {
		return renderPat(w[0])
	}
	parts := make([]string, len(w))
	for i, p := range w {
		parts[i] = renderPat(p)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func renderPat(p pat) string {
	switch pt := p.(type) {
	case wildcard:
		return "_"
	case literal:
		return pt.text
	case constructor:
		if strings.HasPrefix(pt.name, "Tuple") && len(pt.args) > 0 {
			parts := make([]string, len(pt.args))
			for i, a := range pt.args {
				parts[i] = renderPat(a)
			}
			return "(" + strings.Join(parts, ", ") + ")"
		}
		if len(pt.args) == 0 {
			return pt.name
		}
		parts := make([]string, len(pt.args))
		for i, a := range pt.args {
			parts[i] = renderPat(a)
		}
		return pt.name + "(" + strings.Join(parts, ", ") + ")"
	}
	return "_"
}
