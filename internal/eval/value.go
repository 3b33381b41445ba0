// Package eval implements the deterministic tree-walking interpreter:
// runtime values, lexically scoped environments, control flow, host-function
// dispatch with trace emission, and trace-driven replay.
package eval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/host"
	"github.com/strata-lang/strata/internal/types"
)

// Value is a runtime value.
type Value interface {
	valueNode()
	String() string
}

// IntValue is a signed 64-bit integer; arithmetic wraps two's-complement.
type IntValue struct{ V int64 }

// FloatValue is a 64-bit float.
type FloatValue struct{ V float64 }

// BoolValue is a boolean.
type BoolValue struct{ V bool }

// StrValue is a string.
type StrValue struct{ V string }

// UnitValue is the unit value.
type UnitValue struct{}

// ClosureValue is a function closure capturing a snapshot of its defining
// environment.
type ClosureValue struct {
	Params []string
	Body   *ast.Block
	Env    *Env
}

// TupleValue is a fixed tuple of values.
type TupleValue struct{ Elems []Value }

// StructValue is a named struct with a field map.
type StructValue struct {
	Name   string
	Fields map[string]Value
}

// VariantValue is an enum variant with positional field values.
type VariantValue struct {
	Enum    string
	Variant string
	Fields  []Value
}

// CapValue is a runtime capability token.
type CapValue struct{ Kind types.CapKind }

// HostFnValue is a reference to a registered extern function.
type HostFnValue struct{ Name string }

func (*IntValue) valueNode()     {}
func (*FloatValue) valueNode()   {}
func (*BoolValue) valueNode()    {}
func (*StrValue) valueNode()     {}
func (*UnitValue) valueNode()    {}
func (*ClosureValue) valueNode() {}
func (*TupleValue) valueNode()   {}
func (*StructValue) valueNode()  {}
func (*VariantValue) valueNode() {}
func (*CapValue) valueNode()     {}
func (*HostFnValue) valueNode()  {}

func (v *IntValue) String() string   { return strconv.FormatInt(v.V, 10) }
func (v *FloatValue) String() string { return strconv.FormatFloat(v.V, 'g', -1, 64) }
func (v *BoolValue) String() string  { return strconv.FormatBool(v.V) }
func (v *StrValue) String() string   { return strconv.Quote(v.V) }
func (*UnitValue) String() string    { return "()" }

func (v *ClosureValue) String() string {
	return "<fn(" + strings.Join(v.Params, ", ") + ")>"
}

func (v *TupleValue) String() string {
	parts := make([]string, len(v.Elems))
	for i, e := range v.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (v *StructValue) String() string {
	names := make([]string, 0, len(v.Fields))
	for name := range v.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + v.Fields[name].String()
	}
	return v.Name + " { " + strings.Join(parts, ", ") + " }"
}

func (v *VariantValue) String() string {
	base := v.Enum + "::" + v.Variant
	if len(v.Fields) == 0 {
		return base
	}
	parts := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		parts[i] = f.String()
	}
	return base + "(" + strings.Join(parts, ", ") + ")"
}

func (v *CapValue) String() string    { return "<cap:" + v.Kind.CapTypeName() + ">" }
func (v *HostFnValue) String() string { return "<host_fn:" + v.Name + ">" }

// toTraceValue converts a runtime value into the tagged union the host
// boundary understands. Non-data values are rendered to their string form,
// which should never happen for well-typed programs.
func toTraceValue(v Value) host.TraceValue {
	switch t := v.(type) {
	case *IntValue:
		return host.TVInt(t.V)
	case *FloatValue:
		return host.TVFloat(t.V)
	case *BoolValue:
		return host.TVBool(t.V)
	case *StrValue:
		return host.TVStr(t.V)
	case *UnitValue:
		return host.TVUnit()
	default:
		return host.TVStr(v.String())
	}
}

// fromTraceValue converts a tagged host value back into a runtime value.
func fromTraceValue(tv host.TraceValue) Value {
	switch tv.T {
	case "Int":
		return &IntValue{V: tv.Int}
	case "Float":
		return &FloatValue{V: tv.Float}
	case "Str":
		return &StrValue{V: tv.Str}
	case "Bool":
		return &BoolValue{V: tv.Bool}
	default:
		return &UnitValue{}
	}
}

// RuntimeError is the evaluator's failure value; every kind carries the span
// of the failing expression when one is available.
type RuntimeError struct {
	KindName string
	Msg      string
	SpanV    ast.Span
}

func (e *RuntimeError) Error() string  { return e.Msg }
func (e *RuntimeError) Kind() string   { return e.KindName }
func (e *RuntimeError) Span() ast.Span { return e.SpanV }

func runtimeErr(kind, format string, span ast.Span, args ...any) *RuntimeError {
	return &RuntimeError{KindName: kind, Msg: fmt.Sprintf(format, args...), SpanV: span}
}
