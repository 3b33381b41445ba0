package host

import (
	"math/rand"
	"os"
	"time"

	"github.com/strata-lang/strata/internal/types"
)

// ParamKind describes one positional extern-fn parameter: a capability
// (with its borrow/consume mode) or a named data parameter.
type ParamKind struct {
	IsCap    bool
	CapKind  types.CapKind
	Borrowed bool
	DataName string
}

// CapParam builds a capability parameter descriptor.
func CapParam(kind types.CapKind, borrowed bool) ParamKind {
	return ParamKind{IsCap: true, CapKind: kind, Borrowed: borrowed}
}

// DataParam builds a data parameter descriptor.
func DataParam(name string) ParamKind {
	return ParamKind{DataName: name}
}

// ExternFnMeta is the positional parameter metadata derived once at program
// load from an extern's type signature. The evaluator uses it to split
// runtime arguments into capability and data arguments before dispatch.
type ExternFnMeta struct {
	Params []ParamKind
}

// Arg is one runtime argument as seen by dispatch: either a capability
// token or a data value.
type Arg struct {
	IsCap   bool
	CapKind types.CapKind
	Value   TraceValue
}

// FnImpl is a registered host implementation. It receives only the data
// arguments; capabilities authorize the call but never reach the
// implementation.
type FnImpl func(args []TraceValue) (TraceValue, *HostError)

// Registry maps extern names to implementations and parameter metadata.
// All externs must have metadata registered, including pure ones.
type Registry struct {
	functions map[string]FnImpl
	meta      map[string]*ExternFnMeta
}

// NewRegistry creates a registry with the built-in host functions.
func NewRegistry() *Registry {
	r := &Registry{functions: map[string]FnImpl{}, meta: map[string]*ExternFnMeta{}}
	r.Register("read_file", hostReadFile)
	r.Register("write_file", hostWriteFile)
	r.Register("now", hostNow)
	r.Register("random_int", hostRandomInt)
	return r
}

// Register installs (or replaces) an implementation.
func (r *Registry) Register(name string, f FnImpl) {
	r.functions[name] = f
}

// RegisterMeta installs parameter metadata for an extern.
func (r *Registry) RegisterMeta(name string, meta *ExternFnMeta) {
	r.meta[name] = meta
}

// Meta looks up an extern's parameter metadata.
func (r *Registry) Meta(name string) (*ExternFnMeta, bool) {
	m, ok := r.meta[name]
	return m, ok
}

// DispatchTraced splits args into capability and data positions per the
// extern's metadata, invokes the implementation with the data arguments,
// and emits one effect record. A trace write failure aborts the call.
func (r *Registry) DispatchTraced(name string, args []Arg, em *Emitter) (TraceValue, *HostError) {
	meta, ok := r.meta[name]
	if !ok {
		return TVUnit(), runtimeError("no extern metadata registered for %q; all externs must have metadata", name)
	}

	capRef, inputs, data := splitArgs(meta, args)

	start := time.Now()
	impl, ok := r.functions[name]
	var result TraceValue
	var callErr *HostError
	if !ok {
		callErr = unknownFunction(name)
	} else {
		result, callErr = impl(data)
	}
	duration := time.Since(start)

	entry := buildEntry(name, meta, capRef, inputs, result, callErr, em)
	entry.DurationMs = uint64(duration.Milliseconds())
	if err := em.Emit(entry); err != nil {
		return TVUnit(), err.(*HostError)
	}
	if callErr != nil {
		return TVUnit(), callErr
	}
	return result, nil
}

// splitArgs walks the positional metadata, separating the capability
// reference from named data inputs.
func splitArgs(meta *ExternFnMeta, args []Arg) (CapRef, []NamedInput, []TraceValue) {
	var capRef CapRef
	var inputs []NamedInput
	var data []TraceValue
	for i, p := range meta.Params {
		if i >= len(args) {
			break
		}
		if p.IsCap {
			access := "consume"
			if p.Borrowed {
				access = "borrow"
			}
			capRef = CapRef{Kind: p.CapKind.String(), Access: access}
			continue
		}
		inputs = append(inputs, NamedInput{Name: p.DataName, Value: args[i].Value})
		data = append(data, args[i].Value)
	}
	return capRef, inputs, data
}

// buildEntry assembles the effect record for one call. In audit mode,
// outputs larger than the elision limit are dropped (their hash remains);
// oversized inputs are replaced by their hash.
func buildEntry(name string, meta *ExternFnMeta, capRef CapRef, inputs []NamedInput, result TraceValue, callErr *HostError, em *Emitter) Entry {
	full := em.FullValues()

	var out Output
	if callErr != nil {
		msg := callErr.Error()
		v := TVStr(msg)
		out = Output{Status: "error", Value: &v, ValueHash: Sha256Hex(msg), ValueSize: len(msg)}
	} else {
		hs := result.hashString()
		out = Output{Status: "ok", ValueHash: Sha256Hex(hs), ValueSize: len(hs)}
		if full || len(hs) <= valueElideLimit {
			v := result
			out.Value = &v
		}
	}

	if !full {
		for i, in := range inputs {
			if s := in.Value.hashString(); len(s) > valueElideLimit {
				inputs[i].Value = TVStr(Sha256Hex(s))
			}
		}
	}

	return Entry{
		Seq:        em.NextSeq(),
		Timestamp:  timestamp(),
		Effect:     effectName(meta),
		Operation:  name,
		Capability: capRef,
		Inputs:     inputs,
		Output:     out,
		FullValues: full,
	}
}

func effectName(meta *ExternFnMeta) string {
	for _, p := range meta.Params {
		if p.IsCap {
			return p.CapKind.String()
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Built-in host functions
// ---------------------------------------------------------------------------

func hostReadFile(args []TraceValue) (TraceValue, *HostError) {
	if len(args) < 1 || args[0].T != "Str" {
		return TVUnit(), typeError("read_file: expected String path")
	}
	content, err := os.ReadFile(args[0].Str)
	if err != nil {
		return TVUnit(), ioError("read_file: %v", err)
	}
	return TVStr(string(content)), nil
}

func hostWriteFile(args []TraceValue) (TraceValue, *HostError) {
	if len(args) < 1 || args[0].T != "Str" {
		return TVUnit(), typeError("write_file: expected String path")
	}
	if len(args) < 2 || args[1].T != "Str" {
		return TVUnit(), typeError("write_file: expected String content")
	}
	if err := os.WriteFile(args[0].Str, []byte(args[1].Str), 0o644); err != nil {
		return TVUnit(), ioError("write_file: %v", err)
	}
	return TVUnit(), nil
}

func hostNow(_ []TraceValue) (TraceValue, *HostError) {
	now := time.Now()
	return TVStr(now.UTC().Format("2006-01-02T15:04:05.000Z")), nil
}

func hostRandomInt(_ []TraceValue) (TraceValue, *HostError) {
	return TVInt(rand.Int63n(1000)), nil
}
