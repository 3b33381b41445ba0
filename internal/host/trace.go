package host

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

// SchemaVersion is the trace schema this build writes and replays.
const SchemaVersion = "0.1"

// valueElideLimit is the audit-mode size threshold above which output values
// are dropped from the trace (the hash is always kept).
const valueElideLimit = 1024

// TraceValue is the closed tagged union of values that cross the host
// boundary: Int, Float, Str, Bool, or Unit. Tagging preserves the type
// across serialization so Int(42) round-trips as Int(42), never as "42".
type TraceValue struct {
	T     string
	Int   int64
	Float float64
	Str   string
	Bool  bool
}

// TraceValue constructors.
func TVInt(v int64) TraceValue     { return TraceValue{T: "Int", Int: v} }
func TVFloat(v float64) TraceValue { return TraceValue{T: "Float", Float: v} }
func TVStr(v string) TraceValue    { return TraceValue{T: "Str", Str: v} }
func TVBool(v bool) TraceValue     { return TraceValue{T: "Bool", Bool: v} }
func TVUnit() TraceValue           { return TraceValue{T: "Unit"} }

// hashString is the canonical rendering used for hashing and size
// accounting.
func (v TraceValue) hashString() string {
	switch v.T {
	case "Int":
		return strconv.FormatInt(v.Int, 10)
	case "Float":
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case "Str":
		return v.Str
	case "Bool":
		return strconv.FormatBool(v.Bool)
	default:
		return "()"
	}
}

// Equal compares two tagged values for replay input validation.
func (v TraceValue) Equal(o TraceValue) bool {
	if v.T != o.T {
		return false
	}
	switch v.T {
	case "Int":
		return v.Int == o.Int
	case "Float":
		return v.Float == o.Float
	case "Str":
		return v.Str == o.Str
	case "Bool":
		return v.Bool == o.Bool
	default:
		return true
	}
}

func (v TraceValue) String() string { return v.hashString() }

// setTagged writes v at path inside json as {"t":..., "v":...}; Unit carries
// no payload.
func setTagged(json string, path string, v TraceValue) (string, error) {
	out, err := sjson.Set(json, path+".t", v.T)
	if err != nil {
		return "", err
	}
	switch v.T {
	case "Int":
		return sjson.Set(out, path+".v", v.Int)
	case "Float":
		return sjson.Set(out, path+".v", v.Float)
	case "Str":
		return sjson.Set(out, path+".v", v.Str)
	case "Bool":
		return sjson.Set(out, path+".v", v.Bool)
	default:
		return out, nil
	}
}

// CapRef identifies the capability a host call was authorized by and how it
// was passed: by borrow or by consuming the token.
type CapRef struct {
	Kind   string
	Access string
}

// NamedInput is one data argument with its declared parameter name. Inputs
// are serialized in name order so traces are byte-deterministic.
type NamedInput struct {
	Name  string
	Value TraceValue
}

// Output is the recorded result of a host call.
type Output struct {
	Status    string // "ok" or "error"
	Value     *TraceValue
	ValueHash string
	ValueSize int
}

// Entry is one effect record.
type Entry struct {
	Seq        uint64
	Timestamp  string
	Effect     string
	Operation  string
	Capability CapRef
	Inputs     []NamedInput
	Output     Output
	DurationMs uint64
	FullValues bool
}

// Emitter writes the JSONL trace stream: a header line, one effect line per
// host call, and a footer line on finalize. A write failure is fatal to the
// program run; the caller must abort rather than continue with a truncated
// trace.
type Emitter struct {
	seq        uint64
	w          io.Writer
	fullValues bool
}

// NewEmitter creates an Emitter over w and immediately writes the header
// record. When fullValues is set, output values are recorded regardless of
// size, which is what makes the trace replayable.
func NewEmitter(w io.Writer, fullValues bool) (*Emitter, error) {
	line := "{}"
	var err error
	for _, step := range []struct {
		path string
		val  any
	}{
		{"record", "header"},
		{"schema_version", SchemaVersion},
		{"timestamp", timestamp()},
		{"run_id", uuid.NewString()},
		{"full_values", fullValues},
	} {
		line, err = sjson.Set(line, step.path, step.val)
		if err != nil {
			return nil, traceWriteError("serialize header: %v", err)
		}
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return nil, traceWriteError("write header: %v", err)
	}
	return &Emitter{w: w, fullValues: fullValues}, nil
}

// Disabled creates an emitter that records nothing.
func Disabled() *Emitter { return &Emitter{} }

// FullValues reports whether this emitter records complete output values.
func (e *Emitter) FullValues() bool { return e.fullValues }

// Enabled reports whether the emitter has a destination.
func (e *Emitter) Enabled() bool { return e.w != nil }

// NextSeq returns the next sequence number and advances the counter.
func (e *Emitter) NextSeq() uint64 {
	s := e.seq
	e.seq++
	return s
}

// Emit writes one effect record.
func (e *Emitter) Emit(entry Entry) error {
	if e.w == nil {
		return nil
	}
	line := "{}"
	var err error
	set := func(path string, val any) {
		if err != nil {
			return
		}
		line, err = sjson.Set(line, path, val)
	}
	set("record", "effect")
	set("seq", entry.Seq)
	set("timestamp", entry.Timestamp)
	set("effect", entry.Effect)
	set("operation", entry.Operation)
	set("capability.kind", entry.Capability.Kind)
	set("capability.access", entry.Capability.Access)
	if err == nil {
		line, err = sjson.SetRaw(line, "inputs", "{}")
	}
	inputs := append([]NamedInput(nil), entry.Inputs...)
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	for _, in := range inputs {
		if err != nil {
			break
		}
		line, err = setTagged(line, "inputs."+escapePath(in.Name), in.Value)
	}
	set("output.status", entry.Output.Status)
	if entry.Output.Value != nil && err == nil {
		line, err = setTagged(line, "output.value", *entry.Output.Value)
	}
	set("output.value_hash", entry.Output.ValueHash)
	set("output.value_size", entry.Output.ValueSize)
	set("duration_ms", entry.DurationMs)
	set("full_values", entry.FullValues)
	if err != nil {
		return traceWriteError("serialize effect: %v", err)
	}
	if _, werr := io.WriteString(e.w, line+"\n"); werr != nil {
		return traceWriteError("write effect: %v", werr)
	}
	return nil
}

// Finalize writes the footer record and flushes. programStatus is "success"
// or "error".
func (e *Emitter) Finalize(programStatus string) error {
	if e.w == nil {
		return nil
	}
	line := "{}"
	var err error
	for _, step := range []struct {
		path string
		val  any
	}{
		{"record", "footer"},
		{"timestamp", timestamp()},
		{"effect_count", e.seq},
		{"trace_status", "complete"},
		{"program_status", programStatus},
	} {
		line, err = sjson.Set(line, step.path, step.val)
		if err != nil {
			return traceWriteError("serialize footer: %v", err)
		}
	}
	if _, werr := io.WriteString(e.w, line+"\n"); werr != nil {
		return traceWriteError("write footer: %v", werr)
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		if ferr := f.Flush(); ferr != nil {
			return traceWriteError("flush trace: %v", ferr)
		}
	}
	return nil
}

// escapePath protects sjson path metacharacters in user-controlled input
// names.
func escapePath(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		switch name[i] {
		case '.', '*', '?', '|', '#', '@', '\\':
			out = append(out, '\\')
		}
		out = append(out, name[i])
	}
	return string(out)
}

// Sha256Hex computes the "sha256:<hex>" digest recorded alongside every
// output value, so audit traces stay verifiable even when values are elided.
func Sha256Hex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("sha256:%x", sum)
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
