package host

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/strata-lang/strata/internal/types"
)

// stubRegistry returns a registry whose read_file implementation is pure,
// so traces are deterministic.
func stubRegistry() *Registry {
	r := NewRegistry()
	r.Register("read_file", func(args []TraceValue) (TraceValue, *HostError) {
		return TVStr("contents of " + args[0].Str), nil
	})
	r.RegisterMeta("read_file", &ExternFnMeta{Params: []ParamKind{
		CapParam(types.CapFs, true),
		DataParam("path"),
	}})
	return r
}

func readFileArgs(path string) []Arg {
	return []Arg{
		{IsCap: true, CapKind: types.CapFs},
		{Value: TVStr(path)},
	}
}

func TestTraceRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	em, err := NewEmitter(&buf, true)
	if err != nil {
		t.Fatal(err)
	}
	reg := stubRegistry()

	out, herr := reg.DispatchTraced("read_file", readFileArgs("/etc/hosts"), em)
	if herr != nil {
		t.Fatal(herr)
	}
	if out.T != "Str" || out.Str != "contents of /etc/hosts" {
		t.Fatalf("unexpected output: %#v", out)
	}
	if err := em.Finalize("success"); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header+effect+footer, got %d lines", len(lines))
	}

	header := lines[0]
	if gjson.Get(header, "record").String() != "header" {
		t.Fatalf("bad header: %s", header)
	}
	if gjson.Get(header, "schema_version").String() != "0.1" {
		t.Fatalf("bad schema version: %s", header)
	}
	if !gjson.Get(header, "full_values").Bool() {
		t.Fatalf("full_values should be true: %s", header)
	}
	if gjson.Get(header, "run_id").String() == "" {
		t.Fatalf("missing run_id: %s", header)
	}

	effect := lines[1]
	if gjson.Get(effect, "record").String() != "effect" {
		t.Fatalf("bad effect record: %s", effect)
	}
	if gjson.Get(effect, "seq").Int() != 0 {
		t.Fatalf("first effect should be seq 0: %s", effect)
	}
	if gjson.Get(effect, "operation").String() != "read_file" {
		t.Fatalf("wrong operation: %s", effect)
	}
	if gjson.Get(effect, "effect").String() != "Fs" {
		t.Fatalf("wrong effect: %s", effect)
	}
	if gjson.Get(effect, "capability.kind").String() != "Fs" ||
		gjson.Get(effect, "capability.access").String() != "borrow" {
		t.Fatalf("wrong capability ref: %s", effect)
	}
	if gjson.Get(effect, "inputs.path.t").String() != "Str" ||
		gjson.Get(effect, "inputs.path.v").String() != "/etc/hosts" {
		t.Fatalf("wrong inputs: %s", effect)
	}
	if gjson.Get(effect, "output.status").String() != "ok" {
		t.Fatalf("wrong output status: %s", effect)
	}
	if !strings.HasPrefix(gjson.Get(effect, "output.value_hash").String(), "sha256:") {
		t.Fatalf("missing value hash: %s", effect)
	}

	footer := lines[2]
	if gjson.Get(footer, "record").String() != "footer" {
		t.Fatalf("bad footer: %s", footer)
	}
	if gjson.Get(footer, "effect_count").Int() != 1 {
		t.Fatalf("wrong effect count: %s", footer)
	}
	if gjson.Get(footer, "trace_status").String() != "complete" {
		t.Fatalf("wrong trace status: %s", footer)
	}
	if gjson.Get(footer, "program_status").String() != "success" {
		t.Fatalf("wrong program status: %s", footer)
	}

	// Replay the trace with matching inputs.
	rep, rerr := LoadReplayer(buf.String())
	if rerr != nil {
		t.Fatal(rerr)
	}
	if !rep.IsComplete() {
		t.Fatal("trace should carry a footer")
	}
	val, nerr := rep.Next("read_file", []NamedInput{{Name: "path", Value: TVStr("/etc/hosts")}})
	if nerr != nil {
		t.Fatal(nerr)
	}
	if val.Str != "contents of /etc/hosts" {
		t.Fatalf("replayed wrong value: %#v", val)
	}
	if verr := rep.VerifyComplete(); verr != nil {
		t.Fatal(verr)
	}
}

func TestReplayInputMismatch(t *testing.T) {
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, true)
	reg := stubRegistry()
	if _, herr := reg.DispatchTraced("read_file", readFileArgs("/etc/hosts"), em); herr != nil {
		t.Fatal(herr)
	}
	em.Finalize("success")

	rep, err := LoadReplayer(buf.String())
	if err != nil {
		t.Fatal(err)
	}
	_, rerr := rep.Next("read_file", []NamedInput{{Name: "path", Value: TVStr("/etc/hostname")}})
	if rerr == nil || rerr.Kind != ReplayInputMismatch {
		t.Fatalf("expected InputMismatch, got %v", rerr)
	}
	if rerr.Seq != 0 {
		t.Fatalf("mismatch should name seq 0, got %d", rerr.Seq)
	}
}

func TestReplayOperationMismatch(t *testing.T) {
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, true)
	reg := stubRegistry()
	reg.RegisterMeta("now", &ExternFnMeta{Params: []ParamKind{CapParam(types.CapTime, true)}})
	if _, herr := reg.DispatchTraced("read_file", readFileArgs("/x"), em); herr != nil {
		t.Fatal(herr)
	}
	em.Finalize("success")

	rep, err := LoadReplayer(buf.String())
	if err != nil {
		t.Fatal(err)
	}
	_, rerr := rep.Next("now", nil)
	if rerr == nil || rerr.Kind != ReplayOperationMismatch {
		t.Fatalf("expected OperationMismatch, got %v", rerr)
	}
}

func TestReplayUnexpectedAndUnreplayed(t *testing.T) {
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, true)
	reg := stubRegistry()
	if _, herr := reg.DispatchTraced("read_file", readFileArgs("/x"), em); herr != nil {
		t.Fatal(herr)
	}
	em.Finalize("success")

	// Unreplayed entries are reported by VerifyComplete.
	rep, _ := LoadReplayer(buf.String())
	verr := rep.VerifyComplete()
	if verr == nil || verr.Kind != ReplayUnreplayedEffects {
		t.Fatalf("expected UnreplayedEffects, got %v", verr)
	}

	// Consuming past the end is an unexpected effect.
	rep, _ = LoadReplayer(buf.String())
	rep.Next("read_file", []NamedInput{{Name: "path", Value: TVStr("/x")}})
	_, nerr := rep.Next("read_file", []NamedInput{{Name: "path", Value: TVStr("/x")}})
	if nerr == nil || nerr.Kind != ReplayUnexpectedEffect {
		t.Fatalf("expected UnexpectedEffect, got %v", nerr)
	}
}

func TestAuditTraceIsNotReplayable(t *testing.T) {
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, false)
	reg := stubRegistry()
	if _, herr := reg.DispatchTraced("read_file", readFileArgs("/x"), em); herr != nil {
		t.Fatal(herr)
	}
	em.Finalize("success")

	_, err := LoadReplayer(buf.String())
	rerr, ok := err.(*ReplayError)
	if !ok || rerr.Kind != ReplayNotReplayable {
		t.Fatalf("expected NotReplayable, got %v", err)
	}
}

func TestWrongSchemaVersionRejected(t *testing.T) {
	trace := `{"record":"header","schema_version":"9.9","timestamp":"t","full_values":true}`
	_, err := LoadReplayer(trace)
	rerr, ok := err.(*ReplayError)
	if !ok || rerr.Kind != ReplayNotReplayable {
		t.Fatalf("expected NotReplayable for wrong schema, got %v", err)
	}
}

func TestAuditModeElidesLargeValues(t *testing.T) {
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, false)
	reg := NewRegistry()
	big := strings.Repeat("x", 2048)
	reg.Register("read_file", func(_ []TraceValue) (TraceValue, *HostError) {
		return TVStr(big), nil
	})
	reg.RegisterMeta("read_file", &ExternFnMeta{Params: []ParamKind{
		CapParam(types.CapFs, true), DataParam("path"),
	}})
	if _, herr := reg.DispatchTraced("read_file", readFileArgs("/x"), em); herr != nil {
		t.Fatal(herr)
	}
	em.Finalize("success")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	effect := lines[1]
	if gjson.Get(effect, "output.value").Exists() {
		t.Fatalf("large value should be elided in audit mode: %s", effect)
	}
	if !strings.HasPrefix(gjson.Get(effect, "output.value_hash").String(), "sha256:") {
		t.Fatalf("hash must always be recorded: %s", effect)
	}
	if gjson.Get(effect, "output.value_size").Int() != 2048 {
		t.Fatalf("value size should be recorded: %s", effect)
	}
}

func TestTaggedValueRoundTrip(t *testing.T) {
	values := []TraceValue{TVInt(42), TVFloat(3.5), TVStr("hi"), TVBool(true), TVUnit()}
	var buf bytes.Buffer
	em, _ := NewEmitter(&buf, true)
	reg := NewRegistry()
	idx := 0
	reg.Register("echo", func(args []TraceValue) (TraceValue, *HostError) {
		v := values[idx]
		idx++
		return v, nil
	})
	reg.RegisterMeta("echo", &ExternFnMeta{Params: []ParamKind{DataParam("n")}})
	for range values {
		if _, herr := reg.DispatchTraced("echo", []Arg{{Value: TVInt(int64(idx))}}, em); herr != nil {
			t.Fatal(herr)
		}
	}
	em.Finalize("success")

	rep, err := LoadReplayer(buf.String())
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range values {
		got, rerr := rep.Next("echo", []NamedInput{{Name: "n", Value: TVInt(int64(i))}})
		if rerr != nil {
			t.Fatalf("replay %d: %v", i, rerr)
		}
		if !got.Equal(want) {
			t.Fatalf("replay %d: got %#v, want %#v", i, got, want)
		}
	}
}
