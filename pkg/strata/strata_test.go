package strata

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/tidwall/gjson"

	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/host"
)

const tracedProgram = `
extern fn read_file(fs: &FsCap, p: String) -> String & {Fs};
fn main(fs: FsCap) -> String & {Fs} {
  read_file(&fs, "/etc/hosts")
}
`

// stubbedRun checks src and runs it with a deterministic read_file.
func stubbedRun(t *testing.T, src string, traceWriter *bytes.Buffer, fullValues bool) error {
	t.Helper()
	prog, diags := Check(src)
	if len(diags) > 0 {
		t.Fatalf("check failed: %v", diags[0])
	}
	// Swap the filesystem implementation for a pure stub.
	reg := host.NewRegistry()
	reg.Register("read_file", func(args []host.TraceValue) (host.TraceValue, *host.HostError) {
		return host.TVStr("127.0.0.1 localhost"), nil
	})
	_, err := prog.RunWith(traceWriter, fullValues, reg)
	return err
}

func TestCheckAcceptsAndRejects(t *testing.T) {
	if _, diags := Check("let x = 1 + 2 * 3;"); len(diags) != 0 {
		t.Fatalf("expected accept, got %v", diags)
	}
	_, diags := Check("let x = 1 + true;")
	if len(diags) == 0 {
		t.Fatal("expected rejection")
	}
}

func TestDiagnosticRendering(t *testing.T) {
	src := "let x =\n  1 + true;"
	_, diags := Check(src)
	if len(diags) == 0 {
		t.Fatal("expected a diagnostic")
	}
	rendered := diag.Render(diags[0], src)
	if !strings.Contains(rendered, "Mismatch") || !strings.Contains(rendered, " at 2:") {
		t.Fatalf("unexpected rendering: %s", rendered)
	}
	snaps.MatchSnapshot(t, rendered)
}

func TestParseErrorSurfaces(t *testing.T) {
	_, diags := Check("fn {")
	if len(diags) == 0 {
		t.Fatal("expected parse diagnostic")
	}
}

func TestTraceRoundTripEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	if err := stubbedRun(t, tracedProgram, &buf, true); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 trace lines, got %d", len(lines))
	}
	effect := lines[1]
	if gjson.Get(effect, "operation").String() != "read_file" {
		t.Fatalf("wrong operation: %s", effect)
	}
	if gjson.Get(effect, "capability.kind").String() != "Fs" ||
		gjson.Get(effect, "capability.access").String() != "borrow" {
		t.Fatalf("wrong capability: %s", effect)
	}
	if gjson.Get(lines[2], "effect_count").Int() != 1 {
		t.Fatalf("wrong effect count: %s", lines[2])
	}

	// Replay the same program against the captured trace.
	prog, diags := Check(tracedProgram)
	if len(diags) > 0 {
		t.Fatalf("check failed: %v", diags[0])
	}
	if _, err := prog.Replay(buf.String()); err != nil {
		t.Fatalf("replay should succeed: %v", err)
	}

	// Replay against a program that reads a different path must fail with
	// an input mismatch at seq 0.
	other := strings.Replace(tracedProgram, "/etc/hosts", "/etc/hostname", 1)
	prog2, diags := Check(other)
	if len(diags) > 0 {
		t.Fatalf("check failed: %v", diags[0])
	}
	_, err := prog2.Replay(buf.String())
	rerr, ok := err.(*host.ReplayError)
	if !ok || rerr.Kind != host.ReplayInputMismatch || rerr.Seq != 0 {
		t.Fatalf("expected InputMismatch at seq 0, got %v", err)
	}
}

func TestAuditTraceRejectsReplay(t *testing.T) {
	var buf bytes.Buffer
	if err := stubbedRun(t, tracedProgram, &buf, false); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	prog, _ := Check(tracedProgram)
	_, err := prog.Replay(buf.String())
	rerr, ok := err.(*host.ReplayError)
	if !ok || rerr.Kind != host.ReplayNotReplayable {
		t.Fatalf("expected NotReplayable, got %v", err)
	}
}
