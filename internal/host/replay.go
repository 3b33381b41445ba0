package host

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// ReplayError is a failure of trace loading or trace-driven re-execution.
// Mismatch variants carry the sequence number and the expected/actual JSON
// fragments so the CLI can render a diff.
type ReplayError struct {
	Kind      ReplayErrorKind
	Operation string
	Seq       uint64
	Expected  string
	Actual    string
	Message   string
	Count     int
}

// ReplayErrorKind classifies a replay failure.
type ReplayErrorKind int

const (
	// ReplayUnexpectedEffect: the program performed a call not in the trace.
	ReplayUnexpectedEffect ReplayErrorKind = iota
	// ReplayOperationMismatch: call order diverged from the trace.
	ReplayOperationMismatch
	// ReplayInputMismatch: a call's inputs diverged from the trace.
	ReplayInputMismatch
	// ReplayMissingValue: the recorded output was elided and cannot replay.
	ReplayMissingValue
	// ReplayUnreplayedEffects: trace entries remained after completion.
	ReplayUnreplayedEffects
	// ReplayReplayedError: the trace recorded an error; replay surfaces it.
	ReplayReplayedError
	// ReplayUnknownStatus: a trace entry carries an unrecognized status.
	ReplayUnknownStatus
	// ReplayNotReplayable: wrong schema version or audit-mode trace.
	ReplayNotReplayable
	// ReplayParseError: malformed JSONL.
	ReplayParseError
)

func (e *ReplayError) Error() string {
	switch e.Kind {
	case ReplayUnexpectedEffect:
		return fmt.Sprintf("replay: unexpected extern call %q not in trace", e.Operation)
	case ReplayOperationMismatch:
		return fmt.Sprintf("replay: operation mismatch at seq %d: expected %q, got %q", e.Seq, e.Expected, e.Actual)
	case ReplayInputMismatch:
		return fmt.Sprintf("replay: input mismatch for %q at seq %d: expected %s, got %s", e.Operation, e.Seq, e.Expected, e.Actual)
	case ReplayMissingValue:
		return fmt.Sprintf("cannot replay: output for %q at seq %d was elided; re-run with --trace-full to record complete values", e.Operation, e.Seq)
	case ReplayUnreplayedEffects:
		return fmt.Sprintf("replay: trace has %d unreplayed entries", e.Count)
	case ReplayReplayedError:
		return e.Message
	case ReplayUnknownStatus:
		return fmt.Sprintf("replay: unknown status %q in trace", e.Message)
	case ReplayNotReplayable:
		return fmt.Sprintf("replay: trace is not replayable: %s", e.Message)
	default:
		return fmt.Sprintf("replay: parse error at line %d: %s", e.Count, e.Message)
	}
}

// KindString names the error per the diagnostic taxonomy.
func (e *ReplayError) KindString() string {
	switch e.Kind {
	case ReplayUnexpectedEffect:
		return "UnexpectedEffect"
	case ReplayOperationMismatch:
		return "OperationMismatch"
	case ReplayInputMismatch:
		return "InputMismatch"
	case ReplayMissingValue:
		return "MissingValue"
	case ReplayUnreplayedEffects:
		return "UnreplayedEffects"
	case ReplayReplayedError:
		return "ReplayedError"
	case ReplayUnknownStatus:
		return "UnknownStatus"
	case ReplayNotReplayable:
		return "NotReplayable"
	default:
		return "ParseError"
	}
}

// replayEntry is one loaded effect record.
type replayEntry struct {
	operation string
	inputs    []NamedInput
	status    string
	value     *TraceValue
	valueSize int
}

// Replayer re-executes a program against a recorded trace: each extern call
// is validated against the next recorded entry and answered with the
// recorded output instead of touching the outside world.
type Replayer struct {
	entries   []replayEntry
	cursor    int
	sawFooter bool
}

// LoadReplayer parses a JSONL trace. The header must carry the supported
// schema version with full_values set, otherwise the trace is NotReplayable.
// A missing footer is flagged (IsComplete) but not by itself fatal.
func LoadReplayer(content string) (*Replayer, error) {
	r := &Replayer{}
	sawHeader := false
	lineNo := 0
	for _, line := range strings.Split(content, "\n") {
		lineNo++
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !gjson.Valid(line) {
			return nil, &ReplayError{Kind: ReplayParseError, Count: lineNo, Message: "invalid JSON"}
		}
		switch gjson.Get(line, "record").String() {
		case "header":
			sawHeader = true
			if v := gjson.Get(line, "schema_version").String(); v != SchemaVersion {
				return nil, &ReplayError{
					Kind:    ReplayNotReplayable,
					Message: fmt.Sprintf("unsupported trace schema version %q (expected %q)", v, SchemaVersion),
				}
			}
			if !gjson.Get(line, "full_values").Bool() {
				return nil, &ReplayError{
					Kind:    ReplayNotReplayable,
					Message: "trace was recorded in audit mode; re-run with --trace-full for replay-capable traces",
				}
			}
		case "effect":
			entry, err := parseEffectLine(line, lineNo)
			if err != nil {
				return nil, err
			}
			r.entries = append(r.entries, entry)
		case "footer":
			r.sawFooter = true
		default:
			return nil, &ReplayError{Kind: ReplayParseError, Count: lineNo, Message: "unknown record type"}
		}
	}
	if !sawHeader {
		return nil, &ReplayError{Kind: ReplayNotReplayable, Message: "trace has no header record"}
	}
	return r, nil
}

func parseEffectLine(line string, lineNo int) (replayEntry, error) {
	entry := replayEntry{
		operation: gjson.Get(line, "operation").String(),
		status:    gjson.Get(line, "output.status").String(),
		valueSize: int(gjson.Get(line, "output.value_size").Int()),
	}
	inputs := gjson.Get(line, "inputs")
	var perr error
	inputs.ForEach(func(key, value gjson.Result) bool {
		tv, err := parseTagged(value)
		if err != nil {
			perr = &ReplayError{Kind: ReplayParseError, Count: lineNo, Message: err.Error()}
			return false
		}
		entry.inputs = append(entry.inputs, NamedInput{Name: key.String(), Value: tv})
		return true
	})
	if perr != nil {
		return replayEntry{}, perr
	}
	sort.Slice(entry.inputs, func(i, j int) bool { return entry.inputs[i].Name < entry.inputs[j].Name })
	if out := gjson.Get(line, "output.value"); out.Exists() {
		tv, err := parseTagged(out)
		if err != nil {
			return replayEntry{}, &ReplayError{Kind: ReplayParseError, Count: lineNo, Message: err.Error()}
		}
		entry.value = &tv
	}
	return entry, nil
}

func parseTagged(res gjson.Result) (TraceValue, error) {
	switch res.Get("t").String() {
	case "Int":
		return TVInt(res.Get("v").Int()), nil
	case "Float":
		return TVFloat(res.Get("v").Float()), nil
	case "Str":
		return TVStr(res.Get("v").String()), nil
	case "Bool":
		return TVBool(res.Get("v").Bool()), nil
	case "Unit":
		return TVUnit(), nil
	default:
		return TraceValue{}, fmt.Errorf("unknown tagged value type %q", res.Get("t").String())
	}
}

// Next replays one extern call: the operation and inputs must equal the
// current entry's, and the recorded output (or recorded error) is returned.
func (r *Replayer) Next(operation string, inputs []NamedInput) (TraceValue, *ReplayError) {
	if r.cursor >= len(r.entries) {
		return TVUnit(), &ReplayError{Kind: ReplayUnexpectedEffect, Operation: operation}
	}
	entry := r.entries[r.cursor]
	seq := uint64(r.cursor)

	if entry.operation != operation {
		return TVUnit(), &ReplayError{
			Kind: ReplayOperationMismatch, Seq: seq,
			Expected: entry.operation, Actual: operation,
		}
	}

	sorted := append([]NamedInput(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	if !inputsEqual(entry.inputs, sorted) {
		return TVUnit(), &ReplayError{
			Kind: ReplayInputMismatch, Seq: seq, Operation: operation,
			Expected: renderInputs(entry.inputs), Actual: renderInputs(sorted),
		}
	}

	r.cursor++

	switch entry.status {
	case "ok":
		if entry.value == nil {
			return TVUnit(), &ReplayError{Kind: ReplayMissingValue, Seq: seq, Operation: operation, Count: entry.valueSize}
		}
		return *entry.value, nil
	case "error":
		msg := "unknown error"
		if entry.value != nil {
			msg = entry.value.hashString()
		}
		return TVUnit(), &ReplayError{Kind: ReplayReplayedError, Seq: seq, Message: msg}
	default:
		return TVUnit(), &ReplayError{Kind: ReplayUnknownStatus, Seq: seq, Message: entry.status}
	}
}

// VerifyComplete ensures every recorded entry was consumed.
func (r *Replayer) VerifyComplete() *ReplayError {
	if r.cursor < len(r.entries) {
		return &ReplayError{Kind: ReplayUnreplayedEffects, Count: len(r.entries) - r.cursor}
	}
	return nil
}

// IsComplete reports whether the trace carried a footer record; a missing
// footer suggests truncation.
func (r *Replayer) IsComplete() bool { return r.sawFooter }

func inputsEqual(a, b []NamedInput) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}

// renderInputs builds the JSON fragment used in mismatch diagnostics.
func renderInputs(inputs []NamedInput) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, in := range inputs {
		if i > 0 {
			sb.WriteString(",")
		}
		fmt.Fprintf(&sb, "%q:{%q:%q", in.Name, "t", in.Value.T)
		switch in.Value.T {
		case "Int":
			fmt.Fprintf(&sb, ",%q:%d", "v", in.Value.Int)
		case "Float":
			fmt.Fprintf(&sb, ",%q:%g", "v", in.Value.Float)
		case "Str":
			fmt.Fprintf(&sb, ",%q:%q", "v", in.Value.Str)
		case "Bool":
			fmt.Fprintf(&sb, ",%q:%t", "v", in.Value.Bool)
		}
		sb.WriteString("}")
	}
	sb.WriteString("}")
	return sb.String()
}
