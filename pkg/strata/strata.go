// Package strata is the embedding facade over the Strata front end: parse,
// type- and capability-check, evaluate, and replay, without touching the
// internal packages directly.
package strata

import (
	"io"

	"github.com/strata-lang/strata/internal/ast"
	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/eval"
	"github.com/strata-lang/strata/internal/host"
	"github.com/strata-lang/strata/internal/infer"
	"github.com/strata-lang/strata/internal/parser"
)

// Program is a parsed and checked module, ready to run.
type Program struct {
	Module *ast.Module
	Types  *infer.Result
	source string
}

// Source returns the original source text, for diagnostic rendering.
func (p *Program) Source() string { return p.source }

// Parse runs the lexer and parser only.
func Parse(src string) (*ast.Module, error) {
	return parser.Parse(src)
}

// Check parses src and runs the full static semantics: inference, effect
// solving, capability discipline, move checking, and pattern analysis.
// The returned diagnostics list is empty exactly when the program is
// accepted.
func Check(src string) (*Program, []diag.Diagnostic) {
	mod, err := parser.Parse(src)
	if err != nil {
		if d, ok := err.(diag.Diagnostic); ok {
			return nil, []diag.Diagnostic{d}
		}
		return nil, []diag.Diagnostic{&infer.NamedError{KindName: "ParseError", Msg: err.Error()}}
	}
	result, diags := infer.NewChecker().Check(mod)
	if len(diags) > 0 {
		return nil, diags
	}
	return &Program{Module: mod, Types: result, source: src}, nil
}

// Run evaluates a checked program's main function. A nil traceWriter
// disables tracing; fullValues selects replay-capable traces.
func (p *Program) Run(traceWriter io.Writer, fullValues bool) (eval.Value, error) {
	return p.RunWith(traceWriter, fullValues, nil)
}

// RunWith is Run with a caller-supplied host registry, for embedders that
// stub or extend the built-in host functions.
func (p *Program) RunWith(traceWriter io.Writer, fullValues bool, registry *host.Registry) (eval.Value, error) {
	opts := eval.Options{Registry: registry}
	if traceWriter != nil {
		em, err := host.NewEmitter(traceWriter, fullValues)
		if err != nil {
			return nil, err
		}
		opts.Tracer = em
	}
	return eval.Run(p.Module, opts)
}

// Replay re-executes a checked program against a recorded trace, verifying
// that every host call matches the recording and that no recorded entries
// remain unconsumed.
func (p *Program) Replay(traceContent string) (eval.Value, error) {
	replayer, err := host.LoadReplayer(traceContent)
	if err != nil {
		return nil, err
	}
	val, err := eval.Run(p.Module, eval.Options{Replayer: replayer})
	if err != nil {
		return nil, err
	}
	if rerr := replayer.VerifyComplete(); rerr != nil {
		return nil, rerr
	}
	return val, nil
}
