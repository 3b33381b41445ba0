// Package diag provides the shared diagnostic rendering and process exit
// code vocabulary used by every stage of the pipeline (§7 of the spec).
package diag

import (
	"fmt"

	"github.com/strata-lang/strata/internal/ast"
)

// Exit codes per the CLI contract (§6).
const (
	ExitSuccess        = 0
	ExitCompileError   = 1
	ExitRuntimeError   = 2
	ExitReplayMismatch = 3
)

// Diagnostic is implemented by every error kind that carries a source span,
// so the CLI can render it uniformly as "<kind>: <message> at <line:col>".
type Diagnostic interface {
	error
	Kind() string
	Span() ast.Span
}

// Render formats a Diagnostic against its originating source text.
func Render(d Diagnostic, src string) string {
	return fmt.Sprintf("%s: %s at %s", d.Kind(), d.Error(), d.Span().PosString(src))
}
