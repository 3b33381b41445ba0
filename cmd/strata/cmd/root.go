package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/strata-lang/strata/internal/diag"
)

var (
	// Version information (set by build flags)
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata compiler front end and interpreter",
	Long: `strata is the front end and static semantics engine of the Strata
language: a small strict language with algebraic data types, pattern
matching, parametric polymorphism, a row-based effect system, and affine
capability types.

Programs are checked (types, effects, capabilities, moves, match coverage)
and then interpreted with a versioned JSONL effect trace that can later be
replayed to detect divergence.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{with .Name}}{{printf "%%s " .}}{{end}}{{printf "version %%s" .Version}}
Commit: %s
Built:  %s
`, GitCommit, BuildDate))

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// reportDiagnostics renders every diagnostic against the source on stderr,
// colorized only when stderr is a real terminal.
func reportDiagnostics(diags []diag.Diagnostic, src string) {
	color := isatty.IsTerminal(os.Stderr.Fd())
	for _, d := range diags {
		line := diag.Render(d, src)
		if color {
			line = "\x1b[31m" + line + "\x1b[0m"
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

func readSource(path string) (string, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to read %s: %v\n", path, err)
		return "", false
	}
	return string(content), true
}
