package cmd

import (
	"fmt"
	"os"

	"github.com/kylelemons/godebug/diff"
	"github.com/spf13/cobra"
	tpretty "github.com/tidwall/pretty"

	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/host"
	"github.com/strata-lang/strata/pkg/strata"
)

var replayCmd = &cobra.Command{
	Use:   "replay <trace-path> <source-path>",
	Short: "Re-run a program against a recorded trace",
	Long: `Load a replay-capable JSONL trace and re-execute the program against
it: every host call is validated against the recorded entry and answered
with the recorded output. Exits 0 when execution matches the trace exactly;
a divergence names the mismatching sequence number.`,
	Args: cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		traceContent, ok := readSource(args[0])
		if !ok {
			os.Exit(diag.ExitReplayMismatch)
		}
		src, ok := readSource(args[1])
		if !ok {
			os.Exit(diag.ExitCompileError)
		}
		prog, diags := strata.Check(src)
		if len(diags) > 0 {
			reportDiagnostics(diags, src)
			os.Exit(diag.ExitCompileError)
		}

		result, err := prog.Replay(traceContent)
		if err != nil {
			reportReplayError(err)
			if _, isReplay := err.(*host.ReplayError); isReplay {
				os.Exit(diag.ExitReplayMismatch)
			}
			os.Exit(diag.ExitRuntimeError)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "replay ok: main() = %s\n", result.String())
		}
	},
}

// reportReplayError renders a replay failure; input mismatches get a
// line-oriented diff of the expected vs. actual JSON fragments.
func reportReplayError(err error) {
	rerr, ok := err.(*host.ReplayError)
	if !ok {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", rerr.KindString(), rerr)
	if rerr.Kind == host.ReplayInputMismatch {
		expected := string(tpretty.Pretty([]byte(rerr.Expected)))
		actual := string(tpretty.Pretty([]byte(rerr.Actual)))
		fmt.Fprintln(os.Stderr, diff.Diff(expected, actual))
	}
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
