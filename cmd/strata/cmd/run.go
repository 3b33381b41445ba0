package cmd

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/internal/eval"
	"github.com/strata-lang/strata/pkg/strata"
)

var (
	tracePath     string
	traceFullPath string
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Check and evaluate a Strata file",
	Long: `Check a Strata source file, then evaluate its main function with one
capability token injected per declared capability parameter.

  # audit trace: large output values are hashed, not stored
  strata run --trace out.jsonl program.strata

  # replay-capable trace: all values recorded in full
  strata run --trace-full out.jsonl program.strata`,
	Args: cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		src, ok := readSource(args[0])
		if !ok {
			os.Exit(diag.ExitCompileError)
		}
		prog, diags := strata.Check(src)
		if len(diags) > 0 {
			reportDiagnostics(diags, src)
			os.Exit(diag.ExitCompileError)
		}

		var traceFile *os.File
		var traceWriter *bufio.Writer
		fullValues := false
		path := tracePath
		if traceFullPath != "" {
			path = traceFullPath
			fullValues = true
		}
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: cannot create trace file: %v\n", err)
				os.Exit(diag.ExitRuntimeError)
			}
			traceFile = f
			traceWriter = bufio.NewWriter(f)
		}

		started := time.Now()
		var result eval.Value
		var runErr error
		if traceWriter != nil {
			result, runErr = prog.Run(flushWriter{traceWriter}, fullValues)
		} else {
			result, runErr = prog.Run(nil, false)
		}
		if traceFile != nil {
			traceWriter.Flush()
			traceFile.Close()
		}
		if runErr != nil {
			if rd, ok := runErr.(diag.Diagnostic); ok {
				reportDiagnostics([]diag.Diagnostic{rd}, src)
			} else {
				fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
			}
			os.Exit(diag.ExitRuntimeError)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "main() = %s (%s)\n", result.String(), humanize.RelTime(started, time.Now(), "elapsed", ""))
		}
	},
}

// flushWriter lets the trace emitter's Finalize flush the buffered file
// before the evaluator returns.
type flushWriter struct{ *bufio.Writer }

func (w flushWriter) Flush() error { return w.Writer.Flush() }

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&tracePath, "trace", "", "write an audit JSONL effect trace to this path")
	runCmd.Flags().StringVar(&traceFullPath, "trace-full", "", "write a replay-capable JSONL effect trace to this path")
	runCmd.MarkFlagsMutuallyExclusive("trace", "trace-full")
}
