package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	yaml "github.com/goccy/go-yaml"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"
	tpretty "github.com/tidwall/pretty"

	"github.com/strata-lang/strata/internal/diag"
	"github.com/strata-lang/strata/pkg/strata"
)

var dumpAST string

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Parse and type-check a Strata file",
	Long: `Parse a Strata source file and run the full static semantics:
type inference, effect-row solving, capability discipline, affine move
checking, and match exhaustiveness/redundancy analysis.

Exits 0 on success, 1 with diagnostics on stderr otherwise.`,
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
		if dumpAST != "" {
			if err := dumpModule(prog); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(diag.ExitCompileError)
			}
		}
		if verbose {
			dumpSchemes(prog)
		}
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&dumpAST, "dump-ast", "", "dump the parsed AST after checking (json or yaml)")
}

func dumpModule(prog *strata.Program) error {
	switch dumpAST {
	case "json":
		raw, err := json.Marshal(prog.Module)
		if err != nil {
			return err
		}
		os.Stdout.Write(tpretty.Pretty(raw))
		return nil
	case "yaml":
		raw, err := yaml.Marshal(prog.Module)
		if err != nil {
			return err
		}
		os.Stdout.Write(raw)
		return nil
	default:
		return fmt.Errorf("unknown --dump-ast format %q (want json or yaml)", dumpAST)
	}
}

// dumpSchemes prints each function's inferred scheme and effect row.
func dumpSchemes(prog *strata.Program) {
	names := make([]string, 0, len(prog.Types.FnSchemes))
	for name := range prog.Types.FnSchemes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sch := prog.Types.FnSchemes[name]
		fmt.Printf("%s : %s\n", name, sch.Ty.String())
		fmt.Printf("  %s\n", pretty.Sprint(sch))
	}
}
