package main

import (
	"os"

	"github.com/strata-lang/strata/cmd/strata/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
