package main

import (
	"os"

	stratacmder "github.com/strataworks/strata/cmd/strata"
)

func main() {
	cmd := stratacmder.NewStrataCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
