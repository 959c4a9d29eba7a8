// Package main is the entry point for the weft CLI.
package main

import (
	"os"

	"github.com/weft-labs/weft/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
