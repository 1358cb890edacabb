// Package main provides the entry point for the trainkeep CLI.
package main

import (
	"fmt"
	"os"

	"github.com/randalmurphal/trainkeep/cmd/trainkeep/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
