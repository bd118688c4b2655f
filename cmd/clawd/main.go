// Package main is the entry point for the clawd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/clawd-io/clawd/cmd/clawd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
