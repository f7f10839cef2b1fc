// Package main provides the entry point for the tribalmemory CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanmcp/cmd/tribalmemory/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
