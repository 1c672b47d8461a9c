// Package main provides the entry point for the containerindex-admin CLI.
package main

import (
	"os"

	"github.com/kitsune-search/containerindex/cmd/containerindex-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
