// Package main provides the entry point for the amanidx CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/amanidx/cmd/amanidx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
