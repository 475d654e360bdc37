// Package main provides the entry point for the docanalyzer CLI.
package main

import (
	"errors"
	"os"

	"github.com/maverikod/docanalyzer/cmd/docanalyzer/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		os.Exit(0)
	}

	var exitErr *cmd.ExitCodeError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
