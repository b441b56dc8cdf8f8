// Package main provides the entry point for the shcov CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/shcov/cmd/shcov/commands"
	"github.com/Sumatoshi-tech/shcov/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err == nil {
		return
	}

	var exitErr *commands.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
