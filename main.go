// Package main is the entry point for the bridge application.
package main

import (
	"fmt"
	"os"

	"github.com/danielolaszy/bridge/cmd"
	"github.com/danielolaszy/bridge/internal/logging"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logging.Error("command execution failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
