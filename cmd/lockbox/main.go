// Package main provides the lockbox CLI application.
package main

import (
	"fmt"
	"os"
)

func main() {
	registerCompletionFunctions()

	err := rootCmd.Execute()
	if cerr := closeVault(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
