// Package main is the entry point for the nukevideo application.
package main

import (
	"os"

	"github.com/nukevideo/nukevideo/cmd/nukevideo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
