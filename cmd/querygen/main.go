// Package main provides the querygen command.
package main

import (
	"os"

	"github.com/leapstack-labs/querygen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
