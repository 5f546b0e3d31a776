// Package main provides the dbtlineage CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/dbtlineage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
