// Package main is the entry point for the medallion CLI binary.
package main

import (
	"os"

	cli "retail-medallion/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
