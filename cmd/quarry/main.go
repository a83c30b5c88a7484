package main

import (
	"os"

	"github.com/quarrydocs/quarry/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
