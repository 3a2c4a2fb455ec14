package main

import (
	"os"

	"github.com/quietfold/retain/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
