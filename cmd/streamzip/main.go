package main

import (
	"os"

	"github.com/beam-cloud/streamzip/pkg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
