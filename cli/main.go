package main

import (
	"os"

	"github.com/trinetra-vision/trinetra/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
