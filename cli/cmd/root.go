package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trinetra",
	Short: "TRINETRA retail vision CLI",
	Long: `trinetra is the operator command-line interface for the TRINETRA
retail vision pipeline.

Validate camera configuration, load identity galleries into the
similarity search backend, and seed synthetic detection events for
testing and development.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}
