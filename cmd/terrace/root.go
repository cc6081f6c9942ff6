package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "terrace",
		Short:        "Layered data catalog build pipeline",
		SilenceUsage: true,
	}
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStepsCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newHarmonizeCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newReindexCmd())
	return cmd
}

func execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
