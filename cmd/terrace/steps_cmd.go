package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStepsCmd() *cobra.Command {
	var downstream bool

	cmd := &cobra.Command{
		Use:   "steps [patterns...]",
		Short: "List known steps and whether their inputs changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			g, err := a.graph()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				g = g.Filter(args, downstream)
				if len(g.Steps()) == 0 {
					return fmt.Errorf("no steps match %v", args)
				}
			}
			env, closeEnv, err := a.stepEnv(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeEnv()
			return printDirtyState(cmd, g, env, false)
		},
	}

	cmd.Flags().BoolVar(&downstream, "downstream", false, "Also include steps downstream of the matched ones")
	return cmd
}
