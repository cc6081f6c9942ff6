package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terracehq/terrace/internal/dag"
	"github.com/terracehq/terrace/internal/run"
	"github.com/terracehq/terrace/internal/steps"
)

func newRunCmd() *cobra.Command {
	var (
		force      bool
		dryRun     bool
		workers    int
		downstream bool
	)

	cmd := &cobra.Command{
		Use:   "run [patterns...]",
		Short: "Execute steps whose inputs changed, in dependency order",
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

			env, closeEnv, err := a.stepEnv(cmd.Context(), !dryRun)
			if err != nil {
				return err
			}
			defer closeEnv()

			if dryRun {
				return printDirtyState(cmd, g, env, force)
			}

			if workers <= 0 {
				workers = a.cfg.Workers
			}
			r := &run.Runner{Graph: g, Env: env, Workers: workers, Force: force, Log: a.log}
			results, runErr := r.Run(cmd.Context())
			for _, res := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %8.2fs  %s\n", res.Status, res.Duration.Seconds(), res.Step)
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Run every step even when its inputs are unchanged")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would run without executing anything")
	cmd.Flags().IntVar(&workers, "workers", 0, "Worker pool size (default from config)")
	cmd.Flags().BoolVar(&downstream, "downstream", false, "Also include steps downstream of the matched ones")
	return cmd
}

func printDirtyState(cmd *cobra.Command, g *dag.Graph, env *steps.Env, force bool) error {
	for _, id := range g.TopoOrder() {
		uri, err := g.URI(id)
		if err != nil {
			return err
		}
		deps, err := stepDeps(g, id)
		if err != nil {
			return err
		}
		state := "dirty"
		if force {
			state = "forced"
		} else {
			dirty, err := env.Dirty(uri, deps)
			if err != nil {
				return fmt.Errorf("check %s: %w", id, err)
			}
			if !dirty {
				state = "clean"
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%-6s  %s\n", state, id)
	}
	return nil
}

func stepDeps(g *dag.Graph, id string) ([]steps.URI, error) {
	depIDs, err := g.Dependencies(id)
	if err != nil {
		return nil, err
	}
	uris := make([]steps.URI, 0, len(depIDs))
	for _, depID := range depIDs {
		u, err := g.URI(depID)
		if err != nil {
			return nil, err
		}
		uris = append(uris, u)
	}
	return uris, nil
}
