package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terracehq/terrace/internal/steps"
)

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot <uri>",
		Short: "Fetch one snapshot into the local cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := steps.Parse(args[0])
			if err != nil {
				return err
			}
			if uri.Scheme != steps.SchemeSnapshot {
				return fmt.Errorf("%s is not a snapshot step", uri)
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			archive, err := a.objectStore()
			if err != nil {
				return err
			}
			store := a.snapshotStore(archive)

			m, err := store.Meta(uri.Namespace, uri.Version, uri.Name)
			if err != nil {
				return err
			}
			path, err := store.Fetch(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
