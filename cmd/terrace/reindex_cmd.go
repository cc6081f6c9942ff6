package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terracehq/terrace/pkg/catalog"
)

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild catalog.json from the datasets on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			n, err := catalog.NewLocalCatalog(a.cfg.CatalogDir).Reindex()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d tables\n", n)
			return nil
		},
	}
}
