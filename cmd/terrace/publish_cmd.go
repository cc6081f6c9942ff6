package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terracehq/terrace/internal/publish"
	"github.com/terracehq/terrace/pkg/catalog"
)

func newPublishCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload built datasets and the catalog index to the object store",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			store, err := a.objectStore()
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("no object store configured, set TERRACE_S3_ENDPOINT or TERRACE_LOCAL_STORE_DIR")
			}

			p := &publish.Publisher{
				Catalog: catalog.NewLocalCatalog(a.cfg.CatalogDir),
				Store:   store,
				Bucket:  a.cfg.CatalogBucket,
				Log:     a.log,
			}
			stats, err := p.Publish(cmd.Context(), dryRun)
			if err != nil {
				return err
			}
			verb := "uploaded"
			if dryRun {
				verb = "would upload"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d files (%d bytes), %d unchanged\n", verb, stats.Uploaded, stats.Bytes, stats.Skipped)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would upload without touching the store")
	return cmd
}
