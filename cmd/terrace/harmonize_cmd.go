package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/pkg/harmonize"
	"github.com/terracehq/terrace/pkg/regions"
)

func newHarmonizeCmd() *cobra.Command {
	var suggestions int

	cmd := &cobra.Command{
		Use:   "harmonize <input.csv> <column> <output.json>",
		Short: "Generate a country mapping skeleton from a CSV column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, column, outputPath := args[0], args[1], args[2]

			f, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer f.Close()
			t, err := snapshot.ReadCSV(f, "input")
			if err != nil {
				return err
			}
			col, err := t.Column(snapshot.ToSnakeCase(column))
			if err != nil {
				return fmt.Errorf("column %q not found in %s", column, inputPath)
			}

			seen := map[string]bool{}
			var rawNames []string
			for i := 0; i < col.Len(); i++ {
				name, ok := col.String(i)
				if !ok || name == "" || seen[name] {
					continue
				}
				seen[name] = true
				rawNames = append(rawNames, name)
			}
			sort.Strings(rawNames)

			set, err := regions.DefaultSet()
			if err != nil {
				return err
			}
			existing, err := harmonize.LoadMapping(outputPath)
			if err != nil {
				return err
			}
			h := harmonize.New(set, existing, nil)

			mapping, pending := h.BuildMapping(rawNames, suggestions)
			if err := mapping.Save(outputPath); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "mapped %d of %d names to %s\n", len(mapping), len(rawNames), outputPath)
			if len(pending) > 0 {
				var unmapped []string
				for raw := range pending {
					unmapped = append(unmapped, raw)
				}
				sort.Strings(unmapped)
				fmt.Fprintf(cmd.OutOrStdout(), "%d names need a manual decision:\n", len(unmapped))
				for _, raw := range unmapped {
					fmt.Fprintf(cmd.OutOrStdout(), "  %-40s candidates: %s\n", raw, strings.Join(pending[raw], ", "))
				}
				return fmt.Errorf("%d names unmapped, edit %s and rerun", len(unmapped), outputPath)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&suggestions, "suggestions", 3, "Candidates to list per unmapped name")
	return cmd
}
