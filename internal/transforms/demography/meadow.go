// Package demography builds the UN population pipeline: meadow parsing,
// garden harmonization and aggregates, grapher variables and the
// population explorer export.
package demography

import (
	"context"
	"fmt"
	"os"

	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
)

const (
	namespace = "demography"
	version   = "2026-07-01"
)

func init() {
	steps.Register(steps.Transform{
		URI:     "data://meadow/" + namespace + "/" + version + "/un_population",
		Version: "1",
		Fn:      meadowPopulation,
	})
}

// meadowPopulation parses the raw population CSV into a typed table with
// a (country, year) primary key. Values stay exactly as published; only
// names and types change here.
func meadowPopulation(ctx context.Context, sc *steps.Context) (*catalog.Dataset, error) {
	path, err := sc.SnapshotPath("population.csv")
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := snapshot.ReadCSV(f, "un_population")
	if err != nil {
		return nil, err
	}
	for _, col := range []string{"country", "year", "population", "births", "growth_rate"} {
		if !t.HasColumn(col) {
			return nil, fmt.Errorf("population.csv: missing column %q", col)
		}
	}

	origin, err := sc.SnapshotMeta("population.csv")
	if err != nil {
		return nil, err
	}
	titles := map[string]catalog.VariableMeta{
		"population":  {Title: "Population", Unit: "people"},
		"births":      {Title: "Births", Unit: "births"},
		"growth_rate": {Title: "Population growth rate", Unit: "%", ShortUnit: "%"},
	}
	for col, meta := range titles {
		s := t.MustColumn(col)
		meta.Origins = []catalog.Origin{origin.Origin}
		s.Meta = meta
	}
	if err := t.SetIndex([]string{"country", "year"}, true); err != nil {
		return nil, err
	}

	ds := sc.NewDataset()
	ds.Meta.Title = "UN World Population Prospects"
	if err := ds.AddTable(t); err != nil {
		return nil, err
	}
	return ds, nil
}
