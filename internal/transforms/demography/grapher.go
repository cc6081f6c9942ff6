package demography

import (
	"context"

	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
)

func init() {
	steps.Register(steps.Transform{
		URI:     "grapher://" + namespace + "/" + version + "/un_population",
		Version: "1",
		Fn:      grapherPopulation,
	})
}

// grapherPopulation selects the indicators the charts need and attaches
// their display settings. The table stays wide; the sync melts it into
// one database variable per column.
func grapherPopulation(ctx context.Context, sc *steps.Context) (*catalog.Dataset, error) {
	dep, err := sc.Dep("un_population")
	if err != nil {
		return nil, err
	}
	garden, err := dep.Table("un_population")
	if err != nil {
		return nil, err
	}
	t, err := garden.Select("country", "year", "population", "births_per_capita", "growth_rate_5y")
	if err != nil {
		return nil, err
	}

	displays := map[string]*catalog.Display{
		"population":        {Name: "Population", NumDecimalPlaces: 0},
		"births_per_capita": {Name: "Birth rate", NumDecimalPlaces: 3},
		"growth_rate_5y":    {Name: "Population growth (5-year average)", ShortUnit: "%", NumDecimalPlaces: 2},
	}
	for col, d := range displays {
		t.MustColumn(col).Meta.Display = d
	}
	if err := t.SetIndex([]string{"country", "year"}, true); err != nil {
		return nil, err
	}

	ds := sc.NewDataset()
	ds.Meta.Title = "World population, harmonized"
	if err := ds.AddTable(t); err != nil {
		return nil, err
	}
	return ds, nil
}
