package demography

import (
	"context"
	"fmt"
	"strings"

	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/regions"
)

func init() {
	steps.Register(steps.Transform{
		URI:     "data://garden/" + namespace + "/" + version + "/un_population",
		Version: "2",
		Fn:      gardenPopulation,
	})
}

// gardenPopulation harmonizes country names, appends continent, World and
// income-group aggregates, and derives the per-capita birth rate and the
// five-year average growth rate.
func gardenPopulation(ctx context.Context, sc *steps.Context) (*catalog.Dataset, error) {
	dep, err := sc.Dep("un_population")
	if err != nil {
		return nil, err
	}
	raw, err := dep.Table("un_population")
	if err != nil {
		return nil, err
	}

	t, err := sc.Harmonizer.Apply(raw, "country")
	if err != nil {
		return nil, err
	}
	t, err = t.Sort("country", "year")
	if err != nil {
		return nil, err
	}

	aggRegions := append(sc.Regions.DefaultAggregateRegions(),
		sc.Regions.Composites(regions.TypeIncomeGroup)...)
	aggOpts := regions.AggregateOptions{
		Regions:          aggRegions,
		NaNTolerance:     0.2,
		WeightedMeanCols: []string{"growth_rate"},
		Population:       t,
	}
	t, err = sc.Regions.AddAggregates(t, aggOpts)
	if err != nil {
		return nil, err
	}
	t, err = t.Sort("country", "year")
	if err != nil {
		return nil, err
	}

	// The World row must equal the sum of its reporting members; anything
	// else means the aggregation dropped or double-counted a country.
	violations, err := sc.Regions.CheckAggregateSums(t, "World", []string{"population"}, 0.01, regions.AggregateOptions{})
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return nil, fmt.Errorf("aggregate check failed: %s", strings.Join(msgs, "; "))
	}

	if err := regions.AddPerCapita(t, []string{"births"}, t, regions.PerCapitaOptions{}); err != nil {
		return nil, err
	}
	if err := t.RollingMean("growth_rate", "growth_rate_5y", catalog.RollingOptions{
		Window:     5,
		MinPeriods: 1,
		GroupBy:    []string{"country"},
	}); err != nil {
		return nil, err
	}
	pc := t.MustColumn("births_per_capita")
	pc.Meta.Title = "Birth rate"
	g5 := t.MustColumn("growth_rate_5y")
	g5.Meta.Title = "Population growth rate, 5-year average"

	if err := t.SetIndex([]string{"country", "year"}, true); err != nil {
		return nil, err
	}

	ds := sc.NewDataset()
	ds.Meta.Title = "World population, harmonized"
	ds.Meta.Description = "UN population estimates with canonical country names and regional aggregates."
	if err := ds.AddTable(t); err != nil {
		return nil, err
	}
	return ds, nil
}
