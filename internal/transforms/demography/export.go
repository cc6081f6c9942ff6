package demography

import (
	"context"

	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/collection"
)

func init() {
	steps.Register(steps.Transform{
		URI:     "export://" + namespace + "/" + version + "/population_explorer",
		Version: "1",
		Fn:      exportPopulationExplorer,
	})
}

// exportPopulationExplorer splits the garden table into a countries and a
// regions table and declares the explorer's metric and region-type
// dimensions over them.
func exportPopulationExplorer(ctx context.Context, sc *steps.Context) (*catalog.Dataset, error) {
	dep, err := sc.Dep("un_population")
	if err != nil {
		return nil, err
	}
	garden, err := dep.Table("un_population")
	if err != nil {
		return nil, err
	}

	composite := map[string]bool{}
	for _, name := range sc.Regions.Composites() {
		composite[name] = true
	}
	names := garden.MustColumn("country")
	countries := garden.Filter(func(r int) bool {
		n, ok := names.String(r)
		return ok && !composite[n]
	})
	countries.Meta.ShortName = "countries"
	countries.Meta.Title = "Population by country"
	aggregates := garden.Filter(func(r int) bool {
		n, ok := names.String(r)
		return ok && composite[n]
	})
	aggregates.Meta.ShortName = "regions"
	aggregates.Meta.Title = "Population by world region"

	metrics := []collection.Choice{
		{Slug: "population", Name: "Population"},
		{Slug: "births_per_capita", Name: "Birth rate"},
		{Slug: "growth_rate_5y", Name: "Growth rate"},
	}
	regionTypes := []collection.Choice{
		{Slug: "countries", Name: "Countries"},
		{Slug: "regions", Name: "World regions"},
	}
	coll := &collection.Collection{
		Title: "Population explorer",
		Dimensions: []collection.Dimension{
			{Slug: "metric", Name: "Metric", Choices: metrics},
			{Slug: "region_type", Name: "Region type", Choices: regionTypes},
		},
	}
	for _, rt := range regionTypes {
		for _, m := range metrics {
			coll.Views = append(coll.Views, collection.View{
				Dimensions: map[string]string{"metric": m.Slug, "region_type": rt.Slug},
				Indicators: []string{rt.Slug + "#" + m.Slug},
			})
		}
	}
	sc.Collection = coll

	ds := sc.NewDataset()
	ds.Meta.Title = "Population explorer"
	for _, t := range []*catalog.Table{countries, aggregates} {
		if err := t.SetIndex([]string{"country", "year"}, true); err != nil {
			return nil, err
		}
		if err := ds.AddTable(t); err != nil {
			return nil, err
		}
	}
	return ds, nil
}
