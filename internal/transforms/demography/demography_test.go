package demography

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terracehq/terrace/internal/logging"
	"github.com/terracehq/terrace/internal/snapshot"
	"github.com/terracehq/terrace/internal/steps"
	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/collection"
	"github.com/terracehq/terrace/pkg/regions"
)

const populationCSV = `country,year,population,births,growth_rate
French Republic,2020,67000000,700000,0.3
French Republic,2021,67200000,690000,0.25
Deutschland,2020,83000000,770000,0.1
Deutschland,2021,83100000,760000,0.12
India,2020,1380000000,24000000,1.0
India,2021,1393000000,23500000,0.95
Unspecified,2020,1000,10,0.5
`

func newEnv(t *testing.T) *steps.Env {
	t.Helper()
	root := t.TempDir()
	set, err := regions.DefaultSet()
	require.NoError(t, err)
	log := logging.Nop()

	env := &steps.Env{
		Catalog: catalog.NewLocalCatalog(filepath.Join(root, "data")),
		Snapshots: &snapshot.Store{
			MetaDir:  filepath.Join(root, "snapshots"),
			CacheDir: filepath.Join(root, "cache"),
			Log:      log,
		},
		Regions:     set,
		Registry:    steps.DefaultRegistry(),
		StepMetaDir: filepath.Join(root, "steps"),
		Log:         log,
	}

	src := filepath.Join(root, "population.csv")
	require.NoError(t, os.WriteFile(src, []byte(populationCSV), 0o644))
	m := snapshot.Meta{
		Namespace:     "demography",
		Version:       "2026-07-01",
		ShortName:     "population",
		FileExtension: "csv",
		Origin:        catalog.Origin{Producer: "United Nations", Title: "World Population Prospects"},
	}
	require.NoError(t, env.Snapshots.Ingest(context.Background(), &m, src))

	gardenDir := filepath.Join(root, "steps", "garden", "demography", "2026-07-01")
	require.NoError(t, os.MkdirAll(gardenDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(gardenDir, "un_population.countries.json"),
		[]byte(`{"Deutschland": "Germany"}`), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(gardenDir, "un_population.excluded_countries.json"),
		[]byte(`["Unspecified"]`), 0o644))
	return env
}

func mustParse(t *testing.T, raw string) steps.URI {
	t.Helper()
	u, err := steps.Parse(raw)
	require.NoError(t, err)
	return u
}

func runPipeline(t *testing.T, env *steps.Env, through string) {
	t.Helper()
	ctx := context.Background()
	snap := mustParse(t, "snapshot://demography/2026-07-01/population.csv")
	meadow := mustParse(t, "data://meadow/demography/2026-07-01/un_population")
	garden := mustParse(t, "data://garden/demography/2026-07-01/un_population")

	require.NoError(t, env.Execute(ctx, meadow, []steps.URI{snap}))
	if through == "meadow" {
		return
	}
	require.NoError(t, env.Execute(ctx, garden, []steps.URI{meadow}))
	if through == "garden" {
		return
	}
	switch through {
	case "grapher":
		grapher := mustParse(t, "grapher://demography/2026-07-01/un_population")
		require.NoError(t, env.Execute(ctx, grapher, []steps.URI{garden}))
	case "export":
		export := mustParse(t, "export://demography/2026-07-01/population_explorer")
		require.NoError(t, env.Execute(ctx, export, []steps.URI{garden}))
	}
}

func TestMeadowTypesAndKeys(t *testing.T) {
	env := newEnv(t)
	runPipeline(t, env, "meadow")

	ds, err := env.Catalog.Dataset("meadow", "demography", "2026-07-01", "un_population")
	require.NoError(t, err)
	tb, err := ds.Table("un_population")
	require.NoError(t, err)

	assert.Equal(t, []string{"country", "year"}, tb.Meta.PrimaryKey)
	assert.Equal(t, catalog.TypeInt, tb.MustColumn("population").DType)
	assert.Equal(t, catalog.TypeFloat, tb.MustColumn("growth_rate").DType)
	assert.Equal(t, "people", tb.MustColumn("population").Meta.Unit)
	require.Len(t, tb.MustColumn("population").Meta.Origins, 1)
	assert.Equal(t, "United Nations", tb.MustColumn("population").Meta.Origins[0].Producer)
}

func TestGardenHarmonizesAndAggregates(t *testing.T) {
	env := newEnv(t)
	runPipeline(t, env, "garden")

	ds, err := env.Catalog.Dataset("garden", "demography", "2026-07-01", "un_population")
	require.NoError(t, err)
	tb, err := ds.Table("un_population")
	require.NoError(t, err)

	byCountryYear := map[string]catalog.Record{}
	cs := tb.MustColumn("country")
	ys := tb.MustColumn("year")
	for r := 0; r < tb.Len(); r++ {
		name, _ := cs.String(r)
		year, _ := ys.Int(r)
		if year == 2020 {
			byCountryYear[name] = tb.Row(r)
		}
	}

	assert.Contains(t, byCountryYear, "France")
	assert.Contains(t, byCountryYear, "Germany")
	assert.NotContains(t, byCountryYear, "Deutschland")
	assert.NotContains(t, byCountryYear, "French Republic")
	assert.NotContains(t, byCountryYear, "Unspecified")

	world, ok := byCountryYear["World"]
	require.True(t, ok, "expected a World aggregate row")
	assert.InDelta(t, float64(67000000+83000000+1380000000), asFloat(t, world["population"]), 1)

	europe, ok := byCountryYear["Europe"]
	require.True(t, ok, "expected a Europe aggregate row")
	assert.InDelta(t, float64(67000000+83000000), asFloat(t, europe["population"]), 1)

	// growth_rate aggregates as a population-weighted mean, so World sits
	// near India's rate rather than the unweighted average.
	assert.InDelta(t, 0.93, asFloat(t, world["growth_rate"]), 0.03)

	assert.Contains(t, byCountryYear, "High-income countries")
	assert.Contains(t, byCountryYear, "Lower-middle-income countries")

	france := byCountryYear["France"]
	assert.InDelta(t, 700000.0/67000000.0, asFloat(t, france["births_per_capita"]), 1e-9)
	require.True(t, tb.HasColumn("growth_rate_5y"))
}

func TestGrapherCarriesDisplayMetadata(t *testing.T) {
	env := newEnv(t)
	runPipeline(t, env, "grapher")

	ds, err := env.Catalog.Dataset("grapher", "demography", "2026-07-01", "un_population")
	require.NoError(t, err)
	tb, err := ds.Table("un_population")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"country", "year", "population", "births_per_capita", "growth_rate_5y"}, tb.Columns())
	d := tb.MustColumn("growth_rate_5y").Meta.Display
	require.NotNil(t, d)
	assert.Equal(t, "Population growth (5-year average)", d.Name)
	assert.Equal(t, "%", d.ShortUnit)
}

func TestExportWritesBundleAndCollection(t *testing.T) {
	env := newEnv(t)
	runPipeline(t, env, "export")

	dir := env.Catalog.DatasetPath("export", "demography", "2026-07-01", "population_explorer")
	for _, name := range []string{"countries.csv", "regions.csv", "collection.json", "index.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "collection.json"))
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	coll, err := collection.FromMap(m)
	require.NoError(t, err)
	require.NoError(t, coll.Validate())
	assert.Len(t, coll.Dimensions, 2)
	assert.Len(t, coll.Views, 6)
}

func asFloat(t *testing.T, v any) float64 {
	t.Helper()
	switch f := v.(type) {
	case float64:
		return f
	case int64:
		return float64(f)
	}
	t.Fatalf("value %v is not numeric", v)
	return 0
}
