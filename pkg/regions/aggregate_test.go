package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terracehq/terrace/pkg/catalog"
)

func countryTable(t *testing.T, records []catalog.Record) *catalog.Table {
	t.Helper()
	tb, err := catalog.FromRecords("population", []string{"country", "year", "population"}, records)
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))
	return tb
}

func mustFloat(t *testing.T, tb *catalog.Table, col string, r int) float64 {
	t.Helper()
	v, ok := tb.MustColumn(col).Float(r)
	require.True(t, ok, "row %d of %s has no value", r, col)
	return v
}

// findRow returns the position of the (country, year) row.
func findRow(tb *catalog.Table, country string, year int64) int {
	cs := tb.MustColumn("country")
	ys := tb.MustColumn("year")
	for r := 0; r < tb.Len(); r++ {
		c, _ := cs.String(r)
		y, _ := ys.Int(r)
		if c == country && y == year {
			return r
		}
	}
	return -1
}

func TestAddAggregatesSumsAndKeepsOriginals(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": 47.0},
		{"country": "Japan", "year": 2020, "population": 125.0},
		{"country": "France", "year": 2021, "population": 67.5},
	})

	out, err := s.AddAggregates(tb, AggregateOptions{
		Regions: []string{"Europe", "Asia", "World"},
	})
	require.NoError(t, err)

	// Every original per-country row survives, in order, unchanged.
	require.GreaterOrEqual(t, out.Len(), tb.Len())
	for r := 0; r < tb.Len(); r++ {
		assert.Equal(t, tb.Row(r), out.Row(r), "row %d", r)
	}

	assert.Equal(t, 67.0+47.0, mustFloat(t, out, "population", findRow(out, "Europe", 2020)))
	assert.Equal(t, 125.0, mustFloat(t, out, "population", findRow(out, "Asia", 2020)))
	assert.Equal(t, 67.0+47.0+125.0, mustFloat(t, out, "population", findRow(out, "World", 2020)))
	assert.Equal(t, 67.5, mustFloat(t, out, "population", findRow(out, "Europe", 2021)))
	assert.Equal(t, -1, findRow(out, "Asia", 2021), "no Asian country reports in 2021")

	require.NoError(t, out.VerifyPrimaryKey())
}

func TestAddAggregatesReplacesPreexistingRegionRows(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Europe", "year": 2020, "population": 999999.0},
	})

	out, err := s.AddAggregates(tb, AggregateOptions{Regions: []string{"Europe"}})
	require.NoError(t, err)

	r := findRow(out, "Europe", 2020)
	require.GreaterOrEqual(t, r, 0)
	assert.Equal(t, 67.0, mustFloat(t, out, "population", r), "stale aggregate is replaced, not summed in")
}

func TestAddAggregatesMinNumValues(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": 47.0},
		{"country": "France", "year": 2021, "population": 67.5},
	})

	out, err := s.AddAggregates(tb, AggregateOptions{
		Regions:      []string{"Europe"},
		MinNumValues: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 114.0, mustFloat(t, out, "population", findRow(out, "Europe", 2020)))
	r2021 := findRow(out, "Europe", 2021)
	require.GreaterOrEqual(t, r2021, 0)
	assert.True(t, out.MustColumn("population").IsNull(r2021), "one reporter is below the threshold")
}

func TestAddAggregatesNaNTolerance(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	// Spain goes missing in 2021: 1 of 2 covered members reporting.
	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": 47.0},
		{"country": "France", "year": 2021, "population": 67.5},
		{"country": "Spain", "year": 2021, "population": nil},
	})

	strict, err := s.AddAggregates(tb, AggregateOptions{
		Regions:      []string{"Europe"},
		NaNTolerance: 0.2,
	})
	require.NoError(t, err)
	r := findRow(strict, "Europe", 2021)
	assert.True(t, strict.MustColumn("population").IsNull(r), "half missing exceeds 20% tolerance")

	lenient, err := s.AddAggregates(tb, AggregateOptions{
		Regions:      []string{"Europe"},
		NaNTolerance: 0.5,
	})
	require.NoError(t, err)
	r = findRow(lenient, "Europe", 2021)
	assert.Equal(t, 67.5, mustFloat(t, lenient, "population", r))

	_, err = s.AddAggregates(tb, AggregateOptions{NaNTolerance: 0.5, MinFracValues: 0.5})
	require.Error(t, err, "the two threshold forms are exclusive")
}

func TestAddAggregatesWeightedMean(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	pop := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 60.0},
		{"country": "Spain", "year": 2020, "population": 40.0},
	})

	tb, err := catalog.FromRecords("life", []string{"country", "year", "life_expectancy"}, []catalog.Record{
		{"country": "France", "year": 2020, "life_expectancy": 82.0},
		{"country": "Spain", "year": 2020, "life_expectancy": 83.0},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))

	out, err := s.AddAggregates(tb, AggregateOptions{
		Regions:          []string{"Europe"},
		WeightedMeanCols: []string{"life_expectancy"},
		Population:       pop,
	})
	require.NoError(t, err)

	want := (82.0*60 + 83.0*40) / 100
	assert.InDelta(t, want, mustFloat(t, out, "life_expectancy", findRow(out, "Europe", 2020)), 1e-9)
}

func TestAddAggregatesWeightedMeanNeedsPopulation(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)
	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
	})
	_, err = s.AddAggregates(tb, AggregateOptions{WeightedMeanCols: []string{"population"}})
	require.Error(t, err)
}

func TestAddAggregatesMeanWidensIntColumns(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)
	tb, err := catalog.FromRecords("t", []string{"country", "year", "score"}, []catalog.Record{
		{"country": "France", "year": 2020, "score": int64(1)},
		{"country": "Spain", "year": 2020, "score": int64(2)},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))

	out, err := s.AddAggregates(tb, AggregateOptions{
		Regions:      []string{"Europe"},
		Aggregations: map[string]catalog.AggFunc{"score": catalog.AggMean},
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.TypeFloat, out.MustColumn("score").DType)
	assert.Equal(t, 1.5, mustFloat(t, out, "score", findRow(out, "Europe", 2020)))
}

func TestAddAggregatesIncomeGroups(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb := countryTable(t, []catalog.Record{
		{"country": "Germany", "year": 2020, "population": 83.0},
		{"country": "United States", "year": 2020, "population": 331.0},
		{"country": "Niger", "year": 2020, "population": 24.0},
	})

	out, err := s.AddAggregates(tb, AggregateOptions{
		Regions: []string{"High-income countries", "Low-income countries"},
	})
	require.NoError(t, err)

	assert.Equal(t, 83.0+331.0, mustFloat(t, out, "population", findRow(out, "High-income countries", 2020)))
	assert.Equal(t, 24.0, mustFloat(t, out, "population", findRow(out, "Low-income countries", 2020)))
}

func TestAddAggregatesExtraKeyDimension(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb, err := catalog.FromRecords("t", []string{"country", "year", "sex", "population"}, []catalog.Record{
		{"country": "France", "year": 2020, "sex": "female", "population": 34.0},
		{"country": "France", "year": 2020, "sex": "male", "population": 33.0},
		{"country": "Spain", "year": 2020, "sex": "female", "population": 24.0},
		{"country": "Spain", "year": 2020, "sex": "male", "population": 23.0},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year", "sex"}, true))

	out, err := s.AddAggregates(tb, AggregateOptions{Regions: []string{"Europe"}})
	require.NoError(t, err)

	cs := out.MustColumn("country")
	ss := out.MustColumn("sex")
	var femaleEurope float64
	found := false
	for r := 0; r < out.Len(); r++ {
		c, _ := cs.String(r)
		sx, _ := ss.String(r)
		if c == "Europe" && sx == "female" {
			femaleEurope = mustFloat(t, out, "population", r)
			found = true
		}
	}
	require.True(t, found)
	assert.Equal(t, 58.0, femaleEurope)
}

func TestAddPerCapita(t *testing.T) {
	pop, err := catalog.FromRecords("population", []string{"country", "year", "population"}, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67000000.0},
	})
	require.NoError(t, err)
	pop.MustColumn("population").Meta.Origins = []catalog.Origin{{Producer: "UN"}}

	tb, err := catalog.FromRecords("t", []string{"country", "year", "gdp"}, []catalog.Record{
		{"country": "France", "year": 2020, "gdp": 2.6e12},
		{"country": "Narnia", "year": 2020, "gdp": 1.0},
	})
	require.NoError(t, err)
	tb.MustColumn("gdp").Meta = catalog.VariableMeta{Unit: "US$", Origins: []catalog.Origin{{Producer: "World Bank"}}}

	require.NoError(t, AddPerCapita(tb, []string{"gdp"}, pop, PerCapitaOptions{}))
	s := tb.MustColumn("gdp_per_capita")

	v, ok := s.Float(0)
	require.True(t, ok)
	assert.InDelta(t, 2.6e12/67000000.0, v, 1e-6)
	assert.True(t, s.IsNull(1), "no population match leaves the value missing")
	assert.Equal(t, "US$ per capita", s.Meta.Unit)
	assert.Len(t, s.Meta.Origins, 2)
}

func TestCheckAggregateSums(t *testing.T) {
	s, err := DefaultSet()
	require.NoError(t, err)

	tb := countryTable(t, []catalog.Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": 47.0},
	})
	out, err := s.AddAggregates(tb, AggregateOptions{Regions: []string{"Europe"}})
	require.NoError(t, err)

	violations, err := s.CheckAggregateSums(out, "Europe", []string{"population"}, 0.01, AggregateOptions{})
	require.NoError(t, err)
	assert.Empty(t, violations)

	// Corrupt the aggregate and the check notices.
	r := findRow(out, "Europe", 2020)
	require.NoError(t, out.MustColumn("population").Set(r, 500.0))
	violations, err = s.CheckAggregateSums(out, "Europe", []string{"population"}, 0.01, AggregateOptions{})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "population", violations[0].Column)
	assert.Equal(t, 500.0, violations[0].Aggregate)
	assert.Equal(t, 114.0, violations[0].MemberSum)
}
