package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinLeftFillsAndCombinesMeta(t *testing.T) {
	left, err := FromRecords("pop", []string{"country", "year", "population"}, []Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": nil},
		{"country": "Italy", "year": 2020, "population": 59.0},
	})
	require.NoError(t, err)
	left.MustColumn("population").Meta = VariableMeta{
		Unit:    "people",
		Origins: []Origin{{Producer: "UN", Title: "WPP"}},
	}
	require.NoError(t, left.SetIndex([]string{"country", "year"}, true))

	right, err := FromRecords("pop2", []string{"country", "year", "population", "gdp"}, []Record{
		{"country": "France", "year": 2020, "population": 999.0, "gdp": 2.6},
		{"country": "Spain", "year": 2020, "population": 47.0, "gdp": 1.4},
	})
	require.NoError(t, err)
	right.MustColumn("population").Meta = VariableMeta{
		Unit:    "people",
		Origins: []Origin{{Producer: "World Bank", Title: "WDI"}},
	}

	out, err := left.Join(right, JoinOptions{On: []string{"country", "year"}, Kind: JoinLeft, VerifyIntegrity: true})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	// Left values win; missing left values fill from the right.
	pop := out.MustColumn("population")
	v0, _ := pop.Float(0)
	v1, _ := pop.Float(1)
	assert.Equal(t, 67.0, v0)
	assert.Equal(t, 47.0, v1)

	// Units agree so the unit survives; origins union both producers.
	assert.Equal(t, "people", pop.Meta.Unit)
	require.Len(t, pop.Meta.Origins, 2)

	// Unmatched left row keeps a missing gdp.
	gdp := out.MustColumn("gdp")
	assert.True(t, gdp.IsNull(2))
}

func TestJoinClearsDisagreeingUnits(t *testing.T) {
	left, err := FromRecords("a", []string{"k", "v"}, []Record{{"k": "x", "v": 1.0}})
	require.NoError(t, err)
	left.MustColumn("v").Meta = VariableMeta{Unit: "people"}
	right, err := FromRecords("b", []string{"k", "v"}, []Record{{"k": "x", "v": 2.0}})
	require.NoError(t, err)
	right.MustColumn("v").Meta = VariableMeta{Unit: "%"}

	out, err := left.Join(right, JoinOptions{On: []string{"k"}})
	require.NoError(t, err)
	assert.Equal(t, "", out.MustColumn("v").Meta.Unit)
}

func TestJoinInnerDropsUnmatched(t *testing.T) {
	left, err := FromRecords("a", []string{"k", "v"}, []Record{
		{"k": "x", "v": 1.0},
		{"k": "y", "v": 2.0},
	})
	require.NoError(t, err)
	right, err := FromRecords("b", []string{"k", "w"}, []Record{{"k": "y", "w": 9.0}})
	require.NoError(t, err)

	out, err := left.Join(right, JoinOptions{On: []string{"k"}})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	k, _ := out.MustColumn("k").String(0)
	assert.Equal(t, "y", k)
}

func TestJoinOuterKeepsBothSides(t *testing.T) {
	left, err := FromRecords("a", []string{"k", "v"}, []Record{{"k": "x", "v": 1.0}})
	require.NoError(t, err)
	right, err := FromRecords("b", []string{"k", "w"}, []Record{{"k": "y", "w": 9.0}})
	require.NoError(t, err)

	out, err := left.Join(right, JoinOptions{On: []string{"k"}, Kind: JoinOuter})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	// Key columns fill from whichever side has the row.
	k1, _ := out.MustColumn("k").String(1)
	assert.Equal(t, "y", k1)
	assert.True(t, out.MustColumn("v").IsNull(1))
}

func TestConcatUnionsColumns(t *testing.T) {
	a, err := FromRecords("t", []string{"country", "population"}, []Record{
		{"country": "France", "population": int64(67)},
	})
	require.NoError(t, err)
	b, err := FromRecords("t", []string{"country", "gdp"}, []Record{
		{"country": "Spain", "gdp": 1.4},
	})
	require.NoError(t, err)

	out, err := Concat(a, b)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{"country", "population", "gdp"}, out.Columns())
	assert.True(t, out.MustColumn("gdp").IsNull(0))
	assert.True(t, out.MustColumn("population").IsNull(1))
}

func TestConcatWidensIntToFloat(t *testing.T) {
	a, err := FromRecords("t", []string{"v"}, []Record{{"v": int64(1)}})
	require.NoError(t, err)
	b, err := FromRecords("t", []string{"v"}, []Record{{"v": 1.5}})
	require.NoError(t, err)

	out, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, out.MustColumn("v").DType)
	v, _ := out.MustColumn("v").Float(0)
	assert.Equal(t, 1.0, v)
}

func TestConcatRejectsConflictingDTypes(t *testing.T) {
	a, err := FromRecords("t", []string{"v"}, []Record{{"v": "x"}})
	require.NoError(t, err)
	b, err := FromRecords("t", []string{"v"}, []Record{{"v": 1.5}})
	require.NoError(t, err)
	_, err = Concat(a, b)
	require.Error(t, err)
}

func TestGroupByAggregate(t *testing.T) {
	tb, err := FromRecords("t", []string{"continent", "country", "population"}, []Record{
		{"continent": "Europe", "country": "France", "population": 67.0},
		{"continent": "Europe", "country": "Spain", "population": 47.0},
		{"continent": "Asia", "country": "Japan", "population": 125.0},
		{"continent": "Europe", "country": "Italy", "population": nil},
	})
	require.NoError(t, err)

	g, err := tb.GroupBy("continent")
	require.NoError(t, err)
	out, err := g.Aggregate(map[string]AggFunc{"population": AggSum})
	require.NoError(t, err)

	require.Equal(t, 2, out.Len())
	c0, _ := out.MustColumn("continent").String(0)
	assert.Equal(t, "Europe", c0)
	sum, _ := out.MustColumn("population").Float(0)
	assert.Equal(t, 114.0, sum)
	asia, _ := out.MustColumn("population").Float(1)
	assert.Equal(t, 125.0, asia)
}

func TestGroupByMeanAndMedianAreFloat(t *testing.T) {
	tb, err := FromRecords("t", []string{"g", "v"}, []Record{
		{"g": "a", "v": int64(1)},
		{"g": "a", "v": int64(2)},
		{"g": "a", "v": int64(4)},
	})
	require.NoError(t, err)
	g, err := tb.GroupBy("g")
	require.NoError(t, err)

	mean, err := g.Aggregate(map[string]AggFunc{"v": AggMean})
	require.NoError(t, err)
	v, _ := mean.MustColumn("v").Float(0)
	assert.InDelta(t, 7.0/3.0, v, 1e-9)

	med, err := g.Aggregate(map[string]AggFunc{"v": AggMedian})
	require.NoError(t, err)
	m, _ := med.MustColumn("v").Float(0)
	assert.Equal(t, 2.0, m)
}

func TestGroupByEmptyGroupValueIsMissing(t *testing.T) {
	tb, err := FromRecords("t", []string{"g", "v"}, []Record{
		{"g": "a", "v": nil},
	})
	require.NoError(t, err)
	g, err := tb.GroupBy("g")
	require.NoError(t, err)
	out, err := g.Aggregate(map[string]AggFunc{"v": AggSum})
	require.NoError(t, err)
	assert.True(t, out.MustColumn("v").IsNull(0))
}

func TestSortOrdersAndKeepsMissingLast(t *testing.T) {
	tb, err := FromRecords("t", []string{"country", "year"}, []Record{
		{"country": "Spain", "year": 2021},
		{"country": "France", "year": nil},
		{"country": "France", "year": 2020},
	})
	require.NoError(t, err)
	out, err := tb.Sort("country", "year")
	require.NoError(t, err)

	c0, _ := out.MustColumn("country").String(0)
	assert.Equal(t, "France", c0)
	y0, _ := out.MustColumn("year").Int(0)
	assert.Equal(t, int64(2020), y0)
	assert.True(t, out.MustColumn("year").IsNull(1))
}

func TestFilterKeepsMatchingRows(t *testing.T) {
	tb := testTable(t)
	yr := tb.MustColumn("year")
	out := tb.Filter(func(r int) bool {
		y, ok := yr.Int(r)
		return ok && y == 2020
	})
	assert.Equal(t, 2, out.Len())
}
