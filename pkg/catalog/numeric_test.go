package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDivComputesRatioAndMeta(t *testing.T) {
	tb, err := FromRecords("t", []string{"country", "births", "population"}, []Record{
		{"country": "France", "births": 700.0, "population": 67000.0},
		{"country": "Spain", "births": 340.0, "population": nil},
		{"country": "Utopia", "births": 1.0, "population": 0.0},
	})
	require.NoError(t, err)
	tb.MustColumn("births").Meta = VariableMeta{Unit: "births", Origins: []Origin{{Producer: "UN"}}}
	tb.MustColumn("population").Meta = VariableMeta{Origins: []Origin{{Producer: "World Bank"}}}

	require.NoError(t, tb.Div("births", "population", "birth_rate"))
	s := tb.MustColumn("birth_rate")

	v, _ := s.Float(0)
	assert.InDelta(t, 700.0/67000.0, v, 1e-12)
	assert.True(t, s.IsNull(1), "missing denominator yields missing")
	assert.True(t, s.IsNull(2), "zero denominator yields missing")

	assert.Len(t, s.Meta.Origins, 2)
	assert.Equal(t, "births", s.Meta.Unit, "unitless denominator keeps the numerator unit")
	assert.Equal(t, ProcessingMajor, s.Meta.ProcessingLevel)
}

func TestDivClearsUnitWhenDenominatorHasOne(t *testing.T) {
	tb, err := FromRecords("t", []string{"a", "b"}, []Record{{"a": 1.0, "b": 2.0}})
	require.NoError(t, err)
	tb.MustColumn("a").Meta.Unit = "people"
	tb.MustColumn("b").Meta.Unit = "km²"
	require.NoError(t, tb.Div("a", "b", "ratio"))
	assert.Equal(t, "", tb.MustColumn("ratio").Meta.Unit)
}

func TestRollingMeanRestartsPerGroup(t *testing.T) {
	tb, err := FromRecords("t", []string{"country", "year", "v"}, []Record{
		{"country": "France", "year": 2019, "v": 1.0},
		{"country": "France", "year": 2020, "v": 2.0},
		{"country": "France", "year": 2021, "v": 3.0},
		{"country": "Spain", "year": 2020, "v": 10.0},
		{"country": "Spain", "year": 2021, "v": 20.0},
	})
	require.NoError(t, err)

	require.NoError(t, tb.RollingMean("v", "v_smoothed", RollingOptions{
		Window:     2,
		MinPeriods: 1,
		GroupBy:    []string{"country"},
	}))
	s := tb.MustColumn("v_smoothed")

	got := make([]any, s.Len())
	copy(got, s.Values)
	assert.Equal(t, []any{1.0, 1.5, 2.5, 10.0, 15.0}, got)
}

func TestRollingMeanHonorsMinPeriods(t *testing.T) {
	tb, err := FromRecords("t", []string{"v"}, []Record{
		{"v": 1.0}, {"v": 2.0}, {"v": 3.0},
	})
	require.NoError(t, err)
	require.NoError(t, tb.RollingMean("v", "m", RollingOptions{Window: 3}))
	s := tb.MustColumn("m")
	assert.True(t, s.IsNull(0))
	assert.True(t, s.IsNull(1))
	v, _ := s.Float(2)
	assert.Equal(t, 2.0, v)
}

func TestAssertValuesInRangeNamesOffenders(t *testing.T) {
	tb, err := FromRecords("t", []string{"country", "share"}, []Record{
		{"country": "France", "share": 55.0},
		{"country": "Spain", "share": 120.0},
		{"country": "Italy", "share": nil},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country"}, true))

	require.NoError(t, tb.AssertValuesInRange("share", 0, 200), "missing values do not violate the range")

	err = tb.AssertValuesInRange("share", 0, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Spain")
	assert.NotContains(t, err.Error(), "Italy")
}
