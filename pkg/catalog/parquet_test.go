package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetRoundTrip(t *testing.T) {
	tb, err := FromRecords("population", []string{"country", "year", "population", "is_estimate"}, []Record{
		{"country": "France", "year": 2020, "population": 67.39, "is_estimate": false},
		{"country": "Côte d'Ivoire", "year": 2020, "population": 26.38, "is_estimate": true},
		{"country": "Spain", "year": 2021, "population": nil, "is_estimate": nil},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))
	tb.MustColumn("population").Meta = VariableMeta{
		Title: "Population",
		Unit:  "people",
		Origins: []Origin{{
			Producer:     "UN",
			Title:        "World Population Prospects",
			URLMain:      "https://population.un.org/wpp/",
			DateAccessed: "2026-07-01",
			License:      &License{Name: "CC BY 3.0 IGO"},
		}},
	}

	data, err := EncodeParquet(tb)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	back, err := DecodeParquet(data, tb.Sidecar())
	require.NoError(t, err)

	assert.Equal(t, tb.Columns(), back.Columns())
	assert.Equal(t, tb.Meta.PrimaryKey, back.Meta.PrimaryKey)
	require.Equal(t, tb.Len(), back.Len())
	for _, col := range tb.Columns() {
		want := tb.MustColumn(col)
		got := back.MustColumn(col)
		assert.Equal(t, want.DType, got.DType, col)
		assert.Equal(t, want.Values, got.Values, col)
	}

	// Variable metadata travels through the sidecar.
	meta := back.MustColumn("population").Meta
	assert.Equal(t, "people", meta.Unit)
	require.Len(t, meta.Origins, 1)
	assert.Equal(t, "UN", meta.Origins[0].Producer)
	require.NotNil(t, meta.Origins[0].License)
}

func TestParquetRoundTripEmptyTable(t *testing.T) {
	tb := NewTable("empty")
	require.NoError(t, tb.AddSeries(NewSeries("country", TypeString)))
	require.NoError(t, tb.AddSeries(NewSeries("population", TypeFloat)))

	data, err := EncodeParquet(tb)
	require.NoError(t, err)
	back, err := DecodeParquet(data, tb.Sidecar())
	require.NoError(t, err)
	assert.Equal(t, 0, back.Len())
	assert.Equal(t, []string{"country", "population"}, back.Columns())
	assert.Equal(t, TypeFloat, back.MustColumn("population").DType)
}

func TestParquetRoundTripAllMissingColumn(t *testing.T) {
	tb, err := FromRecords("t", []string{"country"}, []Record{
		{"country": "France"}, {"country": "Spain"},
	})
	require.NoError(t, err)
	gap := NewSeries("gap", TypeFloat)
	require.NoError(t, gap.Append(nil))
	require.NoError(t, gap.Append(nil))
	require.NoError(t, tb.AddSeries(gap))

	data, err := EncodeParquet(tb)
	require.NoError(t, err)
	back, err := DecodeParquet(data, tb.Sidecar())
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, back.MustColumn("gap").DType)
	assert.Equal(t, 2, back.MustColumn("gap").NullCount())
}

func TestEncodeParquetRejectsBadColumnNames(t *testing.T) {
	tb := NewTable("t")
	require.NoError(t, tb.AddSeries(NewSeries("has space", TypeString)))
	_, err := EncodeParquet(tb)
	require.Error(t, err)
}

func TestDecodeParquetRejectsUnknownDType(t *testing.T) {
	tb, err := FromRecords("t", []string{"v"}, []Record{{"v": 1.0}})
	require.NoError(t, err)
	data, err := EncodeParquet(tb)
	require.NoError(t, err)

	sc := tb.Sidecar()
	sc.Columns["v"] = ColumnSidecar{DType: "decimal128"}
	_, err = DecodeParquet(data, sc)
	require.Error(t, err)
}

func TestInt64SurvivesRoundTrip(t *testing.T) {
	big := int64(1) << 60
	tb, err := FromRecords("t", []string{"v"}, []Record{{"v": big}})
	require.NoError(t, err)
	data, err := EncodeParquet(tb)
	require.NoError(t, err)
	back, err := DecodeParquet(data, tb.Sidecar())
	require.NoError(t, err)
	v, ok := back.MustColumn("v").Int(0)
	require.True(t, ok)
	assert.Equal(t, big, v)
}
