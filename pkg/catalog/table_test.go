package catalog

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tb, err := FromRecords("population", []string{"country", "year", "population"}, []Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "France", "year": 2021, "population": 67.5},
		{"country": "Spain", "year": 2020, "population": 47.0},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))
	return tb
}

func TestFromRecordsInfersDTypes(t *testing.T) {
	tb, err := FromRecords("mixed", []string{"name", "count", "rate", "flag", "empty"}, []Record{
		{"name": "a", "count": 1, "rate": 0.5, "flag": true, "empty": nil},
		{"name": "b", "count": 2, "rate": nil, "flag": false, "empty": nil},
	})
	require.NoError(t, err)
	assert.Equal(t, TypeString, tb.MustColumn("name").DType)
	assert.Equal(t, TypeInt, tb.MustColumn("count").DType)
	assert.Equal(t, TypeFloat, tb.MustColumn("rate").DType)
	assert.Equal(t, TypeBool, tb.MustColumn("flag").DType)
	assert.Equal(t, TypeString, tb.MustColumn("empty").DType)
	assert.Equal(t, 2, tb.Len())
	assert.True(t, tb.MustColumn("rate").IsNull(1))
}

func TestVerifyPrimaryKeyReportsDuplicates(t *testing.T) {
	tb, err := FromRecords("dup", []string{"country", "year", "v"}, []Record{
		{"country": "France", "year": 2020, "v": 1.0},
		{"country": "France", "year": 2020, "v": 2.0},
		{"country": "Spain", "year": 2020, "v": 3.0},
	})
	require.NoError(t, err)
	err = tb.SetIndex([]string{"country", "year"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "France|2020")
	assert.NotContains(t, err.Error(), "Spain")
}

func TestVerifyPrimaryKeyRejectsNullKeys(t *testing.T) {
	tb, err := FromRecords("nulls", []string{"country", "v"}, []Record{
		{"country": "France", "v": 1.0},
		{"country": nil, "v": 2.0},
	})
	require.NoError(t, err)
	err = tb.SetIndex([]string{"country"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null keys")
}

func TestSetIndexMovesKeyColumnsFirst(t *testing.T) {
	tb, err := FromRecords("order", []string{"v", "year", "country"}, []Record{
		{"v": 1.0, "year": 2020, "country": "France"},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, false))
	assert.Equal(t, []string{"country", "year", "v"}, tb.Columns())
}

func TestRenameCarriesMetadataAndKey(t *testing.T) {
	tb := testTable(t)
	tb.MustColumn("population").Meta = VariableMeta{Unit: "people", Title: "Population"}
	require.NoError(t, tb.Rename(map[string]string{"population": "pop", "country": "entity"}))

	assert.Equal(t, "people", tb.MustColumn("pop").Meta.Unit)
	assert.Equal(t, []string{"entity", "year"}, tb.Meta.PrimaryKey)
	assert.False(t, tb.HasColumn("population"))
}

func TestRenameRejectsCollision(t *testing.T) {
	tb := testTable(t)
	err := tb.Rename(map[string]string{"population": "year"})
	require.Error(t, err)
}

func TestDropColumnsProtectsKey(t *testing.T) {
	tb := testTable(t)
	require.Error(t, tb.DropColumns("year"))
	require.NoError(t, tb.DropColumns("population"))
	assert.Equal(t, []string{"country", "year"}, tb.Columns())
}

func TestSelectKeepsSurvivingKey(t *testing.T) {
	tb := testTable(t)
	sub, err := tb.Select("country", "population")
	require.NoError(t, err)
	assert.Equal(t, []string{"country"}, sub.Meta.PrimaryKey)
	assert.Equal(t, 3, sub.Len())

	// The selection is a copy; mutating it leaves the source alone.
	require.NoError(t, sub.MustColumn("population").Set(0, 1.0))
	v, _ := tb.MustColumn("population").Float(0)
	assert.Equal(t, 67.0, v)
}

func TestAppendRecordCoerces(t *testing.T) {
	tb := testTable(t)
	require.NoError(t, tb.AppendRecord(Record{"country": "Italy", "year": 2020, "population": 59}))
	v, ok := tb.MustColumn("population").Float(3)
	require.True(t, ok)
	assert.Equal(t, 59.0, v)

	err := tb.AppendRecord(Record{"country": 7, "year": 2020})
	require.Error(t, err)
}

func TestNaNStoresAsMissing(t *testing.T) {
	s := NewSeries("v", TypeFloat)
	require.NoError(t, s.Append(math.NaN()))
	assert.True(t, s.IsNull(0))
}
