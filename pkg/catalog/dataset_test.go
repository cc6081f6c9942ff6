package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoDataset(t *testing.T, cat *LocalCatalog) *Dataset {
	t.Helper()
	tb, err := FromRecords("un_population", []string{"country", "year", "population"}, []Record{
		{"country": "France", "year": 2020, "population": 67.0},
		{"country": "Spain", "year": 2020, "population": 47.0},
	})
	require.NoError(t, err)
	require.NoError(t, tb.SetIndex([]string{"country", "year"}, true))

	ds := cat.NewDatasetAt(DatasetMeta{
		Channel:        ChannelGarden,
		Namespace:      "demography",
		Version:        "2026-07-01",
		ShortName:      "un_population",
		Title:          "UN population",
		IsPublic:       true,
		SourceChecksum: "abc123",
	})
	require.NoError(t, ds.AddTable(tb))
	return ds
}

func TestDatasetSaveLoadRoundTrip(t *testing.T) {
	cat := NewLocalCatalog(t.TempDir())
	ds := demoDataset(t, cat)
	require.NoError(t, ds.Save())

	back, err := cat.Dataset(ChannelGarden, "demography", "2026-07-01", "un_population")
	require.NoError(t, err)
	assert.Equal(t, ds.Meta, back.Meta)
	assert.Equal(t, []string{"un_population"}, back.TableNames())

	tb, err := back.Table("un_population")
	require.NoError(t, err)
	assert.Equal(t, []string{"country", "year", "population"}, tb.Columns())
	assert.Equal(t, []string{"country", "year"}, tb.Meta.PrimaryKey)
	assert.Equal(t, 2, tb.Len())
}

func TestDatasetSaveRemovesStaleTables(t *testing.T) {
	cat := NewLocalCatalog(t.TempDir())
	ds := demoDataset(t, cat)
	require.NoError(t, ds.Save())

	// A rebuild with a different table replaces the old contents.
	other, err := FromRecords("growth", []string{"country", "growth"}, []Record{
		{"country": "France", "growth": 0.3},
	})
	require.NoError(t, err)
	rebuilt := cat.NewDatasetAt(ds.Meta)
	require.NoError(t, rebuilt.AddTable(other))
	require.NoError(t, rebuilt.Save())

	back, err := LoadDataset(ds.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"growth"}, back.TableNames())
	_, err = os.Stat(filepath.Join(ds.Path, "un_population.parquet"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadDatasetRequiresIndex(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDataset(dir)
	require.Error(t, err)
}

func TestDatasetOriginsRollUp(t *testing.T) {
	cat := NewLocalCatalog(t.TempDir())
	ds := demoDataset(t, cat)
	tb, err := ds.Table("un_population")
	require.NoError(t, err)
	tb.MustColumn("population").Meta.Origins = []Origin{{Producer: "UN"}, {Producer: "World Bank"}}
	tb.MustColumn("year").Meta.Origins = []Origin{{Producer: "UN"}}

	origins := ds.Origins()
	require.Len(t, origins, 2)
}

func TestReindexListsEveryTable(t *testing.T) {
	cat := NewLocalCatalog(t.TempDir())
	require.NoError(t, demoDataset(t, cat).Save())

	meadow, err := FromRecords("un_population", []string{"country", "population"}, []Record{
		{"country": "France", "population": 67.0},
	})
	require.NoError(t, err)
	mds := cat.NewDatasetAt(DatasetMeta{
		Channel:   ChannelMeadow,
		Namespace: "demography",
		Version:   "2026-07-01",
		ShortName: "un_population",
	})
	require.NoError(t, mds.AddTable(meadow))
	require.NoError(t, mds.Save())

	n, err := cat.Reindex()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := cat.Index()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ChannelGarden, rows[0].Channel)
	assert.Equal(t, "demography", rows[0].Namespace)
	assert.Equal(t, "2026-07-01", rows[0].Version)
	assert.Equal(t, "un_population", rows[0].Table)
	assert.Equal(t, []string{"country", "year"}, rows[0].Dimensions)
	assert.Equal(t, "abc123", rows[0].Checksum)
	assert.True(t, rows[0].IsPublic)
	assert.Equal(t, ChannelMeadow, rows[1].Channel)
}

func TestHasDataset(t *testing.T) {
	cat := NewLocalCatalog(t.TempDir())
	assert.False(t, cat.HasDataset(ChannelGarden, "demography", "2026-07-01", "un_population"))
	require.NoError(t, demoDataset(t, cat).Save())
	assert.True(t, cat.HasDataset(ChannelGarden, "demography", "2026-07-01", "un_population"))
}
