package harmonize

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terracehq/terrace/pkg/catalog"
	"github.com/terracehq/terrace/pkg/regions"
)

func newHarmonizer(t *testing.T, mapping Mapping, exclude []string) *Harmonizer {
	t.Helper()
	set, err := regions.DefaultSet()
	require.NoError(t, err)
	return New(set, mapping, exclude)
}

func TestCanonicalizeResolutionOrder(t *testing.T) {
	h := newHarmonizer(t, Mapping{"Germany (FRG)": "Germany"}, nil)

	got, ok := h.Canonicalize("France")
	require.True(t, ok)
	assert.Equal(t, "France", got, "canonical names pass through")

	got, ok = h.Canonicalize("Russian Federation")
	require.True(t, ok)
	assert.Equal(t, "Russia", got, "aliases resolve")

	got, ok = h.Canonicalize("Germany (FRG)")
	require.True(t, ok)
	assert.Equal(t, "Germany", got, "the per-dataset mapping resolves")

	got, ok = h.Canonicalize("côte d’ivoire")
	require.True(t, ok)
	assert.Equal(t, "Cote d'Ivoire", got, "folded comparison handles case and diacritics")

	_, ok = h.Canonicalize("Kingdom of Wakanda")
	assert.False(t, ok)
}

func TestApplyRewritesDropsAndErrors(t *testing.T) {
	tb, err := catalog.FromRecords("pop", []string{"country", "population"}, []catalog.Record{
		{"country": "Viet Nam", "population": 97.0},
		{"country": "France", "population": 67.0},
		{"country": "Not specified", "population": 1.0},
	})
	require.NoError(t, err)

	h := newHarmonizer(t, nil, []string{"Not specified"})
	out, err := h.Apply(tb, "country")
	require.NoError(t, err)

	require.Equal(t, 2, out.Len(), "excluded rows are dropped")
	c0, _ := out.MustColumn("country").String(0)
	assert.Equal(t, "Vietnam", c0)

	// The input table is untouched.
	raw, _ := tb.MustColumn("country").String(0)
	assert.Equal(t, "Viet Nam", raw)
	assert.Equal(t, 3, tb.Len())
}

func TestApplyFailsOnUnmappedNames(t *testing.T) {
	tb, err := catalog.FromRecords("pop", []string{"country", "population"}, []catalog.Record{
		{"country": "France", "population": 67.0},
		{"country": "Kingdom of Wakanda", "population": 1.0},
		{"country": "Atlantis", "population": 2.0},
	})
	require.NoError(t, err)

	h := newHarmonizer(t, nil, nil)
	_, err = h.Apply(tb, "country")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Kingdom of Wakanda")
	assert.Contains(t, err.Error(), "Atlantis")
	assert.Contains(t, err.Error(), "2 unmapped")
}

func TestApplyRejectsNonStringColumn(t *testing.T) {
	tb, err := catalog.FromRecords("pop", []string{"code", "population"}, []catalog.Record{
		{"code": 250, "population": 67.0},
	})
	require.NoError(t, err)
	h := newHarmonizer(t, nil, nil)
	_, err = h.Apply(tb, "code")
	require.Error(t, err)
}

func TestSuggestRanksCloseNames(t *testing.T) {
	h := newHarmonizer(t, nil, nil)

	got := h.Suggest("Frnce", 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "France", got[0])

	// No subsequence match still yields edit-distance candidates.
	got = h.Suggest("Grmany", 5)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "Germany")
}

func TestBuildMappingSeparatesResolvedAndPending(t *testing.T) {
	h := newHarmonizer(t, nil, []string{"International waters"})
	mapping, pending := h.BuildMapping([]string{
		"Viet Nam",
		"France",
		"International waters",
		"Kingdom of Wakanda",
	}, 3)

	assert.Equal(t, Mapping{"Viet Nam": "Vietnam", "France": "France"}, mapping)
	require.Contains(t, pending, "Kingdom of Wakanda")
	assert.Len(t, pending, 1, "excluded names are neither mapped nor pending")
	assert.NotEmpty(t, pending["Kingdom of Wakanda"])
}

func TestMappingRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "un.countries.json")

	m := Mapping{"Viet Nam": "Vietnam", "Korea, Rep.": "South Korea"}
	require.NoError(t, m.Save(path))

	back, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, m, back)

	missing, err := LoadMapping(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoadExcludeList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "excluded.json")
	require.NoError(t, Mapping(nil).Save(path))

	// A mapping object is not a valid exclude list.
	_, err := LoadExcludeList(path)
	require.Error(t, err)

	names, err := LoadExcludeList(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "cote divoire", foldName("Côte d’Ivoire"))
	assert.Equal(t, "sao tome and principe", foldName("São Tomé and Príncipe"))
	assert.Equal(t, "united states", foldName("  United   States "))
}
