package collection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCollection() *Collection {
	return &Collection{
		Title: "Population explorer",
		Dimensions: []Dimension{
			{Slug: "metric", Name: "Metric", Choices: []Choice{
				{Slug: "population", Name: "Population"},
				{Slug: "growth_rate", Name: "Growth rate"},
			}},
			{Slug: "region_type", Name: "Region type", Choices: []Choice{
				{Slug: "countries", Name: "Countries"},
				{Slug: "continents", Name: "Continents"},
			}},
		},
		Views: []View{
			{
				Dimensions: map[string]string{"metric": "population", "region_type": "countries"},
				Indicators: []string{"population"},
			},
			{
				Dimensions: map[string]string{"metric": "growth_rate", "region_type": "continents"},
				Indicators: []string{"growth_rate"},
			},
		},
	}
}

func TestRoundTripThroughMaps(t *testing.T) {
	c := sampleCollection()
	require.NoError(t, c.Validate())

	got, err := FromMap(c.ToMap())
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestValidateRejections(t *testing.T) {
	dup := sampleCollection()
	dup.Dimensions = append(dup.Dimensions, Dimension{Slug: "metric", Name: "Other"})
	assert.ErrorContains(t, dup.Validate(), "duplicate dimension slug")

	dupName := sampleCollection()
	dupName.Dimensions[1].Name = "Metric"
	assert.ErrorContains(t, dupName.Validate(), "duplicate dimension name")

	dupChoice := sampleCollection()
	dupChoice.Dimensions[0].Choices = append(dupChoice.Dimensions[0].Choices, Choice{Slug: "population", Name: "Again"})
	assert.ErrorContains(t, dupChoice.Validate(), "duplicate choice slug")

	unknownDim := sampleCollection()
	unknownDim.Views[0].Dimensions["period"] = "annual"
	assert.ErrorContains(t, unknownDim.Validate(), "unknown dimension")

	unknownChoice := sampleCollection()
	unknownChoice.Views[0].Dimensions["metric"] = "median_age"
	assert.ErrorContains(t, unknownChoice.Validate(), "no choice")

	dupView := sampleCollection()
	dupView.Views = append(dupView.Views, dupView.Views[0])
	assert.ErrorContains(t, dupView.Validate(), "duplicate view")

	partial := sampleCollection()
	partial.Views[0].Dimensions = map[string]string{"metric": "population"}
	assert.ErrorContains(t, partial.Validate(), "binds 1 of 2")
}

func TestFromMapRejectsMalformedShapes(t *testing.T) {
	_, err := FromMap(map[string]any{"dimensions": "nope"})
	assert.ErrorContains(t, err, "not a list")

	_, err = FromMap(map[string]any{
		"dimensions": []any{map[string]any{"slug": "m", "name": "M", "choices": []any{"x"}}},
	})
	assert.ErrorContains(t, err, "not a map")
}
