package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/drillprep/internal/models"
)

func stations() []models.SurveyStation {
	return []models.SurveyStation{
		{MD: 2000, Inclination: 30},
		{MD: 0, Inclination: 0},
		{MD: 1000, Inclination: 0},
	}
}

func TestComputeTVD(t *testing.T) {
	got := ComputeTVD(stations())
	require.Len(t, got, 3)

	assert.Equal(t, 0.0, got[0].MD)
	assert.Equal(t, 0.0, got[0].TVD)
	assert.Equal(t, 1000.0, got[1].TVD)
	assert.Equal(t, 1965.93, got[2].TVD)
}

func TestComputeTVDRoundsEachStep(t *testing.T) {
	// each 0.004 leg rounds away, where rounding once at the end would give 0.01
	got := ComputeTVD([]models.SurveyStation{
		{MD: 0}, {MD: 0.004}, {MD: 0.008}, {MD: 0.012},
	})
	assert.Equal(t, 0.0, got[1].TVD)
	assert.Equal(t, 0.0, got[3].TVD)
}

func TestComputeTVDDoesNotMutateInput(t *testing.T) {
	in := stations()
	ComputeTVD(in)
	assert.Equal(t, 2000.0, in[0].MD)
	assert.Equal(t, 0.0, in[0].TVD)
}

func TestInterpolateTVD(t *testing.T) {
	computed := ComputeTVD(stations())

	got := InterpolateTVD([]float64{-50, 0, 500, 1000, 1500, 2000, 2500}, computed)
	require.Len(t, got, 7)
	assert.Equal(t, 0.0, got[0], "clamps above the first station")
	assert.Equal(t, 0.0, got[1])
	assert.Equal(t, 500.0, got[2])
	assert.Equal(t, 1000.0, got[3])
	assert.InDelta(t, 1482.965, got[4], 1e-9)
	assert.Equal(t, 1965.93, got[5])
	assert.Equal(t, 1965.93, got[6], "clamps below the last station")

	assert.Nil(t, InterpolateTVD([]float64{1, 2}, nil))
}

func TestEnrich(t *testing.T) {
	points := []models.DecimatedPoint{{Depth: 500}, {Depth: 3000}}

	got := Enrich(points, stations())
	require.NotNil(t, got[0].TVD)
	assert.Equal(t, 500.0, *got[0].TVD)
	assert.Equal(t, 1965.93, *got[1].TVD)
	assert.Nil(t, points[0].TVD, "input untouched")

	bare := Enrich(points, nil)
	assert.Nil(t, bare[0].TVD)
}
