package hbl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBinsOneBinPerDistinctValue(t *testing.T) {
	column := []float64{1, 2, 2, 3, 3, 3, 10}
	bounds, err := BuildBins(column, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, bounds.ValueBins())
	assert.Equal(t, 5, bounds.TotalBins())

	//distinct values land in distinct ordered bins
	assert.Equal(t, 1, bounds.Bin(1))
	assert.Equal(t, 2, bounds.Bin(2))
	assert.Equal(t, 3, bounds.Bin(3))
	assert.Equal(t, 4, bounds.Bin(10))
}

func TestBuildBinsQuantile(t *testing.T) {
	column := make([]float64, 100)
	for i := range column {
		column[i] = float64(i)
	}
	bounds, err := BuildBins(column, 4)
	require.NoError(t, err)
	require.Equal(t, 4, bounds.ValueBins())

	//roughly balanced share of distinct values per bin
	counts := make([]int, bounds.TotalBins())
	for _, x := range column {
		counts[bounds.Bin(x)]++
	}
	assert.Zero(t, counts[MissingBin])
	for bin := 1; bin < bounds.TotalBins(); bin++ {
		assert.Equal(t, 25, counts[bin], "bin %d", bin)
	}
}

func TestBuildBinsConstantColumn(t *testing.T) {
	bounds, err := BuildBins([]float64{7, 7, 7, 7}, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, bounds.ValueBins())
	assert.Equal(t, 1, bounds.Bin(7))
}

func TestBuildBinsMissingValues(t *testing.T) {
	bounds, err := BuildBins([]float64{1, math.NaN(), 2, math.NaN(), 3}, 8)
	require.NoError(t, err)

	assert.Equal(t, MissingBin, bounds.Bin(math.NaN()))
	//NaNs are excluded from boundary computation
	assert.Equal(t, 3, bounds.ValueBins())
}

func TestBuildBinsLazyMapping(t *testing.T) {
	bounds, err := BuildBins([]float64{0, 10, 20, 30}, 4)
	require.NoError(t, err)

	//values never seen during boundary computation still map consistently
	assert.Equal(t, bounds.Bin(10), bounds.Bin(9.9))
	assert.Equal(t, 1, bounds.Bin(-1e9))
	assert.Equal(t, bounds.ValueBins(), bounds.Bin(1e9))
}

func TestBuildBinsInvalidInput(t *testing.T) {
	_, err := BuildBins(nil, 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildBins([]float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = BuildBins([]float64{1, 2}, 1000)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBinBoundariesRightClosed(t *testing.T) {
	bounds, err := BuildBins([]float64{1, 2, 3}, 3)
	require.NoError(t, err)

	//value bin i covers (Cuts[i-1], Cuts[i]]
	for bin := 1; bin <= bounds.ValueBins(); bin++ {
		edge := bounds.UpperEdge(bin)
		if !math.IsInf(edge, 1) {
			assert.Equal(t, bin, bounds.Bin(edge))
			assert.Equal(t, bin+1, bounds.Bin(math.Nextafter(edge, math.Inf(1))))
		}
	}
}
