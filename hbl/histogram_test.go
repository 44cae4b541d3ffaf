package hbl

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGradHess(rows int, seed int64) (grad, hess []float64) {
	rng := rand.New(rand.NewSource(seed))
	grad = make([]float64, rows)
	hess = make([]float64, rows)
	for i := 0; i < rows; i++ {
		grad[i] = rng.NormFloat64()
		hess[i] = rng.Float64() + 0.5
	}
	return grad, hess
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func TestHistogramCountsSumToRowCount(t *testing.T) {
	raw := randomTestMatrix(300, 4, 2)
	bm := buildTestBinMatrix(t, raw, 16)
	grad, hess := randomGradHess(300, 3)

	hist, err := CPUHistBuilder{}.BuildHistogram(bm, allRows(300), grad, hess)
	require.NoError(t, err)

	for feature := 0; feature < bm.Features(); feature++ {
		_, _, count := hist.Totals(feature)
		assert.Equal(t, int64(300), count, "feature %d", feature)
	}
	assert.Equal(t, int64(300), hist.RowCount())
}

func TestHistogramGradientTotalsMatchVectorSum(t *testing.T) {
	raw := randomTestMatrix(200, 3, 4)
	bm := buildTestBinMatrix(t, raw, 8)
	grad, hess := randomGradHess(200, 5)

	var wantGrad, wantHess float64
	for i := 0; i < 200; i++ {
		wantGrad += grad[i]
		wantHess += hess[i]
	}

	hist, err := CPUHistBuilder{}.BuildHistogram(bm, allRows(200), grad, hess)
	require.NoError(t, err)

	for feature := 0; feature < bm.Features(); feature++ {
		gsum, hsum, _ := hist.Totals(feature)
		assert.InDelta(t, wantGrad, gsum, 1e-9)
		assert.InDelta(t, wantHess, hsum, 1e-9)
	}
}

func TestChunkedBuilderMatchesCPU(t *testing.T) {
	raw := randomTestMatrix(1000, 5, 6)
	bm := buildTestBinMatrix(t, raw, 32)
	grad, hess := randomGradHess(1000, 7)

	cpuHist, err := CPUHistBuilder{}.BuildHistogram(bm, allRows(1000), grad, hess)
	require.NoError(t, err)

	chunked := NewChunkedHistBuilder(4, 128)
	chunkedHist, err := chunked.BuildHistogram(bm, allRows(1000), grad, hess)
	require.NoError(t, err)

	assert.Equal(t, cpuHist.Count, chunkedHist.Count)
	for i := range cpuHist.Grad {
		assert.InDelta(t, cpuHist.Grad[i], chunkedHist.Grad[i], 1e-9)
		assert.InDelta(t, cpuHist.Hess[i], chunkedHist.Hess[i], 1e-9)
	}
}

func TestSiblingSubtractionMatchesDirect(t *testing.T) {
	raw := randomTestMatrix(400, 4, 8)
	bm := buildTestBinMatrix(t, raw, 16)
	grad, hess := randomGradHess(400, 9)

	rows := allRows(400)
	leftRows := rows[:150]
	rightRows := rows[150:]

	builder := CPUHistBuilder{}
	parent, err := builder.BuildHistogram(bm, rows, grad, hess)
	require.NoError(t, err)
	left, err := builder.BuildHistogram(bm, leftRows, grad, hess)
	require.NoError(t, err)
	rightDirect, err := builder.BuildHistogram(bm, rightRows, grad, hess)
	require.NoError(t, err)

	rightDerived := NewHistogram(bm.Features(), bm.Width())
	rightDerived.SubtractOf(parent, left)

	//counts are exact, sums within floating-point tolerance
	assert.Equal(t, rightDirect.Count, rightDerived.Count)
	for i := range rightDirect.Grad {
		assert.InDelta(t, rightDirect.Grad[i], rightDerived.Grad[i], 1e-6)
		assert.InDelta(t, rightDirect.Hess[i], rightDerived.Hess[i], 1e-6)
	}
}

func TestBuildHistogramInvalidInput(t *testing.T) {
	raw := randomTestMatrix(10, 2, 10)
	bm := buildTestBinMatrix(t, raw, 4)
	grad, hess := randomGradHess(10, 11)

	_, err := CPUHistBuilder{}.BuildHistogram(bm, allRows(10), grad[:5], hess)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = CPUHistBuilder{}.BuildHistogram(bm, []int{10}, grad, hess)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = CPUHistBuilder{}.BuildHistogram(nil, nil, grad, hess)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
