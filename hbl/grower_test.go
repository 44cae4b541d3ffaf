package hbl

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

//treeDepth walks the node array from the root and returns the number of
//split levels above the deepest leaf.
func treeDepth(tree *Tree, nodeId int) int {
	node := tree.TreeNodes[nodeId]
	if node.IsLeaf() {
		return 0
	}
	left := treeDepth(tree, node.LeftIndex)
	right := treeDepth(tree, node.RightIndex)
	if right > left {
		left = right
	}
	return left + 1
}

func TestGrowTreeDepthOneHandComputed(t *testing.T) {
	bm := singleFeatureBinMatrix(t, []float64{1, 2, 2, 3, 3, 3, 10}, 4)
	grad := []float64{-1, -1, -1, 1, 1, 1, 5}
	hess := []float64{1, 1, 1, 1, 1, 1, 1}

	tree, err := GrowTree(bm, grad, hess, GrowConfig{MaxDepth: 1, L2Reg: 1.0})
	require.NoError(t, err)

	require.Len(t, tree.TreeNodes, 3)
	require.Len(t, tree.LeafNodes, 2)

	root := tree.TreeNodes[0]
	assert.Equal(t, 0, root.FeatureNumber)
	assert.Equal(t, 2, root.ThresholdBin)
	assert.InDelta(t, 2.5, root.Threshold, 1e-9)
	assert.InDelta(t, 5.9625, root.Gain, 1e-9)
	assert.Equal(t, 7, root.NumberOfObjects)

	leftLeaf := tree.TreeNodes[root.LeftIndex]
	rightLeaf := tree.TreeNodes[root.RightIndex]
	require.True(t, leftLeaf.IsLeaf())
	require.True(t, rightLeaf.IsLeaf())

	//leaf value is -G/(H+lambda): left 3/(3+1), right -8/(4+1)
	assert.InDelta(t, 0.75, tree.LeafNodes[leftLeaf.LeafIndex].Value, 1e-9)
	assert.InDelta(t, -1.6, tree.LeafNodes[rightLeaf.LeafIndex].Value, 1e-9)
	assert.Equal(t, 3, tree.LeafNodes[leftLeaf.LeafIndex].NumberOfObjects)
	assert.Equal(t, 4, tree.LeafNodes[rightLeaf.LeafIndex].NumberOfObjects)

	pred := tree.PredictBinned(bm)
	assert.InDelta(t, 0.75, pred[0], 1e-9)
	assert.InDelta(t, -1.6, pred[6], 1e-9)
}

func TestGrowTreeRespectsMaxDepth(t *testing.T) {
	raw := randomTestMatrix(500, 4, 30)
	bm := buildTestBinMatrix(t, raw, 32)
	grad, hess := randomGradHess(500, 31)

	for _, maxDepth := range []int{1, 2, 4} {
		tree, err := GrowTree(bm, grad, hess, GrowConfig{MaxDepth: maxDepth, L2Reg: 1.0})
		require.NoError(t, err)
		assert.LessOrEqual(t, treeDepth(tree, 0), maxDepth, "MaxDepth %d", maxDepth)
	}
}

func TestGrowTreeLeafWiseRespectsMaxLeaves(t *testing.T) {
	raw := randomTestMatrix(500, 4, 32)
	bm := buildTestBinMatrix(t, raw, 32)
	grad, hess := randomGradHess(500, 33)

	for _, maxLeaves := range []int{2, 5, 16} {
		tree, err := GrowTree(bm, grad, hess, GrowConfig{
			MaxLeaves: maxLeaves,
			L2Reg:     1.0,
			Policy:    LeafWise,
		})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(tree.LeafNodes), maxLeaves, "MaxLeaves %d", maxLeaves)
		assert.GreaterOrEqual(t, len(tree.LeafNodes), 1)
	}
}

func TestGrowTreeConstantFeaturesSingleLeaf(t *testing.T) {
	raw := mat.NewDense(6, 2, []float64{
		3, 7,
		3, 7,
		3, 7,
		3, 7,
		3, 7,
		3, 7,
	})
	bm := buildTestBinMatrix(t, raw, 8)
	grad := []float64{1, 2, 3, -1, -2, 0}
	hess := []float64{1, 1, 1, 1, 1, 1}

	tree, err := GrowTree(bm, grad, hess, GrowConfig{MaxDepth: 5, L2Reg: 1.0})
	require.NoError(t, err)

	require.Len(t, tree.LeafNodes, 1)
	//value is -G/(H+lambda) = -3/(6+1)
	assert.InDelta(t, -3.0/7.0, tree.LeafNodes[0].Value, 1e-9)
	assert.Equal(t, 6, tree.LeafNodes[0].NumberOfObjects)
}

//Brute-force reference: for a single feature every threshold is enumerable,
//so the grower's chosen split must match an exhaustive prefix scan.
func TestGrowTreeMatchesBruteForceSplit(t *testing.T) {
	column := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	bm := singleFeatureBinMatrix(t, column, 16)
	grad := []float64{-1.3, -0.9, -1.1, 0.2, -0.4, 1.5, 0.8, 1.9, 0.3, 1.2, 2.1, 0.7}
	hess := []float64{1, 0.8, 1.2, 1, 0.9, 1.1, 1, 0.7, 1.3, 1, 0.6, 1}
	lambda := 0.7

	hist, gsum, hsum := histogramFor(t, bm, grad, hess)
	valueBins := bm.Bounds(0).ValueBins()

	bestGain := 0.0
	bestThreshold := -1
	for threshold := 1; threshold < valueBins; threshold++ {
		var gl, hl float64
		for bin := 1; bin <= threshold; bin++ {
			gl += hist.GradAt(0, bin)
			hl += hist.HessAt(0, bin)
		}
		gr := gsum - gl
		hr := hsum - hl
		gain := (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - gsum*gsum/(hsum+lambda)) / 2
		if gain > bestGain+gainTolerance {
			bestGain = gain
			bestThreshold = threshold
		}
	}
	require.GreaterOrEqual(t, bestThreshold, 1)

	tree, err := GrowTree(bm, grad, hess, GrowConfig{MaxDepth: 1, L2Reg: lambda})
	require.NoError(t, err)
	require.Len(t, tree.TreeNodes, 3)
	assert.Equal(t, bestThreshold, tree.TreeNodes[0].ThresholdBin)
	assert.InDelta(t, bestGain, tree.TreeNodes[0].Gain, 1e-9)
}

func TestGrowTreeDeterministic(t *testing.T) {
	raw := randomTestMatrix(400, 5, 35)
	bm := buildTestBinMatrix(t, raw, 16)
	grad, hess := randomGradHess(400, 36)
	cfg := GrowConfig{MaxLeaves: 15, L2Reg: 1.0, Policy: LeafWise}

	first, err := GrowTree(bm, grad, hess, cfg)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := GrowTree(bm, grad, hess, cfg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

//exhaustedBuilder simulates an accelerated backend that runs out of device
//resources on every call.
type exhaustedBuilder struct{}

func (exhaustedBuilder) Name() string { return "exhausted" }

func (exhaustedBuilder) BuildHistogram(bm *BinMatrix, rows []int, grad, hess []float64) (*Histogram, error) {
	return nil, errors.Wrap(ErrResourceExhausted, "device buffer allocation failed")
}

func TestGrowTreeFallsBackToCPU(t *testing.T) {
	raw := randomTestMatrix(300, 3, 37)
	bm := buildTestBinMatrix(t, raw, 16)
	grad, hess := randomGradHess(300, 38)

	reference, err := GrowTree(bm, grad, hess, GrowConfig{MaxDepth: 3, L2Reg: 1.0})
	require.NoError(t, err)

	fallen, err := GrowTree(bm, grad, hess, GrowConfig{
		MaxDepth: 3,
		L2Reg:    1.0,
		Builder:  exhaustedBuilder{},
	})
	require.NoError(t, err)

	//the fallback is invisible: same tree as the plain CPU run
	assert.Equal(t, reference, fallen)
}

func TestGrowTreeInvalidInput(t *testing.T) {
	raw := randomTestMatrix(10, 2, 39)
	bm := buildTestBinMatrix(t, raw, 4)
	grad, hess := randomGradHess(10, 40)

	_, err := GrowTree(nil, grad, hess, GrowConfig{MaxDepth: 2})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = GrowTree(bm, grad[:5], hess, GrowConfig{MaxDepth: 2})
	assert.ErrorIs(t, err, ErrInvalidInput)

	//no stopping rule at all
	_, err = GrowTree(bm, grad, hess, GrowConfig{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = GrowTree(bm, grad, hess, GrowConfig{MaxDepth: 2, Policy: "best_first"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
