package hbl

import (
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

//BinMatrix holds the binned representation of a dataset: one uint8 bin index
//per (row, feature). It is built once per training session and is read-only
//afterwards; all trees and nodes share it.
type BinMatrix struct {
	rows     int
	features int
	//width is the uniform histogram width: the largest per-feature bin count
	//(missing bin included). Flat histogram indexing is feature*width+bin.
	width  int
	bounds []BinBoundaries

	bins *tensor.Dense
	data []uint8
}

//applyBinsTask bins one feature column.
type applyBinsTask struct {
	raw    *mat.Dense
	bounds BinBoundaries
	col    int
	dst    []uint8
	stride int
}

func (t *applyBinsTask) Run() {
	h, _ := t.raw.Dims()
	for row := 0; row < h; row++ {
		t.dst[row*t.stride+t.col] = uint8(t.bounds.Bin(t.raw.At(row, t.col)))
	}
}

//ApplyBins converts a raw feature matrix into a BinMatrix using precomputed
//per-feature boundaries. Column binning is fanned out over a worker pool;
//workersNum values below 1 run sequentially.
func ApplyBins(raw *mat.Dense, bounds []BinBoundaries, workersNum int) (*BinMatrix, error) {
	if raw == nil {
		return nil, invalidInputf("nil feature matrix")
	}
	h, w := raw.Dims()
	if h == 0 || w == 0 {
		return nil, invalidInputf("feature matrix has zero dimension %dx%d", h, w)
	}
	if len(bounds) != w {
		return nil, invalidInputf("%d boundary sets for %d features", len(bounds), w)
	}

	width := 0
	for _, b := range bounds {
		if b.TotalBins() < 2 {
			return nil, invalidInputf("boundary set with %d bins", b.TotalBins())
		}
		if b.TotalBins() > width {
			width = b.TotalBins()
		}
	}

	bins := tensor.New(tensor.WithShape(h, w), tensor.Of(tensor.Uint8))
	bm := &BinMatrix{
		rows:     h,
		features: w,
		width:    width,
		bounds:   bounds,
		bins:     bins,
		data:     bins.Data().([]uint8),
	}

	if workersNum <= 1 {
		for col := 0; col < w; col++ {
			task := applyBinsTask{raw: raw, bounds: bounds[col], col: col, dst: bm.data, stride: w}
			task.Run()
		}
		return bm, nil
	}

	pool := NewPool(workersNum)
	for col := 0; col < w; col++ {
		pool.AddTask(&applyBinsTask{raw: raw, bounds: bounds[col], col: col, dst: bm.data, stride: w})
	}
	pool.Close()
	pool.WaitAll()
	return bm, nil
}

//Rows returns the number of rows.
func (bm *BinMatrix) Rows() int { return bm.rows }

//Features returns the number of feature columns.
func (bm *BinMatrix) Features() int { return bm.features }

//Width returns the uniform per-feature histogram width (missing bin included).
func (bm *BinMatrix) Width() int { return bm.width }

//Bounds returns the boundary set of one feature.
func (bm *BinMatrix) Bounds(feature int) BinBoundaries { return bm.bounds[feature] }

//AllBounds returns the per-feature boundary sets.
func (bm *BinMatrix) AllBounds() []BinBoundaries { return bm.bounds }

//At returns the bin index of (row, feature).
func (bm *BinMatrix) At(row, feature int) int {
	return int(bm.data[row*bm.features+feature])
}

//row returns the raw bin slice of one row.
func (bm *BinMatrix) row(row int) []uint8 {
	off := row * bm.features
	return bm.data[off : off+bm.features]
}
