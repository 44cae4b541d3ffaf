package hbl

//Histogram accumulates per-feature, per-bin statistics for the rows of one
//tree node: sum of gradients, sum of hessians and row count. All features
//share one flat layout of width bins per feature.
type Histogram struct {
	Features int
	Width    int
	Grad     []float64
	Hess     []float64
	Count    []int64
}

//NewHistogram allocates a zeroed histogram.
func NewHistogram(features, width int) *Histogram {
	n := features * width
	return &Histogram{
		Features: features,
		Width:    width,
		Grad:     make([]float64, n),
		Hess:     make([]float64, n),
		Count:    make([]int64, n),
	}
}

//index returns the flat offset of (feature, bin).
func (h *Histogram) index(feature, bin int) int {
	return feature*h.Width + bin
}

//GradAt returns the gradient sum of (feature, bin).
func (h *Histogram) GradAt(feature, bin int) float64 { return h.Grad[h.index(feature, bin)] }

//HessAt returns the hessian sum of (feature, bin).
func (h *Histogram) HessAt(feature, bin int) float64 { return h.Hess[h.index(feature, bin)] }

//CountAt returns the row count of (feature, bin).
func (h *Histogram) CountAt(feature, bin int) int64 { return h.Count[h.index(feature, bin)] }

//RowCount returns the number of rows accumulated, read off an arbitrary
//feature: every feature sees every row exactly once.
func (h *Histogram) RowCount() int64 {
	var total int64
	for bin := 0; bin < h.Width; bin++ {
		total += h.Count[bin]
	}
	return total
}

//accumulate adds every row of the slice into the histogram, sequentially and
//in slice order, so repeated invocation is bit-reproducible.
func (h *Histogram) accumulate(bm *BinMatrix, rows []int, grad, hess []float64) {
	for _, row := range rows {
		g := grad[row]
		hs := hess[row]
		bins := bm.row(row)
		for feature, bin := range bins {
			idx := feature*h.Width + int(bin)
			h.Grad[idx] += g
			h.Hess[idx] += hs
			h.Count[idx]++
		}
	}
}

//merge adds another histogram bin-wise. Merging chunk-partial histograms is
//associative and order-independent up to floating-point summation order.
func (h *Histogram) merge(other *Histogram) {
	for i := range h.Grad {
		h.Grad[i] += other.Grad[i]
		h.Hess[i] += other.Hess[i]
		h.Count[i] += other.Count[i]
	}
}

//SubtractOf fills the receiver with parent minus sibling, bin-wise. Counts
//are exact integer arithmetic; gradient and hessian sums may carry
//floating-point drift, which the grower bounds by periodically rebuilding
//histograms directly.
func (h *Histogram) SubtractOf(parent, sibling *Histogram) {
	for i := range h.Grad {
		h.Grad[i] = parent.Grad[i] - sibling.Grad[i]
		h.Hess[i] = parent.Hess[i] - sibling.Hess[i]
		h.Count[i] = parent.Count[i] - sibling.Count[i]
	}
}

//Totals returns the gradient sum, hessian sum and row count over all bins of
//one feature.
func (h *Histogram) Totals(feature int) (gsum, hsum float64, count int64) {
	base := feature * h.Width
	for bin := 0; bin < h.Width; bin++ {
		gsum += h.Grad[base+bin]
		hsum += h.Hess[base+bin]
		count += h.Count[base+bin]
	}
	return gsum, hsum, count
}
