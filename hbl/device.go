package hbl

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

//HistBuilder produces a node histogram from a row-index set. The CPU and
//accelerated implementations must agree on every value up to floating-point
//summation order; the grower treats them as interchangeable.
type HistBuilder interface {
	Name() string
	BuildHistogram(bm *BinMatrix, rows []int, grad, hess []float64) (*Histogram, error)
}

func validateHistInput(bm *BinMatrix, rows []int, grad, hess []float64) error {
	if bm == nil {
		return invalidInputf("nil bin matrix")
	}
	if len(grad) != bm.Rows() || len(hess) != bm.Rows() {
		return invalidInputf("gradient length %d and hessian length %d for %d rows", len(grad), len(hess), bm.Rows())
	}
	for _, row := range rows {
		if row < 0 || row >= bm.Rows() {
			return invalidInputf("row index %d outside [0, %d)", row, bm.Rows())
		}
	}
	return nil
}

//CPUHistBuilder accumulates rows sequentially in slice order. Its results
//are bit-reproducible across invocations.
type CPUHistBuilder struct{}

func (CPUHistBuilder) Name() string { return "cpu" }

func (CPUHistBuilder) BuildHistogram(bm *BinMatrix, rows []int, grad, hess []float64) (*Histogram, error) {
	if err := validateHistInput(bm, rows, grad, hess); err != nil {
		return nil, err
	}
	hist := NewHistogram(bm.Features(), bm.Width())
	hist.accumulate(bm, rows, grad, hess)
	return hist, nil
}

//ChunkedHistBuilder partitions the row set into chunks, accumulates partial
//histograms concurrently and merges them. This is the host-side shape of an
//accelerated work-group reduction; the merged result matches the CPU path up
//to floating-point summation order.
type ChunkedHistBuilder struct {
	Workers  int
	ChunkLen int
}

//NewChunkedHistBuilder configures the concurrent builder. Non-positive
//arguments fall back to 4 workers and 10000-row chunks.
func NewChunkedHistBuilder(workers, chunkLen int) *ChunkedHistBuilder {
	if workers < 1 {
		workers = 4
	}
	if chunkLen < 1 {
		chunkLen = 10000
	}
	return &ChunkedHistBuilder{Workers: workers, ChunkLen: chunkLen}
}

func (b *ChunkedHistBuilder) Name() string { return "chunked" }

func (b *ChunkedHistBuilder) BuildHistogram(bm *BinMatrix, rows []int, grad, hess []float64) (*Histogram, error) {
	if err := validateHistInput(bm, rows, grad, hess); err != nil {
		return nil, err
	}
	if len(rows) <= b.ChunkLen {
		hist := NewHistogram(bm.Features(), bm.Width())
		hist.accumulate(bm, rows, grad, hess)
		return hist, nil
	}

	chunks := (len(rows) + b.ChunkLen - 1) / b.ChunkLen
	partials := make([]*Histogram, chunks)

	var group errgroup.Group
	group.SetLimit(b.Workers)
	for c := 0; c < chunks; c++ {
		c := c
		group.Go(func() error {
			start := c * b.ChunkLen
			end := minInt(start+b.ChunkLen, len(rows))
			partial := NewHistogram(bm.Features(), bm.Width())
			partial.accumulate(bm, rows[start:end], grad, hess)
			partials[c] = partial
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	hist := partials[0]
	for _, partial := range partials[1:] {
		hist.merge(partial)
	}
	return hist, nil
}

//fallbackBuilder runs a primary (accelerated) builder and permanently
//switches to the CPU path for the rest of the tree on the first
//ErrResourceExhausted. The switch is invisible to the grower.
type fallbackBuilder struct {
	primary HistBuilder
	cpu     CPUHistBuilder
	tripped bool
}

func newFallbackBuilder(primary HistBuilder) *fallbackBuilder {
	return &fallbackBuilder{primary: primary}
}

func (f *fallbackBuilder) Name() string { return f.primary.Name() }

func (f *fallbackBuilder) BuildHistogram(bm *BinMatrix, rows []int, grad, hess []float64) (*Histogram, error) {
	if !f.tripped {
		hist, err := f.primary.BuildHistogram(bm, rows, grad, hess)
		if err == nil {
			return hist, nil
		}
		if !isResourceExhausted(err) {
			return nil, err
		}
		f.tripped = true
		metricsAccelFallbacks.Inc()
		log.Warnf("histogram builder %q exhausted resources, using cpu path for the rest of this tree: %v", f.primary.Name(), err)
	}
	return f.cpu.BuildHistogram(bm, rows, grad, hess)
}
