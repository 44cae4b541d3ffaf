package hbl

import (
	"container/heap"

	log "github.com/sirupsen/logrus"
)

//GrowthPolicy selects the node expansion order of the tree grower.
type GrowthPolicy string

const (
	//DepthWise expands all frontier nodes of the current depth before
	//advancing to the next depth.
	DepthWise GrowthPolicy = "depth_wise"
	//LeafWise always expands the frontier node with the highest split gain.
	LeafWise GrowthPolicy = "leaf_wise"
)

//histRefreshDepth bounds sibling-subtraction drift: every this many levels a
//subtracted histogram is replaced by a direct rebuild.
const histRefreshDepth = 4

//GrowConfig parameterizes one GrowTree call.
type GrowConfig struct {
	//MaxDepth limits node depth; 0 means unlimited (LeafWise with MaxLeaves).
	MaxDepth int
	//MaxLeaves caps the leaf count; 0 means unlimited.
	MaxLeaves int
	//MinSamplesLeaf rejects splits producing a child smaller than this.
	MinSamplesLeaf int
	//MinGainToSplit is the gamma penalty: splits must gain strictly more.
	MinGainToSplit float64
	//L2Reg is the lambda term in gain and leaf-value denominators.
	L2Reg float64
	//Policy selects the expansion order; defaults to DepthWise.
	Policy GrowthPolicy
	//MaxBins is the bin budget handed to BuildBins; recorded here so one
	//config value travels from binning to growth.
	MaxBins int
	//Builder is the histogram backend; defaults to the sequential CPU path.
	//Any backend failing with ErrResourceExhausted is transparently replaced
	//by the CPU path for the remainder of the tree.
	Builder HistBuilder
}

//Validate checks the config and fills defaults in place of zero values.
func (c *GrowConfig) Validate() error {
	if c.MaxDepth < 0 {
		return invalidInputf("negative MaxDepth %d", c.MaxDepth)
	}
	if c.MaxLeaves < 0 {
		return invalidInputf("negative MaxLeaves %d", c.MaxLeaves)
	}
	if c.MaxDepth == 0 && c.MaxLeaves == 0 {
		return invalidInputf("no stopping rule: both MaxDepth and MaxLeaves are unlimited")
	}
	if c.MinGainToSplit < 0 {
		return invalidInputf("negative MinGainToSplit %g", c.MinGainToSplit)
	}
	if c.L2Reg < 0 {
		return invalidInputf("negative L2Reg %g", c.L2Reg)
	}
	if c.MinSamplesLeaf < 1 {
		c.MinSamplesLeaf = 1
	}
	if c.Policy == "" {
		c.Policy = DepthWise
	}
	if c.Policy != DepthWise && c.Policy != LeafWise {
		return invalidInputf("unknown growth policy %q", c.Policy)
	}
	if c.Builder == nil {
		c.Builder = CPUHistBuilder{}
	}
	return nil
}

//nodeCtx is the working context of one frontier node: its span in the row
//arena, its depth, accumulated statistics and, once evaluated, its histogram
//and best split.
type nodeCtx struct {
	start, end int
	depth      int
	gsum, hsum float64

	hist     *Histogram
	split    SplitDecision
	hasSplit bool

	parentId int
	isLeft   bool
}

func (ctx *nodeCtx) rowCount() int { return ctx.end - ctx.start }

type grower struct {
	bm      *BinMatrix
	grad    []float64
	hess    []float64
	cfg     GrowConfig
	builder HistBuilder
	arena   *rowArena
	tree    *Tree
}

//GrowTree grows one tree for the current boosting round. The bin matrix and
//the gradient/hessian vectors are read-only during the call; abandoning the
//call mid-growth leaves no shared state behind.
func GrowTree(bm *BinMatrix, grad, hess []float64, cfg GrowConfig) (*Tree, error) {
	if bm == nil {
		return nil, invalidInputf("nil bin matrix")
	}
	if len(grad) != bm.Rows() || len(hess) != bm.Rows() {
		return nil, invalidInputf("gradient length %d and hessian length %d for %d rows", len(grad), len(hess), bm.Rows())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &grower{
		bm:      bm,
		grad:    grad,
		hess:    hess,
		cfg:     cfg,
		builder: newFallbackBuilder(cfg.Builder),
		arena:   newRowArena(bm.Rows()),
		tree:    &Tree{},
	}

	root := &nodeCtx{start: 0, end: bm.Rows(), parentId: -1}
	if err := g.evaluate(root, nil, nil); err != nil {
		return nil, err
	}

	var err error
	if cfg.Policy == LeafWise {
		err = g.growLeafWise(root)
	} else {
		err = g.growDepthWise(root)
	}
	if err != nil {
		return nil, err
	}
	return g.tree, nil
}

//depthLimited reports whether a node at the given depth may not be split.
func (g *grower) depthLimited(depth int) bool {
	return g.cfg.MaxDepth > 0 && depth >= g.cfg.MaxDepth
}

//evaluate builds the node's histogram and searches for its best split. The
//histogram comes from parent-minus-sibling subtraction when both are
//available, except on refresh levels where it is rebuilt directly. Nodes that
//can never split (depth limit, too few rows) skip histogram work entirely.
func (g *grower) evaluate(ctx *nodeCtx, parentHist, siblingHist *Histogram) error {
	rows := g.arena.span(ctx.start, ctx.end)

	if ctx.parentId == -1 {
		//root: totals are unknown until the histogram exists
		hist, err := g.builder.BuildHistogram(g.bm, rows, g.grad, g.hess)
		if err != nil {
			return err
		}
		metricsHistogramsBuilt.WithLabelValues("direct").Inc()
		ctx.hist = hist
		ctx.gsum, ctx.hsum, _ = hist.Totals(0)
	}

	if g.depthLimited(ctx.depth) || ctx.rowCount() < 2*g.cfg.MinSamplesLeaf || ctx.rowCount() < 2 {
		return nil
	}

	if ctx.hist == nil {
		if parentHist != nil && siblingHist != nil && ctx.depth%histRefreshDepth != 0 {
			ctx.hist = NewHistogram(g.bm.Features(), g.bm.Width())
			ctx.hist.SubtractOf(parentHist, siblingHist)
			metricsHistogramsBuilt.WithLabelValues("subtraction").Inc()
		} else {
			hist, err := g.builder.BuildHistogram(g.bm, rows, g.grad, g.hess)
			if err != nil {
				return err
			}
			ctx.hist = hist
			metricsHistogramsBuilt.WithLabelValues("direct").Inc()
		}
	}

	split, ok := findBestSplit(ctx.hist, g.bm, ctx.gsum, ctx.hsum, int64(ctx.rowCount()), g.cfg)
	ctx.split = split
	ctx.hasSplit = ok
	return nil
}

//finalizeLeaf appends a leaf for the context and patches the parent's child
//index. The leaf value is -G/(H+lambda) with a clamped denominator.
func (g *grower) finalizeLeaf(ctx *nodeCtx) int {
	node := NewTreeNode()
	node.TreeNodeId = len(g.tree.TreeNodes)
	node.NumberOfObjects = ctx.rowCount()
	node.LeafIndex = len(g.tree.LeafNodes)

	leaf := LeafNode{
		LeafNodeId:      node.LeafIndex,
		Value:           LeafValue(ctx.gsum, ctx.hsum, g.cfg.L2Reg),
		NumberOfObjects: ctx.rowCount(),
	}

	g.tree.TreeNodes = append(g.tree.TreeNodes, node)
	g.tree.LeafNodes = append(g.tree.LeafNodes, leaf)
	g.patchParent(ctx, node.TreeNodeId)
	ctx.hist = nil
	return node.TreeNodeId
}

//finalizeInternal appends a split node for the context; the children patch
//their own indices in later.
func (g *grower) finalizeInternal(ctx *nodeCtx) int {
	node := NewTreeNode()
	node.TreeNodeId = len(g.tree.TreeNodes)
	node.FeatureNumber = ctx.split.Feature
	node.ThresholdBin = ctx.split.Threshold
	node.Threshold = g.bm.Bounds(ctx.split.Feature).UpperEdge(ctx.split.Threshold)
	node.MissingLeft = ctx.split.MissingLeft
	node.NumberOfObjects = ctx.rowCount()
	node.Gain = ctx.split.Gain

	g.tree.TreeNodes = append(g.tree.TreeNodes, node)
	g.patchParent(ctx, node.TreeNodeId)
	metricsNodesExpanded.Inc()
	return node.TreeNodeId
}

func (g *grower) patchParent(ctx *nodeCtx, id int) {
	if ctx.parentId == -1 {
		return
	}
	if ctx.isLeft {
		g.tree.TreeNodes[ctx.parentId].LeftIndex = id
	} else {
		g.tree.TreeNodes[ctx.parentId].RightIndex = id
	}
}

//expand applies an accepted split: partitions the node's arena span, creates
//the two child contexts and evaluates them. The smaller child is built
//directly and the larger derived by subtracting it from the parent, so the
//expensive scan covers the fewest rows.
func (g *grower) expand(ctx *nodeCtx, id int) (left, right *nodeCtx, err error) {
	rows := g.arena.span(ctx.start, ctx.end)
	nLeft := partitionRows(rows, g.bm, ctx.split)
	if int64(nLeft) != ctx.split.LeftCount {
		log.Warnf("partition count %d disagrees with split decision %d", nLeft, ctx.split.LeftCount)
	}

	left = &nodeCtx{
		start: ctx.start, end: ctx.start + nLeft,
		depth: ctx.depth + 1,
		gsum:  ctx.split.LeftGrad, hsum: ctx.split.LeftHess,
		parentId: id, isLeft: true,
	}
	right = &nodeCtx{
		start: ctx.start + nLeft, end: ctx.end,
		depth: ctx.depth + 1,
		gsum:  ctx.split.RightGrad, hsum: ctx.split.RightHess,
		parentId: id, isLeft: false,
	}

	first, second := left, right
	if right.rowCount() < left.rowCount() {
		first, second = right, left
	}
	if err = g.evaluate(first, nil, nil); err != nil {
		return nil, nil, err
	}
	if err = g.evaluate(second, ctx.hist, first.hist); err != nil {
		return nil, nil, err
	}
	ctx.hist = nil
	return left, right, nil
}

//growDepthWise expands the frontier level by level, FIFO within a level.
func (g *grower) growDepthWise(root *nodeCtx) error {
	queue := []*nodeCtx{root}
	leaves := 1

	for len(queue) > 0 {
		ctx := queue[0]
		queue = queue[1:]

		if !ctx.hasSplit || (g.cfg.MaxLeaves > 0 && leaves+1 > g.cfg.MaxLeaves) {
			g.finalizeLeaf(ctx)
			continue
		}

		id := g.finalizeInternal(ctx)
		left, right, err := g.expand(ctx, id)
		if err != nil {
			return err
		}
		leaves++
		queue = append(queue, left, right)
	}
	return nil
}

//frontierHeap orders frontier nodes by best split gain, highest first.
type frontierHeap []*nodeCtx

func (h frontierHeap) Len() int            { return len(h) }
func (h frontierHeap) Less(i, j int) bool  { return h[i].split.Gain > h[j].split.Gain }
func (h frontierHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x interface{}) { *h = append(*h, x.(*nodeCtx)) }
func (h *frontierHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

//growLeafWise always expands the frontier node with the highest gain, until
//the frontier empties or the leaf budget is spent. Nodes without an
//acceptable split are finalized as leaves immediately.
func (g *grower) growLeafWise(root *nodeCtx) error {
	frontier := &frontierHeap{}
	leavesDone := 0

	settle := func(ctx *nodeCtx) {
		if ctx.hasSplit {
			heap.Push(frontier, ctx)
		} else {
			g.finalizeLeaf(ctx)
			leavesDone++
		}
	}
	settle(root)

	for frontier.Len() > 0 {
		if g.cfg.MaxLeaves > 0 && leavesDone+frontier.Len()+1 > g.cfg.MaxLeaves {
			break
		}
		ctx := heap.Pop(frontier).(*nodeCtx)

		id := g.finalizeInternal(ctx)
		left, right, err := g.expand(ctx, id)
		if err != nil {
			return err
		}
		settle(left)
		settle(right)
	}

	for frontier.Len() > 0 {
		g.finalizeLeaf(heap.Pop(frontier).(*nodeCtx))
		leavesDone++
	}
	return nil
}
