package hbl

//rowArena owns the single reusable row-index buffer for one tree. Every node
//references a contiguous (start, end) span of it; partitioning a node
//rearranges only its own span, so sibling and ancestor spans stay valid and
//no per-node allocation is needed.
type rowArena struct {
	idx []int
}

func newRowArena(rows int) *rowArena {
	idx := make([]int, rows)
	for i := range idx {
		idx[i] = i
	}
	return &rowArena{idx: idx}
}

func (a *rowArena) span(start, end int) []int {
	return a.idx[start:end]
}

//goesLeft routes one row under an accepted split decision.
func goesLeft(bin int, split SplitDecision) bool {
	if bin == MissingBin {
		return split.MissingLeft
	}
	return bin <= split.Threshold
}

//partitionRows reorders a node's span in place so rows routed left occupy the
//prefix, and returns the prefix length. Left and right are disjoint and their
//union is exactly the input span: rows are only swapped, never dropped or
//duplicated. Rows outside the span are never touched.
func partitionRows(rows []int, bm *BinMatrix, split SplitDecision) int {
	i, j := 0, len(rows)
	for i < j {
		if goesLeft(bm.At(rows[i], split.Feature), split) {
			i++
		} else {
			j--
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return i
}
