package hbl

import (
	"encoding/json"
	"math"
	"sort"
)

//MissingBin is the bin index reserved for missing (NaN) values. It sits
//outside the ordered value bins and is routed by the split's default
//direction instead of the threshold comparison.
const MissingBin = 0

//maxSupportedBins keeps bin indices inside a uint8 together with the
//missing bin.
const maxSupportedBins = 255

//BinBoundaries maps raw feature values of one column to small integer bins.
//Cuts is ascending with -Inf and +Inf sentinels at the ends; value bin i
//(1-based) covers the right-closed interval (Cuts[i-1], Cuts[i]]. Bin 0 is
//the missing bin. The mapping is stateless: any future row can be binned
//without recomputation.
type BinBoundaries struct {
	Cuts []float64
}

//TotalBins returns the number of bins including the missing bin.
func (b BinBoundaries) TotalBins() int {
	return len(b.Cuts)
}

//ValueBins returns the number of ordered value bins.
func (b BinBoundaries) ValueBins() int {
	return len(b.Cuts) - 1
}

//UpperEdge returns the raw-value upper boundary of a value bin. Rows whose
//value is at most this edge fall into the bin or one below it.
func (b BinBoundaries) UpperEdge(bin int) float64 {
	return b.Cuts[bin]
}

//Bin maps a raw value to its bin index. NaN goes to the missing bin;
//everything else is placed by binary search over the cuts, so bins stay
//ordered by value.
func (b BinBoundaries) Bin(x float64) int {
	if math.IsNaN(x) {
		return MissingBin
	}
	if math.IsInf(x, -1) {
		return 1
	}
	//smallest i with x <= Cuts[i]; Cuts[0] is -Inf so i >= 1 for finite x
	return sort.Search(len(b.Cuts), func(i int) bool {
		return x <= b.Cuts[i]
	})
}

//binBoundariesDump is the persisted form: interior cuts only, because the
//infinite sentinels are not representable in JSON.
type binBoundariesDump struct {
	InteriorCuts []float64
}

func (b BinBoundaries) MarshalJSON() ([]byte, error) {
	dump := binBoundariesDump{}
	if len(b.Cuts) >= 2 {
		dump.InteriorCuts = b.Cuts[1 : len(b.Cuts)-1]
	}
	return json.Marshal(dump)
}

func (b *BinBoundaries) UnmarshalJSON(data []byte) error {
	var dump binBoundariesDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return err
	}
	b.Cuts = make([]float64, 0, len(dump.InteriorCuts)+2)
	b.Cuts = append(b.Cuts, math.Inf(-1))
	b.Cuts = append(b.Cuts, dump.InteriorCuts...)
	b.Cuts = append(b.Cuts, math.Inf(1))
	return nil
}

//BuildBins computes bin boundaries for one feature column. Distinct finite
//values are shared as evenly as possible across at most maxBins bins
//(quantile binning over distinct values); columns with fewer distinct values
//than maxBins get one bin per distinct value, and constant columns collapse
//to a single effective bin. NaNs are excluded from boundary computation and
//map to the missing bin.
func BuildBins(column []float64, maxBins int) (BinBoundaries, error) {
	if len(column) == 0 {
		return BinBoundaries{}, invalidInputf("empty feature column")
	}
	if maxBins < 1 {
		return BinBoundaries{}, invalidInputf("maxBins must be at least 1, got %d", maxBins)
	}
	if maxBins > maxSupportedBins {
		return BinBoundaries{}, invalidInputf("maxBins %d exceeds supported maximum %d", maxBins, maxSupportedBins)
	}

	uniq := distinctFinite(column)
	if len(uniq) == 0 {
		//all-missing column: a single value bin that never receives a row
		return BinBoundaries{Cuts: []float64{math.Inf(-1), math.Inf(1)}}, nil
	}

	var interior []float64
	if len(uniq) <= maxBins {
		//one bin per distinct value, cut at midpoints, no interpolation
		interior = make([]float64, 0, len(uniq)-1)
		for i := 0; i+1 < len(uniq); i++ {
			interior = append(interior, uniq[i]+0.5*(uniq[i+1]-uniq[i]))
		}
	} else {
		//balanced share of distinct values per bin
		interior = make([]float64, 0, maxBins-1)
		for k := 1; k < maxBins; k++ {
			idx := k * len(uniq) / maxBins
			cut := uniq[idx-1] + 0.5*(uniq[idx]-uniq[idx-1])
			if len(interior) == 0 || cut > interior[len(interior)-1] {
				interior = append(interior, cut)
			}
		}
	}

	cuts := make([]float64, 0, len(interior)+2)
	cuts = append(cuts, math.Inf(-1))
	cuts = append(cuts, interior...)
	cuts = append(cuts, math.Inf(1))
	return BinBoundaries{Cuts: cuts}, nil
}

func distinctFinite(column []float64) []float64 {
	seen := make(map[float64]bool, len(column))
	for _, x := range column {
		if !math.IsNaN(x) {
			seen[x] = true
		}
	}
	uniq := make([]float64, 0, len(seen))
	for x := range seen {
		uniq = append(uniq, x)
	}
	sort.Float64s(uniq)
	return uniq
}
