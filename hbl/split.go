package hbl

//gainTolerance is the floating-point slack used when comparing candidate
//gains. A candidate must beat the incumbent by more than this, so equal-gain
//ties resolve to the lowest feature index and then the lowest threshold bin.
const gainTolerance = 1e-12

//hessianEpsilon floors the (H + lambda) denominator in gains and leaf values
//so a degenerate hessian sum cannot produce NaN or Inf.
const hessianEpsilon = 1e-12

//SplitDecision describes an accepted split of one node: the feature, the bin
//threshold (rows with bin <= Threshold go left), the default direction for
//missing values and the child statistics. It is immutable once computed and
//consumed exactly once by the row partitioner.
type SplitDecision struct {
	Feature     int
	Threshold   int
	Gain        float64
	MissingLeft bool

	LeftGrad, LeftHess   float64
	RightGrad, RightHess float64
	LeftCount            int64
	RightCount           int64
}

func safeDenominator(hsum, lambda float64) float64 {
	d := hsum + lambda
	if d < hessianEpsilon {
		return hessianEpsilon
	}
	return d
}

//scoreHalf is the per-partition term of the second-order gain.
func scoreHalf(gsum, hsum, lambda float64) float64 {
	return gsum * gsum / safeDenominator(hsum, lambda)
}

//LeafValue returns the output value of a leaf with the given totals,
//-G/(H + lambda), with the denominator clamped to a small positive epsilon.
func LeafValue(gsum, hsum, lambda float64) float64 {
	return -gsum / safeDenominator(hsum, lambda)
}

//findBestSplit scans every feature histogram in a single ordered pass and
//returns the best (feature, threshold) split, or ok=false when no candidate
//clears the minimum gain and minimum-samples constraints. That outcome is
//normal control flow: the node becomes a leaf.
//
//For each feature the left partition statistics come from a prefix scan over
//the ordered value bins; the missing bin is tried on each side and the better
//side is recorded as the split's default direction.
func findBestSplit(hist *Histogram, bm *BinMatrix, gTotal, hTotal float64, rowCount int64, cfg GrowConfig) (best SplitDecision, ok bool) {
	lambda := cfg.L2Reg
	minSamples := int64(cfg.MinSamplesLeaf)
	parentScore := scoreHalf(gTotal, hTotal, lambda)

	bestGain := cfg.MinGainToSplit

	for feature := 0; feature < hist.Features; feature++ {
		valueBins := bm.Bounds(feature).ValueBins()
		if valueBins < 2 {
			//single effective bin, nothing to threshold on
			continue
		}
		base := feature * hist.Width

		missGrad := hist.Grad[base+MissingBin]
		missHess := hist.Hess[base+MissingBin]
		missCount := hist.Count[base+MissingBin]

		var cumGrad, cumHess float64
		var cumCount int64

		//thresholds run over value bins 1..valueBins-1; the last bin cannot
		//be a threshold because its right side would be empty
		for bin := 1; bin < valueBins; bin++ {
			idx := base + bin
			cumGrad += hist.Grad[idx]
			cumHess += hist.Hess[idx]
			cumCount += hist.Count[idx]

			//missing routed left
			leftCount := cumCount + missCount
			rightCount := rowCount - leftCount
			if leftCount >= minSamples && rightCount >= minSamples {
				leftGrad := cumGrad + missGrad
				leftHess := cumHess + missHess
				gain := 0.5 * (scoreHalf(leftGrad, leftHess, lambda) + scoreHalf(gTotal-leftGrad, hTotal-leftHess, lambda) - parentScore)
				if gain > bestGain+gainTolerance {
					bestGain = gain
					best = SplitDecision{
						Feature:     feature,
						Threshold:   bin,
						Gain:        gain,
						MissingLeft: true,
						LeftGrad:    leftGrad,
						LeftHess:    leftHess,
						RightGrad:   gTotal - leftGrad,
						RightHess:   hTotal - leftHess,
						LeftCount:   leftCount,
						RightCount:  rightCount,
					}
					ok = true
				}
			}

			//missing routed right; identical to the left case when the node
			//has no missing rows, so skip the duplicate candidate
			if missCount == 0 {
				continue
			}
			leftCount = cumCount
			rightCount = rowCount - leftCount
			if leftCount >= minSamples && rightCount >= minSamples {
				gain := 0.5 * (scoreHalf(cumGrad, cumHess, lambda) + scoreHalf(gTotal-cumGrad, hTotal-cumHess, lambda) - parentScore)
				if gain > bestGain+gainTolerance {
					bestGain = gain
					best = SplitDecision{
						Feature:     feature,
						Threshold:   bin,
						Gain:        gain,
						MissingLeft: false,
						LeftGrad:    cumGrad,
						LeftHess:    cumHess,
						RightGrad:   gTotal - cumGrad,
						RightHess:   hTotal - cumHess,
						LeftCount:   leftCount,
						RightCount:  rightCount,
					}
					ok = true
				}
			}
		}
	}
	return best, ok
}
