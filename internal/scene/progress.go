package scene

const (
	bundleWeightWaiting = 0.1
	bundleWeightDirect  = 0.9
	loaderPhaseStart    = 0.2
	loaderPhaseSpan     = 0.8
)

// AggregateProgress combines drained and outstanding loaders into the
// loader phase of the bar: (done + mean(remaining)) * 0.8 / (done + n) + 0.2.
func AggregateProgress(done int, remaining []float64) float64 {
	total := done + len(remaining)
	if total == 0 {
		return 1
	}
	mean := 0.0
	if len(remaining) > 0 {
		for _, p := range remaining {
			mean += p
		}
		mean /= float64(len(remaining))
	}
	return (float64(done)+mean)*loaderPhaseSpan/float64(total) + loaderPhaseStart
}

func bundleProgress(p float64, waitForLoaders bool) float64 {
	if waitForLoaders {
		return p * bundleWeightWaiting
	}
	return p * bundleWeightDirect
}

func engineProgress(p float64, waitForLoaders bool) float64 {
	base := bundleWeightDirect
	if waitForLoaders {
		base = bundleWeightWaiting
	}
	return p*0.1 + base
}
