package meter

// OutermostBins is how many levels at each end of the populated range
// count as clipped.
const OutermostBins = 4

// DefaultThreshold is the clipped fraction above which a frame is
// reported as under- or overexposed.
const DefaultThreshold = 0.02

// Exposure summarises a histogram.
type Exposure struct {
	// Under is the fraction of samples in the OutermostBins levels
	// starting at the darkest populated one.
	Under float64
	// Over is the fraction of samples in the OutermostBins levels ending
	// at the brightest populated one.
	Over float64
	// Samples is the histogram total.
	Samples uint64
}

// Clipped reports whether either fraction exceeds threshold.
func (e Exposure) Clipped(threshold float64) bool {
	return e.Under > threshold || e.Over > threshold
}

// Evaluate measures h. Both ends are taken relative to the populated
// range rather than to levels 0 and 255, since small sensor crops often
// leave the extreme levels empty. An empty histogram yields the zero
// Exposure.
func Evaluate(h *Histogram) Exposure {
	total := h.Total()
	if total == 0 {
		return Exposure{}
	}

	lo := 0
	for h[lo] == 0 {
		lo++
	}
	hi := Levels - 1
	for h[hi] == 0 {
		hi--
	}

	var under, over uint64
	for i := lo; i < min(lo+OutermostBins, Levels); i++ {
		under += uint64(h[i])
	}
	for i := hi; i > max(hi-OutermostBins, -1); i-- {
		over += uint64(h[i])
	}

	return Exposure{
		Under:   float64(under) / float64(total),
		Over:    float64(over) / float64(total),
		Samples: total,
	}
}
