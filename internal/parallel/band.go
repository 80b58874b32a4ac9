// Package parallel fans the per-pixel fusion kernel out over a frame.
//
// A frame is split into horizontal bands of whole rows; each band is one
// work item for the WorkerPool. Rows are contiguous in every plane the
// kernel touches, so a band walks memory linearly.
package parallel

// Band is a half-open range of rows [Y0, Y1).
type Band struct {
	Y0, Y1 int
}

// Rows returns the number of rows in the band.
func (b Band) Rows() int { return b.Y1 - b.Y0 }

// Bands splits height rows into at most n bands of near-equal size.
// Earlier bands get the extra row when height is not divisible by n.
// Returns nil when height or n is non-positive.
func Bands(height, n int) []Band {
	if height <= 0 || n <= 0 {
		return nil
	}
	n = min(n, height)

	bands := make([]Band, n)
	base, extra := height/n, height%n
	y := 0
	for i := range bands {
		rows := base
		if i < extra {
			rows++
		}
		bands[i] = Band{Y0: y, Y1: y + rows}
		y += rows
	}
	return bands
}

// ForEachBand runs fn once per band of height on the pool and waits for
// all of them. bandsPerWorker controls granularity; more bands than
// workers lets stealing even out uneven rows.
func (p *WorkerPool) ForEachBand(height, bandsPerWorker int, fn func(Band)) {
	if bandsPerWorker <= 0 {
		bandsPerWorker = 1
	}
	bands := Bands(height, p.workers*bandsPerWorker)
	work := make([]func(), len(bands))
	for i, b := range bands {
		work[i] = func() { fn(b) }
	}
	p.ExecuteAll(work)
}
