package meter

import (
	"image"
	"sync"

	"github.com/videohdr/fuse"
)

// Default metering parameters.
const (
	DefaultEvery    = 3
	DefaultMaxWidth = 400
)

// Report is the result of one metered frame.
type Report struct {
	// Frame is the index of the metered frame among all observed ones.
	Frame     uint64
	Histogram Histogram
	Exposure  Exposure
	// Clipped is Exposure.Clipped at the meter's threshold.
	Clipped bool
}

// Listener receives reports on the goroutine that called Observe.
type Listener func(Report)

// Option configures a Meter.
type Option func(*Meter)

// WithEvery meters one frame out of n. Values below 1 meter every frame.
func WithEvery(n int) Option {
	return func(m *Meter) {
		m.every = uint64(max(n, 1))
	}
}

// WithThreshold sets the clipped fraction that triggers a warning.
func WithThreshold(f float64) Option {
	return func(m *Meter) {
		m.threshold = f
	}
}

// WithMaxWidth sets the width frames are downscaled to before counting.
// Zero or negative counts the full-resolution luma plane.
func WithMaxWidth(w int) Option {
	return func(m *Meter) {
		m.maxWidth = w
	}
}

// WithListener registers a callback for every report.
func WithListener(l Listener) Option {
	return func(m *Meter) {
		m.listener = l
	}
}

// Meter evaluates the exposure of every Nth observed frame.
//
// Meter implements fuse.Observer and is safe for concurrent use, although
// frames are normally observed from a single processing goroutine.
type Meter struct {
	every     uint64
	threshold float64
	maxWidth  int
	listener  Listener

	mu      sync.Mutex
	frames  uint64
	scratch *image.Gray
	last    Report
	metered bool
}

var _ fuse.Observer = (*Meter)(nil)

// New creates a meter with the given options.
func New(opts ...Option) *Meter {
	m := &Meter{
		every:     DefaultEvery,
		threshold: DefaultThreshold,
		maxWidth:  DefaultMaxWidth,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe implements fuse.Observer.
func (m *Meter) Observe(frame *image.YCbCr) {
	if frame == nil {
		return
	}

	m.mu.Lock()
	n := m.frames
	m.frames++
	if n%m.every != 0 {
		m.mu.Unlock()
		return
	}
	luma := Luma(frame)
	small := Downscale(m.scratch, luma, m.maxWidth)
	if small != luma {
		m.scratch = small
	}
	r := Report{Frame: n, Histogram: HistogramOf(small)}
	r.Exposure = Evaluate(&r.Histogram)
	r.Clipped = r.Exposure.Clipped(m.threshold)
	m.last, m.metered = r, true
	listener := m.listener
	m.mu.Unlock()

	if r.Clipped {
		fuse.Logger().Warn("exposure clipped",
			"frame", r.Frame,
			"under", r.Exposure.Under,
			"over", r.Exposure.Over)
	}
	if listener != nil {
		listener(r)
	}
}

// Last returns the most recent report. ok is false until a frame has
// been metered.
func (m *Meter) Last() (r Report, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, m.metered
}

// Observed returns the number of frames seen so far.
func (m *Meter) Observed() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}
