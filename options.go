package fuse

// Option configures a Session during creation.
//
// Example:
//
//	// Plain averaging on all cores
//	s, err := fuse.NewSession(640, 480)
//
//	// Luminance-weighted fusion on four workers
//	s, err := fuse.NewSession(640, 480,
//	    fuse.WithStrategy(fuse.Weighted{Table: fuse.GaussianWeights(1024, 48)}),
//	    fuse.WithWorkers(4))
type Option func(*sessionOptions)

type sessionOptions struct {
	strategy       Strategy
	workers        int
	bandsPerWorker int
	outputPool     int
}

func defaultOptions() sessionOptions {
	return sessionOptions{
		strategy:       Averaging{},
		workers:        0, // GOMAXPROCS
		bandsPerWorker: 4,
		outputPool:     -1, // disabled
	}
}

// WithStrategy selects the fusion strategy. The default is Averaging.
// A Weighted strategy without a table fails session creation with
// ErrMissingWeightTable.
func WithStrategy(s Strategy) Option {
	return func(o *sessionOptions) {
		o.strategy = s
	}
}

// WithWorkers sets the number of dispatcher goroutines used by
// Session.Fuse. Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *sessionOptions) {
		o.workers = n
	}
}

// WithBandsPerWorker sets how many row bands each worker receives per
// cycle. Higher values balance better at the cost of more scheduling.
func WithBandsPerWorker(n int) Option {
	return func(o *sessionOptions) {
		if n > 0 {
			o.bandsPerWorker = n
		}
	}
}

// WithOutputPool enables recycling of output frames handed back through
// Session.Release, keeping at most n idle frames (n <= 0 keeps all of
// them). Without it every cycle allocates a fresh output frame.
func WithOutputPool(n int) Option {
	return func(o *sessionOptions) {
		o.outputPool = max(n, 0)
	}
}
