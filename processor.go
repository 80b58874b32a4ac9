package fuse

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
)

// Observer inspects each current frame just before it is fused.
// Observe runs on the processing goroutine and must not modify the frame.
type Observer interface {
	Observe(frame *image.YCbCr)
}

// Sink receives each fused frame. Ownership of out passes to the sink.
type Sink func(out *image.RGBA)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithObserver attaches an observer such as an exposure meter.
func WithObserver(o Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = o
	}
}

// ProcessorStats is a snapshot of processor counters.
type ProcessorStats struct {
	// Published counts frames handed to Publish.
	Published uint64
	// Processed counts frames fused and delivered to the sink.
	Processed uint64
	// Dropped counts frames replaced by a newer one, published after Stop
	// or still pending when Stop was called.
	Dropped uint64
	// Failed counts frames the session rejected.
	Failed uint64
}

// Processor drives a Session from a camera callback: frames arrive via
// Publish on any goroutine and are fused one at a time on a dedicated
// processing goroutine.
//
// Publish never blocks. When fusion falls behind the frame rate only the
// newest pending frame is kept; older ones are dropped and counted.
// Dropping an odd number of frames puts the frame counter out of phase
// with an alternating dark/bright capture sequence.
//
// Lifecycle: NewProcessor → Start → Publish* → Stop.
type Processor struct {
	session  *Session
	sink     Sink
	observer Observer

	mu       sync.Mutex
	cond     *sync.Cond
	pending  *image.YCbCr
	started  bool
	stopping bool
	done     chan struct{}

	published atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewProcessor creates a processor that fuses frames with s and delivers
// the results to sink. sink may be nil.
func NewProcessor(s *Session, sink Sink, opts ...ProcessorOption) *Processor {
	p := &Processor{session: s, sink: sink}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the processing goroutine. It stops when ctx is done or
// Stop is called. A processor can be started only once.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrProcessorStarted
	}
	p.started = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	unregister := context.AfterFunc(ctx, p.halt)
	go p.loop(ctx, unregister)
	return nil
}

// Publish hands a newly captured frame to the processor. The frame must
// not be modified afterwards. Publish returns immediately; if a frame is
// already waiting it is replaced and counted as dropped.
func (p *Processor) Publish(frame *image.YCbCr) {
	if frame == nil {
		return
	}
	p.published.Add(1)

	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		p.dropped.Add(1)
		return
	}
	replaced := p.pending != nil
	p.pending = frame
	p.cond.Signal()
	p.mu.Unlock()

	if replaced {
		n := p.dropped.Add(1)
		p.session.log.Warn("frame dropped, fusion slower than capture", "dropped", n)
	}
}

// Stop halts processing and waits for the goroutine to exit. A frame
// still pending is discarded and counted as dropped. Stop is idempotent.
func (p *Processor) Stop() {
	p.halt()

	p.mu.Lock()
	started, done := p.started, p.done
	p.mu.Unlock()

	if started {
		<-done
	}
}

// Stats returns a snapshot of the processor counters.
func (p *Processor) Stats() ProcessorStats {
	return ProcessorStats{
		Published: p.published.Load(),
		Processed: p.processed.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Processor) halt() {
	p.mu.Lock()
	p.stopping = true
	if p.pending != nil {
		p.pending = nil
		p.dropped.Add(1)
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Processor) loop(ctx context.Context, unregister func() bool) {
	defer close(p.done)
	defer unregister()

	for {
		p.mu.Lock()
		for p.pending == nil && !p.stopping {
			p.cond.Wait()
		}
		if p.stopping {
			p.mu.Unlock()
			return
		}
		frame := p.pending
		p.pending = nil
		p.mu.Unlock()

		p.process(ctx, frame)
	}
}

func (p *Processor) process(ctx context.Context, frame *image.YCbCr) {
	if p.observer != nil {
		p.observer.Observe(frame)
	}
	out, err := p.session.Fuse(ctx, frame)
	if err != nil {
		p.failed.Add(1)
		p.session.log.Warn("fusion cycle failed", "err", err)
		return
	}
	p.processed.Add(1)
	if p.sink != nil {
		p.sink(out)
	}
}
