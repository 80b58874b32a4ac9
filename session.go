package fuse

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/videohdr/fuse/internal/framepool"
	"github.com/videohdr/fuse/internal/parallel"
)

// debugEvery is the cycle interval of the "fusing frames" debug line.
const debugEvery = 15

// Session holds the cross-cycle state of one preview stream: the packed
// previous-frame buffer, the frame parity counter and the bound strategy.
//
// Lifecycle: NewSession → (Begin/Eval/End or Fuse)* → Close.
//
// A session runs one cycle at a time. Within a cycle, Cycle.Eval may be
// called concurrently for distinct coordinates.
type Session struct {
	id       uuid.UUID
	strategy Strategy
	log      *slog.Logger

	// mu serializes Begin, Resize and Close. It is not held during a cycle.
	mu     sync.Mutex
	width  int
	height int
	prev   *PackedFrame

	frames atomic.Uint64 // completed cycles; low bit is the parity
	active atomic.Bool
	closed atomic.Bool

	dispatch       *parallel.WorkerPool
	bandsPerWorker int
	outputs        *framepool.Pool
}

// NewSession creates a session for frames of the given size.
//
// The previous-frame buffer starts zeroed, so the first cycle fuses the
// current frame with black. Session setup hazards are reported here,
// before any pixel is processed: ErrInvalidDimensions for a non-positive
// size and ErrMissingWeightTable for a Weighted strategy (value or
// pointer) without a table.
func NewSession(width, height int, opts ...Option) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.strategy == nil {
		o.strategy = Averaging{}
	}
	if err := ValidateStrategy(o.strategy); err != nil {
		return nil, err
	}

	s := &Session{
		id:             uuid.New(),
		strategy:       o.strategy,
		width:          width,
		height:         height,
		prev:           NewPackedFrame(width, height),
		dispatch:       parallel.NewWorkerPool(o.workers),
		bandsPerWorker: o.bandsPerWorker,
	}
	if o.outputPool >= 0 {
		s.outputs = framepool.New(o.outputPool)
	}
	s.log = Logger().With("session", s.id.String())
	s.log.Info("session created",
		"width", width,
		"height", height,
		"strategy", s.strategy.Kind().String(),
		"workers", s.dispatch.Workers())

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Strategy returns the bound fusion strategy.
func (s *Session) Strategy() Strategy { return s.strategy }

// Bounds returns the frame bounds the session expects.
func (s *Session) Bounds() image.Rectangle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return image.Rect(0, 0, s.width, s.height)
}

// Frames returns the number of completed cycles. The next cycle's frame
// counter has the same value.
func (s *Session) Frames() uint64 { return s.frames.Load() }

// Previous returns the previous-frame buffer. It must only be read
// between cycles.
func (s *Session) Previous() *PackedFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prev
}

// Begin starts a fusion cycle for cur and returns the per-coordinate
// evaluator. The frame counter is read and the strategy bound exactly
// once here; End must be called when every coordinate has been evaluated.
//
// cur must not be modified until End, and must not share memory with the
// session's previous-frame buffer.
func (s *Session) Begin(cur *image.YCbCr) (*Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if err := s.checkFrame(cur); err != nil {
		return nil, err
	}
	if !s.active.CompareAndSwap(false, true) {
		return nil, ErrCycleActive
	}

	frame := s.frames.Load()
	return &Cycle{
		session: s,
		frame:   frame,
		cur:     cur,
		prev:    s.prev,
		merge:   s.strategy.Bind(frame),
	}, nil
}

// checkFrame verifies cur matches the session size and its planes cover
// every coordinate. Called with mu held.
func (s *Session) checkFrame(cur *image.YCbCr) error {
	if cur == nil {
		return fmt.Errorf("%w: nil frame", ErrFrameSize)
	}
	r := cur.Rect
	if r.Dx() != s.width || r.Dy() != s.height {
		return fmt.Errorf("%w: got %dx%d, want %dx%d", ErrFrameSize, r.Dx(), r.Dy(), s.width, s.height)
	}
	last := image.Pt(r.Max.X-1, r.Max.Y-1)
	if cur.YOffset(last.X, last.Y) >= len(cur.Y) ||
		cur.COffset(last.X, last.Y) >= len(cur.Cb) ||
		cur.COffset(last.X, last.Y) >= len(cur.Cr) {
		return fmt.Errorf("%w: planes shorter than %dx%d", ErrFrameSize, s.width, s.height)
	}
	return nil
}

// Fuse runs one complete cycle for cur on the session's worker pool and
// returns the fused frame. Ownership of the returned frame passes to the
// caller; it may be handed back through Release.
//
// ctx is checked once before dispatch. A cycle that has started always
// runs to completion, so the previous-frame buffer is never left half
// rotated.
func (s *Session) Fuse(ctx context.Context, cur *image.YCbCr) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := s.Begin(cur)
	if err != nil {
		return nil, err
	}
	defer c.End()

	size := c.prev.Rect.Size()
	out := s.output(size.X, size.Y)
	s.dispatch.ForEachBand(size.Y, s.bandsPerWorker, func(b parallel.Band) {
		c.evalRows(out, b.Y0, b.Y1)
	})
	return out, nil
}

// output returns a frame to write a cycle's result into.
func (s *Session) output(width, height int) *image.RGBA {
	if s.outputs != nil {
		return s.outputs.Get(width, height)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

// Release hands an output frame back for reuse by a later cycle. The
// caller must not touch out afterwards. Without WithOutputPool, Release
// does nothing.
func (s *Session) Release(out *image.RGBA) {
	if s.outputs != nil {
		s.outputs.Put(out)
	}
}

// Resize switches the session to a new frame size after a format change.
// The previous-frame buffer is reallocated and zeroed; the frame counter
// keeps counting.
func (s *Session) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.active.Load() {
		return ErrCycleActive
	}
	s.width, s.height = width, height
	s.prev = NewPackedFrame(width, height)
	s.log.Info("session resized", "width", width, "height", height)
	return nil
}

// Close releases the dispatcher. Further Begin, Fuse and Resize calls
// return ErrSessionClosed. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.dispatch.Close()
	s.log.Info("session closed", "frames", s.frames.Load())
}

// Cycle is one fusion pass over a frame. It is created by Session.Begin
// and finished by End.
type Cycle struct {
	session *Session
	frame   uint64
	cur     *image.YCbCr
	prev    *PackedFrame
	merge   MergeFunc
	ended   atomic.Bool
}

// Frame returns the cycle's frame counter.
func (c *Cycle) Frame() uint64 { return c.frame }

// Eval is the per-pixel kernel. It fuses the current and previous samples
// at (x, y), stages the raw current sample as next cycle's previous one,
// and returns the RGB result.
//
// (x, y) is relative to the frame origin. Eval takes no locks; concurrent
// calls are safe for distinct coordinates. Each coordinate must be
// evaluated exactly once per cycle, and never after End.
func (c *Cycle) Eval(x, y int) color.RGBA {
	cur := readCurrent(c.cur, x, y)
	prev := c.prev.At(x, y)
	merged := c.merge(cur, prev)
	c.prev.Set(x, y, cur)
	return ToRGB(merged)
}

// evalRows evaluates rows [y0, y1) into out.
func (c *Cycle) evalRows(out *image.RGBA, y0, y1 int) {
	w := c.prev.Rect.Dx()
	for y := y0; y < y1; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+4*w]
		for x := range w {
			rgb := c.Eval(x, y)
			px := row[4*x : 4*x+4 : 4*x+4]
			px[0] = rgb.R
			px[1] = rgb.G
			px[2] = rgb.B
			px[3] = rgb.A
		}
	}
}

// End finishes the cycle and advances the session's frame counter. Only
// the first call has an effect.
func (c *Cycle) End() {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	s := c.session
	n := s.frames.Add(1)
	s.active.Store(false)
	if n%debugEvery == 0 {
		s.log.Debug("fusing frames", "frames", n)
	}
}
