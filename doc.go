// Package fuse implements a real-time temporal frame-fusion kernel for
// camera preview pipelines.
//
// # Overview
//
// Each cycle fuses the frame just captured with the one captured before
// it, approximating a higher dynamic range from two alternating
// exposures, and converts the result from luma/chroma to RGB. The work is
// a per-pixel kernel with no dependency between coordinates, plus a small
// amount of state carried between cycles: a packed previous-frame buffer
// and a frame counter whose parity tells dark frames from bright ones.
//
// # Quick Start
//
//	s, err := fuse.NewSession(640, 480)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	for frame := range frames { // *image.YCbCr from the camera
//	    out, err := s.Fuse(ctx, frame)
//	    if err != nil {
//	        return err
//	    }
//	    display(out) // *image.RGBA, now owned by the caller
//	}
//
// # Strategies
//
// Three strategies combine the current and previous sample at a
// coordinate:
//   - Averaging: per-channel mean, cur/2 + prev/2
//   - ParityAveraging: the same mean applied to (dark, bright) roles that
//     swap with the frame parity; Op can replace the mean
//   - Weighted: blend by a 256-entry luminance-indexed WeightTable, with a
//     fallback to the mean for equal luma or weights summing to zero
//
// # Custom Dispatchers
//
// Session.Fuse fans the kernel out over row bands on an internal worker
// pool. Hosts with their own scheduler call Session.Begin, evaluate
// Cycle.Eval once for every coordinate in any order and on any goroutine,
// then call Cycle.End.
//
//	c, err := s.Begin(frame)
//	if err != nil {
//	    return err
//	}
//	for y := 0; y < h; y++ {
//	    for x := 0; x < w; x++ {
//	        out.SetRGBA(x, y, c.Eval(x, y))
//	    }
//	}
//	c.End()
//
// # Architecture
//
// The module is organized into:
//   - fuse: Session, Cycle, strategies, color conversion, Processor
//   - meter: luma histograms and exposure evaluation
//   - frameio: raw I420 input and TIFF/BMP/PNG output
//   - config: YAML host configuration
//   - gpu: the same kernel as a WGSL compute shader
package fuse
