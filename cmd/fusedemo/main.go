// Command fusedemo fuses a stream of preview frames and writes the results.
//
// Frames come from a raw I420 file (-input) or are synthesized as an
// alternating dark/bright sequence of a test scene. With -fps the frames
// are published at camera rate through a fuse.Processor, which drops
// frames when fusion falls behind; otherwise every frame is fused in order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/videohdr/fuse"
	"github.com/videohdr/fuse/config"
	"github.com/videohdr/fuse/frameio"
	"github.com/videohdr/fuse/meter"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		width      = flag.Int("width", 640, "frame width")
		height     = flag.Int("height", 480, "frame height")
		strategy   = flag.String("strategy", "plain", "fusion strategy: plain, parity or weighted")
		sigma      = flag.Float64("sigma", 48, "Gaussian weight sigma for the weighted strategy")
		input      = flag.String("input", "", "raw I420 input file (synthetic frames if empty)")
		frames     = flag.Int("frames", 30, "number of synthetic frames")
		fps        = flag.Int("fps", 0, "publish frames at this rate through a processor (0 fuses every frame)")
		outDir     = flag.String("out", ".", "output directory")
		format     = flag.String("format", "png", "output format: png, tiff or bmp")
		every      = flag.Int("every", 10, "write one fused frame out of n (0 writes none)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	fuse.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = *width
		case "height":
			cfg.Height = *height
		case "strategy":
			cfg.Strategy = *strategy
		case "sigma":
			cfg.Weights = config.Weights{Sigma: *sigma, Peak: cfg.Weights.Peak}
		case "out":
			cfg.Output.Dir = *outDir
		case "format":
			cfg.Output.Format = *format
		case "every":
			cfg.Output.Every = *every
		}
	})
	if cfg.Strategy == fuse.StrategyWeighted.String() && cfg.Weights.Values == nil && cfg.Weights.File == "" && cfg.Weights.Sigma <= 0 {
		cfg.Weights.Sigma = *sigma
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	src, closeSrc, err := openSource(*input, cfg.Width, cfg.Height, *frames)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer closeSrc()

	sum, err := run(ctx, cfg, src, *fps)
	if err != nil {
		log.Fatalf("Fusion failed: %v", err)
	}

	p := message.NewPrinter(language.English)
	p.Printf("Fused %d of %d frames (%d dropped, %d written) in %v, %.1f frames/s\n",
		sum.fused, sum.read, sum.dropped, sum.written, sum.elapsed.Round(time.Millisecond), sum.rate())
	if sum.metered > 0 {
		p.Printf("Metered %d frames, %d clipped\n", sum.metered, sum.clipped)
	}
}

// source yields current frames; it returns io.EOF when exhausted.
type source func(dst *image.YCbCr) (*image.YCbCr, error)

func openSource(path string, width, height, frames int) (source, func(), error) {
	if path == "" {
		n := 0
		return func(dst *image.YCbCr) (*image.YCbCr, error) {
			if n >= frames {
				return nil, io.EOF
			}
			f := syntheticFrame(dst, width, height, n)
			n++
			return f, nil
		}, func() {}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r, err := frameio.NewI420Reader(file, width, height)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}
	return r.Next, func() { _ = file.Close() }, nil
}

// syntheticFrame renders a diagonal gradient scene. Even frames are
// underexposed and odd frames overexposed, like an alternating-exposure
// capture session.
func syntheticFrame(dst *image.YCbCr, width, height, n int) *image.YCbCr {
	if dst == nil || dst.Rect.Dx() != width || dst.Rect.Dy() != height {
		dst = image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	}
	gain := 40
	if n%2 == 1 {
		gain = 160
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			scene := (x*255/width + y*255/height) / 2
			dst.Y[dst.YOffset(x, y)] = uint8(min(scene*gain/100, 255))
		}
	}
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x += 2 {
			ci := dst.COffset(x, y)
			dst.Cb[ci] = uint8(96 + x*64/width)
			dst.Cr[ci] = uint8(160 - y*64/height)
		}
	}
	return dst
}

type summary struct {
	read, fused, dropped, written int
	metered, clipped              int
	elapsed                       time.Duration
}

func (s summary) rate() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(s.fused) / s.elapsed.Seconds()
}

func run(ctx context.Context, cfg *config.Config, next source, fps int) (summary, error) {
	var sum summary

	opts, err := cfg.SessionOptions()
	if err != nil {
		return sum, err
	}
	session, err := fuse.NewSession(cfg.Width, cfg.Height, opts...)
	if err != nil {
		return sum, err
	}
	defer session.Close()

	format, err := frameio.ParseFormat(cfg.Output.Format)
	if err != nil {
		return sum, err
	}
	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return sum, err
		}
	}

	var m *meter.Meter
	var metered, clipped atomic.Int64
	if cfg.Metering.Enabled {
		m = meter.New(append(cfg.MeterOptions(), meter.WithListener(func(r meter.Report) {
			metered.Add(1)
			if r.Clipped {
				clipped.Add(1)
			}
		}))...)
	}

	var fused, written atomic.Int64
	var writeErr atomic.Pointer[error]
	deliver := func(out *image.RGBA) {
		n := int(fused.Add(1))
		defer session.Release(out)
		if cfg.Output.Every <= 0 || (n-1)%cfg.Output.Every != 0 {
			return
		}
		path := filepath.Join(cfg.Output.Dir, fmt.Sprintf("fused_%05d%s", n, format.Ext()))
		if err := frameio.WriteFile(path, out, format); err != nil {
			writeErr.CompareAndSwap(nil, &err)
			return
		}
		written.Add(1)
	}

	start := time.Now()
	if fps > 0 {
		sum.read, sum.dropped, err = runLive(ctx, session, m, deliver, next, fps)
	} else {
		sum.read, err = runOffline(ctx, session, m, deliver, next)
	}
	sum.elapsed = time.Since(start)
	sum.fused = int(fused.Load())
	sum.written = int(written.Load())
	sum.metered = int(metered.Load())
	sum.clipped = int(clipped.Load())

	if err != nil {
		return sum, err
	}
	if p := writeErr.Load(); p != nil {
		return sum, *p
	}
	return sum, nil
}

// runOffline fuses every frame in order on the calling goroutine.
func runOffline(ctx context.Context, s *fuse.Session, m *meter.Meter, deliver fuse.Sink, next source) (int, error) {
	var frame *image.YCbCr
	read := 0
	for {
		var err error
		frame, err = next(frame)
		if errors.Is(err, io.EOF) {
			return read, nil
		}
		if err != nil {
			return read, err
		}
		read++

		if m != nil {
			m.Observe(frame)
		}
		out, err := s.Fuse(ctx, frame)
		if err != nil {
			return read, err
		}
		deliver(out)
	}
}

// runLive publishes frames at the given rate through a processor. Each
// frame gets its own buffer since the processor may still hold the
// previous one.
func runLive(ctx context.Context, s *fuse.Session, m *meter.Meter, deliver fuse.Sink, next source, fps int) (read, dropped int, err error) {
	var opts []fuse.ProcessorOption
	if m != nil {
		opts = append(opts, fuse.WithObserver(m))
	}
	p := fuse.NewProcessor(s, deliver, opts...)
	if err := p.Start(ctx); err != nil {
		return 0, 0, err
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for ctx.Err() == nil {
		frame, err := next(nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.Stop()
			return read, int(p.Stats().Dropped), err
		}
		read++
		p.Publish(frame)

		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
	}
	// Give the last published frame one frame interval to be fused.
	time.Sleep(time.Second / time.Duration(fps))
	p.Stop()

	stats := p.Stats()
	return read, int(stats.Dropped), nil
}
