package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/videohdr/fuse/config"
)

func TestSyntheticFrameAlternates(t *testing.T) {
	dark := syntheticFrame(nil, 32, 24, 0)
	bright := syntheticFrame(nil, 32, 24, 1)

	x, y := 31, 23
	if d, b := dark.Y[dark.YOffset(x, y)], bright.Y[bright.YOffset(x, y)]; d >= b {
		t.Errorf("dark luma %d not below bright luma %d", d, b)
	}
	if again := syntheticFrame(dark, 32, 24, 2); again != dark {
		t.Error("matching destination not reused")
	}
}

func TestRunOffline(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Width, cfg.Height = 32, 24
	cfg.Strategy = "weighted"
	cfg.Weights.Sigma = 40
	cfg.Metering.Every = 2
	cfg.Output.Dir = dir
	cfg.Output.Every = 3
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	src, closeSrc, err := openSource("", cfg.Width, cfg.Height, 7)
	if err != nil {
		t.Fatal(err)
	}
	defer closeSrc()

	sum, err := run(context.Background(), cfg, src, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sum.read != 7 || sum.fused != 7 || sum.dropped != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.written != 3 || sum.metered != 4 {
		t.Errorf("written/metered = %d/%d, want 3/4", sum.written, sum.metered)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("output files = %d, want 3", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "fused_00001.png")); err != nil {
		t.Error(err)
	}
}

func TestOpenSourceMissingFile(t *testing.T) {
	if _, _, err := openSource(filepath.Join(t.TempDir(), "none.yuv"), 4, 4, 0); err == nil {
		t.Error("expected error for missing input")
	}
}
