// Package config loads host configuration for a fusion session from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/videohdr/fuse"
	"github.com/videohdr/fuse/frameio"
	"github.com/videohdr/fuse/meter"
)

// Weights selects the weight table of the weighted strategy. Exactly one
// of Values, File or Sigma should be set; Values wins over File, File
// over Sigma.
type Weights struct {
	Values []int32 `yaml:"values,omitempty"` // 256 entries
	File   string  `yaml:"file,omitempty"`   // YAML list of 256 integers
	Sigma  float64 `yaml:"sigma,omitempty"`  // Gaussian around luma 128
	Peak   int32   `yaml:"peak,omitempty"`   // Gaussian peak, default 1024
}

// Metering configures the exposure meter.
type Metering struct {
	Enabled   bool    `yaml:"enabled"`
	Every     int     `yaml:"every"`
	MaxWidth  int     `yaml:"max_width"`
	Threshold float64 `yaml:"threshold"`
}

// Output configures where fused frames are written.
type Output struct {
	Format string `yaml:"format"` // "png" | "tiff" | "bmp"
	Dir    string `yaml:"dir,omitempty"`
	Every  int    `yaml:"every"` // write one fused frame out of n
}

// Config is the host configuration.
type Config struct {
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Strategy string `yaml:"strategy"` // "plain" | "parity" | "weighted"
	Workers  int    `yaml:"workers,omitempty"`
	// OutputPool keeps up to n released output frames; 0 disables pooling.
	OutputPool int `yaml:"output_pool,omitempty"`

	Weights  Weights  `yaml:"weights,omitempty"`
	Metering Metering `yaml:"metering"`
	Output   Output   `yaml:"output"`

	// dir is the directory relative weight files are resolved against.
	dir string
}

// Default returns a configuration for a 640x480 preview with plain
// averaging, metering on and PNG output.
func Default() *Config {
	return &Config{
		Width:    640,
		Height:   480,
		Strategy: fuse.StrategyPlain.String(),
		Weights:  Weights{Peak: 1024},
		Metering: Metering{
			Enabled:   true,
			Every:     meter.DefaultEvery,
			MaxWidth:  meter.DefaultMaxWidth,
			Threshold: meter.DefaultThreshold,
		},
		Output: Output{Format: "png", Every: 1},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.dir = filepath.Dir(path)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to path as YAML.
func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate checks value ranges and names. It does not read weight files.
func (c *Config) Validate() error {
	var errs []error
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("%w: width=%d, height=%d", fuse.ErrInvalidDimensions, c.Width, c.Height))
	}
	kind, err := fuse.ParseStrategyKind(c.Strategy)
	if err != nil {
		errs = append(errs, err)
	}
	if err == nil && kind == fuse.StrategyWeighted &&
		c.Weights.Values == nil && c.Weights.File == "" && c.Weights.Sigma <= 0 {
		errs = append(errs, fmt.Errorf("%w: set weights.values, weights.file or weights.sigma", fuse.ErrMissingWeightTable))
	}
	if c.Weights.Values != nil && len(c.Weights.Values) != len(fuse.WeightTable{}) {
		errs = append(errs, fmt.Errorf("%w: got %d", fuse.ErrWeightTableSize, len(c.Weights.Values)))
	}
	if _, err := frameio.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Metering.Threshold < 0 || c.Metering.Threshold > 1 {
		errs = append(errs, fmt.Errorf("config: metering.threshold %v outside [0, 1]", c.Metering.Threshold))
	}
	return errors.Join(errs...)
}

// LoadWeights resolves the configured weight table. It returns nil, nil
// when no table is configured.
func (c *Config) LoadWeights() (*fuse.WeightTable, error) {
	w := c.Weights
	switch {
	case w.Values != nil:
		return fuse.NewWeightTable(w.Values)
	case w.File != "":
		path := w.File
		if !filepath.IsAbs(path) && c.dir != "" {
			path = filepath.Join(c.dir, path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var values []int32
		if err := yaml.Unmarshal(b, &values); err != nil {
			return nil, fmt.Errorf("config: parse weights %s: %w", path, err)
		}
		return fuse.NewWeightTable(values)
	case w.Sigma > 0:
		peak := w.Peak
		if peak == 0 {
			peak = 1024
		}
		return fuse.GaussianWeights(peak, w.Sigma), nil
	default:
		return nil, nil
	}
}

// SessionOptions translates c into session options.
func (c *Config) SessionOptions() ([]fuse.Option, error) {
	kind, err := fuse.ParseStrategyKind(c.Strategy)
	if err != nil {
		return nil, err
	}
	table, err := c.LoadWeights()
	if err != nil {
		return nil, err
	}
	strategy, err := fuse.NewStrategy(kind, table)
	if err != nil {
		return nil, err
	}

	opts := []fuse.Option{
		fuse.WithStrategy(strategy),
		fuse.WithWorkers(c.Workers),
	}
	if c.OutputPool > 0 {
		opts = append(opts, fuse.WithOutputPool(c.OutputPool))
	}
	return opts, nil
}

// MeterOptions translates the metering section into meter options.
func (c *Config) MeterOptions() []meter.Option {
	return []meter.Option{
		meter.WithEvery(c.Metering.Every),
		meter.WithMaxWidth(c.Metering.MaxWidth),
		meter.WithThreshold(c.Metering.Threshold),
	}
}
