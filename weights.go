package fuse

import (
	"fmt"
	"math"
)

// WeightTable maps an 8-bit luma value to a relative confidence weight.
// The supplier defines the curve; the conventional shape peaks at mid-gray
// and falls off toward both extremes so well-exposed samples dominate.
//
// A table is read-only once bound to a session.
type WeightTable [256]int32

// NewWeightTable copies values into a WeightTable. It returns
// ErrWeightTableSize unless len(values) is exactly 256.
func NewWeightTable(values []int32) (*WeightTable, error) {
	if len(values) != len(WeightTable{}) {
		return nil, fmt.Errorf("%w: got %d", ErrWeightTableSize, len(values))
	}
	var t WeightTable
	copy(t[:], values)
	return &t, nil
}

// GaussianWeights builds a bell-shaped table centred on luma 128 with the
// given peak weight and standard deviation (in luma units).
//
// Example:
//
//	t := fuse.GaussianWeights(1024, 48) // t[128] == 1024, t[0] ≈ 29
func GaussianWeights(peak int32, sigma float64) *WeightTable {
	var t WeightTable
	if sigma <= 0 {
		t[128] = peak
		return &t
	}
	for i := range t {
		d := float64(i) - 128
		w := float64(peak) * math.Exp(-(d*d)/(2*sigma*sigma))
		t[i] = int32(math.Round(w))
	}
	return &t
}

// Weight returns the weight for luma y.
func (t *WeightTable) Weight(y uint8) int32 {
	return t[y]
}
