package fuse

import (
	"fmt"
	"strings"
)

// StrategyKind identifies one of the built-in fusion strategies.
type StrategyKind uint8

const (
	// StrategyPlain merges current and previous by unweighted mean.
	StrategyPlain StrategyKind = iota
	// StrategyParity reorders the pair into dark/bright roles by frame
	// parity before merging.
	StrategyParity
	// StrategyWeighted blends by a luminance-indexed weight table.
	StrategyWeighted
)

var strategyNames = [...]string{
	StrategyPlain:    "plain",
	StrategyParity:   "parity",
	StrategyWeighted: "weighted",
}

// String returns the lower-case strategy name.
func (k StrategyKind) String() string {
	if int(k) < len(strategyNames) {
		return strategyNames[k]
	}
	return fmt.Sprintf("StrategyKind(%d)", k)
}

// ParseStrategyKind parses a strategy name as returned by String.
// Matching is case-insensitive.
func ParseStrategyKind(s string) (StrategyKind, error) {
	for i, name := range strategyNames {
		if strings.EqualFold(s, name) {
			return StrategyKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// MergeFunc combines the current and previous samples at one coordinate
// into a single luma/chroma pixel.
type MergeFunc func(cur, prev Pixel) Pixel

// Strategy is a pixel fusion algorithm.
//
// Bind is called once per fusion cycle, before any pixel is evaluated,
// with the cycle's frame counter. Everything that depends only on the
// cycle (such as dark/bright role assignment) is resolved there so the
// returned MergeFunc behaves identically for every pixel of the cycle.
// The MergeFunc must be safe for concurrent use.
type Strategy interface {
	Kind() StrategyKind
	Bind(frame uint64) MergeFunc
}

// NewStrategy returns the built-in strategy for kind. table is required
// for StrategyWeighted and ignored otherwise.
func NewStrategy(kind StrategyKind, table *WeightTable) (Strategy, error) {
	switch kind {
	case StrategyPlain:
		return Averaging{}, nil
	case StrategyParity:
		return ParityAveraging{}, nil
	case StrategyWeighted:
		if table == nil {
			return nil, ErrMissingWeightTable
		}
		return Weighted{Table: table}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, kind)
	}
}

// ValidateStrategy reports setup errors of s that would otherwise only
// surface while evaluating pixels: a nil pointer strategy, or a weighted
// strategy without a table. Value and pointer forms of the built-in
// strategies are both checked.
func ValidateStrategy(s Strategy) error {
	switch v := s.(type) {
	case nil:
		return fmt.Errorf("%w: nil strategy", ErrUnknownStrategy)
	case *Averaging:
		if v == nil {
			return fmt.Errorf("%w: nil *Averaging", ErrUnknownStrategy)
		}
	case *ParityAveraging:
		if v == nil {
			return fmt.Errorf("%w: nil *ParityAveraging", ErrUnknownStrategy)
		}
	case Weighted:
		if v.Table == nil {
			return ErrMissingWeightTable
		}
	case *Weighted:
		if v == nil || v.Table == nil {
			return ErrMissingWeightTable
		}
	}
	return nil
}

// Mean returns the per-channel mean of a and b as a/2 + b/2.
//
// Each half is floored separately, so the result can sit one unit below
// the exact mean when both inputs are odd. Outputs depend on this bias;
// do not round.
func Mean(a, b Pixel) Pixel {
	return Pixel{
		Y: a.Y/2 + b.Y/2,
		U: a.U/2 + b.U/2,
		V: a.V/2 + b.V/2,
		A: 255,
	}
}

// Averaging is the plain averaging strategy.
type Averaging struct{}

// Kind implements Strategy.
func (Averaging) Kind() StrategyKind { return StrategyPlain }

// Bind implements Strategy.
func (Averaging) Bind(uint64) MergeFunc { return Mean }

// ParityAveraging assigns the dark and bright roles by frame parity and
// merges them with Op.
//
// On odd frames the previous sample is dark and the current one bright;
// on even frames the roles are reversed. Op receives (dark, bright) and
// defaults to Mean, which makes the strategy equivalent to Averaging.
type ParityAveraging struct {
	Op func(dark, bright Pixel) Pixel
}

// Kind implements Strategy.
func (ParityAveraging) Kind() StrategyKind { return StrategyParity }

// Bind implements Strategy.
func (s ParityAveraging) Bind(frame uint64) MergeFunc {
	op := s.Op
	if op == nil {
		op = Mean
	}
	if PreviousIsDark(frame) {
		return func(cur, prev Pixel) Pixel { return op(prev, cur) }
	}
	return func(cur, prev Pixel) Pixel { return op(cur, prev) }
}

// PreviousIsDark reports whether the previous frame plays the dark role
// in the cycle with the given frame counter.
func PreviousIsDark(frame uint64) bool {
	return frame&1 == 1
}

// Weighted blends current and previous by the weights their luma values
// map to in Table.
//
// Pairs with equal luma reduce to Mean exactly, including its floor bias.
// Pixels whose weights sum to zero also fall back to Mean instead of
// dividing by zero. Every other pair, including different luma values
// that map to the same weight, uses the weighted formula.
type Weighted struct {
	Table *WeightTable
}

// Kind implements Strategy.
func (Weighted) Kind() StrategyKind { return StrategyWeighted }

// Bind implements Strategy.
func (s Weighted) Bind(uint64) MergeFunc { return s.Merge }

// Merge blends a single pixel pair.
func (s Weighted) Merge(cur, prev Pixel) Pixel {
	wCur := int64(s.Table[cur.Y])
	wPrev := int64(s.Table[prev.Y])
	sum := wCur + wPrev
	if cur.Y == prev.Y || sum == 0 {
		return Mean(cur, prev)
	}
	blend := func(c, p uint8) uint8 {
		v := (wPrev*int64(p) + wCur*int64(c)) / sum
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(v)
	}
	return Pixel{
		Y: blend(cur.Y, prev.Y),
		U: blend(cur.U, prev.U),
		V: blend(cur.V, prev.V),
		A: 255,
	}
}
