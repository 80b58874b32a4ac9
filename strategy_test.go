package fuse

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func randomPixel(r *rand.Rand) Pixel {
	return Pixel{Y: uint8(r.UintN(256)), U: uint8(r.UintN(256)), V: uint8(r.UintN(256)), A: 255}
}

func TestMean(t *testing.T) {
	tests := []struct {
		name string
		a, b Pixel
		want Pixel
	}{
		{"example", Pixel{200, 128, 128, 255}, Pixel{100, 128, 128, 255}, Pixel{150, 128, 128, 255}},
		{"odd pair floors twice", Pixel{1, 3, 5, 0}, Pixel{1, 3, 5, 0}, Pixel{0, 2, 4, 255}},
		{"white", Pixel{255, 255, 255, 255}, Pixel{255, 255, 255, 255}, Pixel{254, 254, 254, 255}},
		{"black", Pixel{}, Pixel{}, Pixel{0, 0, 0, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Mean(tt.a, tt.b); got != tt.want {
				t.Errorf("Mean(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestAveraging_Commutative(t *testing.T) {
	merge := Averaging{}.Bind(0)
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			pa := Pixel{Y: uint8(a), U: uint8(255 - a), V: uint8(b), A: 255}
			pb := Pixel{Y: uint8(b), U: uint8(a), V: uint8(255 - b), A: 255}
			if merge(pa, pb) != merge(pb, pa) {
				t.Fatalf("merge(%v, %v) != merge(%v, %v)", pa, pb, pb, pa)
			}
		}
	}
}

func TestParityAveraging_MatchesPlain(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	plain := Averaging{}.Bind(0)

	for frame := uint64(0); frame < 4; frame++ {
		merge := ParityAveraging{}.Bind(frame)
		for range 10000 {
			cur, prev := randomPixel(r), randomPixel(r)
			if got, want := merge(cur, prev), plain(cur, prev); got != want {
				t.Fatalf("frame %d: parity merge(%v, %v) = %v, plain = %v", frame, cur, prev, got, want)
			}
		}
	}
}

func TestParityAveraging_Roles(t *testing.T) {
	cur := Pixel{Y: 200, U: 1, V: 2, A: 255}
	prev := Pixel{Y: 20, U: 3, V: 4, A: 255}

	var dark, bright Pixel
	s := ParityAveraging{Op: func(d, b Pixel) Pixel {
		dark, bright = d, b
		return d
	}}

	tests := []struct {
		frame      uint64
		wantDark   Pixel
		wantBright Pixel
	}{
		{0, cur, prev},
		{1, prev, cur},
		{2, cur, prev},
		{7, prev, cur},
	}
	for _, tt := range tests {
		s.Bind(tt.frame)(cur, prev)
		if dark != tt.wantDark || bright != tt.wantBright {
			t.Errorf("frame %d: (dark, bright) = (%v, %v), want (%v, %v)",
				tt.frame, dark, bright, tt.wantDark, tt.wantBright)
		}
	}
}

func TestPreviousIsDark(t *testing.T) {
	for frame := uint64(0); frame < 6; frame++ {
		if got, want := PreviousIsDark(frame), frame%2 == 1; got != want {
			t.Errorf("PreviousIsDark(%d) = %v, want %v", frame, got, want)
		}
	}
}

func TestWeighted_EqualLumaMatchesPlain(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	w := Weighted{Table: GaussianWeights(1024, 48)}

	for range 20000 {
		cur, prev := randomPixel(r), randomPixel(r)
		prev.Y = cur.Y
		if got, want := w.Merge(cur, prev), Mean(cur, prev); got != want {
			t.Fatalf("Merge(%v, %v) = %v, want plain mean %v", cur, prev, got, want)
		}
	}
}

func TestWeighted_ZeroSumFallsBack(t *testing.T) {
	var table WeightTable
	table[10] = 5
	table[20] = -5

	tests := []struct {
		name      string
		cur, prev Pixel
	}{
		{"both zero weight", Pixel{0, 17, 99, 255}, Pixel{0, 230, 3, 255}},
		{"opposing weights", Pixel{10, 40, 41, 255}, Pixel{20, 200, 201, 255}},
	}
	w := Weighted{Table: &table}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, want := w.Merge(tt.cur, tt.prev), Mean(tt.cur, tt.prev); got != want {
				t.Errorf("Merge = %v, want fallback %v", got, want)
			}
		})
	}
}

func TestWeighted_Blend(t *testing.T) {
	var table WeightTable
	table[200] = 3
	table[40] = 1
	table[10] = -1
	table[210] = 2

	tests := []struct {
		name      string
		cur, prev Pixel
		want      Pixel
	}{
		{"3:1 toward current", Pixel{200, 100, 50, 255}, Pixel{40, 200, 250, 255}, Pixel{160, 125, 100, 255}},
		{"1:3 toward previous", Pixel{40, 200, 250, 255}, Pixel{200, 100, 50, 255}, Pixel{160, 125, 100, 255}},
		{"negative weight clamps", Pixel{210, 0, 0, 255}, Pixel{10, 255, 255, 255}, Pixel{255, 0, 0, 255}},
		{"one side zero weight", Pixel{200, 9, 8, 255}, Pixel{0, 250, 250, 255}, Pixel{200, 9, 8, 255}},
	}
	w := Weighted{Table: &table}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Merge(tt.cur, tt.prev); got != tt.want {
				t.Errorf("Merge(%v, %v) = %v, want %v", tt.cur, tt.prev, got, tt.want)
			}
		})
	}
}

func TestWeighted_EqualWeightsDifferentLuma(t *testing.T) {
	// Luma 100 and 156 sit symmetrically around the peak and share a
	// weight; the formula gives the exact mean, not Mean's floored halves.
	table := GaussianWeights(1024, 48)
	if table[100] != table[156] {
		t.Fatalf("table not symmetric: %d vs %d", table[100], table[156])
	}
	w := Weighted{Table: table}

	got := w.Merge(Pixel{156, 3, 7, 255}, Pixel{100, 5, 9, 255})
	want := Pixel{128, 4, 8, 255}
	if got != want {
		t.Errorf("Merge = %v, want %v", got, want)
	}
	if mean := Mean(Pixel{156, 3, 7, 255}, Pixel{100, 5, 9, 255}); mean == want {
		t.Fatalf("test pair does not separate the formula from Mean: %v", mean)
	}
}

func TestValidateStrategy(t *testing.T) {
	table := GaussianWeights(100, 40)

	tests := []struct {
		name     string
		strategy Strategy
		wantErr  error
	}{
		{"plain", Averaging{}, nil},
		{"plain pointer", &Averaging{}, nil},
		{"parity pointer", &ParityAveraging{}, nil},
		{"weighted", Weighted{Table: table}, nil},
		{"weighted pointer", &Weighted{Table: table}, nil},
		{"weighted without table", Weighted{}, ErrMissingWeightTable},
		{"weighted pointer without table", &Weighted{}, ErrMissingWeightTable},
		{"nil weighted pointer", (*Weighted)(nil), ErrMissingWeightTable},
		{"nil parity pointer", (*ParityAveraging)(nil), ErrUnknownStrategy},
		{"nil averaging pointer", (*Averaging)(nil), ErrUnknownStrategy},
		{"nil", nil, ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStrategy(tt.strategy)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateStrategy = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateStrategy = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWeighted_LargeWeightsNoOverflow(t *testing.T) {
	var table WeightTable
	for i := range table {
		table[i] = 1<<31 - 1
	}
	table[0] = 1
	w := Weighted{Table: &table}

	got := w.Merge(Pixel{255, 255, 255, 255}, Pixel{0, 0, 0, 255})
	if got.Y != 254 || got.U != 254 || got.V != 254 {
		t.Errorf("Merge with max weights = %v, want ~(254,254,254)", got)
	}
}

func TestNewStrategy(t *testing.T) {
	table := GaussianWeights(100, 40)

	tests := []struct {
		name    string
		kind    StrategyKind
		table   *WeightTable
		want    StrategyKind
		wantErr error
	}{
		{"plain", StrategyPlain, nil, StrategyPlain, nil},
		{"parity", StrategyParity, nil, StrategyParity, nil},
		{"weighted", StrategyWeighted, table, StrategyWeighted, nil},
		{"weighted without table", StrategyWeighted, nil, 0, ErrMissingWeightTable},
		{"unknown", StrategyKind(9), nil, 0, ErrUnknownStrategy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStrategy(tt.kind, tt.table)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewStrategy error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStrategy: %v", err)
			}
			if s.Kind() != tt.want {
				t.Errorf("Kind() = %v, want %v", s.Kind(), tt.want)
			}
		})
	}
}

func TestParseStrategyKind(t *testing.T) {
	for _, k := range []StrategyKind{StrategyPlain, StrategyParity, StrategyWeighted} {
		got, err := ParseStrategyKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseStrategyKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if got, err := ParseStrategyKind("WEIGHTED"); err != nil || got != StrategyWeighted {
		t.Errorf("ParseStrategyKind is not case-insensitive: %v, %v", got, err)
	}
	if _, err := ParseStrategyKind("median"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategyKind(median) error = %v, want ErrUnknownStrategy", err)
	}
	if got := StrategyKind(7).String(); got != "StrategyKind(7)" {
		t.Errorf("String() = %q", got)
	}
}

func BenchmarkWeighted_Merge(b *testing.B) {
	merge := Weighted{Table: GaussianWeights(1024, 48)}.Bind(0)
	cur := Pixel{Y: 200, U: 100, V: 50, A: 255}
	prev := Pixel{Y: 40, U: 200, V: 250, A: 255}
	var sink Pixel
	for b.Loop() {
		sink = merge(cur, prev)
		cur.Y++
	}
	_ = sink
}
