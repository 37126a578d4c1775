package stats

import (
	"math"
	"testing"
)

func TestFitScaler(t *testing.T) {
	samples := [][]float64{
		{1, 10, 5},
		{3, 20, 5},
		{5, 30, 5},
	}
	s, err := FitScaler(samples)
	if err != nil {
		t.Fatal(err)
	}

	got := s.Transform([]float64{3, 20, 5})
	for d, x := range got {
		if math.Abs(x) > 1e-9 {
			t.Errorf("dim %d: mean sample should standardize to 0, got %v", d, x)
		}
	}

	// Zero-variance dimension passes through centered.
	got = s.Transform([]float64{1, 10, 7})
	if math.Abs(got[2]-2) > 1e-9 {
		t.Errorf("zero-variance dim: got %v, want 2", got[2])
	}
}

func TestFitScalerEmpty(t *testing.T) {
	if _, err := FitScaler(nil); err != ErrNoSamples {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
}

func TestKDEDenseVsSparse(t *testing.T) {
	// Tight cluster of standardized fingerprints.
	samples := [][]float64{
		{0, 0, 0, 0, 0},
		{0.1, 0, -0.1, 0, 0.1},
		{-0.1, 0.1, 0, -0.1, 0},
		{0, -0.1, 0.1, 0.1, 0},
		{0.1, 0.1, 0, 0, -0.1},
	}
	k, err := FitKDE(samples, 0.5)
	if err != nil {
		t.Fatal(err)
	}

	dense := k.LogDensity([]float64{0, 0, 0, 0, 0})
	sparse := k.LogDensity([]float64{5, 5, 5, 5, 5})

	if dense <= -2.0 {
		t.Errorf("cluster center log-density %v, want > -2.0", dense)
	}
	if sparse >= -2.0 {
		t.Errorf("outlier log-density %v, want < -2.0", sparse)
	}
	if dense <= sparse {
		t.Errorf("dense %v should exceed sparse %v", dense, sparse)
	}
}

func TestKDEErrors(t *testing.T) {
	if _, err := FitKDE(nil, 0.5); err != ErrNoSamples {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
	if _, err := FitKDE([][]float64{{1}}, 0); err == nil {
		t.Error("expected error for zero bandwidth")
	}
}

func TestBetaMean(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		total     int
		want      float64
	}{
		{"no history", 0, 0, 0.5},
		{"perfect record", 10, 10, 11.0 / 12.0},
		{"mixed record", 8, 10, 9.0 / 12.0},
		{"all failures", 0, 10, 1.0 / 12.0},
		{"negative clamped", -3, 5, 1.0 / 7.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BetaMean(tt.successes, tt.total)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BetaMean(%d, %d) = %v, want %v",
					tt.successes, tt.total, got, tt.want)
			}
		})
	}
}

func TestBetaMeanMonotonic(t *testing.T) {
	prev := BetaMean(0, 10)
	for s := 1; s <= 10; s++ {
		cur := BetaMean(s, 10)
		if cur <= prev {
			t.Fatalf("BetaMean not increasing at successes=%d: %v <= %v", s, cur, prev)
		}
		prev = cur
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{0.12, 0.04, 0.08, 0.10, 0.06}

	got, err := Percentile(vals, 75)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.10) > 1e-9 {
		t.Errorf("p75 = %v, want 0.10", got)
	}

	got, _ = Percentile(vals, 0)
	if got != 0.04 {
		t.Errorf("p0 = %v, want 0.04", got)
	}
	got, _ = Percentile(vals, 100)
	if got != 0.12 {
		t.Errorf("p100 = %v, want 0.12", got)
	}

	// Interpolated rank.
	got, _ = Percentile([]float64{1, 2, 3, 4}, 50)
	if math.Abs(got-2.5) > 1e-9 {
		t.Errorf("p50 = %v, want 2.5", got)
	}

	if _, err := Percentile(nil, 50); err != ErrNoSamples {
		t.Errorf("expected ErrNoSamples, got %v", err)
	}
	if _, err := Percentile(vals, 101); err == nil {
		t.Error("expected error for out-of-range percentile")
	}
}

func TestBlendThreshold(t *testing.T) {
	// No evidence keeps the prior.
	if got := BlendThreshold(0.05, 5, nil, 75); got != 0.05 {
		t.Errorf("empty observations: got %v, want 0.05", got)
	}

	// Five observations split weight evenly at strength 5.
	observed := []float64{0.04, 0.06, 0.08, 0.10, 0.12}
	got := BlendThreshold(0.05, 5, observed, 75)
	want := 0.5*0.05 + 0.5*0.10
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("blend = %v, want %v", got, want)
	}

	// More evidence pulls the threshold toward the data.
	many := make([]float64, 50)
	for i := range many {
		many[i] = 0.10
	}
	got = BlendThreshold(0.05, 5, many, 75)
	if got <= want {
		t.Errorf("50 observations at 0.10 should exceed %v, got %v", want, got)
	}
	if got >= 0.10 {
		t.Errorf("blend should stay below pure data value, got %v", got)
	}
}
