// Package stats implements the estimators behind the decision agents:
// kernel density scoring for duplicate clusters, Beta-mean reliability
// scoring, and the blended tolerance threshold for price variances.
package stats

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoSamples is returned by estimators that need at least one observation.
var ErrNoSamples = errors.New("no samples")

// Scaler standardizes feature vectors to zero mean and unit variance per
// dimension. Dimensions with zero variance pass through centered only.
type Scaler struct {
	mean []float64
	std  []float64
}

// FitScaler computes per-dimension mean and population standard deviation.
func FitScaler(samples [][]float64) (*Scaler, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	dims := len(samples[0])
	col := make([]float64, len(samples))
	s := &Scaler{
		mean: make([]float64, dims),
		std:  make([]float64, dims),
	}
	for d := 0; d < dims; d++ {
		for i, row := range samples {
			col[i] = row[d]
		}
		s.mean[d] = stat.Mean(col, nil)
		s.std[d] = stat.PopStdDev(col, nil)
		if s.std[d] == 0 {
			s.std[d] = 1
		}
	}
	return s, nil
}

// Transform standardizes x in place-safe fashion and returns the result.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for d := range x {
		out[d] = (x[d] - s.mean[d]) / s.std[d]
	}
	return out
}

// TransformAll standardizes every sample.
func (s *Scaler) TransformAll(samples [][]float64) [][]float64 {
	out := make([][]float64, len(samples))
	for i, row := range samples {
		out[i] = s.Transform(row)
	}
	return out
}

// KDE is a Gaussian kernel density estimator with an isotropic bandwidth.
type KDE struct {
	samples   [][]float64
	bandwidth float64
	dims      int
}

// FitKDE builds an estimator over the given samples.
func FitKDE(samples [][]float64, bandwidth float64) (*KDE, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	if bandwidth <= 0 {
		return nil, errors.New("bandwidth must be positive")
	}
	return &KDE{samples: samples, bandwidth: bandwidth, dims: len(samples[0])}, nil
}

// LogDensity returns the log of the estimated density at x. Computed via
// log-sum-exp so sparse regions yield large negative values instead of -Inf
// surprises from underflow.
func (k *KDE) LogDensity(x []float64) float64 {
	h2 := k.bandwidth * k.bandwidth
	// Log normalizer of a d-dim isotropic Gaussian kernel.
	logNorm := -0.5 * float64(k.dims) * math.Log(2*math.Pi*h2)

	logs := make([]float64, len(k.samples))
	for i, s := range k.samples {
		var dist2 float64
		for d := range x {
			diff := x[d] - s[d]
			dist2 += diff * diff
		}
		logs[i] = logNorm - dist2/(2*h2)
	}
	return floats.LogSumExp(logs) - math.Log(float64(len(k.samples)))
}

// BetaMean returns the posterior mean of a Beta(successes+1, failures+1)
// distribution, the smoothed success rate over total trials.
func BetaMean(successes, total int) float64 {
	if successes < 0 {
		successes = 0
	}
	if total < successes {
		total = successes
	}
	failures := total - successes
	alpha := float64(successes) + 1
	beta := float64(failures) + 1
	return alpha / (alpha + beta)
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. The input is not modified.
func Percentile(values []float64, p float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoSamples
	}
	if p < 0 || p > 100 {
		return 0, errors.New("percentile must be in [0, 100]")
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := (float64(len(sorted)) - 1) * p / 100
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo], nil
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo]), nil
}

// BlendThreshold combines a prior tolerance with the p-th percentile of
// observed deviations. The prior's weight decays as evidence accumulates:
// priorStrength/(n+priorStrength) on the prior, n/(n+priorStrength) on the
// observed percentile. With no observations the prior is returned unchanged.
func BlendThreshold(prior, priorStrength float64, observed []float64, p float64) float64 {
	n := float64(len(observed))
	if n == 0 {
		return prior
	}
	pct, err := Percentile(observed, p)
	if err != nil {
		return prior
	}
	wPrior := priorStrength / (n + priorStrength)
	wData := n / (n + priorStrength)
	return wPrior*prior + wData*pct
}
