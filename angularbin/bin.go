// Package angularbin implements angular bins and their accumulators
// (§4.6 of the design spec): the per-bin bookkeeping for weighted pair
// counts and pixel products, each carried both as a global total and as
// N leave-one-out per-region sums, plus the estimators (Landy-Szalay,
// pixel, jackknife mean/error/covariance) derived from them. Grounded on
// s2omp's angular_bin-inl.h, with the C++ class's dozen parallel member
// vectors replaced by the single Accumulators matrix below (Design Note
// "parallel vectors per bin -> 2D accumulator matrix").
package angularbin

import (
	"math"

	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/internal/approx"
	"github.com/ajmendez/stomp/sphere"
)

// Bin is one logarithmic angular separation range. CosThetaMin/CosThetaMax
// and Sin2ThetaMin/Sin2ThetaMax cache cos(theta) and sin^2(theta) at the
// bin's edges, so a hot dual-tree comparison can test membership against
// an already-computed cosine or sin^2 instead of calling math.Acos per
// candidate pair.
type Bin struct {
	ThetaMin    float64
	ThetaMax    float64
	ThetaCenter float64
	// Level is the pixelization level the pixel estimator should sample
	// at for this bin, or sphere.NoLevel if the bin is resolved by pair
	// counting only.
	Level int

	CosThetaMin  float64
	CosThetaMax  float64
	Sin2ThetaMin float64
	Sin2ThetaMax float64
}

// IsWithin reports whether theta falls within the bin, inclusive of its
// edges up to the module's standard floating-point tolerance.
func (b Bin) IsWithin(theta float64) bool {
	return approx.GE(theta, b.ThetaMin) && approx.LE(theta, b.ThetaMax)
}

// IsWithinCos is IsWithin expressed in terms of cos(theta) rather than
// theta itself. cos is strictly decreasing on [0,pi], so the bin's cosine
// edges invert: the smallest theta has the largest cosine.
func (b Bin) IsWithinCos(cosTheta float64) bool {
	return approx.LE(cosTheta, b.CosThetaMin) && approx.GE(cosTheta, b.CosThetaMax)
}

// IsWithinSin2 is IsWithin expressed in terms of sin^2(theta) rather than
// theta itself, for callers (e.g. a small-angle dual-tree pruning step)
// that already have sin^2(theta) on hand and want to avoid an
// math.Asin/Acos call.
func (b Bin) IsWithinSin2(sin2Theta float64) bool {
	return approx.GE(sin2Theta, b.Sin2ThetaMin) && approx.LE(sin2Theta, b.Sin2ThetaMax)
}

// BuildLogBins constructs bins covering [thetaMin, thetaMax] radians,
// logarithmically spaced at binsPerDecade bins per decade of theta, and
// assigns each a pixelization level via sphere.LevelForAngle(center).
func BuildLogBins(thetaMin, thetaMax float64, binsPerDecade int) ([]Bin, error) {
	if thetaMin <= 0 || thetaMax <= thetaMin {
		return nil, errors.Errorf("invalid angular range [%g, %g]", thetaMin, thetaMax)
	}
	if binsPerDecade <= 0 {
		return nil, errors.Errorf("invalid bins-per-decade %d", binsPerDecade)
	}
	decades := math.Log10(thetaMax / thetaMin)
	nBins := int(math.Ceil(decades * float64(binsPerDecade)))
	if nBins < 1 {
		nBins = 1
	}
	step := decades / float64(nBins)

	bins := make([]Bin, nBins)
	for i := 0; i < nBins; i++ {
		lo := thetaMin * math.Pow(10, step*float64(i))
		hi := thetaMin * math.Pow(10, step*float64(i+1))
		sinLo, sinHi := math.Sin(lo), math.Sin(hi)
		bins[i] = Bin{
			ThetaMin:     lo,
			ThetaMax:     hi,
			ThetaCenter:  math.Sqrt(lo * hi),
			CosThetaMin:  math.Cos(lo),
			CosThetaMax:  math.Cos(hi),
			Sin2ThetaMin: sinLo * sinLo,
			Sin2ThetaMax: sinHi * sinHi,
		}
		bins[i].Level = sphere.LevelForAngle(bins[i].ThetaCenter)
	}
	return bins, nil
}
