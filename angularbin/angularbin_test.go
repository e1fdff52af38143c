package angularbin

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestBuildLogBinsCoversRange(t *testing.T) {
	bins, err := BuildLogBins(0.001, 1.0, 5)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(bins) > 0, test.ShouldBeTrue)
	test.That(t, math.Abs(bins[0].ThetaMin-0.001) < 1e-12, test.ShouldBeTrue)
	test.That(t, math.Abs(bins[len(bins)-1].ThetaMax-1.0) < 1e-9, test.ShouldBeTrue)
	for i := 1; i < len(bins); i++ {
		test.That(t, math.Abs(bins[i].ThetaMin-bins[i-1].ThetaMax) < 1e-9, test.ShouldBeTrue)
	}
}

func TestBuildLogBinsRejectsBadRange(t *testing.T) {
	_, err := BuildLogBins(1.0, 0.5, 5)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = BuildLogBins(0.1, 1.0, 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestAddDepositsToLeaveOneOut(t *testing.T) {
	acc := NewAccumulators(2, 4)
	acc.Add(GG, 0, 1, 2, 10)

	test.That(t, acc.pairTotal[GG][0], test.ShouldEqual, 10.0)
	for k := 0; k < 4; k++ {
		if k == 1 || k == 2 {
			test.That(t, acc.pairLOO[GG][0][k], test.ShouldEqual, 0.0)
		} else {
			test.That(t, acc.pairLOO[GG][0][k], test.ShouldEqual, 10.0)
		}
	}
}

func TestPairWThetaNaNOnZeroRR(t *testing.T) {
	acc := NewAccumulators(1, 0)
	acc.Add(GG, 0, -1, -1, 5)
	test.That(t, math.IsNaN(acc.PairWTheta(0)), test.ShouldBeTrue)
}

func TestPairWThetaLandySzalay(t *testing.T) {
	acc := NewAccumulators(1, 0)
	acc.Add(GG, 0, -1, -1, 120)
	acc.Add(GR, 0, -1, -1, 100)
	acc.Add(RG, 0, -1, -1, 100)
	acc.Add(RR, 0, -1, -1, 100)
	w := acc.PairWTheta(0)
	test.That(t, math.Abs(w-0.2) < 1e-12, test.ShouldBeTrue)
}

func TestJackknifeMeanErrorZeroVariance(t *testing.T) {
	values := []float64{0.1, 0.1, 0.1, 0.1}
	mean, stderr := JackknifeMeanError(values)
	test.That(t, math.Abs(mean-0.1) < 1e-12, test.ShouldBeTrue)
	test.That(t, stderr, test.ShouldEqual, 0.0)
}

func TestJackknifeMeanErrorKnownValues(t *testing.T) {
	values := []float64{0.0, 0.0, 0.0, 0.4}
	mean, stderr := JackknifeMeanError(values)
	test.That(t, math.Abs(mean-0.1) < 1e-12, test.ShouldBeTrue)
	// Sum((w_k-mean)^2) = 3*0.01 + 0.09 = 0.12; (N-1)/N*sum = 0.09; sqrt = 0.3.
	test.That(t, math.Abs(stderr-0.3) < 1e-9, test.ShouldBeTrue)
}

func TestJackknifeMeanErrorSingleRegion(t *testing.T) {
	mean, stderr := JackknifeMeanError([]float64{0.3})
	test.That(t, mean, test.ShouldEqual, 0.3)
	test.That(t, stderr, test.ShouldEqual, 0.0)
}

func TestIsWithinCosAgreesWithIsWithin(t *testing.T) {
	bins, err := BuildLogBins(0.001, 1.0, 5)
	test.That(t, err, test.ShouldBeNil)
	b := bins[len(bins)/2]

	test.That(t, b.IsWithin(b.ThetaCenter), test.ShouldBeTrue)
	test.That(t, b.IsWithinCos(math.Cos(b.ThetaCenter)), test.ShouldBeTrue)

	outside := b.ThetaMax * 10
	test.That(t, b.IsWithin(outside), test.ShouldBeFalse)
	test.That(t, b.IsWithinCos(math.Cos(outside)), test.ShouldBeFalse)
}

func TestIsWithinSin2AgreesWithIsWithin(t *testing.T) {
	bins, err := BuildLogBins(0.001, 1.0, 5)
	test.That(t, err, test.ShouldBeNil)
	b := bins[0]

	sinCenter := math.Sin(b.ThetaCenter)
	test.That(t, b.IsWithin(b.ThetaCenter), test.ShouldBeTrue)
	test.That(t, b.IsWithinSin2(sinCenter*sinCenter), test.ShouldBeTrue)

	outside := b.ThetaMin / 10
	sinOutside := math.Sin(outside)
	test.That(t, b.IsWithin(outside), test.ShouldBeFalse)
	test.That(t, b.IsWithinSin2(sinOutside*sinOutside), test.ShouldBeFalse)
}

func TestRescalePairCounts(t *testing.T) {
	acc := NewAccumulators(1, 2)
	acc.Add(RR, 0, -1, -1, 10)
	acc.RescalePairCounts(RR, 2)
	test.That(t, acc.pairTotal[RR][0], test.ShouldEqual, 5.0)
	test.That(t, acc.pairLOO[RR][0][0], test.ShouldEqual, 5.0)
}
