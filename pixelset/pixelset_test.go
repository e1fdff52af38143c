package pixelset

import (
	"math/rand/v2"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ajmendez/stomp/sphere"
)

func capBound(t *testing.T, axis r3.Vector, radius float64, level int) *Bound {
	t.Helper()
	region := sphere.CapRegion(axis, radius)
	b, err := FromShape(region, level, 4096)
	test.That(t, err, test.ShouldBeNil)
	return b
}

func TestContainsMatchesMembership(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	b := capBound(t, axis, 0.2, 9)

	test.That(t, b.Contains(axis), test.ShouldBeTrue)

	antipode := r3.Vector{X: 0, Y: 0, Z: -1}
	test.That(t, b.Contains(antipode), test.ShouldBeFalse)
}

func TestAreaConservationAcrossCoveringLevels(t *testing.T) {
	axis := r3.Vector{X: 1, Y: 0, Z: 0}
	b := capBound(t, axis, 0.3, 11)

	fine := b.Area()
	coarse := 0.0
	for _, k := range b.Covering(6) {
		coarse += sphere.AverageArea(sphere.Level(k))
	}
	// Coarsening can only grow the covered area (it over-covers), never shrink it.
	test.That(t, coarse >= fine*0.99, test.ShouldBeTrue)
}

func TestSizeCoveringRespectsBudget(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 1, Z: 0}
	b := capBound(t, axis, 0.5, 14)

	covering := b.SizeCovering(32)
	test.That(t, len(covering) <= 32, test.ShouldBeTrue)
}

func TestFromLeavesRejectsOverlap(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	parent, err := sphere.KeyOf(axis, 5)
	test.That(t, err, test.ShouldBeNil)
	children, err := sphere.Children(parent)
	test.That(t, err, test.ShouldBeNil)

	_, err = FromLeaves([]sphere.Key{parent, children[0]}, []float64{1, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFromLeavesRejectsBadWeight(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	k, err := sphere.KeyOf(axis, 5)
	test.That(t, err, test.ShouldBeNil)

	_, err = FromLeaves([]sphere.Key{k}, []float64{1.5})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSampleStaysWithinBound(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	b := capBound(t, axis, 0.3, 10)
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 200; i++ {
		p, err := b.Sample(rng)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.Contains(p), test.ShouldBeTrue)
	}
}

func TestSampleRejectsEmptyBound(t *testing.T) {
	b := &Bound{}
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := b.Sample(rng)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCenterIsWithinBound(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	b := capBound(t, axis, 0.1, 12)
	center := b.Center()
	test.That(t, sphere.AngleBetween(center, axis) < 0.2, test.ShouldBeTrue)
}

func TestUnmaskedFractionOfStoredPixelIsItsWeight(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	k, err := sphere.KeyOf(axis, 8)
	test.That(t, err, test.ShouldBeNil)
	b, err := FromLeaves([]sphere.Key{k}, []float64{0.4})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.UnmaskedFraction(k), test.ShouldEqual, 0.4)
}

func TestUnmaskedFractionOfAncestorAggregatesChildren(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	parent, err := sphere.KeyOf(axis, 5)
	test.That(t, err, test.ShouldBeNil)
	children, err := sphere.Children(parent)
	test.That(t, err, test.ShouldBeNil)

	// Three fully-covered children and one fully-masked child should
	// average to 0.75 over the parent pixel.
	weights := []float64{1, 1, 1, 0}
	b, err := FromLeaves(children, weights)
	test.That(t, err, test.ShouldBeNil)

	frac := b.UnmaskedFraction(parent)
	test.That(t, frac > 0.74 && frac < 0.76, test.ShouldBeTrue)
}

func TestUnmaskedFractionOfDisjointPixelIsZero(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	k, err := sphere.KeyOf(axis, 8)
	test.That(t, err, test.ShouldBeNil)
	b, err := FromLeaves([]sphere.Key{k}, []float64{1})
	test.That(t, err, test.ShouldBeNil)

	antipode := r3.Vector{X: 0, Y: 0, Z: -1}
	other, err := sphere.KeyOf(antipode, 8)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, b.UnmaskedFraction(other), test.ShouldEqual, 0.0)
}
