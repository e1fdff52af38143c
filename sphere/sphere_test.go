package sphere

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestKeyOfDeterministic(t *testing.T) {
	v := r3.Vector{X: 1, Y: 2, Z: 3}
	a, err := KeyOf(v, 12)
	test.That(t, err, test.ShouldBeNil)
	b, err := KeyOf(v, 12)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a, test.ShouldEqual, b)
	test.That(t, Level(a), test.ShouldEqual, 12)
}

func TestKeyOfRejectsBadInput(t *testing.T) {
	_, err := KeyOf(r3.Vector{}, 10)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = KeyOf(r3.Vector{X: 1}, -1)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = KeyOf(r3.Vector{X: 1}, MaxLevel+1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParentChildRoundTrip(t *testing.T) {
	v := r3.Vector{X: -1, Y: 4, Z: 0.2}
	leaf, err := KeyOf(v, 20)
	test.That(t, err, test.ShouldBeNil)

	parent, err := Parent(leaf, 15)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, Level(parent), test.ShouldEqual, 15)

	children, err := Children(parent)
	test.That(t, err, test.ShouldBeNil)

	var found bool
	for _, c := range children {
		if Level(c) != 16 {
			t.Fatalf("child at wrong level: %d", Level(c))
		}
		if Contains(c, v) {
			found = true
		}
	}
	test.That(t, found, test.ShouldBeTrue)
}

func TestAverageAreaQuartersPerLevel(t *testing.T) {
	for l := 0; l < 10; l++ {
		ratio := AverageArea(l) / AverageArea(l+1)
		test.That(t, math.Abs(ratio-4) < 1e-9, test.ShouldBeTrue)
	}
}

func TestContainsCenter(t *testing.T) {
	v := r3.Vector{X: 0.3, Y: 0.1, Z: 0.9}
	k, err := KeyOf(v, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, Contains(k, Center(k)), test.ShouldBeTrue)
}

func TestNeighborsAreAdjacent(t *testing.T) {
	v := r3.Vector{X: 1, Y: 0, Z: 0}
	k, err := KeyOf(v, 8)
	test.That(t, err, test.ShouldBeNil)
	neighbors := Neighbors(k)
	test.That(t, len(neighbors), test.ShouldBeBetweenOrEqual, 3, 8)
	for _, n := range neighbors {
		test.That(t, MayIntersect(k, n), test.ShouldBeTrue)
	}
}

func TestCoveringCoversCenter(t *testing.T) {
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	region := CapRegion(axis, 0.1)
	keys := Covering(region, 10, 64)
	test.That(t, len(keys), test.ShouldBeGreaterThan, 0)

	var contained bool
	for _, k := range keys {
		if Contains(k, axis) {
			contained = true
		}
		test.That(t, Level(k), test.ShouldBeLessThanOrEqualTo, 10)
	}
	test.That(t, contained, test.ShouldBeTrue)
}

func TestLevelForAngleMonotone(t *testing.T) {
	coarse := LevelForAngle(1.0)
	fine := LevelForAngle(0.0001)
	test.That(t, fine, test.ShouldBeGreaterThan, coarse)
}

func TestLevelForAngleNoLevel(t *testing.T) {
	// No pixelization level resolves an angle coarser than even a level-0
	// face's own scale.
	level := LevelForAngle(1e9)
	test.That(t, level, test.ShouldEqual, NoLevel)
}

func TestAngleBetween(t *testing.T) {
	a := r3.Vector{X: 1, Y: 0, Z: 0}
	b := r3.Vector{X: 0, Y: 1, Z: 0}
	theta := AngleBetween(a, b)
	test.That(t, math.Abs(theta-math.Pi/2) < 1e-9, test.ShouldBeTrue)
}

func TestRawRoundTrip(t *testing.T) {
	v := r3.Vector{X: 1, Y: -2, Z: 3}
	k, err := KeyOf(v, 14)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, FromRaw(Raw(k)), test.ShouldEqual, k)
}
