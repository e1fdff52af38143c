package region

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ajmendez/stomp/pixelset"
	"github.com/ajmendez/stomp/sphere"
)

func wholeSkyBound(t *testing.T) *pixelset.Bound {
	t.Helper()
	axis := r3.Vector{X: 0, Y: 0, Z: 1}
	b, err := pixelset.FromShape(sphere.CapRegion(axis, 3.2), 8, 1<<20)
	test.That(t, err, test.ShouldBeNil)
	return b
}

func TestRegionCountAndAreaConservation(t *testing.T) {
	bound := wholeSkyBound(t)
	m, err := New(bound, 8, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.NRegion(), test.ShouldEqual, 8)

	var sum float64
	for k := 0; k < m.NRegion(); k++ {
		area, err := m.RegionArea(k)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, area > 0, test.ShouldBeTrue)
		sum += area
	}
	test.That(t, math.Abs(sum-m.Area())/m.Area() < 1e-6, test.ShouldBeTrue)
}

func TestRegionOfIsWithinRange(t *testing.T) {
	bound := wholeSkyBound(t)
	m, err := New(bound, 6, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	r, err := m.RegionOf(r3.Vector{X: 0, Y: 0, Z: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, r >= 0 && r < m.NRegion(), test.ShouldBeTrue)
}

func TestRegionOfOutsideFootprint(t *testing.T) {
	// A cap around the north pole that stops well short of the south pole.
	bound, err := pixelset.FromShape(sphere.CapRegion(r3.Vector{X: 0, Y: 0, Z: 1}, 1.0), 8, 1<<20)
	test.That(t, err, test.ShouldBeNil)
	m, err := New(bound, 4, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	_, err = m.RegionOf(r3.Vector{X: 0, Y: 0, Z: -1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewRejectsEmptyFootprint(t *testing.T) {
	_, err := New(&pixelset.Bound{}, 4, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
