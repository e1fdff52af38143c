package catalogio

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/ajmendez/stomp/correlate"
	"github.com/ajmendez/stomp/sphere"
)

func TestFootprintRoundTrip(t *testing.T) {
	k, err := sphere.KeyOf(sphereUp(), 6)
	test.That(t, err, test.ShouldBeNil)
	records := []FootprintRecord{{Key: k, Weight: 0.75}}

	var buf bytes.Buffer
	test.That(t, WriteFootprint(&buf, records), test.ShouldBeNil)

	parsed, err := ReadFootprint(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(parsed), test.ShouldEqual, 1)
	test.That(t, parsed[0].Key, test.ShouldEqual, k)
	test.That(t, parsed[0].Weight, test.ShouldEqual, 0.75)
}

func TestReadFootprintSkipsCommentsAndBlankLines(t *testing.T) {
	input := "# comment\n\n123 0.5\n"
	records, err := ReadFootprint(strings.NewReader(input))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(records), test.ShouldEqual, 1)
}

func TestReadFootprintRejectsBadLine(t *testing.T) {
	_, err := ReadFootprint(strings.NewReader("123\n"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReadCatalogConvertsDegreesToDirection(t *testing.T) {
	spec := DefaultColumnSpec()
	entries, err := ReadCatalog(strings.NewReader("0 0 1 18.0\n"), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(entries), test.ShouldEqual, 1)
	test.That(t, math.Abs(entries[0].Direction.X-1) < 1e-9, test.ShouldBeTrue)
	test.That(t, entries[0].Weight, test.ShouldEqual, 1.0)
	test.That(t, entries[0].Magnitude, test.ShouldEqual, 18.0)
}

func TestReadCatalogDefaultsWeightWithoutProbabilityColumn(t *testing.T) {
	spec := ColumnSpec{Lon: 0, Lat: 1, Probability: -1, Magnitude: -1}
	entries, err := ReadCatalog(strings.NewReader("0.1 0.2\n"), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, entries[0].Weight, test.ShouldEqual, 1.0)
	test.That(t, math.IsNaN(entries[0].Magnitude), test.ShouldBeTrue)
}

func TestReadCatalogRejectsShortLine(t *testing.T) {
	spec := DefaultColumnSpec()
	_, err := ReadCatalog(strings.NewReader("1 2\n"), spec)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFootprintToBoundBuildsUsableBound(t *testing.T) {
	k, err := sphere.KeyOf(sphereUp(), 5)
	test.That(t, err, test.ShouldBeNil)
	bound, err := FootprintToBound([]FootprintRecord{{Key: k, Weight: 1}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bound.Contains(sphereUp()), test.ShouldBeTrue)
}

func TestWriteWThetaTableHandlesNaN(t *testing.T) {
	result := &correlate.Result{Bins: []correlate.BinResult{{ThetaCenter: 0.01, W: math.NaN(), WError: 0}}}
	var buf bytes.Buffer
	test.That(t, WriteWThetaTable(&buf, result), test.ShouldBeNil)
	test.That(t, strings.Contains(buf.String(), "theta_deg"), test.ShouldBeTrue)
}

func TestWriteCovarianceTableHandlesNilCovariance(t *testing.T) {
	result := &correlate.Result{Bins: []correlate.BinResult{{ThetaCenter: 0.01}}}
	var buf bytes.Buffer
	test.That(t, WriteCovarianceTable(&buf, result), test.ShouldBeNil)
}

func sphereUp() r3.Vector {
	return r3.Vector{X: 0, Y: 0, Z: 1}
}
