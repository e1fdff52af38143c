// Package sphere implements the hierarchical pixelization of the unit
// sphere that every other package in this module is keyed against. It is a
// thin, deliberately narrow wrapper around github.com/golang/geo/s2's
// quadrilateralized cube-face tiling: callers never see an s2.CellID, only
// the Key type defined here, so the rest of the module can talk about
// "pixels" and "levels" without depending on S2 vocabulary directly.
package sphere

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/pkg/errors"
)

// MaxLevel is the finest level this package will ever produce or accept.
// It matches s2.MaxLevel; pixels at this level have an edge length on the
// order of a centimeter on the Earth's surface.
const MaxLevel = s2.MaxLevel

// NoLevel is the sentinel level returned by LevelForAngle when no level
// in [0, MaxLevel] resolves the requested angular scale; callers treat
// this as "use the pair estimator, not the pixel estimator."
const NoLevel = -1

// Key is an opaque 64-bit hierarchical pixel identifier. The zero Key is
// not a valid pixel.
type Key uint64

// Region is any shape that can be covered by a set of Keys: a spherical
// cap, a loop, a polygon, or a union of any of those. It is a direct
// alias of s2.Region so analytic shapes constructed with the s2 package
// can be passed to Covering without an adapter.
type Region = s2.Region

func (k Key) cellID() s2.CellID { return s2.CellID(k) }

func keyOfCellID(id s2.CellID) Key { return Key(id) }

// KeyOf returns the Key of the leaf pixel (at MaxLevel) containing the
// given direction, then promotes it to the requested level. Two calls
// with an equal direction and level always return an equal Key.
func KeyOf(direction r3.Vector, level int) (Key, error) {
	if level < 0 || level > MaxLevel {
		return 0, errors.Errorf("invalid pixelization level %d", level)
	}
	if direction == (r3.Vector{}) {
		return 0, errors.New("invalid zero direction vector")
	}
	for _, c := range [3]float64{direction.X, direction.Y, direction.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return 0, errors.New("invalid non-finite direction vector")
		}
	}
	leaf := s2.CellIDFromPoint(s2.Point{Vector: direction.Normalize()})
	return keyOfCellID(leaf.Parent(level)), nil
}

// Level returns the depth of k in the pixelization hierarchy.
func Level(k Key) int {
	return k.cellID().Level()
}

// Parent returns the ancestor of k at the given level, which must not be
// finer than k's own level.
func Parent(k Key, level int) (Key, error) {
	if level < 0 || level > Level(k) {
		return 0, errors.Errorf("level %d is not an ancestor level of key at level %d", level, Level(k))
	}
	return keyOfCellID(k.cellID().Parent(level)), nil
}

// Children returns the four immediate children of k. k must not already
// be at MaxLevel.
func Children(k Key) ([4]Key, error) {
	var out [4]Key
	if Level(k) >= MaxLevel {
		return out, errors.New("key is already at the finest level")
	}
	for i, c := range k.cellID().Children() {
		out[i] = keyOfCellID(c)
	}
	return out, nil
}

// AverageArea returns the mean area, in steradians, of a pixel at the
// given level. Every level step quarters this value.
func AverageArea(level int) float64 {
	return s2.AvgAreaMetric.Value(level)
}

// Center returns the unit vector at the center of k.
func Center(k Key) r3.Vector {
	return s2.CellFromCellID(k.cellID()).Center().Vector
}

// Cap returns a spherical disk, given as an axis and an angular radius in
// radians, that tightly bounds k.
func Cap(k Key) (axis r3.Vector, radiusRadians float64) {
	cap := s2.CellFromCellID(k.cellID()).CapBound()
	return cap.Center().Vector, float64(cap.Radius())
}

// Contains reports whether the pixel k contains the given direction.
func Contains(k Key, direction r3.Vector) bool {
	return s2.CellFromCellID(k.cellID()).ContainsPoint(s2.Point{Vector: direction.Normalize()})
}

// MayIntersect conservatively reports whether the pixels a and b could
// overlap, using their bounding caps. It never returns false for a pair
// that actually intersects, but may return true for a pair that, on
// closer inspection (e.g. via Contains on a shared point), does not.
func MayIntersect(a, b Key) bool {
	capA := s2.CellFromCellID(a.cellID()).CapBound()
	capB := s2.CellFromCellID(b.cellID()).CapBound()
	return capA.Intersects(capB)
}

// Neighbors returns the up-to-eight pixels adjacent to k at k's own
// level, including diagonal neighbors.
func Neighbors(k Key) []Key {
	ids := k.cellID().AllNeighbors(Level(k))
	out := make([]Key, len(ids))
	for i, id := range ids {
		out[i] = keyOfCellID(id)
	}
	return out
}

// Covering returns a set of disjoint Keys, each at a level no finer than
// maxLevel, whose union covers region. Refinement stops once maxPixels
// keys would be required, trading exactness for a bounded result size.
func Covering(region Region, maxLevel, maxPixels int) []Key {
	coverer := &s2.RegionCoverer{MaxLevel: maxLevel, MaxCells: maxPixels}
	union := coverer.Covering(region)
	out := make([]Key, len(union))
	for i, id := range union {
		out[i] = keyOfCellID(id)
	}
	return out
}

// CapRegion builds an s2.Cap (usable as a Region) centered on axis with
// the given angular radius in radians, for use with Covering.
func CapRegion(axis r3.Vector, radiusRadians float64) Region {
	return s2.CapFromCenterAngle(s2.Point{Vector: axis.Normalize()}, s1.Angle(radiusRadians))
}

// LevelForAngle returns the largest level at which the typical pixel
// scale sqrt(2*AverageArea(level)) is still at least thetaMinRadians. It
// returns NoLevel if even the coarsest level (0) is already finer than
// thetaMinRadians, meaning no pixelization resolves the requested scale
// and a pair-counting estimator should be used instead.
func LevelForAngle(thetaMinRadians float64) int {
	level := NoLevel
	for l := 0; l <= MaxLevel; l++ {
		scale := math.Sqrt(2 * AverageArea(l))
		if scale < thetaMinRadians {
			break
		}
		level = l
	}
	return level
}

// AngleBetween returns the central angle, in radians, between two unit
// directions.
func AngleBetween(a, b r3.Vector) float64 {
	return float64(s2.Point{Vector: a}.Distance(s2.Point{Vector: b}))
}

// RangeMin and RangeMax give the smallest and largest leaf-level (level
// MaxLevel) descendant of k, in Hilbert-curve order. Two keys are
// disjoint (neither an ancestor of the other) iff their [RangeMin,
// RangeMax] intervals do not overlap; a leaf key's interval is a single
// point. Callers use these to binary search a sorted list of keys, which
// is how pixelset.Bound implements ancestor-aware containment without a
// tree structure.
func RangeMin(k Key) uint64 {
	return uint64(k.cellID().RangeMin())
}

// RangeMax is the counterpart to RangeMin; see its documentation.
func RangeMax(k Key) uint64 {
	return uint64(k.cellID().RangeMax())
}

// Raw exposes a Key's underlying 64-bit representation, for callers (such
// as catalogio) that need a stable wire encoding of a pixel. It carries no
// meaning on its own beyond being the value FromRaw reverses.
func Raw(k Key) uint64 {
	return uint64(k)
}

// FromRaw reconstructs a Key from the value a prior call to Raw returned.
// It performs no validation: the caller is asserting the value originated
// from Raw.
func FromRaw(v uint64) Key {
	return Key(v)
}
