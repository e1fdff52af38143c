// Package pixelset implements pixel-set bounds: ordered collections of
// disjoint hierarchical pixels, each carrying a weight describing the
// observed fraction of sky it represents. A Bound is the footprint half of
// this module's data model (§3/§4.2 of the design spec); field.Union
// embeds one rather than inheriting from it.
package pixelset

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/sphere"
)

// entry is one disjoint pixel in a Bound.
type entry struct {
	key    sphere.Key
	weight float64
}

// Bounds is the capability interface shared by every shape this module
// can reason about: a plain pixel-set Bound or a field.Union. Composition over inheritance (Design Note): concrete
// types embed or wrap a Bound instead of subclassing it.
type Bounds interface {
	Contains(direction r3.Vector) bool
	MayIntersect(other sphere.Key) bool
	Area() float64
	Covering(level int) []sphere.Key
	Center() r3.Vector
}

// Bound is an ordered, pairwise-disjoint set of weighted pixels. Once
// built it is read-only.
type Bound struct {
	entries []entry // sorted by the CellID range order, i.e. Hilbert-curve order
}

var _ Bounds = (*Bound)(nil)

// FromLeaves builds a Bound directly from a list of leaf pixels and their
// per-pixel weights. keys must be pairwise disjoint (no key may be an
// ancestor of another); weights must be in [0, 1] and have the same
// length as keys.
func FromLeaves(keys []sphere.Key, weights []float64) (*Bound, error) {
	if len(keys) != len(weights) {
		return nil, errors.Errorf("%d keys but %d weights", len(keys), len(weights))
	}
	entries := make([]entry, len(keys))
	for i, k := range keys {
		if weights[i] < 0 || weights[i] > 1 {
			return nil, errors.Errorf("weight %f for pixel %d out of [0,1]", weights[i], i)
		}
		entries[i] = entry{key: k, weight: weights[i]}
	}
	sort.Slice(entries, func(i, j int) bool { return rangeMin(entries[i].key) < rangeMin(entries[j].key) })
	if err := checkDisjoint(entries); err != nil {
		return nil, err
	}
	return &Bound{entries: entries}, nil
}

// FromShape builds a Bound by covering an analytic shape with pixels no
// finer than level (coarser pixels are used wherever they fit inside the
// shape), assigning every covering pixel a weight of 1. Use this for a
// footprint defined geometrically (e.g. a survey boundary polygon) rather
// than as a pre-tabulated pixel list.
func FromShape(shape sphere.Region, level, maxPixels int) (*Bound, error) {
	keys := sphere.Covering(shape, level, maxPixels)
	if len(keys) == 0 {
		return nil, errors.New("covering produced no pixels: shape may be empty or degenerate")
	}
	weights := make([]float64, len(keys))
	for i := range weights {
		weights[i] = 1
	}
	return FromLeaves(keys, weights)
}

func checkDisjoint(entries []entry) error {
	for i := 1; i < len(entries); i++ {
		if rangeMax(entries[i-1].key) >= rangeMin(entries[i].key) {
			return errors.Errorf("pixel %d overlaps or is an ancestor of pixel %d", i-1, i)
		}
	}
	return nil
}

// rangeMin/rangeMax give each key's position in the Hilbert-curve leaf
// order, via its level-30 descendant range; this is what makes a single
// sorted slice searchable by binary search for ancestor-aware containment,
// rather than needing a tree structure.
func rangeMin(k sphere.Key) uint64 {
	return sphere.RangeMin(k)
}

func rangeMax(k sphere.Key) uint64 {
	return sphere.RangeMax(k)
}

// Contains reports whether p falls in some pixel of the bound, by binary
// searching for the entry whose leaf range could contain p's own leaf
// position and checking actual pixel containment there.
func (b *Bound) Contains(p r3.Vector) bool {
	if len(b.entries) == 0 {
		return false
	}
	leaf, err := sphere.KeyOf(p, sphere.MaxLevel)
	if err != nil {
		return false
	}
	target := rangeMin(leaf)
	i := sort.Search(len(b.entries), func(i int) bool { return rangeMax(b.entries[i].key) >= target })
	if i == len(b.entries) {
		return false
	}
	return rangeMin(b.entries[i].key) <= target && target <= rangeMax(b.entries[i].key) && sphere.Contains(b.entries[i].key, p)
}

// MayIntersect conservatively reports whether other could overlap any
// pixel stored in the bound.
func (b *Bound) MayIntersect(other sphere.Key) bool {
	for _, e := range b.entries {
		if sphere.MayIntersect(e.key, other) {
			return true
		}
	}
	return false
}

// Area returns the total solid angle, in steradians, covered by the
// bound, i.e. sum of weight * average pixel area at each pixel's level.
func (b *Bound) Area() float64 {
	var total float64
	for _, e := range b.entries {
		total += e.weight * sphere.AverageArea(sphere.Level(e.key))
	}
	return total
}

// Covering returns the pixels of the bound coarsened (or left alone) so
// that none is finer than level; pixels finer than level are merged by
// returning their ancestor, and pixels already at or coarser than level
// are returned unchanged. It returns keys only; CoveringWeighted also
// returns weights.
func (b *Bound) Covering(level int) []sphere.Key {
	if len(b.entries) == 0 {
		return nil
	}
	seen := make(map[sphere.Key]struct{})
	var out []sphere.Key
	for _, e := range b.entries {
		k := e.key
		if sphere.Level(k) > level {
			var err error
			k, err = sphere.Parent(e.key, level)
			if err != nil {
				continue
			}
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// CoveringWeighted returns the bound's pixels at exactly level, with a
// weight for each. Stored pixels finer than level are merged into their
// ancestor at level, whose weight is the area-weighted mean of the
// weights of the stored pixels it subsumes; stored pixels coarser than
// level are split into their descendants at level, each carrying the
// stored pixel's weight. field.Union uses this to build a field at a
// chosen level without losing the footprint's per-pixel weighting.
func (b *Bound) CoveringWeighted(level int) (keys []sphere.Key, weights []float64) {
	type agg struct{ area, weightedArea float64 }
	aggs := make(map[sphere.Key]*agg)
	var order []sphere.Key
	for _, e := range b.entries {
		k := e.key
		if sphere.Level(k) > level {
			var err error
			k, err = sphere.Parent(e.key, level)
			if err != nil {
				continue
			}
		}
		area := sphere.AverageArea(sphere.Level(e.key))
		ks := []sphere.Key{k}
		for sphere.Level(ks[0]) < level && sphere.Level(ks[0]) < sphere.MaxLevel {
			var finer []sphere.Key
			for _, pk := range ks {
				children, _ := sphere.Children(pk)
				finer = append(finer, children[:]...)
			}
			ks = finer
			area = sphere.AverageArea(sphere.Level(ks[0]))
		}
		for _, k := range ks {
			a, ok := aggs[k]
			if !ok {
				a = &agg{}
				aggs[k] = a
				order = append(order, k)
			}
			a.area += area
			a.weightedArea += area * e.weight
		}
	}
	keys = make([]sphere.Key, len(order))
	weights = make([]float64, len(order))
	for i, k := range order {
		keys[i] = k
		a := aggs[k]
		if a.area > 0 {
			weights[i] = a.weightedArea / a.area
		}
	}
	return keys, weights
}

// UnmaskedFraction returns the fraction, in [0,1], of pixel's area that
// the bound actually covers. It descends into whichever stored pixels
// overlap pixel: a single stored ancestor (or an exact match) covers the
// whole query pixel at its own weight; one or more stored descendants
// each contribute their full area at their own weight, summed and
// normalized by pixel's area. Hierarchical pixels never partially
// overlap, so these are the only two relationships a disjoint, sorted
// Bound can produce.
func (b *Bound) UnmaskedFraction(pixel sphere.Key) float64 {
	pixelArea := sphere.AverageArea(sphere.Level(pixel))
	if pixelArea <= 0 || len(b.entries) == 0 {
		return 0
	}
	targetMin, targetMax := rangeMin(pixel), rangeMax(pixel)
	i := sort.Search(len(b.entries), func(i int) bool { return rangeMax(b.entries[i].key) >= targetMin })

	var coveredArea float64
	for ; i < len(b.entries); i++ {
		e := b.entries[i]
		eMin, eMax := rangeMin(e.key), rangeMax(e.key)
		if eMin > targetMax {
			break
		}
		if eMin <= targetMin && eMax >= targetMax {
			// e is an ancestor of pixel (or an exact match): the entire
			// query pixel lies within this single stored pixel.
			return e.weight
		}
		coveredArea += e.weight * sphere.AverageArea(sphere.Level(e.key))
	}
	return coveredArea / pixelArea
}

// SizeCovering returns a covering of at most maxPixels keys, coarsening
// uniformly until the pixel count fits.
func (b *Bound) SizeCovering(maxPixels int) []sphere.Key {
	level := b.maxStoredLevel()
	covering := b.Covering(level)
	for len(covering) > maxPixels && level > 0 {
		level--
		covering = b.Covering(level)
	}
	return covering
}

// AreaCovering returns a covering whose total area differs from the
// bound's true area by no more than a relative tolerance tol, coarsening
// from the finest stored level only as far as necessary.
func (b *Bound) AreaCovering(tol float64) []sphere.Key {
	trueArea := b.Area()
	level := b.maxStoredLevel()
	for level > 0 {
		covering := b.Covering(level)
		var area float64
		for _, k := range covering {
			area += sphere.AverageArea(sphere.Level(k))
		}
		if trueArea == 0 || math.Abs(area-trueArea)/trueArea <= tol {
			return covering
		}
		level--
	}
	return b.Covering(level)
}

// Center returns the weighted-mean direction of the bound's pixels,
// renormalized to a unit vector. It is a representative direction, not a
// guarantee of containment within the bound for highly irregular shapes.
func (b *Bound) Center() r3.Vector {
	var sum r3.Vector
	var totalWeight float64
	for _, e := range b.entries {
		w := e.weight * sphere.AverageArea(sphere.Level(e.key))
		sum = sum.Add(sphere.Center(e.key).Mul(w))
		totalWeight += w
	}
	if totalWeight == 0 {
		return r3.Vector{}
	}
	return sum.Normalize()
}

// Len returns the number of disjoint pixels stored in the bound.
func (b *Bound) Len() int {
	return len(b.entries)
}

// Pixels returns the bound's stored (key, weight) pairs in order. The
// returned slices must not be mutated.
func (b *Bound) Pixels() (keys []sphere.Key, weights []float64) {
	keys = make([]sphere.Key, len(b.entries))
	weights = make([]float64, len(b.entries))
	for i, e := range b.entries {
		keys[i] = e.key
		weights[i] = e.weight
	}
	return keys, weights
}

// Sample draws one direction uniformly at random from the bound, up to
// pixelization error: a pixel is chosen with probability proportional to
// weight*area, then a point is chosen uniformly within that pixel by
// rejection sampling against its bounding cap. rng must be supplied by
// the caller (never a package-level source) so results are reproducible
// under a fixed seed, per the design spec's concurrency/determinism
// requirements.
func (b *Bound) Sample(rng *rand.Rand) (r3.Vector, error) {
	if len(b.entries) == 0 {
		return r3.Vector{}, errors.New("cannot sample an empty bound")
	}
	weights := make([]float64, len(b.entries))
	var total float64
	for i, e := range b.entries {
		weights[i] = e.weight * sphere.AverageArea(sphere.Level(e.key))
		total += weights[i]
	}
	if total <= 0 {
		return r3.Vector{}, errors.New("cannot sample a bound with zero total weighted area")
	}
	target := rng.Float64() * total
	var idx int
	var cum float64
	for i, w := range weights {
		cum += w
		idx = i
		if target <= cum {
			break
		}
	}
	key := b.entries[idx].key
	axis, radius := sphere.Cap(key)
	for attempt := 0; attempt < 100; attempt++ {
		p := sampleInCap(rng, axis, radius)
		if sphere.Contains(key, p) {
			return p, nil
		}
	}
	return sphere.Center(key), nil
}

// sampleInCap draws a direction uniformly distributed within the
// spherical cap of the given angular radius centered on axis.
func sampleInCap(rng *rand.Rand, axis r3.Vector, radius float64) r3.Vector {
	z := 1 - rng.Float64()*(1-math.Cos(radius))
	phi := rng.Float64() * 2 * math.Pi
	r := math.Sqrt(1 - z*z)
	local := r3.Vector{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: z}
	return rotateZToAxis(local, axis.Normalize())
}

// rotateZToAxis rotates v, expressed in a frame whose pole is +Z, into a
// frame whose pole is axis.
func rotateZToAxis(v, axis r3.Vector) r3.Vector {
	zAxis := r3.Vector{X: 0, Y: 0, Z: 1}
	if axis.ApproxEqual(zAxis) {
		return v
	}
	if axis.ApproxEqual(zAxis.Mul(-1)) {
		return r3.Vector{X: v.X, Y: -v.Y, Z: -v.Z}
	}
	rotAxis := zAxis.Cross(axis).Normalize()
	cosTheta := zAxis.Dot(axis)
	sinTheta := math.Sqrt(1 - cosTheta*cosTheta)
	// Rodrigues' rotation formula.
	return v.Mul(cosTheta).Add(rotAxis.Cross(v).Mul(sinTheta)).Add(rotAxis.Mul(rotAxis.Dot(v) * (1 - cosTheta)))
}

func (b *Bound) maxStoredLevel() int {
	max := 0
	for _, e := range b.entries {
		if l := sphere.Level(e.key); l > max {
			max = l
		}
	}
	return max
}
