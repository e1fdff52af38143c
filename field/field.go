// Package field implements field unions (§4.4 of the design spec): a
// pixel-set bound sampled at a single resolution and carrying a scalar
// intensity per pixel, used by the pixel estimator for angular scales
// where pair counting would be wasteful. Grounded on s2omp's
// field_union.h, with the C++ class hierarchy (field_union extends
// pixel_union extends bound_interface) replaced by composition: Union
// embeds a *pixelset.Bound instead of inheriting from it.
package field

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/pixelset"
	"github.com/ajmendez/stomp/sphere"
)

type pixelEntry struct {
	key       sphere.Key
	weight    float64 // unmasked fraction of this pixel, from the footprint
	intensity float64
	count     int
	region    int
}

// Union is a pixel-set bound sampled at one level, each pixel carrying an
// intensity (e.g. galaxy count, optionally weighted) on top of the
// footprint weight inherited from the bound it was built from.
type Union struct {
	bound         *pixelset.Bound
	level         int
	entries       []pixelEntry
	index         map[sphere.Key]int
	overDensity   bool
	meanIntensity float64
	meanValid     bool
}

// RegionFunc maps a pixel key to its jackknife region index, or
// pointtree.NoRegion if regions are not in use. It is typically
// region.Map.RegionOf composed with sphere.Center.
type RegionFunc func(key sphere.Key) int

// NewFromBound builds a field union over the pixels of bound, coarsened
// (or refined, if bound was built at a coarser level) to level. Every
// pixel starts with zero intensity and zero count; AddPoint fills them
// in. regionOf may be nil, in which case every pixel's region is
// pointtree.NoRegion (-1) and CrossCorrelate performs no leave-one-out
// bookkeeping.
func NewFromBound(bound *pixelset.Bound, level int, regionOf RegionFunc) (*Union, error) {
	if level < 0 || level > sphere.MaxLevel {
		return nil, errors.Errorf("invalid field level %d", level)
	}
	keys, weights := bound.CoveringWeighted(level)
	if len(keys) == 0 {
		return nil, errors.New("field union would have no pixels: bound is empty at this level")
	}
	entries := make([]pixelEntry, len(keys))
	index := make(map[sphere.Key]int, len(keys))
	for i, k := range keys {
		region := -1
		if regionOf != nil {
			region = regionOf(k)
		}
		entries[i] = pixelEntry{key: k, weight: weights[i], region: region}
		index[k] = i
	}
	return &Union{bound: bound, level: level, entries: entries, index: index}, nil
}

// Level returns the pixelization level the field was sampled at.
func (u *Union) Level() int {
	return u.level
}

// Contains delegates to the underlying footprint bound.
func (u *Union) Contains(direction r3.Vector) bool { return u.bound.Contains(direction) }

// MayIntersect delegates to the underlying footprint bound.
func (u *Union) MayIntersect(other sphere.Key) bool { return u.bound.MayIntersect(other) }

// Area delegates to the underlying footprint bound.
func (u *Union) Area() float64 { return u.bound.Area() }

// Covering delegates to the underlying footprint bound.
func (u *Union) Covering(level int) []sphere.Key { return u.bound.Covering(level) }

// Center delegates to the underlying footprint bound.
func (u *Union) Center() r3.Vector { return u.bound.Center() }

// AddPoint increments the intensity and count of whichever field pixel
// contains direction. It is an error to call AddPoint after the union has
// been converted to overdensity.
func (u *Union) AddPoint(direction r3.Vector, weight float64) error {
	if u.overDensity {
		return errors.New("cannot add points to a field already converted to overdensity")
	}
	key, err := sphere.KeyOf(direction, u.level)
	if err != nil {
		return err
	}
	i, ok := u.index[key]
	if !ok {
		return nil // point falls outside the footprint this field was built from
	}
	u.entries[i].intensity += weight
	u.entries[i].count++
	u.meanValid = false
	return nil
}

// MeanIntensity returns Sum(intensity) / Sum(weight) across all pixels,
// the normalization used to convert intensity into overdensity.
func (u *Union) MeanIntensity() float64 {
	if u.meanValid {
		return u.meanIntensity
	}
	var sumIntensity, sumWeight float64
	for _, e := range u.entries {
		sumIntensity += e.intensity
		sumWeight += e.weight
	}
	if sumWeight > 0 {
		u.meanIntensity = sumIntensity / sumWeight
	}
	u.meanValid = true
	return u.meanIntensity
}

// ConvertToOverDensity replaces every pixel's intensity with
// (intensity / (weight * mean)) - 1, the local overdensity delta. It is
// idempotent to call ConvertFromOverDensity afterward to recover the
// original intensities (round-trip property, §8 invariant 6).
func (u *Union) ConvertToOverDensity() error {
	if u.overDensity {
		return nil
	}
	mean := u.MeanIntensity()
	if mean == 0 {
		return errors.New("cannot convert to overdensity: mean intensity is zero")
	}
	for i := range u.entries {
		e := &u.entries[i]
		if e.weight == 0 {
			e.intensity = 0
			continue
		}
		e.intensity = e.intensity/(e.weight*mean) - 1
	}
	u.overDensity = true
	return nil
}

// ConvertFromOverDensity is the inverse of ConvertToOverDensity.
func (u *Union) ConvertFromOverDensity() error {
	if !u.overDensity {
		return nil
	}
	mean := u.MeanIntensity()
	for i := range u.entries {
		e := &u.entries[i]
		e.intensity = (e.intensity + 1) * e.weight * mean
	}
	u.overDensity = false
	return nil
}

// IsOverDensity reports whether the field currently holds overdensity
// values rather than raw intensities.
func (u *Union) IsOverDensity() bool {
	return u.overDensity
}

// Deposit is called by CrossCorrelate for every pixel pair whose angular
// separation falls in bins[binIndex]. weight is wi*wj (the pixel-product
// normalization term); value is delta_i*delta_j*wi*wj.
type Deposit func(binIndex, regionA, regionB int, value, weight float64)

// BinRange mirrors pointtree.BinRange; duplicated here (rather than
// imported) because the pixel and pair estimators are independent
// consumers of the same small value type and neither should have to
// depend on the other's package for it.
type BinRange struct {
	ThetaMin, ThetaMax float64
}

// CrossCorrelate accumulates over every pair of pixels (one from u, one
// from other) whose centers fall within a bin's angular range. Both
// fields must already be converted to overdensity. Passing u as other
// computes the field's auto-correlation.
func (u *Union) CrossCorrelate(other *Union, bins []BinRange, deposit Deposit) error {
	if !u.overDensity || !other.overDensity {
		return errors.New("pixel cross-correlation requires both fields to be in overdensity form")
	}
	if len(bins) == 0 {
		return nil
	}
	maxTheta := 0.0
	for _, b := range bins {
		if b.ThetaMax > maxTheta {
			maxTheta = b.ThetaMax
		}
	}

	for i := range u.entries {
		ei := &u.entries[i]
		axisI, _ := sphere.Cap(ei.key)
		for j := range other.entries {
			ej := &other.entries[j]
			theta := sphere.AngleBetween(axisI, sphere.Center(ej.key))
			if theta > maxTheta {
				continue
			}
			idx, ok := binIndexOf(bins, theta)
			if !ok {
				continue
			}
			weight := ei.weight * ej.weight
			value := ei.intensity * ej.intensity * weight
			deposit(idx, ei.region, ej.region, value, weight)
		}
	}
	return nil
}

func binIndexOf(bins []BinRange, theta float64) (int, bool) {
	for i, b := range bins {
		if theta >= b.ThetaMin && theta <= b.ThetaMax {
			return i, true
		}
	}
	return 0, false
}
