// Package region implements the jackknife region partitioner (§4.5 of
// the design spec): given a footprint and a target region count N, it
// assigns every covering pixel a region index in [0, N) so that regions
// are contiguous and approximately equal in area. Grounded directly on
// STOMP's Stripe/Section/Regionate algorithm (stomp_base_map.cc),
// re-expressed over s2-backed sphere.Key pixels and Go slices instead of
// the original's std::map/std::vector bookkeeping.
package region

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/pixelset"
	"github.com/ajmendez/stomp/sphere"
)

const (
	minPixelsPerRegion = 50
	maxRegionLevel     = 20
	warnRegionLevel    = 16
)

// ErrDidNotConverge is wrapped into the error New returns when region
// partitioning cannot find a pixelization level fine enough to hold
// nRegion regions within maxRegionLevel levels. Callers use errors.Is to
// distinguish this from a plain InvalidInput failure.
var ErrDidNotConverge = errors.New("region partitioning did not converge")

type pixelInfo struct {
	key    sphere.Key
	weight float64
	stripe int
	lng    float64
}

// Map is a built region partition: a pixel-level assignment of region
// indices plus the per-region area table.
type Map struct {
	level      int
	nRegion    int
	regionOf   map[sphere.Key]int
	regionArea []float64
	totalArea  float64
}

// New partitions bound into nRegion jackknife regions. logger receives a
// warning (not an error) if the chosen region level is unusually fine or
// if the resulting regions deviate from equal area by more than the
// expected 1/sqrt(50) statistical tolerance.
func New(bound *pixelset.Bound, nRegion int, logger golog.Logger) (*Map, error) {
	if nRegion <= 0 {
		return nil, errors.Errorf("invalid region count %d", nRegion)
	}
	if bound.Area() <= 0 {
		return nil, errors.New("cannot regionate an empty footprint")
	}

	level, err := findRegionLevel(bound, nRegion, logger)
	if err != nil {
		return nil, err
	}

	keys, weights := bound.CoveringWeighted(level)
	if len(keys) < nRegion {
		return nil, errors.Errorf("footprint has only %d pixels at level %d, cannot form %d regions", len(keys), level, nRegion)
	}

	infos := make([]pixelInfo, len(keys))
	for i, k := range keys {
		ll := s2.LatLngFromPoint(s2.Point{Vector: sphere.Center(k)})
		stripeHeight := math.Sqrt(sphere.AverageArea(level))
		infos[i] = pixelInfo{
			key:    k,
			weight: weights[i],
			stripe: int(math.Floor((float64(ll.Lat) + math.Pi/2) / stripeHeight)),
			lng:    float64(ll.Lng),
		}
	}

	sections := findSections(infos)

	totalArea := bound.Area()
	targetArea := totalArea / float64(nRegion)
	meanPixelArea := sphere.AverageArea(level)

	regionOf := make(map[sphere.Key]int, len(infos))
	regionArea := make([]float64, nRegion)

	regionIter := 0
	var running float64
	for _, section := range sections {
		for _, info := range section {
			pixelArea := info.weight * meanPixelArea
			if regionIter < nRegion-1 && running+0.75*meanPixelArea >= targetArea*float64(regionIter+1) {
				regionIter++
			}
			regionOf[info.key] = regionIter
			regionArea[regionIter] += pixelArea
			running += pixelArea
		}
	}

	m := &Map{level: level, nRegion: nRegion, regionOf: regionOf, regionArea: regionArea, totalArea: totalArea}

	if logger != nil {
		for k, area := range regionArea {
			if targetArea > 0 && math.Abs(area-targetArea)/targetArea > 1/math.Sqrt(minPixelsPerRegion) {
				logger.Warnf("region %d area deviates from target by more than the expected jackknife tolerance (got %.6g, target %.6g)", k, area, targetArea)
			}
		}
	}

	return m, nil
}

// findRegionLevel raises the candidate level one step at a time from 0
// until the mean pixel area is at most Area()/(50*nRegion), i.e. until the
// footprint spans at least about 50*nRegion pixels, matching
// Stomp::BaseMap::_FindRegionResolution's target_area = Area()/(50*N)
// criterion, adapted to s2 levels (power-of-four area reduction per level
// instead of STOMP's power-of-four HEALPix-style resolution doubling).
func findRegionLevel(bound *pixelset.Bound, nRegion int, logger golog.Logger) (int, error) {
	targetPixelArea := bound.Area() / float64(minPixelsPerRegion*nRegion)
	level := 0
	for level < maxRegionLevel && sphere.AverageArea(level) > targetPixelArea {
		level++
	}
	if level >= warnRegionLevel && logger != nil {
		logger.Warnf("region partitioning needed pixelization level %d, which is unusually fine", level)
	}
	if level >= maxRegionLevel {
		return 0, errors.Wrapf(ErrDidNotConverge, "within %d levels for %d regions", maxRegionLevel, nRegion)
	}
	return level, nil
}

// findSections groups pixels into contiguous stripe runs and, within
// each run, sweeps pixels in (stripe, longitude) order -- the order
// _Regionate consumes to assign regions.
func findSections(infos []pixelInfo) [][]pixelInfo {
	stripes := make(map[int]bool)
	for _, info := range infos {
		stripes[info.stripe] = true
	}
	unique := make([]int, 0, len(stripes))
	for s := range stripes {
		unique = append(unique, s)
	}
	sort.Ints(unique)

	var runs [][]int
	for _, s := range unique {
		if len(runs) == 0 || s != runs[len(runs)-1][len(runs[len(runs)-1])-1]+1 {
			runs = append(runs, []int{s})
		} else {
			runs[len(runs)-1] = append(runs[len(runs)-1], s)
		}
	}

	byStripe := make(map[int][]pixelInfo)
	for _, info := range infos {
		byStripe[info.stripe] = append(byStripe[info.stripe], info)
	}

	sections := make([][]pixelInfo, 0, len(runs))
	for _, run := range runs {
		var section []pixelInfo
		for _, s := range run {
			section = append(section, byStripe[s]...)
		}
		sort.Slice(section, func(i, j int) bool {
			if section[i].stripe != section[j].stripe {
				return section[i].stripe < section[j].stripe
			}
			return section[i].lng < section[j].lng
		})
		sections = append(sections, section)
	}
	return sections
}

// NRegion returns the number of regions the map was built for.
func (m *Map) NRegion() int {
	return m.nRegion
}

// Level returns the pixelization level region membership is resolved at.
func (m *Map) Level() int {
	return m.level
}

// RegionArea returns the total area, in steradians, assigned to region k.
func (m *Map) RegionArea(k int) (float64, error) {
	if k < 0 || k >= m.nRegion {
		return 0, errors.Errorf("region index %d out of range [0,%d)", k, m.nRegion)
	}
	return m.regionArea[k], nil
}

// Area returns the total footprint area the regions partition.
func (m *Map) Area() float64 {
	return m.totalArea
}

// RegionOf returns the region index containing direction. It returns an
// error if direction falls outside the footprint the map was built from.
func (m *Map) RegionOf(direction r3.Vector) (int, error) {
	key, err := sphere.KeyOf(direction, m.level)
	if err != nil {
		return 0, err
	}
	return m.RegionOfKey(key)
}

// RegionOfKey returns the region index of the pixel key, promoting it to
// the map's region level first if it is stored at a finer level.
func (m *Map) RegionOfKey(key sphere.Key) (int, error) {
	if sphere.Level(key) > m.level {
		var err error
		key, err = sphere.Parent(key, m.level)
		if err != nil {
			return 0, err
		}
	}
	r, ok := m.regionOf[key]
	if !ok {
		return 0, errors.New("point is outside the regionated footprint")
	}
	return r, nil
}
