package pointtree

import "github.com/golang/geo/r3"

// NoRegion is the region tag for a point or node whose region has not
// been assigned (e.g. when the caller does not use jackknife regions at
// all). MixedRegion is the tag an internal node carries when its
// descendants span more than one region.
const (
	NoRegion    = -1
	MixedRegion = -2
)

// Point is a single weighted catalog entry: a direction on the unit
// sphere, a non-negative weight (1 for an unweighted catalog), and the
// jackknife region it was assigned to by region.Map.RegionOf, or NoRegion
// if regions are not in use.
type Point struct {
	Direction r3.Vector
	Weight    float64
	Region    int
}
