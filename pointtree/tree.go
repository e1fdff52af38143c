// Package pointtree implements the hierarchical decomposition of a
// weighted point catalog used for dual-tree pair counting (§4.3 of the
// design spec). Its structure is the same recursive split-on-overflow
// idiom as a classic point-region octree, quartered over sphere.Key
// pixels instead of eighthed over R^3 octants, and keyed by pixel
// containment rather than axis-aligned bounding boxes.
package pointtree

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/sphere"
)

type kind uint8

const (
	kindLeaf kind = iota
	kindInternal
)

// node is a single pixel in the tree: either a leaf holding up to
// maxLeafPoints points directly, or an internal node with exactly four
// children, one per sphere.Children(key). A node's bounding cap is always
// sphere.Cap(node.key) -- every point it holds lies within that pixel by
// construction, so no separate cap bookkeeping is needed.
type node struct {
	key      sphere.Key
	children [4]*node
	points   []Point
	k        kind
	weight   float64
	count    int
	region   int // concrete region index, NoRegion (empty), or MixedRegion
}

func newLeaf(key sphere.Key) *node {
	return &node{key: key, k: kindLeaf, region: NoRegion}
}

// Tree is a forest of up to six root nodes, one per S2 base face, built
// from a weighted point catalog. It is built once and read thereafter;
// FindPairs is safe to call concurrently on trees that are no longer
// being mutated.
type Tree struct {
	logger        golog.Logger
	roots         map[sphere.Key]*node
	maxLeafPoints int
	size          int
}

// NewTree creates an empty tree. maxLeafPoints bounds how many points a
// leaf may hold before it is split into four children; the design spec
// suggests choosing it so each leaf holds on the order of 200 points.
func NewTree(maxLeafPoints int, logger golog.Logger) (*Tree, error) {
	if maxLeafPoints <= 0 {
		return nil, errors.Errorf("invalid max leaf points (%d) for point tree", maxLeafPoints)
	}
	return &Tree{
		logger:        logger,
		roots:         make(map[sphere.Key]*node),
		maxLeafPoints: maxLeafPoints,
	}, nil
}

// Size returns the number of points inserted into the tree.
func (t *Tree) Size() int {
	return t.size
}

// Insert adds p to the tree, descending to the pixel it belongs in and
// splitting any leaf that overflows maxLeafPoints.
func (t *Tree) Insert(p Point) error {
	face, err := sphere.Parent(mustLeafKey(p), 0)
	if err != nil {
		return errors.Wrap(err, "computing root face for point")
	}
	root, ok := t.roots[face]
	if !ok {
		root = newLeaf(face)
		t.roots[face] = root
	}
	if err := root.insert(p, t.maxLeafPoints); err != nil {
		return err
	}
	t.size++
	return nil
}

func mustLeafKey(p Point) sphere.Key {
	k, err := sphere.KeyOf(p.Direction, sphere.MaxLevel)
	if err != nil {
		// Direction is validated by sphere.KeyOf at MaxLevel; a caller
		// passing a non-finite direction gets a PixelizationError instead
		// of a silently wrong tree.
		panic(errors.Wrap(err, "invalid point direction"))
	}
	return k
}

func (n *node) insert(p Point, maxLeafPoints int) error {
	switch n.k {
	case kindInternal:
		for _, c := range n.children {
			if sphere.Contains(c.key, p.Direction) {
				if err := c.insert(p, maxLeafPoints); err != nil {
					return err
				}
				n.recompute()
				return nil
			}
		}
		return errors.Errorf("point does not fall within any child of pixel at level %d", sphere.Level(n.key))
	case kindLeaf:
		n.points = append(n.points, p)
		if len(n.points) > maxLeafPoints && sphere.Level(n.key) < sphere.MaxLevel {
			if err := n.split(maxLeafPoints); err != nil {
				return err
			}
		}
		n.recompute()
		return nil
	default:
		return errors.Errorf("unrecognized node kind %d", n.k)
	}
}

// split converts an overfull leaf into an internal node with four
// children, redistributing its points, and recursively re-splits any
// child that is still overfull.
func (n *node) split(maxLeafPoints int) error {
	children, err := sphere.Children(n.key)
	if err != nil {
		return errors.Wrap(err, "splitting point tree node")
	}
	var kids [4]*node
	for i, ck := range children {
		kids[i] = newLeaf(ck)
	}
	for _, p := range n.points {
		placed := false
		for _, c := range kids {
			if sphere.Contains(c.key, p.Direction) {
				c.points = append(c.points, p)
				placed = true
				break
			}
		}
		if !placed {
			return errors.New("point does not fall within any child during split; pixelization invariant broken")
		}
	}
	n.points = nil
	n.children = kids
	n.k = kindInternal
	for _, c := range n.children {
		if len(c.points) > maxLeafPoints && sphere.Level(c.key) < sphere.MaxLevel {
			if err := c.split(maxLeafPoints); err != nil {
				return err
			}
		}
		c.recompute()
	}
	return nil
}

func (n *node) recompute() {
	switch n.k {
	case kindLeaf:
		n.weight = 0
		n.count = len(n.points)
		n.region = NoRegion
		for i, p := range n.points {
			n.weight += p.Weight
			if i == 0 {
				n.region = p.Region
			} else if n.region != p.Region {
				n.region = MixedRegion
			}
		}
	case kindInternal:
		n.weight = 0
		n.count = 0
		n.region = NoRegion
		for i, c := range n.children {
			n.weight += c.weight
			n.count += c.count
			if i == 0 {
				n.region = c.region
			} else if n.region != c.region {
				n.region = MixedRegion
			}
		}
	}
}

// BinRange is one angular separation range a dual-tree walk tests nodes
// against. Bins must be supplied in increasing order of ThetaMin and must
// not overlap (the caller, correlate.Correlation, guarantees this).
type BinRange struct {
	ThetaMin, ThetaMax float64
}

// Deposit is called by FindPairs once the angular separation between two
// entire subtrees is known to lie entirely within bins[binIndex], and
// both subtrees carry a single, concrete region (never MixedRegion).
// weight is the sum, over every (point in A, point in B) pair, of their
// weight product.
type Deposit func(binIndex, regionA, regionB int, weight float64)

// FindPairs walks t and other as a dual tree, depositing weighted pair
// counts into bins via deposit. It prunes a node pair as soon as the
// angular separation range between their bounding caps falls entirely
// inside or entirely outside every bin; it otherwise recurses into the
// larger of the two nodes. A node pair is never deposited while either
// side's region is MixedRegion: region bookkeeping takes priority over
// angular pruning, since depositing a mixed-region node would make the
// leave-one-out accounting wrong for an arbitrary subset of points.
func (t *Tree) FindPairs(ctx context.Context, other *Tree, bins []BinRange, deposit Deposit) error {
	for _, a := range t.roots {
		for _, b := range other.roots {
			if err := findPairs(ctx, a, b, bins, deposit); err != nil {
				return err
			}
		}
	}
	return nil
}

func findPairs(ctx context.Context, a, b *node, bins []BinRange, deposit Deposit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.count == 0 || b.count == 0 {
		return nil
	}
	lo, hi := separationRange(a.key, b.key)

	if a.region != MixedRegion && b.region != MixedRegion {
		if idx, ok := fullyInsideOneBin(bins, lo, hi); ok {
			deposit(idx, a.region, b.region, a.weight*b.weight)
			return nil
		}
		if fullyOutsideEveryBin(bins, lo, hi) {
			return nil
		}
	}

	// Point-to-point base case.
	if a.k == kindLeaf && b.k == kindLeaf {
		for _, pa := range a.points {
			for _, pb := range b.points {
				theta := sphere.AngleBetween(pa.Direction, pb.Direction)
				if idx, ok := binIndexOf(bins, theta); ok {
					deposit(idx, pa.Region, pb.Region, pa.Weight*pb.Weight)
				}
			}
		}
		return nil
	}

	// Recurse into the larger node so the tree shrinks every step.
	if a.k == kindInternal && (b.k == kindLeaf || largerNode(a, b)) {
		for _, ca := range a.children {
			if err := findPairs(ctx, ca, b, bins, deposit); err != nil {
				return err
			}
		}
		return nil
	}
	for _, cb := range b.children {
		if err := findPairs(ctx, a, cb, bins, deposit); err != nil {
			return err
		}
	}
	return nil
}

func largerNode(a, b *node) bool {
	return sphere.Level(a.key) <= sphere.Level(b.key)
}

// separationRange returns the minimum and maximum possible central angle
// between any point in pixel a and any point in pixel b, using their
// bounding caps: [centerDistance - radiusA - radiusB, centerDistance +
// radiusA + radiusB], clamped to [0, pi].
func separationRange(a, b sphere.Key) (lo, hi float64) {
	axisA, radiusA := sphere.Cap(a)
	axisB, radiusB := sphere.Cap(b)
	center := sphere.AngleBetween(axisA, axisB)
	lo = center - radiusA - radiusB
	if lo < 0 {
		lo = 0
	}
	hi = center + radiusA + radiusB
	if hi > 3.14159265358979323846 {
		hi = 3.14159265358979323846
	}
	return lo, hi
}

func fullyInsideOneBin(bins []BinRange, lo, hi float64) (int, bool) {
	for i, bin := range bins {
		if lo >= bin.ThetaMin && hi <= bin.ThetaMax {
			return i, true
		}
	}
	return 0, false
}

func fullyOutsideEveryBin(bins []BinRange, lo, hi float64) bool {
	for _, bin := range bins {
		if hi >= bin.ThetaMin && lo <= bin.ThetaMax {
			return false
		}
	}
	return true
}

func binIndexOf(bins []BinRange, theta float64) (int, bool) {
	for i, bin := range bins {
		if theta >= bin.ThetaMin && theta <= bin.ThetaMax {
			return i, true
		}
	}
	return 0, false
}
