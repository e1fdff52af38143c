// Package correlate implements the top-level angular correlation
// orchestrator (§5 of the design spec): it wires together sphere,
// pixelset, region, pointtree, field and angularbin into the operation a
// caller actually wants -- auto-correlating a catalog against itself --
// producing w(theta) with jackknife errors and a full bin-to-bin
// covariance matrix. Cross-correlating two different catalogs is not
// provided.
package correlate

import (
	"context"
	"math/rand/v2"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/ajmendez/stomp/angularbin"
	"github.com/ajmendez/stomp/field"
	"github.com/ajmendez/stomp/internal/parallel"
	"github.com/ajmendez/stomp/pixelset"
	"github.com/ajmendez/stomp/pointtree"
	"github.com/ajmendez/stomp/region"
	"github.com/ajmendez/stomp/sphere"
)

// CatalogPoint is one entry of a catalog to be correlated: a direction on
// the unit sphere and a non-negative weight (1 for an unweighted catalog).
type CatalogPoint struct {
	Direction r3.Vector
	Weight    float64
}

// Options configures a correlation run. Zero values are not valid; use
// DefaultOptions as a starting point.
type Options struct {
	// NRandom is the size of the synthetic random catalog, as a multiple
	// of the data catalog's size. STOMP convention is 1-10x.
	NRandom int
	// NRegions is the number of jackknife regions to partition the
	// footprint into. 0 disables jackknife bookkeeping entirely.
	NRegions int
	// MaxLeafPoints bounds how many points a pointtree leaf holds before
	// splitting.
	MaxLeafPoints int
	// OnlyPairs forces every bin to use the pair estimator, even bins
	// angularbin.BuildLogBins assigned a pixelization level.
	OnlyPairs bool
	// Seed makes the synthetic random catalog reproducible. Two runs with
	// the same seed, footprint, catalog and options produce bit-identical
	// results (§8 invariant 8, determinism).
	Seed uint64
}

// DefaultOptions returns reasonable defaults: a 5x random catalog, no
// jackknife regions, and 200 points per tree leaf.
func DefaultOptions() Options {
	return Options{NRandom: 5, NRegions: 0, MaxLeafPoints: 200}
}

// BinResult is one angular bin's estimate of w(theta), carrying both the
// derived estimate and the raw accumulator totals the §6 output contract
// names (theta_center, w, w_error, level_used, GG, GR, RG, RR, pixel_wtheta,
// pixel_weight, per-region w vector).
type BinResult struct {
	ThetaMin    float64
	ThetaMax    float64
	ThetaCenter float64
	// W is the Landy-Szalay (pair-counted) or pixel-product estimate,
	// whichever this bin was resolved with.
	W float64
	// WError is the jackknife standard error of W, 0 if NRegions is 0 or
	// 1.
	WError float64
	// PerRegion holds the N leave-one-out jackknife samples, nil if
	// jackknife regions are not in use.
	PerRegion []float64
	// UsedPixelEstimator reports which estimator resolved this bin.
	UsedPixelEstimator bool
	// LevelUsed is the pixelization level the pixel estimator sampled
	// this bin at, or sphere.NoLevel if it was resolved by pair counting.
	LevelUsed int
	// GG, GR, RG, RR are the raw global pair counts, rescaled for the
	// random catalog's size ratio but otherwise untransformed. They are
	// 0 for a bin the pixel estimator resolved.
	GG, GR, RG, RR float64
	// PixelWTheta and PixelWeight are the raw global pixel
	// cross-correlation sums (delta_i*delta_j*wi*wj and wi*wj). They are
	// 0 for a bin the pair estimator resolved.
	PixelWTheta float64
	PixelWeight float64
}

// Result is the outcome of a correlation run: one BinResult per angular
// bin, plus their full jackknife covariance matrix.
type Result struct {
	Bins []BinResult
	// Covariance is the NBins x NBins jackknife covariance matrix. It is
	// nil if NRegions is 0 or 1.
	Covariance *mat.Dense
}

// Correlation holds the angular binning for a series of correlation runs,
// so the relatively expensive BuildLogBins computation is only paid once.
type Correlation struct {
	bins   []angularbin.Bin
	logger golog.Logger
}

// NewAngularCorrelation builds the logarithmic angular bins covering
// [thetaMin, thetaMax] radians at binsPerDecade bins per decade of theta.
func NewAngularCorrelation(thetaMin, thetaMax float64, binsPerDecade int, logger golog.Logger) (*Correlation, error) {
	bins, err := angularbin.BuildLogBins(thetaMin, thetaMax, binsPerDecade)
	if err != nil {
		return nil, errors.Wrap(err, "building angular bins")
	}
	if logger == nil {
		logger = golog.NewDevelopmentLogger("correlate")
	}
	return &Correlation{bins: bins, logger: logger}, nil
}

// AutoCorrelate computes the angular auto-correlation of catalog within
// footprint: w(theta) = (GG - 2*GR + RR) / RR for bins resolved by pair
// counting (GR and RG are identical for an unweighted random catalog built
// from the same footprint, so a single cross tree-walk deposits into
// both), and the pixel overdensity estimator for bins footprint can
// resolve at a pixelization level.
//
// A catalog point with a non-finite direction triggers a PixelizationError
// (returned, not panicked, to the caller) rather than silently corrupting
// the tree.
func (c *Correlation) AutoCorrelate(ctx context.Context, footprint *pixelset.Bound, catalog []CatalogPoint, opts Options) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = errors.Wrap(e, "pixelizing catalog point")
			} else {
				err = errors.Errorf("pixelizing catalog point: %v", r)
			}
			result = nil
		}
	}()

	if footprint == nil || footprint.Area() <= 0 {
		return nil, errors.New("footprint must have positive area")
	}
	if len(catalog) == 0 {
		return nil, errors.New("catalog is empty")
	}
	if opts.NRandom <= 0 {
		opts.NRandom = 1
	}
	if opts.MaxLeafPoints <= 0 {
		opts.MaxLeafPoints = 200
	}

	var regionMap *region.Map
	if opts.NRegions > 0 {
		regionMap, err = region.New(footprint, opts.NRegions, c.logger)
		if err != nil {
			return nil, errors.Wrap(err, "partitioning jackknife regions")
		}
	}
	nRegions := opts.NRegions
	regionOf := func(direction r3.Vector) int {
		if regionMap == nil {
			return pointtree.NoRegion
		}
		r, err := regionMap.RegionOf(direction)
		if err != nil {
			return pointtree.NoRegion
		}
		return r
	}

	dataTree, err := pointtree.NewTree(opts.MaxLeafPoints, c.logger)
	if err != nil {
		return nil, err
	}
	for _, cp := range catalog {
		p := pointtree.Point{Direction: cp.Direction, Weight: cp.Weight, Region: regionOf(cp.Direction)}
		if err := dataTree.Insert(p); err != nil {
			return nil, errors.Wrap(err, "inserting catalog point")
		}
	}

	nRandom := opts.NRandom * len(catalog)
	randomDirections := make([]r3.Vector, nRandom)
	sampleErrs := make([]error, nRandom)
	// Sampling footprint.Sample is the expensive part of building the
	// random catalog; parallel.GroupWork splits it across goroutines, each
	// seeded independently of scheduling order so the result stays
	// reproducible under a fixed opts.Seed.
	parallel.GroupWork(nRandom, func(groupNum, from, to int) parallel.MemberWorkFunc {
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15^uint64(groupNum)))
		return func(memberNum, workNum int) {
			direction, err := footprint.Sample(rng)
			if err != nil {
				sampleErrs[workNum] = err
				return
			}
			randomDirections[workNum] = direction
		}
	})
	for _, err := range sampleErrs {
		if err != nil {
			return nil, errors.Wrap(err, "sampling random catalog")
		}
	}

	randomTree, err := pointtree.NewTree(opts.MaxLeafPoints, c.logger)
	if err != nil {
		return nil, err
	}
	for _, direction := range randomDirections {
		rp := pointtree.Point{Direction: direction, Weight: 1, Region: regionOf(direction)}
		if err := randomTree.Insert(rp); err != nil {
			return nil, errors.Wrap(err, "inserting random point")
		}
	}

	var pairBins, pixelBins []int
	for i, b := range c.bins {
		if !opts.OnlyPairs && b.Level != sphere.NoLevel {
			pixelBins = append(pixelBins, i)
		} else {
			pairBins = append(pairBins, i)
		}
	}

	acc := angularbin.NewAccumulators(len(c.bins), nRegions)

	if len(pairBins) > 0 {
		ranges := make([]pointtree.BinRange, len(pairBins))
		for i, idx := range pairBins {
			ranges[i] = pointtree.BinRange{ThetaMin: c.bins[idx].ThetaMin, ThetaMax: c.bins[idx].ThetaMax}
		}
		if err := countPairs(ctx, dataTree, randomTree, ranges, pairBins, acc); err != nil {
			return nil, errors.Wrap(err, "counting pairs")
		}
		sizeRatio := float64(nRandom) / float64(len(catalog))
		acc.RescalePairCounts(angularbin.GR, sizeRatio)
		acc.RescalePairCounts(angularbin.RG, sizeRatio)
		acc.RescalePairCounts(angularbin.RR, sizeRatio*sizeRatio)
	}

	if len(pixelBins) > 0 {
		if err := countPixels(footprint, catalog, regionOf, c.bins, pixelBins, acc); err != nil {
			return nil, errors.Wrap(err, "counting pixel overdensity")
		}
	}

	return assembleResult(c.bins, pairBins, pixelBins, acc), nil
}

// countPairs runs the three pair-counting passes GG, (GR and RG
// together), and RR concurrently via errgroup. Each pass writes to its own
// counter's slices within acc, so the three goroutines never touch the
// same memory and no mutex is needed (Design Note: "merged at the end by
// summation" generalizes here to "partitioned by counter up front").
// binIdx[i] is the index in acc of the bin ranges[i] describes.
func countPairs(ctx context.Context, dataTree, randomTree *pointtree.Tree, ranges []pointtree.BinRange, binIdx []int, acc *angularbin.Accumulators) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dataTree.FindPairs(gctx, dataTree, ranges, func(bin, regionA, regionB int, weight float64) {
			acc.Add(angularbin.GG, binIdx[bin], regionA, regionB, weight)
		})
	})
	g.Go(func() error {
		return dataTree.FindPairs(gctx, randomTree, ranges, func(bin, regionA, regionB int, weight float64) {
			acc.Add(angularbin.GR, binIdx[bin], regionA, regionB, weight)
			acc.Add(angularbin.RG, binIdx[bin], regionA, regionB, weight)
		})
	})
	g.Go(func() error {
		return randomTree.FindPairs(gctx, randomTree, ranges, func(bin, regionA, regionB int, weight float64) {
			acc.Add(angularbin.RR, binIdx[bin], regionA, regionB, weight)
		})
	})

	return g.Wait()
}

// countPixels builds a field.Union over footprint at each distinct pixel
// bin's level, deposits the catalog into it, converts to overdensity, and
// cross-correlates it with itself (the field auto-correlation).
func countPixels(
	footprint *pixelset.Bound,
	catalog []CatalogPoint,
	regionOf func(r3.Vector) int,
	bins []angularbin.Bin,
	pixelBinIdx []int,
	acc *angularbin.Accumulators,
) error {
	byLevel := make(map[int][]int)
	for _, idx := range pixelBinIdx {
		level := bins[idx].Level
		byLevel[level] = append(byLevel[level], idx)
	}

	for level, idxs := range byLevel {
		regionFn := func(key sphere.Key) int {
			return regionOf(sphere.Center(key))
		}
		union, err := field.NewFromBound(footprint, level, regionFn)
		if err != nil {
			return err
		}
		for _, cp := range catalog {
			if err := union.AddPoint(cp.Direction, cp.Weight); err != nil {
				return err
			}
		}
		if err := union.ConvertToOverDensity(); err != nil {
			return err
		}

		fieldRanges := make([]field.BinRange, len(idxs))
		for i, idx := range idxs {
			fieldRanges[i] = field.BinRange{ThetaMin: bins[idx].ThetaMin, ThetaMax: bins[idx].ThetaMax}
		}
		if err := union.CrossCorrelate(union, fieldRanges, func(local, regionA, regionB int, value, weight float64) {
			acc.AddPixel(idxs[local], regionA, regionB, value, weight)
		}); err != nil {
			return err
		}
	}
	return nil
}

// assembleResult reads the final w(theta), jackknife error and covariance
// matrix out of acc for every bin.
func assembleResult(bins []angularbin.Bin, pairBins, pixelBins []int, acc *angularbin.Accumulators) *Result {
	usesPixel := make(map[int]bool, len(pixelBins))
	for _, idx := range pixelBins {
		usesPixel[idx] = true
	}

	results := make([]BinResult, len(bins))
	perBin := make([][]float64, len(bins))
	jackknifeMean := make([]float64, len(bins))
	for i, b := range bins {
		r := BinResult{
			ThetaMin:           b.ThetaMin,
			ThetaMax:           b.ThetaMax,
			ThetaCenter:        b.ThetaCenter,
			UsedPixelEstimator: usesPixel[i],
			LevelUsed:          sphere.NoLevel,
			GG:                 acc.PairTotal(angularbin.GG, i),
			GR:                 acc.PairTotal(angularbin.GR, i),
			RG:                 acc.PairTotal(angularbin.RG, i),
			RR:                 acc.PairTotal(angularbin.RR, i),
			PixelWTheta:        acc.PixelWThetaTotal(i),
			PixelWeight:        acc.PixelWeightTotal(i),
		}
		if usesPixel[i] {
			r.W = acc.PixelWTheta(i)
			r.LevelUsed = b.Level
		} else {
			r.W = acc.PairWTheta(i)
		}
		if acc.NRegions() > 0 {
			perRegion := make([]float64, acc.NRegions())
			for k := 0; k < acc.NRegions(); k++ {
				if usesPixel[i] {
					perRegion[k] = acc.PixelWThetaRegion(i, k)
				} else {
					perRegion[k] = acc.PairWThetaRegion(i, k)
				}
			}
			var mean float64
			mean, r.WError = angularbin.JackknifeMeanError(perRegion)
			r.PerRegion = perRegion
			perBin[i] = perRegion
			jackknifeMean[i] = mean
		}
		results[i] = r
	}

	var cov *mat.Dense
	if acc.NRegions() > 1 {
		n := len(bins)
		cov = mat.NewDense(n, n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				// Covariance is computed around each bin's own jackknife
				// mean, not its global W, for consistency with the
				// jackknife standard error computed above from the same
				// per-region samples.
				c := angularbin.JackknifeCovariance(perBin[i], perBin[j], jackknifeMean[i], jackknifeMean[j])
				cov.Set(i, j, c)
				cov.Set(j, i, c)
			}
		}
	}

	return &Result{Bins: results, Covariance: cov}
}
