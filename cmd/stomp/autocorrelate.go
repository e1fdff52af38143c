package main

import (
	"errors"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/ajmendez/stomp/catalogio"
	"github.com/ajmendez/stomp/correlate"
	"github.com/ajmendez/stomp/region"
)

func autoCorrelateCommand() *cli.Command {
	return &cli.Command{
		Name:  "autocorrelate",
		Usage: "compute the angular auto-correlation function of a catalog within a footprint",
		Flags: []cli.Flag{
			&cli.PathFlag{Name: "footprint", Required: true, Usage: "ASCII footprint file"},
			&cli.PathFlag{Name: "catalog", Required: true, Usage: "ASCII catalog file"},
			&cli.Float64Flag{Name: "theta-min", Value: 0.001, Usage: "minimum angular separation, degrees"},
			&cli.Float64Flag{Name: "theta-max", Value: 10.0, Usage: "maximum angular separation, degrees"},
			&cli.IntFlag{Name: "bins-per-decade", Value: 5},
			&cli.IntFlag{Name: "n-random", Value: 5, Usage: "random catalog size, as a multiple of the data catalog"},
			&cli.IntFlag{Name: "n-regions", Value: 0, Usage: "jackknife region count, 0 to disable"},
			&cli.Uint64Flag{Name: "seed", Value: 1},
			&cli.BoolFlag{Name: "only-pairs", Usage: "force pair counting even for bins a pixel estimator could resolve"},
			&cli.BoolFlag{Name: "debug"},
			&cli.PathFlag{Name: "wtheta-out", Value: "wtheta.dat"},
			&cli.PathFlag{Name: "covariance-out", Value: "covariance.dat"},
		},
		Action: runAutoCorrelate,
	}
}

func runAutoCorrelate(c *cli.Context) error {
	logger := newLogger(c)

	footprintFile, err := os.Open(c.Path("footprint"))
	if err != nil {
		return errUsage(err)
	}
	defer footprintFile.Close()
	footprintRecords, err := catalogio.ReadFootprint(footprintFile)
	if err != nil {
		return err
	}
	footprint, err := catalogio.FootprintToBound(footprintRecords)
	if err != nil {
		return err
	}

	catalogFile, err := os.Open(c.Path("catalog"))
	if err != nil {
		return errUsage(err)
	}
	defer catalogFile.Close()
	catalogEntries, err := catalogio.ReadCatalog(catalogFile, catalogio.DefaultColumnSpec())
	if err != nil {
		return err
	}
	points := catalogio.ToCorrelatePoints(catalogEntries)

	thetaMinRad := c.Float64("theta-min") * degToRad
	thetaMaxRad := c.Float64("theta-max") * degToRad
	corr, err := correlate.NewAngularCorrelation(thetaMinRad, thetaMaxRad, c.Int("bins-per-decade"), logger)
	if err != nil {
		return errUsage(err)
	}

	opts := correlate.DefaultOptions()
	opts.NRandom = c.Int("n-random")
	opts.NRegions = c.Int("n-regions")
	opts.Seed = c.Uint64("seed")
	opts.OnlyPairs = c.Bool("only-pairs")

	result, err := corr.AutoCorrelate(c.Context, footprint, points, opts)
	if err != nil {
		return err
	}

	wthetaOut, err := os.Create(c.Path("wtheta-out"))
	if err != nil {
		return errUsage(err)
	}
	defer wthetaOut.Close()
	if err := catalogio.WriteWThetaTable(wthetaOut, result); err != nil {
		return err
	}

	covOut, err := os.Create(c.Path("covariance-out"))
	if err != nil {
		return errUsage(err)
	}
	defer covOut.Close()
	return catalogio.WriteCovarianceTable(covOut, result)
}

const degToRad = 3.14159265358979323846 / 180

type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func errUsage(err error) error { return usageError{err} }

// exitCodeFor maps an error returned from the CLI's action into the exit
// code contract: 0 success, 1 usage error, 2 invalid pixel identifier, 3
// regionation failed to converge.
func exitCodeFor(err error) int {
	var u usageError
	switch {
	case errors.As(err, &u):
		return 1
	case errors.Is(err, catalogio.ErrInvalidPixelID):
		return 2
	case errors.Is(err, region.ErrDidNotConverge):
		return 3
	default:
		return 1
	}
}
