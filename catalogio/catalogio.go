// Package catalogio implements the ASCII input/output formats the
// collaborator layer reads and writes (§6 of the design spec). Apart from
// cmd/stomp, which converts its angular-range flags from degrees and opens
// the files, it is the only package in this module that speaks degrees or
// touches a text stream; correlate and angularbin are radians-only and
// never import it.
package catalogio

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/ajmendez/stomp/correlate"
	"github.com/ajmendez/stomp/pixelset"
	"github.com/ajmendez/stomp/sphere"
)

// ErrInvalidPixelID is wrapped into the error ReadFootprint returns when a
// line's pixel-id field cannot be parsed or does not decode to a pixel
// sphere recognizes, distinguishing a malformed-pixel failure from other
// usage errors (cmd/stomp maps it to its own exit code).
var ErrInvalidPixelID = errors.New("invalid pixel identifier")

// FootprintRecord is one line of an ASCII footprint file: a pixel at a
// fixed level, and the unmasked fraction of it (weight) the survey
// actually covers.
type FootprintRecord struct {
	Key    sphere.Key
	Weight float64
}

// ReadFootprint parses an ASCII footprint file: one record per line,
// whitespace-separated as "<pixel-id> <weight>", where pixel-id is the
// pixel's raw sphere.Key encoding (sphere.Raw/sphere.FromRaw) printed as a
// decimal integer. Blank lines and lines beginning with '#' are skipped.
func ReadFootprint(r io.Reader) ([]FootprintRecord, error) {
	scanner := bufio.NewScanner(r)
	var out []FootprintRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, errors.Errorf("footprint line %d: expected 2 fields (pixel-id, weight), got %d", lineNo, len(fields))
		}
		raw, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPixelID, "footprint line %d: %v", lineNo, err)
		}
		if sphere.Level(sphere.FromRaw(raw)) < 0 || sphere.Level(sphere.FromRaw(raw)) > sphere.MaxLevel {
			return nil, errors.Wrapf(ErrInvalidPixelID, "footprint line %d: pixel id %d", lineNo, raw)
		}
		weight, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "footprint line %d: invalid weight", lineNo)
		}
		out = append(out, FootprintRecord{Key: sphere.FromRaw(raw), Weight: weight})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading footprint")
	}
	return out, nil
}

// WriteFootprint writes records back out in the format ReadFootprint
// accepts, using tabwriter for column alignment the way the teacher's
// diagnostic table writers do.
func WriteFootprint(w io.Writer, records []FootprintRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	for _, rec := range records {
		if _, err := fmt.Fprintf(tw, "%d\t%.6f\n", sphere.Raw(rec.Key), rec.Weight); err != nil {
			return errors.Wrap(err, "writing footprint")
		}
	}
	return tw.Flush()
}

// FootprintToBound builds a pixelset.Bound directly from parsed footprint
// records, which must already be pairwise disjoint (pixelset.FromLeaves
// enforces this).
func FootprintToBound(records []FootprintRecord) (*pixelset.Bound, error) {
	keys := make([]sphere.Key, len(records))
	weights := make([]float64, len(records))
	for i, rec := range records {
		keys[i] = rec.Key
		weights[i] = rec.Weight
	}
	return pixelset.FromLeaves(keys, weights)
}

// ColumnSpec names the 0-based column indices of a whitespace-delimited
// catalog file that hold longitude, latitude, and optionally probability
// and magnitude (either may be -1 to indicate "not present, default to
// 1.0"/"not present, omit").
type ColumnSpec struct {
	Lon, Lat         int
	Probability      int // -1 if absent; weight defaults to 1
	Magnitude        int // -1 if absent
	DegreesNotRadian bool
}

// DefaultColumnSpec matches the column layout STOMP's galaxy catalog
// tools expect: lon, lat, probability, magnitude in that order, in
// degrees.
func DefaultColumnSpec() ColumnSpec {
	return ColumnSpec{Lon: 0, Lat: 1, Probability: 2, Magnitude: 3, DegreesNotRadian: true}
}

// CatalogEntry is one parsed catalog record: a unit direction vector, its
// probability-derived weight, and its magnitude (NaN if the column was
// absent).
type CatalogEntry struct {
	Direction r3.Vector
	Weight    float64
	Magnitude float64
}

// ReadCatalog parses a whitespace-delimited ASCII catalog according to
// spec. Longitude/latitude are converted from degrees to radians (when
// spec.DegreesNotRadian) and then to a unit direction vector; this
// conversion happens here and nowhere else in the module, since correlate
// and its dependencies are radians/direction-vector-only.
func ReadCatalog(r io.Reader, spec ColumnSpec) ([]CatalogEntry, error) {
	scanner := bufio.NewScanner(r)
	var out []CatalogEntry
	lineNo := 0
	needed := spec.Lon
	if spec.Lat > needed {
		needed = spec.Lat
	}
	if spec.Probability > needed {
		needed = spec.Probability
	}
	if spec.Magnitude > needed {
		needed = spec.Magnitude
	}
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) <= needed {
			return nil, errors.Errorf("catalog line %d: expected at least %d fields, got %d", lineNo, needed+1, len(fields))
		}
		lon, err := strconv.ParseFloat(fields[spec.Lon], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog line %d: invalid longitude", lineNo)
		}
		lat, err := strconv.ParseFloat(fields[spec.Lat], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog line %d: invalid latitude", lineNo)
		}
		if spec.DegreesNotRadian {
			lon *= math.Pi / 180
			lat *= math.Pi / 180
		}

		weight := 1.0
		if spec.Probability >= 0 {
			weight, err = strconv.ParseFloat(fields[spec.Probability], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "catalog line %d: invalid probability", lineNo)
			}
		}
		magnitude := math.NaN()
		if spec.Magnitude >= 0 {
			magnitude, err = strconv.ParseFloat(fields[spec.Magnitude], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "catalog line %d: invalid magnitude", lineNo)
			}
		}

		out = append(out, CatalogEntry{Direction: directionFromLonLat(lon, lat), Weight: weight, Magnitude: magnitude})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading catalog")
	}
	return out, nil
}

func directionFromLonLat(lon, lat float64) r3.Vector {
	cosLat := math.Cos(lat)
	return r3.Vector{X: cosLat * math.Cos(lon), Y: cosLat * math.Sin(lon), Z: math.Sin(lat)}
}

// ToCorrelatePoints converts catalog entries into correlate.CatalogPoint,
// the direction-vector/weight pair the correlator's core operates on.
func ToCorrelatePoints(entries []CatalogEntry) []correlate.CatalogPoint {
	out := make([]correlate.CatalogPoint, len(entries))
	for i, e := range entries {
		out[i] = correlate.CatalogPoint{Direction: e.Direction, Weight: e.Weight}
	}
	return out
}

// WriteWThetaTable writes the w(theta) result table: one row per bin of
// (theta in degrees, w, sigma_w, GG, GR, RG, RR), tab-aligned, matching
// the output contract's table column list.
func WriteWThetaTable(w io.Writer, result *correlate.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "theta_deg\tw\tsigma_w\tGG\tGR\tRG\tRR"); err != nil {
		return err
	}
	for _, b := range result.Bins {
		thetaDeg := b.ThetaCenter * 180 / math.Pi
		if _, err := fmt.Fprintf(tw, "%.6f\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\n",
			thetaDeg, b.W, b.WError, b.GG, b.GR, b.RG, b.RR); err != nil {
			return errors.Wrap(err, "writing w(theta) table")
		}
	}
	return tw.Flush()
}

// WriteCovarianceTable writes the covariance matrix as n_bins^2 rows of
// (i, j, C[i,j]).
func WriteCovarianceTable(w io.Writer, result *correlate.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "i\tj\tcov"); err != nil {
		return err
	}
	if result.Covariance == nil {
		return tw.Flush()
	}
	rows, cols := result.Covariance.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if _, err := fmt.Fprintf(tw, "%d\t%d\t%.6g\n", i, j, result.Covariance.At(i, j)); err != nil {
				return errors.Wrap(err, "writing covariance table")
			}
		}
	}
	return tw.Flush()
}
