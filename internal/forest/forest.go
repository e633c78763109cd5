// Package forest implements a seeded isolation-forest outlier detector with
// score and decision-function conventions matching the reference model:
// lower decision values are more anomalous, and negative values are
// out-of-distribution at the configured contamination.
package forest

import (
	"bytes"
	"context"
	"encoding/gob"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

const (
	// DefaultTrees is the ensemble size.
	DefaultTrees = 100
	// DefaultSubsample is the per-tree training sample size cap.
	DefaultSubsample = 256
	// DefaultContamination is the expected fraction of outliers.
	DefaultContamination = 0.01
	// DefaultSeed fixes the ensemble's pseudo-random stream.
	DefaultSeed = 42
)

// Config tunes the ensemble fit.
type Config struct {
	Trees         int
	Subsample     int
	Contamination float64
	Seed          int64
}

// DefaultConfig returns the standard ensemble parameters.
func DefaultConfig() Config {
	return Config{
		Trees:         DefaultTrees,
		Subsample:     DefaultSubsample,
		Contamination: DefaultContamination,
		Seed:          DefaultSeed,
	}
}

// Forest is a fitted isolation forest. Fields are exported for gob
// round-tripping; treat a fitted forest as immutable.
type Forest struct {
	Trees         []Tree
	Dims          int
	Psi           int // effective subsample size
	Offset        float64
	Contamination float64
	Seed          int64
}

// Fit trains an isolation forest over data (rows are samples). NaN feature
// values are imputed to zero before fitting. Tree construction is
// parallelized across cores, but per-tree seeds are drawn sequentially up
// front so results never depend on scheduling. Fails with audit.ErrScoring
// when fewer than 2 distinct rows are supplied.
func Fit(ctx context.Context, data [][]float64, cfg Config) (*Forest, error) {
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultTrees
	}
	if cfg.Subsample <= 0 {
		cfg.Subsample = DefaultSubsample
	}
	if cfg.Contamination <= 0 || cfg.Contamination >= 1 {
		return nil, eris.Errorf("forest: contamination %v outside (0,1)", cfg.Contamination)
	}

	data = imputeZero(data)

	if countDistinct(data) < 2 {
		return nil, eris.Wrapf(audit.ErrScoring,
			"forest: need at least 2 distinct samples, got %d", countDistinct(data))
	}

	n := len(data)
	psi := cfg.Subsample
	if psi > n {
		psi = n
	}
	heightLimit := int(math.Ceil(math.Log2(float64(psi))))

	// One seed per tree, drawn from the master stream before any
	// goroutine starts.
	master := rand.New(rand.NewSource(cfg.Seed))
	seeds := make([]int64, cfg.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	f := &Forest{
		Trees:         make([]Tree, cfg.Trees),
		Dims:          len(data[0]),
		Psi:           psi,
		Contamination: cfg.Contamination,
		Seed:          cfg.Seed,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range f.Trees {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := rng.Perm(n)[:psi]
			f.Trees[i] = buildTree(rng, data, sample, heightLimit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "forest: fit")
	}

	// The decision offset is the contamination quantile of the training
	// score samples, so roughly that fraction of the fit set lands below
	// zero.
	scores := make([]float64, n)
	for i, x := range data {
		scores[i] = f.ScoreSample(x)
	}
	sort.Float64s(scores)
	f.Offset = stat.Quantile(cfg.Contamination, stat.LinInterp, scores, nil)

	return f, nil
}

// MeanPathLength is the ensemble-averaged isolation depth of x, the raw
// model output that the anomaly score transforms monotonically.
func (f *Forest) MeanPathLength(x []float64) float64 {
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.PathLength(x)
	}
	return sum / float64(len(f.Trees))
}

// ScoreSample returns the negated anomaly score -s(x) in [-1, 0): lower is
// more anomalous.
func (f *Forest) ScoreSample(x []float64) float64 {
	s := math.Pow(2, -f.MeanPathLength(x)/AveragePathLength(f.Psi))
	return -s
}

// Decision is the continuous anomaly score shifted by the contamination
// offset; negative values classify as out of distribution.
func (f *Forest) Decision(x []float64) float64 {
	return f.ScoreSample(x) - f.Offset
}

// IsAnomaly is the binary in/out-of-distribution classification.
func (f *Forest) IsAnomaly(x []float64) bool {
	return f.Decision(x) < 0
}

// Save serializes the fitted forest for durable storage.
func (f *Forest) Save() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, eris.Wrap(err, "forest: encode")
	}
	return buf.Bytes(), nil
}

// Load deserializes a fitted forest produced by Save.
func Load(data []byte) (*Forest, error) {
	var f Forest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, eris.Wrap(err, "forest: decode")
	}
	if len(f.Trees) == 0 {
		return nil, eris.New("forest: decoded model has no trees")
	}
	return &f, nil
}

// imputeZero replaces NaN values with zero, copying only rows that need it.
func imputeZero(data [][]float64) [][]float64 {
	out := data
	copied := false
	for i, row := range data {
		dirty := false
		for _, v := range row {
			if math.IsNaN(v) {
				dirty = true
				break
			}
		}
		if !dirty {
			continue
		}
		if !copied {
			out = make([][]float64, len(data))
			copy(out, data)
			copied = true
		}
		clean := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				clean[j] = 0
			} else {
				clean[j] = v
			}
		}
		out[i] = clean
	}
	return out
}

// countDistinct returns the number of distinct rows, stopping early at 2.
func countDistinct(data [][]float64) int {
	if len(data) == 0 {
		return 0
	}
	first := data[0]
	for _, row := range data[1:] {
		if !equalRow(first, row) {
			return 2
		}
	}
	return 1
}

func equalRow(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
