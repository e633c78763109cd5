package forest

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// clusterWithOutlier generates n-1 points in a tight cluster plus one point
// far outside it, deterministic for the given seed.
func clusterWithOutlier(n int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	data := make([][]float64, n)
	for i := 0; i < n-1; i++ {
		data[i] = []float64{
			0.4 + rng.Float64()*0.2,
			10 + rng.Float64()*5,
			0.1 + rng.Float64()*0.3,
		}
	}
	data[n-1] = []float64{0.99, 10000, 50}
	return data
}

func TestFit_Deterministic(t *testing.T) {
	ctx := context.Background()
	data := clusterWithOutlier(200, 7)
	cfg := Config{Trees: 50, Contamination: 0.05, Seed: 42}

	f1, err := Fit(ctx, data, cfg)
	require.NoError(t, err)
	f2, err := Fit(ctx, data, cfg)
	require.NoError(t, err)

	assert.Equal(t, f1.Offset, f2.Offset)
	for _, x := range data {
		assert.Equal(t, f1.ScoreSample(x), f2.ScoreSample(x))
		assert.Equal(t, f1.IsAnomaly(x), f2.IsAnomaly(x))
	}
}

func TestFit_ContaminationMonotonicity(t *testing.T) {
	ctx := context.Background()
	data := clusterWithOutlier(300, 11)

	countCritical := func(contamination float64) int {
		f, err := Fit(ctx, data, Config{Contamination: contamination, Seed: 42})
		require.NoError(t, err)
		n := 0
		for _, x := range data {
			if f.IsAnomaly(x) {
				n++
			}
		}
		return n
	}

	low := countCritical(0.01)
	high := countCritical(0.05)
	assert.GreaterOrEqual(t, high, low)
	assert.Greater(t, low, 0)
}

func TestFit_ExtremeOutlierFlagged(t *testing.T) {
	ctx := context.Background()
	// Two near-identical low-activity vectors and one extreme outlier,
	// differing only in the middle feature.
	data := [][]float64{
		{0.5, 10, 0.2},
		{0.5, 11, 0.2},
		{0.5, 10000, 0.2},
	}

	f, err := Fit(ctx, data, Config{Contamination: 0.33, Seed: 42})
	require.NoError(t, err)

	assert.True(t, f.IsAnomaly(data[2]))
	assert.False(t, f.IsAnomaly(data[0]))
	assert.False(t, f.IsAnomaly(data[1]))

	// Lower decision = more anomalous.
	assert.Less(t, f.Decision(data[2]), f.Decision(data[0]))
	assert.Less(t, f.Decision(data[2]), f.Decision(data[1]))
}

func TestFit_DegenerateSample(t *testing.T) {
	ctx := context.Background()

	_, err := Fit(ctx, [][]float64{{1, 2, 3}}, Config{Contamination: 0.1, Seed: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audit.ErrScoring))

	// Many copies of one point are still a degenerate sample.
	same := [][]float64{{1, 2, 3}, {1, 2, 3}, {1, 2, 3}}
	_, err = Fit(ctx, same, Config{Contamination: 0.1, Seed: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, audit.ErrScoring))
}

func TestFit_ContaminationRange(t *testing.T) {
	ctx := context.Background()
	data := [][]float64{{1, 0, 0}, {0, 1, 0}}

	for _, bad := range []float64{0, 1, -0.5, 1.5} {
		_, err := Fit(ctx, data, Config{Contamination: bad, Seed: 1})
		assert.Error(t, err, "contamination %v", bad)
	}
}

func TestFit_ImputesNaN(t *testing.T) {
	ctx := context.Background()
	data := [][]float64{
		{0.5, 10, 0.2},
		{0.5, math.NaN(), 0.2},
		{0.9, 500, 3},
	}

	f, err := Fit(ctx, data, Config{Contamination: 0.33, Seed: 42})
	require.NoError(t, err)

	// NaN imputed to zero both at fit and at score time.
	score := f.ScoreSample([]float64{0.5, 0, 0.2})
	assert.False(t, math.IsNaN(score))

	// Caller's slice is untouched.
	assert.True(t, math.IsNaN(data[1][1]))
}

func TestScoreSample_Range(t *testing.T) {
	ctx := context.Background()
	data := clusterWithOutlier(100, 3)

	f, err := Fit(ctx, data, Config{Contamination: 0.05, Seed: 42})
	require.NoError(t, err)

	for _, x := range data {
		s := f.ScoreSample(x)
		assert.GreaterOrEqual(t, s, -1.0)
		assert.Less(t, s, 0.0)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	data := clusterWithOutlier(100, 5)

	f, err := Fit(ctx, data, Config{Contamination: 0.05, Seed: 42})
	require.NoError(t, err)

	blob, err := f.Save()
	require.NoError(t, err)

	loaded, err := Load(blob)
	require.NoError(t, err)

	assert.Equal(t, f.Psi, loaded.Psi)
	assert.Equal(t, f.Offset, loaded.Offset)
	for _, x := range data {
		assert.Equal(t, f.Decision(x), loaded.Decision(x))
	}
}

func TestLoad_Garbage(t *testing.T) {
	_, err := Load([]byte("not a model"))
	assert.Error(t, err)
}

func TestAveragePathLength(t *testing.T) {
	assert.Zero(t, AveragePathLength(0))
	assert.Zero(t, AveragePathLength(1))
	assert.Equal(t, 1.0, AveragePathLength(2))
	// c(n) grows with n and stays below log2-depth of a balanced tree
	// by a constant factor.
	assert.Greater(t, AveragePathLength(256), AveragePathLength(16))
	assert.InDelta(t, 2*(math.Log(255)+eulerGamma)-2*255.0/256, AveragePathLength(256), 1e-12)
}
