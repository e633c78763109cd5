package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func regions() []audit.ScoredRegion {
	return []audit.ScoredRegion{
		{
			FeatureVector: audit.FeatureVector{
				Pincode: "400001", State: "Maharashtra", District: "Mumbai",
				AdultSpikeRatio: 0.2, VelocityIndex: 14, GhostRatio: 0.4,
			},
			AnomalyLabel: audit.LabelNormal, AnomalyScore: 0.08,
			PrimaryRiskFactor: audit.FeatureAdultSpikeRatio,
		},
		{
			FeatureVector: audit.FeatureVector{
				Pincode: "110001", State: "Delhi", District: "New Delhi",
				AdultSpikeRatio: 0.59, VelocityIndex: 120, GhostRatio: 2.9,
			},
			AnomalyLabel: audit.LabelCritical, AnomalyScore: -0.12,
			PrimaryRiskFactor: audit.FeatureGhostRatio,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(path, regions(), false))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, artifactHeader, rows[0])

	// Rows sorted by pincode regardless of input order.
	assert.Equal(t, "110001", rows[1][0])
	assert.Equal(t, "CRITICAL", rows[1][6])
	assert.Equal(t, "ghost_ratio", rows[1][8])
	assert.Equal(t, "400001", rows[2][0])
	assert.Equal(t, "NORMAL", rows[2][6])
}

func TestWriteCSV_CriticalOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "critical.csv")
	require.NoError(t, WriteCSV(path, regions(), true))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "110001", rows[1][0])
}

func TestWriteDailySeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }

	series := []audit.DailyVolume{
		{Date: day(2), Total: 30},
		{Date: day(1), Total: 12.5},
	}
	require.NoError(t, WriteDailySeries(path, series))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ds", "y"}, rows[0])
	assert.Equal(t, []string{"2024-03-01", "12.5"}, rows[1])
	assert.Equal(t, []string{"2024-03-02", "30"}, rows[2])
}
