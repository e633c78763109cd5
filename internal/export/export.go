// Package export writes the run's output artifacts: the scored-region table
// consumed by the presentation collaborators, and the daily update-volume
// series consumed by the external demand forecaster.
package export

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// artifactHeader is the column contract of the output table. Downstream
// consumers treat the file as read-only and never recompute scoring.
var artifactHeader = []string{
	"pincode", "state", "district",
	"adult_spike_ratio", "velocity_index", "ghost_ratio",
	"anomaly_label", "anomaly_score", "primary_risk_factor",
}

// WriteCSV writes the final scored-region artifact to path, one row per
// pincode in ascending order. When criticalOnly is set, NORMAL regions are
// filtered out (the audit-report download variant).
func WriteCSV(path string, regions []audit.ScoredRegion, criticalOnly bool) error {
	sorted := make([]audit.ScoredRegion, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pincode < sorted[j].Pincode })

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(artifactHeader); err != nil {
		return eris.Wrap(err, "export: write header")
	}

	written := 0
	for _, r := range sorted {
		if criticalOnly && r.AnomalyLabel != audit.LabelCritical {
			continue
		}
		row := []string{
			r.Pincode, r.State, r.District,
			formatFloat(r.AdultSpikeRatio),
			formatFloat(r.VelocityIndex),
			formatFloat(r.GhostRatio),
			string(r.AnomalyLabel),
			formatFloat(r.AnomalyScore),
			r.PrimaryRiskFactor,
		}
		if err := w.Write(row); err != nil {
			return eris.Wrapf(err, "export: write region %s", r.Pincode)
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush")
	}

	zap.L().Info("wrote scored-region artifact",
		zap.String("path", path),
		zap.Int("rows", written),
		zap.Bool("critical_only", criticalOnly),
	)
	return nil
}

// WriteDailySeries writes the ds/y series the forecasting collaborator
// consumes, ordered by date.
func WriteDailySeries(path string, series []audit.DailyVolume) error {
	sorted := make([]audit.DailyVolume, len(series))
	copy(sorted, series)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write([]string{"ds", "y"}); err != nil {
		return eris.Wrap(err, "export: write series header")
	}
	for _, p := range sorted {
		if err := w.Write([]string{p.Date.Format("2006-01-02"), formatFloat(p.Total)}); err != nil {
			return eris.Wrap(err, "export: write series row")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush series")
	}

	zap.L().Info("wrote daily series", zap.String("path", path), zap.Int("points", len(sorted)))
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
