// Package pipeline orchestrates the batch run: ingest raw sources, build
// features, score, attribute, persist, export. The state machine is
// raw → featured → scored → explained; any step failure halts the run before
// the output artifact is written.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/attrib"
	"github.com/drishti-labs/drishti-cli/internal/audit"
	"github.com/drishti-labs/drishti-cli/internal/export"
	"github.com/drishti-labs/drishti-cli/internal/features"
	"github.com/drishti-labs/drishti-cli/internal/forest"
	"github.com/drishti-labs/drishti-cli/internal/ingest"
	"github.com/drishti-labs/drishti-cli/internal/store"
)

// Phase names of the run state machine.
const (
	PhaseRaw       = "raw"
	PhaseFeatured  = "featured"
	PhaseScored    = "scored"
	PhaseExplained = "explained"
)

// Options configures a pipeline run.
type Options struct {
	DataDir      string
	OutputPath   string
	SeriesPath   string // daily-volume artifact; skipped when empty or no dates present
	CriticalOnly bool
	ModelID      string
	Forest       forest.Config
}

// Result summarizes a completed run.
type Result struct {
	RunID        string `json:"run_id"`
	Regions      int    `json:"regions"`
	Critical     int    `json:"critical"`
	Artifact     string `json:"artifact"`
	SeriesPoints int    `json:"series_points,omitempty"`
}

// Pipeline wires the batch steps against a store.
type Pipeline struct {
	st store.Store
}

// New creates a Pipeline backed by st.
func New(st store.Store) *Pipeline {
	return &Pipeline{st: st}
}

// Run executes the full batch pipeline. Each step's failure is recorded on
// the run row and surfaced to the caller; nothing is retried and no partial
// artifact is produced.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))

	run, err := p.st.CreateRun(ctx, opts.Forest.Contamination)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("run started", zap.Float64("contamination", opts.Forest.Contamination))

	fail := func(step string, stepErr error) (*Result, error) {
		if finishErr := p.st.FinishRun(ctx, run.ID, store.RunStatusFailed, 0, 0, stepErr.Error()); finishErr != nil {
			log.Warn("mark run failed", zap.Error(finishErr))
		}
		return nil, eris.Wrapf(stepErr, "pipeline: %s", step)
	}

	// raw: bulk read of the source files.
	var raw *ingest.Result
	err = p.phase(ctx, run.ID, PhaseRaw, func() error {
		var err error
		raw, err = ingest.Scan(opts.DataDir)
		return err
	})
	if err != nil {
		return fail(PhaseRaw, err)
	}

	// featured: group, join, derive ratios.
	var vectors []audit.FeatureVector
	err = p.phase(ctx, run.ID, PhaseFeatured, func() error {
		var err error
		vectors, err = features.Build(raw.Enrolment, raw.Biometric, raw.Demographic)
		return err
	})
	if err != nil {
		return fail(PhaseFeatured, err)
	}

	// scored: fit the outlier ensemble and label regions.
	var scored []audit.ScoredRegion
	var model *forest.Forest
	err = p.phase(ctx, run.ID, PhaseScored, func() error {
		var err error
		scored, model, err = Score(ctx, vectors, opts.Forest)
		return err
	})
	if err != nil {
		return fail(PhaseScored, err)
	}

	// explained: attribute against the same fitted model.
	err = p.phase(ctx, run.ID, PhaseExplained, func() error {
		factors, err := attrib.Attribute(model, vectors)
		if err != nil {
			return err
		}
		for i := range scored {
			scored[i].PrimaryRiskFactor = factors[scored[i].Pincode]
		}
		return nil
	})
	if err != nil {
		return fail(PhaseExplained, err)
	}

	// Persist the run's output and the fitted model, then write artifacts.
	critical := 0
	for _, r := range scored {
		if r.AnomalyLabel == audit.LabelCritical {
			critical++
		}
	}

	if err := p.st.SaveRegions(ctx, run.ID, scored); err != nil {
		return fail("persist regions", err)
	}

	blob, err := model.Save()
	if err != nil {
		return fail("serialize model", err)
	}
	if err := p.st.SaveModel(ctx, opts.ModelID, blob); err != nil {
		return fail("persist model", err)
	}

	if err := export.WriteCSV(opts.OutputPath, scored, opts.CriticalOnly); err != nil {
		return fail("export artifact", err)
	}

	series := DailySeries(raw)
	if opts.SeriesPath != "" && len(series) > 0 {
		if err := export.WriteDailySeries(opts.SeriesPath, series); err != nil {
			return fail("export series", err)
		}
	}

	if err := p.st.FinishRun(ctx, run.ID, store.RunStatusComplete, len(scored), critical, ""); err != nil {
		return nil, eris.Wrap(err, "pipeline: finish run")
	}

	log.Info("run complete",
		zap.Int("regions", len(scored)),
		zap.Int("critical", critical),
	)

	return &Result{
		RunID:        run.ID,
		Regions:      len(scored),
		Critical:     critical,
		Artifact:     opts.OutputPath,
		SeriesPoints: len(series),
	}, nil
}

// phase records one state-machine step around fn.
func (p *Pipeline) phase(ctx context.Context, runID, name string, fn func() error) error {
	ph, err := p.st.StartPhase(ctx, runID, name)
	if err != nil {
		return eris.Wrapf(err, "pipeline: start phase %s", name)
	}

	start := time.Now()
	runErr := fn()

	status := "complete"
	if runErr != nil {
		status = "failed"
	}
	if endErr := p.st.EndPhase(ctx, ph.ID, status); endErr != nil {
		zap.L().Warn("end phase", zap.String("phase", name), zap.Error(endErr))
	}

	zap.L().Debug("phase finished",
		zap.String("phase", name),
		zap.String("status", status),
		zap.Duration("took", time.Since(start)),
	)
	return runErr
}

// DailySeries aggregates total update volume per date across all sources.
// Records without a parseable date are left out; an empty result means the
// sources carry no dates and the series artifact is skipped.
func DailySeries(raw *ingest.Result) []audit.DailyVolume {
	totals := make(map[time.Time]float64)
	for _, set := range [][]audit.UpdateRecord{raw.Enrolment, raw.Biometric, raw.Demographic} {
		for _, rec := range set {
			if rec.Date == nil {
				continue
			}
			day := rec.Date.Truncate(24 * time.Hour)
			for _, v := range rec.Counts {
				totals[day] += v
			}
		}
	}

	series := make([]audit.DailyVolume, 0, len(totals))
	for day, total := range totals {
		series = append(series, audit.DailyVolume{Date: day, Total: total})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series
}
