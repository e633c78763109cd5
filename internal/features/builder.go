// Package features merges the three grouped update sources into one
// behavioral feature vector per pincode and derives the three risk ratios.
package features

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/drishti-labs/drishti-cli/internal/audit"
)

// regionAgg accumulates grouped sums for one pincode across all sources.
// Missing sources leave their sums at zero (outer-join semantics).
type regionAgg struct {
	state    string
	district string

	enrolChild float64
	enrolAdult float64
	bioAdult   float64
	demoAdult  float64
}

// Build groups each source by pincode, outer-joins the groups, and computes
// the derived ratios. Fails with audit.ErrDataIntegrity when no source
// contains a record, or when a non-empty source is missing a required
// bracket column. Deterministic: output is sorted by pincode, and
// state/district carry the first observed value per region in enrolment →
// biometric → demographic order.
func Build(enrolment, biometric, demographic []audit.UpdateRecord) ([]audit.FeatureVector, error) {
	log := zap.L().With(zap.String("component", "features"))

	if len(enrolment) == 0 && len(biometric) == 0 && len(demographic) == 0 {
		return nil, eris.Wrap(audit.ErrDataIntegrity, "features: no source contains any record")
	}

	regions := make(map[string]*regionAgg)
	get := func(pin string) *regionAgg {
		agg, ok := regions[pin]
		if !ok {
			agg = &regionAgg{}
			regions[pin] = agg
		}
		return agg
	}

	// Enrolment: child + adult bracket sums, first-seen state/district.
	if len(enrolment) > 0 {
		cols := countColumns(enrolment)
		childCol, err := mustLocate(cols, patternEnrolChild, audit.SourceEnrolment)
		if err != nil {
			return nil, err
		}
		adultCol, err := mustLocate(cols, patternEnrolAdult, audit.SourceEnrolment)
		if err != nil {
			return nil, err
		}
		for _, rec := range enrolment {
			agg := get(rec.Pincode)
			agg.enrolChild += rec.Counts[childCol]
			agg.enrolAdult += rec.Counts[adultCol]
			keepFirstSeen(agg, rec)
		}
	}

	// Biometric: the source must expose at least one bracket column, but
	// only the adult bracket feeds the derived features.
	if len(biometric) > 0 {
		cols := countColumns(biometric)
		if len(locateAll(cols, patternBioAll)) == 0 {
			return nil, eris.Wrapf(audit.ErrDataIntegrity,
				"features: %s source has no column matching %q",
				audit.SourceBiometric, patternBioAll.Name)
		}
		adultCol, err := mustLocate(cols, patternBioAdult, audit.SourceBiometric)
		if err != nil {
			return nil, err
		}
		for _, rec := range biometric {
			agg := get(rec.Pincode)
			agg.bioAdult += rec.Counts[adultCol]
			keepFirstSeen(agg, rec)
		}
	}

	// Demographic: same convention.
	if len(demographic) > 0 {
		cols := countColumns(demographic)
		if len(locateAll(cols, patternDemoAll)) == 0 {
			return nil, eris.Wrapf(audit.ErrDataIntegrity,
				"features: %s source has no column matching %q",
				audit.SourceDemographic, patternDemoAll.Name)
		}
		adultCol, err := mustLocate(cols, patternDemoAdult, audit.SourceDemographic)
		if err != nil {
			return nil, err
		}
		for _, rec := range demographic {
			agg := get(rec.Pincode)
			agg.demoAdult += rec.Counts[adultCol]
			keepFirstSeen(agg, rec)
		}
	}

	pins := make([]string, 0, len(regions))
	for pin := range regions {
		pins = append(pins, pin)
	}
	sort.Strings(pins)

	vectors := make([]audit.FeatureVector, 0, len(pins))
	for _, pin := range pins {
		agg := regions[pin]
		vectors = append(vectors, audit.FeatureVector{
			Pincode:  pin,
			State:    agg.state,
			District: agg.district,

			// The +1 offsets make a zero denominator impossible; a region
			// with zero adult enrolments yields adult_spike_ratio = 0.
			AdultSpikeRatio: agg.enrolAdult / (agg.enrolAdult + agg.enrolChild + 1),
			VelocityIndex:   agg.bioAdult + agg.demoAdult,
			GhostRatio:      agg.demoAdult / (agg.bioAdult + 1),
		})
	}

	log.Info("feature build complete", zap.Int("regions", len(vectors)))
	return vectors, nil
}

// keepFirstSeen fills state/district only if not already set; sources can
// disagree on naming for the same pincode, and first-seen wins.
func keepFirstSeen(agg *regionAgg, rec audit.UpdateRecord) {
	if agg.state == "" {
		agg.state = rec.State
	}
	if agg.district == "" {
		agg.district = rec.District
	}
}
