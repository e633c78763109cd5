// Package audit defines the domain model for the pincode update-audit
// pipeline: raw update records, derived feature vectors, and scored regions.
package audit

import (
	"time"

	"github.com/rotisserie/eris"
)

// Sentinel errors for the pipeline failure taxonomy. Steps wrap these with
// eris so callers can classify with errors.Is.
var (
	// ErrDataIntegrity marks malformed or missing required input structure.
	// The pipeline aborts; the message names the missing source or column
	// pattern.
	ErrDataIntegrity = eris.New("data integrity")

	// ErrScoring marks statistically degenerate input to the anomaly model.
	ErrScoring = eris.New("scoring")
)

// SourceKind classifies a raw source file by the kind of update it records.
type SourceKind string

const (
	SourceEnrolment   SourceKind = "enrolment"
	SourceBiometric   SourceKind = "biometric"
	SourceDemographic SourceKind = "demographic"
)

// Label is the anomaly classification of a region.
type Label string

const (
	LabelNormal   Label = "NORMAL"
	LabelCritical Label = "CRITICAL"
)

// Feature names of the derived risk ratios.
const (
	FeatureAdultSpikeRatio = "adult_spike_ratio"
	FeatureVelocityIndex   = "velocity_index"
	FeatureGhostRatio      = "ghost_ratio"
)

// FeatureNames lists the derived features in their fixed priority order.
// The order doubles as the deterministic tie-break for attribution: earlier
// wins on equal absolute contribution.
var FeatureNames = [3]string{FeatureAdultSpikeRatio, FeatureVelocityIndex, FeatureGhostRatio}

// UpdateRecord is one raw row from a source file: update counts for a single
// pincode on a single date. Counts are keyed by the normalized (trimmed,
// lowercased) column name from the source header; the feature builder
// resolves bracket columns by pattern against those keys.
type UpdateRecord struct {
	Pincode  string             `json:"pincode"`
	State    string             `json:"state,omitempty"`
	District string             `json:"district,omitempty"`
	Date     *time.Time         `json:"date,omitempty"`
	Counts   map[string]float64 `json:"counts"`
}

// FeatureVector is the per-region behavioral vector derived from the three
// grouped sources. All three ratios are non-negative and finite; the +1
// denominator offsets make division by zero structurally impossible.
type FeatureVector struct {
	Pincode  string `json:"pincode"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`

	AdultSpikeRatio float64 `json:"adult_spike_ratio"`
	VelocityIndex   float64 `json:"velocity_index"`
	GhostRatio      float64 `json:"ghost_ratio"`
}

// Values returns the vector in fixed feature order, matching FeatureNames.
func (v FeatureVector) Values() [3]float64 {
	return [3]float64{v.AdultSpikeRatio, v.VelocityIndex, v.GhostRatio}
}

// ScoredRegion is a FeatureVector plus the model's verdict. Created once per
// run and immutable thereafter; it is the row type of the output artifact.
type ScoredRegion struct {
	FeatureVector

	AnomalyLabel Label   `json:"anomaly_label"`
	AnomalyScore float64 `json:"anomaly_score"`

	// PrimaryRiskFactor is the feature with the largest absolute
	// contribution to this region's anomaly score.
	PrimaryRiskFactor string `json:"primary_risk_factor"`
}

// DailyVolume is one point of the update-volume series handed to the
// external demand forecaster.
type DailyVolume struct {
	Date  time.Time `json:"ds"`
	Total float64   `json:"y"`
}
