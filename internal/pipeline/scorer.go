package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/audit"
	"github.com/drishti-labs/drishti-cli/internal/forest"
)

// Score fits the outlier detector over the feature vectors and labels every
// region. The returned forest is the fitted model handle; attribution must
// run against this exact instance. PrimaryRiskFactor is left empty here and
// filled in by the attribution step. Fails with audit.ErrScoring on a
// degenerate sample (fewer than 2 distinct vectors).
func Score(ctx context.Context, features []audit.FeatureVector, cfg forest.Config) ([]audit.ScoredRegion, *forest.Forest, error) {
	matrix := make([][]float64, len(features))
	for i, v := range features {
		vals := v.Values()
		matrix[i] = vals[:]
	}

	model, err := forest.Fit(ctx, matrix, cfg)
	if err != nil {
		return nil, nil, eris.Wrap(err, "score: fit")
	}

	scored := make([]audit.ScoredRegion, len(features))
	for i, v := range features {
		decision := model.Decision(matrix[i])
		label := audit.LabelNormal
		if decision < 0 {
			label = audit.LabelCritical
		}
		scored[i] = audit.ScoredRegion{
			FeatureVector: v,
			AnomalyLabel:  label,
			AnomalyScore:  decision,
		}
	}

	return scored, model, nil
}
