// Package attrib explains anomaly scores: it decomposes a region's
// ensemble-averaged isolation depth into additive per-feature contributions
// and selects the dominant contributing feature.
package attrib

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/drishti-labs/drishti-cli/internal/audit"
	"github.com/drishti-labs/drishti-cli/internal/forest"
)

// Contributions returns the per-feature contributions for x against the
// fitted forest. Walking each tree's path, every split passes the change in
// expected isolation depth to its split feature, so for each tree
//
//	c(psi) + sum(contributions) == PathLength(x)
//
// and averaged over the ensemble the contributions sum, up to the c(psi)
// baseline, to the model's mean path length. Negative contributions push
// toward anomaly (shorter paths isolate faster).
func Contributions(f *forest.Forest, x []float64) ([]float64, error) {
	if len(x) != f.Dims {
		return nil, eris.Errorf("attrib: vector has %d features, model expects %d", len(x), f.Dims)
	}

	contrib := make([]float64, f.Dims)
	for _, t := range f.Trees {
		idx := int32(0)
		depth := 0
		for {
			node := t.Nodes[idx]
			if node.IsLeaf() {
				break
			}
			expected := float64(depth) + forest.AveragePathLength(int(node.Size))

			var child int32
			if x[node.Feature] < node.Threshold {
				child = node.Left
			} else {
				child = node.Right
			}
			childNode := t.Nodes[child]
			childExpected := float64(depth+1) + forest.AveragePathLength(int(childNode.Size))

			contrib[node.Feature] += childExpected - expected
			idx = child
			depth++
		}
	}

	n := float64(len(f.Trees))
	for i := range contrib {
		contrib[i] /= n
	}
	return contrib, nil
}

// Primary selects the feature name with the largest absolute contribution.
// Ties break by the fixed priority order of audit.FeatureNames, never by
// incidental array order.
func Primary(contrib []float64) string {
	best := audit.FeatureNames[0]
	bestAbs := math.Abs(contrib[0])
	for i, name := range audit.FeatureNames {
		if i == 0 {
			continue
		}
		if abs := math.Abs(contrib[i]); abs > bestAbs {
			best = name
			bestAbs = abs
		}
	}
	return best
}

// Attribute computes the primary risk factor for every region vector against
// the same fitted model that produced the scores. Returns pincode → feature
// name.
func Attribute(f *forest.Forest, vectors []audit.FeatureVector) (map[string]string, error) {
	out := make(map[string]string, len(vectors))
	for _, v := range vectors {
		vals := v.Values()
		contrib, err := Contributions(f, vals[:])
		if err != nil {
			return nil, eris.Wrapf(err, "attrib: region %s", v.Pincode)
		}
		out[v.Pincode] = Primary(contrib)
	}
	return out, nil
}
