package forest

import (
	"math"
	"math/rand"
)

// leafFeature marks a node with no split.
const leafFeature = -1

// eulerGamma is the Euler-Mascheroni constant used in the average
// unsuccessful-search path correction.
const eulerGamma = 0.5772156649015329

// Node is one node of an isolation tree. Leaves have Feature == -1; internal
// nodes route samples with value < Threshold on the split feature to Left.
type Node struct {
	Feature   int32
	Threshold float64
	Left      int32
	Right     int32
	Size      int32 // training samples that reached this node
}

// Tree is an isolation tree laid out as a node array rooted at index 0.
type Tree struct {
	Nodes []Node
}

// IsLeaf reports whether the node terminates a path.
func (n Node) IsLeaf() bool { return n.Feature == leafFeature }

// AveragePathLength is c(n), the expected path length of an unsuccessful
// search in a binary search tree over n points. It normalizes raw isolation
// depths and pads leaf depths for unresolved subsamples.
func AveragePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		f := float64(n)
		return 2*(math.Log(f-1)+eulerGamma) - 2*(f-1)/f
	}
}

// buildTree grows one isolation tree over the sampled rows, splitting on a
// random feature at a random threshold until isolation or the height limit.
func buildTree(rng *rand.Rand, data [][]float64, sample []int, heightLimit int) Tree {
	t := Tree{Nodes: make([]Node, 0, 2*len(sample))}
	t.grow(rng, data, sample, 0, heightLimit)
	return t
}

// grow appends the subtree for rows and returns its node index.
func (t *Tree) grow(rng *rand.Rand, data [][]float64, rows []int, depth, heightLimit int) int32 {
	idx := int32(len(t.Nodes))
	t.Nodes = append(t.Nodes, Node{Feature: leafFeature, Size: int32(len(rows))})

	if len(rows) <= 1 || depth >= heightLimit {
		return idx
	}

	feature, threshold, ok := pickSplit(rng, data, rows)
	if !ok {
		// All remaining rows are identical; nothing can isolate them.
		return idx
	}

	var left, right []int
	for _, r := range rows {
		if data[r][feature] < threshold {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return idx
	}

	t.Nodes[idx].Feature = int32(feature)
	t.Nodes[idx].Threshold = threshold
	t.Nodes[idx].Left = t.grow(rng, data, left, depth+1, heightLimit)
	t.Nodes[idx].Right = t.grow(rng, data, right, depth+1, heightLimit)
	return idx
}

// pickSplit chooses a random splittable feature and a uniform threshold in
// its (min, max) range. Returns ok=false when no feature varies.
func pickSplit(rng *rand.Rand, data [][]float64, rows []int) (int, float64, bool) {
	dims := len(data[rows[0]])

	var candidates []int
	for f := 0; f < dims; f++ {
		lo, hi := featureRange(data, rows, f)
		if hi > lo {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return 0, 0, false
	}

	feature := candidates[rng.Intn(len(candidates))]
	lo, hi := featureRange(data, rows, feature)
	threshold := lo + rng.Float64()*(hi-lo)
	return feature, threshold, true
}

func featureRange(data [][]float64, rows []int, f int) (lo, hi float64) {
	lo, hi = data[rows[0]][f], data[rows[0]][f]
	for _, r := range rows[1:] {
		v := data[r][f]
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// PathLength returns the isolation depth of x in the tree, with the c(size)
// correction added at the terminating leaf.
func (t Tree) PathLength(x []float64) float64 {
	depth := 0
	idx := int32(0)
	for {
		node := t.Nodes[idx]
		if node.IsLeaf() {
			return float64(depth) + AveragePathLength(int(node.Size))
		}
		if x[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}
