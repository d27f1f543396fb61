package slu

import (
	"fmt"
	"sort"

	"slunerd/internal/model"
)

// treeOptions configures the decision tree learner.
type treeOptions struct {
	MinSamplesSplit int
	MaxDepth        int
}

func defaultTreeOptions() treeOptions {
	return treeOptions{MinSamplesSplit: 5, MaxDepth: 4}
}

// fitTree fits a shallow CART classifier on dense rows, splitting on Gini
// impurity.
func fitTree(rows [][]float64, y []int, opts treeOptions) (*model.TreeNode, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	idxs := make([]int, len(rows))
	for i := range idxs {
		idxs[i] = i
	}
	return growTree(rows, y, idxs, 0, opts), nil
}

func growTree(rows [][]float64, y []int, idxs []int, depth int, opts treeOptions) *model.TreeNode {
	nPos := 0
	for _, i := range idxs {
		nPos += y[i]
	}
	node := &model.TreeNode{
		ProbPos: float64(nPos) / float64(len(idxs)),
		Samples: len(idxs),
	}

	if depth >= opts.MaxDepth || len(idxs) < opts.MinSamplesSplit || nPos == 0 || nPos == len(idxs) {
		return node
	}

	feature, threshold, ok := bestSplit(rows, y, idxs)
	if !ok {
		return node
	}

	var left, right []int
	for _, i := range idxs {
		if rows[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return node
	}

	node.Feature = feature
	node.Threshold = threshold
	node.Left = growTree(rows, y, left, depth+1, opts)
	node.Right = growTree(rows, y, right, depth+1, opts)
	return node
}

// bestSplit scans all features for the threshold minimising weighted Gini
// impurity.
func bestSplit(rows [][]float64, y []int, idxs []int) (feature int, threshold float64, ok bool) {
	nCols := len(rows[idxs[0]])
	bestGini := gini(y, idxs)
	if bestGini == 0 {
		return 0, 0, false
	}

	vals := make([]float64, 0, len(idxs))
	for j := 0; j < nCols; j++ {
		vals = vals[:0]
		for _, i := range idxs {
			vals = append(vals, rows[i][j])
		}
		sort.Float64s(vals)

		for k := 0; k+1 < len(vals); k++ {
			if vals[k] == vals[k+1] {
				continue
			}
			thr := (vals[k] + vals[k+1]) / 2
			var lN, lPos, rN, rPos int
			for _, i := range idxs {
				if rows[i][j] <= thr {
					lN++
					lPos += y[i]
				} else {
					rN++
					rPos += y[i]
				}
			}
			g := (float64(lN)*giniCounts(lPos, lN) + float64(rN)*giniCounts(rPos, rN)) / float64(len(idxs))
			if g < bestGini-1e-12 {
				bestGini = g
				feature = j
				threshold = thr
				ok = true
			}
		}
	}
	return feature, threshold, ok
}

func gini(y []int, idxs []int) float64 {
	pos := 0
	for _, i := range idxs {
		pos += y[i]
	}
	return giniCounts(pos, len(idxs))
}

func giniCounts(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 2 * p * (1 - p)
}

// treePredictProb returns P(y=1 | x) from the leaf reached by x.
func treePredictProb(t *model.TreeNode, x []float64) float64 {
	node := t
	for !node.IsLeaf() {
		if node.Feature < len(x) && x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.ProbPos
}
