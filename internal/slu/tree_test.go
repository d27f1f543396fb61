package slu

import (
	"testing"
)

func TestFitTreeSplits(t *testing.T) {
	// Column 0 separates the classes perfectly.
	rows := [][]float64{
		{1, 0}, {1, 1}, {1, 0},
		{0, 0}, {0, 1}, {0, 0},
	}
	y := []int{1, 1, 1, 0, 0, 0}

	tree, err := fitTree(rows, y, treeOptions{MinSamplesSplit: 2, MaxDepth: 4})
	if err != nil {
		t.Fatalf("fitTree() error = %v", err)
	}
	if tree.IsLeaf() {
		t.Fatalf("tree did not split")
	}
	if tree.Feature != 0 {
		t.Fatalf("split feature = %d, want 0", tree.Feature)
	}
	if p := treePredictProb(tree, []float64{1, 0}); p != 1 {
		t.Fatalf("P(pos) = %v, want 1", p)
	}
	if p := treePredictProb(tree, []float64{0, 1}); p != 0 {
		t.Fatalf("P(neg) = %v, want 0", p)
	}
}

func TestFitTreeRespectsMinSamplesSplit(t *testing.T) {
	rows := [][]float64{{1}, {0}, {1}, {0}}
	y := []int{1, 0, 1, 0}
	tree, err := fitTree(rows, y, treeOptions{MinSamplesSplit: 5, MaxDepth: 4})
	if err != nil {
		t.Fatalf("fitTree() error = %v", err)
	}
	if !tree.IsLeaf() {
		t.Fatalf("tree split %d samples below min_samples_split", tree.Samples)
	}
	if tree.ProbPos != 0.5 {
		t.Fatalf("leaf probability = %v, want 0.5", tree.ProbPos)
	}
}

func TestFitTreeRespectsMaxDepth(t *testing.T) {
	// XOR-ish data needs depth 2; cap at 1.
	rows := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	y := []int{0, 1, 1, 0}
	tree, err := fitTree(rows, y, treeOptions{MinSamplesSplit: 2, MaxDepth: 1})
	if err != nil {
		t.Fatalf("fitTree() error = %v", err)
	}
	depth := treeDepth(tree)
	if depth > 1 {
		t.Fatalf("tree depth = %d, want <= 1", depth)
	}
}

func treeDepth(n interface {
	IsLeaf() bool
	NodeCount() int
}) int {
	// NodeCount of a depth-1 tree is at most 3.
	if n.IsLeaf() {
		return 0
	}
	if n.NodeCount() <= 3 {
		return 1
	}
	return 2
}

func TestTreeDiagnosticsSeparateFromCoefs(t *testing.T) {
	rows := [][]float64{{1}, {1}, {0}, {0}, {1}, {0}}
	y := []int{1, 1, 0, 0, 1, 0}
	tree, err := fitTree(rows, y, treeOptions{MinSamplesSplit: 2, MaxDepth: 2})
	if err != nil {
		t.Fatalf("fitTree() error = %v", err)
	}
	if tree.NodeCount() < 3 {
		t.Fatalf("NodeCount() = %d, want >= 3", tree.NodeCount())
	}
	feats := tree.InternalFeatures()
	if len(feats) == 0 || feats[0] != 0 {
		t.Fatalf("InternalFeatures() = %v, want [0 ...]", feats)
	}
}
