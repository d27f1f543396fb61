// Package model implements the versioned on-disk artefact of the SLU core:
// feature indices, per-classifier parameters, decision thresholds and
// metadata. The current format is version 4; all historical versions are
// recognised and upgraded in-memory on load.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// CurrentVersion is the artefact version written by Save.
const CurrentVersion = "4"

// VersionError reports an unknown artefact version. Loading fails.
type VersionError struct {
	Version string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("model: unknown version of the SLU model file: %q", e.Version)
}

// FeatureEntry interns one feature: the producing feature-set index, the
// opaque tag, and the assigned dense index.
type FeatureEntry struct {
	Set int    `json:"set"`
	Tag string `json:"tag"`
	Idx int    `json:"idx"`
}

// SparseVector stores non-zero coefficients as parallel slices with
// ascending indices.
type SparseVector struct {
	Idx []int     `json:"idx"`
	Val []float64 `json:"val"`
}

// Dot computes the dot product with a dense vector.
func (v SparseVector) Dot(x []float64) float64 {
	s := 0.0
	for k, j := range v.Idx {
		if j < len(x) {
			s += v.Val[k] * x[j]
		}
	}
	return s
}

// Nonzero returns the number of stored coefficients.
func (v SparseVector) Nonzero() int { return len(v.Idx) }

// TreeNode is one node of a trained decision tree. Leaves have no children
// and carry the positive-class probability.
type TreeNode struct {
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	ProbPos   float64   `json:"prob_pos"`
	Samples   int       `json:"samples"`
}

// IsLeaf reports whether the node has no children.
func (t *TreeNode) IsLeaf() bool { return t.Left == nil && t.Right == nil }

// NodeCount returns the number of nodes in the subtree.
func (t *TreeNode) NodeCount() int {
	if t == nil {
		return 0
	}
	return 1 + t.Left.NodeCount() + t.Right.NodeCount()
}

// InternalFeatures lists the feature indices used by split nodes.
func (t *TreeNode) InternalFeatures() []int {
	var out []int
	var walk func(*TreeNode)
	walk = func(n *TreeNode) {
		if n == nil || n.IsLeaf() {
			return
		}
		out = append(out, n.Feature)
		walk(n.Left)
		walk(n.Right)
	}
	walk(t)
	return out
}

// DAIRecord serialises the identity of one dialogue act item.
type DAIRecord struct {
	ActType       string   `json:"act_type"`
	Slot          string   `json:"slot,omitempty"`
	Value         string   `json:"value,omitempty"`
	Generic       bool     `json:"generic,omitempty"`
	CategoryLabel string   `json:"category_label,omitempty"`
	OrigValues    []string `json:"orig_values,omitempty"`
}

// ClassifierRecord holds the trained parameters of one classifier.
type ClassifierRecord struct {
	DAI       DAIRecord    `json:"dai"`
	Intercept float64      `json:"intercept,omitempty"`
	Coefs     SparseVector `json:"coefs,omitempty"`
	Tree      *TreeNode    `json:"tree,omitempty"`
	Threshold float64      `json:"threshold"`
}

// Artifact is the version-agnostic in-memory form of a trained model.
type Artifact struct {
	ClserType    string
	Features     []FeatureEntry
	Classifiers  []ClassifierRecord
	FeaturesType []string
	FeaturesSize int
	Abstractions []string

	// TrainingRunID identifies the training run that produced the model.
	TrainingRunID string
}

// NumFeatures returns the size of the feature index space.
func (a *Artifact) NumFeatures() int { return len(a.Features) }

// SortClassifiers orders classifiers canonically by their item record.
func (a *Artifact) SortClassifiers() {
	sort.Slice(a.Classifiers, func(i, j int) bool {
		return daiRecordKey(a.Classifiers[i].DAI) < daiRecordKey(a.Classifiers[j].DAI)
	})
}

func daiRecordKey(d DAIRecord) string {
	return d.ActType + "(" + d.Slot + "=" + d.Value + ")"
}

// Reduce drops features that no classifier's coefficients use and remaps
// the surviving indices. Valid for logistic models only; tree models are
// returned unchanged.
func (a *Artifact) Reduce() {
	if a.ClserType != "logistic" {
		return
	}
	used := make(map[int]bool)
	for _, c := range a.Classifiers {
		for k, j := range c.Coefs.Idx {
			if c.Coefs.Val[k] != 0 {
				used[j] = true
			}
		}
	}
	usedSorted := make([]int, 0, len(used))
	for j := range used {
		usedSorted = append(usedSorted, j)
	}
	sort.Ints(usedSorted)
	remap := make(map[int]int, len(usedSorted))
	for order, j := range usedSorted {
		remap[j] = order
	}

	features := make([]FeatureEntry, 0, len(usedSorted))
	for _, f := range a.Features {
		if newIdx, ok := remap[f.Idx]; ok {
			f.Idx = newIdx
			features = append(features, f)
		}
	}
	a.Features = features

	for ci := range a.Classifiers {
		c := &a.Classifiers[ci]
		idx := make([]int, 0, c.Coefs.Nonzero())
		val := make([]float64, 0, c.Coefs.Nonzero())
		for k, j := range c.Coefs.Idx {
			if c.Coefs.Val[k] == 0 {
				continue
			}
			idx = append(idx, remap[j])
			val = append(val, c.Coefs.Val[k])
		}
		c.Coefs = SparseVector{Idx: idx, Val: val}
	}
}

// envelope is the outermost on-disk structure: the version tag picks the
// payload decoder.
type envelope struct {
	Version string          `json:"version"`
	Payload json.RawMessage `json:"payload"`
}
