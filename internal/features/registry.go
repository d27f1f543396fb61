package features

import (
	"slunerd/internal/logging"
)

// Registry interns features into dense indices and prunes them by training
// count. It is append-only while counting and frozen once indices have been
// assigned.
type Registry struct {
	// FeatureIdxs assigns 0-based dense indices to surviving features.
	FeatureIdxs map[Feature]int

	// FeatCounts holds training-set occurrence counts.
	FeatCounts map[Feature]int

	// Idx2Feature is the inverse of FeatureIdxs.
	Idx2Feature []Feature

	frozen bool
}

// NewRegistry returns an empty registry in the counting phase.
func NewRegistry() *Registry {
	return &Registry{
		FeatureIdxs: make(map[Feature]int),
		FeatCounts:  make(map[Feature]int),
	}
}

// Count increments occurrence counts for every feature of one example.
func (r *Registry) Count(vec Vector) {
	for f := range vec {
		r.FeatCounts[f]++
	}
}

// Prune drops features occurring fewer times than their applicable
// threshold and assigns contiguous indices to the survivors. Features whose
// set index is in concSets use the concrete threshold; others the abstract
// one. After pruning the registry is frozen.
func (r *Registry) Prune(minCount, minConcCount int, concSets map[int]bool) {
	timer := logging.StartTimer(logging.CategoryFeatures, "Registry.Prune")
	defer timer.Stop()

	before := len(r.FeatCounts)
	kept := make(map[Feature]int, len(r.FeatCounts))
	for f, count := range r.FeatCounts {
		threshold := minCount
		if concSets[f.Set] {
			threshold = minConcCount
		}
		if count >= threshold {
			kept[f] = count
		}
	}
	r.FeatCounts = kept

	r.FeatureIdxs = make(map[Feature]int, len(kept))
	r.Idx2Feature = make([]Feature, 0, len(kept))
	for _, f := range sortedFeatures(kept) {
		r.FeatureIdxs[f] = len(r.Idx2Feature)
		r.Idx2Feature = append(r.Idx2Feature, f)
	}
	r.frozen = true

	logging.Features("pruned features: %d -> %d (min=%d, min_conc=%d)",
		before, len(kept), minCount, minConcCount)
}

// NewFrozenRegistry rebuilds a frozen registry from a stored index order,
// e.g. when loading a model. Counts are not recovered.
func NewFrozenRegistry(idx2feature []Feature) *Registry {
	r := &Registry{
		FeatureIdxs: make(map[Feature]int, len(idx2feature)),
		FeatCounts:  make(map[Feature]int),
		Idx2Feature: idx2feature,
		frozen:      true,
	}
	for idx, f := range idx2feature {
		r.FeatureIdxs[f] = idx
	}
	return r
}

// Frozen reports whether indices have been assigned.
func (r *Registry) Frozen() bool { return r.frozen }

// Size returns the number of features in use.
func (r *Registry) Size() int { return len(r.FeatureIdxs) }

// SparseRow converts a vector to parallel (index, value) slices over the
// registry's index space, dropping unregistered features. Indices ascend.
func (r *Registry) SparseRow(vec Vector) ([]int, []float64) {
	idxs := make([]int, 0, len(vec))
	vals := make([]float64, 0, len(vec))
	for _, f := range sortedFeatures(vec) {
		idx, ok := r.FeatureIdxs[f]
		if !ok {
			continue
		}
		idxs = append(idxs, idx)
		vals = append(vals, vec[f])
	}
	// sortedFeatures orders by (set, tag); re-order by index.
	for i := 1; i < len(idxs); i++ {
		for j := i; j > 0 && idxs[j] < idxs[j-1]; j-- {
			idxs[j], idxs[j-1] = idxs[j-1], idxs[j]
			vals[j], vals[j-1] = vals[j-1], vals[j]
		}
	}
	return idxs, vals
}

// DenseRow converts a vector to a dense slice over the registry's index
// space.
func (r *Registry) DenseRow(vec Vector) []float64 {
	row := make([]float64, len(r.FeatureIdxs))
	for f, val := range vec {
		if idx, ok := r.FeatureIdxs[f]; ok {
			row[idx] = val
		}
	}
	return row
}
