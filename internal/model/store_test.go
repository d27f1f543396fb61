package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logisticArtifact() *Artifact {
	return &Artifact{
		ClserType: "logistic",
		Features: []FeatureEntry{
			{Set: 0, Tag: "to CITY", Idx: 0},
			{Set: 1, Tag: "hello", Idx: 1},
			{Set: 1, Tag: "unused", Idx: 2},
		},
		Classifiers: []ClassifierRecord{
			{
				DAI:       DAIRecord{ActType: "hello"},
				Intercept: -0.5,
				Coefs:     SparseVector{Idx: []int{1}, Val: []float64{2.5}},
				Threshold: 0.45,
			},
			{
				DAI:       DAIRecord{ActType: "inform", Slot: "to", Value: "CITY", Generic: true},
				Intercept: 0.25,
				Coefs:     SparseVector{Idx: []int{0}, Val: []float64{1.5}},
				Threshold: 0.5,
			},
		},
		FeaturesType:  []string{"ngram"},
		FeaturesSize:  4,
		Abstractions:  []string{"concrete", "abstract"},
		TrainingRunID: "run-1",
	}
}

func TestSaveLoadV4(t *testing.T) {
	for _, name := range []string{"model.json", "model.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			a := logisticArtifact()
			require.NoError(t, Save(path, a, nil))

			loaded, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, a.ClserType, loaded.ClserType)
			assert.Equal(t, a.Features, loaded.Features)
			assert.Equal(t, a.FeaturesType, loaded.FeaturesType)
			assert.Equal(t, a.FeaturesSize, loaded.FeaturesSize)
			assert.Equal(t, a.Abstractions, loaded.Abstractions)
			assert.Equal(t, a.TrainingRunID, loaded.TrainingRunID)
			require.Len(t, loaded.Classifiers, 2)
			loaded.SortClassifiers()
			a.SortClassifiers()
			assert.Equal(t, a.Classifiers, loaded.Classifiers)
		})
	}
}

func TestGzipBySuffixOnly(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "model.json")
	zipped := filepath.Join(dir, "model.json.gz")
	a := logisticArtifact()
	require.NoError(t, Save(plain, a, nil))
	require.NoError(t, Save(zipped, a, nil))

	plainData, err := os.ReadFile(plain)
	require.NoError(t, err)
	zippedData, err := os.ReadFile(zipped)
	require.NoError(t, err)

	assert.Equal(t, byte('{'), plainData[0])
	require.GreaterOrEqual(t, len(zippedData), 2)
	assert.Equal(t, []byte{0x1f, 0x8b}, zippedData[:2], "gzip magic missing")

	// Explicit override beats the suffix.
	forced := filepath.Join(dir, "forced.json")
	gz := true
	require.NoError(t, Save(forced, a, &gz))
	forcedData, err := os.ReadFile(forced)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1f, 0x8b}, forcedData[:2])
}

func TestSaveLoadTreeModel(t *testing.T) {
	a := &Artifact{
		ClserType: "tree",
		Features:  []FeatureEntry{{Set: 0, Tag: "hello", Idx: 0}},
		Classifiers: []ClassifierRecord{{
			DAI: DAIRecord{ActType: "hello"},
			Tree: &TreeNode{
				Feature:   0,
				Threshold: 0.5,
				Left:      &TreeNode{ProbPos: 0.1, Samples: 3},
				Right:     &TreeNode{ProbPos: 0.9, Samples: 3},
				Samples:   6,
			},
			Threshold: 0.5,
		}},
		FeaturesType: []string{"ngram"},
		FeaturesSize: 2,
		Abstractions: []string{"concrete", "abstract"},
	}
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, Save(path, a, nil))
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Classifiers, 1)
	tree := loaded.Classifiers[0].Tree
	require.NotNil(t, tree)
	assert.Equal(t, 3, tree.NodeCount())
	assert.Equal(t, 0.9, tree.Right.ProbPos)
}

func TestReducePreservesDots(t *testing.T) {
	a := logisticArtifact()
	x := []float64{0.5, -2, 7} // over the original index space

	type dot struct {
		intercept float64
		val       float64
	}
	before := make(map[string]dot)
	for _, c := range a.Classifiers {
		before[daiRecordKey(c.DAI)] = dot{c.Intercept, c.Coefs.Dot(x)}
	}

	a.Reduce()
	assert.Len(t, a.Features, 2, "unused feature not dropped")

	// Rebuild the input over the compacted index space.
	xNew := make([]float64, len(a.Features))
	orig := map[string]float64{"to CITY": 0.5, "hello": -2, "unused": 7}
	for _, f := range a.Features {
		xNew[f.Idx] = orig[f.Tag]
	}
	for _, c := range a.Classifiers {
		want := before[daiRecordKey(c.DAI)]
		assert.Equal(t, want.intercept, c.Intercept)
		assert.Equal(t, want.val, c.Coefs.Dot(xNew), "dot changed for %s", daiRecordKey(c.DAI))
	}
}

func TestReduceNoopForTrees(t *testing.T) {
	a := &Artifact{
		ClserType: "tree",
		Features:  []FeatureEntry{{Set: 0, Tag: "x", Idx: 0}, {Set: 0, Tag: "y", Idx: 1}},
	}
	a.Reduce()
	assert.Len(t, a.Features, 2)
}

func writeVersioned(t *testing.T, dir, version string, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(map[string]any{"version": version, "payload": json.RawMessage(raw)})
	require.NoError(t, err)
	path := filepath.Join(dir, fmt.Sprintf("model-%s.json", version))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoadLegacyVersions(t *testing.T) {
	dir := t.TempDir()

	classifiers := map[string]any{
		"hello(=)": map[string]any{
			"dai":       map[string]any{"act_type": "hello"},
			"intercept": -1.0,
			"coefs":     map[string]any{"idx": []int{0}, "val": []float64{2.0}},
		},
	}
	base := map[string]any{
		"feature_idxs":  []map[string]any{{"set": 0, "tag": "hello", "idx": 0}},
		"classifiers":   classifiers,
		"features_type": "ngram", // historical single keyword
		"features_size": 4,
	}

	cases := []struct {
		version string
		extra   map[string]any
	}{
		{"0", map[string]any{"features_list": []string{"dead"}}},
		{"1", map[string]any{"features_list": []string{"dead"}, "cls_threshold": 0.4}},
		{"2", map[string]any{"features_list": []string{"dead"}, "clser_type": "logistic", "cls_threshold": 0.4}},
		{"3.0", map[string]any{"clser_type": "logistic", "cls_threshold": 0.4, "abstractions": []string{"concrete", "abstract"}}},
		{"3.1", map[string]any{"clser_type": "logistic", "cls_threshold": map[string]float64{"hello(=)": 0.37}, "abstractions": []string{"concrete", "abstract"}}},
		{"DSTC13", map[string]any{"features_list": []string{"dead"}, "clser_type": "logistic", "cls_threshold": 0.4, "abstractions": []string{"concrete", "abstract"}}},
		{"DSTC13.2", map[string]any{"clser_type": "logistic", "cls_threshold": 0.4, "abstractions": []string{"concrete", "abstract"}}},
	}

	for _, tc := range cases {
		t.Run(tc.version, func(t *testing.T) {
			payload := map[string]any{}
			for k, v := range base {
				payload[k] = v
			}
			for k, v := range tc.extra {
				payload[k] = v
			}
			path := writeVersioned(t, dir, tc.version, payload)

			a, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "logistic", a.ClserType)
			assert.Equal(t, []string{"ngram"}, a.FeaturesType)
			require.Len(t, a.Classifiers, 1)
			c := a.Classifiers[0]
			assert.Equal(t, "hello", c.DAI.ActType)
			assert.Equal(t, -1.0, c.Intercept)

			if tc.version == "3.1" {
				assert.Equal(t, 0.37, c.Threshold)
			} else {
				// Scalar legacy thresholds are superseded by the default.
				assert.Equal(t, DefaultThreshold, c.Threshold)
			}
			// Abstractions default in pre-DSTC formats.
			assert.Equal(t, []string{"concrete", "abstract"}, a.Abstractions)
		})
	}
}

func TestLoadUnknownVersionFails(t *testing.T) {
	dir := t.TempDir()
	path := writeVersioned(t, dir, "99", map[string]any{})
	_, err := Load(path)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "99", verr.Version)
}

func TestVersionErrorIsFatal(t *testing.T) {
	err := error(&VersionError{Version: "abc"})
	var verr *VersionError
	assert.True(t, errors.As(err, &verr))
}
