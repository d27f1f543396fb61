package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "logistic", cfg.Classifier.Type)
	assert.Equal(t, 4, cfg.Classifier.FeaturesSize)
	assert.Equal(t, []string{"concrete", "abstract"}, cfg.Classifier.Abstractions)
	assert.Equal(t, "max", cfg.Decoding.ProbCombine)
	assert.True(t, cfg.Training.Balance)
	assert.True(t, cfg.Training.Calibrate)
}

func TestLoadAppliesFilePartially(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slu.yaml")
	content := []byte("classifier:\n  type: tree\ntraining:\n  seed: 7\n")
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tree", cfg.Classifier.Type)
	assert.Equal(t, int64(7), cfg.Training.Seed)
	// Untouched fields keep defaults.
	assert.Equal(t, 4, cfg.Classifier.FeaturesSize)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name    string
		content string
	}{
		{"bad_clser", "classifier:\n  type: svm\n"},
		{"bad_abstraction", "classifier:\n  abstractions: [sideways]\n"},
		{"bad_combine", "decoding:\n  prob_combine: min\n"},
		{"bad_sparsification", "training:\n  sparsification: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SLUNERD_DEBUG", "true")
	t.Setenv("SLUNERD_SEED", "99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Logging.DebugMode)
	assert.Equal(t, int64(99), cfg.Training.Seed)
}
