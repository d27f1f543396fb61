// Package config loads and validates the SLU core configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"slunerd/internal/logging"
)

// Config holds all SLU configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Workspace is the root directory for logs and artefacts.
	Workspace string `yaml:"workspace"`

	// Classifier configuration
	Classifier ClassifierConfig `yaml:"classifier"`

	// Training configuration
	Training TrainingConfig `yaml:"training"`

	// Decoding configuration
	Decoding DecodingConfig `yaml:"decoding"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ClassifierConfig selects the learner and the feature space.
type ClassifierConfig struct {
	// Type is "logistic" or "tree".
	Type string `yaml:"type"`

	// FeaturesType lists the feature sources to assemble. Recognised
	// keywords: ngram, prev_da, utt_nbl, da_nbl, da_nbl_orig.
	FeaturesType []string `yaml:"features_type"`

	// FeaturesSize is the maximum n-gram order.
	FeaturesSize int `yaml:"features_size"`

	// Abstractions is a subset of {concrete, partial, abstract}.
	Abstractions []string `yaml:"abstractions"`
}

// TrainingConfig holds the trainer's knobs.
type TrainingConfig struct {
	Sparsification       float64 `yaml:"sparsification"`
	MinFeatureCount      int     `yaml:"min_feature_count"`
	MinConcFeatureCount  int     `yaml:"min_conc_feature_count"`
	MinDAICount          int     `yaml:"min_dai_count"`
	MinCorrectDAICount   int     `yaml:"min_correct_dai_count"`
	MinIncorrectDAICount int     `yaml:"min_incorrect_dai_count"`
	Balance              bool    `yaml:"balance"`
	Calibrate            bool    `yaml:"calibrate"`
	Seed                 int64   `yaml:"seed"`
	Parallelism          int     `yaml:"parallelism"`
}

// DecodingConfig holds decode-time settings.
type DecodingConfig struct {
	// ProbCombine is one of new, max, add, arit, harm.
	ProbCombine string `yaml:"prob_combine"`
}

// LoggingConfig mirrors logging.Settings with yaml tags.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "slunerd",
		Version:   "1.0.0",
		Workspace: ".",

		Classifier: ClassifierConfig{
			Type:         "logistic",
			FeaturesType: []string{"ngram"},
			FeaturesSize: 4,
			Abstractions: []string{"concrete", "abstract"},
		},

		Training: TrainingConfig{
			Sparsification:       1.0,
			MinFeatureCount:      5,
			MinConcFeatureCount:  4,
			MinDAICount:          5,
			MinCorrectDAICount:   1,
			MinIncorrectDAICount: 1,
			Balance:              true,
			Calibrate:            true,
			Seed:                 42,
			Parallelism:          0, // 0 = GOMAXPROCS
		},

		Decoding: DecodingConfig{
			ProbCombine: "max",
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads a YAML config file, applying defaults for missing fields and
// environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets a few settings be flipped without editing the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SLUNERD_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("SLUNERD_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Training.Seed = seed
		}
	}
	if v := os.Getenv("SLUNERD_WORKSPACE"); v != "" {
		c.Workspace = v
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Classifier.Type {
	case "logistic", "tree":
	default:
		return fmt.Errorf("unknown classifier type %q", c.Classifier.Type)
	}
	if c.Classifier.FeaturesSize < 1 {
		return fmt.Errorf("features_size must be >= 1, got %d", c.Classifier.FeaturesSize)
	}
	for _, a := range c.Classifier.Abstractions {
		switch a {
		case "concrete", "partial", "abstract":
		default:
			return fmt.Errorf("unknown abstraction %q", a)
		}
	}
	switch c.Decoding.ProbCombine {
	case "new", "max", "add", "arit", "harm":
	default:
		return fmt.Errorf("unknown prob_combine method %q", c.Decoding.ProbCombine)
	}
	if c.Training.Sparsification <= 0 {
		return fmt.Errorf("sparsification must be positive, got %v", c.Training.Sparsification)
	}
	return nil
}

// LoggingSettings converts the logging section for logging.Initialize.
func (c *Config) LoggingSettings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.Logging.DebugMode,
		Categories: c.Logging.Categories,
		Level:      c.Logging.Level,
	}
}
