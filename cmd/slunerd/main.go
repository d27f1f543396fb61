// slunerd is the command-line wrapper around the SLU core: it trains
// per-item dialogue act classifiers from transcribed utterances and decodes
// utterances into confusion networks of dialogue act items.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"slunerd/internal/config"
	"slunerd/internal/da"
	"slunerd/internal/logging"
	"slunerd/internal/model"
	"slunerd/internal/slu"
	"slunerd/internal/utterance"
)

var (
	verbose    bool
	configPath string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "slunerd",
	Short: "slunerd - dialogue act item classification for spoken language understanding",
	Long: `slunerd maps user utterances to confusion networks of dialogue act
items. It trains one binary classifier per dialogue act item observed in
training data, with slot values abstracted into category labels so that one
generic classifier covers all realisations of a slot.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Workspace, cfg.LoggingSettings()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var (
	trainData   string
	trainDB     string
	trainOut    string
	trainReduce bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train classifiers from a transcript file",
	Long: `Reads tab-separated "utterance<TAB>dialogue act" lines, trains one
classifier per dialogue act item, and writes the model artefact. A category
label database turns slot values into generic classifiers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		clser := slu.New(slu.Options{
			Preprocessing: loadPreprocessor(trainDB),
			ClserType:     cfg.Classifier.Type,
			FeaturesType:  cfg.Classifier.FeaturesType,
			FeaturesSize:  cfg.Classifier.FeaturesSize,
			Abstractions:  cfg.Classifier.Abstractions,
		})

		utts, das, err := readTranscripts(trainData)
		if err != nil {
			return err
		}
		logger.Info("loaded training data",
			zap.String("path", trainData), zap.Int("utterances", len(utts)))

		if err := clser.ExtractFeatures(slu.TrainingSet{Utterances: utts, DAs: das}); err != nil {
			return err
		}
		clser.PruneFeatures(cfg.Training.MinFeatureCount, cfg.Training.MinConcFeatureCount)
		clser.PruneClassifiers(cfg.Training.MinDAICount,
			cfg.Training.MinCorrectDAICount, cfg.Training.MinIncorrectDAICount, nil)

		report, err := clser.Train(slu.TrainOptions{
			Sparsification:       cfg.Training.Sparsification,
			MinFeatureCount:      cfg.Training.MinFeatureCount,
			MinCorrectDAICount:   cfg.Training.MinCorrectDAICount,
			MinIncorrectDAICount: cfg.Training.MinIncorrectDAICount,
			Balance:              cfg.Training.Balance,
			Calibrate:            cfg.Training.Calibrate,
			Seed:                 cfg.Training.Seed,
			Parallelism:          cfg.Training.Parallelism,
		})
		if err != nil {
			return err
		}
		logger.Info("training finished",
			zap.String("run", report.RunID),
			zap.Int("trained", report.Trained),
			zap.Int("skipped", report.Skipped),
			zap.Int("nonzero_params", report.TotalNonzeroParams()))
		for _, res := range report.Results {
			if !res.Ok() {
				logger.Warn("classifier skipped",
					zap.String("dai", res.DAI.Key()), zap.String("reason", string(res.Skip)))
			} else if verbose {
				logger.Debug("classifier trained",
					zap.String("dai", res.DAI.Key()),
					zap.Int("support", res.Diag.Support),
					zap.Float64("f_score", res.Diag.FScore))
			}
		}

		return clser.SaveModel(trainOut, trainReduce, nil)
	},
}

var (
	parseModel   string
	parseDB      string
	parseCombine string
)

var parseCmd = &cobra.Command{
	Use:   "parse [utterance]",
	Short: "Decode an utterance into a confusion network of dialogue act items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clser := slu.New(slu.Options{Preprocessing: loadPreprocessor(parseDB)})
		if err := clser.LoadModel(parseModel); err != nil {
			return err
		}

		confnet, _, err := clser.Parse1Best(utterance.New(args[0]), &slu.ParseOptions{
			Combine: da.CombineMethod(parseCombine),
		})
		if err != nil {
			return err
		}
		for _, item := range confnet.Items() {
			fmt.Printf("%.4f  %s\n", item.Prob, item.DAI)
		}
		return nil
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect model artefacts",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info [path]",
	Short: "Print model metadata and classifier inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact, err := model.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("classifier type: %s\n", artifact.ClserType)
		fmt.Printf("features: %d (type %v, size %d)\n",
			artifact.NumFeatures(), artifact.FeaturesType, artifact.FeaturesSize)
		fmt.Printf("abstractions: %v\n", artifact.Abstractions)
		if artifact.TrainingRunID != "" {
			fmt.Printf("training run: %s\n", artifact.TrainingRunID)
		}
		fmt.Printf("classifiers: %d\n", len(artifact.Classifiers))
		for _, c := range artifact.Classifiers {
			extra := ""
			if artifact.ClserType == "logistic" {
				extra = fmt.Sprintf("nonzero=%d", c.Coefs.Nonzero())
			} else if c.Tree != nil {
				extra = fmt.Sprintf("nodes=%d", c.Tree.NodeCount())
			}
			fmt.Printf("  %-40s threshold=%.3f %s\n",
				formatDAI(c.DAI), c.Threshold, extra)
		}
		return nil
	},
}

func formatDAI(rec model.DAIRecord) string {
	item := da.DialogueActItem{
		ActType: rec.ActType,
		Slot:    rec.Slot,
		Value:   rec.Value,
		Generic: rec.Generic,
	}
	return item.String()
}

// readTranscripts parses tab-separated "utterance<TAB>dialogue act" lines.
func readTranscripts(path string) (map[string]utterance.Utterance, map[string]*da.DialogueAct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening training data %s: %w", path, err)
	}
	defer f.Close()

	utts := make(map[string]utterance.Utterance)
	das := make(map[string]*da.DialogueAct)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("%s:%d: expected utterance<TAB>dialogue act", path, lineNo)
		}
		act, err := da.ParseDA(parts[1])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		id := fmt.Sprintf("utt-%06d", lineNo)
		utts[id] = utterance.New(parts[0])
		das[id] = act
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return utts, das, nil
}

// loadPreprocessor builds the rule preprocessor from a category label
// database file of "LABEL<TAB>value<TAB>surface;surface" lines. An empty
// path disables preprocessing.
func loadPreprocessor(path string) utterance.Preprocessor {
	if path == "" {
		return nil
	}
	p := utterance.NewRulePreprocessor()
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot open category label database %s: %v\n", path, err)
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		var surfaces []string
		if len(parts) > 2 {
			surfaces = strings.Split(parts[2], ";")
		}
		p.AddEntry(parts[0], parts[1], surfaces...)
	}
	return p
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")

	trainCmd.Flags().StringVar(&trainData, "data", "", "Tab-separated training transcripts (required)")
	trainCmd.Flags().StringVar(&trainDB, "db", "", "Category label database")
	trainCmd.Flags().StringVar(&trainOut, "model", "slu-model.json.gz", "Output model path")
	trainCmd.Flags().BoolVar(&trainReduce, "reduce", true, "Drop features unused by any classifier before saving")
	_ = trainCmd.MarkFlagRequired("data")

	parseCmd.Flags().StringVar(&parseModel, "model", "slu-model.json.gz", "Model path")
	parseCmd.Flags().StringVar(&parseDB, "db", "", "Category label database")
	parseCmd.Flags().StringVar(&parseCombine, "combine", "max", "Probability merge method (new, max, add, arit, harm)")

	modelCmd.AddCommand(modelInfoCmd)
	rootCmd.AddCommand(trainCmd, parseCmd, modelCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
