package slu

import (
	"fmt"
	"math/rand"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"slunerd/internal/da"
	"slunerd/internal/features"
	"slunerd/internal/logging"
	"slunerd/internal/model"
	"slunerd/internal/utterance"
)

// TrainOptions holds the trainer's knobs.
type TrainOptions struct {
	// Sparsification is the inverse L1 regularisation strength.
	Sparsification float64

	// MinFeatureCount is the per-classifier adaptive pruning threshold.
	// Non-positive selects the default remembered from PruneFeatures.
	MinFeatureCount int

	// MinCorrectDAICount / MinIncorrectDAICount are the minimum numbers of
	// positive / negative rows required to fit a classifier.
	MinCorrectDAICount   int
	MinIncorrectDAICount int

	// Balance enables oversampling the minority class.
	Balance bool

	// Calibrate enables per-classifier threshold calibration.
	Calibrate bool

	// Seed seeds the sampling generator, making balancing reproducible.
	Seed int64

	// Parallelism bounds concurrent per-classifier fits; 0 means
	// GOMAXPROCS.
	Parallelism int
}

// DefaultTrainOptions returns the standard training configuration.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Sparsification: 1.0,
		Balance:        true,
		Calibrate:      true,
		Seed:           42,
	}
}

// SkipReason explains why a classifier was not trained.
type SkipReason string

const (
	SkipNone         SkipReason = ""
	SkipFewPositives SkipReason = "not enough positive examples"
	SkipFewNegatives SkipReason = "not enough negative examples"
	SkipNoFeatures   SkipReason = "no features survived adaptive pruning"
	SkipFitFailed    SkipReason = "fit failed"
)

// Diagnostics summarises one classifier's fit.
type Diagnostics struct {
	Support   int // training rows before balancing
	Positives int
	Negatives int
	FeatsUsed int // columns surviving adaptive pruning

	Accuracy  float64
	Precision float64
	Recall    float64
	FScore    float64

	NonzeroCoefs int // logistic only
	TreeNodes    int // tree only
}

// FitResult is the outcome for one catalogued item: a trained classifier or
// an explicit skip.
type FitResult struct {
	DAI        da.DialogueActItem
	Classifier *TrainedClassifier
	Skip       SkipReason
	Err        error
	Diag       Diagnostics
}

// Ok reports whether a classifier was produced.
func (r FitResult) Ok() bool { return r.Classifier != nil }

// TrainReport collates the per-item outcomes of one training run.
type TrainReport struct {
	RunID   string
	Results []FitResult

	Trained int
	Skipped int

	// CoefsAbsSum accumulates |coefficients| across logistic classifiers,
	// for the total non-zero parameter diagnostic.
	CoefsAbsSum []float64
}

// TotalNonzeroParams counts feature indices carrying weight in any
// classifier.
func (r *TrainReport) TotalNonzeroParams() int {
	return countNonzero(r.CoefsAbsSum)
}

// Train fits one binary classifier per catalogued item. Per-item failures
// are collected as skips; only configuration problems abort the run. The
// shared registry and catalogue are read-only during the (parallel) fitting
// phase.
func (c *Classifier) Train(opts TrainOptions) (*TrainReport, error) {
	timer := logging.StartTimer(logging.CategoryTraining, "Train")
	defer timer.Stop()

	if !c.registry.Frozen() {
		return nil, &ConfigurationError{Msg: "features must be extracted and pruned before training"}
	}
	if opts.Sparsification <= 0 {
		return nil, &ConfigurationError{Msg: fmt.Sprintf("non-positive sparsification %v", opts.Sparsification)}
	}
	if opts.MinFeatureCount <= 0 {
		opts.MinFeatureCount = c.defaultMinFeatCount
	}
	if opts.MinCorrectDAICount <= 0 {
		opts.MinCorrectDAICount = c.defaultMinCorrectDAICount
	}
	if opts.MinIncorrectDAICount <= 0 {
		opts.MinIncorrectDAICount = c.defaultMinIncorrectDAICount
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	items := c.DAICounts().Items()
	report := &TrainReport{
		RunID:       uuid.NewString(),
		Results:     make([]FitResult, len(items)),
		CoefsAbsSum: make([]float64, c.registry.Size()),
	}
	c.trained = make(map[string]*TrainedClassifier, len(items))

	logging.Training("training %d classifiers (run %s, parallelism %d)",
		len(items), report.RunID, parallelism)

	// Each worker writes exclusively to its own result slot; the shared
	// registry, catalogue and training inputs are read-only here.
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			report.Results[i] = c.trainOne(item, opts, rng)
			return nil
		})
	}
	// Workers never return errors; per-item failures live in the results.
	_ = g.Wait()

	for _, res := range report.Results {
		if !res.Ok() {
			report.Skipped++
			logging.Training("skipped %s: %s", res.DAI.Key(), res.Skip)
			continue
		}
		report.Trained++
		c.trained[res.DAI.Key()] = res.Classifier
		if c.clserType == ClserLogistic {
			dense := make([]float64, c.registry.Size())
			for k, j := range res.Classifier.Coefs.Idx {
				dense[j] = res.Classifier.Coefs.Val[k]
			}
			absSumInto(report.CoefsAbsSum, dense)
		}
		logging.Training("trained %s: support=%d (pos=%d, neg=%d), feats=%d, F=%.3f",
			res.DAI.Key(), res.Diag.Support, res.Diag.Positives, res.Diag.Negatives,
			res.Diag.FeatsUsed, res.Diag.FScore)
	}
	c.trainingRunID = report.RunID

	logging.Training("done: %d trained, %d skipped, %d non-zero params",
		report.Trained, report.Skipped, report.TotalNonzeroParams())
	return report, nil
}

// compatibleInsts enumerates the instantiations of one abstracted input
// that are compatible with the item's slot.
func compatibleInsts(item da.DialogueActItem, abutt utterance.AbstractedInput) []utterance.Instantiation {
	catlabWords := categoryLabelWords(item)
	if len(catlabWords) == 0 || abutt == nil {
		return nil
	}
	if item.IsCategoryLabel() {
		return abutt.InstsForType(catlabWords)
	}
	valueWords := strings.Fields(item.FirstOrigValue())
	return abutt.InstsForTypeval(catlabWords, valueWords)
}

// categoryLabelWords returns the item's category label as tokens: the value
// itself for generic items, the label tag for concrete ones.
func categoryLabelWords(item da.DialogueActItem) []string {
	if item.IsCategoryLabel() {
		return strings.Fields(item.Value)
	}
	return strings.Fields(item.CategoryLabel)
}

// trainOne builds the training rows for one item, fits and calibrates its
// classifier.
func (c *Classifier) trainOne(item da.DialogueActItem, opts TrainOptions, rng *rand.Rand) FitResult {
	res := FitResult{DAI: item}

	matrix := newSparseMatrix(c.registry.Size())
	var labels []int
	for _, id := range c.uttIDs {
		var insts []utterance.Instantiation
		if c.abutterances != nil {
			insts = compatibleInsts(item, c.abutterances[id])
		}
		if len(insts) == 0 {
			vec, err := c.assembler.Extract(c.exampleFor(id), features.SelectNone())
			if err != nil {
				res.Skip, res.Err = SkipFitFailed, err
				return res
			}
			idxs, vals := c.registry.SparseRow(vec)
			matrix.AppendRow(idxs, vals)
			labels = append(labels, boolToLabel(c.das[id].Contains(item)))
			continue
		}
		for _, inst := range insts {
			candidate := da.NewDAI(item.ActType, item.Slot, strings.Join(inst.Value, " ")).
				WithCategoryLabel(categoryLabelString(item))
			vec, err := c.assembler.Extract(c.exampleFor(id), features.SelectInst(inst.Type, inst.Value))
			if err != nil {
				res.Skip, res.Err = SkipFitFailed, err
				return res
			}
			idxs, vals := c.registry.SparseRow(vec)
			matrix.AppendRow(idxs, vals)
			labels = append(labels, boolToLabel(c.das[id].Contains(candidate)))
		}
	}

	// Sufficiency check.
	nPos := 0
	for _, l := range labels {
		nPos += l
	}
	nNeg := len(labels) - nPos
	res.Diag.Support = len(labels)
	res.Diag.Positives = nPos
	res.Diag.Negatives = nNeg
	if nPos < opts.MinCorrectDAICount {
		res.Skip = SkipFewPositives
		return res
	}
	if nNeg < opts.MinIncorrectDAICount {
		res.Skip = SkipFewNegatives
		return res
	}

	// Adaptive per-item feature pruning: drop columns with too few finite
	// non-zero entries, clip the rest.
	occs := matrix.ColumnOccurrences()
	drop := make([]bool, len(occs))
	used := 0
	for j, n := range occs {
		if n > 0 {
			if n < opts.MinFeatureCount {
				drop[j] = true
			} else {
				used++
			}
		}
	}
	res.Diag.FeatsUsed = used
	if used == 0 {
		res.Skip = SkipNoFeatures
		return res
	}
	matrix.ZeroColumnsAndClip(drop)
	matrix.EliminateZeros()

	// Balance the data.
	fitMatrix, fitLabels := matrix, labels
	if opts.Balance {
		fitMatrix, fitLabels = balanceData(matrix, labels, rng)
	}

	// Fit.
	tc := &TrainedClassifier{DAI: item, Threshold: 0.5}
	switch c.clserType {
	case ClserLogistic:
		intercept, coefs, err := fitLogisticL1(fitMatrix, fitLabels, logisticOptions{
			C:   opts.Sparsification,
			Tol: 1e-6,
		})
		if err != nil {
			res.Skip, res.Err = SkipFitFailed, &FitError{DAI: item.Key(), Err: err}
			return res
		}
		tc.Intercept = intercept
		tc.Coefs = denseToSparseVec(coefs)
		res.Diag.NonzeroCoefs = countNonzero(coefs)
	case ClserTree:
		tree, err := fitTree(fitMatrix.DenseRows(), fitLabels, defaultTreeOptions())
		if err != nil {
			res.Skip, res.Err = SkipFitFailed, &FitError{DAI: item.Key(), Err: err}
			return res
		}
		tc.Tree = tree
		res.Diag.TreeNodes = tree.NodeCount()
	default:
		res.Skip, res.Err = SkipFitFailed, &FitError{DAI: item.Key(), Err: fmt.Errorf("unknown classifier type %q", c.clserType)}
		return res
	}

	// Calibrate the threshold on the unbalanced rows.
	if opts.Calibrate {
		points := make([]calibPoint, matrix.rows)
		for i := 0; i < matrix.rows; i++ {
			points[i] = calibPoint{
				prob:  c.predictProbSparse(tc, matrix, i),
				label: labels[i],
			}
		}
		tc.Threshold = calibrateThreshold(points)
	}

	res.Diag = c.fitDiagnostics(res.Diag, tc, fitMatrix, fitLabels)
	res.Classifier = tc
	return res
}

// predictProbSparse evaluates a classifier on a row still held in sparse
// form.
func (c *Classifier) predictProbSparse(tc *TrainedClassifier, m *sparseMatrix, row int) float64 {
	if c.clserType == ClserTree {
		x := make([]float64, m.cols)
		idxs, vals := m.Row(row)
		for k, j := range idxs {
			x[j] = vals[k]
		}
		return treePredictProb(tc.Tree, x)
	}
	dense := make([]float64, m.cols)
	for k, j := range tc.Coefs.Idx {
		dense[j] = tc.Coefs.Val[k]
	}
	return sigmoid(tc.Intercept + m.RowDot(row, dense))
}

// fitDiagnostics computes training-set accuracy and P/R/F at threshold 0.5.
func (c *Classifier) fitDiagnostics(d Diagnostics, tc *TrainedClassifier, m *sparseMatrix, labels []int) Diagnostics {
	var tp, fp, fn, correct float64
	for i := 0; i < m.rows; i++ {
		prob := c.predictProbSparse(tc, m, i)
		pred := 0
		if prob > 0.5 {
			pred = 1
		}
		switch {
		case pred == labels[i]:
			correct++
			if pred == 1 {
				tp++
			}
		case pred == 1:
			fp++
		default:
			fn++
		}
	}
	d.Accuracy = correct / float64(m.rows)
	if tp+fp > 0 {
		d.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		d.Recall = tp / (tp + fn)
	}
	if d.Precision+d.Recall > 0 {
		d.FScore = 2 * d.Precision * d.Recall / (d.Precision + d.Recall)
	}
	return d
}

func denseToSparseVec(coefs []float64) model.SparseVector {
	v := model.SparseVector{}
	for j, c := range coefs {
		if c != 0 {
			v.Idx = append(v.Idx, j)
			v.Val = append(v.Val, c)
		}
	}
	return v
}

func boolToLabel(b bool) int {
	if b {
		return 1
	}
	return 0
}

func categoryLabelString(item da.DialogueActItem) string {
	return strings.Join(categoryLabelWords(item), " ")
}
