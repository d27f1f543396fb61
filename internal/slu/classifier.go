package slu

import (
	"fmt"
	"sort"
	"strings"

	"slunerd/internal/da"
	"slunerd/internal/features"
	"slunerd/internal/logging"
	"slunerd/internal/model"
	"slunerd/internal/utterance"
)

// ClserType names for the supported learners.
const (
	ClserLogistic = "logistic"
	ClserTree     = "tree"
)

// Options configures a classifier.
type Options struct {
	// Preprocessing normalises text and substitutes category labels.
	// Optional; without it the classifier works on raw token sequences.
	Preprocessing utterance.Preprocessor

	// ClserType is "logistic" (default) or "tree".
	ClserType string

	// FeaturesType lists the feature sources (default: ngram).
	FeaturesType []string

	// FeaturesSize is the maximum n-gram order (default: 4).
	FeaturesSize int

	// Abstractions is a subset of {concrete, partial, abstract}
	// (default: concrete, abstract).
	Abstractions []string
}

// TrainedClassifier holds the immutable parameters of one fitted
// per-item classifier.
type TrainedClassifier struct {
	DAI       da.DialogueActItem
	Intercept float64
	Coefs     model.SparseVector
	Tree      *model.TreeNode
	Threshold float64
}

// Classifier learns one binary classifier per dialogue act item and decodes
// utterances into confusion networks of scored items.
type Classifier struct {
	preprocessing utterance.Preprocessor
	clserType     string
	assembler     *features.Assembler
	registry      *features.Registry
	catalogue     *Catalogue

	// Training inputs, read-only once training starts.
	uttIDs            []string
	utterances        map[string]utterance.Utterance
	abutterances      map[string]utterance.AbstractedInput
	das               map[string]*da.DialogueAct
	prevDAs           map[string]*da.DialogueAct
	uttNBLists        map[string]utterance.NBList
	daNBLists         map[string]da.NBestList
	daNBListsOrig     map[string]da.NBestList
	categoryLabels    map[string]utterance.CategoryLabelMap
	utteranceFeatures map[string]features.Vector

	// Trained classifiers keyed by the item's canonical form.
	trained       map[string]*TrainedClassifier
	trainingRunID string

	// Defaults remembered from explicit prune arguments.
	defaultMinFeatCount         int
	defaultMinCorrectDAICount   int
	defaultMinIncorrectDAICount int
}

// New creates a classifier with the given options.
func New(opts Options) *Classifier {
	if opts.ClserType == "" {
		opts.ClserType = ClserLogistic
	}
	if opts.FeaturesType == nil {
		opts.FeaturesType = []string{features.TypeNGram}
	}
	if opts.FeaturesSize == 0 {
		opts.FeaturesSize = 4
	}
	if opts.Abstractions == nil {
		opts.Abstractions = []string{features.AbstractionConcrete, features.AbstractionAbstract}
	}
	return &Classifier{
		preprocessing: opts.Preprocessing,
		clserType:     opts.ClserType,
		assembler:     features.NewAssembler(opts.FeaturesType, opts.FeaturesSize, opts.Abstractions),
		registry:      features.NewRegistry(),
		trained:       make(map[string]*TrainedClassifier),

		defaultMinFeatCount:         1,
		defaultMinCorrectDAICount:   1,
		defaultMinIncorrectDAICount: 1,
	}
}

// TrainingSet holds the training inputs, all keyed by utterance ID. DAs are
// obligatory; every other source is optional.
type TrainingSet struct {
	Utterances    map[string]utterance.Utterance
	DAs           map[string]*da.DialogueAct
	PrevDAs       map[string]*da.DialogueAct
	UttNBLists    map[string]utterance.NBList
	DANBLists     map[string]da.NBestList
	DANBListsOrig map[string]da.NBestList
}

// ExtractFeatures preprocesses the training inputs and caches per-utterance
// feature vectors pooled over all instantiations. This is a prerequisite to
// pruning features, pruning classifiers and training.
func (c *Classifier) ExtractFeatures(set TrainingSet) error {
	timer := logging.StartTimer(logging.CategoryFeatures, "ExtractFeatures")
	defer timer.Stop()

	c.utterances = set.Utterances
	c.das = set.DAs
	c.prevDAs = set.PrevDAs
	c.uttNBLists = set.UttNBLists
	c.daNBLists = set.DANBLists
	c.daNBListsOrig = set.DANBListsOrig

	switch {
	case len(set.Utterances) > 0:
		c.uttIDs = sortedIDs(set.Utterances)
	case len(set.UttNBLists) > 0:
		c.uttIDs = sortedIDs(set.UttNBLists)
	case len(set.DANBLists) > 0:
		c.uttIDs = sortedIDs(set.DANBLists)
	case len(set.DANBListsOrig) > 0:
		c.uttIDs = sortedIDs(set.DANBListsOrig)
	default:
		return &ConfigurationError{Msg: "cannot learn a classifier without utterances and without ASR or SLU hypotheses"}
	}

	// Normalise the text and substitute category labels.
	c.abutterances = nil
	c.categoryLabels = make(map[string]utterance.CategoryLabelMap)
	if c.preprocessing != nil {
		if len(set.Utterances) == 0 && len(set.UttNBLists) == 0 {
			return &ConfigurationError{Msg: "cannot do preprocessing without utterances and without ASR hypotheses"}
		}
		if len(set.Utterances) > 0 {
			c.abutterances = make(map[string]utterance.AbstractedInput, len(set.Utterances))
			for _, id := range c.uttIDs {
				c.utterances[id] = c.preprocessing.TextNormalisation(c.utterances[id])
				abutt, normDA, labels := c.preprocessing.ValuesToCategoryLabelsInDA(c.utterances[id], c.das[id])
				c.abutterances[id] = abutt
				c.das[id] = normDA
				c.categoryLabels[id] = labels
			}
		}
		if len(set.UttNBLists) > 0 {
			for id, nbl := range c.uttNBLists {
				for i := range nbl {
					nbl[i].Utt = c.preprocessing.TextNormalisation(nbl[i].Utt)
				}
				c.uttNBLists[id] = nbl
			}
		}
	}

	// Generate per-utterance features pooled over all instantiations.
	c.utteranceFeatures = make(map[string]features.Vector, len(c.uttIDs))
	for _, id := range c.uttIDs {
		vec, err := c.assembler.Extract(c.exampleFor(id), features.SelectAll())
		if err != nil {
			return err
		}
		c.utteranceFeatures[id] = vec
	}
	logging.Features("extracted features for %d training examples", len(c.uttIDs))
	return nil
}

// exampleFor gathers the available inputs of one training utterance.
func (c *Classifier) exampleFor(id string) features.Example {
	ex := features.Example{}
	if u, ok := c.utterances[id]; ok {
		ex.Utt = u
	}
	if c.abutterances != nil {
		ex.Abstract = c.abutterances[id]
	}
	if c.prevDAs != nil {
		ex.PrevDA = c.prevDAs[id]
	}
	if c.uttNBLists != nil {
		ex.UttNBL = c.uttNBLists[id]
	}
	if c.daNBLists != nil {
		ex.DANBL = c.daNBLists[id]
	}
	if c.daNBListsOrig != nil {
		ex.DANBLOrig = c.daNBListsOrig[id]
	}
	return ex
}

// PruneFeatures counts feature occurrences over the training set and drops
// features occurring fewer than minFeatureCount times (minConcFeatureCount
// for features of the concrete view). Non-positive arguments select the
// defaults of 5 and 4. The per-utterance feature cache is released
// afterwards to bound memory.
func (c *Classifier) PruneFeatures(minFeatureCount, minConcFeatureCount int) {
	if minFeatureCount <= 0 {
		minFeatureCount = 5
	} else {
		c.defaultMinFeatCount = minFeatureCount
	}
	if minConcFeatureCount <= 0 {
		minConcFeatureCount = 4
	}

	for _, id := range c.uttIDs {
		c.registry.Count(c.utteranceFeatures[id])
	}
	c.registry.Prune(minFeatureCount, minConcFeatureCount, c.assembler.ConcreteSetIdxs())

	// The cache is not needed anymore.
	c.utteranceFeatures = nil
}

// DAICounts builds (once) and returns the catalogue of items observed in
// the training DAs.
func (c *Classifier) DAICounts() *Catalogue {
	if c.catalogue != nil {
		return c.catalogue
	}
	withConcrete := false
	for _, a := range c.assembler.Abstractions() {
		if a == features.AbstractionConcrete {
			withConcrete = true
		}
	}
	c.catalogue = NewCatalogue(withConcrete)
	for _, id := range c.uttIDs {
		c.catalogue.CountDA(c.das[id])
	}
	return c.catalogue
}

// PruneClassifiers drops items that cannot be reliably classified with the
// training data. A nil accept predicate selects DefaultAccept(minDAICount).
// The min correct/incorrect counts become the defaults for training.
func (c *Classifier) PruneClassifiers(minDAICount, minCorrectCount, minIncorrectCount int, accept AcceptFunc) {
	if minCorrectCount > 0 {
		c.defaultMinCorrectDAICount = minCorrectCount
	}
	if minIncorrectCount > 0 {
		c.defaultMinIncorrectDAICount = minIncorrectCount
	}
	if accept == nil {
		accept = DefaultAccept(minDAICount)
	}
	cat := c.DAICounts()
	before := cat.Len()
	cat.Prune(accept)
	logging.Training("pruned classifiers: %d -> %d", before, cat.Len())
}

// DescribeClassifiers renders the catalogued items and their training
// counts, sorted, for diagnostics.
func (c *Classifier) DescribeClassifiers() string {
	cat := c.DAICounts()
	var b strings.Builder
	fmt.Fprintf(&b, "Classifiers detected in the training data: %d\n", cat.Len())
	for _, item := range cat.Items() {
		fmt.Fprintf(&b, "%40s = %d\n", item.Key(), cat.Count(item))
	}
	return b.String()
}

// TrainedDAIs returns the items with a trained classifier, sorted.
func (c *Classifier) TrainedDAIs() []da.DialogueActItem {
	keys := make([]string, 0, len(c.trained))
	for key := range c.trained {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]da.DialogueActItem, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.trained[key].DAI)
	}
	return out
}

// Threshold returns the calibrated decision threshold for an item, or the
// default for unknown items.
func (c *Classifier) Threshold(item da.DialogueActItem) float64 {
	if tc, ok := c.trained[item.Key()]; ok {
		return tc.Threshold
	}
	return model.DefaultThreshold
}

// Size returns the number of features in use.
func (c *Classifier) Size() int { return c.registry.Size() }

// PredictProb evaluates one trained classifier on a dense feature vector.
func (c *Classifier) PredictProb(item da.DialogueActItem, x []float64) (float64, error) {
	tc, ok := c.trained[item.Key()]
	if !ok {
		return 0, &PredictionError{DAI: item.Key(), Err: ErrInsufficientData}
	}
	return c.predictProb(tc, x), nil
}

func (c *Classifier) predictProb(tc *TrainedClassifier, x []float64) float64 {
	if c.clserType == ClserTree {
		return treePredictProb(tc.Tree, x)
	}
	return sigmoid(tc.Intercept + tc.Coefs.Dot(x))
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
