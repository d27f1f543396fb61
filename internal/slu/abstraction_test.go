package slu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slunerd/internal/da"
	"slunerd/internal/utterance"
)

func cityPreprocessor() *utterance.RulePreprocessor {
	p := utterance.NewRulePreprocessor()
	p.AddEntry("CITY", "paris")
	p.AddEntry("CITY", "london")
	p.AddEntry("CITY", "new york")
	return p
}

// trainCityModel trains a model whose generic inform(to=CITY) classifier
// must generalise over city values.
func trainCityModel(t *testing.T) *Classifier {
	t.Helper()
	c := New(Options{Preprocessing: cityPreprocessor()})
	err := c.ExtractFeatures(TrainingSet{
		Utterances: map[string]utterance.Utterance{
			"u1": utterance.New("go to paris"),
			"u2": utterance.New("go to london"),
			"u3": utterance.New("leave from paris"),
			"u4": utterance.New("leave from london"),
			"u5": utterance.New("hello"),
		},
		DAs: map[string]*da.DialogueAct{
			"u1": da.NewDA(da.NewDAI("inform", "to", "paris")),
			"u2": da.NewDA(da.NewDAI("inform", "to", "london")),
			"u3": da.NewDA(da.NewDAI("inform", "from", "paris")),
			"u4": da.NewDA(da.NewDAI("inform", "from", "london")),
			"u5": da.NewDA(da.NewDAI("hello", "", "")),
		},
	})
	require.NoError(t, err)
	c.PruneFeatures(1, 1)
	c.PruneClassifiers(1, 0, 0, nil)
	report, err := c.Train(DefaultTrainOptions())
	require.NoError(t, err)
	require.Greater(t, report.Trained, 0)
	return c
}

func TestGenericClassifierTrains(t *testing.T) {
	c := trainCityModel(t)

	var haveToCity, haveFromCity bool
	for _, item := range c.TrainedDAIs() {
		if item.IsCategoryLabel() && item.Slot == "to" && item.Value == "CITY" {
			haveToCity = true
		}
		if item.IsCategoryLabel() && item.Slot == "from" && item.Value == "CITY" {
			haveFromCity = true
		}
	}
	assert.True(t, haveToCity, "inform(to=CITY) not trained: %v", c.TrainedDAIs())
	assert.True(t, haveFromCity, "inform(from=CITY) not trained: %v", c.TrainedDAIs())
}

func TestDecodeInstantiatesSlotValues(t *testing.T) {
	c := trainCityModel(t)

	confnet, labels, err := c.Parse1Best(utterance.New("go to london"), nil)
	require.NoError(t, err)
	require.Contains(t, labels, "CITY")

	toLondon := da.NewDAI("inform", "to", "london")
	fromLondon := da.NewDAI("inform", "from", "london")
	require.True(t, confnet.Contains(toLondon), "confnet misses inform(to=london):\n%v", confnet)
	assert.Greater(t, confnet.Prob(toLondon), 0.5)
	assert.Greater(t, confnet.Prob(toLondon), confnet.Prob(fromLondon))
}

func TestDecodeGeneralisesToUnseenPhrasing(t *testing.T) {
	// "new york" never appears with "to" in training; the generic
	// classifier must carry the pattern.
	c := trainCityModel(t)

	confnet, _, err := c.Parse1Best(utterance.New("go to new york"), nil)
	require.NoError(t, err)

	toNY := da.NewDAI("inform", "to", "new york")
	require.True(t, confnet.Contains(toNY), "confnet misses inform(to=new york):\n%v", confnet)
	assert.Greater(t, confnet.Prob(toNY), 0.5)
}

func TestGenericSkippedWithoutAnchor(t *testing.T) {
	c := trainCityModel(t)

	// No city in the input: generic classifiers have no instantiations and
	// must be skipped rather than evaluated. Concrete classifiers still run
	// on the concrete vector.
	confnet, _, err := c.Parse1Best(utterance.New("hello"), nil)
	require.NoError(t, err)
	for _, it := range confnet.Items() {
		assert.False(t, it.DAI.IsCategoryLabel(), "abstract item leaked into output: %v", it.DAI)
	}
	hello := da.NewDAI("hello", "", "")
	require.True(t, confnet.Contains(hello))
	assert.Greater(t, confnet.Prob(hello), 0.5)
}

func TestParseConfnet(t *testing.T) {
	c := trainCityModel(t)

	cn := &utterance.ConfusionNetwork{Slots: [][]utterance.WordHyp{
		{{Prob: 0.9, Word: "go"}, {Prob: 0.1, Word: "no"}},
		{{Prob: 1.0, Word: "to"}},
		{{Prob: 0.7, Word: "london"}, {Prob: 0.3, Word: "paris"}},
	}}
	confnet, err := c.ParseConfnet(cn, true, da.CombineMax)
	require.NoError(t, err)

	toLondon := da.NewDAI("inform", "to", "london")
	require.True(t, confnet.Contains(toLondon), "confnet misses inform(to=london):\n%v", confnet)
}

func TestParseConfnetRequiresPreprocessing(t *testing.T) {
	c := trainGreetingModel(t)
	_, err := c.ParseConfnet(&utterance.ConfusionNetwork{}, true, da.CombineMax)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestDANBListFallbackInjection(t *testing.T) {
	c := trainGreetingModel(t)

	// An item the model has no classifier for arrives via the DA n-best
	// list; it must be inserted with its original probability.
	unseen := da.NewDAI("reqalts", "", "")
	nbl := da.NBestList{{Prob: 0.42, DA: da.NewDA(unseen)}}

	confnet, _, err := c.Parse1Best(utterance.New("hello"), &ParseOptions{DANBL: nbl})
	require.NoError(t, err)
	require.True(t, confnet.Contains(unseen))
	assert.Equal(t, 0.42, confnet.Prob(unseen))
}
