package slu

import (
	"strings"

	"slunerd/internal/da"
	"slunerd/internal/features"
	"slunerd/internal/logging"
	"slunerd/internal/utterance"
)

// OtherHypothesis is the literal ASR hypothesis standing for out-of-domain
// speech; it decodes to other() with probability 1.
const OtherHypothesis = "__other__"

// ParseOptions carries the optional decode-time context.
type ParseOptions struct {
	PrevDA    *da.DialogueAct
	UttNBL    utterance.NBList
	DANBL     da.NBestList
	DANBLOrig da.NBestList

	// Combine merges probabilities for the same item voted by several
	// classifiers (default: max).
	Combine da.CombineMethod
}

func (o *ParseOptions) combine() da.CombineMethod {
	if o == nil || o.Combine == "" {
		return da.CombineMax
	}
	return o.Combine
}

// Parse1Best decodes a single utterance into a confusion network of scored
// dialogue act items, evaluating every trained classifier. The returned
// label map records the category labels identified in the utterance.
func (c *Classifier) Parse1Best(u utterance.Utterance, opts *ParseOptions) (*da.ConfusionNetwork, utterance.CategoryLabelMap, error) {
	timer := logging.StartTimer(logging.CategoryDecoding, "Parse1Best")
	defer timer.Stop()

	combine := opts.combine()
	if opts == nil {
		opts = &ParseOptions{}
	}
	logging.DecodingDebug("parsing utterance %q", u.String())

	var abutt utterance.AbstractedInput
	labels := make(utterance.CategoryLabelMap)
	if c.preprocessing != nil {
		u = c.preprocessing.TextNormalisation(u)
		abutt, labels = c.preprocessing.ValuesToCategoryLabelsInUtterance(u)
		logging.DecodingDebug("after preprocessing: %q", abutt.Plain().String())
	}

	ex := features.Example{
		Utt:       u,
		Abstract:  abutt,
		PrevDA:    opts.PrevDA,
		UttNBL:    opts.UttNBL,
		DANBL:     opts.DANBL,
		DANBLOrig: opts.DANBLOrig,
	}

	// The decode-time analogue of the training no-instantiation row.
	concVec, err := c.assembler.Extract(ex, features.SelectNone())
	if err != nil {
		return nil, nil, err
	}
	concRow := c.registry.DenseRow(concVec)

	confnet := da.NewConfusionNetwork()
	for _, item := range c.TrainedDAIs() {
		tc := c.trained[item.Key()]
		insts := compatibleInsts(item, abutt)

		if len(insts) > 0 {
			for _, inst := range insts {
				vec, err := c.assembler.Extract(ex, features.SelectInst(inst.Type, inst.Value))
				if err != nil {
					logging.Get(logging.CategoryDecoding).Warn("skipping %s: %v",
						item.Key(), &PredictionError{DAI: item.Key(), Err: err})
					continue
				}
				prob := c.predictProb(tc, c.registry.DenseRow(vec))
				instItem := da.NewDAI(item.ActType, item.Slot, strings.Join(inst.Value, " ")).
					WithCategoryLabel(categoryLabelString(item))
				if err := confnet.AddMerge(prob, instItem, combine); err != nil {
					return nil, nil, err
				}
			}
			continue
		}
		if item.IsCategoryLabel() {
			// An abstract classifier has no anchor in this input.
			continue
		}
		prob := c.predictProb(tc, concRow)
		if err := confnet.AddMerge(prob, item, combine); err != nil {
			return nil, nil, err
		}
	}

	if c.preprocessing != nil {
		confnet = c.preprocessing.CategoryLabelsToValuesInConfnet(confnet, labels)
	}
	confnet.Sort()

	// Items present in a supplied DA n-best list but absent from the
	// decoded confnet are inserted with their original probabilities.
	theNBL := opts.DANBL
	if theNBL == nil {
		theNBL = opts.DANBLOrig
	}
	for _, hyp := range theNBL {
		for _, item := range hyp.DA.Items() {
			if !confnet.Contains(item) {
				confnet.Add(hyp.Prob, item)
			}
		}
	}

	return confnet, labels, nil
}

// ParseNBList decodes an ASR n-best list by decoding each hypothesis and
// merging the per-hypothesis confusion networks, each weighted by its
// hypothesis probability.
func (c *Classifier) ParseNBList(nbl utterance.NBList) (*da.ConfusionNetwork, error) {
	timer := logging.StartTimer(logging.CategoryDecoding, "ParseNBList")
	defer timer.Stop()

	if len(nbl) == 0 {
		return da.NewConfusionNetwork(), nil
	}

	hyps := make([]da.WeightedConfnet, 0, len(nbl))
	for _, hyp := range nbl {
		var child *da.ConfusionNetwork
		if hyp.Utt.String() == OtherHypothesis {
			child = da.NewConfusionNetwork()
			child.Add(1.0, da.Other())
		} else {
			decoded, _, err := c.Parse1Best(hyp.Utt, nil)
			if err != nil {
				return nil, err
			}
			child = decoded
		}
		hyps = append(hyps, da.WeightedConfnet{Prob: hyp.Prob, Confnet: child})
	}

	merged := da.MergeConfnets(hyps)
	merged.Prune()
	merged.Sort()
	return merged, nil
}

// ParseConfnet decodes an utterance confusion network with the
// confnet-typed feature extractors. When includeOther is false,
// other-valued instantiations and classifiers are left out.
func (c *Classifier) ParseConfnet(cn *utterance.ConfusionNetwork, includeOther bool, combine da.CombineMethod) (*da.ConfusionNetwork, error) {
	timer := logging.StartTimer(logging.CategoryDecoding, "ParseConfnet")
	defer timer.Stop()

	if combine == "" {
		combine = da.CombineMax
	}
	if c.preprocessing == nil {
		return nil, &ConfigurationError{Msg: "cannot parse a confusion network without preprocessing"}
	}

	cn = c.preprocessing.NormaliseConfnet(cn)
	abcn, labels := c.preprocessing.ValuesToCategoryLabelsInConfnet(cn)

	ex := features.Example{Utt: cn, Abstract: abcn}
	concVec, err := c.assembler.Extract(ex, features.SelectNone())
	if err != nil {
		return nil, err
	}
	concRow := c.registry.DenseRow(concVec)

	confnet := da.NewConfusionNetwork()
	for _, item := range c.TrainedDAIs() {
		tc := c.trained[item.Key()]
		insts := compatibleInsts(item, abcn)

		if len(insts) > 0 {
			for _, inst := range insts {
				joined := strings.Join(inst.Value, " ")
				if !includeOther && joined == da.OtherValue {
					continue
				}
				vec, err := c.assembler.Extract(ex, features.SelectInst(inst.Type, inst.Value))
				if err != nil {
					logging.Get(logging.CategoryDecoding).Warn("skipping %s: %v",
						item.Key(), &PredictionError{DAI: item.Key(), Err: err})
					continue
				}
				prob := c.predictProb(tc, c.registry.DenseRow(vec))
				instItem := da.NewDAI(item.ActType, item.Slot, joined).
					WithCategoryLabel(categoryLabelString(item))
				if err := confnet.AddMerge(prob, instItem, combine); err != nil {
					return nil, err
				}
			}
			continue
		}
		if item.IsCategoryLabel() {
			continue
		}
		if !includeOther && hasOtherValue(item) {
			continue
		}
		prob := c.predictProb(tc, concRow)
		if err := confnet.AddMerge(prob, item, combine); err != nil {
			return nil, err
		}
	}

	confnet = c.preprocessing.CategoryLabelsToValuesInConfnet(confnet, labels)
	confnet.Sort()
	return confnet, nil
}

func hasOtherValue(item da.DialogueActItem) bool {
	for _, v := range item.OrigValues {
		if v == da.OtherValue {
			return true
		}
	}
	return false
}
