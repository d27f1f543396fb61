package da

import (
	"fmt"
	"sort"
)

// CombineMethod selects how probabilities for the same item are merged when
// several classifiers vote for it.
type CombineMethod string

const (
	CombineNew  CombineMethod = "new"  // replace the existing entry
	CombineMax  CombineMethod = "max"  // keep the greater probability
	CombineAdd  CombineMethod = "add"  // noisy-OR: 1 - (1-p1)(1-p2)
	CombineArit CombineMethod = "arit" // arithmetic mean
	CombineHarm CombineMethod = "harm" // harmonic mean, 0 if either is 0
)

// defaultPruneThreshold drops negligible hypotheses from a confnet.
const defaultPruneThreshold = 0.001

// ConfnetItem is one scored dialogue act item hypothesis.
type ConfnetItem struct {
	Prob float64
	DAI  DialogueActItem
}

// ConfusionNetwork is a set of (probability, item) pairs deduplicated by the
// configured merge strategy.
type ConfusionNetwork struct {
	items []ConfnetItem
}

// NewConfusionNetwork returns an empty network.
func NewConfusionNetwork() *ConfusionNetwork {
	return &ConfusionNetwork{}
}

// Add appends a hypothesis without merging.
func (cn *ConfusionNetwork) Add(prob float64, dai DialogueActItem) {
	cn.items = append(cn.items, ConfnetItem{Prob: prob, DAI: dai})
}

// AddMerge adds a hypothesis, combining with any existing entry for an equal
// item according to the given method.
func (cn *ConfusionNetwork) AddMerge(prob float64, dai DialogueActItem, combine CombineMethod) error {
	for i := range cn.items {
		if cn.items[i].DAI.Equal(dai) {
			merged, err := combineProbs(cn.items[i].Prob, prob, combine)
			if err != nil {
				return err
			}
			cn.items[i].Prob = merged
			if combine == CombineNew {
				cn.items[i].DAI = dai
			}
			return nil
		}
	}
	cn.items = append(cn.items, ConfnetItem{Prob: prob, DAI: dai})
	return nil
}

func combineProbs(old, new float64, combine CombineMethod) (float64, error) {
	switch combine {
	case CombineNew:
		return new, nil
	case CombineMax:
		if new > old {
			return new, nil
		}
		return old, nil
	case CombineAdd:
		return 1 - (1-old)*(1-new), nil
	case CombineArit:
		return (old + new) / 2, nil
	case CombineHarm:
		if old == 0 || new == 0 {
			return 0, nil
		}
		return 2 * old * new / (old + new), nil
	default:
		return 0, fmt.Errorf("da: unknown combine method %q", combine)
	}
}

// Contains tests membership of an equal item, irrespective of probability.
func (cn *ConfusionNetwork) Contains(dai DialogueActItem) bool {
	for _, it := range cn.items {
		if it.DAI.Equal(dai) {
			return true
		}
	}
	return false
}

// Items returns the hypotheses in their current order.
func (cn *ConfusionNetwork) Items() []ConfnetItem { return cn.items }

// Len returns the number of hypotheses.
func (cn *ConfusionNetwork) Len() int { return len(cn.items) }

// Prob returns the probability for an equal item, or 0 when absent.
func (cn *ConfusionNetwork) Prob(dai DialogueActItem) float64 {
	for _, it := range cn.items {
		if it.DAI.Equal(dai) {
			return it.Prob
		}
	}
	return 0
}

// Sort orders hypotheses by descending probability, breaking ties by the
// items' string forms so that outputs are deterministic.
func (cn *ConfusionNetwork) Sort() {
	sort.SliceStable(cn.items, func(i, j int) bool {
		if cn.items[i].Prob != cn.items[j].Prob {
			return cn.items[i].Prob > cn.items[j].Prob
		}
		return cn.items[i].DAI.String() < cn.items[j].DAI.String()
	})
}

// Prune drops hypotheses with negligible probability.
func (cn *ConfusionNetwork) Prune() { cn.PruneBelow(defaultPruneThreshold) }

// PruneBelow drops hypotheses with probability below the threshold.
func (cn *ConfusionNetwork) PruneBelow(threshold float64) {
	kept := cn.items[:0]
	for _, it := range cn.items {
		if it.Prob >= threshold {
			kept = append(kept, it)
		}
	}
	cn.items = kept
}

// String renders the sorted hypotheses.
func (cn *ConfusionNetwork) String() string {
	out := ""
	for _, it := range cn.items {
		out += fmt.Sprintf("%.4f %s\n", it.Prob, it.DAI)
	}
	return out
}

// WeightedConfnet pairs a confusion network with the probability of the
// hypothesis it was decoded from.
type WeightedConfnet struct {
	Prob    float64
	Confnet *ConfusionNetwork
}

// MergeConfnets combines per-hypothesis confusion networks into one, scaling
// each child's probabilities by its hypothesis weight and accumulating mass
// for repeated items with noisy-OR.
func MergeConfnets(hyps []WeightedConfnet) *ConfusionNetwork {
	merged := NewConfusionNetwork()
	for _, h := range hyps {
		if h.Confnet == nil {
			continue
		}
		for _, it := range h.Confnet.Items() {
			// Error impossible with a fixed known method.
			_ = merged.AddMerge(h.Prob*it.Prob, it.DAI, CombineAdd)
		}
	}
	return merged
}

// WeightedDA is one hypothesis of a dialogue-act n-best list.
type WeightedDA struct {
	Prob float64
	DA   *DialogueAct
}

// NBestList is a dialogue-act n-best list, e.g. a previous SLU output.
type NBestList []WeightedDA
