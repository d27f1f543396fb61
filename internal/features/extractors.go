package features

import (
	"fmt"
	"strings"

	"slunerd/internal/da"
	"slunerd/internal/utterance"
)

// NGrams extracts contiguous n-grams of orders 1..size plus skip n-grams
// (first and last word with a wildcard gap) from a token sequence. Values are
// occurrence counts.
func NGrams(words []string, size int) Set {
	s := make(Set)
	for n := 1; n <= size; n++ {
		for i := 0; i+n <= len(words); i++ {
			s.Add(strings.Join(words[i:i+n], " "), 1)
		}
	}
	// Skip n-grams: the two endpoint words of each span of length 3..size
	// with the middle collapsed.
	for n := 3; n <= size; n++ {
		for i := 0; i+n <= len(words); i++ {
			s.Add(words[i]+" *SKIP* "+words[i+n-1], 1)
		}
	}
	return s
}

// InputNGrams extracts n-gram features from an utterance-like input,
// dispatching on its kind.
func InputNGrams(in utterance.Input, size int) Set {
	if in == nil {
		return make(Set)
	}
	switch v := in.(type) {
	case utterance.Utterance:
		return NGrams(v.Words, size)
	case *utterance.ConfusionNetwork:
		return ConfnetNGrams(v, size)
	default:
		// Unknown inputs degrade to their token rendering.
		return NGrams(strings.Fields(in.String()), size)
	}
}

// ConfnetNGrams extracts n-grams over consecutive confusion network slots,
// weighting each n-gram by the product of its word probabilities. Epsilon
// (empty-word) alternatives terminate a path.
func ConfnetNGrams(cn *utterance.ConfusionNetwork, size int) Set {
	s := make(Set)
	for start := range cn.Slots {
		walkConfnetPaths(cn, start, size, nil, 1.0, s)
	}
	return s
}

func walkConfnetPaths(cn *utterance.ConfusionNetwork, slot, remaining int, path []string, prob float64, out Set) {
	if remaining == 0 || slot >= len(cn.Slots) {
		return
	}
	for _, h := range cn.Slots[slot] {
		if h.Word == "" || h.Prob <= 0 {
			continue
		}
		next := append(path, h.Word)
		p := prob * h.Prob
		out.Add(strings.Join(next, " "), p)
		walkConfnetPaths(cn, slot+1, remaining-1, next, p, out)
	}
}

// PrevDAFeatures extracts features of the dialogue act preceding the one
// being classified: one feature per item plus one per act type.
func PrevDAFeatures(act *da.DialogueAct) Set {
	s := make(Set)
	if act == nil {
		return s
	}
	for _, item := range act.Items() {
		s.Add("dai "+item.String(), 1)
		s.Add("dat "+item.ActType, 1)
	}
	return s
}

// NBListFeatures extracts n-grams pooled over an utterance n-best list,
// weighting each hypothesis' n-grams by its probability.
func NBListFeatures(nbl utterance.NBList, size int) Set {
	s := make(Set)
	for _, hyp := range nbl {
		for tag, val := range NGrams(hyp.Utt.Words, size) {
			s.Add(tag, hyp.Prob*val)
		}
	}
	return s
}

// DANBListFeatures extracts per-item probability mass from a dialogue-act
// n-best list.
func DANBListFeatures(nbl da.NBestList) Set {
	s := make(Set)
	for _, hyp := range nbl {
		if hyp.DA == nil {
			continue
		}
		for _, item := range hyp.DA.Items() {
			s.Add("dai "+item.String(), hyp.Prob)
		}
	}
	return s
}

// String renders a feature for diagnostics.
func (f Feature) String() string {
	return fmt.Sprintf("%d:%s", f.Set, f.Tag)
}
