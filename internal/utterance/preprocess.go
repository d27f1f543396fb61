package utterance

import (
	"strings"

	"slunerd/internal/da"
)

// LabelSubst records what a category label stood for in a particular input.
type LabelSubst struct {
	// Value is the canonical slot value.
	Value string
	// Surface is the surface form that matched in the input.
	Surface string
}

// CategoryLabelMap maps category labels identified in an input to their
// substitutions.
type CategoryLabelMap map[string]LabelSubst

// Preprocessor normalises text and substitutes slot values with category
// labels in utterances, confusion networks and dialogue acts.
type Preprocessor interface {
	// TextNormalisation canonicalises the utterance's tokens.
	TextNormalisation(u Utterance) Utterance

	// ValuesToCategoryLabelsInDA abstracts the utterance and tags the
	// dialogue act's items with the labels of their values.
	ValuesToCategoryLabelsInDA(u Utterance, act *da.DialogueAct) (AbstractedInput, *da.DialogueAct, CategoryLabelMap)

	// ValuesToCategoryLabelsInUtterance abstracts a bare utterance.
	ValuesToCategoryLabelsInUtterance(u Utterance) (AbstractedInput, CategoryLabelMap)

	// NormaliseConfnet canonicalises every word alternative.
	NormaliseConfnet(cn *ConfusionNetwork) *ConfusionNetwork

	// ValuesToCategoryLabelsInConfnet abstracts a confusion network.
	ValuesToCategoryLabelsInConfnet(cn *ConfusionNetwork) (AbstractedInput, CategoryLabelMap)

	// CategoryLabelsToValuesInConfnet substitutes label-valued items of the
	// decoded confusion network back to their slot values.
	CategoryLabelsToValuesInConfnet(dacn *da.ConfusionNetwork, labels CategoryLabelMap) *da.ConfusionNetwork
}

// DatabaseEntry maps one surface form to a (label, canonical value) pair.
type DatabaseEntry struct {
	Label   string
	Value   string
	Surface []string
}

// RulePreprocessor is a database-driven Preprocessor: a list of known
// surface forms per category label, plus a word substitution table.
type RulePreprocessor struct {
	entries []DatabaseEntry
	subst   map[string]string
}

// NewRulePreprocessor returns an empty preprocessor.
func NewRulePreprocessor() *RulePreprocessor {
	return &RulePreprocessor{subst: make(map[string]string)}
}

// AddEntry registers surface forms for a (label, value) pair. The canonical
// value itself always matches.
func (p *RulePreprocessor) AddEntry(label, value string, surfaces ...string) {
	p.entries = append(p.entries, DatabaseEntry{
		Label:   label,
		Value:   value,
		Surface: strings.Fields(value),
	})
	for _, s := range surfaces {
		p.entries = append(p.entries, DatabaseEntry{
			Label:   label,
			Value:   value,
			Surface: strings.Fields(s),
		})
	}
}

// AddSubstitution registers a word-level normalisation rule.
func (p *RulePreprocessor) AddSubstitution(from, to string) {
	p.subst[from] = to
}

// TextNormalisation lowercases, strips punctuation and applies the word
// substitution table.
func (p *RulePreprocessor) TextNormalisation(u Utterance) Utterance {
	words := make([]string, 0, len(u.Words))
	for _, w := range u.Words {
		w = normaliseWord(w)
		if w == "" {
			continue
		}
		if to, ok := p.subst[w]; ok {
			w = to
		}
		words = append(words, w)
	}
	return FromWords(words)
}

func normaliseWord(w string) string {
	w = strings.ToLower(w)
	return strings.Trim(w, ".,!?;:\"'")
}

// matchAt returns the longest database entry whose surface form starts at
// position i of the token sequence.
func (p *RulePreprocessor) matchAt(words []string, i int) (DatabaseEntry, bool) {
	var best DatabaseEntry
	found := false
	for _, e := range p.entries {
		n := len(e.Surface)
		if n == 0 || i+n > len(words) {
			continue
		}
		if !wordsEqual(words[i:i+n], e.Surface) {
			continue
		}
		if !found || n > len(best.Surface) {
			best = e
			found = true
		}
	}
	return best, found
}

// abstractWords scans the token sequence for known surface forms.
func (p *RulePreprocessor) abstractWords(words []string) (*AbstractedUtterance, CategoryLabelMap) {
	au := &AbstractedUtterance{}
	labels := make(CategoryLabelMap)
	for i := 0; i < len(words); {
		if e, ok := p.matchAt(words, i); ok {
			au.items = append(au.items, absItem{
				label:   e.Label,
				value:   strings.Fields(e.Value),
				surface: e.Surface,
			})
			labels[e.Label] = LabelSubst{Value: e.Value, Surface: strings.Join(e.Surface, " ")}
			i += len(e.Surface)
			continue
		}
		au.items = append(au.items, absItem{word: words[i]})
		i++
	}
	return au, labels
}

// ValuesToCategoryLabelsInUtterance implements Preprocessor.
func (p *RulePreprocessor) ValuesToCategoryLabelsInUtterance(u Utterance) (AbstractedInput, CategoryLabelMap) {
	au, labels := p.abstractWords(u.Words)
	return au, labels
}

// ValuesToCategoryLabelsInDA implements Preprocessor.
func (p *RulePreprocessor) ValuesToCategoryLabelsInDA(u Utterance, act *da.DialogueAct) (AbstractedInput, *da.DialogueAct, CategoryLabelMap) {
	au, labels := p.abstractWords(u.Words)

	normalised := da.NewDA()
	for _, item := range act.Items() {
		if item.Value == "" || item.Generic {
			normalised.Append(item)
			continue
		}
		label, value, ok := p.lookupValue(item.Value)
		if !ok {
			normalised.Append(item)
			continue
		}
		tagged := da.NewDAI(item.ActType, item.Slot, value).
			WithCategoryLabel(label).
			WithOrigValue(item.Value)
		normalised.Append(tagged)
		if _, have := labels[label]; !have {
			labels[label] = LabelSubst{Value: value, Surface: item.Value}
		}
	}
	return au, normalised, labels
}

// lookupValue finds the label and canonical value for a surface form.
func (p *RulePreprocessor) lookupValue(surface string) (label, value string, ok bool) {
	words := strings.Fields(strings.ToLower(surface))
	for _, e := range p.entries {
		if wordsEqual(e.Surface, words) || e.Value == strings.Join(words, " ") {
			return e.Label, e.Value, true
		}
	}
	return "", "", false
}

// NormaliseConfnet implements Preprocessor.
func (p *RulePreprocessor) NormaliseConfnet(cn *ConfusionNetwork) *ConfusionNetwork {
	out := &ConfusionNetwork{Slots: make([][]WordHyp, len(cn.Slots))}
	for i, slot := range cn.Slots {
		hyps := make([]WordHyp, 0, len(slot))
		for _, h := range slot {
			w := normaliseWord(h.Word)
			if to, ok := p.subst[w]; ok {
				w = to
			}
			hyps = append(hyps, WordHyp{Prob: h.Prob, Word: w})
		}
		out.Slots[i] = hyps
	}
	return out
}

// ValuesToCategoryLabelsInConfnet implements Preprocessor. Labelled spans
// are located on the best path.
func (p *RulePreprocessor) ValuesToCategoryLabelsInConfnet(cn *ConfusionNetwork) (AbstractedInput, CategoryLabelMap) {
	best := cn.BestPath().Words
	// Best-path word index -> slot index, to map matches back onto slots.
	slotOf := make([]int, 0, len(best))
	for si, slot := range cn.Slots {
		if bestHyp(slot).Word != "" {
			slotOf = append(slotOf, si)
		}
	}

	ac := &AbstractedConfnet{cn: cn}
	labels := make(CategoryLabelMap)
	for i := 0; i < len(best); {
		e, ok := p.matchAt(best, i)
		if !ok {
			i++
			continue
		}
		start := slotOf[i]
		end := slotOf[i+len(e.Surface)-1]
		ac.matches = append(ac.matches, cnMatch{
			start:   start,
			length:  end - start + 1,
			label:   e.Label,
			value:   strings.Fields(e.Value),
			surface: e.Surface,
		})
		labels[e.Label] = LabelSubst{Value: e.Value, Surface: strings.Join(e.Surface, " ")}
		i += len(e.Surface)
	}
	return ac, labels
}

// CategoryLabelsToValuesInConfnet implements Preprocessor.
func (p *RulePreprocessor) CategoryLabelsToValuesInConfnet(dacn *da.ConfusionNetwork, labels CategoryLabelMap) *da.ConfusionNetwork {
	out := da.NewConfusionNetwork()
	for _, it := range dacn.Items() {
		item := it.DAI
		if item.Generic {
			if subst, ok := labels[item.Value]; ok {
				item = da.NewDAI(item.ActType, item.Slot, subst.Value).
					WithCategoryLabel(it.DAI.Value)
			}
		}
		out.Add(it.Prob, item)
	}
	return out
}
