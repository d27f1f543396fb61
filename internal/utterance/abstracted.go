package utterance

import (
	"strings"
)

// Instantiation is a (category label, concrete token sequence) pair found in
// an abstracted input.
type Instantiation struct {
	Type  string
	Value []string
}

// Key returns a canonical form for set operations.
func (i Instantiation) Key() string {
	return i.Type + "=" + strings.Join(i.Value, " ")
}

// AbstractedInput is the abstracted view of an utterance-like input: tokens
// with category-label placeholders that can be re-instantiated on demand.
type AbstractedInput interface {
	Kind() Kind

	// Plain renders the fully abstracted input (labels as tokens).
	Plain() Input

	// AllInstantiations renders the input once per distinct instantiation
	// it contains. An input with no labelled spans yields nothing.
	AllInstantiations(doAbstract bool) []Input

	// Instantiate renders the input with the matching labelled spans
	// realised: as the label token when doAbstract, as the concrete value
	// otherwise. Non-matching labelled spans render as their labels.
	Instantiate(typ string, value []string, doAbstract bool) Input

	// InstsForType lists instantiations whose label matches.
	InstsForType(typeWords []string) []Instantiation

	// InstsForTypeval lists instantiations whose label matches and whose
	// value (canonical or surface form) matches.
	InstsForTypeval(typeWords, valueWords []string) []Instantiation
}

// absItem is one element of an abstracted token sequence: either a plain
// word, or a labelled span carrying its canonical value and the surface
// tokens it replaced.
type absItem struct {
	word    string
	label   string
	value   []string
	surface []string
}

func (it absItem) labelled() bool { return it.label != "" }

// AbstractedUtterance is the abstracted view of a plain utterance.
type AbstractedUtterance struct {
	items []absItem
}

// Kind implements AbstractedInput.
func (au *AbstractedUtterance) Kind() Kind { return KindUtterance }

// Plain renders every labelled span as its label token.
func (au *AbstractedUtterance) Plain() Input {
	words := make([]string, 0, len(au.items))
	for _, it := range au.items {
		if it.labelled() {
			words = append(words, it.label)
		} else {
			words = append(words, it.word)
		}
	}
	return FromWords(words)
}

// String renders the plain view.
func (au *AbstractedUtterance) String() string { return au.Plain().String() }

// insts lists the distinct instantiations in occurrence order.
func (au *AbstractedUtterance) insts() []Instantiation {
	seen := make(map[string]bool)
	var out []Instantiation
	for _, it := range au.items {
		if !it.labelled() {
			continue
		}
		inst := Instantiation{Type: it.label, Value: it.value}
		if seen[inst.Key()] {
			continue
		}
		seen[inst.Key()] = true
		out = append(out, inst)
	}
	return out
}

// AllInstantiations implements AbstractedInput.
func (au *AbstractedUtterance) AllInstantiations(doAbstract bool) []Input {
	insts := au.insts()
	out := make([]Input, 0, len(insts))
	for _, inst := range insts {
		out = append(out, au.Instantiate(inst.Type, inst.Value, doAbstract))
	}
	return out
}

// Instantiate implements AbstractedInput.
func (au *AbstractedUtterance) Instantiate(typ string, value []string, doAbstract bool) Input {
	words := make([]string, 0, len(au.items))
	for _, it := range au.items {
		switch {
		case !it.labelled():
			words = append(words, it.word)
		case it.label == typ && wordsEqual(it.value, value):
			if doAbstract {
				words = append(words, it.label)
			} else {
				words = append(words, it.value...)
			}
		default:
			words = append(words, it.label)
		}
	}
	return FromWords(words)
}

// InstsForType implements AbstractedInput.
func (au *AbstractedUtterance) InstsForType(typeWords []string) []Instantiation {
	typ := strings.Join(typeWords, " ")
	var out []Instantiation
	for _, inst := range au.insts() {
		if inst.Type == typ {
			out = append(out, inst)
		}
	}
	return out
}

// InstsForTypeval implements AbstractedInput.
func (au *AbstractedUtterance) InstsForTypeval(typeWords, valueWords []string) []Instantiation {
	typ := strings.Join(typeWords, " ")
	var out []Instantiation
	for _, it := range au.items {
		if !it.labelled() || it.label != typ {
			continue
		}
		if wordsEqual(it.value, valueWords) || wordsEqual(it.surface, valueWords) {
			inst := Instantiation{Type: it.label, Value: it.value}
			out = appendUniqueInst(out, inst)
		}
	}
	return out
}

func appendUniqueInst(insts []Instantiation, inst Instantiation) []Instantiation {
	for _, have := range insts {
		if have.Key() == inst.Key() {
			return insts
		}
	}
	return append(insts, inst)
}

func wordsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AbstractedConfnet is the abstracted view of an utterance confusion
// network. Labelled spans are located on the best path; instantiation
// rewrites the affected slots.
type AbstractedConfnet struct {
	cn      *ConfusionNetwork
	matches []cnMatch
}

// cnMatch marks a labelled span of slots [start, start+length).
type cnMatch struct {
	start   int
	length  int
	label   string
	value   []string
	surface []string
}

// Kind implements AbstractedInput.
func (ac *AbstractedConfnet) Kind() Kind { return KindConfnet }

// String renders the plain view's best path.
func (ac *AbstractedConfnet) String() string { return ac.Plain().String() }

// Plain renders every labelled span as a single certain label slot.
func (ac *AbstractedConfnet) Plain() Input {
	return ac.render(func(m cnMatch) []string { return []string{m.label} })
}

// render rebuilds the network replacing each matched span with the tokens
// the callback chooses.
func (ac *AbstractedConfnet) render(pick func(cnMatch) []string) *ConfusionNetwork {
	covered := make(map[int]*cnMatch)
	for i := range ac.matches {
		m := &ac.matches[i]
		for s := m.start; s < m.start+m.length; s++ {
			covered[s] = m
		}
	}
	out := &ConfusionNetwork{}
	for i := 0; i < len(ac.cn.Slots); i++ {
		if m, ok := covered[i]; ok {
			if i == m.start {
				for _, w := range pick(*m) {
					out.Slots = append(out.Slots, []WordHyp{{Prob: 1.0, Word: w}})
				}
			}
			continue
		}
		out.Slots = append(out.Slots, ac.cn.Slots[i])
	}
	return out
}

// insts lists the distinct instantiations in occurrence order.
func (ac *AbstractedConfnet) insts() []Instantiation {
	seen := make(map[string]bool)
	var out []Instantiation
	for _, m := range ac.matches {
		inst := Instantiation{Type: m.label, Value: m.value}
		if seen[inst.Key()] {
			continue
		}
		seen[inst.Key()] = true
		out = append(out, inst)
	}
	return out
}

// AllInstantiations implements AbstractedInput.
func (ac *AbstractedConfnet) AllInstantiations(doAbstract bool) []Input {
	insts := ac.insts()
	out := make([]Input, 0, len(insts))
	for _, inst := range insts {
		out = append(out, ac.Instantiate(inst.Type, inst.Value, doAbstract))
	}
	return out
}

// Instantiate implements AbstractedInput.
func (ac *AbstractedConfnet) Instantiate(typ string, value []string, doAbstract bool) Input {
	return ac.render(func(m cnMatch) []string {
		if m.label == typ && wordsEqual(m.value, value) {
			if doAbstract {
				return []string{m.label}
			}
			return m.value
		}
		return []string{m.label}
	})
}

// InstsForType implements AbstractedInput.
func (ac *AbstractedConfnet) InstsForType(typeWords []string) []Instantiation {
	typ := strings.Join(typeWords, " ")
	var out []Instantiation
	for _, inst := range ac.insts() {
		if inst.Type == typ {
			out = append(out, inst)
		}
	}
	return out
}

// InstsForTypeval implements AbstractedInput.
func (ac *AbstractedConfnet) InstsForTypeval(typeWords, valueWords []string) []Instantiation {
	typ := strings.Join(typeWords, " ")
	var out []Instantiation
	for _, m := range ac.matches {
		if m.label != typ {
			continue
		}
		if wordsEqual(m.value, valueWords) || wordsEqual(m.surface, valueWords) {
			out = appendUniqueInst(out, Instantiation{Type: m.label, Value: m.value})
		}
	}
	return out
}
