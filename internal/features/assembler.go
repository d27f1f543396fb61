package features

import (
	"errors"
	"fmt"

	"slunerd/internal/da"
	"slunerd/internal/utterance"
)

// Feature-type keywords recognised by the assembler.
const (
	TypeNGram     = "ngram"
	TypePrevDA    = "prev_da"
	TypeUttNBL    = "utt_nbl"
	TypeDANBL     = "da_nbl"
	TypeDANBLOrig = "da_nbl_orig"
)

// Abstraction names selecting which views of the utterance contribute.
const (
	AbstractionConcrete = "concrete"
	AbstractionPartial  = "partial"
	AbstractionAbstract = "abstract"
)

// ErrNoFeatureSets reports that the assembler produced no feature sets for
// an example.
var ErrNoFeatureSets = errors.New("features: no feature sets produced")

// InstKind selects how slot-value instantiations feed the n-gram view.
type InstKind int

const (
	// InstAll pools features over all instantiations (counting pass).
	InstAll InstKind = iota
	// InstNone emits empty placeholders for the abstract views plus the
	// concrete n-grams (no-instantiation rows and the decode-time
	// concrete vector).
	InstNone
	// InstConcrete instantiates one (type, value) assignment.
	InstConcrete
)

// InstSel is the explicit instantiation selector for one example.
type InstSel struct {
	Kind  InstKind
	Type  string
	Value []string
}

// SelectAll pools over all instantiations.
func SelectAll() InstSel { return InstSel{Kind: InstAll} }

// SelectNone marks a no-instantiation example.
func SelectNone() InstSel { return InstSel{Kind: InstNone} }

// SelectInst instantiates one (type, value) assignment.
func SelectInst(typ string, value []string) InstSel {
	return InstSel{Kind: InstConcrete, Type: typ, Value: value}
}

// Example carries the inputs one training or decoding example draws from.
// Missing inputs contribute empty feature sets.
type Example struct {
	Utt       utterance.Input           // raw (non-abstracted) input
	Abstract  utterance.AbstractedInput // abstracted twin
	PrevDA    *da.DialogueAct
	UttNBL    utterance.NBList
	DANBL     da.NBestList
	DANBLOrig da.NBestList
}

// Assembler combines sub-feature-sets into one vector per example.
type Assembler struct {
	featuresType []string
	featuresSize int
	abstractions []string

	// doAbstract holds the instantiation flags derived from the
	// abstractions: false for partial, true for abstract, in that order.
	doAbstract []bool
}

// NewAssembler builds an assembler for the given feature-type keywords,
// n-gram size and abstraction set.
func NewAssembler(featuresType []string, featuresSize int, abstractions []string) *Assembler {
	a := &Assembler{
		featuresType: featuresType,
		featuresSize: featuresSize,
		abstractions: abstractions,
	}
	if a.hasAbstraction(AbstractionPartial) {
		a.doAbstract = append(a.doAbstract, false)
	}
	if a.hasAbstraction(AbstractionAbstract) {
		a.doAbstract = append(a.doAbstract, true)
	}
	return a
}

func (a *Assembler) hasType(keyword string) bool {
	for _, t := range a.featuresType {
		if t == keyword {
			return true
		}
	}
	return false
}

func (a *Assembler) hasAbstraction(name string) bool {
	for _, ab := range a.abstractions {
		if ab == name {
			return true
		}
	}
	return false
}

// FeaturesSize returns the configured n-gram order.
func (a *Assembler) FeaturesSize() int { return a.featuresSize }

// FeaturesType returns the configured keywords.
func (a *Assembler) FeaturesType() []string { return a.featuresType }

// Abstractions returns the configured abstraction set.
func (a *Assembler) Abstractions() []string { return a.abstractions }

// NumFeatSets returns the number of sub-feature-sets an example produces.
func (a *Assembler) NumFeatSets() int {
	n := 0
	if a.hasType(TypeNGram) {
		n += len(a.doAbstract)
		if a.hasAbstraction(AbstractionConcrete) {
			n++
		}
	}
	for _, t := range []string{TypePrevDA, TypeUttNBL, TypeDANBL, TypeDANBLOrig} {
		if a.hasType(t) {
			n++
		}
	}
	return n
}

// ConcreteSetIdxs returns the positions of feature sets extracted from the
// raw (non-abstracted) input, which use the concrete pruning threshold.
func (a *Assembler) ConcreteSetIdxs() map[int]bool {
	conc := make(map[int]bool)
	cur := 0
	if a.hasType(TypeNGram) {
		cur += len(a.doAbstract)
		if a.hasAbstraction(AbstractionConcrete) {
			conc[cur] = true
		}
	}
	return conc
}

// Extract assembles the feature vector for one example under the given
// instantiation selector.
func (a *Assembler) Extract(ex Example, inst InstSel) (Vector, error) {
	var sets []Set

	if a.hasType(TypeNGram) {
		switch inst.Kind {
		case InstAll:
			for _, doAbstract := range a.doAbstract {
				var pooled []Set
				if ex.Abstract != nil {
					for _, rendered := range ex.Abstract.AllInstantiations(doAbstract) {
						pooled = append(pooled, InputNGrams(rendered, a.featuresSize))
					}
				}
				// Feature values can get high here; correspondingly many
				// training examples are generated from this input.
				sets = append(sets, JoinFlat(pooled))
			}
			if a.hasAbstraction(AbstractionConcrete) {
				sets = append(sets, InputNGrams(ex.Utt, a.featuresSize))
			}
		case InstNone:
			for range a.doAbstract {
				sets = append(sets, make(Set))
			}
			sets = append(sets, InputNGrams(ex.Utt, a.featuresSize))
		case InstConcrete:
			if ex.Abstract == nil {
				return nil, fmt.Errorf("features: instantiation requested without an abstracted input")
			}
			for _, doAbstract := range a.doAbstract {
				rendered := ex.Abstract.Instantiate(inst.Type, inst.Value, doAbstract)
				sets = append(sets, InputNGrams(rendered, a.featuresSize))
			}
			if a.hasAbstraction(AbstractionConcrete) {
				sets = append(sets, InputNGrams(ex.Utt, a.featuresSize))
			}
		}
	}

	if a.hasType(TypePrevDA) {
		sets = append(sets, PrevDAFeatures(ex.PrevDA))
	}
	if a.hasType(TypeUttNBL) {
		if ex.UttNBL != nil {
			sets = append(sets, NBListFeatures(ex.UttNBL, a.featuresSize))
		} else {
			sets = append(sets, make(Set))
		}
	}
	if a.hasType(TypeDANBL) {
		if ex.DANBL != nil {
			sets = append(sets, DANBListFeatures(ex.DANBL))
		} else {
			sets = append(sets, make(Set))
		}
	}
	if a.hasType(TypeDANBLOrig) {
		if ex.DANBLOrig != nil {
			sets = append(sets, DANBListFeatures(ex.DANBLOrig))
		} else {
			sets = append(sets, make(Set))
		}
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("%w (features_type=%v)", ErrNoFeatureSets, a.featuresType)
	}
	return Join(sets), nil
}
