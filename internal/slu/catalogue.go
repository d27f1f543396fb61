package slu

import (
	"sort"

	"slunerd/internal/da"
)

// Catalogue enumerates the dialogue act items observed in training data,
// their occurrence counts, and which of them get a classifier.
type Catalogue struct {
	counts       map[string]int
	dais         map[string]da.DialogueActItem
	withConcrete bool
}

// NewCatalogue returns an empty catalogue. When withConcrete is set,
// concrete items count towards both their exact bucket and their generic
// bucket; otherwise only the generic bucket is kept.
func NewCatalogue(withConcrete bool) *Catalogue {
	return &Catalogue{
		counts:       make(map[string]int),
		dais:         make(map[string]da.DialogueActItem),
		withConcrete: withConcrete,
	}
}

// CountDA tallies the items of one training dialogue act.
func (c *Catalogue) CountDA(act *da.DialogueAct) {
	for _, item := range act.Items() {
		gen := item.GetGeneric()
		c.add(gen)
		if c.withConcrete && !gen.Equal(item) {
			c.add(item)
		}
	}
}

func (c *Catalogue) add(item da.DialogueActItem) {
	key := item.Key()
	if have, ok := c.dais[key]; ok {
		for _, ov := range item.OrigValues {
			have = have.WithOrigValue(ov)
		}
		c.dais[key] = have
	} else {
		c.dais[key] = item
	}
	c.counts[key]++
}

// Count returns the occurrence count for an item.
func (c *Catalogue) Count(item da.DialogueActItem) int { return c.counts[item.Key()] }

// Len returns the number of distinct items.
func (c *Catalogue) Len() int { return len(c.dais) }

// Items returns the catalogued items sorted by their canonical form, so
// that training order is reproducible.
func (c *Catalogue) Items() []da.DialogueActItem {
	keys := make([]string, 0, len(c.dais))
	for key := range c.dais {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]da.DialogueActItem, 0, len(keys))
	for _, key := range keys {
		items = append(items, c.dais[key])
	}
	return items
}

// AcceptFunc decides whether an item keeps its classifier during pruning.
type AcceptFunc func(c *Catalogue, item da.DialogueActItem) bool

// DefaultAccept returns the standard accept predicate:
//   - keep all generic items;
//   - drop items with both slot and value set that occur fewer than
//     minDAICount times;
//   - drop items whose value is the other-value sentinel;
//   - drop slot="dontcare" items;
//   - drop the null item.
func DefaultAccept(minDAICount int) AcceptFunc {
	return func(c *Catalogue, item da.DialogueActItem) bool {
		if item.IsCategoryLabel() {
			return true
		}
		if item.Slot != "" && item.Value != "" && c.Count(item) < minDAICount {
			return false
		}
		if item.Value == da.OtherValue {
			return false
		}
		if item.Slot != "" && item.Value == "dontcare" {
			return false
		}
		return !item.IsNull()
	}
}

// Prune removes items rejected by the predicate. Rejected items get no
// classifier; at decode time their absence means probability zero.
func (c *Catalogue) Prune(accept AcceptFunc) {
	for key, item := range c.dais {
		if !accept(c, item) {
			delete(c.dais, key)
			delete(c.counts, key)
		}
	}
}
