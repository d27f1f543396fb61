// Package da defines dialogue acts, dialogue act items and the confusion
// network of dialogue act items produced by SLU decoding.
package da

import (
	"fmt"
	"sort"
	"strings"
)

// OtherValue is the sentinel slot value meaning "not among known values".
const OtherValue = "[OTHER]"

// DialogueActItem is an (act type, slot, value) triple. Slot and value may be
// empty. Two items are equal iff all three fields are equal.
type DialogueActItem struct {
	ActType string
	Slot    string
	Value   string

	// CategoryLabel tags a concrete value with the label it was abstracted
	// from (e.g. "CITY" for value "paris"). Empty when unknown.
	CategoryLabel string

	// Generic marks the value itself as a category-label placeholder.
	// A generic item always has a non-empty value.
	Generic bool

	// OrigValues are the unnormalised surface forms observed in training,
	// in observation order.
	OrigValues []string
}

// NewDAI builds a concrete dialogue act item.
func NewDAI(actType, slot, value string) DialogueActItem {
	return DialogueActItem{ActType: actType, Slot: slot, Value: value}
}

// NewGenericDAI builds an item whose value is a category-label placeholder.
func NewGenericDAI(actType, slot, label string) DialogueActItem {
	if label == "" {
		panic("da: generic item requires a non-empty category label")
	}
	return DialogueActItem{ActType: actType, Slot: slot, Value: label, Generic: true}
}

// Equal reports field equality on the (act type, slot, value) triple.
func (d DialogueActItem) Equal(o DialogueActItem) bool {
	return d.ActType == o.ActType && d.Slot == o.Slot && d.Value == o.Value
}

// Key returns the canonical string form, usable as a map key.
func (d DialogueActItem) Key() string { return d.String() }

// String renders the item as act(slot="value"); generic values are unquoted.
func (d DialogueActItem) String() string {
	switch {
	case d.Slot == "" && d.Value == "":
		return d.ActType + "()"
	case d.Value == "":
		return fmt.Sprintf("%s(%s)", d.ActType, d.Slot)
	case d.Generic:
		return fmt.Sprintf("%s(%s=%s)", d.ActType, d.Slot, d.Value)
	default:
		return fmt.Sprintf("%s(%s=%q)", d.ActType, d.Slot, d.Value)
	}
}

// IsNull reports whether this is the null dialogue act item.
func (d DialogueActItem) IsNull() bool {
	return (d.ActType == "" || d.ActType == "null") && d.Slot == "" && d.Value == ""
}

// IsCategoryLabel reports whether the value is a category-label placeholder
// rather than a concrete surface value.
func (d DialogueActItem) IsCategoryLabel() bool { return d.Generic }

// GetGeneric returns the item with its value replaced by the category label.
// Items without a known label are returned unchanged.
func (d DialogueActItem) GetGeneric() DialogueActItem {
	if d.Generic {
		return d
	}
	if d.CategoryLabel == "" {
		return d
	}
	g := NewGenericDAI(d.ActType, d.Slot, d.CategoryLabel)
	return g
}

// WithCategoryLabel returns a copy tagged with the given category label.
func (d DialogueActItem) WithCategoryLabel(label string) DialogueActItem {
	d.CategoryLabel = label
	return d
}

// WithOrigValue returns a copy with the surface form appended to OrigValues
// (deduplicated, order preserved).
func (d DialogueActItem) WithOrigValue(orig string) DialogueActItem {
	for _, v := range d.OrigValues {
		if v == orig {
			return d
		}
	}
	vals := make([]string, 0, len(d.OrigValues)+1)
	vals = append(vals, d.OrigValues...)
	vals = append(vals, orig)
	d.OrigValues = vals
	return d
}

// FirstOrigValue returns the first observed surface form, falling back to the
// value itself.
func (d DialogueActItem) FirstOrigValue() string {
	if len(d.OrigValues) > 0 {
		return d.OrigValues[0]
	}
	return d.Value
}

// Other returns the other() item used for out-of-domain hypotheses.
func Other() DialogueActItem { return NewDAI("other", "", "") }

// DialogueAct is an unordered set of dialogue act items.
type DialogueAct struct {
	items []DialogueActItem
}

// NewDA builds a dialogue act from the given items, deduplicating.
func NewDA(items ...DialogueActItem) *DialogueAct {
	a := &DialogueAct{}
	for _, it := range items {
		a.Append(it)
	}
	return a
}

// Append adds an item unless an equal one is already present.
func (a *DialogueAct) Append(item DialogueActItem) {
	if a.Contains(item) {
		return
	}
	a.items = append(a.items, item)
}

// Contains tests membership under triple equality.
func (a *DialogueAct) Contains(item DialogueActItem) bool {
	if a == nil {
		return false
	}
	for _, it := range a.items {
		if it.Equal(item) {
			return true
		}
	}
	return false
}

// Items returns the items in insertion order.
func (a *DialogueAct) Items() []DialogueActItem {
	if a == nil {
		return nil
	}
	return a.items
}

// Len returns the number of items.
func (a *DialogueAct) Len() int {
	if a == nil {
		return 0
	}
	return len(a.items)
}

// String joins the sorted items with '&'.
func (a *DialogueAct) String() string {
	if a == nil || len(a.items) == 0 {
		return "null()"
	}
	strs := make([]string, len(a.items))
	for i, it := range a.items {
		strs[i] = it.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, "&")
}

// ParseDA parses the textual form act(slot="value")&act2(...) into a
// dialogue act. Unquoted values parse as generic (category-label) items.
func ParseDA(text string) (*DialogueAct, error) {
	a := NewDA()
	text = strings.TrimSpace(text)
	if text == "" || text == "null()" {
		return a, nil
	}
	for _, part := range strings.Split(text, "&") {
		item, err := ParseDAI(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		a.Append(item)
	}
	return a, nil
}

// ParseDAI parses a single act(slot="value") form.
func ParseDAI(text string) (DialogueActItem, error) {
	open := strings.IndexByte(text, '(')
	if open <= 0 || !strings.HasSuffix(text, ")") {
		return DialogueActItem{}, fmt.Errorf("da: malformed item %q", text)
	}
	act := text[:open]
	inner := text[open+1 : len(text)-1]
	if inner == "" {
		return NewDAI(act, "", ""), nil
	}
	eq := strings.IndexByte(inner, '=')
	if eq < 0 {
		return NewDAI(act, inner, ""), nil
	}
	slot := inner[:eq]
	value := inner[eq+1:]
	if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) && len(value) >= 2 {
		return NewDAI(act, slot, value[1:len(value)-1]), nil
	}
	return NewGenericDAI(act, slot, value), nil
}
