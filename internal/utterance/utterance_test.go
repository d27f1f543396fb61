package utterance

import (
	"reflect"
	"testing"
)

func TestNewTokenises(t *testing.T) {
	u := New("i want  chinese food")
	if got, want := u.Words, []string{"i", "want", "chinese", "food"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Words = %#v, want %#v", got, want)
	}
	if u.String() != "i want chinese food" {
		t.Fatalf("String() = %q", u.String())
	}
}

func TestConfnetBestPath(t *testing.T) {
	cn := &ConfusionNetwork{Slots: [][]WordHyp{
		{{0.6, "go"}, {0.4, "no"}},
		{{0.9, "to"}, {0.1, ""}},
		{{0.3, ""}, {0.7, "paris"}},
	}}
	if got := cn.BestPath().String(); got != "go to paris" {
		t.Fatalf("BestPath() = %q, want %q", got, "go to paris")
	}
	// Epsilon winners are dropped.
	cn.Slots[2] = []WordHyp{{0.8, ""}, {0.2, "paris"}}
	if got := cn.BestPath().String(); got != "go to" {
		t.Fatalf("BestPath() = %q, want %q", got, "go to")
	}
}
