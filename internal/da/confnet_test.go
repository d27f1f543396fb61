package da

import (
	"math"
	"reflect"
	"testing"
)

func TestAddMergeSemantics(t *testing.T) {
	item := NewDAI("hello", "", "")

	cases := []struct {
		combine CombineMethod
		p1, p2  float64
		want    float64
	}{
		{CombineNew, 0.3, 0.8, 0.8},
		{CombineMax, 0.3, 0.8, 0.8},
		{CombineMax, 0.8, 0.3, 0.8},
		{CombineAdd, 0.5, 0.5, 0.75},
		{CombineArit, 0.2, 0.6, 0.4},
		{CombineHarm, 0.5, 0.5, 0.5},
		{CombineHarm, 0.0, 0.9, 0.0},
	}
	for _, tc := range cases {
		cn := NewConfusionNetwork()
		if err := cn.AddMerge(tc.p1, item, tc.combine); err != nil {
			t.Fatalf("AddMerge() error = %v", err)
		}
		if err := cn.AddMerge(tc.p2, item, tc.combine); err != nil {
			t.Fatalf("AddMerge() error = %v", err)
		}
		if got := cn.Prob(item); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("combine %s: Prob = %v, want %v", tc.combine, got, tc.want)
		}
		if cn.Len() != 1 {
			t.Fatalf("combine %s: Len = %d, want 1", tc.combine, cn.Len())
		}
	}
}

func TestAddMergeMaxIdempotentCommutative(t *testing.T) {
	item := NewDAI("bye", "", "")
	cn := NewConfusionNetwork()
	_ = cn.AddMerge(0.4, item, CombineMax)
	_ = cn.AddMerge(0.4, item, CombineMax)
	if got := cn.Prob(item); got != 0.4 {
		t.Fatalf("max not idempotent: %v", got)
	}
}

func TestMergeBoundsInvariants(t *testing.T) {
	// add is bounded in [0,1]; arit and harm stay within [min, max].
	for _, pair := range [][2]float64{{0.1, 0.9}, {0.5, 0.5}, {0.0, 1.0}, {0.99, 0.97}} {
		p1, p2 := pair[0], pair[1]
		lo, hi := math.Min(p1, p2), math.Max(p1, p2)

		add, _ := combineProbs(p1, p2, CombineAdd)
		if add < 0 || add > 1 {
			t.Fatalf("add(%v,%v) = %v out of [0,1]", p1, p2, add)
		}
		addRev, _ := combineProbs(p2, p1, CombineAdd)
		if math.Abs(add-addRev) > 1e-12 {
			t.Fatalf("add not commutative: %v vs %v", add, addRev)
		}

		arit, _ := combineProbs(p1, p2, CombineArit)
		if arit < lo-1e-12 || arit > hi+1e-12 {
			t.Fatalf("arit(%v,%v) = %v out of [%v,%v]", p1, p2, arit, lo, hi)
		}
		harm, _ := combineProbs(p1, p2, CombineHarm)
		if lo == 0 {
			if harm != 0 {
				t.Fatalf("harm with a zero operand = %v, want 0", harm)
			}
		} else if harm < lo-1e-12 || harm > hi+1e-12 {
			t.Fatalf("harm(%v,%v) = %v out of [%v,%v]", p1, p2, harm, lo, hi)
		}
	}
}

func TestSortDeterministicAndIdempotent(t *testing.T) {
	cn := NewConfusionNetwork()
	cn.Add(0.3, NewDAI("bye", "", ""))
	cn.Add(0.9, NewDAI("hello", "", ""))
	cn.Add(0.3, NewDAI("affirm", "", ""))

	cn.Sort()
	first := append([]ConfnetItem(nil), cn.Items()...)
	cn.Sort()
	if !reflect.DeepEqual(first, cn.Items()) {
		t.Fatalf("Sort() not idempotent")
	}
	if cn.Items()[0].DAI.ActType != "hello" {
		t.Fatalf("Sort() order wrong: %+v", cn.Items())
	}
	// Equal probabilities tie-break on the string form.
	if cn.Items()[1].DAI.ActType != "affirm" {
		t.Fatalf("tie break wrong: %+v", cn.Items())
	}
}

func TestPrune(t *testing.T) {
	cn := NewConfusionNetwork()
	cn.Add(0.5, NewDAI("hello", "", ""))
	cn.Add(0.0001, NewDAI("bye", "", ""))
	cn.Prune()
	if cn.Len() != 1 {
		t.Fatalf("Prune() kept %d items, want 1", cn.Len())
	}
}

func TestMergeConfnets(t *testing.T) {
	hello := NewDAI("hello", "", "")
	bye := NewDAI("bye", "", "")

	cn1 := NewConfusionNetwork()
	cn1.Add(0.9, hello)
	cn2 := NewConfusionNetwork()
	cn2.Add(0.8, bye)
	cn2.Add(0.1, hello)

	merged := MergeConfnets([]WeightedConfnet{{0.6, cn1}, {0.4, cn2}})
	// hello: noisy-OR of 0.54 and 0.04.
	want := 1 - (1-0.54)*(1-0.04)
	if got := merged.Prob(hello); math.Abs(got-want) > 1e-12 {
		t.Fatalf("merged hello = %v, want %v", got, want)
	}
	if got := merged.Prob(bye); math.Abs(got-0.32) > 1e-12 {
		t.Fatalf("merged bye = %v, want 0.32", got)
	}
}
