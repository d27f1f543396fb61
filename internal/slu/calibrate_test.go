package slu

import (
	"testing"
)

func TestCalibrateThresholdSweep(t *testing.T) {
	points := []calibPoint{{0.1, 0}, {0.2, 0}, {0.6, 1}, {0.9, 1}}
	thr := calibrateThreshold(points)
	if thr <= 0.2 || thr >= 0.6 {
		t.Fatalf("threshold = %v, want in (0.2, 0.6)", thr)
	}
}

func TestCalibrateThresholdUnsortedInput(t *testing.T) {
	points := []calibPoint{{0.9, 1}, {0.1, 0}, {0.6, 1}, {0.2, 0}}
	thr := calibrateThreshold(points)
	if thr <= 0.2 || thr >= 0.6 {
		t.Fatalf("threshold = %v, want in (0.2, 0.6)", thr)
	}
}

func TestCalibrateThresholdDefault(t *testing.T) {
	if thr := calibrateThreshold(nil); thr != 0.5 {
		t.Fatalf("empty calibration = %v, want 0.5", thr)
	}
}

func TestCalibrateThresholdTiedGroups(t *testing.T) {
	// Repeated predictions form one group; the walk must treat them as a
	// unit.
	points := []calibPoint{{0.3, 0}, {0.3, 0}, {0.7, 1}, {0.7, 1}}
	thr := calibrateThreshold(points)
	if thr != 0.5 {
		t.Fatalf("threshold = %v, want 0.5 (midpoint of 0.3 and 0.7)", thr)
	}
}

func TestCalibrateThresholdEarliestBoundaryWins(t *testing.T) {
	// Dropping the lowest negative and then dropping the 0.5 group (one
	// positive, two negatives) both reach F-score 2/3; the earliest
	// boundary must win, giving the midpoint of 0.25 and 0.5 rather than
	// that of 0.5 and 0.75.
	points := []calibPoint{{0.25, 0}, {0.5, 1}, {0.5, 0}, {0.5, 0}, {0.75, 1}}
	thr := calibrateThreshold(points)
	if thr != 0.375 {
		t.Fatalf("threshold = %v, want 0.375", thr)
	}
}

func TestCalibrateThresholdEndOfSequence(t *testing.T) {
	// All-negative data: every split ties at F-score zero, the initial
	// boundary is kept and the midpoint of the two lowest predictions is
	// returned.
	points := []calibPoint{{0.3, 0}, {0.7, 0}}
	thr := calibrateThreshold(points)
	if thr != 0.5 {
		t.Fatalf("threshold = %v, want 0.5", thr)
	}

	// A single point has no next distinct value; its own probability is
	// the threshold.
	if thr := calibrateThreshold([]calibPoint{{0.4, 1}}); thr != 0.4 {
		t.Fatalf("single-point threshold = %v, want 0.4", thr)
	}
}
