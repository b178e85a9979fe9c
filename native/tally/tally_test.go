package tally

import (
	"math"
	"testing"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name    string
		forW    uint64
		against uint64
		want    Outcome
	}{
		{name: "decisively against", forW: 100, against: 250, want: OutcomeAgainst},
		{name: "inconclusive margin", forW: 100, against: 150, want: OutcomeInconclusive},
		{name: "decisively for", forW: 250, against: 100, want: OutcomeFor},
		{name: "exactly double is not decisive", forW: 200, against: 100, want: OutcomeInconclusive},
		{name: "just over double", forW: 201, against: 100, want: OutcomeFor},
		{name: "zero against zero", forW: 0, against: 0, want: OutcomeInconclusive},
		{name: "any weight beats zero", forW: 1, against: 0, want: OutcomeFor},
		{name: "huge against cannot be doubled", forW: math.MaxUint64, against: math.MaxUint64/2 + 1, want: OutcomeInconclusive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.forW, tc.against); got != tc.want {
				t.Fatalf("Decide(%d, %d) = %v, want %v", tc.forW, tc.against, got, tc.want)
			}
		})
	}
}

func TestDecideSymmetry(t *testing.T) {
	if Decide(100, 250) != OutcomeAgainst || Decide(250, 100) != OutcomeFor {
		t.Fatalf("Decide must mirror when arguments swap")
	}
}

func TestAddWeightSaturates(t *testing.T) {
	if got := AddWeight(10, 20); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if got := AddWeight(math.MaxUint64-5, 10); got != math.MaxUint64 {
		t.Fatalf("expected saturation, got %d", got)
	}
	a := AddWeight(AddWeight(0, 7), 9)
	b := AddWeight(AddWeight(0, 9), 7)
	if a != b {
		t.Fatalf("accumulation must be order independent: %d != %d", a, b)
	}
}

func TestSubWeightFloorsAtZero(t *testing.T) {
	if got := SubWeight(30, 10); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
	if got := SubWeight(10, 30); got != 0 {
		t.Fatalf("expected floor at zero, got %d", got)
	}
	if got := SubWeight(AddWeight(0, 45), 45); got != 0 {
		t.Fatalf("removing the only contribution must yield zero, got %d", got)
	}
}

func TestClampScore(t *testing.T) {
	if got := ClampScore(-50); got != 0 {
		t.Fatalf("negative scores carry zero weight, got %d", got)
	}
	if got := ClampScore(0); got != 0 {
		t.Fatalf("zero score carries zero weight, got %d", got)
	}
	if got := ClampScore(200); got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
}
