package fedavg

import (
	"math"
	"testing"
)

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-6
}

func TestAggregateSingleUpdate(t *testing.T) {
	u := Update{
		Deltas:     map[string][]float32{"hidden_bias": {1, 2, 3}},
		NumSamples: 10,
	}

	got := Aggregate([]Update{u})
	want := []float32{1, 2, 3}
	for i := range want {
		if !almostEqual(got["hidden_bias"][i], want[i]) {
			t.Errorf("hidden_bias[%d] = %v, want %v", i, got["hidden_bias"][i], want[i])
		}
	}
}

func TestAggregateSameDeltasAnyWeights(t *testing.T) {
	deltas := map[string][]float32{"output_bias": {4, -2}}
	updates := []Update{
		{Deltas: deltas, NumSamples: 3},
		{Deltas: deltas, NumSamples: 17},
	}

	got := Aggregate(updates)
	for i, want := range []float32{4, -2} {
		if !almostEqual(got["output_bias"][i], want) {
			t.Errorf("output_bias[%d] = %v, want %v", i, got["output_bias"][i], want)
		}
	}
}

func TestAggregateWeightedMean(t *testing.T) {
	updates := []Update{
		{Deltas: map[string][]float32{"b": {0}}, NumSamples: 1},
		{Deltas: map[string][]float32{"b": {4}}, NumSamples: 3},
	}

	got := Aggregate(updates)
	if !almostEqual(got["b"][0], 3) {
		t.Errorf("b[0] = %v, want 3 (1/4·0 + 3/4·4)", got["b"][0])
	}
}

func TestAggregateMissingLayerContributesZero(t *testing.T) {
	updates := []Update{
		{Deltas: map[string][]float32{"a": {2}}, NumSamples: 1},
		{Deltas: map[string][]float32{"b": {2}}, NumSamples: 1},
	}

	got := Aggregate(updates)
	if !almostEqual(got["a"][0], 1) || !almostEqual(got["b"][0], 1) {
		t.Errorf("got a=%v b=%v, want 1 and 1", got["a"][0], got["b"][0])
	}
}

func TestAggregateZeroSamples(t *testing.T) {
	updates := []Update{
		{Deltas: map[string][]float32{"a": {1}}, NumSamples: 0},
	}

	got := Aggregate(updates)
	if len(got) != 0 {
		t.Errorf("Aggregate() with zero samples = %v, want empty map", got)
	}
}

func TestApplyAdds(t *testing.T) {
	weights := map[string][]float32{
		"hidden_bias": {10, 20, 30},
		"untouched":   {5},
	}
	deltas := map[string][]float32{"hidden_bias": {1, 2, 3}}

	got, err := Apply(weights, deltas)
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	for i, want := range []float32{11, 22, 33} {
		if !almostEqual(got["hidden_bias"][i], want) {
			t.Errorf("hidden_bias[%d] = %v, want %v", i, got["hidden_bias"][i], want)
		}
	}
	if !almostEqual(got["untouched"][0], 5) {
		t.Errorf("untouched layer changed: %v", got["untouched"][0])
	}
}

func TestApplyEmptyDeltasIsIdentity(t *testing.T) {
	weights := map[string][]float32{"w": {1, 2}, "b": {3}}

	got, err := Apply(weights, map[string][]float32{})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	for name, want := range weights {
		for i := range want {
			if got[name][i] != want[i] {
				t.Errorf("%s[%d] = %v, want %v", name, i, got[name][i], want[i])
			}
		}
	}
}

func TestApplyLengthMismatch(t *testing.T) {
	weights := map[string][]float32{"w": {1, 2, 3}}
	deltas := map[string][]float32{"w": {1}}

	if _, err := Apply(weights, deltas); err == nil {
		t.Error("Apply() should reject a delta with the wrong length")
	}
}

func TestCosineLR(t *testing.T) {
	base := 0.1
	lrMin := base * 0.01

	// Round 0 is the maximum, round N the minimum.
	if got := CosineLR(base, 0, 10); math.Abs(got-base) > 1e-12 {
		t.Errorf("CosineLR(round 0) = %v, want %v", got, base)
	}
	if got := CosineLR(base, 10, 10); math.Abs(got-lrMin) > 1e-12 {
		t.Errorf("CosineLR(round N) = %v, want %v", got, lrMin)
	}

	// Monotone non-increasing across rounds.
	prev := math.Inf(1)
	for r := 0; r <= 10; r++ {
		lr := CosineLR(base, r, 10)
		if lr > prev+1e-12 {
			t.Errorf("CosineLR increased at round %d: %v > %v", r, lr, prev)
		}
		prev = lr
	}
}
