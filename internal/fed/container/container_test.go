package container

import (
	"testing"

	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
)

func buildTestContainer(t *testing.T) ([]byte, arch.Architecture) {
	t.Helper()
	a, err := arch.Get("mnist")
	if err != nil {
		t.Fatalf("Get(mnist) error: %v", err)
	}
	blob, err := NewBinary().Build(a, nil, 0.01)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	return blob, a
}

func TestBuildAndExtract(t *testing.T) {
	blob, a := buildTestContainer(t)

	weights, err := NewBinary().ExtractWeights(blob)
	if err != nil {
		t.Fatalf("ExtractWeights() error: %v", err)
	}
	for _, name := range a.LayerNames {
		values, ok := weights[name]
		if !ok {
			t.Fatalf("layer %q missing from extracted weights", name)
		}
		if len(values) != a.ElementCount(name) {
			t.Errorf("layer %q has %d elements, want %d", name, len(values), a.ElementCount(name))
		}
	}
}

func TestInjectExtractSymmetry(t *testing.T) {
	blob, _ := buildTestContainer(t)
	adapter := NewBinary()

	extracted, err := adapter.ExtractWeights(blob)
	if err != nil {
		t.Fatalf("ExtractWeights() error: %v", err)
	}
	injected, err := adapter.InjectWeights(blob, extracted)
	if err != nil {
		t.Fatalf("InjectWeights() error: %v", err)
	}
	again, err := adapter.ExtractWeights(injected)
	if err != nil {
		t.Fatalf("ExtractWeights() after inject error: %v", err)
	}

	for name, want := range extracted {
		got := again[name]
		if len(got) != len(want) {
			t.Fatalf("layer %q length %d, want %d", name, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("layer %q[%d] = %v, want %v", name, i, got[i], want[i])
			}
		}
	}
}

func TestInjectReplacesOnlyMatching(t *testing.T) {
	blob, a := buildTestContainer(t)
	adapter := NewBinary()

	before, _ := adapter.ExtractWeights(blob)
	replacement := make([]float32, a.ElementCount("hidden_bias"))
	for i := range replacement {
		replacement[i] = 42
	}

	injected, err := adapter.InjectWeights(blob, map[string][]float32{
		"hidden_bias": replacement,
		"nonexistent": {1, 2, 3},
	})
	if err != nil {
		t.Fatalf("InjectWeights() error: %v", err)
	}
	after, _ := adapter.ExtractWeights(injected)

	if after["hidden_bias"][0] != 42 {
		t.Errorf("hidden_bias[0] = %v, want 42", after["hidden_bias"][0])
	}
	for i, v := range after["output_weight"] {
		if v != before["output_weight"][i] {
			t.Fatalf("output_weight[%d] changed from %v to %v", i, before["output_weight"][i], v)
		}
	}
}

func TestSetLearningRate(t *testing.T) {
	blob, _ := buildTestContainer(t)
	adapter := NewBinary()

	updated, err := adapter.SetLearningRate(blob, 0.0042)
	if err != nil {
		t.Fatalf("SetLearningRate() error: %v", err)
	}
	lr, err := adapter.LearningRate(updated)
	if err != nil {
		t.Fatalf("LearningRate() error: %v", err)
	}
	if lr != 0.0042 {
		t.Errorf("LearningRate() = %v, want 0.0042", lr)
	}

	// Weights must survive the LR rewrite untouched.
	before, _ := adapter.ExtractWeights(blob)
	after, _ := adapter.ExtractWeights(updated)
	for name := range before {
		for i := range before[name] {
			if before[name][i] != after[name][i] {
				t.Fatalf("layer %q[%d] changed by SetLearningRate", name, i)
			}
		}
	}
}

func TestRejectsForeignBlob(t *testing.T) {
	adapter := NewBinary()
	for _, blob := range [][]byte{nil, {1, 2, 3}, []byte("not a container at all")} {
		if _, err := adapter.ExtractWeights(blob); err == nil {
			t.Errorf("ExtractWeights(%q) accepted a non-container blob", blob)
		}
	}
}

func TestInitWeightsDeterministic(t *testing.T) {
	a, _ := arch.Get("mnist")
	x := a.InitWeights()
	y := a.InitWeights()
	for name := range x {
		for i := range x[name] {
			if x[name][i] != y[name][i] {
				t.Fatalf("InitWeights() not deterministic at %s[%d]", name, i)
			}
		}
	}
	// Biases start at zero.
	for _, v := range x["hidden_bias"] {
		if v != 0 {
			t.Fatal("bias initialization should be zero")
		}
	}
}
