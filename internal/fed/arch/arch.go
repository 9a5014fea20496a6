// Package arch is the static registry of model architectures supported by
// the orchestrator. The registry is the authoritative source for which
// tensor names are valid for a model and in what order they serialize.
package arch

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Architecture describes one supported model family.
type Architecture struct {
	Key         string           `json:"key"`
	Name        string           `json:"name"`
	InputShape  []int            `json:"input_shape"`
	NumClasses  int              `json:"num_classes"`
	LayerNames  []string         `json:"layer_names"`
	LayerShapes map[string][]int `json:"-"`
}

// DefaultKey is the architecture used when a job has no explicit model.
const DefaultKey = "mnist"

var registry = map[string]Architecture{
	"mnist": {
		Key:        "mnist",
		Name:       "MNIST Classifier (784→128→10)",
		InputShape: []int{1, 28, 28},
		NumClasses: 10,
		LayerNames: []string{"hidden_weight", "hidden_bias", "output_weight", "output_bias"},
		LayerShapes: map[string][]int{
			"hidden_weight": {128, 784},
			"hidden_bias":   {128},
			"output_weight": {10, 128},
			"output_bias":   {10},
		},
	},
	"cifar10": {
		Key:        "cifar10",
		Name:       "CIFAR-10 Classifier (3072→256→128→10)",
		InputShape: []int{3, 32, 32},
		NumClasses: 10,
		LayerNames: []string{
			"hidden1_weight", "hidden1_bias",
			"hidden2_weight", "hidden2_bias",
			"output_weight", "output_bias",
		},
		LayerShapes: map[string][]int{
			"hidden1_weight": {256, 3072},
			"hidden1_bias":   {256},
			"hidden2_weight": {128, 256},
			"hidden2_bias":   {128},
			"output_weight":  {10, 128},
			"output_bias":    {10},
		},
	},
}

// Get returns the architecture for key.
func Get(key string) (Architecture, error) {
	a, ok := registry[key]
	if !ok {
		return Architecture{}, fmt.Errorf("unknown architecture %q", key)
	}
	return a, nil
}

// List returns all registered architectures, ordered by key.
func List() []Architecture {
	out := make([]Architecture, 0, len(registry))
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ElementCount returns the flat element count of a named layer, or 0 for
// unknown names.
func (a Architecture) ElementCount(name string) int {
	shape, ok := a.LayerShapes[name]
	if !ok {
		return 0
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// InitWeights produces the deterministic initial weights for the
// architecture: He initialization for matrices, zeros for biases. The
// fixed seed makes initial models reproducible across restarts.
func (a Architecture) InitWeights() map[string][]float32 {
	rng := rand.New(rand.NewSource(0))
	weights := make(map[string][]float32, len(a.LayerNames))
	for _, name := range a.LayerNames {
		shape := a.LayerShapes[name]
		n := a.ElementCount(name)
		values := make([]float32, n)
		if len(shape) > 1 {
			scale := math.Sqrt(2.0 / float64(shape[1]))
			for i := range values {
				values[i] = float32(rng.NormFloat64() * scale)
			}
		}
		weights[name] = values
	}
	return weights
}
