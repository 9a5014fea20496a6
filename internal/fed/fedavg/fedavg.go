// Package fedavg implements federated averaging of device weight deltas
// and the additive apply step that folds them into the global weights.
//
// Devices send weight deltas, not loss gradients: the local learning rate
// is baked into the on-device step, so Apply is a plain addition.
package fedavg

import (
	"fmt"
	"math"
)

// Update is one device's decoded contribution to a round.
type Update struct {
	Deltas     map[string][]float32
	NumSamples int
}

// Aggregate computes the sample-weighted mean of the updates. Layers
// missing from an update contribute zero. A zero total sample count
// yields the empty map.
func Aggregate(updates []Update) map[string][]float32 {
	total := 0
	for _, u := range updates {
		total += u.NumSamples
	}
	if total == 0 {
		return map[string][]float32{}
	}

	accumulated := make(map[string][]float32)
	for _, u := range updates {
		weight := float32(float64(u.NumSamples) / float64(total))
		for name, values := range u.Deltas {
			acc, ok := accumulated[name]
			if !ok {
				acc = make([]float32, len(values))
				accumulated[name] = acc
			}
			n := len(values)
			if n > len(acc) {
				n = len(acc)
			}
			for i := 0; i < n; i++ {
				acc[i] += values[i] * weight
			}
		}
	}
	return accumulated
}

// Apply folds averaged deltas into weights: new = old + delta. Layers
// absent from deltas are copied unchanged. A delta whose length does not
// match its layer is an error.
func Apply(weights, deltas map[string][]float32) (map[string][]float32, error) {
	result := make(map[string][]float32, len(weights))
	for name, w := range weights {
		out := make([]float32, len(w))
		copy(out, w)
		if d, ok := deltas[name]; ok {
			if len(d) != len(w) {
				return nil, fmt.Errorf("layer %q: delta has %d elements, weights have %d", name, len(d), len(w))
			}
			for i := range out {
				out[i] += d[i]
			}
		}
		result[name] = out
	}
	return result, nil
}

// CosineLR returns the cosine-decayed learning rate for a round:
// lr_min + ½(lr_max − lr_min)(1 + cos(π·r/N)) with lr_min = 0.01·lr_max.
// Written into the model container before each round's dispatch.
func CosineLR(base float64, round, numRounds int) float64 {
	lrMin := base * 0.01
	return lrMin + 0.5*(base-lrMin)*(1+math.Cos(math.Pi*float64(round)/float64(numRounds)))
}
