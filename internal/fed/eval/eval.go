// Package eval runs the server-side forward pass that scores the global
// model against a held-out dataset after every aggregation round.
package eval

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
)

// Evaluator caches one held-out dataset per architecture. Datasets are
// loaded from <data dir>/<arch>_test.bin when present; otherwise a
// deterministic synthetic set keeps evaluation functional on fresh
// installs.
type Evaluator struct {
	mu       sync.Mutex
	dataDir  string
	log      zerolog.Logger
	datasets map[string]*dataset
}

type dataset struct {
	features *mat.Dense // n × input_dim
	labels   []int
}

// New creates an evaluator rooted at dataDir.
func New(dataDir string, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		dataDir:  dataDir,
		log:      log.With().Str("component", "evaluator").Logger(),
		datasets: make(map[string]*dataset),
	}
}

// Evaluate runs the architecture's MLP over the held-out set and returns
// (cross-entropy loss, accuracy).
func (e *Evaluator) Evaluate(weights map[string][]float32, a arch.Architecture) (float64, float64, error) {
	ds, err := e.dataset(a)
	if err != nil {
		return 0, 0, err
	}

	// The layer list comes in (weight, bias) pairs; every hidden layer is
	// followed by ReLU, the last produces logits.
	if len(a.LayerNames)%2 != 0 {
		return 0, 0, fmt.Errorf("architecture %q has unpaired layers", a.Key)
	}
	activations := ds.features
	for pair := 0; pair < len(a.LayerNames)/2; pair++ {
		wName := a.LayerNames[2*pair]
		bName := a.LayerNames[2*pair+1]
		wShape := a.LayerShapes[wName]
		w, ok := weights[wName]
		if !ok {
			return 0, 0, fmt.Errorf("evaluate: layer %q missing", wName)
		}
		b, ok := weights[bName]
		if !ok {
			return 0, 0, fmt.Errorf("evaluate: layer %q missing", bName)
		}
		if len(w) != wShape[0]*wShape[1] || len(b) != wShape[0] {
			return 0, 0, fmt.Errorf("evaluate: layer %q shape mismatch", wName)
		}

		wm := mat.NewDense(wShape[0], wShape[1], widenToF64(w))
		n, _ := activations.Dims()
		out := mat.NewDense(n, wShape[0], nil)
		out.Mul(activations, wm.T())

		last := pair == len(a.LayerNames)/2-1
		bias := widenToF64(b)
		out.Apply(func(_, j int, v float64) float64 {
			v += bias[j]
			if !last && v < 0 {
				return 0
			}
			return v
		}, out)
		activations = out
	}

	return scoreLogits(activations, ds.labels, a.NumClasses)
}

// scoreLogits computes softmax cross-entropy and accuracy.
func scoreLogits(logits *mat.Dense, labels []int, numClasses int) (float64, float64, error) {
	n, cols := logits.Dims()
	if cols != numClasses || n != len(labels) {
		return 0, 0, fmt.Errorf("evaluate: logits are %dx%d for %d labels", n, cols, len(labels))
	}

	var lossSum float64
	correct := 0
	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)
		maxV, argmax := row[0], 0
		for j, v := range row {
			if v > maxV {
				maxV, argmax = v, j
			}
		}
		var expSum float64
		for _, v := range row {
			expSum += math.Exp(v - maxV)
		}
		p := math.Exp(row[labels[i]]-maxV) / expSum
		if p < 1e-12 {
			p = 1e-12
		}
		lossSum += -math.Log(p)
		if argmax == labels[i] {
			correct++
		}
	}
	return lossSum / float64(n), float64(correct) / float64(n), nil
}

func (e *Evaluator) dataset(a arch.Architecture) (*dataset, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ds, ok := e.datasets[a.Key]; ok {
		return ds, nil
	}

	inputDim := 1
	for _, d := range a.InputShape {
		inputDim *= d
	}

	path := filepath.Join(e.dataDir, a.Key+"_test.bin")
	ds, err := loadDataset(path, inputDim, a.NumClasses)
	if err == nil {
		n, _ := ds.features.Dims()
		e.log.Info().Str("architecture", a.Key).Int("samples", n).Msg("held-out dataset loaded")
	} else {
		if !os.IsNotExist(err) {
			e.log.Warn().Err(err).Str("path", path).Msg("held-out dataset unreadable, using synthetic")
		}
		ds = syntheticDataset(inputDim, a.NumClasses)
	}
	e.datasets[a.Key] = ds
	return ds, nil
}

// loadDataset reads [u32 n][u32 dim][n×dim float32][n u32 labels].
func loadDataset(path string, wantDim, numClasses int) (*dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, fmt.Errorf("dataset %s: short header", path)
	}
	n := int(binary.LittleEndian.Uint32(data))
	dim := int(binary.LittleEndian.Uint32(data[4:]))
	if dim != wantDim {
		return nil, fmt.Errorf("dataset %s: dim %d, want %d", path, dim, wantDim)
	}
	need := 8 + n*dim*4 + n*4
	if len(data) != need {
		return nil, fmt.Errorf("dataset %s: %d bytes, want %d", path, len(data), need)
	}

	features := make([]float64, n*dim)
	off := 8
	for i := range features {
		features[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off:])))
		off += 4
	}
	labels := make([]int, n)
	for i := range labels {
		l := int(binary.LittleEndian.Uint32(data[off:]))
		off += 4
		if l < 0 || l >= numClasses {
			return nil, fmt.Errorf("dataset %s: label %d out of range", path, l)
		}
		labels[i] = l
	}
	return &dataset{features: mat.NewDense(n, dim, features), labels: labels}, nil
}

// syntheticDataset builds a fixed pseudo-random held-out set so loss and
// accuracy stay comparable run to run.
func syntheticDataset(dim, numClasses int) *dataset {
	const n = 256
	// xorshift keeps this free of global rand state.
	state := uint64(0x9E3779B97F4A7C15)
	next := func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%1000) / 1000.0
	}

	features := make([]float64, n*dim)
	for i := range features {
		features[i] = next()
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i % numClasses
	}
	return &dataset{features: mat.NewDense(n, dim, features), labels: labels}
}

func widenToF64(values []float32) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
