// Package container adapts the opaque on-disk model container: extracting
// and injecting named weight tensors and mutating the embedded optimizer
// learning rate. The vendor format behind those operations is pluggable;
// the built-in adapter uses a self-describing binary container built from
// the architecture registry.
package container

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/edgeorchestra/edgeorchestra/internal/fed/arch"
	"github.com/edgeorchestra/edgeorchestra/internal/fed/codec"
)

// Adapter is the contract every container implementation must satisfy:
//
//	extract(inject(b, extract(b))) = extract(b)
//	lr(set_lr(b, x)) = x
type Adapter interface {
	Build(a arch.Architecture, weights map[string][]float32, lr float64) ([]byte, error)
	ExtractWeights(blob []byte) (map[string][]float32, error)
	InjectWeights(blob []byte, weights map[string][]float32) ([]byte, error)
	SetLearningRate(blob []byte, lr float64) ([]byte, error)
	LearningRate(blob []byte) (float64, error)
}

// Binary container layout (little-endian):
//
//	"EOC1" magic
//	u32 architecture key length, key bytes
//	u64 learning rate (float64 bits)
//	layered tensor payload (codec format)
var magic = []byte("EOC1")

const headerMin = 4 + 4 + 8

// ErrBadContainer is returned for blobs that are not binary containers.
var ErrBadContainer = fmt.Errorf("not a model container")

// Binary is the built-in Adapter.
type Binary struct{}

// NewBinary returns the default binary container adapter.
func NewBinary() Binary { return Binary{} }

// Build assembles a container for the architecture. Nil weights build the
// deterministic initial model.
func (Binary) Build(a arch.Architecture, weights map[string][]float32, lr float64) ([]byte, error) {
	if weights == nil {
		weights = a.InitWeights()
	}
	for _, name := range a.LayerNames {
		values, ok := weights[name]
		if !ok {
			return nil, fmt.Errorf("build container: layer %q missing", name)
		}
		if want := a.ElementCount(name); len(values) != want {
			return nil, fmt.Errorf("build container: layer %q has %d elements, want %d", name, len(values), want)
		}
	}

	buf := append([]byte(nil), magic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(a.Key)))
	buf = append(buf, a.Key...)
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(lr))
	buf = append(buf, codec.Encode(weights, a.LayerNames)...)
	return buf, nil
}

// ExtractWeights returns every parameter tensor in the container.
func (Binary) ExtractWeights(blob []byte) (map[string][]float32, error) {
	_, _, payload, err := split(blob)
	if err != nil {
		return nil, err
	}
	return codec.Decode(payload)
}

// InjectWeights replaces matching tensors, leaving others untouched.
func (b Binary) InjectWeights(blob []byte, weights map[string][]float32) ([]byte, error) {
	key, lr, payload, err := split(blob)
	if err != nil {
		return nil, err
	}
	a, err := arch.Get(key)
	if err != nil {
		return nil, err
	}
	current, err := codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	for name, values := range weights {
		if _, ok := current[name]; ok {
			current[name] = values
		}
	}
	return b.Build(a, current, lr)
}

// SetLearningRate rewrites the embedded optimizer learning rate.
func (Binary) SetLearningRate(blob []byte, lr float64) ([]byte, error) {
	if _, _, _, err := split(blob); err != nil {
		return nil, err
	}
	out := append([]byte(nil), blob...)
	keyLen := binary.LittleEndian.Uint32(out[4:])
	binary.LittleEndian.PutUint64(out[8+keyLen:], math.Float64bits(lr))
	return out, nil
}

// LearningRate reads the embedded optimizer learning rate.
func (Binary) LearningRate(blob []byte) (float64, error) {
	_, lr, _, err := split(blob)
	return lr, err
}

// ArchitectureKey reads the architecture the container was built for.
func (Binary) ArchitectureKey(blob []byte) (string, error) {
	key, _, _, err := split(blob)
	return key, err
}

func split(blob []byte) (key string, lr float64, payload []byte, err error) {
	if len(blob) < headerMin || string(blob[:4]) != string(magic) {
		return "", 0, nil, ErrBadContainer
	}
	keyLen := int(binary.LittleEndian.Uint32(blob[4:]))
	if len(blob) < headerMin+keyLen {
		return "", 0, nil, ErrBadContainer
	}
	key = string(blob[8 : 8+keyLen])
	lr = math.Float64frombits(binary.LittleEndian.Uint64(blob[8+keyLen:]))
	payload = blob[16+keyLen:]
	return key, lr, payload, nil
}
