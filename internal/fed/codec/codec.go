// Package codec implements the layered tensor wire format for weight
// deltas, plus the float16 + block-compressed wrapper used on the device
// uplink.
//
// Layered binary layout (little-endian):
//
//	u32 layer_count
//	per layer:
//	  u32 name_length, name bytes (UTF-8)
//	  u32 element_count, element_count × float32
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ErrTruncated and friends are returned by Decode for malformed payloads.
var (
	ErrTruncated = fmt.Errorf("gradient payload truncated")
	ErrTrailing  = fmt.Errorf("gradient payload has trailing bytes")
)

// HeaderSize is the minimum valid payload: the u32 layer_count alone.
const HeaderSize = 4

// Encode serializes deltas in the given layer order. Names absent from
// deltas are skipped, so callers pass the architecture's full ordered
// layer list and serialization stays deterministic.
func Encode(deltas map[string][]float32, order []string) []byte {
	layers := make([]string, 0, len(order))
	size := HeaderSize
	for _, name := range order {
		values, ok := deltas[name]
		if !ok {
			continue
		}
		layers = append(layers, name)
		size += 4 + len(name) + 4 + 4*len(values)
	}

	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(layers)))
	for _, name := range layers {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
		values := deltas[name]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(values)))
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return buf
}

// Decode parses a float32 layered payload. Extra trailing bytes are an
// error; so is any element count that overruns the buffer.
func Decode(data []byte) (map[string][]float32, error) {
	r := reader{data: data}
	layerCount, err := r.uint32()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]float32, layerCount)
	for i := uint32(0); i < layerCount; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		elemCount, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if r.remaining() < int(elemCount)*4 {
			return nil, fmt.Errorf("layer %q: %w", name, ErrTruncated)
		}
		values := make([]float32, elemCount)
		for j := range values {
			bits, _ := r.uint32()
			values[j] = math.Float32frombits(bits)
		}
		result[name] = values
	}
	if r.remaining() != 0 {
		return nil, ErrTrailing
	}
	return result, nil
}

// reader is a bounds-checked cursor over a layered payload.
type reader struct {
	data []byte
	off  int
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) uint32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) uint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v, nil
}

func (r *reader) name() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	if r.remaining() < int(n) {
		return "", ErrTruncated
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}
