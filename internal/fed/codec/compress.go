package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/s2"
	"github.com/x448/float16"
)

// Magic marks a compressed payload. Payloads not starting with it are
// treated as uncompressed float32 (backward-compatible passthrough).
const Magic = 0x01

// compressed wrapper: [Magic][u32 original_size of f16 payload][s2 block].
const compressHeader = 5

// ErrSizeMismatch is returned when the advertised original_size does not
// match the decompressed payload.
var ErrSizeMismatch = fmt.Errorf("compressed gradient size mismatch")

// Compress quantizes a float32 layered payload to float16 and block
// compresses it behind the magic header.
func Compress(raw []byte) ([]byte, error) {
	f16, err := quantize(raw)
	if err != nil {
		return nil, fmt.Errorf("quantize gradients: %w", err)
	}
	out := make([]byte, compressHeader, compressHeader+s2.MaxEncodedLen(len(f16)))
	out[0] = Magic
	binary.LittleEndian.PutUint32(out[1:], uint32(len(f16)))
	return append(out, s2.Encode(nil, f16)...), nil
}

// Decompress detects the magic byte and, if present, block-decompresses
// and widens float16 → float32. Without the magic, data passes through
// untouched.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != Magic {
		return data, nil
	}
	if len(data) < compressHeader {
		return nil, ErrTruncated
	}
	originalSize := binary.LittleEndian.Uint32(data[1:])
	f16, err := s2.Decode(nil, data[compressHeader:])
	if err != nil {
		return nil, fmt.Errorf("decompress gradients: %w", err)
	}
	if uint32(len(f16)) != originalSize {
		return nil, fmt.Errorf("%w: advertised %d, got %d", ErrSizeMismatch, originalSize, len(f16))
	}
	return widen(f16)
}

// quantize rewrites a float32 layered payload with 2-byte float16 values.
func quantize(data []byte) ([]byte, error) {
	r := reader{data: data}
	layerCount, err := r.uint32()
	if err != nil {
		return nil, err
	}

	out := binary.LittleEndian.AppendUint32(nil, layerCount)
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
		out = binary.LittleEndian.AppendUint32(out, uint32(len(name)))
		out = append(out, name...)
		out = binary.LittleEndian.AppendUint32(out, elemCount)
		for j := uint32(0); j < elemCount; j++ {
			bits, _ := r.uint32()
			f := float16.Fromfloat32(math.Float32frombits(bits))
			out = binary.LittleEndian.AppendUint16(out, f.Bits())
		}
	}
	if r.remaining() != 0 {
		return nil, ErrTrailing
	}
	return out, nil
}

// widen rewrites a float16 layered payload with 4-byte float32 values.
func widen(data []byte) ([]byte, error) {
	r := reader{data: data}
	layerCount, err := r.uint32()
	if err != nil {
		return nil, err
	}

	out := binary.LittleEndian.AppendUint32(nil, layerCount)
	for i := uint32(0); i < layerCount; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		elemCount, err := r.uint32()
		if err != nil {
			return nil, err
		}
		if r.remaining() < int(elemCount)*2 {
			return nil, fmt.Errorf("layer %q: %w", name, ErrTruncated)
		}
		out = binary.LittleEndian.AppendUint32(out, uint32(len(name)))
		out = append(out, name...)
		out = binary.LittleEndian.AppendUint32(out, elemCount)
		for j := uint32(0); j < elemCount; j++ {
			bits, _ := r.uint16()
			v := float16.Frombits(bits).Float32()
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}
	if r.remaining() != 0 {
		return nil, ErrTrailing
	}
	return out, nil
}
