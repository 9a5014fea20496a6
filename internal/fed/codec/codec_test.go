package codec

import (
	"bytes"
	"math"
	"testing"
)

func testDeltas() (map[string][]float32, []string) {
	deltas := map[string][]float32{
		"hidden_weight": {0.5, -1.25, 3.75, 0},
		"hidden_bias":   {1.0, 2.0, 3.0},
		"output_bias":   {-0.0625},
	}
	order := []string{"hidden_weight", "hidden_bias", "output_weight", "output_bias"}
	return deltas, order
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	deltas, order := testDeltas()

	data := Encode(deltas, order)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if len(got) != len(deltas) {
		t.Fatalf("decoded %d layers, want %d", len(got), len(deltas))
	}
	for name, want := range deltas {
		values, ok := got[name]
		if !ok {
			t.Fatalf("layer %q missing after round trip", name)
		}
		for i := range want {
			if values[i] != want[i] {
				t.Errorf("layer %q[%d] = %v, want %v", name, i, values[i], want[i])
			}
		}
	}
}

func TestEncodeDeterministicOrder(t *testing.T) {
	deltas, order := testDeltas()

	a := Encode(deltas, order)
	b := Encode(deltas, order)
	if !bytes.Equal(a, b) {
		t.Error("Encode() is not deterministic for the same layer order")
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	deltas, order := testDeltas()
	data := append(Encode(deltas, order), 0xFF)

	if _, err := Decode(data); err == nil {
		t.Error("Decode() should reject trailing bytes")
	}
}

func TestDecodeTruncated(t *testing.T) {
	deltas, order := testDeltas()
	data := Encode(deltas, order)

	for _, cut := range []int{1, 3, 7, len(data) - 1} {
		if _, err := Decode(data[:cut]); err == nil {
			t.Errorf("Decode() accepted payload truncated to %d bytes", cut)
		}
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	data := Encode(map[string][]float32{}, nil)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %d layers from empty payload, want 0", len(got))
	}
}

func TestDecodeOverrunElementCount(t *testing.T) {
	// One layer claiming 1000 elements but carrying none.
	data := []byte{
		1, 0, 0, 0, // layer_count
		1, 0, 0, 0, 'x', // name
		0xE8, 0x03, 0, 0, // element_count = 1000
	}
	if _, err := Decode(data); err == nil {
		t.Error("Decode() accepted element count overrunning the buffer")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	deltas, order := testDeltas()
	raw := Encode(deltas, order)

	compressed, err := Compress(raw)
	if err != nil {
		t.Fatalf("Compress() error: %v", err)
	}
	if compressed[0] != Magic {
		t.Fatalf("compressed payload starts with 0x%02x, want magic 0x%02x", compressed[0], Magic)
	}

	restored, err := Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress() error: %v", err)
	}
	got, err := Decode(restored)
	if err != nil {
		t.Fatalf("Decode() after decompress error: %v", err)
	}

	const rtol = 2e-3
	for name, want := range deltas {
		for i, w := range want {
			g := got[name][i]
			if w == 0 {
				if g != 0 {
					t.Errorf("layer %q[%d] = %v, want 0", name, i, g)
				}
				continue
			}
			if rel := math.Abs(float64(g-w)) / math.Abs(float64(w)); rel > rtol {
				t.Errorf("layer %q[%d] = %v, want %v (rel err %g)", name, i, g, w, rel)
			}
		}
	}
}

func TestDecompressPassthrough(t *testing.T) {
	deltas, order := testDeltas()
	raw := Encode(deltas, order)

	// layer_count of a non-empty payload never starts with the magic byte
	// here (3 layers); a float32 payload must pass through unchanged.
	got, err := Decompress(raw)
	if err != nil {
		t.Fatalf("Decompress() error: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Error("float32 passthrough modified the payload")
	}
}

func TestDecompressSizeMismatch(t *testing.T) {
	deltas, order := testDeltas()
	raw := Encode(deltas, order)

	compressed, err := Compress(raw)
	if err != nil {
		t.Fatalf("Compress() error: %v", err)
	}
	// Corrupt the advertised original size.
	compressed[1] ^= 0xFF
	if _, err := Decompress(compressed); err == nil {
		t.Error("Decompress() accepted a payload with a bad original_size")
	}
}
