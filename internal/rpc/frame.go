package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Model transfer framing: each frame is a type byte, a u32 little-endian
// payload length, then the payload. A transfer starts with one metadata
// frame (JSON) followed by chunk frames carrying the blob in order.
const (
	frameMetadata byte = 0x00
	frameChunk    byte = 0x01

	// chunkSize is the slice size for model downloads.
	chunkSize = 32 * 1024

	// maxFrameSize bounds a single frame so a bad length prefix cannot
	// force a huge allocation.
	maxFrameSize = 64 << 20
)

var errFrameTooLarge = errors.New("frame exceeds size limit")

func writeFrame(w io.Writer, frameType byte, payload []byte) error {
	header := [5]byte{frameType}
	binary.LittleEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame returns the next frame, or io.EOF at a clean end of stream.
func readFrame(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("truncated frame header")
		}
		return 0, nil, err
	}
	size := binary.LittleEndian.Uint32(header[1:])
	if size > maxFrameSize {
		return 0, nil, errFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("truncated frame payload")
	}
	return header[0], payload, nil
}
