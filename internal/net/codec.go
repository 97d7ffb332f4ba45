package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the length prefix of every frame.
const HeaderSize = 4

// ReadFrame reads one frame from r.
// Wire format: [4 bytes LE: payload length][payload].
// Payloads must be non-empty and at most maxSize bytes.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	payloadLen := binary.LittleEndian.Uint32(header[:])
	if payloadLen == 0 || int64(payloadLen) > int64(maxSize) {
		return nil, fmt.Errorf("invalid frame length: %d", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return payload, nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, data []byte) error {
	frame := make([]byte, HeaderSize+len(data))
	binary.LittleEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[HeaderSize:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
