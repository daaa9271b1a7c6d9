// File: core/protocol/frame_codec.go
// Package protocol implements the datagram frame codec with size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/binary"
	"io"

	"github.com/momentics/chunkmux/api"
)

// Encapsulate prefixes payload with the destination port. The result is a
// fresh slice; payload is not retained.
func Encapsulate(port uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxDatagramPayload {
		return nil, api.NewError(api.ErrCodeCapacityExceeded, "datagram exceeds frame limit").
			WithContext("size", len(payload)).
			WithContext("max", MaxDatagramPayload)
	}
	frame := make([]byte, PortHeaderLen+len(payload))
	binary.BigEndian.PutUint16(frame, port)
	copy(frame[PortHeaderLen:], payload)
	return frame, nil
}

// AppendFrame appends the encapsulated datagram to dst.
func AppendFrame(dst []byte, port uint16, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, port)
	return append(dst, payload...)
}

// Decapsulate splits a frame into port and payload. The payload aliases frame.
func Decapsulate(frame []byte) (uint16, []byte, error) {
	if len(frame) < PortHeaderLen {
		return 0, nil, api.NewError(api.ErrCodeMalformedFraming, "frame shorter than port header").
			WithContext("size", len(frame))
	}
	return binary.BigEndian.Uint16(frame), frame[PortHeaderLen:], nil
}

// WriteFrame writes one length-prefixed frame to w.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFramePayload {
		return api.NewError(api.ErrCodeCapacityExceeded, "frame exceeds maximum allowed size").
			WithContext("size", len(frame))
	}
	var hdr [LengthPrefixLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(frame)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed frame from r, enforcing MaxFramePayload.
// A clean end of stream before the prefix is reported as io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [LengthPrefixLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFramePayload {
		return nil, api.NewError(api.ErrCodeMalformedFraming, "frame payload exceeds maximum allowed size").
			WithContext("size", n)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
