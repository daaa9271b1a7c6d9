// Package protocol
// Author: momentics <momentics@gmail.com>
//
// chunkmux wire constants

package protocol

const (
	// PortHeaderLen is the size of the destination port header.
	PortHeaderLen = 2
	// LengthPrefixLen is the size of the stream frame length prefix.
	LengthPrefixLen = 4

	// MaxFramePayload bounds a single frame on a stream transport.
	MaxFramePayload = 1 << 20 // 1 MiB
	// MaxDatagramPayload is the largest datagram that still fits one frame.
	MaxDatagramPayload = MaxFramePayload - PortHeaderLen
)
