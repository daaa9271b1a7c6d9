// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the chunkmux wire framing.
//
// A datagram leaves the transmission pool as one frame:
//
//	[2-byte big-endian destination port][payload]
//
// Stream transports additionally prefix each frame with its 4-byte
// big-endian length. Per-chunk sequence numbers and kinds are local
// bookkeeping and never cross the wire.
package protocol
