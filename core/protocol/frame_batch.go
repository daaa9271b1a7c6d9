// FrameBatch accumulates encoded frames for one Transport.Send call.
// Designed for single-goroutine use; no locks.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// FrameBatch holds a slice of frames for batch transmission.
type FrameBatch struct {
	frames [][]byte
	bytes  int
}

// NewFrameBatch creates a batch with initial capacity `cap`.
func NewFrameBatch(cap int) *FrameBatch {
	return &FrameBatch{frames: make([][]byte, 0, cap)}
}

// Append adds `frame` to the batch.
func (fb *FrameBatch) Append(frame []byte) {
	fb.frames = append(fb.frames, frame)
	fb.bytes += len(frame)
}

// Len reports current batch size.
func (fb *FrameBatch) Len() int {
	return len(fb.frames)
}

// Bytes reports the total encoded size of the batch.
func (fb *FrameBatch) Bytes() int {
	return fb.bytes
}

// Underlying returns the raw slice for Transport.Send.
func (fb *FrameBatch) Underlying() [][]byte {
	return fb.frames
}

// Reset clears the batch but retains capacity.
func (fb *FrameBatch) Reset() {
	clear(fb.frames)
	fb.frames = fb.frames[:0]
	fb.bytes = 0
}
