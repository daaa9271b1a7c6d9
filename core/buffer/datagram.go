// File: core/buffer/datagram.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Datagram-granular write and read. A datagram of n bytes occupies
// ceil(n/chunkSize) chunks; only the first carries the total length.
// All preconditions are checked before the ring is touched.

package buffer

import (
	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/chunk"
)

// WriteDatagram appends data as one framed datagram.
func (b *Buffer) WriteDatagram(data []byte) error {
	b.arena.Lock()
	defer b.arena.Unlock()
	size := len(data)
	if err := b.checkWritable(size); err != nil {
		return err
	}
	cs := b.arena.ChunkSize()
	return b.writeChunks(size, func(c *chunk.Chunk, i int) (int, error) {
		off := i * cs
		return c.Write(data[off:min(off+cs, size)])
	})
}

// WritePacket appends the remaining bytes of src as one framed datagram,
// consuming src.
func (b *Buffer) WritePacket(src api.Packet) error {
	b.arena.Lock()
	defer b.arena.Unlock()
	size := src.Len()
	if err := b.checkWritable(size); err != nil {
		return err
	}
	return b.writeChunks(size, func(c *chunk.Chunk, _ int) (int, error) {
		return c.WriteFrom(src)
	})
}

func (b *Buffer) checkWritable(size int) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if size == 0 {
		return api.NewError(api.ErrCodeInvalidArgument, "zero-length datagram")
	}
	if need := b.ChunksFor(size); need > b.freeLocked() {
		cs := b.arena.ChunkSize()
		return api.NewError(api.ErrCodeCapacityExceeded, "datagram does not fit").
			WithContext("size", size).
			WithContext("free_bytes", b.freeLocked()*cs).
			WithContext("chunks_needed", need)
	}
	return nil
}

// writeChunks fills ceil(size/chunkSize) free chunks. A failing fill rolls
// the ring back so no partial datagram is ever visible.
func (b *Buffer) writeChunks(size int, fill func(c *chunk.Chunk, i int) (int, error)) error {
	n := b.ChunksFor(size)
	origEnd, origSeq := b.end, b.seq
	written := 0
	for i := 0; i < n; i++ {
		b.end = b.arena.Next(b.end)
		c := b.arena.Chunk(b.end)
		w, err := fill(c, i)
		if err != nil {
			b.rollback(origEnd, i+1)
			b.seq = origSeq
			return err
		}
		written += w
		if i == 0 {
			c.MarkAsDatagramStart(size)
		}
		c.SetMetadata(b.dest, b.seq, b.kind)
		b.seq++
	}
	if written != size {
		b.rollback(origEnd, n)
		b.seq = origSeq
		return api.NewError(api.ErrCodeMalformedFraming, "short datagram write").
			WithContext("size", size).
			WithContext("written", written)
	}
	b.nodeCount += n
	return nil
}

func (b *Buffer) rollback(origEnd chunk.Handle, touched int) {
	h := origEnd
	for i := 0; i < touched; i++ {
		h = b.arena.Next(h)
		b.arena.Chunk(h).Reset()
	}
	b.end = origEnd
}

// Peek describes the head datagram without consuming it.
func (b *Buffer) Peek() (Header, error) {
	b.arena.Lock()
	defer b.arena.Unlock()
	return b.peekLocked()
}

func (b *Buffer) peekLocked() (Header, error) {
	if err := b.checkOpen(); err != nil {
		return Header{}, err
	}
	if b.nodeCount == 0 {
		return Header{}, api.ErrEmptyBuffer
	}
	h := b.arena.Next(b.start)
	c := b.arena.Chunk(h)
	if !c.IsHeader() {
		return Header{}, api.NewError(api.ErrCodeMalformedFraming, "head chunk is not a datagram header").
			WithContext("node_count", b.nodeCount)
	}
	length := c.DatagramLen()
	n := b.ChunksFor(length)
	if n == 0 || n > b.nodeCount {
		return Header{}, api.NewError(api.ErrCodeMalformedFraming, "datagram spans more chunks than buffered").
			WithContext("length", length).
			WithContext("node_count", b.nodeCount)
	}
	meta := c.Metadata()
	return Header{Length: length, Chunks: n, Dest: meta.Dest, Seq: meta.Seq, Kind: meta.Kind}, nil
}

// ReadDatagram copies the head datagram into dst and frees its chunks.
// dst must hold at least the datagram length (see Peek); otherwise nothing is consumed.
func (b *Buffer) ReadDatagram(dst []byte) (int, error) {
	b.arena.Lock()
	defer b.arena.Unlock()
	hdr, err := b.peekLocked()
	if err != nil {
		return 0, err
	}
	if len(dst) < hdr.Length {
		return 0, api.NewError(api.ErrCodeShortBuffer, "datagram does not fit destination").
			WithContext("length", hdr.Length).
			WithContext("have", len(dst))
	}
	return b.readLocked(dst, hdr)
}

// AppendDatagram appends the head datagram to dst and frees its chunks.
func (b *Buffer) AppendDatagram(dst []byte) ([]byte, Header, error) {
	b.arena.Lock()
	defer b.arena.Unlock()
	hdr, err := b.peekLocked()
	if err != nil {
		return dst, Header{}, err
	}
	off := len(dst)
	dst = append(dst, make([]byte, hdr.Length)...)
	n, err := b.readLocked(dst[off:], hdr)
	return dst[:off+n], hdr, err
}

func (b *Buffer) readLocked(dst []byte, hdr Header) (int, error) {
	if err := b.verifyDatagram(hdr); err != nil {
		return 0, err
	}
	off := 0
	for i := 0; i < hdr.Chunks; i++ {
		b.start = b.arena.Next(b.start)
		n, err := b.arena.Chunk(b.start).Read(dst[off:])
		if err != nil {
			// verifyDatagram guarantees the sizes; reaching this means the ring is corrupt
			panic("buffer: chunk ring corrupted during read: " + err.Error())
		}
		off += n
	}
	b.nodeCount -= hdr.Chunks
	return off, nil
}

// verifyDatagram checks that the continuation chunks carry no header and that
// their payload adds up to the datagram length.
func (b *Buffer) verifyDatagram(hdr Header) error {
	h := b.start
	total := 0
	for i := 0; i < hdr.Chunks; i++ {
		h = b.arena.Next(h)
		c := b.arena.Chunk(h)
		if i > 0 && c.IsHeader() {
			return api.NewError(api.ErrCodeMalformedFraming, "datagram header inside continuation").
				WithContext("chunk", i)
		}
		total += c.Len()
	}
	if total != hdr.Length {
		return api.NewError(api.ErrCodeMalformedFraming, "datagram payload length mismatch").
			WithContext("length", hdr.Length).
			WithContext("stored", total)
	}
	return nil
}

// HeadDatagramChunks returns the chunk count of the longest run of complete
// datagrams at the head of the buffer that fits within limit chunks.
func (b *Buffer) HeadDatagramChunks(limit int) int {
	b.arena.Lock()
	defer b.arena.Unlock()
	n, _ := b.headRunLocked(limit)
	return n
}

// PendingDatagrams returns how many complete datagrams are buffered.
func (b *Buffer) PendingDatagrams() int {
	b.arena.Lock()
	defer b.arena.Unlock()
	_, d := b.headRunLocked(b.nodeCount)
	return d
}

func (b *Buffer) headRunLocked(limit int) (chunks, datagrams int) {
	if b.arena.Closed() {
		return 0, 0
	}
	h := b.start
	for chunks < b.nodeCount {
		c := b.arena.Chunk(b.arena.Next(h))
		if !c.IsHeader() {
			break
		}
		n := b.ChunksFor(c.DatagramLen())
		if n == 0 || chunks+n > limit || chunks+n > b.nodeCount {
			break
		}
		chunks += n
		datagrams++
		h = b.arena.Walk(h, n)
	}
	return chunks, datagrams
}
