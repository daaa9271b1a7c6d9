package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/chunk"
)

const testChunk = 16

func newArena(t *testing.T) *chunk.Arena {
	t.Helper()
	a, err := chunk.NewArena(testChunk, chunk.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newPool(t *testing.T, a *chunk.Arena, n int) *Buffer {
	t.Helper()
	b := New(a)
	require.NoError(t, b.AllocateNodes(n))
	require.NoError(t, b.Check())
	return b
}

func payload(n int, seed byte) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func TestAllocateNodesBuildsEmptyRing(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 8)
	st := b.Stats()
	assert.Equal(t, api.BufferStats{ChunkSize: testChunk, NodeCap: 8, ByteCap: 8 * testChunk}, st)
	assert.Equal(t, 8*testChunk, b.FreeBytes())

	err := b.AllocateNodes(2)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	assert.ErrorIs(t, New(a).AllocateNodes(chunk.MaxChunks+1), api.ErrCapacityExceeded)
}

func TestDatagramRoundTripSpansChunks(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 8)
	b.SetMetadata(9, api.KindMessage)

	data := payload(testChunk*3+testChunk/2, 1)
	require.NoError(t, b.WriteDatagram(data))
	assert.Equal(t, 4, b.NodeCount())
	assert.Equal(t, 4*testChunk, b.ByteCount())
	assert.Equal(t, uint32(4), b.Seq())
	require.NoError(t, b.Check())

	hdr, err := b.Peek()
	require.NoError(t, err)
	assert.Equal(t, Header{Length: len(data), Chunks: 4, Dest: 9, Seq: 0, Kind: api.KindMessage}, hdr)

	dst := make([]byte, len(data))
	n, err := b.ReadDatagram(dst)
	require.NoError(t, err)
	assert.Equal(t, data, dst[:n])
	assert.Equal(t, 0, b.NodeCount())
	assert.Equal(t, 8, b.NodeCap())
	require.NoError(t, b.Check())

	_, err = b.ReadDatagram(dst)
	assert.ErrorIs(t, err, api.ErrEmptyBuffer)
}

func TestExactMultipleUsesNoExtraChunk(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	require.NoError(t, b.WriteDatagram(payload(2*testChunk, 0)))
	assert.Equal(t, 2, b.NodeCount())
	require.NoError(t, b.WriteDatagram(payload(2*testChunk, 7)))
	assert.Equal(t, 0, b.FreeNodes())
	require.NoError(t, b.Check())
}

func TestFIFOOrderAcrossWrap(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 5)

	var want [][]byte
	for round := 0; round < 6; round++ {
		for i := 0; i < 2; i++ {
			p := payload(testChunk+i*3+1, byte(round*10+i))
			require.NoError(t, b.WriteDatagram(p))
			want = append(want, p)
		}
		require.NoError(t, b.Check())
		for len(want) > 0 {
			got, _, err := b.AppendDatagram(nil)
			require.NoError(t, err)
			assert.Equal(t, want[0], got)
			want = want[1:]
		}
		require.NoError(t, b.Check())
	}
}

func TestWriteExhaustionLeavesBufferUntouched(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 3)
	require.NoError(t, b.WriteDatagram(payload(testChunk+1, 0)))
	before := b.Stats()

	err := b.WriteDatagram(payload(testChunk+1, 0))
	require.ErrorIs(t, err, api.ErrCapacityExceeded)
	var se *api.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 2, se.Context["chunks_needed"])
	assert.Equal(t, before, b.Stats())
	require.NoError(t, b.Check())

	assert.ErrorIs(t, b.WriteDatagram(nil), api.ErrInvalidArgument)
}

func TestReadShortDestinationConsumesNothing(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	data := payload(testChunk+5, 3)
	require.NoError(t, b.WriteDatagram(data))

	_, err := b.ReadDatagram(make([]byte, testChunk))
	assert.ErrorIs(t, err, api.ErrShortBuffer)
	assert.Equal(t, 2, b.NodeCount())

	dst := make([]byte, 64)
	n, err := b.ReadDatagram(dst)
	require.NoError(t, err)
	assert.Equal(t, data, dst[:n])
}

func TestReadRejectsCorruptFraming(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(head, next *chunk.Chunk)
	}{
		{"head without header", func(head, _ *chunk.Chunk) { head.MarkAsDatagramStart(0) }},
		{"length mismatch", func(head, _ *chunk.Chunk) { head.MarkAsDatagramStart(2 * testChunk) }},
		{"header inside continuation", func(_, next *chunk.Chunk) { next.MarkAsDatagramStart(4) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newArena(t)
			b := newPool(t, a, 4)
			require.NoError(t, b.WriteDatagram(payload(testChunk+4, 1)))
			head := b.arena.Next(b.start)
			tt.corrupt(b.arena.Chunk(head), b.arena.Chunk(b.arena.Next(head)))

			dst := make([]byte, 4*testChunk)
			_, err := b.ReadDatagram(dst)
			assert.ErrorIs(t, err, api.ErrMalformedFraming)
			_, _, err = b.AppendDatagram(nil)
			assert.ErrorIs(t, err, api.ErrMalformedFraming)
			assert.Equal(t, 2, b.NodeCount())
			assert.Equal(t, 2, b.FreeNodes())
			require.NoError(t, b.Check())
		})
	}
}

func TestPeekRejectsHeadWithoutHeader(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	require.NoError(t, b.WriteDatagram(payload(testChunk+4, 1)))
	b.arena.Chunk(b.arena.Next(b.start)).MarkAsDatagramStart(0)

	_, err := b.Peek()
	assert.ErrorIs(t, err, api.ErrMalformedFraming)
	assert.Zero(t, b.HeadDatagramChunks(4))
	assert.Zero(t, b.PendingDatagrams())
	assert.Equal(t, 2, b.NodeCount())
}

func TestWritePacketConsumesSource(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	src := bytes.NewReader(payload(testChunk*2+3, 5))
	require.NoError(t, b.WritePacket(src))
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, 3, b.NodeCount())

	got, hdr, err := b.AppendDatagram([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, testChunk*2+3, hdr.Length)
	assert.Equal(t, append([]byte("x"), payload(testChunk*2+3, 5)...), got)
}

type failingPacket struct {
	n, limit int
}

func (f *failingPacket) Len() int { return f.n }

func (f *failingPacket) Read(p []byte) (int, error) {
	if f.limit == 0 {
		return 0, errors.New("source failed")
	}
	k := min(len(p), f.limit)
	f.limit -= k
	f.n -= k
	return k, nil
}

func TestWritePacketRollsBackOnSourceError(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	before := b.Stats()

	err := b.WritePacket(&failingPacket{n: testChunk * 3, limit: testChunk + 4})
	require.Error(t, err)
	assert.Equal(t, before, b.Stats())
	require.NoError(t, b.Check())

	require.NoError(t, b.WriteDatagram(payload(testChunk*4, 0)))
	require.NoError(t, b.Check())
}

func TestDonateConservesChunks(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 10)
	rx := New(a)

	require.NoError(t, pool.DonateNodes(rx, 4))
	assert.Equal(t, 6, pool.NodeCap())
	assert.Equal(t, 4, rx.NodeCap())
	require.NoError(t, pool.Check())
	require.NoError(t, rx.Check())

	data := payload(testChunk*2, 1)
	require.NoError(t, rx.WriteDatagram(data))
	require.NoError(t, rx.DonateNodes(pool, 2))
	assert.Equal(t, 2, rx.NodeCap())
	assert.Equal(t, 2, rx.NodeCount())
	assert.Equal(t, 8, pool.NodeCap())
	require.NoError(t, rx.Check())

	err := rx.DonateNodes(pool, 1)
	assert.ErrorIs(t, err, api.ErrCapacityExceeded)

	got, _, err := rx.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	require.NoError(t, rx.DonateNodes(pool, 2))
	assert.Equal(t, 0, rx.NodeCap())
	assert.Equal(t, 10, pool.NodeCap())
	require.NoError(t, rx.Check())
	require.NoError(t, pool.Check())
}

func TestDonateIntoFullBuffer(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 6)
	rx := New(a)
	require.NoError(t, pool.DonateNodes(rx, 2))
	first := payload(testChunk*2, 1)
	require.NoError(t, rx.WriteDatagram(first))
	assert.Equal(t, 0, rx.FreeNodes())

	require.NoError(t, pool.DonateNodes(rx, 1))
	require.NoError(t, rx.Check())
	second := payload(3, 9)
	require.NoError(t, rx.WriteDatagram(second))

	got, _, err := rx.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, _, err = rx.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, second, got)
	require.NoError(t, rx.Check())
}

func TestDonateRejectsBadTargets(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 4)
	assert.ErrorIs(t, pool.DonateNodes(pool, 1), api.ErrInvalidArgument)
	assert.ErrorIs(t, pool.DonateNodes(nil, 1), api.ErrInvalidArgument)
	assert.ErrorIs(t, pool.DonateNodes(New(a), 0), api.ErrInvalidArgument)

	other := newArena(t)
	assert.ErrorIs(t, pool.DonateNodes(New(other), 1), api.ErrForeignArena)
	assert.Equal(t, 4, pool.NodeCap())
}

func TestSwapMovesHeadDatagramsAndKeepsCapacities(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 10)
	tx := New(a)
	require.NoError(t, pool.DonateNodes(tx, 5))

	d1 := payload(testChunk+1, 1)
	d2 := payload(4, 2)
	require.NoError(t, tx.WriteDatagram(d1))
	require.NoError(t, tx.WriteDatagram(d2))
	require.Equal(t, 3, tx.NodeCount())

	assert.ErrorIs(t, pool.SwapNodes(tx, 1), api.ErrMalformedFraming)
	assert.Equal(t, 2, tx.HeadDatagramChunks(2))
	assert.Equal(t, 2, tx.PendingDatagrams())

	require.NoError(t, pool.SwapNodes(tx, 2))
	assert.Equal(t, 5, pool.NodeCap())
	assert.Equal(t, 5, tx.NodeCap())
	assert.Equal(t, 2, pool.NodeCount())
	assert.Equal(t, 1, tx.NodeCount())
	require.NoError(t, pool.Check())
	require.NoError(t, tx.Check())

	require.NoError(t, pool.SwapNodes(tx, 1))
	assert.Equal(t, 0, tx.NodeCount())
	assert.Equal(t, 3, pool.NodeCount())

	got, _, err := pool.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, d1, got)
	got, _, err = pool.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, d2, got)
	require.NoError(t, pool.Check())
	require.NoError(t, tx.Check())
}

func TestSwapLimits(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 4)
	tx := New(a)
	require.NoError(t, pool.DonateNodes(tx, 3))
	require.NoError(t, tx.WriteDatagram(payload(testChunk*3, 0)))

	assert.ErrorIs(t, pool.SwapNodes(tx, 3), api.ErrCapacityExceeded)
	assert.ErrorIs(t, pool.SwapNodes(tx, 4), api.ErrCapacityExceeded)
	assert.Equal(t, 3, tx.NodeCount())
	require.NoError(t, tx.Check())
}

func TestSwapWholeFullBuffer(t *testing.T) {
	a := newArena(t)
	pool := newPool(t, a, 6)
	tx := New(a)
	require.NoError(t, pool.DonateNodes(tx, 3))
	data := payload(testChunk*3, 4)
	require.NoError(t, tx.WriteDatagram(data))

	require.NoError(t, pool.SwapNodes(tx, 3))
	assert.Equal(t, 0, tx.NodeCount())
	assert.Equal(t, 3, tx.NodeCap())
	assert.Equal(t, 3, pool.NodeCount())
	assert.Equal(t, 0, pool.FreeNodes())
	require.NoError(t, tx.Check())
	require.NoError(t, pool.Check())

	got, _, err := pool.AppendDatagram(nil)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestClearDropsData(t *testing.T) {
	a := newArena(t)
	b := newPool(t, a, 4)
	require.NoError(t, b.WriteDatagram(payload(testChunk*2+1, 0)))
	seq := b.Seq()
	b.Clear()
	assert.Equal(t, 0, b.NodeCount())
	assert.Equal(t, 4, b.NodeCap())
	assert.Equal(t, seq, b.Seq())
	require.NoError(t, b.Check())
	_, err := b.Peek()
	assert.ErrorIs(t, err, api.ErrEmptyBuffer)

	New(a).Clear()
}

func TestClosedArenaRejectsOperations(t *testing.T) {
	a, err := chunk.NewArena(testChunk, chunk.Options{})
	require.NoError(t, err)
	b := New(a)
	require.NoError(t, b.AllocateNodes(2))
	require.NoError(t, a.Close())

	assert.ErrorIs(t, b.WriteDatagram([]byte("x")), api.ErrArenaClosed)
	_, err = b.ReadDatagram(make([]byte, 4))
	assert.ErrorIs(t, err, api.ErrArenaClosed)
	assert.Equal(t, 0, b.HeadDatagramChunks(4))
	b.Clear()
}
