package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/chunkmux/api"
	"github.com/momentics/chunkmux/core/protocol"
)

func TestEncapsulateDecapsulate(t *testing.T) {
	payload := []byte("hello")
	frame, err := protocol.Encapsulate(0x0102, payload)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 'h', 'e', 'l', 'l', 'o'}, frame)
	assert.Equal(t, frame, protocol.AppendFrame(nil, 0x0102, payload))

	port, got, err := protocol.Decapsulate(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), port)
	assert.Equal(t, payload, got)

	port, got, err = protocol.Decapsulate([]byte{0, 7})
	require.NoError(t, err)
	assert.Equal(t, uint16(7), port)
	assert.Empty(t, got)

	_, _, err = protocol.Decapsulate([]byte{1})
	assert.ErrorIs(t, err, api.ErrMalformedFraming)
}

func TestEncapsulateRejectsOversize(t *testing.T) {
	_, err := protocol.Encapsulate(1, make([]byte, protocol.MaxDatagramPayload+1))
	assert.ErrorIs(t, err, api.ErrCapacityExceeded)
}

func TestStreamFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteFrame(&buf, []byte("one")))
	require.NoError(t, protocol.WriteFrame(&buf, []byte{}))
	require.NoError(t, protocol.WriteFrame(&buf, []byte("three")))

	for _, want := range []string{"one", "", "three"} {
		got, err := protocol.ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err := protocol.ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameLimits(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], protocol.MaxFramePayload+1)
	_, err := protocol.ReadFrame(bytes.NewReader(hdr[:]))
	assert.ErrorIs(t, err, api.ErrMalformedFraming)

	binary.BigEndian.PutUint32(hdr[:], 10)
	_, err = protocol.ReadFrame(bytes.NewReader(append(hdr[:], 1, 2)))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = protocol.WriteFrame(io.Discard, make([]byte, protocol.MaxFramePayload+1))
	assert.ErrorIs(t, err, api.ErrCapacityExceeded)
}

func TestFrameBatch(t *testing.T) {
	fb := protocol.NewFrameBatch(2)
	fb.Append([]byte("ab"))
	fb.Append([]byte("cde"))
	assert.Equal(t, 2, fb.Len())
	assert.Equal(t, 5, fb.Bytes())
	assert.Equal(t, [][]byte{[]byte("ab"), []byte("cde")}, fb.Underlying())
	fb.Reset()
	assert.Equal(t, 0, fb.Len())
	assert.Equal(t, 0, fb.Bytes())
}
