package api_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/chunkmux/api"
)

func TestTransportFeaturesStruct(t *testing.T) {
	f := api.TransportFeatures{ZeroCopy: true, Batch: false}
	assert.True(t, f.ZeroCopy)
	assert.False(t, f.Batch)
}

func TestTransportInterfaceCompliance(t *testing.T) {
	var _ api.Transport = (*api.MockTransport)(nil)

	var sent [][]byte
	m := &api.MockTransport{
		SendFunc: func(b [][]byte) error { sent = append(sent, b...); return nil },
		RecvFunc: func() ([][]byte, error) { return nil, api.ErrTransportClosed },
	}
	require.NoError(t, m.Send([][]byte{{1}, {2}}))
	assert.Len(t, sent, 2)
	_, err := m.Recv()
	assert.ErrorIs(t, err, api.ErrTransportClosed)
	assert.NoError(t, m.Close())
	assert.True(t, m.Features().Batch)
}

func TestStructuredErrorUnwrapsToSentinel(t *testing.T) {
	err := api.NewError(api.ErrCodeCapacityExceeded, "datagram does not fit").
		WithContext("size", 4096).
		WithContext("free", 2048)

	assert.ErrorIs(t, err, api.ErrCapacityExceeded)
	assert.NotErrorIs(t, err, api.ErrEmptyBuffer)
	assert.Contains(t, err.Error(), "datagram does not fit")
	assert.Equal(t, api.ErrCodeCapacityExceeded, api.CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want api.ErrorCode
	}{
		{"nil", nil, api.ErrCodeOK},
		{"sentinel", api.ErrEmptyBuffer, api.ErrCodeEmptyBuffer},
		{"wrapped sentinel", errors.Join(errors.New("ctx"), api.ErrMalformedFraming), api.ErrCodeMalformedFraming},
		{"arena closed", api.ErrArenaClosed, api.ErrCodeArenaClosed},
		{"transport closed", fmt.Errorf("send: %w", api.ErrTransportClosed), api.ErrCodeTransportClosed},
		{"foreign", errors.New("boom"), api.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, api.CodeOf(tt.err))
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "message", api.KindMessage.String())
	assert.Equal(t, "data", api.KindData.String())
	assert.Equal(t, "none", api.KindNone.String())
}
