// Package api
// Author: momentics <momentics@gmail.com>
//
// Function-backed Transport for tests that need to script a single failure.

package api

// MockTransport is a Transport whose methods delegate to the set funcs.
// A nil func behaves as an idle, healthy link.
type MockTransport struct {
	SendFunc     func(frames [][]byte) error
	RecvFunc     func() ([][]byte, error)
	CloseFunc    func() error
	FeaturesFunc func() TransportFeatures
}

func (m *MockTransport) Send(frames [][]byte) error {
	if m.SendFunc == nil {
		return nil
	}
	return m.SendFunc(frames)
}

func (m *MockTransport) Recv() ([][]byte, error) {
	if m.RecvFunc == nil {
		return nil, nil
	}
	return m.RecvFunc()
}

func (m *MockTransport) Close() error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *MockTransport) Features() TransportFeatures {
	if m.FeaturesFunc == nil {
		return TransportFeatures{Batch: true}
	}
	return m.FeaturesFunc()
}
