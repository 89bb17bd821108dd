package capture

import (
	"context"
	"io"
	"sync"
)

// MockSource emits a fixed PCM payload, then holds the stream open until
// closed, the way a real microphone keeps delivering frames until stopped.
type MockSource struct {
	// Payload is the raw s16le PCM delivered to the first reads.
	Payload []byte
	// FailStart simulates an unavailable device.
	FailStart bool
}

func (m *MockSource) Start(_ context.Context) (io.ReadCloser, error) {
	if m.FailStart {
		return nil, ErrDeviceUnavailable
	}
	return &mockStream{payload: append([]byte(nil), m.Payload...), done: make(chan struct{})}, nil
}

type mockStream struct {
	payload []byte
	offset  int
	done    chan struct{}
	once    sync.Once
}

func (s *mockStream) Read(p []byte) (int, error) {
	if s.offset < len(s.payload) {
		n := copy(p, s.payload[s.offset:])
		s.offset += n
		return n, nil
	}
	<-s.done
	return 0, io.EOF
}

func (s *mockStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
