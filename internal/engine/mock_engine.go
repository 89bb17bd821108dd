package engine

import (
	"context"
	"fmt"
	"time"
)

// MockEngine returns canned results for tests and mock-mode deployments.
type MockEngine struct {
	// Text is returned verbatim; when empty the engine fabricates a
	// placeholder transcript naming the audio path.
	Text string
	// Err, when set, is returned instead of a result.
	Err error
	// Delay simulates inference latency.
	Delay time.Duration
}

func (m *MockEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	if m.Err != nil {
		return Result{}, m.Err
	}
	text := m.Text
	if text == "" {
		text = fmt.Sprintf("[mock transcript of %s]", req.AudioPath)
	}
	return Result{Text: text, Confidence: 1}, nil
}
