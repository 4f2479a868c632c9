package tts

import (
	"context"
	"fmt"
	"time"
)

type mockSynth struct {
	latency time.Duration
	fail    func(req Request) error
}

// MockOption tweaks mock synthesizer behavior.
type MockOption func(*mockSynth)

// WithLatency makes the mock sleep before answering.
func WithLatency(d time.Duration) MockOption {
	return func(m *mockSynth) { m.latency = d }
}

// WithFailure injects per-request failures.
func WithFailure(fn func(req Request) error) MockOption {
	return func(m *mockSynth) { m.fail = fn }
}

func NewMockSynth(opts ...MockOption) Synthesizer {
	m := &mockSynth{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Artifact, error) {
	if m.latency > 0 {
		select {
		case <-ctx.Done():
			return Artifact{}, ctx.Err()
		case <-time.After(m.latency):
		}
	}
	if m.fail != nil {
		if err := m.fail(req); err != nil {
			return Artifact{}, err
		}
	}
	return Artifact{
		Ref:    fmt.Sprintf("/audio/%s_page_%d.wav", req.SessionID, req.PageIndex),
		Format: "wav",
	}, nil
}
