package tts

import "context"

// Request contains parameters to synthesize one page of speech.
type Request struct {
	SessionID string
	PageIndex int
	Text      string
	Dialect   string
}

// Artifact references a playable audio file produced for one page.
type Artifact struct {
	Ref    string
	Format string
}

// Synthesizer is the contract for producing page audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Artifact, error)
}
