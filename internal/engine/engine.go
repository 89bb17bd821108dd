package engine

import (
	"context"
	"errors"
)

var (
	// ErrEngine marks a failed inference call: the command could not run or
	// its output could not be decoded.
	ErrEngine = errors.New("engine failure")

	// ErrEmptyResult marks inference that returned no usable text. Distinct
	// from success with empty text, which this boundary never produces.
	ErrEmptyResult = errors.New("engine returned no text")
)

// Request is the opaque boundary call into the inference engine. Paths are
// passed, never handles; parsing the model or audio bytes is the engine's
// responsibility alone.
type Request struct {
	AudioPath string
	ModelPath string
	Language  string
}

// Result captures engine output.
type Result struct {
	Text       string
	Confidence float64
}

// Engine abstracts the speech-to-text inference component. Transcribe is
// CPU-bound and blocking; callers dispatch it off their interactive path.
type Engine interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}
