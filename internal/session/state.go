package session

import (
	"time"

	"github.com/dictalabs/dicta-core/internal/capture"
)

// Phase enumerates the session lifecycle. Transitions are strictly linear
// except Recording -> Idle (cancel) and terminal/Idle -> Idle (reset).
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// State is a snapshot of the active session. Fields beyond Phase are only
// meaningful for the phase that owns them: Elapsed while Recording, Artifact
// while Processing, Text and ProcessingDuration once Completed, Reason once
// Failed.
type State struct {
	Phase              Phase
	SessionID          string
	Model              string
	Elapsed            time.Duration
	Artifact           *capture.Artifact
	Text               string
	ProcessingDuration time.Duration
	Reason             string
}

// Terminal reports whether the phase only exits via Reset.
func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}
