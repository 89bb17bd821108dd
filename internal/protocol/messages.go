package protocol

import "time"

// SessionStateChange is broadcast whenever the orchestrator transitions.
type SessionStateChange struct {
	SessionID string    `json:"session_id"`
	Phase     string    `json:"phase"`
	Reason    string    `json:"reason,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript carries the final text of a completed session.
type Transcript struct {
	SessionID    string    `json:"session_id"`
	Text         string    `json:"text"`
	Model        string    `json:"model"`
	Language     string    `json:"language,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// ModelStateChange is broadcast when the model lifecycle advances.
type ModelStateChange struct {
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSessionState = "dicta.session.state"
	SubjectTranscript   = "dicta.transcript.final"
	SubjectModelState   = "dicta.model.state"
)
