package model

// Status enumerates the model lifecycle phases.
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusInitializing  Status = "initializing"
	StatusReady         Status = "ready"
	StatusFailed        Status = "failed"
)

// State is a read-only snapshot of the manager's lifecycle. Model names the
// variant for Initializing/Ready, Reason carries the failure message, Path
// is set once Ready.
type State struct {
	Status Status
	Model  string
	Reason string
	Path   string
}
