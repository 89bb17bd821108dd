package permission

import (
	"context"
	"errors"
)

// Status is the tri-state result of a microphone capability query.
type Status string

const (
	Granted           Status = "granted"
	Denied            Status = "denied"
	PermanentlyDenied Status = "permanently_denied"
)

// ErrDenied is returned when capture is attempted without a granted permission.
var ErrDenied = errors.New("microphone permission denied")

// ErrPermanentlyDenied means the user must visit system settings; no prompt
// will be shown again.
var ErrPermanentlyDenied = errors.New("microphone permission permanently denied")

// Gate abstracts the OS microphone permission boundary. Results are never
// cached beyond a single check-then-act sequence; callers re-query every time.
type Gate interface {
	// Check is a side-effect-free query of the current permission state.
	Check(ctx context.Context) (Status, error)
	// Request triggers the OS-level prompt and reports the outcome.
	Request(ctx context.Context) (Status, error)
	// SettingsHint names where the user can re-enable a permanently denied
	// permission. Surfaced alongside ErrPermanentlyDenied, never acted on here.
	SettingsHint() string
}

// Err maps a non-granted status to its sentinel error.
func (s Status) Err() error {
	switch s {
	case Granted:
		return nil
	case PermanentlyDenied:
		return ErrPermanentlyDenied
	default:
		return ErrDenied
	}
}
