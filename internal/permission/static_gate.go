package permission

import "context"

// staticGate returns a fixed status. Used for headless deployments where the
// process owner has already granted device access, and in tests.
type staticGate struct {
	status Status
	hint   string
}

func NewStaticGate(status Status, hint string) Gate {
	return &staticGate{status: status, hint: hint}
}

func (g *staticGate) Check(_ context.Context) (Status, error) {
	return g.status, nil
}

func (g *staticGate) Request(_ context.Context) (Status, error) {
	return g.status, nil
}

func (g *staticGate) SettingsHint() string {
	return g.hint
}
