package permission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/dictalabs/dicta-core/internal/config"
	"github.com/mattn/go-shellwords"
)

// execGate shells out to a platform helper that talks to the OS permission
// service. The helper prints {"status": "granted|denied|permanently_denied"}.
type execGate struct {
	cmd  []string
	hint string
}

type execStatus struct {
	Status string `json:"status"`
}

func NewExecGate(cfg config.PermissionConfig) (Gate, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse permission command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("permission command is empty")
	}
	return &execGate{cmd: args, hint: cfg.SettingsHint}, nil
}

func (g *execGate) Check(ctx context.Context) (Status, error) {
	return g.run(ctx, "--check")
}

func (g *execGate) Request(ctx context.Context) (Status, error) {
	return g.run(ctx, "--request")
}

func (g *execGate) SettingsHint() string {
	return g.hint
}

func (g *execGate) run(ctx context.Context, mode string) (Status, error) {
	args := append([]string{}, g.cmd[1:]...)
	args = append(args, mode)

	command := exec.CommandContext(ctx, g.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Denied, fmt.Errorf("permission helper failed: %w: %s", err, stderr.String())
	}

	var resp execStatus
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Denied, fmt.Errorf("decode permission response: %w", err)
	}

	switch Status(resp.Status) {
	case Granted, Denied, PermanentlyDenied:
		return Status(resp.Status), nil
	default:
		return Denied, fmt.Errorf("unknown permission status %q", resp.Status)
	}
}

// FromConfig builds the gate named by config.
func FromConfig(cfg config.PermissionConfig) (Gate, error) {
	switch cfg.Mode {
	case "grant":
		return NewStaticGate(Granted, cfg.SettingsHint), nil
	case "deny":
		return NewStaticGate(Denied, cfg.SettingsHint), nil
	case "exec":
		return NewExecGate(cfg)
	default:
		return nil, fmt.Errorf("unknown permission mode %q", cfg.Mode)
	}
}
