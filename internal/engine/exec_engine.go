package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/dictalabs/dicta-core/internal/config"
	"github.com/mattn/go-shellwords"
)

// execEngine shells out to a whisper-cli style binary that prints
// {"text": ..., "confidence": ...} on stdout.
type execEngine struct {
	cmd     []string
	cfg     config.EngineConfig
	timeout time.Duration
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecEngine(cfg config.EngineConfig) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &execEngine{cmd: args, cfg: cfg, timeout: timeout}, nil
}

func (e *execEngine) Transcribe(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--audio", req.AudioPath)
	if req.ModelPath != "" {
		args = append(args, "--model", req.ModelPath)
	}
	if req.Language != "" && req.Language != "auto" {
		args = append(args, "--language", req.Language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("%w: command failed: %v: %s", ErrEngine, err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrEngine, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return Result{}, ErrEmptyResult
	}
	return Result{Text: strings.TrimSpace(resp.Text), Confidence: resp.Confidence}, nil
}

// FromConfig builds the engine named by config.
func FromConfig(cfg config.EngineConfig) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return &MockEngine{}, nil
	case "exec":
		return NewExecEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown engine mode %q", cfg.Mode)
	}
}
