package capture

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/dictalabs/dicta-core/internal/config"
	"github.com/mattn/go-shellwords"
)

// execSource spawns a capture helper (arecord, sox, ffmpeg) that writes raw
// s16le PCM to stdout until killed.
type execSource struct {
	cmd        []string
	sampleRate int
	channels   int
}

func NewExecSource(cfg config.AudioConfig) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.SourceCommand)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &execSource{cmd: args, sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
}

func (s *execSource) Start(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := append([]string{}, s.cmd[1:]...)
	args = append(args,
		"--rate", strconv.Itoa(s.sampleRate),
		"--channels", strconv.Itoa(s.channels),
		"--format", "s16le",
	)

	// The start context only gates the spawn. The helper must keep
	// recording after the caller returns, until Close kills it.
	command := exec.Command(s.cmd[0], args...)
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &execStream{reader: stdout, cmd: command}, nil
}

type execStream struct {
	reader io.ReadCloser
	cmd    *exec.Cmd
}

func (s *execStream) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *execStream) Close() error {
	_ = s.reader.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	// Wait error is expected after Kill.
	_ = s.cmd.Wait()
	return nil
}
