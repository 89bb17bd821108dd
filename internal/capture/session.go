package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dictalabs/dicta-core/internal/config"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrAlreadyRecording guards the single-active-recording invariant.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned when stop is requested while idle.
	ErrNotRecording = errors.New("no recording in progress")
	// ErrDeviceUnavailable signals the capture hardware could not be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrNoArtifact means stop produced no playable file.
	ErrNoArtifact = errors.New("no audio artifact produced")
)

type phase int

const (
	phaseIdle phase = iota
	phaseRecording
	phaseStopped
	phaseCancelled
)

// Session owns the lifecycle of a single recording. PCM from the source is
// written incrementally as a 16 kHz mono WAV under the configured storage
// directory. All transitions are serialized by the session mutex.
type Session struct {
	cfg    config.AudioConfig
	source Source
	log    *slog.Logger

	mu     sync.Mutex
	phase  phase
	path   string
	file   *os.File
	enc    *wav.Encoder
	stream io.ReadCloser
	wg     sync.WaitGroup
}

func NewSession(cfg config.AudioConfig, source Source, log *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		source: source,
		log:    log.With(slog.String("component", "capture")),
	}
}

// Start opens the device and begins writing a timestamp-unique WAV file.
// The device is opened before any file is created so a failed start never
// leaves an empty artifact behind.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phaseRecording {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(s.cfg.StorageDir, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	stream, err := s.source.Start(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	path := filepath.Join(s.cfg.StorageDir, fmt.Sprintf("recording_%d.wav", time.Now().UnixMilli()))
	file, err := os.Create(path)
	if err != nil {
		_ = stream.Close()
		return fmt.Errorf("create recording file: %w", err)
	}

	s.path = path
	s.file = file
	s.enc = wav.NewEncoder(file, s.cfg.SampleRate, 16, s.cfg.Channels, 1)
	s.stream = stream
	s.phase = phaseRecording

	s.wg.Add(1)
	go s.pump(stream)

	s.log.Info("recording started", slog.String("path", path))
	return nil
}

// pump drains the source into the WAV encoder until the stream ends. It is
// the only goroutine touching the encoder while recording.
func (s *Session) pump(stream io.Reader) {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	var carry []byte
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			usable := len(chunk) &^ 1
			carry = append([]byte(nil), chunk[usable:]...)
			if usable > 0 {
				if werr := s.writePCM(chunk[:usable]); werr != nil {
					s.log.Warn("failed to encode audio chunk", slog.String("error", werr.Error()))
					return
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Warn("capture stream error", slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (s *Session) writePCM(pcm []byte) error {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: s.cfg.Channels, SampleRate: s.cfg.SampleRate},
		Data:   samples,
	}
	return s.enc.Write(buffer)
}

// Stop finalizes the WAV file and returns the artifact. An undersized file
// is logged as a warning but still returned: the engine may extract partial
// text from it.
func (s *Session) Stop() (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phaseRecording {
		return nil, ErrNotRecording
	}
	s.phase = phaseStopped

	if err := s.finalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoArtifact, err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoArtifact, err)
	}

	if info.Size() < s.cfg.MinArtifactBytes {
		s.log.Warn("recording below minimum viable size",
			slog.String("path", s.path),
			slog.Int64("size_bytes", info.Size()),
			slog.Int64("min_bytes", s.cfg.MinArtifactBytes))
	}

	s.log.Info("recording stopped", slog.String("path", s.path), slog.Int64("size_bytes", info.Size()))
	return &Artifact{
		Path:         s.path,
		SizeBytes:    info.Size(),
		SampleRateHz: s.cfg.SampleRate,
		Channels:     s.cfg.Channels,
	}, nil
}

// Cancel stops capture and deletes the partial file. Idempotent when no
// recording is active.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != phaseRecording {
		return
	}
	s.phase = phaseCancelled

	if err := s.finalize(); err != nil {
		s.log.Warn("cancel finalize failed", slog.String("error", err.Error()))
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to delete cancelled recording", slog.String("error", err.Error()))
	}
	s.log.Info("recording cancelled", slog.String("path", s.path))
}

// finalize closes the stream, waits for the pump to drain, and seals the
// WAV header. Caller holds the session mutex.
func (s *Session) finalize() error {
	_ = s.stream.Close()
	s.wg.Wait()

	var errs []error
	if err := s.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wav encoder: %w", err))
	}
	if err := s.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close recording file: %w", err))
	}
	return errors.Join(errs...)
}
