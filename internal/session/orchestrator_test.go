package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dictalabs/dicta-core/internal/capture"
	"github.com/dictalabs/dicta-core/internal/engine"
	"github.com/dictalabs/dicta-core/internal/model"
	"github.com/dictalabs/dicta-core/internal/permission"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeRecorder struct {
	startErr  error
	stopOut   *capture.Artifact
	stopErr   error
	started   bool
	cancelled bool
}

func (r *fakeRecorder) Start(_ context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started = true
	return nil
}

func (r *fakeRecorder) Stop() (*capture.Artifact, error) {
	return r.stopOut, r.stopErr
}

func (r *fakeRecorder) Cancel() {
	r.cancelled = true
}

type fakeModels struct {
	state model.State
}

func (m *fakeModels) State() model.State {
	return m.state
}

func readyModels() *fakeModels {
	return &fakeModels{state: model.State{Status: model.StatusReady, Model: "tiny", Path: "/models/ggml-tiny.bin"}}
}

func testArtifact() *capture.Artifact {
	return &capture.Artifact{Path: "/tmp/recording_1.wav", SizeBytes: 4096, SampleRateHz: 16000, Channels: 1}
}

func newTestOrchestrator(gate permission.Gate, rec Recorder, eng engine.Engine, models ModelSource) *Orchestrator {
	return NewOrchestrator(gate, rec, eng, models, newLogger(), Options{TickInterval: 5 * time.Millisecond})
}

func TestHappyPath(t *testing.T) {
	rec := &fakeRecorder{stopOut: testArtifact()}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{Text: "hello world"},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := o.State().Phase; got != PhaseRecording {
		t.Fatalf("expected recording, got %s", got)
	}

	state, err := o.StopAndTranscribe(context.Background())
	if err != nil {
		t.Fatalf("stop and transcribe: %v", err)
	}
	if state.Phase != PhaseCompleted {
		t.Fatalf("expected completed, got %s", state.Phase)
	}
	if state.Text != "hello world" {
		t.Fatalf("unexpected text %q", state.Text)
	}
	if state.Model != "tiny" {
		t.Fatalf("expected model carried through, got %q", state.Model)
	}

	if err := o.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := o.State().Phase; got != PhaseIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}
}

func TestStartRequiresReadyModel(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{},
		&fakeModels{state: model.State{Status: model.StatusInitializing, Model: "tiny"}},
	)

	err := o.StartRecording(context.Background())
	if !errors.Is(err, ErrModelNotReady) {
		t.Fatalf("expected ErrModelNotReady, got %v", err)
	}
	if o.State().Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s", o.State().Phase)
	}
	if rec.started {
		t.Fatal("recorder must not start without a ready model")
	}
}

func TestStartPermissionDenied(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Denied, ""),
		rec,
		&engine.MockEngine{},
		readyModels(),
	)

	err := o.StartRecording(context.Background())
	if !errors.Is(err, permission.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if o.State().Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s", o.State().Phase)
	}
	if rec.started {
		t.Fatal("recorder must not start when permission is denied")
	}
}

func TestEmptyEngineResultFails(t *testing.T) {
	rec := &fakeRecorder{stopOut: testArtifact()}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{Err: engine.ErrEmptyResult},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := o.StopAndTranscribe(context.Background())
	if !errors.Is(err, engine.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
	if state.Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s", state.Phase)
	}
	if state.Text != "" {
		t.Fatalf("failed state must carry no text, got %q", state.Text)
	}
}

func TestWhitespaceOnlyTextFails(t *testing.T) {
	rec := &fakeRecorder{stopOut: testArtifact()}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{Text: "   "},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := o.StopAndTranscribe(context.Background())
	if !errors.Is(err, engine.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult for whitespace text, got %v", err)
	}
	if state.Phase == PhaseCompleted {
		t.Fatal("session must never complete with empty text")
	}
}

func TestStopWithoutArtifactFails(t *testing.T) {
	rec := &fakeRecorder{stopOut: nil}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := o.StopAndTranscribe(context.Background())
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if state.Phase != PhaseFailed {
		t.Fatalf("expected failed, got %s", state.Phase)
	}
}

func TestCancelReturnsToIdle(t *testing.T) {
	rec := &fakeRecorder{}
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		rec,
		&engine.MockEngine{},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.CancelRecording(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !rec.cancelled {
		t.Fatal("expected recorder cancel")
	}
	if o.State().Phase != PhaseIdle {
		t.Fatalf("expected idle, got %s", o.State().Phase)
	}
}

func TestInvalidTransitionsRejected(t *testing.T) {
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		&fakeRecorder{stopOut: testArtifact()},
		&engine.MockEngine{Text: "ok"},
		readyModels(),
	)

	if _, err := o.StopAndTranscribe(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for stop from idle, got %v", err)
	}
	if err := o.CancelRecording(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for cancel from idle, got %v", err)
	}

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Reset(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for reset while recording, got %v", err)
	}
	if err := o.StartRecording(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for double start, got %v", err)
	}
	t.Cleanup(func() { _ = o.CancelRecording() })
}

func TestElapsedTicksWhileRecording(t *testing.T) {
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		&fakeRecorder{stopOut: testArtifact()},
		&engine.MockEngine{Text: "ok"},
		readyModels(),
	)

	updates := o.Subscribe()
	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = o.CancelRecording() })

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-updates:
			if state.Phase == PhaseRecording && state.Elapsed > 0 {
				return
			}
		case <-deadline:
			t.Fatal("expected elapsed tick while recording")
		}
	}
}

func TestFailureReasonPreserved(t *testing.T) {
	engineErr := errors.New("model exploded")
	o := newTestOrchestrator(
		permission.NewStaticGate(permission.Granted, ""),
		&fakeRecorder{stopOut: testArtifact()},
		&engine.MockEngine{Err: engineErr},
		readyModels(),
	)

	if err := o.StartRecording(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	state, err := o.StopAndTranscribe(context.Background())
	if !errors.Is(err, engineErr) {
		t.Fatalf("expected underlying engine error, got %v", err)
	}
	if state.Reason == "" {
		t.Fatal("expected failure reason in state")
	}

	// Terminal Failed leaves only via Reset.
	if err := o.StartRecording(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState from failed, got %v", err)
	}
	if err := o.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
}
