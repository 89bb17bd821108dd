package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dictalabs/dicta-core/internal/capture"
	"github.com/dictalabs/dicta-core/internal/engine"
	"github.com/dictalabs/dicta-core/internal/model"
	"github.com/dictalabs/dicta-core/internal/permission"
	"github.com/google/uuid"
)

var (
	// ErrInvalidState rejects an entry point called outside its phase.
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrModelNotReady rejects recording before the model lifecycle reports Ready.
	ErrModelNotReady = errors.New("transcription model not ready")
)

// Recorder is the capture dependency seen by the orchestrator.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*capture.Artifact, error)
	Cancel()
}

// ModelSource exposes the model lifecycle snapshot the orchestrator gates on.
type ModelSource interface {
	State() model.State
}

// Orchestrator drives one capture-through-transcription session at a time.
// All dependencies are injected; it owns no process-wide state. Transitions
// are serialized by the orchestrator mutex, so entry points are safe to call
// from any goroutine, but only one logical session exists per instance.
type Orchestrator struct {
	gate     permission.Gate
	recorder Recorder
	engine   engine.Engine
	models   ModelSource
	log      *slog.Logger
	tick     time.Duration
	language string
	clock    func() time.Time

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	tickerStop chan struct{}
	subs       []chan State
}

// Options tunes presentation-only behavior.
type Options struct {
	// TickInterval is the elapsed-time refresh period while recording.
	TickInterval time.Duration
	// Language is the hint forwarded to the engine; empty means auto.
	Language string
}

func NewOrchestrator(gate permission.Gate, recorder Recorder, eng engine.Engine, models ModelSource, log *slog.Logger, opts Options) *Orchestrator {
	tick := opts.TickInterval
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	language := opts.Language
	if language == "" {
		language = "auto"
	}
	return &Orchestrator{
		gate:     gate,
		recorder: recorder,
		engine:   eng,
		models:   models,
		log:      log.With(slog.String("component", "session")),
		tick:     tick,
		language: language,
		clock:    time.Now,
		state:    State{Phase: PhaseIdle},
	}
}

// State returns a snapshot of the current session state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe returns a channel receiving every state transition. Slow
// consumers drop updates rather than stalling the state machine.
func (o *Orchestrator) Subscribe() <-chan State {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan State, 16)
	o.subs = append(o.subs, ch)
	return ch
}

// setState must be called with the mutex held.
func (o *Orchestrator) setState(state State) {
	o.state = state
	for _, ch := range o.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

// StartRecording gates on model readiness and microphone permission, then
// begins capture. Permission is queried fresh on every attempt; a single
// denial ends the attempt with no retry and no file written.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != PhaseIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, o.state.Phase)
	}

	modelState := o.models.State()
	if modelState.Status != model.StatusReady {
		err := fmt.Errorf("%w: model is %s", ErrModelNotReady, modelState.Status)
		o.fail(err)
		return err
	}

	status, err := o.gate.Check(ctx)
	if err != nil {
		o.fail(fmt.Errorf("permission check: %w", err))
		return err
	}
	if status != permission.Granted {
		status, err = o.gate.Request(ctx)
		if err != nil {
			o.fail(fmt.Errorf("permission request: %w", err))
			return err
		}
	}
	if permErr := status.Err(); permErr != nil {
		if errors.Is(permErr, permission.ErrPermanentlyDenied) {
			o.log.Warn("microphone permanently denied",
				slog.String("settings_hint", o.gate.SettingsHint()))
		}
		o.fail(permErr)
		return permErr
	}

	if err := o.recorder.Start(ctx); err != nil {
		o.fail(err)
		return err
	}

	sessionID := uuid.NewString()
	o.startedAt = o.clock()
	o.setState(State{
		Phase:     PhaseRecording,
		SessionID: sessionID,
		Model:     modelState.Model,
	})

	stop := make(chan struct{})
	o.tickerStop = stop
	go o.runTicker(stop)

	o.log.Info("session recording", slog.String("session_id", sessionID))
	return nil
}

// runTicker refreshes Elapsed from the captured start timestamp. It is a
// presentation refresh only; the recording's real duration comes from the
// capture driver. The phase guard keeps a late tick from mutating state
// after a transition.
func (o *Orchestrator) runTicker(stop chan struct{}) {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.mu.Lock()
			if o.state.Phase == PhaseRecording {
				next := o.state
				next.Elapsed = o.clock().Sub(o.startedAt)
				o.setState(next)
			}
			o.mu.Unlock()
		}
	}
}

// stopTicker must be called with the mutex held. Safe on every exit from
// Recording, including paths that never started a ticker.
func (o *Orchestrator) stopTicker() {
	if o.tickerStop != nil {
		close(o.tickerStop)
		o.tickerStop = nil
	}
}

// fail transitions to Failed preserving the cause. Mutex held by caller.
func (o *Orchestrator) fail(err error) {
	o.stopTicker()
	next := State{
		Phase:     PhaseFailed,
		SessionID: o.state.SessionID,
		Model:     o.state.Model,
		Reason:    err.Error(),
	}
	o.log.Warn("session failed", slog.String("reason", err.Error()))
	o.setState(next)
}

// StopAndTranscribe finalizes the recording and runs inference. The engine
// call executes on its own goroutine because it is compute-bound; the
// orchestrator awaits it without holding the mutex, so state remains
// observable while Processing. Once inference starts there is no cancel
// path: the session exits Processing only through completion or failure.
func (o *Orchestrator) StopAndTranscribe(ctx context.Context) (State, error) {
	o.mu.Lock()
	if o.state.Phase != PhaseRecording {
		state := o.state
		o.mu.Unlock()
		return state, fmt.Errorf("%w: stop from %s", ErrInvalidState, state.Phase)
	}
	o.stopTicker()

	artifact, err := o.recorder.Stop()
	if err != nil || artifact == nil {
		if err == nil {
			err = capture.ErrNoArtifact
		}
		err = fmt.Errorf("no audio produced: %w", err)
		o.fail(err)
		state := o.state
		o.mu.Unlock()
		return state, err
	}

	processing := State{
		Phase:     PhaseProcessing,
		SessionID: o.state.SessionID,
		Model:     o.state.Model,
		Artifact:  artifact,
	}
	o.setState(processing)
	modelPath := o.models.State().Path
	o.mu.Unlock()

	started := o.clock()
	type outcome struct {
		result engine.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.engine.Transcribe(ctx, engine.Request{
			AudioPath: artifact.Path,
			ModelPath: modelPath,
			Language:  o.language,
		})
		done <- outcome{result: result, err: err}
	}()
	out := <-done
	elapsed := o.clock().Sub(started)

	if out.err == nil && strings.TrimSpace(out.result.Text) == "" {
		out.err = engine.ErrEmptyResult
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if out.err != nil {
		err := fmt.Errorf("transcription: %w", out.err)
		o.fail(err)
		return o.state, err
	}

	completed := State{
		Phase:              PhaseCompleted,
		SessionID:          processing.SessionID,
		Model:              processing.Model,
		Artifact:           artifact,
		Text:               strings.TrimSpace(out.result.Text),
		ProcessingDuration: elapsed,
	}
	o.setState(completed)
	o.log.Info("session completed",
		slog.String("session_id", completed.SessionID),
		slog.Duration("processing", elapsed))
	return completed, nil
}

// CancelRecording aborts an active recording and deletes the partial file.
// Valid only while Recording.
func (o *Orchestrator) CancelRecording() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Phase != PhaseRecording {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, o.state.Phase)
	}
	o.stopTicker()
	o.recorder.Cancel()
	o.log.Info("session cancelled", slog.String("session_id", o.state.SessionID))
	o.setState(State{Phase: PhaseIdle})
	return nil
}

// Reset returns a terminal or idle session to Idle. The next session starts
// from a clean slate; a new attempt re-queries permission and model state.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Terminal() && o.state.Phase != PhaseIdle {
		return fmt.Errorf("%w: reset from %s", ErrInvalidState, o.state.Phase)
	}
	o.stopTicker()
	o.setState(State{Phase: PhaseIdle})
	return nil
}
