package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dictalabs/dicta-core/internal/bus"
	"github.com/dictalabs/dicta-core/internal/capture"
	"github.com/dictalabs/dicta-core/internal/config"
	"github.com/dictalabs/dicta-core/internal/engine"
	"github.com/dictalabs/dicta-core/internal/history"
	"github.com/dictalabs/dicta-core/internal/model"
	"github.com/dictalabs/dicta-core/internal/natsserver"
	"github.com/dictalabs/dicta-core/internal/permission"
	"github.com/dictalabs/dicta-core/internal/protocol"
	"github.com/dictalabs/dicta-core/internal/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Version is stamped at release time via -ldflags.
var Version = "0.1.0-dev"

// Runtime wires config, telemetry, the bus, the history store, the model
// lifecycle, and the session orchestrator into one process.
type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	telemetry  *telemetry
	ready      atomic.Bool
	wg         sync.WaitGroup

	busClient    *bus.Client
	embedded     *natsserver.EmbeddedServer
	store        *history.Store
	models       *model.Manager
	orchestrator *session.Orchestrator

	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	sessionsFailed    metric.Int64Counter
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel

	if err := r.initMetricInstruments(); err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.embedded = embedded

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		r.embedded.Shutdown()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busClient = busClient

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		r.busClient.Close()
		r.embedded.Shutdown()
		return fmt.Errorf("failed to open history store: %w", err)
	}
	r.store = store

	if err := r.buildPipeline(ctx); err != nil {
		_ = r.store.Close()
		r.busClient.Close()
		r.embedded.Shutdown()
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.telemetry.MetricsHandler != nil {
		mux.Handle("/metrics", r.telemetry.MetricsHandler)
	}
	r.registerAPI(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := r.store.Close(); err != nil {
		r.logger.Error("history store close error", slog.String("error", err.Error()))
	}
	r.busClient.Close()
	r.embedded.Shutdown()

	if err := r.telemetry.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

// buildPipeline assembles the capture-through-transcription components with
// explicit dependency injection into the orchestrator.
func (r *Runtime) buildPipeline(ctx context.Context) error {
	gate, err := permission.FromConfig(r.cfg.Permission)
	if err != nil {
		return fmt.Errorf("failed to build permission gate: %w", err)
	}

	var source capture.Source
	switch r.cfg.Audio.Source {
	case "exec":
		source, err = capture.NewExecSource(r.cfg.Audio)
		if err != nil {
			return fmt.Errorf("failed to build capture source: %w", err)
		}
	default:
		source = &capture.MockSource{}
	}
	recorder := capture.NewSession(r.cfg.Audio, source, r.logger)

	eng, err := engine.FromConfig(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	r.models = model.NewManager(r.cfg.Model, r.logger, r.publishModelState)

	r.orchestrator = session.NewOrchestrator(gate, recorder, eng, r.models, r.logger, session.Options{
		TickInterval: time.Duration(r.cfg.Audio.TickIntervalMS) * time.Millisecond,
		Language:     r.cfg.Engine.Language,
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.observeSessions(ctx, r.orchestrator.Subscribe())
	}()

	spec, err := model.Lookup(r.cfg.Model.Name)
	if err != nil {
		return fmt.Errorf("failed to resolve configured model: %w", err)
	}
	// Initial model load can fetch from the network; keep it off the
	// startup path and off the shutdown wait. Recording is rejected until
	// the state reaches Ready.
	go r.models.Initialize(context.WithoutCancel(ctx), spec)

	return nil
}

func (r *Runtime) initMetricInstruments() error {
	meter := otel.Meter("dicta-core/session")
	var err error
	if r.sessionsStarted, err = meter.Int64Counter("dicta_sessions_started_total"); err != nil {
		return err
	}
	if r.sessionsCompleted, err = meter.Int64Counter("dicta_sessions_completed_total"); err != nil {
		return err
	}
	if r.sessionsFailed, err = meter.Int64Counter("dicta_sessions_failed_total"); err != nil {
		return err
	}
	return nil
}

// observeSessions bridges orchestrator transitions to the bus, the history
// store, and the session counters.
func (r *Runtime) observeSessions(ctx context.Context, updates <-chan session.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case state := <-updates:
			r.publishSessionState(state)
			switch state.Phase {
			case session.PhaseCompleted:
				r.sessionsCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("model", state.Model)))
				r.recordOutcome(ctx, state)
				r.publishTranscript(state)
			case session.PhaseFailed:
				r.sessionsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("model", state.Model)))
				r.recordOutcome(ctx, state)
			}
		}
	}
}

func (r *Runtime) recordOutcome(ctx context.Context, state session.State) {
	rec := history.Record{
		SessionID:  state.SessionID,
		Model:      state.Model,
		Text:       state.Text,
		Reason:     state.Reason,
		DurationMS: state.ProcessingDuration.Milliseconds(),
	}
	if state.Phase == session.PhaseCompleted {
		rec.Outcome = "completed"
	} else {
		rec.Outcome = "failed"
	}
	if state.Artifact != nil {
		rec.ArtifactPath = state.Artifact.Path
	}
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.Warn("failed to record session outcome", slog.String("error", err.Error()))
	}
}

func (r *Runtime) publishSessionState(state session.State) {
	r.busClient.PublishJSON(protocol.SubjectSessionState, protocol.SessionStateChange{
		SessionID: state.SessionID,
		Phase:     string(state.Phase),
		Reason:    state.Reason,
		ElapsedMS: state.Elapsed.Milliseconds(),
		Timestamp: time.Now().UTC(),
	})
}

func (r *Runtime) publishTranscript(state session.State) {
	msg := protocol.Transcript{
		SessionID:  state.SessionID,
		Text:       state.Text,
		Model:      state.Model,
		Language:   r.cfg.Engine.Language,
		DurationMS: state.ProcessingDuration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if state.Artifact != nil {
		msg.ArtifactPath = state.Artifact.Path
	}
	r.busClient.PublishJSON(protocol.SubjectTranscript, msg)
}

func (r *Runtime) publishModelState(state model.State) {
	r.busClient.PublishJSON(protocol.SubjectModelState, protocol.ModelStateChange{
		Model:     state.Model,
		Status:    string(state.Status),
		Reason:    state.Reason,
		Timestamp: time.Now().UTC(),
	})
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
