package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dictalabs/dicta-core/internal/capture"
	"github.com/dictalabs/dicta-core/internal/engine"
	"github.com/dictalabs/dicta-core/internal/model"
	"github.com/dictalabs/dicta-core/internal/permission"
	"github.com/dictalabs/dicta-core/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type sessionResponse struct {
	Phase        string `json:"phase"`
	SessionID    string `json:"session_id,omitempty"`
	Model        string `json:"model,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms,omitempty"`
	Text         string `json:"text,omitempty"`
	ProcessingMS int64  `json:"processing_ms,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

type modelResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	Reason string `json:"reason,omitempty"`
	Path   string `json:"path,omitempty"`
}

type errorResponse struct {
	Error        string `json:"error"`
	SettingsHint string `json:"settings_hint,omitempty"`
}

func (r *Runtime) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/session/start", r.handleSessionStart)
	mux.HandleFunc("POST /v1/session/stop", r.handleSessionStop)
	mux.HandleFunc("POST /v1/session/cancel", r.handleSessionCancel)
	mux.HandleFunc("POST /v1/session/reset", r.handleSessionReset)
	mux.HandleFunc("GET /v1/session", r.handleSessionGet)
	mux.HandleFunc("GET /v1/model", r.handleModelGet)
	mux.HandleFunc("POST /v1/model", r.handleModelChange)
	mux.HandleFunc("GET /v1/models", r.handleModelCatalog)
	mux.HandleFunc("GET /v1/history", r.handleHistory)
}

func toSessionResponse(state session.State) sessionResponse {
	resp := sessionResponse{
		Phase:        string(state.Phase),
		SessionID:    state.SessionID,
		Model:        state.Model,
		ElapsedMS:    state.Elapsed.Milliseconds(),
		Text:         state.Text,
		ProcessingMS: state.ProcessingDuration.Milliseconds(),
		Reason:       state.Reason,
	}
	if state.Artifact != nil {
		resp.ArtifactPath = state.Artifact.Path
	}
	return resp
}

func (r *Runtime) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func (r *Runtime) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, session.ErrModelNotReady):
		status = http.StatusConflict
	case errors.Is(err, permission.ErrPermanentlyDenied):
		status = http.StatusForbidden
		resp.SettingsHint = r.cfg.Permission.SettingsHint
	case errors.Is(err, permission.ErrDenied):
		status = http.StatusForbidden
	case errors.Is(err, capture.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrEmptyResult):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrEngine):
		status = http.StatusBadGateway
	}
	r.writeJSON(w, status, resp)
}

func (r *Runtime) handleSessionStart(w http.ResponseWriter, req *http.Request) {
	if err := r.orchestrator.StartRecording(req.Context()); err != nil {
		r.writeError(w, err)
		return
	}
	state := r.orchestrator.State()
	r.sessionsStarted.Add(req.Context(), 1, metric.WithAttributes(attribute.String("model", state.Model)))
	r.writeJSON(w, http.StatusOK, toSessionResponse(state))
}

func (r *Runtime) handleSessionStop(w http.ResponseWriter, req *http.Request) {
	state, err := r.orchestrator.StopAndTranscribe(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, toSessionResponse(state))
}

func (r *Runtime) handleSessionCancel(w http.ResponseWriter, _ *http.Request) {
	if err := r.orchestrator.CancelRecording(); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, toSessionResponse(r.orchestrator.State()))
}

func (r *Runtime) handleSessionReset(w http.ResponseWriter, _ *http.Request) {
	if err := r.orchestrator.Reset(); err != nil {
		r.writeError(w, err)
		return
	}
	r.writeJSON(w, http.StatusOK, toSessionResponse(r.orchestrator.State()))
}

func (r *Runtime) handleSessionGet(w http.ResponseWriter, _ *http.Request) {
	r.writeJSON(w, http.StatusOK, toSessionResponse(r.orchestrator.State()))
}

func (r *Runtime) handleModelGet(w http.ResponseWriter, _ *http.Request) {
	state := r.models.State()
	r.writeJSON(w, http.StatusOK, modelResponse{
		Status: string(state.Status),
		Model:  state.Model,
		Reason: state.Reason,
		Path:   state.Path,
	})
}

func (r *Runtime) handleModelChange(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	spec, err := model.Lookup(body.Name)
	if err != nil {
		r.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	state := r.models.ChangeModelAsync(req.Context(), spec)
	r.writeJSON(w, http.StatusAccepted, modelResponse{
		Status: string(state.Status),
		Model:  state.Model,
		Reason: state.Reason,
	})
}

func (r *Runtime) handleModelCatalog(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Name         string `json:"name"`
		FileName     string `json:"file_name"`
		MinSizeBytes int64  `json:"min_size_bytes"`
	}
	var out []entry
	for _, spec := range model.Catalog() {
		out = append(out, entry{Name: spec.Name, FileName: spec.FileName(), MinSizeBytes: spec.ExpectedMinSizeBytes})
	}
	r.writeJSON(w, http.StatusOK, out)
}

func (r *Runtime) handleHistory(w http.ResponseWriter, req *http.Request) {
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := r.store.ListRecent(req.Context(), limit)
	if err != nil {
		r.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	type entry struct {
		SessionID    string `json:"session_id"`
		Model        string `json:"model"`
		Outcome      string `json:"outcome"`
		Text         string `json:"text,omitempty"`
		Reason       string `json:"reason,omitempty"`
		DurationMS   int64  `json:"duration_ms"`
		ArtifactPath string `json:"artifact_path,omitempty"`
		CreatedAt    string `json:"created_at"`
	}
	out := make([]entry, 0, len(records))
	for _, rec := range records {
		out = append(out, entry{
			SessionID:    rec.SessionID,
			Model:        rec.Model,
			Outcome:      rec.Outcome,
			Text:         rec.Text,
			Reason:       rec.Reason,
			DurationMS:   rec.DurationMS,
			ArtifactPath: rec.ArtifactPath,
			CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	r.writeJSON(w, http.StatusOK, out)
}
