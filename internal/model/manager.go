package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dictalabs/dicta-core/internal/config"
)

// ErrInitFailed means neither the cache, the bundled asset, nor the network
// fallback produced a usable model file.
var ErrInitFailed = errors.New("model initialization failed")

// Manager materializes model artifacts on local storage and tracks the
// current selection. The file size threshold is the sole validity check.
type Manager struct {
	cfg    config.ModelConfig
	client *http.Client
	log    *slog.Logger
	notify func(State)

	mu    sync.Mutex
	state State
}

func NewManager(cfg config.ModelConfig, log *slog.Logger, notify func(State)) *Manager {
	timeout := time.Duration(cfg.FetchTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Manager{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    log.With(slog.String("component", "model")),
		notify: notify,
		state:  State{Status: StatusUninitialized},
	}
}

// State returns a snapshot of the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(state)
	}
}

// Initialize ensures an artifact for spec exists locally. Order is strict:
// cache fast path, then bundled asset, then a one-time network fetch. The
// Initializing state is visible before any blocking work begins.
func (m *Manager) Initialize(ctx context.Context, spec Spec) State {
	m.setState(State{Status: StatusInitializing, Model: spec.Name})

	path, err := m.materialize(ctx, spec)
	if err != nil {
		m.log.Error("model initialization failed",
			slog.String("model", spec.Name),
			slog.String("error", err.Error()))
		failed := State{Status: StatusFailed, Model: spec.Name, Reason: err.Error()}
		m.setState(failed)
		return failed
	}

	ready := State{Status: StatusReady, Model: spec.Name, Path: path}
	m.setState(ready)
	return ready
}

// ChangeModel invalidates any Ready state and re-runs initialization with
// the new spec. Consumers never observe a stale Ready for the old model.
func (m *Manager) ChangeModel(ctx context.Context, spec Spec) State {
	return m.Initialize(ctx, spec)
}

// ChangeModelAsync flips to Initializing synchronously, then finishes the
// switch in the background. A switch already in flight is left alone.
func (m *Manager) ChangeModelAsync(ctx context.Context, spec Spec) State {
	m.mu.Lock()
	if m.state.Status == StatusInitializing {
		state := m.state
		m.mu.Unlock()
		return state
	}
	initializing := State{Status: StatusInitializing, Model: spec.Name}
	m.state = initializing
	m.mu.Unlock()
	if m.notify != nil {
		m.notify(initializing)
	}

	ctx = context.WithoutCancel(ctx)
	go func() {
		path, err := m.materialize(ctx, spec)
		if err != nil {
			m.log.Error("model switch failed",
				slog.String("model", spec.Name),
				slog.String("error", err.Error()))
			m.setState(State{Status: StatusFailed, Model: spec.Name, Reason: err.Error()})
			return
		}
		m.setState(State{Status: StatusReady, Model: spec.Name, Path: path})
	}()
	return initializing
}

func (m *Manager) materialize(ctx context.Context, spec Spec) (string, error) {
	cachePath := filepath.Join(m.cfg.CacheDir, spec.FileName())

	if info, err := os.Stat(cachePath); err == nil && info.Size() > spec.ExpectedMinSizeBytes {
		m.log.Info("model cache hit",
			slog.String("model", spec.Name),
			slog.Int64("size_bytes", info.Size()))
		return cachePath, nil
	}

	if err := os.MkdirAll(m.cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create cache dir: %v", ErrInitFailed, err)
	}

	assetErr := m.copyFromAsset(spec, cachePath)
	if assetErr == nil {
		return cachePath, nil
	}
	m.log.Info("bundled asset unavailable, falling back to network",
		slog.String("model", spec.Name),
		slog.String("reason", assetErr.Error()))

	if fetchErr := m.fetch(ctx, spec, cachePath); fetchErr != nil {
		return "", fmt.Errorf("%w: asset: %v; fetch: %v", ErrInitFailed, assetErr, fetchErr)
	}
	return cachePath, nil
}

func (m *Manager) copyFromAsset(spec Spec, cachePath string) error {
	if m.cfg.AssetDir == "" {
		return errors.New("no asset dir configured")
	}
	assetPath := filepath.Join(m.cfg.AssetDir, spec.FileName())
	info, err := os.Stat(assetPath)
	if err != nil {
		return fmt.Errorf("stat asset: %w", err)
	}
	if info.Size() <= spec.ExpectedMinSizeBytes {
		return fmt.Errorf("asset undersized: %d bytes", info.Size())
	}

	src, err := os.Open(assetPath)
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}
	defer src.Close()

	if err := writeAtomic(cachePath, src); err != nil {
		return fmt.Errorf("copy asset: %w", err)
	}
	m.log.Info("model copied from bundled asset",
		slog.String("model", spec.Name),
		slog.Int64("size_bytes", info.Size()))
	return nil
}

func (m *Manager) fetch(ctx context.Context, spec Spec, cachePath string) error {
	url := fmt.Sprintf("%s/%s", m.cfg.DownloadBase, spec.FileName())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch model: unexpected status %s", resp.Status)
	}

	if err := writeAtomic(cachePath, resp.Body); err != nil {
		return fmt.Errorf("store model: %w", err)
	}

	info, err := os.Stat(cachePath)
	if err != nil {
		return fmt.Errorf("stat fetched model: %w", err)
	}
	if info.Size() <= spec.ExpectedMinSizeBytes {
		_ = os.Remove(cachePath)
		return fmt.Errorf("fetched model undersized: %d bytes", info.Size())
	}

	m.log.Info("model fetched",
		slog.String("model", spec.Name),
		slog.String("url", url),
		slog.Int64("size_bytes", info.Size()))
	return nil
}

// writeAtomic streams src into path via a temp file so a partial download
// never masquerades as a valid cached model.
func writeAtomic(path string, src io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model_*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
