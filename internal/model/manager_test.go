package model

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dictalabs/dicta-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSpec() Spec {
	return Spec{Name: "tiny", ExpectedMinSizeBytes: 64}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestInitializeCacheFastPath(t *testing.T) {
	spec := testSpec()
	cfg := config.ModelConfig{
		CacheDir: t.TempDir(),
		// Unreachable endpoints: the fast path must not touch either.
		AssetDir:     filepath.Join(t.TempDir(), "missing"),
		DownloadBase: "http://127.0.0.1:0",
	}
	writeFile(t, filepath.Join(cfg.CacheDir, spec.FileName()), 128)

	m := NewManager(cfg, newLogger(), nil)
	state := m.Initialize(context.Background(), spec)

	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", state.Status, state.Reason)
	}
	if state.Model != "tiny" {
		t.Fatalf("expected model tiny, got %s", state.Model)
	}

	// Second run is a no-op fast path.
	state = m.Initialize(context.Background(), spec)
	if state.Status != StatusReady {
		t.Fatalf("expected ready on second run, got %s", state.Status)
	}
}

func TestInitializeFromBundledAsset(t *testing.T) {
	spec := testSpec()
	cfg := config.ModelConfig{
		CacheDir:     t.TempDir(),
		AssetDir:     t.TempDir(),
		DownloadBase: "http://127.0.0.1:0",
	}
	writeFile(t, filepath.Join(cfg.AssetDir, spec.FileName()), 256)

	m := NewManager(cfg, newLogger(), nil)
	state := m.Initialize(context.Background(), spec)

	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", state.Status, state.Reason)
	}
	info, err := os.Stat(filepath.Join(cfg.CacheDir, spec.FileName()))
	if err != nil {
		t.Fatalf("expected cached copy: %v", err)
	}
	if info.Size() != 256 {
		t.Fatalf("expected 256 byte copy, got %d", info.Size())
	}
}

func TestInitializeNetworkFallback(t *testing.T) {
	spec := testSpec()
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/"+spec.FileName() {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(make([]byte, 512))
	}))
	t.Cleanup(server.Close)

	cfg := config.ModelConfig{
		CacheDir:     t.TempDir(),
		AssetDir:     filepath.Join(t.TempDir(), "missing"),
		DownloadBase: server.URL,
	}

	m := NewManager(cfg, newLogger(), nil)
	state := m.Initialize(context.Background(), spec)

	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", state.Status, state.Reason)
	}
	if hits != 1 {
		t.Fatalf("expected a single fetch, got %d", hits)
	}

	// Cached now; re-initialize must not hit the network again.
	state = m.Initialize(context.Background(), spec)
	if state.Status != StatusReady {
		t.Fatalf("expected ready, got %s", state.Status)
	}
	if hits != 1 {
		t.Fatalf("expected fetch-once, got %d hits", hits)
	}
}

func TestInitializeTotalFailure(t *testing.T) {
	spec := testSpec()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := config.ModelConfig{
		CacheDir:     t.TempDir(),
		AssetDir:     filepath.Join(t.TempDir(), "missing"),
		DownloadBase: server.URL,
	}

	m := NewManager(cfg, newLogger(), nil)
	state := m.Initialize(context.Background(), spec)

	if state.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", state.Status)
	}
	if state.Reason == "" {
		t.Fatal("expected failure reason")
	}
}

func TestChangeModelShowsInitializingImmediately(t *testing.T) {
	spec := testSpec()
	cfg := config.ModelConfig{
		CacheDir:     t.TempDir(),
		AssetDir:     filepath.Join(t.TempDir(), "missing"),
		DownloadBase: "http://127.0.0.1:0",
	}
	writeFile(t, filepath.Join(cfg.CacheDir, spec.FileName()), 128)

	var seen []Status
	m := NewManager(cfg, newLogger(), func(s State) { seen = append(seen, s.Status) })
	m.Initialize(context.Background(), spec)

	next := Spec{Name: "base", ExpectedMinSizeBytes: 64}
	writeFile(t, filepath.Join(cfg.CacheDir, next.FileName()), 128)
	seen = nil
	state := m.ChangeModel(context.Background(), next)

	if state.Status != StatusReady {
		t.Fatalf("expected ready after switch, got %s", state.Status)
	}
	if len(seen) < 2 || seen[0] != StatusInitializing {
		t.Fatalf("expected initializing observed before ready, got %v", seen)
	}
	if seen[len(seen)-1] != StatusReady {
		t.Fatalf("expected final ready, got %v", seen)
	}
}

func TestChangeModelAsyncNeverShowsStaleReady(t *testing.T) {
	spec := testSpec()
	cfg := config.ModelConfig{
		CacheDir:     t.TempDir(),
		AssetDir:     filepath.Join(t.TempDir(), "missing"),
		DownloadBase: "http://127.0.0.1:0",
	}
	writeFile(t, filepath.Join(cfg.CacheDir, spec.FileName()), 128)

	m := NewManager(cfg, newLogger(), nil)
	if state := m.Initialize(context.Background(), spec); state.Status != StatusReady {
		t.Fatalf("setup: expected ready, got %s", state.Status)
	}

	// The switch target is unavailable everywhere, so the background work
	// will fail; the Initializing state must still be visible synchronously.
	next := Spec{Name: "base", ExpectedMinSizeBytes: 64}
	state := m.ChangeModelAsync(context.Background(), next)
	if state.Status != StatusInitializing {
		t.Fatalf("expected initializing returned, got %s", state.Status)
	}
	if got := m.State().Status; got == StatusReady {
		t.Fatal("stale ready observable during model switch")
	}

	deadline := time.After(5 * time.Second)
	for m.State().Status == StatusInitializing {
		select {
		case <-deadline:
			t.Fatal("model switch never settled")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := m.State(); got.Status != StatusFailed || got.Model != "base" {
		t.Fatalf("expected failed switch for base, got %+v", got)
	}
}

func TestLookup(t *testing.T) {
	spec, err := Lookup("base.en")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if spec.FileName() != "ggml-base.en.bin" {
		t.Fatalf("unexpected filename %s", spec.FileName())
	}
	if _, err := Lookup("nonsense"); err == nil {
		t.Fatal("expected error for unknown model")
	}
}
