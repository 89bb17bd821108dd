package capture

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func shOrSkip(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecSourceOutlivesStartContext(t *testing.T) {
	shOrSkip(t)

	cfg := testAudioConfig(t)
	cfg.SourceCommand = "sh -c 'while true; do printf aaaa; done'"
	source, err := NewExecSource(cfg)
	if err != nil {
		t.Fatalf("new exec source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := source.Start(ctx)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer stream.Close()
	cancel()

	// The helper keeps producing after the start context is gone.
	time.Sleep(100 * time.Millisecond)
	buf := make([]byte, 256)
	total := 0
	for total < 64 {
		n, err := stream.Read(buf)
		if err != nil {
			t.Fatalf("read after context cancel: %v (read %d bytes)", err, total)
		}
		total += n
	}
}

func TestExecSourceRecordingSurvivesStartContext(t *testing.T) {
	shOrSkip(t)

	cfg := testAudioConfig(t)
	cfg.SourceCommand = "sh -c 'while true; do printf aaaa; done'"
	source, err := NewExecSource(cfg)
	if err != nil {
		t.Fatalf("new exec source: %v", err)
	}
	session := NewSession(cfg, source, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()

	time.Sleep(300 * time.Millisecond)
	artifact, err := session.Stop()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	// A tight shell loop writes far more than this; a capture killed at
	// cancellation leaves a near-empty file.
	if artifact.SizeBytes < 4096 {
		t.Fatalf("artifact size = %d, recording did not continue past start context", artifact.SizeBytes)
	}
}

func TestExecSourceStartWithCancelledContext(t *testing.T) {
	shOrSkip(t)

	cfg := testAudioConfig(t)
	cfg.SourceCommand = "sh -c 'while true; do printf aaaa; done'"
	source, err := NewExecSource(cfg)
	if err != nil {
		t.Fatalf("new exec source: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := source.Start(ctx); err == nil {
		t.Fatal("expected error starting with cancelled context")
	}
}
