package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.SampleRate != 16000 {
		t.Fatalf("expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 {
		t.Fatalf("expected mono default, got %d channels", cfg.Audio.Channels)
	}
	if cfg.Audio.MinArtifactBytes != 1024 {
		t.Fatalf("expected 1024 byte artifact floor, got %d", cfg.Audio.MinArtifactBytes)
	}
	if cfg.Model.Name != "tiny" {
		t.Fatalf("expected default model tiny, got %s", cfg.Model.Name)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DICTA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("DICTA_BUS_USERNAME", "alice")
	t.Setenv("DICTA_BUS_PASSWORD", "secret")
	t.Setenv("DICTA_AUDIO_STORAGE_DIR", "/tmp/recordings")
	t.Setenv("DICTA_AUDIO_MIN_ARTIFACT_BYTES", "2048")
	t.Setenv("DICTA_MODEL_NAME", "base.en")
	t.Setenv("DICTA_ENGINE_MODE", "exec")
	t.Setenv("DICTA_ENGINE_COMMAND", "whisper-cli")
	t.Setenv("DICTA_ENGINE_LANGUAGE", "en")
	t.Setenv("DICTA_HISTORY_PATH", "./tmp.db")
	t.Setenv("DICTA_HISTORY_RETENTION_MODE", "persistent")
	t.Setenv("DICTA_HISTORY_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Audio.StorageDir != "/tmp/recordings" {
		t.Fatalf("expected storage dir override")
	}
	if cfg.Audio.MinArtifactBytes != 2048 {
		t.Fatalf("expected artifact floor override, got %d", cfg.Audio.MinArtifactBytes)
	}
	if cfg.Model.Name != "base.en" {
		t.Fatalf("expected model override")
	}
	if cfg.Engine.Mode != "exec" || cfg.Engine.Command != "whisper-cli" {
		t.Fatalf("expected engine override")
	}
	if cfg.Engine.Language != "en" {
		t.Fatalf("expected language override")
	}
	if cfg.History.Path != "./tmp.db" {
		t.Fatalf("expected history path override")
	}
	if cfg.History.RetentionMode != "persistent" {
		t.Fatalf("expected history retention mode override")
	}
	if cfg.History.RetentionDays != 7 {
		t.Fatalf("expected history retention days override")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("DICTA_AUDIO_SOURCE", "exec")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec source without command")
	}
}
