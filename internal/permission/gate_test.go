package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/dictalabs/dicta-core/internal/config"
)

func TestStatusErr(t *testing.T) {
	if err := Granted.Err(); err != nil {
		t.Fatalf("granted must not error: %v", err)
	}
	if err := Denied.Err(); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if err := PermanentlyDenied.Err(); !errors.Is(err, ErrPermanentlyDenied) {
		t.Fatalf("expected ErrPermanentlyDenied, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	gate, err := FromConfig(config.PermissionConfig{Mode: "deny", SettingsHint: "Settings > Privacy"})
	if err != nil {
		t.Fatalf("build gate: %v", err)
	}
	status, err := gate.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if status != Denied {
		t.Fatalf("expected denied, got %s", status)
	}
	if gate.SettingsHint() != "Settings > Privacy" {
		t.Fatalf("unexpected hint %q", gate.SettingsHint())
	}

	if _, err := FromConfig(config.PermissionConfig{Mode: "exec"}); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
