package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/labterm/internal/appconfig"
)

func TestConfigInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetArgs([]string{"init", "-c", path})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("expected path in output, got %q", out.String())
	}
	if _, err := appconfig.Load(path); err != nil {
		t.Fatalf("load written config: %v", err)
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "-c", path})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error when config exists")
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "-c", path, "--force"})
	cmd.SetOut(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	t.Setenv("LABTERM_HTTP_ADMIN_TOKEN", "super-secret")
	cfgPath := writeTestConfig(t)

	var out bytes.Buffer
	cmd := newConfigCmd()
	cmd.SetArgs([]string{"show", "-c", cfgPath})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out.String(), "super-secret") {
		t.Fatalf("expected admin token to be redacted, got %q", out.String())
	}
	if !strings.Contains(out.String(), "admin_token: REDACTED") {
		t.Fatalf("expected redaction marker, got %q", out.String())
	}
}
