package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Terminal.HomePath != "/home/user" || cfg.Terminal.DefaultDurationSeconds != 3600 {
		t.Fatalf("unexpected terminal defaults %+v", cfg.Terminal)
	}
}

func TestLoadOverridesTerminal(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
terminal:
  hostname: lab01
  home_path: /home/student
  default_lab: k8s-intro
  default_duration_seconds: 900
http:
  admin_token: $LABTERM_TEST_TOKEN
`)
	t.Setenv("LABTERM_TEST_TOKEN", "sekret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	svc := cfg.ServiceConfig()
	if svc.Hostname != "lab01" || svc.HomePath != "/home/student" || svc.DefaultLab != "k8s-intro" || svc.DefaultDurationSeconds != 900 {
		t.Fatalf("unexpected service config %+v", svc)
	}
	if svc.ScrollbackMaxLines != 5000 {
		t.Fatalf("expected default scrollback, got %d", svc.ScrollbackMaxLines)
	}
	if cfg.HTTP.AdminToken != "sekret" {
		t.Fatalf("expected expanded admin token, got %q", cfg.HTTP.AdminToken)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 9
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
terminal:
  hostname: lab01
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version required error, got %v", err)
	}
}

func TestLoadRejectsInvalidTerminal(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "relative home", content: "config_version: 1\nterminal:\n  home_path: home/user\n", want: "terminal"},
		{name: "bad lab", content: "config_version: 1\nterminal:\n  default_lab: \"lab one\"\n", want: "invalid lab"},
		{name: "negative duration", content: "config_version: 1\nterminal:\n  default_duration_seconds: -1\n", want: "default_duration_seconds"},
		{name: "bad seed", content: "config_version: 1\nauth:\n  seed_users:\n    - username: Bad\n", want: "seed_users"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q error, got %v", tc.want, err)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config to exist: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
