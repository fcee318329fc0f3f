package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/internal/auth"
)

const testPubKey = "ssh-ed25519 AAAAC3NzaC1lZDI1NTE5AAAAIOMqqnkVzrm0SdG6UOoqKLsabgH5C9okWi0dh2l9GKJl test@example"

func TestUsersAddRejectsInvalidUsername(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "BadUser", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for invalid username")
	}
}

func TestUsersAddAndDelete(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	var out bytes.Buffer
	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "alice.dev", "--auto-password"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if !strings.Contains(out.String(), "password: ") {
		t.Fatalf("expected generated password in output, got %q", out.String())
	}
	if strings.Contains(out.String(), "totp_secret") {
		t.Fatalf("expected no totp enrollment without --totp, got %q", out.String())
	}

	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	user := findUser(store.LoadUsers(), "alice.dev")
	if user == nil {
		t.Fatalf("expected alice.dev in store")
	}
	if user.TOTPSecret != "" {
		t.Fatalf("expected no totp secret")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "delete", "alice.dev"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	store, err = auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if findUser(store.LoadUsers(), "alice.dev") != nil {
		t.Fatalf("expected alice.dev to be removed")
	}
}

func TestUsersAddPasswordFromStdin(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "erin", "--password-from-stdin"})
	cmd.SetIn(strings.NewReader("s3cret-pass\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if err := store.ValidatePassword("erin", "s3cret-pass"); err != nil {
		t.Fatalf("expected stdin password to validate: %v", err)
	}
}

func TestUsersAddPromptedPassword(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "frank"})
	cmd.SetIn(strings.NewReader("hunter22\nhunter22\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}
	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	if err := store.ValidatePassword("frank", "hunter22"); err != nil {
		t.Fatalf("expected prompted password to validate: %v", err)
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "frank"})
	cmd.SetIn(strings.NewReader("one\ntwo\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestUsersTOTPLifecycle(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	var out bytes.Buffer
	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "bob", "--auto-password", "--totp"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}
	if !strings.Contains(out.String(), "otpauth://totp/labterm:bob") {
		t.Fatalf("expected otpauth url, got %q", out.String())
	}

	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findUser(store.LoadUsers(), "bob")
	if orig == nil || orig.TOTPSecret == "" {
		t.Fatalf("expected bob with a totp secret")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rotate-totp", "bob"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rotate-totp: %v", err)
	}
	store, err = auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	rotated := findUser(store.LoadUsers(), "bob")
	if rotated == nil || rotated.TOTPSecret == orig.TOTPSecret {
		t.Fatalf("expected TOTP secret to change")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "disable-totp", "bob"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("disable-totp: %v", err)
	}
	store, err = auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	if store.HasTOTP("bob") {
		t.Fatalf("expected totp to be disabled")
	}
}

func TestUsersChpasswd(t *testing.T) {
	cfgPath := writeTestConfig(t)
	cfg := loadConfigFromPath(t, cfgPath)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	store, err := auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	orig := findUser(store.LoadUsers(), "carol")
	if orig == nil {
		t.Fatalf("expected carol user")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "chpasswd", "carol", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("chpasswd: %v", err)
	}

	store, err = auth.NewStoreWithLogger(cfg.Auth.UserFile, nil, nil)
	if err != nil {
		t.Fatalf("reload store: %v", err)
	}
	updated := findUser(store.LoadUsers(), "carol")
	if updated == nil {
		t.Fatalf("expected carol user after chpasswd")
	}
	if updated.PasswordHash == orig.PasswordHash {
		t.Fatalf("expected password hash to change")
	}
}

func TestUsersLoginPubKeys(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cmd := newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "add", "dave", "--auto-password"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add user: %v", err)
	}

	var out bytes.Buffer
	cmd = newUsersCmd()
	cmd.SetArgs(append([]string{"-c", cfgPath, "add-login-pubkey", "dave"}, strings.Fields(testPubKey)...))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("add-login-pubkey: %v", err)
	}
	if !strings.Contains(out.String(), "(id 1)") {
		t.Fatalf("unexpected add output %q", out.String())
	}

	out.Reset()
	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "list-login-pubkeys", "dave"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list-login-pubkeys: %v", err)
	}
	if !strings.HasPrefix(out.String(), "1) ssh-ed25519 ") {
		t.Fatalf("unexpected list output %q", out.String())
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rm-login-pubkey", "dave", "0"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected invalid id error")
	}

	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "rm-login-pubkey", "dave", "1"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("rm-login-pubkey: %v", err)
	}

	out.Reset()
	cmd = newUsersCmd()
	cmd.SetArgs([]string{"-c", cfgPath, "list-login-pubkeys", "dave"})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list-login-pubkeys: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no login pubkeys" {
		t.Fatalf("expected empty list, got %q", out.String())
	}
}

func TestResolvePasswordRejectsBothSources(t *testing.T) {
	cmd := newUsersCmd()
	if _, _, err := resolvePassword(cmd, true, true); err == nil {
		t.Fatalf("expected error when both sources are set")
	}
}

func TestGeneratePassword(t *testing.T) {
	pass, err := generatePassword(0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(pass) != defaultPasswordLength {
		t.Fatalf("expected length %d, got %d", defaultPasswordLength, len(pass))
	}
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.StateDir = t.TempDir()
	cfg.SSH.HostKeyPath = filepath.Join(t.TempDir(), "ssh_host_key")
	cfg.Auth.UserFile = filepath.Join(t.TempDir(), "users.json")
	cfg.Transcripts.Dir = filepath.Join(t.TempDir(), "transcripts")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func loadConfigFromPath(t *testing.T, path string) appconfig.Config {
	t.Helper()
	cfg, err := appconfig.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func findUser(users []auth.User, username string) *auth.User {
	for _, user := range users {
		if user.Username == username {
			copy := user
			return &copy
		}
	}
	return nil
}
