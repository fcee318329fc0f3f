package main

import (
	"testing"

	"pkt.systems/labterm/internal/appconfig"
	"pkt.systems/labterm/schema"
)

func TestServerOptionsFollowAddresses(t *testing.T) {
	tests := []struct {
		name string
		http string
		ssh  string
		want int
	}{
		{name: "both", http: "127.0.0.1:0", ssh: ":0", want: 2},
		{name: "ssh-only", ssh: ":0", want: 1},
		{name: "http-only", http: "127.0.0.1:0", want: 1},
		{name: "none", http: "  ", want: 0},
	}
	for _, tc := range tests {
		cfg := appconfig.Config{
			HTTP: appconfig.HTTPConfig{Addr: tc.http},
			SSH:  appconfig.SSHConfig{Addr: tc.ssh},
		}
		if got := len(serverOptions(cfg)); got != tc.want {
			t.Fatalf("%s: expected %d options, got %d", tc.name, tc.want, got)
		}
	}
}

func TestToServerConfig(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Terminal.DefaultLab = "k8s-basics"
	cfg.Terminal.DefaultDurationSeconds = 900
	cfg.HTTP.BasePath = "/lab"
	cfg.HTTP.AdminToken = "tok"
	cfg.Logging.DisableAuditTrails = true
	cfg.Auth.SeedUsers = []appconfig.SeedUser{{Username: "alice", PasswordHash: "hash", TOTPSecret: "secret"}}

	got := toServerConfig(cfg)
	if got.Service.DefaultLab != schema.LabID("k8s-basics") || got.Service.DefaultDurationSeconds != 900 {
		t.Fatalf("unexpected service config %+v", got.Service)
	}
	if !got.Service.DisableAuditLogging {
		t.Fatalf("expected audit logging disabled")
	}
	if got.HTTP.BasePath != "/lab" || got.HTTP.AdminToken != "tok" || got.HTTP.StreamHistory != cfg.HTTP.StreamHistory {
		t.Fatalf("unexpected http config %+v", got.HTTP)
	}
	if got.SSH.DefaultLab != schema.LabID("k8s-basics") || got.SSH.DurationSeconds != 900 || got.SSH.HostKeyPath != cfg.SSH.HostKeyPath {
		t.Fatalf("unexpected ssh config %+v", got.SSH)
	}
	if len(got.Auth.SeedUsers) != 1 || got.Auth.SeedUsers[0].TOTPSecret != "secret" {
		t.Fatalf("unexpected auth config %+v", got.Auth)
	}
	if !got.Transcripts.Enabled || got.Transcripts.Dir != cfg.Transcripts.Dir {
		t.Fatalf("unexpected transcript config %+v", got.Transcripts)
	}
}
