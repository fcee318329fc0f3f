package integration_test

import (
	"testing"
	"time"

	"pkt.systems/labterm/schema"
)

func TestSSHSessionRunsCommands(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr, stop := startSSHServer(t, ts)
	defer stop()

	client := dialPlain(t, addr, ts)
	defer client.Close()
	shell := startShell(t, client, nil)

	expectOutput(t, shell.output, "lab intro-linux", 5*time.Second)
	expectOutput(t, shell.output, "10:00 remaining", 5*time.Second)

	shell.typeLine(t, "frobnicate")
	expectOutput(t, shell.output, "bash: frobnicate: command not found", 5*time.Second)

	shell.typeLine(t, "docker")
	expectOutput(t, shell.output, "Common commands: ps, images, run, version", 5*time.Second)

	summary := waitForSession(t, ts, ts.plainUser)
	if summary.State != schema.SessionActive {
		t.Fatalf("expected active session, got %s", summary.State)
	}

	shell.typeLine(t, "exit")
	expectOutput(t, shell.output, "logged out", 5*time.Second)
	shell.waitClosed(t)

	infos, err := ts.archive.List(schema.UserID(ts.plainUser))
	if err != nil {
		t.Fatalf("list transcripts: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected one archived transcript, got %d", len(infos))
	}
	text, ok, err := ts.archive.Load(schema.UserID(ts.plainUser), infos[0].Name)
	if err != nil || !ok {
		t.Fatalf("load transcript: ok=%v err=%v", ok, err)
	}
	if !containsAll(text, "frobnicate", "docker", "logout") {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestSSHSessionLabFromEnv(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr, stop := startSSHServer(t, ts)
	defer stop()

	client := dialPlain(t, addr, ts)
	defer client.Close()
	shell := startShell(t, client, map[string]string{"LAB_ID": "k8s-basics"})

	expectOutput(t, shell.output, "lab k8s-basics", 5*time.Second)
	summary := waitForSession(t, ts, ts.plainUser)
	if summary.LabID != schema.LabID("k8s-basics") {
		t.Fatalf("expected lab from env, got %s", summary.LabID)
	}
	_ = shell.session.Close()
}

func TestSSHSessionRequiresPty(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr, stop := startSSHServer(t, ts)
	defer stop()

	client := dialPlain(t, addr, ts)
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	out, _ := session.CombinedOutput("")
	if string(out) != "pty required\n" {
		t.Fatalf("unexpected output %q", string(out))
	}
}

func TestSSHDisconnectClosesSession(t *testing.T) {
	requireLong(t)
	ts := newTestServer(t)
	addr, stop := startSSHServer(t, ts)
	defer stop()

	client := dialPlain(t, addr, ts)
	shell := startShell(t, client, nil)
	expectOutput(t, shell.output, "remaining", 5*time.Second)
	waitForSession(t, ts, ts.plainUser)

	_ = shell.session.Close()
	_ = client.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := ts.service.ListSessions(t.Context(), schema.ListSessionsRequest{UserID: schema.UserID(ts.plainUser)})
		if err != nil {
			t.Fatalf("list sessions: %v", err)
		}
		if len(resp.Sessions) == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected session to be closed after disconnect")
}
