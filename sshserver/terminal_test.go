package sshserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"testing"
	"time"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/schema"
)

type idleTicker struct {
	c chan time.Time
}

func (t idleTicker) C() <-chan time.Time { return t.c }
func (t idleTicker) Stop()               {}

type fakeTTY struct {
	io.Reader
	out bytes.Buffer
}

func (f *fakeTTY) Write(p []byte) (int, error) {
	return f.out.Write(p)
}

func newTerminalService(t *testing.T, sink core.EventSink) core.Service {
	t.Helper()
	svc, err := core.NewService(schema.ServiceConfig{}, core.ServiceDeps{
		EventSink: sink,
		Clock:     func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
		NewTicker: func(time.Duration) core.Ticker { return idleTicker{c: make(chan time.Time)} },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		_ = svc.Shutdown(context.Background())
	})
	return svc
}

func startSession(t *testing.T, svc core.Service, lab schema.LabID) schema.SessionSnapshot {
	t.Helper()
	resp, err := svc.CreateSession(context.Background(), schema.CreateSessionRequest{UserID: "alice", LabID: lab, DurationSeconds: 600})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return resp.Session
}

func noLinger(t *testing.T) {
	t.Helper()
	prev := endedLingerDelay
	endedLingerDelay = 0
	t.Cleanup(func() { endedLingerDelay = prev })
}

func TestTerminalRunsCommandsUntilExit(t *testing.T) {
	noLinger(t)
	svc := newTerminalService(t, nil)
	snap := startSession(t, svc, "docker-101")
	tty := &fakeTTY{Reader: strings.NewReader("pwd\rexit\r")}
	term := NewTerminal(tty, TerminalConfig{Service: svc, SessionID: snap.ID, UserID: "alice"})
	term.SetSize(80, 24)

	reason, err := term.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != schema.EndUser {
		t.Fatalf("expected user end reason, got %q", reason)
	}
	out := tty.out.String()
	for _, want := range []string{"\x1b[?1049h", "lab docker-101 | 10:00 remaining", "/home/user", "logged out", "\x1b[?1049l"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in terminal output", want)
		}
	}
	got, err := svc.GetSession(context.Background(), schema.GetSessionRequest{SessionID: snap.ID})
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.Session.State != schema.SessionTerminated {
		t.Fatalf("expected terminated session, got %s", got.Session.State)
	}
}

func TestTerminalCopiesTranscriptWithOSC52(t *testing.T) {
	noLinger(t)
	svc := newTerminalService(t, nil)
	snap := startSession(t, svc, "")
	tty := &fakeTTY{Reader: strings.NewReader("echo hello\r\x19")}
	term := NewTerminal(tty, TerminalConfig{Service: svc, SessionID: snap.ID, UserID: "alice"})

	reason, err := term.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != "" {
		t.Fatalf("expected no end reason, got %q", reason)
	}
	export, err := svc.ExportTranscript(context.Background(), schema.ExportTranscriptRequest{SessionID: snap.ID})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(export.Text))
	if !strings.Contains(tty.out.String(), "\x1b]52;c;"+encoded) {
		t.Fatalf("expected OSC 52 copy of transcript %q", export.Text)
	}
	if !strings.Contains(tty.out.String(), "copied 2 lines") {
		t.Fatalf("expected copy notice in status bar")
	}
}

func TestTerminalStopsOnEndCallback(t *testing.T) {
	noLinger(t)
	svc := newTerminalService(t, nil)
	snap := startSession(t, svc, "")
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	ended := make(chan schema.EndReason, 1)
	ended <- schema.EndAdmin
	tty := &fakeTTY{Reader: pr}
	term := NewTerminal(tty, TerminalConfig{Service: svc, SessionID: snap.ID, UserID: "alice", Ended: ended})

	reason, err := term.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reason != schema.EndAdmin {
		t.Fatalf("expected admin end reason, got %q", reason)
	}
	if !strings.Contains(tty.out.String(), "ended by an instructor") {
		t.Fatalf("expected instructor message")
	}
}

func TestTerminalFollowsBusEvents(t *testing.T) {
	bus := eventbus.New(nil)
	svc := newTerminalService(t, bus)
	snap := startSession(t, svc, "")
	events, cancel := bus.Subscribe(snap.ID)
	defer cancel()

	term := NewTerminal(&fakeTTY{Reader: strings.NewReader("")}, TerminalConfig{Service: svc, SessionID: snap.ID, UserID: "alice", Events: events})
	term.ctx = context.Background()
	if err := term.refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if term.handleEvent(eventbus.Event{Type: eventbus.EventTick, Tick: schema.TickEvent{SessionID: snap.ID, RemainingSeconds: 42}}) {
		t.Fatalf("tick should not stop the terminal")
	}
	if term.snap.RemainingSeconds != 42 || !term.dirty {
		t.Fatalf("expected tick to update remaining time, got %d", term.snap.RemainingSeconds)
	}

	if _, err := svc.PauseSession(context.Background(), schema.PauseSessionRequest{SessionID: snap.ID}); err != nil {
		t.Fatalf("pause: %v", err)
	}
	var ev eventbus.Event
	select {
	case ev = <-events:
	case <-time.After(time.Second):
		t.Fatalf("expected lifecycle event")
	}
	if term.handleEvent(ev) {
		t.Fatalf("pause should not stop the terminal")
	}
	if term.snap.State != schema.SessionPaused {
		t.Fatalf("expected paused state, got %s", term.snap.State)
	}

	stop := term.handleEvent(eventbus.Event{Type: eventbus.EventLifecycle, Lifecycle: schema.LifecycleEvent{
		SessionID: snap.ID, State: schema.SessionTerminated, Reason: schema.EndExpired,
	}})
	if !stop || term.reason != schema.EndExpired {
		t.Fatalf("expected terminal stop on expiry, got stop=%v reason=%q", stop, term.reason)
	}
}

func TestTerminalViewHeight(t *testing.T) {
	term := NewTerminal(&fakeTTY{Reader: strings.NewReader("")}, TerminalConfig{})
	term.SetSize(0, 0)
	term.snap = schema.SessionSnapshot{Prompt: "u@h:~$ "}
	if got := term.viewHeight(); got != 22 {
		t.Fatalf("expected 22 viewport rows for 80x24, got %d", got)
	}
	term.SetSize(80, 1)
	if got := term.viewHeight(); got != 0 {
		t.Fatalf("expected no viewport rows, got %d", got)
	}
}

func TestLabFromEnv(t *testing.T) {
	cases := []struct {
		env  []string
		want schema.LabID
	}{
		{nil, "sandbox"},
		{[]string{"TERM=xterm", "LAB_ID=k8s-basics"}, "k8s-basics"},
		{[]string{"LAB_ID=  "}, "sandbox"},
		{[]string{"LAB_IDX=nope"}, "sandbox"},
	}
	for _, tc := range cases {
		if got := labFromEnv(tc.env, "sandbox"); got != tc.want {
			t.Fatalf("labFromEnv(%v): expected %q, got %q", tc.env, tc.want, got)
		}
	}
}
