package sshserver

import (
	"strings"
	"testing"

	"pkt.systems/labterm/schema"
)

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{60, "01:00"},
		{3599, "59:59"},
		{7200, "120:00"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		if got := formatRemaining(tc.seconds); got != tc.want {
			t.Fatalf("formatRemaining(%d): expected %q, got %q", tc.seconds, tc.want, got)
		}
	}
}

func TestRenderStatusBarFullWidth(t *testing.T) {
	snap := schema.SessionSnapshot{LabID: "k8s-basics", State: schema.SessionActive, RemainingSeconds: 1800}
	line := renderStatusBar(snap, "", 60, defaultTheme)
	if visibleWidth(line) != 60 {
		t.Fatalf("expected width 60, got %d", visibleWidth(line))
	}
	plain := sanitizeOutputLine(line)
	if !strings.Contains(plain, "lab k8s-basics | 30:00 remaining | active") {
		t.Fatalf("unexpected status bar %q", plain)
	}
}

func TestRenderStatusBarStates(t *testing.T) {
	cases := []struct {
		name string
		snap schema.SessionSnapshot
		want string
		fg   rgb
	}{
		{"low time", schema.SessionSnapshot{LabID: "a", State: schema.SessionActive, RemainingSeconds: 30}, "00:30 remaining | active", defaultTheme.StatusWarnFG},
		{"paused", schema.SessionSnapshot{LabID: "a", State: schema.SessionPaused, RemainingSeconds: 30}, "| paused", defaultTheme.PausedFG},
		{"ended", schema.SessionSnapshot{LabID: "a", State: schema.SessionTerminated, EndReason: schema.EndExpired}, "| terminated (expired)", defaultTheme.EndedFG},
	}
	for _, tc := range cases {
		line := renderStatusBar(tc.snap, "", 80, defaultTheme)
		if !strings.Contains(sanitizeOutputLine(line), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, sanitizeOutputLine(line))
		}
		if !strings.Contains(line, ansiFgRGB(tc.fg)) {
			t.Fatalf("%s: expected foreground %v", tc.name, tc.fg)
		}
	}
}

func TestRenderStatusBarNoticeAndTruncation(t *testing.T) {
	snap := schema.SessionSnapshot{LabID: "sandbox", State: schema.SessionPaused, RemainingSeconds: 90}
	line := sanitizeOutputLine(renderStatusBar(snap, "environment is paused", 200, defaultTheme))
	if !strings.Contains(line, "| environment is paused") {
		t.Fatalf("expected notice in %q", line)
	}
	narrow := renderStatusBar(snap, "", 10, defaultTheme)
	if visibleWidth(narrow) != 10 {
		t.Fatalf("expected truncated width 10, got %d", visibleWidth(narrow))
	}
}

func TestRenderViewportAtBottomKeepsTail(t *testing.T) {
	lines := []string{strings.Repeat("a", 25), "LAST"}
	view := renderViewport(lines, 10, 2, true)
	if len(view) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(view))
	}
	if view[1] != "LAST" {
		t.Fatalf("expected tail row LAST, got %q", view[1])
	}
	if view[0] != "aaaaa" {
		t.Fatalf("expected wrapped remainder, got %q", view[0])
	}
}

func TestRenderViewportScrolledShowsHead(t *testing.T) {
	view := renderViewport([]string{"one", "two", "three"}, 20, 2, false)
	if len(view) != 2 || view[0] != "one" || view[1] != "two" {
		t.Fatalf("unexpected viewport %q", view)
	}
	padded := renderViewport([]string{"one"}, 20, 3, true)
	if len(padded) != 3 || padded[2] != "" {
		t.Fatalf("expected padded viewport, got %q", padded)
	}
}

func TestRenderInputLinesWrapsAndPlacesCursor(t *testing.T) {
	prefix := "u@h:~$ "
	lines, row, col := renderInputLines(prefix, "abcdefghij", 10, 12)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d (%q)", len(lines), lines)
	}
	if lines[0] != "u@h:~$ abcde" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if lines[1] != "       fghij" {
		t.Fatalf("unexpected continuation line %q", lines[1])
	}
	if row != 2 || col != 12 {
		t.Fatalf("unexpected cursor %d,%d", row, col)
	}
}

func TestSanitizeOutputLineStripsAnsiAndControl(t *testing.T) {
	got := sanitizeOutputLine("\x1b[31mred\x1b[0m\ttab\x07")
	if got != "red    tab" {
		t.Fatalf("unexpected sanitized line %q", got)
	}
}

func TestWrapPlainLinesKeepsColumns(t *testing.T) {
	got := wrapPlainLines("PID   CMD", 20)
	if len(got) != 1 || got[0] != "PID   CMD" {
		t.Fatalf("expected spacing preserved, got %q", got)
	}
}
