package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/internal/eventbus"
	"pkt.systems/labterm/internal/logx"
	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

// Window is a terminal size change.
type Window struct {
	Width  int
	Height int
}

// TerminalConfig binds a terminal to a live session.
type TerminalConfig struct {
	Service   core.Service
	SessionID schema.SessionID
	UserID    schema.UserID
	// Term is the client TERM value; it selects the clipboard passthrough.
	Term string
	// Events delivers session events from the bus; nil disables push updates.
	Events <-chan eventbus.Event
	// Ended is signalled by the session end callback.
	Ended <-chan schema.EndReason
}

// Terminal renders a lab session on a character terminal and feeds it keystrokes.
type Terminal struct {
	rw     io.ReadWriter
	cfg    TerminalConfig
	screen *screen
	ctx    context.Context

	width  int
	height int

	snap   schema.SessionSnapshot
	notice string
	dirty  bool
	reason schema.EndReason
}

// NewTerminal constructs a terminal that reads keys from rw and draws to it.
func NewTerminal(rw io.ReadWriter, cfg TerminalConfig) *Terminal {
	return &Terminal{
		rw:     rw,
		cfg:    cfg,
		screen: newScreen(rw, cfg.Term),
		width:  80,
		height: 24,
	}
}

func (t *Terminal) log() pslog.Logger {
	ctx := t.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return logx.WithUserSession(ctx, t.cfg.UserID, t.cfg.SessionID)
}

// SetSize sets the terminal dimensions, falling back to 80x24.
func (t *Terminal) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	t.width = width
	t.height = height
}

// Run drives the terminal until the session ends, the input closes or ctx is done.
// It returns the end reason when the session terminated while attached.
func (t *Terminal) Run(ctx context.Context, winCh <-chan Window) (schema.EndReason, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx = ctx
	if t.cfg.Service == nil {
		return "", errors.New("terminal service is required")
	}
	if err := t.refresh(); err != nil {
		return "", err
	}
	t.screen.EnterAltScreen()
	defer t.screen.ExitAltScreen()
	defer t.linger(ctx)
	t.render()
	t.log().Info("tui session start", "width", t.width, "height", t.height)

	keys := make(chan schema.Key, 16)
	go readKeys(t.rw, keys)

	events := t.cfg.Events
	ended := t.cfg.Ended
	for {
		select {
		case <-ctx.Done():
			return t.reason, nil
		case k, ok := <-keys:
			if !ok {
				return t.reason, nil
			}
			if t.handleKey(k) {
				return t.reason, nil
			}
		case win, ok := <-winCh:
			if !ok {
				winCh = nil
				break
			}
			t.SetSize(win.Width, win.Height)
			if err := t.refresh(); err != nil {
				return t.reason, nil
			}
			t.dirty = true
			t.log().Debug("tui resize", "width", t.width, "height", t.height)
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			if t.handleEvent(ev) {
				return t.reason, nil
			}
		case reason, ok := <-ended:
			if !ok {
				ended = nil
				break
			}
			t.markEnded(reason)
			return t.reason, nil
		}

		if t.dirty {
			t.render()
			t.dirty = false
		}
	}
}

// handleKey reports true when the terminal should stop.
func (t *Terminal) handleKey(k schema.Key) bool {
	t.notice = ""
	if k.Kind == schema.KeyCtrlY {
		t.copyTranscript()
		t.dirty = true
		return false
	}
	resp, err := t.cfg.Service.HandleKey(t.ctx, schema.HandleKeyRequest{
		SessionID: t.cfg.SessionID,
		Key:       k,
		Limit:     t.viewHeight(),
	})
	if err != nil {
		return t.serviceError(err)
	}
	t.snap = resp.Session
	t.dirty = true
	if t.snap.State == schema.SessionTerminated {
		t.markEnded(t.snap.EndReason)
		return true
	}
	return false
}

func (t *Terminal) handleEvent(ev eventbus.Event) bool {
	switch ev.Type {
	case eventbus.EventTick:
		if ev.Tick.RemainingSeconds != t.snap.RemainingSeconds {
			t.snap.RemainingSeconds = ev.Tick.RemainingSeconds
			t.dirty = true
		}
	case eventbus.EventOutput:
		if err := t.refresh(); err != nil {
			return t.serviceError(err)
		}
		t.dirty = true
	case eventbus.EventLifecycle:
		if ev.Lifecycle.State == schema.SessionTerminated {
			t.markEnded(ev.Lifecycle.Reason)
			return true
		}
		if err := t.refresh(); err != nil {
			return t.serviceError(err)
		}
		t.dirty = true
	}
	return false
}

func (t *Terminal) refresh() error {
	resp, err := t.cfg.Service.GetSession(t.ctx, schema.GetSessionRequest{
		SessionID: t.cfg.SessionID,
		Limit:     t.viewHeight(),
	})
	if err != nil {
		return err
	}
	t.snap = resp.Session
	return nil
}

func (t *Terminal) serviceError(err error) bool {
	if errors.Is(err, schema.ErrSessionNotFound) || errors.Is(err, schema.ErrSessionEnded) {
		t.log().Info("tui session gone", "err", err)
		return true
	}
	t.log().Warn("tui service call failed", "err", err)
	t.notice = err.Error()
	t.dirty = true
	return false
}

func (t *Terminal) markEnded(reason schema.EndReason) {
	if reason == "" {
		reason = t.snap.EndReason
	}
	t.reason = reason
	t.snap.State = schema.SessionTerminated
	t.snap.EndReason = reason
	t.render()
	t.log().Info("tui session ended", "reason", reason)
}

func (t *Terminal) copyTranscript() {
	resp, err := t.cfg.Service.ExportTranscript(t.ctx, schema.ExportTranscriptRequest{SessionID: t.cfg.SessionID})
	if err != nil {
		t.serviceError(err)
		return
	}
	if err := t.screen.Copy(resp.Text); err != nil {
		t.log().Warn("tui clipboard copy failed", "err", err)
		t.notice = "copy failed"
		return
	}
	lines := strings.Count(resp.Text, "\n")
	t.notice = fmt.Sprintf("copied %d lines", lines)
	t.log().Debug("tui clipboard copy", "lines", lines, "bytes", len(resp.Text))
}

func (t *Terminal) viewHeight() int {
	if t.height <= 1 {
		return 0
	}
	inputLines, _, _ := renderInputLines(t.snap.Prompt, t.snap.Input, t.snap.Cursor, t.width)
	inputHeight := len(inputLines)
	if inputHeight < 1 {
		inputHeight = 1
	}
	view := t.height - 1 - inputHeight
	if view < 0 {
		view = 0
	}
	return view
}

func (t *Terminal) render() {
	width := t.width
	height := t.height
	theme := defaultTheme
	lines := make([]string, 0, height)

	notice := t.notice
	if notice == "" {
		notice = t.snap.Notice
	}
	lines = append(lines, renderStatusBar(t.snap, notice, width, theme))

	inputLines, cursorRow, cursorCol := renderInputLines(stylePromptPrefix(t.snap.Prompt, theme), t.snap.Input, t.snap.Cursor, width)
	if t.snap.State == schema.SessionTerminated {
		inputLines = []string{ansiFgRGB(theme.EndedFG) + trimToWidth(EndedMessage(t.snap.EndReason), width) + ansiReset}
		cursorRow, cursorCol = 1, 1
	}
	outputHeight := height - 1 - len(inputLines)
	if outputHeight < 0 {
		outputHeight = 0
	}
	lines = append(lines, renderViewport(t.snap.Scrollback.Lines, width, outputHeight, t.snap.Scrollback.AtBottom)...)
	lines = append(lines, inputLines...)
	cursorRow = len(lines) - len(inputLines) + cursorRow
	if err := t.screen.Render(lines, cursorRow, cursorCol); err != nil {
		t.log().Warn("tui render failed", "err", err)
	}
}

// EndedMessage describes why a session terminated.
func EndedMessage(reason schema.EndReason) string {
	switch reason {
	case schema.EndExpired:
		return "lab session expired"
	case schema.EndAdmin:
		return "lab session ended by an instructor"
	case schema.EndUser:
		return "logged out"
	default:
		return "lab session ended"
	}
}

// endedLingerDelay keeps the final frame visible before the alternate screen is dropped.
var endedLingerDelay = 1500 * time.Millisecond

func (t *Terminal) linger(ctx context.Context) {
	if t.reason == "" || endedLingerDelay <= 0 {
		return
	}
	timer := time.NewTimer(endedLingerDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
