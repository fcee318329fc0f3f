package core

import (
	"fmt"
	"strings"
	"time"

	"pkt.systems/labterm/internal/command"
	"pkt.systems/labterm/internal/vpath"
	"pkt.systems/labterm/schema"
)

const (
	pausedNotice     = "environment is paused"
	defaultPageLines = 10
)

// session is the state machine of one lab terminal. It is not safe for
// concurrent use; the service serialises access.
type session struct {
	ID       schema.SessionID
	User     schema.UserID
	Lab      schema.LabID
	Host     string
	Created  time.Time
	registry *command.Registry

	home       vpath.Path
	path       vpath.Path
	scrollback *buffer
	history    *historyBuffer
	input      lineEditor
	timer      countdown
	state      schema.SessionState
	reason     schema.EndReason
	notice     string
}

// sessionOptions configures a new session.
type sessionOptions struct {
	ID         schema.SessionID
	User       schema.UserID
	Lab        schema.LabID
	Host       string
	Home       vpath.Path
	Duration   int
	Scrollback int
	History    int
	Registry   *command.Registry
	Created    time.Time
}

// effect describes what a transition changed, for event emission and audit.
type effect struct {
	Lines    []string
	Cleared  bool
	Ended    bool
	Executed *command.Command
}

func (e effect) outputChanged() bool {
	return len(e.Lines) > 0 || e.Cleared
}

func newSession(opts sessionOptions) *session {
	registry := opts.Registry
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &session{
		ID:         opts.ID,
		User:       opts.User,
		Lab:        opts.Lab,
		Host:       opts.Host,
		Created:    opts.Created,
		registry:   registry,
		home:       opts.Home,
		path:       opts.Home,
		scrollback: newBufferWithMaxLines(opts.Scrollback),
		history:    newHistory(opts.History),
		timer:      newCountdown(opts.Duration),
		state:      schema.SessionActive,
	}
}

// Prompt renders the shell prompt for the current path.
func (s *session) Prompt() string {
	return fmt.Sprintf("%s@%s:%s$ ", s.User, s.Host, s.path.Display(s.home))
}

func (s *session) State() schema.SessionState {
	return s.state
}

func (s *session) Terminated() bool {
	return s.state == schema.SessionTerminated
}

// HandleKey applies one keystroke. now feeds the command environment and
// limit is the viewport height used for paging.
func (s *session) HandleKey(key schema.Key, limit int, now time.Time) effect {
	if s.Terminated() {
		return effect{}
	}
	if key.Kind != schema.KeyEnter {
		s.notice = ""
	}
	switch key.Kind {
	case schema.KeyEnter:
		return s.submit(now)
	case schema.KeyUp:
		if entry, ok := s.history.Up(); ok {
			s.input.SetString(entry)
		}
	case schema.KeyDown:
		if entry, ok := s.history.Down(); ok {
			s.input.SetString(entry)
		}
	case schema.KeyTab:
		if completed, ok := command.Complete(s.input.String()); ok {
			s.input.SetString(completed)
		}
	case schema.KeyRune:
		s.input.InsertRune(key.Rune)
	case schema.KeyBackspace:
		s.input.Backspace()
	case schema.KeyDelete:
		s.input.Delete()
	case schema.KeyLeft:
		s.input.MoveLeft()
	case schema.KeyRight:
		s.input.MoveRight()
	case schema.KeyHome, schema.KeyCtrlA:
		s.input.MoveStart()
	case schema.KeyEnd, schema.KeyCtrlE:
		s.input.MoveEnd()
	case schema.KeyAltB:
		s.input.MoveWordLeft()
	case schema.KeyAltF:
		s.input.MoveWordRight()
	case schema.KeyCtrlW:
		s.input.DeleteWordBackward()
	case schema.KeyCtrlU:
		s.input.KillLineStart()
	case schema.KeyCtrlK:
		s.input.KillLineEnd()
	case schema.KeyCtrlC:
		s.input.Clear()
	case schema.KeyCtrlL:
		s.scrollback.Clear()
		return effect{Cleared: true}
	case schema.KeyCtrlD:
		if s.input.Len() > 0 {
			s.input.Delete()
			return effect{}
		}
		lines := []string{"logout"}
		s.scrollback.Append(lines...)
		return effect{Lines: lines, Ended: s.terminate(schema.EndUser)}
	case schema.KeyPageUp:
		s.scrollback.Scroll(pageSize(limit), limit)
	case schema.KeyPageDown:
		s.scrollback.Scroll(-pageSize(limit), limit)
	}
	return effect{}
}

func (s *session) submit(now time.Time) effect {
	line := s.input.String()
	if strings.TrimSpace(line) == "" {
		s.input.Clear()
		return effect{}
	}
	if s.state == schema.SessionPaused {
		s.notice = pausedNotice
		return effect{}
	}
	s.notice = ""
	echo := s.Prompt() + line
	s.scrollback.ResetScroll()
	s.scrollback.Append(echo)
	s.history.Append(line)
	s.input.Clear()

	cmd, result := s.registry.Exec(s.env(now), line)
	out := effect{Executed: &cmd}
	if result.ChangeDir {
		s.path = result.Path
	}
	if result.Clear {
		s.scrollback.Clear()
		out.Cleared = true
	} else {
		out.Lines = append([]string{echo}, result.Lines...)
		s.scrollback.Append(result.Lines...)
	}
	if result.End {
		out.Ended = s.terminate(schema.EndUser)
	}
	return out
}

func (s *session) env(now time.Time) command.Env {
	return command.Env{
		User:    s.User,
		Host:    s.Host,
		Lab:     s.Lab,
		Path:    s.path,
		Home:    s.home,
		Now:     now,
		History: s.history.Entries(),
	}
}

// Scroll moves the scrollback viewport; positive delta shows older lines.
func (s *session) Scroll(delta, limit int) {
	s.scrollback.Scroll(delta, limit)
}

// Tick advances the countdown by one second while Active and reports whether
// the session expired on this tick.
func (s *session) Tick() bool {
	if s.state != schema.SessionActive {
		return false
	}
	if !s.timer.Tick() {
		return false
	}
	return s.terminate(schema.EndExpired)
}

// Pause holds the countdown. It reports whether the state changed.
func (s *session) Pause() bool {
	if s.state != schema.SessionActive {
		return false
	}
	s.state = schema.SessionPaused
	return true
}

// Resume restarts a paused countdown. It reports whether the state changed.
func (s *session) Resume() bool {
	if s.state != schema.SessionPaused {
		return false
	}
	s.state = schema.SessionActive
	if s.notice == pausedNotice {
		s.notice = ""
	}
	return true
}

// Extend adds seconds to a session that has not terminated.
func (s *session) Extend(seconds int) error {
	if s.Terminated() {
		return schema.ErrSessionEnded
	}
	if seconds <= 0 {
		return schema.ErrInvalidDuration
	}
	s.timer.Extend(seconds)
	return nil
}

// End terminates the session. It reports whether this call ended it.
func (s *session) End(reason schema.EndReason) bool {
	return s.terminate(reason)
}

func (s *session) terminate(reason schema.EndReason) bool {
	if s.Terminated() {
		return false
	}
	s.state = schema.SessionTerminated
	s.reason = reason
	s.input.Clear()
	s.notice = ""
	return true
}

func (s *session) Transcript() string {
	return s.scrollback.Text()
}

func (s *session) Snapshot(limit int) schema.SessionSnapshot {
	return schema.SessionSnapshot{
		ID:               s.ID,
		UserID:           s.User,
		LabID:            s.Lab,
		State:            s.state,
		EndReason:        s.reason,
		Path:             s.path.String(),
		Prompt:           s.Prompt(),
		Input:            s.input.String(),
		Cursor:           s.input.Cursor(),
		RemainingSeconds: s.timer.Remaining(),
		HistoryIndex:     s.history.Index(),
		HistoryLen:       s.history.Len(),
		Notice:           s.notice,
		Scrollback:       s.scrollback.Snapshot(limit),
	}
}

func (s *session) Summary() schema.SessionSummary {
	return schema.SessionSummary{
		ID:               s.ID,
		UserID:           s.User,
		LabID:            s.Lab,
		State:            s.state,
		RemainingSeconds: s.timer.Remaining(),
	}
}

func pageSize(limit int) int {
	if limit <= 1 {
		return defaultPageLines
	}
	return limit - 1
}
