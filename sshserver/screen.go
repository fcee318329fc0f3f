package sshserver

import (
	"fmt"
	"io"
	"strings"

	osc52 "github.com/aymanbagabas/go-osc52/v2"
)

// screen writes full-frame redraws to a terminal in the alternate buffer.
type screen struct {
	out  io.Writer
	term string
}

func newScreen(out io.Writer, term string) *screen {
	return &screen{out: out, term: term}
}

func (s *screen) EnterAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049h\x1b[H\x1b[2J")
}

func (s *screen) ExitAltScreen() {
	_, _ = io.WriteString(s.out, "\x1b[?1049l\x1b[?25h")
}

func (s *screen) Render(lines []string, cursorRow, cursorCol int) error {
	if cursorRow < 1 {
		cursorRow = 1
	}
	if cursorCol < 1 {
		cursorCol = 1
	}
	var b strings.Builder
	b.WriteString("\x1b[?25l")
	b.WriteString("\x1b[H\x1b[2J")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\r\n")
		}
		b.WriteString(line)
	}
	b.WriteString(fmt.Sprintf("\x1b[%d;%dH", cursorRow, cursorCol))
	b.WriteString("\x1b[?25h")
	_, err := io.WriteString(s.out, b.String())
	return err
}

// Copy places text on the client clipboard with an OSC 52 sequence.
func (s *screen) Copy(text string) error {
	seq := osc52.New(text)
	switch {
	case strings.HasPrefix(s.term, "tmux"):
		seq = seq.Tmux()
	case strings.HasPrefix(s.term, "screen"):
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(s.out)
	return err
}
