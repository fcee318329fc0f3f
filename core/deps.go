package core

import (
	"context"
	"time"

	"pkt.systems/labterm/internal/command"
	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Registry    *command.Registry
	EventSink   EventSink
	Transcripts TranscriptArchiver
	Clock       func() time.Time
	NewTicker   func(d time.Duration) Ticker
	Logger      pslog.Logger
}

// TranscriptArchiver stores the scrollback of ended sessions.
type TranscriptArchiver interface {
	SaveTranscript(ctx context.Context, transcript schema.Transcript) (string, error)
}

// Ticker delivers countdown ticks to a session driver.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func newTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

func (t timeTicker) C() <-chan time.Time {
	return t.t.C
}

func (t timeTicker) Stop() {
	t.t.Stop()
}
