package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/labterm/internal/logx"
	"pkt.systems/labterm/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq              uint64                  `json:"seq"`
	Type             string                  `json:"type"`
	SessionID        schema.SessionID        `json:"session"`
	Lines            []string                `json:"lines,omitempty"`
	Cleared          bool                    `json:"cleared,omitempty"`
	RemainingSeconds *int                    `json:"remaining_seconds,omitempty"`
	State            schema.SessionState     `json:"state,omitempty"`
	Reason           schema.EndReason        `json:"reason,omitempty"`
	Snapshot         *schema.SessionSnapshot `json:"snapshot,omitempty"`
	Timestamp        time.Time               `json:"timestamp"`
}

// Hub records and broadcasts session events to stream clients.
type Hub struct {
	mu          sync.Mutex
	sessions    map[schema.SessionID]*sessionHub
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given per-session history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		sessions:    make(map[schema.SessionID]*sessionHub),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnOutput implements core.EventSink.
func (h *Hub) OnOutput(event schema.OutputEvent) {
	log := logx.WithUserSession(context.Background(), event.UserID, event.SessionID)
	log.Trace("hub output event", "lines", len(event.Lines), "cleared", event.Cleared)
	h.publish(event.SessionID, StreamEvent{
		Type:    "output",
		Lines:   event.Lines,
		Cleared: event.Cleared,
	})
}

// OnTick implements core.EventSink. Ticks are streamed but not kept for replay.
func (h *Hub) OnTick(event schema.TickEvent) {
	remaining := event.RemainingSeconds
	h.broadcast(event.SessionID, StreamEvent{
		Type:             "tick",
		RemainingSeconds: &remaining,
	}, false)
}

// OnLifecycle implements core.EventSink.
func (h *Hub) OnLifecycle(event schema.LifecycleEvent) {
	log := logx.WithUserSession(context.Background(), event.UserID, event.SessionID)
	log.Trace("hub lifecycle event", "state", event.State, "reason", event.Reason)
	h.publish(event.SessionID, StreamEvent{
		Type:   "lifecycle",
		State:  event.State,
		Reason: event.Reason,
	})
	if event.State == schema.SessionTerminated {
		h.End(event.SessionID)
	}
}

// End marks the session's stream state finished; it is dropped once the last
// subscriber leaves.
func (h *Hub) End(sessionID schema.SessionID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sh := h.sessions[sessionID]; sh != nil {
		sh.ended = true
		h.pruneLocked(sessionID, sh)
	}
}

// Subscribe registers a stream subscriber for a session. When after is
// positive the recorded events with a greater seq are returned as replay;
// replayed events are never also delivered on the channel.
func (h *Hub) Subscribe(sessionID schema.SessionID, after uint64) ([]StreamEvent, <-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sh := h.getOrCreateLocked(sessionID)
	var replay []StreamEvent
	if after > 0 {
		for _, event := range sh.history {
			if event.Seq > after {
				replay = append(replay, event)
			}
		}
	}
	ch := make(chan StreamEvent, 256)
	sh.subs[ch] = struct{}{}
	log := logx.WithUserSession(context.Background(), "", sessionID)
	log.Info("hub subscribe", "subs", len(sh.subs), "history", len(sh.history), "after", after, "replay", len(replay))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(sh.subs, ch)
			close(ch)
			remaining := len(sh.subs)
			h.pruneLocked(sessionID, sh)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return replay, ch, unsub
}

func (h *Hub) publish(sessionID schema.SessionID, event StreamEvent) {
	h.broadcast(sessionID, event, true)
}

func (h *Hub) broadcast(sessionID schema.SessionID, event StreamEvent, record bool) {
	event.SessionID = sessionID
	event.Timestamp = h.now()
	h.mu.Lock()
	sh := h.sessions[sessionID]
	if sh == nil && !record {
		h.mu.Unlock()
		return
	}
	if sh == nil {
		sh = h.getOrCreateLocked(sessionID)
	}
	sh.seq++
	event.Seq = sh.seq
	if record {
		sh.history = append(sh.history, event)
		if len(sh.history) > h.historySize {
			sh.history = sh.history[len(sh.history)-h.historySize:]
		}
	}
	dropped := 0
	for sub := range sh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithUserSession(context.Background(), "", sessionID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

// Sessions reports how many sessions currently hold stream state.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Subscribers reports the number of stream clients attached to a session.
func (h *Hub) Subscribers(sessionID schema.SessionID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sh := h.sessions[sessionID]; sh != nil {
		return len(sh.subs)
	}
	return 0
}

func (h *Hub) getOrCreateLocked(sessionID schema.SessionID) *sessionHub {
	sh := h.sessions[sessionID]
	if sh == nil {
		sh = &sessionHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.sessions[sessionID] = sh
	}
	return sh
}

// pruneLocked drops an ended session once its last subscriber is gone.
func (h *Hub) pruneLocked(sessionID schema.SessionID, sh *sessionHub) {
	if sh.ended && len(sh.subs) == 0 && h.sessions[sessionID] == sh {
		delete(h.sessions, sessionID)
	}
}

type sessionHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
	ended   bool
}
