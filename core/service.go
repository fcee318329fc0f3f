package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/labterm/internal/command"
	"pkt.systems/labterm/internal/logx"
	"pkt.systems/labterm/internal/vpath"
	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

const tickInterval = time.Second

// service implements the core service behavior.
type service struct {
	cfg         schema.ServiceConfig
	home        vpath.Path
	registry    *command.Registry
	sink        EventSink
	transcripts TranscriptArchiver
	clock       func() time.Time
	newTicker   func(d time.Duration) Ticker
	logger      pslog.Logger

	mu       sync.Mutex
	sessions map[schema.SessionID]*liveSession
	order    []schema.SessionID
	drivers  sync.WaitGroup
}

// liveSession guards one session. Its mutex serialises the terminal, the
// countdown driver and admin calls.
type liveSession struct {
	mu    sync.Mutex
	sess  *session
	onEnd func(schema.EndReason)
	log   pslog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func (l *liveSession) halt() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Registry == nil {
		deps.Registry = command.NewRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewTicker == nil {
		deps.NewTicker = newTimeTicker
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:         cfg,
		home:        vpath.Parse(cfg.HomePath),
		registry:    deps.Registry,
		sink:        deps.EventSink,
		transcripts: deps.Transcripts,
		clock:       deps.Clock,
		newTicker:   deps.NewTicker,
		logger:      logger,
		sessions:    make(map[schema.SessionID]*liveSession),
	}, nil
}

func (s *service) CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error) {
	if ctx == nil {
		return schema.CreateSessionResponse{}, errors.New("missing context")
	}
	if err := schema.ValidateUserID(req.UserID); err != nil {
		return schema.CreateSessionResponse{}, err
	}
	lab := req.LabID
	if strings.TrimSpace(string(lab)) == "" {
		lab = s.cfg.DefaultLab
	}
	lab, err := schema.NormalizeLabID(string(lab))
	if err != nil {
		return schema.CreateSessionResponse{}, err
	}
	duration := req.DurationSeconds
	if duration < 0 {
		return schema.CreateSessionResponse{}, fmt.Errorf("duration %d: %w", duration, schema.ErrInvalidDuration)
	}
	if duration == 0 {
		duration = s.cfg.DefaultDurationSeconds
	}

	id := newID()
	log := logx.WithLab(logx.WithUserSession(ctx, req.UserID, id), lab)
	sess := newSession(sessionOptions{
		ID:         id,
		User:       req.UserID,
		Lab:        lab,
		Host:       s.cfg.Hostname,
		Home:       s.home,
		Duration:   duration,
		Scrollback: s.cfg.ScrollbackMaxLines,
		History:    s.cfg.HistoryMax,
		Registry:   s.registry,
		Created:    s.clock(),
	})
	live := &liveSession{
		sess:  sess,
		onEnd: req.OnEnd,
		log:   log,
		stop:  make(chan struct{}),
	}
	snap := sess.Snapshot(0)

	s.mu.Lock()
	s.sessions[id] = live
	s.order = append(s.order, id)
	s.drivers.Add(1)
	s.mu.Unlock()

	go s.drive(live)
	s.emitLifecycle(schema.LifecycleEvent{SessionID: id, UserID: req.UserID, State: schema.SessionActive})
	log.Info("service session created", "duration_seconds", duration)
	return schema.CreateSessionResponse{Session: snap}, nil
}

func (s *service) CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error) {
	s.mu.Lock()
	live := s.sessions[req.SessionID]
	if live != nil {
		delete(s.sessions, req.SessionID)
		s.order = removeSessionID(s.order, req.SessionID)
	}
	s.mu.Unlock()
	if live == nil {
		s.logger.Warn("service session close failed", "session", req.SessionID, "err", schema.ErrSessionNotFound)
		return schema.CloseSessionResponse{}, notFound(req.SessionID)
	}
	live.halt()

	live.mu.Lock()
	changed := live.sess.End(schema.EndClosed)
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()
	if changed {
		s.finish(ctx, live, snap)
	}
	live.log.Info("service session closed", "state", snap.State, "reason", snap.EndReason)
	return schema.CloseSessionResponse{Session: snap}, nil
}

func (s *service) GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error) {
	_ = ctx
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.GetSessionResponse{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return schema.GetSessionResponse{Session: live.sess.Snapshot(req.Limit)}, nil
}

func (s *service) ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error) {
	if req.UserID != "" {
		if err := schema.ValidateUserID(req.UserID); err != nil {
			return schema.ListSessionsResponse{}, err
		}
	}
	s.mu.Lock()
	lives := make([]*liveSession, 0, len(s.order))
	for _, id := range s.order {
		if live := s.sessions[id]; live != nil {
			lives = append(lives, live)
		}
	}
	s.mu.Unlock()

	sessions := make([]schema.SessionSummary, 0, len(lives))
	for _, live := range lives {
		live.mu.Lock()
		summary := live.sess.Summary()
		live.mu.Unlock()
		if req.UserID != "" && summary.UserID != req.UserID {
			continue
		}
		sessions = append(sessions, summary)
	}
	logx.WithUser(ctx, req.UserID).Trace("service sessions listed", "count", len(sessions))
	return schema.ListSessionsResponse{Sessions: sessions}, nil
}

func (s *service) HandleKey(ctx context.Context, req schema.HandleKeyRequest) (schema.HandleKeyResponse, error) {
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.HandleKeyResponse{}, err
	}
	live.mu.Lock()
	path := live.sess.path.String()
	eff := live.sess.HandleKey(req.Key, req.Limit, s.clock())
	snap := live.sess.Snapshot(req.Limit)
	live.mu.Unlock()

	if eff.Executed != nil && !s.cfg.DisableAuditLogging {
		live.log.Debug("audit command", "command_type", "simulated", "command", eff.Executed.Raw, "path", path)
	}
	if eff.outputChanged() {
		s.emitOutput(schema.OutputEvent{SessionID: snap.ID, UserID: snap.UserID, Lines: eff.Lines, Cleared: eff.Cleared})
	}
	if eff.Ended {
		s.finish(ctx, live, snap)
	}
	return schema.HandleKeyResponse{Session: snap}, nil
}

func (s *service) ScrollSession(ctx context.Context, req schema.ScrollSessionRequest) (schema.ScrollSessionResponse, error) {
	_ = ctx
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ScrollSessionResponse{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	live.sess.Scroll(req.Delta, req.Limit)
	return schema.ScrollSessionResponse{Session: live.sess.Snapshot(req.Limit)}, nil
}

func (s *service) PauseSession(ctx context.Context, req schema.PauseSessionRequest) (schema.ControlSessionResponse, error) {
	_ = ctx
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ControlSessionResponse{}, err
	}
	live.mu.Lock()
	if live.sess.Terminated() {
		live.mu.Unlock()
		return schema.ControlSessionResponse{}, ended(req.SessionID)
	}
	changed := live.sess.Pause()
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()
	if changed {
		s.emitLifecycle(schema.LifecycleEvent{SessionID: snap.ID, UserID: snap.UserID, State: snap.State})
		live.log.Info("service session paused", "remaining_seconds", snap.RemainingSeconds)
	}
	return schema.ControlSessionResponse{Session: snap}, nil
}

func (s *service) ResumeSession(ctx context.Context, req schema.ResumeSessionRequest) (schema.ControlSessionResponse, error) {
	_ = ctx
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ControlSessionResponse{}, err
	}
	live.mu.Lock()
	if live.sess.Terminated() {
		live.mu.Unlock()
		return schema.ControlSessionResponse{}, ended(req.SessionID)
	}
	changed := live.sess.Resume()
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()
	if changed {
		s.emitLifecycle(schema.LifecycleEvent{SessionID: snap.ID, UserID: snap.UserID, State: snap.State})
		live.log.Info("service session resumed", "remaining_seconds", snap.RemainingSeconds)
	}
	return schema.ControlSessionResponse{Session: snap}, nil
}

func (s *service) ExtendSession(ctx context.Context, req schema.ExtendSessionRequest) (schema.ControlSessionResponse, error) {
	_ = ctx
	if req.Seconds <= 0 {
		return schema.ControlSessionResponse{}, fmt.Errorf("extend by %d seconds: %w", req.Seconds, schema.ErrInvalidRequest)
	}
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ControlSessionResponse{}, err
	}
	live.mu.Lock()
	err = live.sess.Extend(req.Seconds)
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()
	if err != nil {
		live.log.Warn("service session extend failed", "err", err)
		return schema.ControlSessionResponse{}, fmt.Errorf("session %s: %w", req.SessionID, err)
	}
	s.emitTick(schema.TickEvent{SessionID: snap.ID, UserID: snap.UserID, RemainingSeconds: snap.RemainingSeconds})
	live.log.Info("service session extended", "seconds", req.Seconds, "remaining_seconds", snap.RemainingSeconds)
	return schema.ControlSessionResponse{Session: snap}, nil
}

func (s *service) EndSession(ctx context.Context, req schema.EndSessionRequest) (schema.ControlSessionResponse, error) {
	reason := req.Reason
	if reason == "" {
		reason = schema.EndAdmin
	}
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ControlSessionResponse{}, err
	}
	live.mu.Lock()
	changed := live.sess.End(reason)
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()
	if !changed {
		return schema.ControlSessionResponse{}, ended(req.SessionID)
	}
	live.halt()
	s.finish(ctx, live, snap)
	return schema.ControlSessionResponse{Session: snap}, nil
}

func (s *service) ExportTranscript(ctx context.Context, req schema.ExportTranscriptRequest) (schema.ExportTranscriptResponse, error) {
	_ = ctx
	live, err := s.lookup(req.SessionID)
	if err != nil {
		return schema.ExportTranscriptResponse{}, err
	}
	live.mu.Lock()
	defer live.mu.Unlock()
	return schema.ExportTranscriptResponse{
		Filename: schema.TranscriptFilename(live.sess.Lab),
		Text:     live.sess.Transcript(),
	}, nil
}

func (s *service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ids := append([]schema.SessionID(nil), s.order...)
	s.mu.Unlock()
	for _, id := range ids {
		if _, err := s.CloseSession(ctx, schema.CloseSessionRequest{SessionID: id}); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
			return err
		}
	}
	done := make(chan struct{})
	go func() {
		s.drivers.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("service shutdown complete", "sessions", len(ids))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drive feeds countdown ticks to one session until it ends or is closed.
func (s *service) drive(live *liveSession) {
	defer s.drivers.Done()
	ticker := s.newTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-live.stop:
			return
		case <-ticker.C():
			if s.tick(live) {
				return
			}
		}
	}
}

// tick applies one countdown tick and reports whether the session is over.
func (s *service) tick(live *liveSession) bool {
	live.mu.Lock()
	if live.sess.Terminated() {
		live.mu.Unlock()
		return true
	}
	active := live.sess.State() == schema.SessionActive
	expired := live.sess.Tick()
	snap := live.sess.Snapshot(0)
	live.mu.Unlock()

	if active {
		s.emitTick(schema.TickEvent{SessionID: snap.ID, UserID: snap.UserID, RemainingSeconds: snap.RemainingSeconds})
	}
	if expired {
		s.finish(context.Background(), live, snap)
		return true
	}
	return false
}

// finish runs the end-of-session side effects. Callers invoke it only for
// the transition into Terminated, so it runs once per session.
func (s *service) finish(ctx context.Context, live *liveSession, snap schema.SessionSnapshot) {
	live.halt()
	s.emitLifecycle(schema.LifecycleEvent{SessionID: snap.ID, UserID: snap.UserID, State: snap.State, Reason: snap.EndReason})
	live.log.Info("service session ended", "reason", snap.EndReason, "remaining_seconds", snap.RemainingSeconds)
	if live.onEnd != nil {
		live.onEnd(snap.EndReason)
	}
	s.archive(ctx, live, snap)
}

func (s *service) archive(ctx context.Context, live *liveSession, snap schema.SessionSnapshot) {
	if s.transcripts == nil {
		return
	}
	live.mu.Lock()
	text := live.sess.Transcript()
	live.mu.Unlock()
	if text == "" {
		live.log.Debug("service transcript skipped", "reason", "empty")
		return
	}
	path, err := s.transcripts.SaveTranscript(ctx, schema.Transcript{
		SessionID: snap.ID,
		UserID:    snap.UserID,
		LabID:     snap.LabID,
		Reason:    snap.EndReason,
		EndedAt:   s.clock(),
		Text:      text,
	})
	if err != nil {
		live.log.Warn("service transcript save failed", "err", err)
		return
	}
	live.log.Info("service transcript saved", "path", path)
}

func (s *service) lookup(id schema.SessionID) (*liveSession, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("missing session id: %w", schema.ErrInvalidRequest)
	}
	s.mu.Lock()
	live := s.sessions[id]
	s.mu.Unlock()
	if live == nil {
		return nil, notFound(id)
	}
	return live, nil
}

func (s *service) emitOutput(event schema.OutputEvent) {
	if s.sink != nil {
		s.sink.OnOutput(event)
	}
}

func (s *service) emitTick(event schema.TickEvent) {
	if s.sink != nil {
		s.sink.OnTick(event)
	}
}

func (s *service) emitLifecycle(event schema.LifecycleEvent) {
	if s.sink != nil {
		s.sink.OnLifecycle(event)
	}
}

func notFound(id schema.SessionID) error {
	return fmt.Errorf("session %s: %w", id, schema.ErrSessionNotFound)
}

func ended(id schema.SessionID) error {
	return fmt.Errorf("session %s: %w", id, schema.ErrSessionEnded)
}

func removeSessionID(ids []schema.SessionID, target schema.SessionID) []schema.SessionID {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
