package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/labterm/core"
	"pkt.systems/labterm/internal/persist"
	"pkt.systems/labterm/internal/version"
	"pkt.systems/labterm/schema"
	"pkt.systems/pslog"
)

// TranscriptArchive lists and reads archived transcripts.
type TranscriptArchive interface {
	List(userID schema.UserID) ([]persist.TranscriptInfo, error)
	Load(userID schema.UserID, name string) (string, bool, error)
}

// Server serves the admin API.
type Server struct {
	cfg         Config
	service     core.Service
	hub         *Hub
	transcripts TranscriptArchive
	basePath    string
}

// NewServer constructs an HTTP server. hub and transcripts may be nil.
func NewServer(cfg Config, service core.Service, hub *Hub, transcripts TranscriptArchive) *Server {
	return &Server{
		cfg:         cfg,
		service:     service,
		hub:         hub,
		transcripts: transcripts,
		basePath:    normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.requireAdmin(s.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", s.requireAdmin(s.handleGetSession))
	mux.HandleFunc("POST /api/sessions/{id}/pause", s.requireAdmin(s.handlePause))
	mux.HandleFunc("POST /api/sessions/{id}/resume", s.requireAdmin(s.handleResume))
	mux.HandleFunc("POST /api/sessions/{id}/extend", s.requireAdmin(s.handleExtend))
	mux.HandleFunc("POST /api/sessions/{id}/end", s.requireAdmin(s.handleEnd))
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.requireAdmin(s.handleTranscript))
	mux.HandleFunc("GET /api/sessions/{id}/stream", s.requireAdmin(s.handleStream))
	mux.HandleFunc("GET /api/transcripts", s.requireAdmin(s.handleListTranscripts))
	mux.HandleFunc("GET /api/transcripts/{user}/{name}", s.requireAdmin(s.handleArchivedTranscript))

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version.Current()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := schema.UserID(strings.TrimSpace(r.URL.Query().Get("user")))
	if userID != "" {
		if err := schema.ValidateUserID(userID); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	resp, err := s.service.ListSessions(r.Context(), schema.ListSessionsRequest{UserID: userID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	sessions := resp.Sessions
	if sessions == nil {
		sessions = []schema.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{
		SessionID: sessionParam(r),
		Limit:     limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Session)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.PauseSession(r.Context(), schema.PauseSessionRequest{SessionID: sessionParam(r)})
	s.writeControl(w, r, "pause", resp, err)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ResumeSession(r.Context(), schema.ResumeSessionRequest{SessionID: sessionParam(r)})
	s.writeControl(w, r, "resume", resp, err)
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Seconds int `json:"seconds"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	resp, err := s.service.ExtendSession(r.Context(), schema.ExtendSessionRequest{
		SessionID: sessionParam(r),
		Seconds:   payload.Seconds,
	})
	s.writeControl(w, r, "extend", resp, err)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.EndSession(r.Context(), schema.EndSessionRequest{
		SessionID: sessionParam(r),
		Reason:    schema.EndAdmin,
	})
	s.writeControl(w, r, "end", resp, err)
}

func (s *Server) writeControl(w http.ResponseWriter, r *http.Request, action string, resp schema.ControlSessionResponse, err error) {
	log := pslog.Ctx(r.Context()).With("session", sessionParam(r), "action", action)
	if err != nil {
		log.Warn("http session control failed", "err", err)
		writeServiceError(w, err)
		return
	}
	log.Info("http session control", "state", resp.Session.State, "remaining_seconds", resp.Session.RemainingSeconds)
	writeJSON(w, http.StatusOK, resp.Session)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ExportTranscript(r.Context(), schema.ExportTranscriptRequest{SessionID: sessionParam(r)})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeText(w, resp.Filename, resp.Text)
}

func (s *Server) handleListTranscripts(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotFound, errors.New("transcript archive disabled"))
		return
	}
	userID := schema.UserID(strings.TrimSpace(r.URL.Query().Get("user")))
	if err := schema.ValidateUserID(userID); err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := s.transcripts.List(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []persist.TranscriptInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": userID, "transcripts": items})
}

func (s *Server) handleArchivedTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotFound, errors.New("transcript archive disabled"))
		return
	}
	userID := schema.UserID(r.PathValue("user"))
	if err := schema.ValidateUserID(userID); err != nil {
		writeServiceError(w, err)
		return
	}
	name := r.PathValue("name")
	text, ok, err := s.transcripts.Load(userID, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("transcript %s not found", name))
		return
	}
	writeText(w, name, text)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusNotFound, errors.New("stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	sessionID := sessionParam(r)
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{SessionID: sessionID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log := pslog.Ctx(r.Context()).With("session", sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshot := resp.Session
	_ = writeSSEvent(w, StreamEvent{
		Type:      "snapshot",
		SessionID: sessionID,
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	if snapshot.State == schema.SessionTerminated {
		flusher.Flush()
		return
	}

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	replay, ch, unsubscribe := s.hub.Subscribe(sessionID, lastID)
	defer unsubscribe()
	for _, event := range replay {
		_ = writeSSEvent(w, event)
	}
	// The session may have ended between the snapshot and the subscription,
	// in which case its terminated event was already published.
	if reason, ended := s.sessionEnded(r, sessionID); ended {
		s.hub.End(sessionID)
		_ = writeSSEvent(w, StreamEvent{
			Type:      "lifecycle",
			SessionID: sessionID,
			State:     schema.SessionTerminated,
			Reason:    reason,
			Timestamp: time.Now(),
		})
		flusher.Flush()
		log.Info("http stream closed", "reason", reason, "replay", len(replay))
		return
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "replay", len(replay))
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
			if event.Type == "lifecycle" && event.State == schema.SessionTerminated {
				log.Info("http stream closed", "reason", event.Reason)
				return
			}
		}
	}
}

func (s *Server) sessionEnded(r *http.Request, sessionID schema.SessionID) (schema.EndReason, bool) {
	resp, err := s.service.GetSession(r.Context(), schema.GetSessionRequest{SessionID: sessionID, Limit: 1})
	if errors.Is(err, schema.ErrSessionNotFound) {
		return schema.EndClosed, true
	}
	if err != nil || resp.Session.State != schema.SessionTerminated {
		return "", false
	}
	return resp.Session.EndReason, true
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next(w, r)
			return
		}
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			pslog.Ctx(r.Context()).Warn("http auth rejected", "remote", clientIP(r), "path", r.URL.Path)
			w.Header().Set("WWW-Authenticate", `Bearer realm="labterm"`)
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func sessionParam(r *http.Request) schema.SessionID {
	return schema.SessionID(strings.TrimSpace(r.PathValue("id")))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, schema.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrInvalidUser),
		errors.Is(err, schema.ErrInvalidLab),
		errors.Is(err, schema.ErrInvalidDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err)
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeText(w http.ResponseWriter, filename, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func parseLimit(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit %q", value)
	}
	return limit, nil
}

var _ core.EventSink = (*Hub)(nil)
