package schema

// Session lifecycle.

// CreateSessionRequest describes a request to start a terminal session.
type CreateSessionRequest struct {
	UserID          UserID
	LabID           LabID
	DurationSeconds int
	// OnEnd is invoked exactly once when the session terminates.
	OnEnd func(reason EndReason)
}

// CreateSessionResponse reports the created session.
type CreateSessionResponse struct {
	Session SessionSnapshot
}

// CloseSessionRequest detaches a client and discards the session.
type CloseSessionRequest struct {
	SessionID SessionID
}

// CloseSessionResponse reports the final session snapshot.
type CloseSessionResponse struct {
	Session SessionSnapshot
}

// GetSessionRequest describes a request for a session snapshot.
// Limit bounds the number of scrollback lines returned; 0 returns all.
type GetSessionRequest struct {
	SessionID SessionID
	Limit     int
}

// GetSessionResponse reports a session snapshot.
type GetSessionResponse struct {
	Session SessionSnapshot
}

// ListSessionsRequest lists live sessions, optionally for a single user.
type ListSessionsRequest struct {
	UserID UserID
}

// ListSessionsResponse reports live sessions ordered by creation.
type ListSessionsResponse struct {
	Sessions []SessionSummary
}

// Input.

// HandleKeyRequest delivers a keystroke to a session.
type HandleKeyRequest struct {
	SessionID SessionID
	Key       Key
	Limit     int
}

// HandleKeyResponse reports the session after the keystroke.
type HandleKeyResponse struct {
	Session SessionSnapshot
}

// ScrollSessionRequest moves the scrollback viewport.
// Positive Delta scrolls up (older lines); Limit is the viewport height.
type ScrollSessionRequest struct {
	SessionID SessionID
	Delta     int
	Limit     int
}

// ScrollSessionResponse reports the session after scrolling.
type ScrollSessionResponse struct {
	Session SessionSnapshot
}

// Control.

// PauseSessionRequest holds the countdown of a session.
type PauseSessionRequest struct {
	SessionID SessionID
}

// ResumeSessionRequest restarts the countdown of a paused session.
type ResumeSessionRequest struct {
	SessionID SessionID
}

// ExtendSessionRequest adds time to a session.
type ExtendSessionRequest struct {
	SessionID SessionID
	Seconds   int
}

// EndSessionRequest terminates a session.
type EndSessionRequest struct {
	SessionID SessionID
	Reason    EndReason
}

// ControlSessionResponse reports the session after a control operation.
type ControlSessionResponse struct {
	Session SessionSnapshot
}

// Export.

// ExportTranscriptRequest requests the full scrollback as text.
type ExportTranscriptRequest struct {
	SessionID SessionID
}

// ExportTranscriptResponse carries the transcript and a suggested file name.
type ExportTranscriptResponse struct {
	Filename string
	Text     string
}
