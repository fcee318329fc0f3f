package schema

// UserID identifies a lab user (student or instructor).
type UserID string

// SessionID identifies a live terminal session.
type SessionID string

// LabID identifies the lab exercise a session belongs to. Display only.
type LabID string

// SessionState is the lifecycle variant of a terminal session.
type SessionState string

const (
	// SessionActive means the countdown is running and input is executed.
	SessionActive SessionState = "active"
	// SessionPaused means the countdown is held and input is not executed.
	SessionPaused SessionState = "paused"
	// SessionTerminated is final; no transition leaves it.
	SessionTerminated SessionState = "terminated"
)

// EndReason records why a session terminated.
type EndReason string

const (
	// EndExpired means the countdown reached zero.
	EndExpired EndReason = "expired"
	// EndUser means the student ended the session (exit, Ctrl+D).
	EndUser EndReason = "user"
	// EndAdmin means an operator ended the session over the admin API.
	EndAdmin EndReason = "admin"
	// EndClosed means the client detached before the session ended.
	EndClosed EndReason = "closed"
)
