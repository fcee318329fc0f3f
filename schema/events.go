package schema

// OutputEvent reports lines appended to (or a reset of) a session's scrollback.
type OutputEvent struct {
	SessionID SessionID
	UserID    UserID
	Lines     []string
	Cleared   bool
}

// TickEvent reports the remaining time after a countdown tick.
type TickEvent struct {
	SessionID        SessionID
	UserID           UserID
	RemainingSeconds int
}

// LifecycleEvent reports a session state change.
type LifecycleEvent struct {
	SessionID SessionID
	UserID    UserID
	State     SessionState
	Reason    EndReason
}
