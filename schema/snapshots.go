package schema

// SessionSnapshot is a point-in-time view of a terminal session.
type SessionSnapshot struct {
	ID               SessionID    `json:"id"`
	UserID           UserID       `json:"user"`
	LabID            LabID        `json:"lab"`
	State            SessionState `json:"state"`
	EndReason        EndReason    `json:"end_reason,omitempty"`
	Path             string       `json:"path"`
	Prompt           string       `json:"prompt"`
	Input            string       `json:"input"`
	Cursor           int          `json:"cursor"`
	RemainingSeconds int          `json:"remaining_seconds"`
	HistoryIndex     int          `json:"history_index"`
	HistoryLen       int          `json:"history_len"`
	Notice           string       `json:"notice,omitempty"`
	Scrollback       BufferView   `json:"scrollback"`
}

// BufferView is the visible window of a session's scrollback.
// ScrollOffset is the number of lines from the bottom; 0 means at bottom.
type BufferView struct {
	Lines        []string `json:"lines"`
	TotalLines   int      `json:"total_lines"`
	ScrollOffset int      `json:"scroll_offset"`
	AtBottom     bool     `json:"at_bottom"`
}

// SessionSummary is the list form of a session.
type SessionSummary struct {
	ID               SessionID    `json:"id"`
	UserID           UserID       `json:"user"`
	LabID            LabID        `json:"lab"`
	State            SessionState `json:"state"`
	RemainingSeconds int          `json:"remaining_seconds"`
}
