package schema

import "time"

// Transcript is the archived scrollback of an ended session.
type Transcript struct {
	SessionID SessionID
	UserID    UserID
	LabID     LabID
	Reason    EndReason
	EndedAt   time.Time
	Text      string
}

// TranscriptFilename returns the download name for a lab transcript.
func TranscriptFilename(lab LabID) string {
	if lab == "" {
		lab = DefaultLab
	}
	return string(lab) + "-transcript.txt"
}
