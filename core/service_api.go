package core

import (
	"context"

	"pkt.systems/labterm/schema"
)

// Service is the transport-agnostic API for lab terminal sessions.
type Service interface {
	CreateSession(ctx context.Context, req schema.CreateSessionRequest) (schema.CreateSessionResponse, error)
	CloseSession(ctx context.Context, req schema.CloseSessionRequest) (schema.CloseSessionResponse, error)
	GetSession(ctx context.Context, req schema.GetSessionRequest) (schema.GetSessionResponse, error)
	ListSessions(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error)
	HandleKey(ctx context.Context, req schema.HandleKeyRequest) (schema.HandleKeyResponse, error)
	ScrollSession(ctx context.Context, req schema.ScrollSessionRequest) (schema.ScrollSessionResponse, error)
	PauseSession(ctx context.Context, req schema.PauseSessionRequest) (schema.ControlSessionResponse, error)
	ResumeSession(ctx context.Context, req schema.ResumeSessionRequest) (schema.ControlSessionResponse, error)
	ExtendSession(ctx context.Context, req schema.ExtendSessionRequest) (schema.ControlSessionResponse, error)
	EndSession(ctx context.Context, req schema.EndSessionRequest) (schema.ControlSessionResponse, error)
	ExportTranscript(ctx context.Context, req schema.ExportTranscriptRequest) (schema.ExportTranscriptResponse, error)
	// Shutdown closes every live session and waits for countdown drivers.
	Shutdown(ctx context.Context) error
}
